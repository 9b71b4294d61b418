package deployment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"labdock/pkg/docker"
)

// LogsOptions controls log streaming across services.
type LogsOptions struct {
	// Services narrows the output. Empty streams every service.
	Services []string

	Follow     bool
	Tail       string
	Timestamps bool
}

var logColors = []color.Attribute{
	color.FgCyan,
	color.FgYellow,
	color.FgGreen,
	color.FgMagenta,
	color.FgBlue,
	color.FgRed,
}

// Logs streams the logs of the selected services to the manager's
// output, each line prefixed with its service name.
func (m *Manager) Logs(ctx context.Context, opts LogsOptions) error {
	selected := opts.Services
	if len(selected) == 0 {
		selected = m.project.ServiceNames()
	} else {
		for _, name := range selected {
			if _, err := m.project.Service(name); err != nil {
				return err
			}
		}
	}

	containers, err := m.engine.ListProjectContainers(ctx, m.project.Name, true)
	if err != nil {
		return err
	}
	byService := make(map[string]string, len(containers))
	for _, c := range containers {
		if c.Labels[docker.LabelOneoff] == "true" {
			continue
		}
		byService[c.Labels[docker.LabelService]] = c.ID
	}

	width := 0
	for _, name := range selected {
		if _, ok := byService[name]; !ok {
			continue
		}
		if len(name) > width {
			width = len(name)
		}
	}

	// One mutex across all writers so lines from different services
	// never interleave mid-line.
	var mu sync.Mutex
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var errs []error

	streamed := 0
	for _, name := range selected {
		id, ok := byService[name]
		if !ok {
			m.log.Warn("No container for service", "service", name)
			continue
		}

		prefix := servicePrefix(name, width, logColors[streamed%len(logColors)])
		streamed++
		stdout := &prefixWriter{out: m.stdout, mu: &mu, prefix: prefix}
		stderr := &prefixWriter{out: m.stderr, mu: &mu, prefix: prefix}

		wg.Add(1)
		go func(service, id string) {
			defer wg.Done()
			err := m.engine.StreamLogs(ctx, id, docker.LogsOptions{
				Follow:     opts.Follow,
				Tail:       opts.Tail,
				Timestamps: opts.Timestamps,
			}, stdout, stderr)
			stdout.Flush()
			stderr.Flush()
			if err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("logs of service %s: %w", service, err))
				errMu.Unlock()
			}
		}(name, id)
	}

	wg.Wait()
	return errors.Join(errs...)
}

func servicePrefix(name string, width int, attr color.Attribute) string {
	return color.New(attr).Sprintf("%-*s | ", width, name)
}

// prefixWriter prefixes every complete line with a service tag. Partial
// lines stay buffered until their newline arrives or Flush is called.
type prefixWriter struct {
	out    io.Writer
	mu     *sync.Mutex
	prefix string
	buf    []byte
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	start := 0
	for i, b := range w.buf {
		if b != '\n' {
			continue
		}
		if _, err := io.WriteString(w.out, w.prefix); err != nil {
			return len(p), err
		}
		if _, err := w.out.Write(w.buf[start : i+1]); err != nil {
			return len(p), err
		}
		start = i + 1
	}
	w.buf = append(w.buf[:0], w.buf[start:]...)
	return len(p), nil
}

func (w *prefixWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) == 0 {
		return nil
	}
	_, err := fmt.Fprintf(w.out, "%s%s\n", w.prefix, w.buf)
	w.buf = w.buf[:0]
	return err
}
