package deployment

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"

	"labdock/pkg/docker"
	"labdock/pkg/health"
)

type createdContainer struct {
	id   string
	opts docker.CreateOptions
}

type stopRecord struct {
	id      string
	timeout *time.Duration
}

type removeRecord struct {
	id    string
	force bool
}

type logFixture struct {
	stdout []byte
	stderr []byte
	err    error
}

// fakeEngine records every call the manager makes and replays canned
// fixtures.
type fakeEngine struct {
	mu sync.Mutex

	images      map[string]bool
	containers  []types.Container
	inspects    map[string]types.ContainerJSON
	logFixtures map[string]logFixture
	attachConn  *fakeConn
	attachOut   []byte

	waitCode int64
	waitErr  error

	listErr   error
	buildErr  error
	pullErr   error
	createErr error
	startErr  error

	ensuredNetworks []string
	removedNetworks []string
	builds          []docker.BuildOptions
	pulls           []string
	creates         []createdContainer
	starts          []string
	stops           []stopRecord
	removes         []removeRecord
	volumeProjects  []string

	nextID int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		images:      make(map[string]bool),
		inspects:    make(map[string]types.ContainerJSON),
		logFixtures: make(map[string]logFixture),
		attachConn:  &fakeConn{},
	}
}

func (e *fakeEngine) EnsureNetwork(ctx context.Context, project string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensuredNetworks = append(e.ensuredNetworks, project)
	return "net-" + project, nil
}

func (e *fakeEngine) RemoveNetwork(ctx context.Context, project string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removedNetworks = append(e.removedNetworks, project)
	return nil
}

func (e *fakeEngine) ListProjectContainers(ctx context.Context, project string, all bool) ([]types.Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listErr != nil {
		return nil, e.listErr
	}
	out := make([]types.Container, len(e.containers))
	copy(out, e.containers)
	return out, nil
}

func (e *fakeEngine) RemoveProjectVolumes(ctx context.Context, project string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volumeProjects = append(e.volumeProjects, project)
	return nil
}

func (e *fakeEngine) BuildImage(ctx context.Context, opts docker.BuildOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buildErr != nil {
		return e.buildErr
	}
	e.builds = append(e.builds, opts)
	for _, tag := range opts.Tags {
		e.images[tag] = true
	}
	return nil
}

func (e *fakeEngine) PullImage(ctx context.Context, ref string, output io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pullErr != nil {
		return e.pullErr
	}
	e.pulls = append(e.pulls, ref)
	e.images[ref] = true
	return nil
}

func (e *fakeEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[ref], nil
}

func (e *fakeEngine) CreateContainer(ctx context.Context, opts docker.CreateOptions) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return "", e.createErr
	}
	e.nextID++
	id := fmt.Sprintf("cnt-%d", e.nextID)
	e.creates = append(e.creates, createdContainer{id: id, opts: opts})
	return id, nil
}

func (e *fakeEngine) StartContainer(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.starts = append(e.starts, id)
	return nil
}

func (e *fakeEngine) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops = append(e.stops, stopRecord{id: id, timeout: timeout})
	return nil
}

func (e *fakeEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removes = append(e.removes, removeRecord{id: id, force: force})
	return nil
}

func (e *fakeEngine) InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if info, ok := e.inspects[id]; ok {
		return info, nil
	}
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    id,
			State: &types.ContainerState{Status: "running", Running: true},
		},
		Config: &container.Config{},
	}, nil
}

func (e *fakeEngine) WaitContainer(ctx context.Context, id string, condition container.WaitCondition) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waitCode, e.waitErr
}

func (e *fakeEngine) AttachContainer(ctx context.Context, id string, stdin bool) (types.HijackedResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.HijackedResponse{
		Conn:   e.attachConn,
		Reader: bufio.NewReader(bytes.NewReader(e.attachOut)),
	}, nil
}

func (e *fakeEngine) StreamLogs(ctx context.Context, id string, opts docker.LogsOptions, stdout, stderr io.Writer) error {
	e.mu.Lock()
	fixture := e.logFixtures[id]
	e.mu.Unlock()
	if len(fixture.stdout) > 0 {
		stdout.Write(fixture.stdout)
	}
	if len(fixture.stderr) > 0 {
		stderr.Write(fixture.stderr)
	}
	return fixture.err
}

func (e *fakeEngine) createdNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.creates))
	for i, c := range e.creates {
		names[i] = c.opts.Name
	}
	return names
}

func (e *fakeEngine) lastCreate() createdContainer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.creates) == 0 {
		return createdContainer{}
	}
	return e.creates[len(e.creates)-1]
}

// fakeConn is the attach transport. It remembers what was written and
// whether the write side was shut down.
type fakeConn struct {
	mu          sync.Mutex
	written     bytes.Buffer
	closed      bool
	writeClosed bool
}

func (c *fakeConn) Read(b []byte) (int, error) { return 0, io.EOF }

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.Write(b)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) CloseWrite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeClosed = true
	return nil
}

func (c *fakeConn) writtenString() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.String()
}

func (c *fakeConn) writeShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeClosed
}

func (c *fakeConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

type waitReadyCall struct {
	containerID string
	service     string
	opts        health.WaitOptions
}

type fakeWaiter struct {
	mu    sync.Mutex
	calls []waitReadyCall
	err   error
}

func (w *fakeWaiter) WaitReady(ctx context.Context, containerID, service string, opts health.WaitOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, waitReadyCall{containerID: containerID, service: service, opts: opts})
	return w.err
}
