package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/term"
)

// BuildOptions describes a single image build.
type BuildOptions struct {
	// ContextDir is the build context directory on the host.
	ContextDir string

	// Dockerfile is the path of the dockerfile relative to ContextDir.
	// Empty means "Dockerfile".
	Dockerfile string

	// Tags are applied to the resulting image. Services sharing a build
	// are tagged in one pass.
	Tags []string

	Args    map[string]string
	NoCache bool
	Pull    bool

	// Output receives the engine's build progress. Nil discards it.
	Output io.Writer
}

// BuildImage tars the build context, submits it to the engine and
// streams the build output. The error reflects build failures reported
// in the stream, not just transport problems.
func (c *Client) BuildImage(ctx context.Context, opts BuildOptions) error {
	contextDir, err := filepath.Abs(opts.ContextDir)
	if err != nil {
		return fmt.Errorf("failed to resolve build context: %w", err)
	}
	if info, err := os.Stat(contextDir); err != nil || !info.IsDir() {
		return fmt.Errorf("build context %s is not a directory", contextDir)
	}

	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	dockerfile = filepath.ToSlash(filepath.Clean(dockerfile))
	if strings.HasPrefix(dockerfile, "../") || dockerfile == ".." {
		return fmt.Errorf("dockerfile %s escapes the build context", opts.Dockerfile)
	}
	if _, err := os.Stat(filepath.Join(contextDir, dockerfile)); err != nil {
		return fmt.Errorf("dockerfile %s not found in build context %s", dockerfile, contextDir)
	}

	buildContext, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to tar build context: %w", err)
	}
	defer buildContext.Close()

	args := make(map[string]*string, len(opts.Args))
	for k, v := range opts.Args {
		v := v
		args[k] = &v
	}

	c.log.Info("Building image", "tags", strings.Join(opts.Tags, ", "), "context", contextDir)
	resp, err := c.api.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        opts.Tags,
		Dockerfile:  dockerfile,
		BuildArgs:   args,
		NoCache:     opts.NoCache,
		PullParent:  opts.Pull,
		Remove:      true,
		ForceRemove: true,
		Labels: map[string]string{
			LabelManaged: "true",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	return displayStream(resp.Body, opts.Output)
}

// PullImage pulls an image and streams the progress.
func (c *Client) PullImage(ctx context.Context, ref string, output io.Writer) error {
	c.log.Info("Pulling image", "image", ref)

	rc, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()

	return displayStream(rc, output)
}

// ImageExists reports whether an image reference is present locally.
func (c *Client) ImageExists(ctx context.Context, ref string) (bool, error) {
	images, err := c.api.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list images: %w", err)
	}
	return len(images) > 0, nil
}

// displayStream renders an engine progress stream. Errors embedded in
// the stream surface as regular errors.
func displayStream(body io.Reader, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	fd, isTerminal := term.GetFdInfo(out)
	if err := jsonmessage.DisplayJSONMessagesStream(body, out, fd, isTerminal, nil); err != nil {
		return fmt.Errorf("engine reported: %w", err)
	}
	return nil
}
