package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeEngine implements engineAPI in memory and records every call so
// tests can assert on what would have hit the daemon.
type fakeEngine struct {
	mu     sync.Mutex
	nextID int
	closed bool

	buildCalls []types.ImageBuildOptions
	buildBody  string
	buildErr   error
	pullCalls  []string
	images     []image.Summary

	createCalls []createCall
	createErr   error
	createHooks []func(string)
	startCalls  []string
	startErr    error
	stopCalls   []stopCall
	removeCalls []removeCall
	containers  []types.Container
	inspect     map[string]types.ContainerJSON
	logs        map[string][]byte
	attach      map[string]types.HijackedResponse
	waitCalls   map[string][]waitCall

	networks       []network.Summary
	networkCreates []string
	networkRemoves []string

	volumes       []*volume.Volume
	volumeRemoves []string
}

type createCall struct {
	id         string
	name       string
	config     *container.Config
	hostConfig *container.HostConfig
	networking *network.NetworkingConfig
}

type stopCall struct {
	id      string
	timeout *int
}

type removeCall struct {
	id    string
	force bool
}

type waitCall struct {
	status *container.WaitResponse
	err    error
	block  bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		buildBody: `{"stream":"build ok\n"}`,
		inspect:   make(map[string]types.ContainerJSON),
		logs:      make(map[string][]byte),
		attach:    make(map[string]types.HijackedResponse),
		waitCalls: make(map[string][]waitCall),
	}
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, nil
}

func (f *fakeEngine) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	// Drain the context tar the way the daemon would.
	if _, err := io.Copy(io.Discard, buildContext); err != nil {
		return types.ImageBuildResponse{}, err
	}
	f.mu.Lock()
	f.buildCalls = append(f.buildCalls, options)
	body, err := f.buildBody, f.buildErr
	f.mu.Unlock()
	if err != nil {
		return types.ImageBuildResponse{}, err
	}
	return types.ImageBuildResponse{Body: io.NopCloser(bytes.NewReader([]byte(body)))}, nil
}

func (f *fakeEngine) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	f.pullCalls = append(f.pullCalls, ref)
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeEngine) ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images, nil
}

func (f *fakeEngine) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	if f.createErr != nil {
		err := f.createErr
		f.mu.Unlock()
		return container.CreateResponse{}, err
	}
	id := fmt.Sprintf("container-%d", f.nextID)
	f.nextID++
	f.createCalls = append(f.createCalls, createCall{
		id:         id,
		name:       containerName,
		config:     config,
		hostConfig: hostConfig,
		networking: networkingConfig,
	})
	hook := popHook(&f.createHooks)
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}

	return container.CreateResponse{ID: id}, nil
}

func (f *fakeEngine) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.startCalls = append(f.startCalls, containerID)
	return nil
}

func (f *fakeEngine) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.mu.Lock()
	f.stopCalls = append(f.stopCalls, stopCall{id: containerID, timeout: options.Timeout})
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	f.removeCalls = append(f.removeCalls, removeCall{id: containerID, force: options.Force})
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers, nil
}

func (f *fakeEngine) ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.inspect[containerID]; ok {
		return info, nil
	}
	return types.ContainerJSON{}, fmt.Errorf("no such container: %s", containerID)
}

func (f *fakeEngine) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	data := f.logs[containerID]
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeEngine) ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error) {
	f.mu.Lock()
	resp := f.attach[containerID]
	f.mu.Unlock()
	return resp, nil
}

func (f *fakeEngine) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)

	f.mu.Lock()
	calls := f.waitCalls[containerID]
	if len(calls) > 0 {
		call := calls[0]
		f.waitCalls[containerID] = calls[1:]
		f.mu.Unlock()

		if call.block {
			return statusCh, errCh
		}
		if call.status != nil {
			statusCh <- *call.status
		}
		if call.err != nil {
			errCh <- call.err
		}
		return statusCh, errCh
	}
	f.mu.Unlock()

	// Default to a clean exit.
	statusCh <- container.WaitResponse{StatusCode: 0}
	return statusCh, errCh
}

func (f *fakeEngine) NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("network-%d", f.nextID)
	f.nextID++
	f.networkCreates = append(f.networkCreates, name)
	f.networks = append(f.networks, network.Summary{ID: id, Name: name})
	return network.CreateResponse{ID: id}, nil
}

func (f *fakeEngine) NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.networks, nil
}

func (f *fakeEngine) NetworkRemove(ctx context.Context, networkID string) error {
	f.mu.Lock()
	f.networkRemoves = append(f.networkRemoves, networkID)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return volume.ListResponse{Volumes: f.volumes}, nil
}

func (f *fakeEngine) VolumeRemove(ctx context.Context, volumeID string, force bool) error {
	f.mu.Lock()
	f.volumeRemoves = append(f.volumeRemoves, volumeID)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) setLogs(containerID string, stdout, stderr string) {
	var buf bytes.Buffer
	if stdout != "" {
		w := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
		_, _ = w.Write([]byte(stdout))
	}
	if stderr != "" {
		w := stdcopy.NewStdWriter(&buf, stdcopy.Stderr)
		_, _ = w.Write([]byte(stderr))
	}
	f.mu.Lock()
	f.logs[containerID] = buf.Bytes()
	f.mu.Unlock()
}

// setRawLogs stores an unframed log stream, as produced by TTY
// containers.
func (f *fakeEngine) setRawLogs(containerID string, data []byte) {
	f.mu.Lock()
	f.logs[containerID] = data
	f.mu.Unlock()
}

func (f *fakeEngine) setInspect(containerID string, info types.ContainerJSON) {
	f.mu.Lock()
	f.inspect[containerID] = info
	f.mu.Unlock()
}

func (f *fakeEngine) setWaitSequence(containerID string, calls ...waitCall) {
	f.mu.Lock()
	f.waitCalls[containerID] = append([]waitCall{}, calls...)
	f.mu.Unlock()
}

func (f *fakeEngine) lastCreate() createCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createCalls) == 0 {
		return createCall{}
	}
	return f.createCalls[len(f.createCalls)-1]
}

func popHook(hooks *[]func(string)) func(string) {
	if len(*hooks) == 0 {
		return nil
	}
	hook := (*hooks)[0]
	*hooks = (*hooks)[1:]
	return hook
}
