package deployment

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func framedStdout(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(s))
	require.NoError(t, err)
	return buf.Bytes()
}

func TestRunReturnsCommandExitCode(t *testing.T) {
	project := labProject()
	m, eng, _ := newTestManager(project)
	eng.waitCode = 3
	eng.attachOut = framedStdout(t, "hello\n")

	code, err := m.Run(context.Background(), RunOptions{Service: "bin", NoDeps: true})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "hello\n", m.stdout.(*bytes.Buffer).String())
}

func TestRunCreatesOneoffWithoutPorts(t *testing.T) {
	project := labProject()
	m, eng, _ := newTestManager(project)

	_, err := m.Run(context.Background(), RunOptions{Service: "notebook", NoDeps: true})
	require.NoError(t, err)

	created := eng.lastCreate()
	assert.True(t, created.opts.Oneoff)
	assert.False(t, created.opts.PublishPorts)
	assert.True(t, created.opts.Interactive)
	assert.False(t, created.opts.Tty)
	assert.True(t, strings.HasPrefix(created.opts.Name, "lab-notebook-run-"), created.opts.Name)
}

func TestRunPublishesServicePortsWhenAsked(t *testing.T) {
	project := labProject()
	m, eng, _ := newTestManager(project)

	_, err := m.Run(context.Background(), RunOptions{
		Service:      "notebook",
		NoDeps:       true,
		ServicePorts: true,
	})
	require.NoError(t, err)

	assert.True(t, eng.lastCreate().opts.PublishPorts)
}

func TestRunRemovesContainerAfterExit(t *testing.T) {
	project := labProject()
	m, eng, _ := newTestManager(project)

	_, err := m.Run(context.Background(), RunOptions{Service: "bin", NoDeps: true})
	require.NoError(t, err)

	created := eng.lastCreate()
	require.Len(t, eng.removes, 1)
	assert.Equal(t, created.id, eng.removes[0].id)
	assert.True(t, eng.removes[0].force)
}

func TestRunKeepsContainerWhenAsked(t *testing.T) {
	project := labProject()
	m, eng, _ := newTestManager(project)

	_, err := m.Run(context.Background(), RunOptions{Service: "bin", NoDeps: true, Keep: true})
	require.NoError(t, err)

	assert.Empty(t, eng.removes)
}

func TestRunOverridesCommand(t *testing.T) {
	project := labProject()
	m, eng, _ := newTestManager(project)

	_, err := m.Run(context.Background(), RunOptions{
		Service: "bin",
		Command: []string{"ls", "-la", "/src"},
		NoDeps:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ls", "-la", "/src"}, eng.lastCreate().opts.Command)
}

func TestRunAppendsExtraEnvironment(t *testing.T) {
	project := labProject()
	project.Services["bin"].Environment = map[string]string{"BASE": "1"}
	m, eng, _ := newTestManager(project)

	_, err := m.Run(context.Background(), RunOptions{
		Service: "bin",
		Env:     []string{"EXTRA=2"},
		NoDeps:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"BASE=1", "EXTRA=2"}, eng.lastCreate().opts.Env)
}

func TestRunDeploysDependenciesFirst(t *testing.T) {
	project := labProject()
	m, eng, _ := newTestManager(project)

	_, err := m.Run(context.Background(), RunOptions{Service: "bin"})
	require.NoError(t, err)

	names := eng.createdNames()
	require.Len(t, names, 2)
	assert.Equal(t, "lab-notebook", names[0])
	assert.True(t, strings.HasPrefix(names[1], "lab-bin-run-"), names[1])
}

func TestRunSkipsDependenciesWhenAsked(t *testing.T) {
	project := labProject()
	m, eng, _ := newTestManager(project)

	_, err := m.Run(context.Background(), RunOptions{Service: "bin", NoDeps: true})
	require.NoError(t, err)

	names := eng.createdNames()
	require.Len(t, names, 1)
	assert.True(t, strings.HasPrefix(names[0], "lab-bin-run-"), names[0])
}

func TestRunSendsStdinToContainer(t *testing.T) {
	project := labProject()
	m, eng, _ := newTestManager(project)
	m.stdin = strings.NewReader("exit\n")

	_, err := m.Run(context.Background(), RunOptions{Service: "bin", NoDeps: true})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return eng.attachConn.writtenString() == "exit\n" && eng.attachConn.writeShutdown()
	}, time.Second, 10*time.Millisecond)
}

func TestRunUnknownService(t *testing.T) {
	project := labProject()
	m, _, _ := newTestManager(project)

	_, err := m.Run(context.Background(), RunOptions{Service: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}
