package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/executor"
	"github.com/mediarun/pipeline-runtime/pkg/noderegistry"
	"github.com/mediarun/pipeline-runtime/pkg/pipeline"
	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

func newTestRunner(t *testing.T) *pipeline.Runner {
	t.Helper()
	reg := noderegistry.New()
	require.NoError(t, noderegistry.RegisterBuiltins(reg))
	execReg := executor.NewSharedRegistry(zerologTestLogger())

	cfg := pipeline.DefaultRunnerConfig()
	cfg.UnaryTimeout = 2 * time.Second
	cfg.QueueDeadline = 50 * time.Millisecond
	return pipeline.NewRunner(reg, execReg, cfg, zerologTestLogger())
}

func TestRunnerExecuteLinearPipeline(t *testing.T) {
	m, err := pipeline.ParseManifest([]byte(linearManifest))
	require.NoError(t, err)

	r := newTestRunner(t)
	out, err := r.Execute(context.Background(), m, runtimedata.NewText("hello"))
	require.NoError(t, err)
	require.Equal(t, "hello", out.Text)
}

func TestRunnerExecuteRejectsMultiEntryManifest(t *testing.T) {
	const multiEntry = `
version: "1"
nodes:
  - id: a
    node_type: pass_through
  - id: b
    node_type: pass_through
  - id: c
    node_type: pass_through
connections:
  - from: a
    to: c
  - from: b
    to: c
`
	m, err := pipeline.ParseManifest([]byte(multiEntry))
	require.NoError(t, err)

	r := newTestRunner(t)
	_, err = r.Execute(context.Background(), m, runtimedata.NewText("x"))
	require.Error(t, err)
}

func TestRunnerExecuteDockerExecutorResolvesImageAndRunsNatively(t *testing.T) {
	const dockerManifest = `
version: "1"
nodes:
  - id: a
    node_type: pass_through
    executor_type: docker
    params:
      image: "example.org/vad:1.2.3"
connections: []
`
	m, err := pipeline.ParseManifest([]byte(dockerManifest))
	require.NoError(t, err)

	reg := noderegistry.New()
	require.NoError(t, noderegistry.RegisterBuiltins(reg))
	execReg := executor.NewSharedRegistry(zerologTestLogger())

	cfg := pipeline.DefaultRunnerConfig()
	cfg.UnaryTimeout = 2 * time.Second
	cfg.ImageCachePath = filepath.Join(t.TempDir(), "imagecache.db")
	r := pipeline.NewRunner(reg, execReg, cfg, zerologTestLogger())
	defer r.Close()

	out, err := r.Execute(context.Background(), m, runtimedata.NewText("hello"))
	require.NoError(t, err)
	require.Equal(t, "hello", out.Text)

	// Running the same manifest again must hit the now-populated cache
	// rather than erroring on a duplicate digest insert.
	out, err = r.Execute(context.Background(), m, runtimedata.NewText("again"))
	require.NoError(t, err)
	require.Equal(t, "again", out.Text)
}

func TestRunnerStreamSessionSendRecv(t *testing.T) {
	m, err := pipeline.ParseManifest([]byte(linearManifest))
	require.NoError(t, err)

	r := newTestRunner(t)
	ss, err := r.Open(context.Background(), m)
	require.NoError(t, err)
	require.True(t, ss.IsActive())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, ss.SendInput(ctx, runtimedata.NewText("frame-1")))
	out, ok := ss.RecvOutput(ctx)
	require.True(t, ok)
	require.Equal(t, "frame-1", out.Text)

	require.NoError(t, ss.Close(context.Background()))
}
