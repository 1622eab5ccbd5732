package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
)

func testSandboxConfig() config.SandboxConfig {
	return config.SandboxConfig{
		DefaultMemory:   "256m",
		PidsLimit:       64,
		StdoutCapBytes:  20000,
		StderrTailChars: 300,
	}
}

func testManifest() *schemas.ToolManifest {
	return &schemas.ToolManifest{
		Name:       "web_search",
		Image:      "praxis-tool-web-search:latest",
		SourceHash: "abc123",
		Sandbox:    schemas.SandboxSpec{Memory: "256m", Network: schemas.NetworkBridge},
	}
}

// fakeRuntime is an in-memory Runtime for driving the substrate through
// every outcome without a container engine.
type fakeRuntime struct {
	mu sync.Mutex

	images map[string]map[string]string // ref -> labels
	builds int

	exitCode      int64
	runFor        time.Duration // how long the unit "runs" before exiting
	stdout        []byte
	stderr        []byte
	createErr     error
	createBlocked bool // CreateContainer hangs until the context is done
	waitErr       error

	created   []ContainerSpec
	killed    []string
	removed   []string
	removeErr error
}

var _ Runtime = (*fakeRuntime)(nil)

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{images: make(map[string]map[string]string)}
}

func (f *fakeRuntime) ImageLabels(ctx context.Context, ref string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	labels, ok := f.images[ref]
	if !ok {
		return nil, ErrImageNotFound
	}
	return labels, nil
}

func (f *fakeRuntime) BuildImage(ctx context.Context, contextDir, ref string, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	f.images[ref] = labels
	return nil
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	if f.createBlocked {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, spec)
	return "unit-1", nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, id string) error { return nil }

func (f *fakeRuntime) WaitContainer(ctx context.Context, id string) (<-chan ContainerExit, <-chan error) {
	exitCh := make(chan ContainerExit, 1)
	errCh := make(chan error, 1)
	go func() {
		if f.waitErr != nil {
			errCh <- f.waitErr
			return
		}
		if f.runFor > 0 {
			select {
			case <-time.After(f.runFor):
			case <-ctx.Done():
				return
			}
		}
		exitCh <- ContainerExit{StatusCode: f.exitCode}
	}()
	return exitCh, errCh
}

func (f *fakeRuntime) ContainerOutput(ctx context.Context, id string) ([]byte, []byte, error) {
	return f.stdout, f.stderr, nil
}

func (f *fakeRuntime) KillContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, id)
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return f.removeErr
}

func (f *fakeRuntime) snapshot() (killed, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.killed...), append([]string(nil), f.removed...)
}

func TestRun_SuccessParsesJSONAndCleansUp(t *testing.T) {
	rt := newFakeRuntime()
	rt.stdout = []byte(`{"answer": 42}`)
	s := New(rt, testSandboxConfig(), zaptest.NewLogger(t))

	out, err := s.Run(context.Background(), testManifest(), map[string]any{"q": "meaning"}, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer": 42}`, string(out))

	_, removed := rt.snapshot()
	assert.Equal(t, []string{"unit-1"}, removed, "unit removed on success")
}

func TestRun_ConstraintsFromManifest(t *testing.T) {
	rt := newFakeRuntime()
	rt.stdout = []byte(`{}`)
	s := New(rt, testSandboxConfig(), zaptest.NewLogger(t))

	m := testManifest()
	m.Sandbox.Writable = false
	m.Sandbox.Network = schemas.NetworkNone

	_, err := s.Run(context.Background(), m, "payload", time.Second)
	require.NoError(t, err)

	require.Len(t, rt.created, 1)
	spec := rt.created[0]
	assert.Equal(t, int64(256*1024*1024), spec.MemoryBytes)
	assert.Equal(t, int64(64), spec.PidsLimit)
	assert.Equal(t, "none", spec.NetworkMode)
	assert.True(t, spec.ReadOnlyRootfs, "rootfs read-only unless manifest requests writability")
	require.Len(t, spec.Cmd, 1, "payload travels as a single argument")
	assert.JSONEq(t, `"payload"`, spec.Cmd[0])
}

func TestRun_TimeoutKillsUnitButNotImage(t *testing.T) {
	rt := newFakeRuntime()
	rt.images["praxis-tool-web-search:latest"] = map[string]string{SourceHashLabel: "abc123"}
	rt.runFor = 15 * time.Second
	s := New(rt, testSandboxConfig(), zaptest.NewLogger(t))

	start := time.Now()
	_, err := s.Run(context.Background(), testManifest(), "x", 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second, "caller must not block past the bound")

	killed, removed := rt.snapshot()
	assert.Equal(t, []string{"unit-1"}, killed, "timed-out unit force-killed")
	assert.Equal(t, []string{"unit-1"}, removed, "timed-out unit reaped")

	exists, err := s.ImageExists(context.Background(), "praxis-tool-web-search:latest")
	require.NoError(t, err)
	assert.True(t, exists, "only the execution unit is killed, never the image")
}

func TestRun_DeadlineCoversEngineCallsBeforeTheWait(t *testing.T) {
	rt := newFakeRuntime()
	rt.createBlocked = true
	s := New(rt, testSandboxConfig(), zaptest.NewLogger(t))

	// Callers bound the whole interaction with a context deadline; a wedged
	// create call must respect it rather than hold the caller hostage.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Run(ctx, testManifest(), "x", 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "caller must not block past the bound")
}

func TestRun_NonZeroExitCarriesBoundedStderrTail(t *testing.T) {
	rt := newFakeRuntime()
	rt.exitCode = 2
	rt.stderr = []byte(strings.Repeat("e", 1000) + "TAIL")
	s := New(rt, testSandboxConfig(), zaptest.NewLogger(t))

	_, err := s.Run(context.Background(), testManifest(), "x", time.Second)
	var execErr *ExecutionFailedError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, int64(2), execErr.ExitCode)
	assert.Len(t, execErr.StderrTail, 300)
	assert.True(t, strings.HasSuffix(execErr.StderrTail, "TAIL"), "tail keeps the end of stderr")

	_, removed := rt.snapshot()
	assert.Len(t, removed, 1, "unit removed on failure too")
}

func TestRun_InvalidJSONOutput(t *testing.T) {
	rt := newFakeRuntime()
	rt.stdout = []byte("this is not json")
	s := New(rt, testSandboxConfig(), zaptest.NewLogger(t))

	_, err := s.Run(context.Background(), testManifest(), "x", time.Second)
	var invalidErr *InvalidOutputError
	require.ErrorAs(t, err, &invalidErr)
}

func TestRun_StdoutCapped(t *testing.T) {
	cfg := testSandboxConfig()
	cfg.StdoutCapBytes = 10
	rt := newFakeRuntime()
	// Valid JSON that the cap truncates into invalid JSON: the cap wins.
	rt.stdout = []byte(`{"data":"` + strings.Repeat("x", 100) + `"}`)
	s := New(rt, cfg, zaptest.NewLogger(t))

	_, err := s.Run(context.Background(), testManifest(), "x", time.Second)
	var invalidErr *InvalidOutputError
	require.ErrorAs(t, err, &invalidErr)
}

func TestEnsureBuilt_IdempotentOnMatchingHash(t *testing.T) {
	rt := newFakeRuntime()
	s := New(rt, testSandboxConfig(), zaptest.NewLogger(t))
	m := testManifest()

	require.NoError(t, s.EnsureBuilt(context.Background(), m, "ignored"))
	assert.Equal(t, 1, rt.builds, "missing image is built")

	require.NoError(t, s.EnsureBuilt(context.Background(), m, "ignored"))
	assert.Equal(t, 1, rt.builds, "matching hash skips the build")

	m.SourceHash = "def456"
	require.NoError(t, s.EnsureBuilt(context.Background(), m, "ignored"))
	assert.Equal(t, 2, rt.builds, "stale hash triggers rebuild")
	assert.Equal(t, "def456", rt.images[m.Image][SourceHashLabel])
}

func TestHashDir_DeterministicAndContentSensitive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print(1)"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM python:3.12-slim"), 0o644))

	h1, err := HashDir(dir)
	require.NoError(t, err)
	h2, err := HashDir(dir)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print(2)"), 0o644))
	h3, err := HashDir(dir)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "content change must change the hash")
}

func TestRun_RemoveFailureDoesNotBlockResult(t *testing.T) {
	rt := newFakeRuntime()
	rt.stdout = []byte(`{}`)
	rt.removeErr = errors.New("engine wedged")
	s := New(rt, testSandboxConfig(), zaptest.NewLogger(t))

	out, err := s.Run(context.Background(), testManifest(), "x", time.Second)
	require.NoError(t, err, "teardown failure is logged, not propagated")
	assert.NotNil(t, out)
}
