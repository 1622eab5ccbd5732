// Package sandbox builds and runs isolated, resource-constrained execution
// units for untrusted tool code. The only input channel to a unit is a single
// JSON argument; the only output channels are its exit code, stdout and
// stderr. Units are always force-removed on the way out.
package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/docker/go-units"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
	"github.com/praxis-sh/praxis/internal/observability"
)

// SourceHashLabel is the image label carrying the content hash of the tool
// source the image was built from. Staleness checks compare it against the
// current hash.
const SourceHashLabel = "praxis.source_hash"

var jsonFast = jsoniter.ConfigCompatibleWithStandardLibrary

// Substrate executes sandboxed tools through a container Runtime.
type Substrate struct {
	rt     Runtime
	cfg    config.SandboxConfig
	logger *zap.Logger
}

// New wires a substrate to a runtime. The runtime is constructed once at
// process startup and shared; the substrate itself is stateless.
func New(rt Runtime, cfg config.SandboxConfig, logger *zap.Logger) *Substrate {
	return &Substrate{
		rt:     rt,
		cfg:    cfg,
		logger: logger.Named("sandbox"),
	}
}

// ImageExists reports whether the manifest's image is present in the engine.
func (s *Substrate) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, err := s.rt.ImageLabels(ctx, ref)
	if err == ErrImageNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureBuilt makes the manifest's image present and current. The build is
// idempotent: keyed by the content hash of the tool source, it only runs when
// the image is missing or its embedded hash label no longer matches.
func (s *Substrate) EnsureBuilt(ctx context.Context, m *schemas.ToolManifest, sourceDir string) error {
	if err := m.Validate(); err != nil {
		return err
	}

	hash := m.SourceHash
	if hash == "" {
		computed, err := HashDir(sourceDir)
		if err != nil {
			return fmt.Errorf("hashing tool source for %s: %w", m.Name, err)
		}
		hash = computed
	}

	labels, err := s.rt.ImageLabels(ctx, m.Image)
	switch {
	case err == ErrImageNotFound:
		// Fall through to build.
	case err != nil:
		return err
	case labels[SourceHashLabel] == hash:
		return nil
	default:
		s.logger.Info("Tool image is stale, rebuilding",
			zap.String("tool", m.Name),
			zap.String("image", m.Image),
			zap.String("built_hash", labels[SourceHashLabel]),
			zap.String("source_hash", hash))
	}

	if err := s.rt.BuildImage(ctx, sourceDir, m.Image, map[string]string{SourceHashLabel: hash}); err != nil {
		return fmt.Errorf("building tool image %s: %w", m.Image, err)
	}
	s.logger.Info("Tool image built", zap.String("tool", m.Name), zap.String("image", m.Image))
	return nil
}

// Run executes the manifest's image against a JSON payload under the
// manifest's constraints and a hard wall-clock timeout. On success it returns
// the unit's stdout parsed as JSON. On timeout the unit is force-killed and
// ErrTimeout returned. The unit is removed on every path.
func (s *Substrate) Run(ctx context.Context, m *schemas.ToolManifest, payload any, timeout time.Duration) (json.RawMessage, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	arg, err := jsonFast.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serializing payload for %s: %w", m.Name, err)
	}

	memory := m.Sandbox.Memory
	if memory == "" {
		memory = s.cfg.DefaultMemory
	}
	memBytes, err := units.RAMInBytes(memory)
	if err != nil {
		return nil, fmt.Errorf("tool manifest %q: bad memory limit %q: %w", m.Name, memory, err)
	}

	spec := ContainerSpec{
		Image:          m.Image,
		Cmd:            []string{string(arg)},
		Labels:         map[string]string{"praxis.tool": m.Name},
		MemoryBytes:    memBytes,
		PidsLimit:      s.cfg.PidsLimit,
		NetworkMode:    string(m.EffectiveNetwork()),
		ReadOnlyRootfs: !m.Sandbox.Writable,
	}

	id, err := s.rt.CreateContainer(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("creating execution unit for %s: %w", m.Name, err)
	}
	defer s.reap(id, m.Name)

	if err := s.rt.StartContainer(ctx, id); err != nil {
		return nil, fmt.Errorf("starting execution unit for %s: %w", m.Name, err)
	}

	// Wait on a separate monitoring path so this goroutine is never blocked
	// past the timeout, whatever the unit does.
	exitCh, errCh := s.rt.WaitContainer(ctx, id)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var exit ContainerExit
	select {
	case exit = <-exitCh:
	case err := <-errCh:
		observability.SandboxRuns.WithLabelValues("wait_error").Inc()
		return nil, fmt.Errorf("waiting on execution unit for %s: %w", m.Name, err)
	case <-timer.C:
		s.kill(id, m.Name)
		observability.SandboxRuns.WithLabelValues("timeout").Inc()
		return nil, ErrTimeout
	case <-ctx.Done():
		s.kill(id, m.Name)
		observability.SandboxRuns.WithLabelValues("timeout").Inc()
		return nil, ErrTimeout
	}

	stdout, stderr, err := s.rt.ContainerOutput(context.WithoutCancel(ctx), id)
	if err != nil {
		observability.SandboxRuns.WithLabelValues("output_error").Inc()
		return nil, fmt.Errorf("reading output of %s: %w", m.Name, err)
	}

	if exit.StatusCode != 0 {
		observability.SandboxRuns.WithLabelValues("failed").Inc()
		return nil, &ExecutionFailedError{
			ExitCode:   exit.StatusCode,
			StderrTail: tail(string(stderr), s.cfg.StderrTailChars),
		}
	}

	if len(stdout) > s.cfg.StdoutCapBytes {
		stdout = stdout[:s.cfg.StdoutCapBytes]
	}
	if !json.Valid(stdout) {
		observability.SandboxRuns.WithLabelValues("invalid_output").Inc()
		return nil, &InvalidOutputError{Detail: fmt.Sprintf("tool %s wrote %d bytes of non-JSON output", m.Name, len(stdout))}
	}

	observability.SandboxRuns.WithLabelValues("success").Inc()
	return json.RawMessage(stdout), nil
}

// kill force-terminates a running unit after a timeout. Removal still happens
// in reap.
func (s *Substrate) kill(id, tool string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.rt.KillContainer(ctx, id); err != nil {
		s.logger.Warn("Failed to kill timed-out execution unit",
			zap.String("tool", tool), zap.String("container_id", id), zap.Error(err))
	}
}

// reap guarantees cleanup of the execution unit, success or failure. A unit
// that cannot be reclaimed is the engine's one fatal-class condition: logged
// at the highest severity and counted, but the request path is not blocked.
func (s *Substrate) reap(id, tool string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.rt.RemoveContainer(ctx, id); err != nil {
		observability.SandboxKillFailures.Inc()
		s.logger.Error("CRITICAL: failed to remove execution unit, resource may be leaked",
			zap.String("tool", tool), zap.String("container_id", id), zap.Error(err))
	}
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

// HashDir computes a deterministic content hash over a tool source directory:
// every regular file's relative path and bytes, in sorted path order.
func HashDir(dir string) (string, error) {
	h := sha256.New()

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(paths)

	for _, p := range paths {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return "", err
		}
		io.WriteString(h, rel)
		h.Write([]byte{0})
		f, err := os.Open(p)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", err
		}
		f.Close()
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
