package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/inference"
	"github.com/cloo-solutions/procminer/internal/metrics"
)

// DefaultPollInterval is how often an artifact's state is re-read while it is processing
const DefaultPollInterval = 2 * time.Second

// GateConfig configures a ReadinessGate
type GateConfig struct {
	PollInterval time.Duration
	// Timeout bounds the wait per artifact; zero waits until a terminal state.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// ReadinessGate uploads evidence to the inference capability and blocks until
// it can be referenced in a generation call.
type ReadinessGate struct {
	files    inference.FileAPI
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewReadinessGate creates a ReadinessGate
func NewReadinessGate(files inference.FileAPI, cfg GateConfig) *ReadinessGate {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &ReadinessGate{
		files:    files,
		interval: cfg.PollInterval,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
	}
}

// Register uploads every artifact, then waits for each to become active. On
// failure the artifacts uploaded so far are released before returning.
func (g *ReadinessGate) Register(ctx context.Context, evidence ...domain.EvidenceArtifact) ([]*inference.Artifact, error) {
	uploaded := make([]*inference.Artifact, 0, len(evidence))
	for _, e := range evidence {
		a, err := g.upload(ctx, e.Path, e.MIMEType)
		if err != nil {
			g.Release(ctx, uploaded...)
			return nil, err
		}
		uploaded = append(uploaded, a)
	}

	ready := make([]*inference.Artifact, 0, len(uploaded))
	for _, a := range uploaded {
		active, err := g.await(ctx, a)
		if err != nil {
			g.Release(ctx, uploaded...)
			return nil, err
		}
		ready = append(ready, active)
	}
	return ready, nil
}

// Acquire registers a single file and returns a release func that is safe to defer
func (g *ReadinessGate) Acquire(ctx context.Context, path, mimeType string) (*inference.Artifact, func(), error) {
	artifacts, err := g.Register(ctx, domain.NewEvidenceArtifact(path, path, mimeType))
	if err != nil {
		return nil, func() {}, err
	}
	a := artifacts[0]
	return a, func() { g.Release(ctx, a) }, nil
}

// Release deletes artifacts from the external namespace. Failures are logged
// and swallowed; cancellation of ctx does not prevent the delete.
func (g *ReadinessGate) Release(ctx context.Context, artifacts ...*inference.Artifact) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range artifacts {
		if a == nil || a.Name == "" {
			continue
		}
		if err := g.files.Delete(ctx, a.Name); err != nil {
			log.Printf("readiness: release %s failed: %v", a.Name, err)
		}
	}
}

func (g *ReadinessGate) upload(ctx context.Context, path, mimeType string) (*inference.Artifact, error) {
	if mimeType == "" {
		mimeType = domain.GuessMIMEType(path)
	}
	a, err := g.files.Upload(ctx, path, mimeType)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	if a.DisplayName == "" {
		a.DisplayName = path
	}
	return a, nil
}

func (g *ReadinessGate) await(ctx context.Context, a *inference.Artifact) (*inference.Artifact, error) {
	start := time.Now()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	current := a
	for current.State == inference.StateProcessing {
		select {
		case <-ctx.Done():
			g.metrics.ReadinessWaited(false, time.Since(start))
			return nil, domain.ErrArtifactFailed.Wrap(fmt.Errorf("%s: %w", a.DisplayName, ctx.Err()))
		case <-ticker.C:
		}

		next, err := g.files.Status(ctx, a.Name)
		if err != nil {
			g.metrics.ReadinessWaited(false, time.Since(start))
			return nil, fmt.Errorf("poll %s: %w", a.DisplayName, err)
		}
		if next == nil {
			next = &inference.Artifact{Name: a.Name, State: inference.StateUnknown}
		}
		current = next
	}

	if current.State != inference.StateActive {
		g.metrics.ReadinessWaited(false, time.Since(start))
		return nil, domain.ErrArtifactFailed.Wrap(fmt.Errorf("%s ended in state %s", a.DisplayName, current.State))
	}

	g.metrics.ReadinessWaited(true, time.Since(start))
	if current.DisplayName == "" {
		current.DisplayName = a.DisplayName
	}
	return current, nil
}
