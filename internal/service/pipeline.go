package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/inference"
	"github.com/cloo-solutions/procminer/internal/media"
	"github.com/cloo-solutions/procminer/internal/metrics"
	"github.com/cloo-solutions/procminer/internal/storage"
	"github.com/cloo-solutions/procminer/internal/telemetry"
)

// KnowledgeStore is append-only versioned persistence keyed by identity
type KnowledgeStore interface {
	SaveNextVersion(ctx context.Context, id domain.Identity, text string, processingSeconds float64) (string, error)
	ListAll(ctx context.Context) ([]domain.DocumentInfo, error)
	Read(ctx context.Context, locator string) (string, bool, error)
	LoadLatest(ctx context.Context, id domain.Identity) (string, bool, error)
	ListKnownIdentifiers(ctx context.Context) ([]string, error)
}

// Status reports whether a request started a new entry or extended one
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
)

const (
	modeStandard = "standard"
	modeSession  = "session"
)

// Request is one batch of evidence persisted to scratch storage
type Request struct {
	ID       string
	Evidence []domain.EvidenceArtifact
	// Notes maps an attachment filename to free text supplied with it.
	Notes     map[string]string
	SessionID string
	// ScratchDir receives chunk files. When empty a temporary directory is
	// created and removed by Process.
	ScratchDir string
}

// Result is the filed document
type Result struct {
	SOP               string
	Identity          domain.Identity
	Status            Status
	Locator           string
	ProcessingSeconds float64
	Session           bool
	FanIn             FanInStatus
}

// PipelineDeps are the collaborators of a Pipeline
type PipelineDeps struct {
	// Inference analyses evidence and, unless Text is set, also merges and routes.
	Inference  inference.Client
	Text       inference.Generator
	Transcoder media.Transcoder
	Store      KnowledgeStore
	// StoreBackend labels store metrics.
	StoreBackend string
	Prompts      *Prompts
	Metrics      *metrics.Metrics
}

// PipelineConfig tunes segmentation, readiness and concurrency
type PipelineConfig struct {
	ChunkSeconds       float64
	PollInterval       time.Duration
	ReadinessTimeout   time.Duration
	MaxConcurrentUnits int
}

// Pipeline turns evidence into a versioned SOP
type Pipeline struct {
	segmenter    *Segmenter
	gate         *ReadinessGate
	analyzer     *UnitAnalyzer
	orchestrator *Orchestrator
	reducer      *Reducer
	router       *Router
	store        KnowledgeStore
	backend      string
	metrics      *metrics.Metrics
}

// NewPipeline wires the pipeline stages
func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	text := deps.Text
	if text == nil {
		text = deps.Inference
	}

	gate := NewReadinessGate(deps.Inference, GateConfig{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.ReadinessTimeout,
		Metrics:      deps.Metrics,
	})
	reducer := NewReducer(text, deps.Prompts, deps.Metrics)
	analyzer := NewUnitAnalyzer(deps.Inference, gate, deps.Prompts, deps.Metrics)

	return &Pipeline{
		segmenter:    NewSegmenter(deps.Transcoder, cfg.ChunkSeconds),
		gate:         gate,
		analyzer:     analyzer,
		orchestrator: NewOrchestrator(analyzer, reducer, cfg.MaxConcurrentUnits),
		reducer:      reducer,
		router:       NewRouter(text, deps.Prompts, deps.Metrics),
		store:        deps.Store,
		backend:      deps.StoreBackend,
		metrics:      deps.Metrics,
	}
}

// Process runs the request end to end. Unit failures are absorbed; every
// other failure aborts the request.
func (p *Pipeline) Process(ctx context.Context, req Request) (result *Result, err error) {
	if len(req.Evidence) == 0 {
		return nil, domain.ErrNoEvidence
	}

	start := time.Now()
	mode := modeStandard
	if req.SessionID != "" {
		mode = modeSession
	}

	ctx, span := telemetry.StartSpan(ctx, "pipeline.process", telemetry.SpanAttributes{
		RequestID: req.ID,
		Stage:     mode,
		Units:     len(req.Evidence),
	})
	defer span.End()
	defer func() {
		status := "failed"
		if err != nil {
			span.SetError(err)
		} else {
			status = string(result.Status)
		}
		p.metrics.RequestFinished(mode, status, time.Since(start))
	}()

	scratch := req.ScratchDir
	if scratch == "" {
		dir, err := os.MkdirTemp("", "procminer-")
		if err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
		defer os.RemoveAll(dir)
		scratch = dir
	}

	log.Printf("pipeline: request %s: %d files, mode=%s", req.ID, len(req.Evidence), mode)

	raw, fanIn, err := p.analyze(ctx, req, scratch)
	if err != nil {
		return nil, err
	}
	elapsed := math.Round(time.Since(start).Seconds()*100) / 100

	if mode == modeSession {
		result, err = p.fileSession(ctx, req.SessionID, raw, elapsed)
	} else {
		result, err = p.file(ctx, raw, elapsed)
	}
	if err != nil {
		return nil, err
	}

	result.FanIn = fanIn
	span.SetTag("organization", result.Identity.Organization)
	span.SetTag("process", result.Identity.Process)
	log.Printf("pipeline: request %s %s %s as %s", req.ID, result.Status, result.Identity, result.Locator)
	return result, nil
}

func (p *Pipeline) analyze(ctx context.Context, req Request, scratch string) (string, FanInStatus, error) {
	var videos, documents []domain.EvidenceArtifact
	for _, e := range req.Evidence {
		if e.IsVideo() {
			videos = append(videos, e)
		} else {
			documents = append(documents, e)
		}
	}

	gateCtx, gateSpan := telemetry.StartSpan(ctx, "pipeline.gate", telemetry.SpanAttributes{RequestID: req.ID, Stage: "gate", Units: len(documents)})
	shared, err := p.gate.Register(gateCtx, documents...)
	gateSpan.End()
	if err != nil {
		return "", "", err
	}
	defer p.gate.Release(ctx, shared...)

	notes := RenderContext(req.Notes)
	if len(videos) == 0 {
		log.Printf("pipeline: request %s has no video, analysing %d documents", req.ID, len(shared))
		text, err := p.analyzer.AnalyzeDocuments(ctx, shared, notes)
		if err != nil {
			return "", "", err
		}
		return text, FanInDocumentsOnly, nil
	}

	segCtx, segSpan := telemetry.StartSpan(ctx, "pipeline.segment", telemetry.SpanAttributes{RequestID: req.ID, Stage: "segment", Units: len(videos)})
	perVideo := make([][]domain.AnalysisUnit, 0, len(videos))
	for i, v := range videos {
		units, err := p.segmenter.Split(segCtx, v, filepath.Join(scratch, fmt.Sprintf("chunks_%d", i+1)))
		if err != nil {
			segSpan.SetError(err)
			segSpan.End()
			return "", "", err
		}
		for j := range units {
			units[j].Context = notes
		}
		perVideo = append(perVideo, units)
	}
	segSpan.End()

	units := Sequence(perVideo)
	runCtx, runSpan := telemetry.StartSpan(ctx, "pipeline.orchestrate", telemetry.SpanAttributes{RequestID: req.ID, Stage: "orchestrate", Units: len(units)})
	defer runSpan.End()

	out, err := p.orchestrator.Run(runCtx, units, shared)
	if err != nil {
		runSpan.SetError(err)
		return "", "", err
	}
	return out.Text, out.Status, nil
}

// file routes a standard-mode document and saves it, merging with the latest
// stored version of the chosen identity when one exists.
func (p *Pipeline) file(ctx context.Context, raw string, elapsed float64) (*Result, error) {
	merged := domain.ExtractIdentity(raw)
	if !merged.Extracted {
		log.Printf("pipeline: no identity block found, using %s", merged.Identity)
	}

	known, err := p.store.ListKnownIdentifiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list known identifiers: %w", err)
	}

	routeCtx, span := telemetry.StartSpan(ctx, "pipeline.route", telemetry.SpanAttributes{Stage: "route"})
	decision := p.router.Route(routeCtx, merged.Identity, merged.Body, known)
	span.End()

	return p.persist(ctx, decision.Identity, merged.Body, elapsed)
}

// fileSession extends the session's own entry; sessions are never routed.
func (p *Pipeline) fileSession(ctx context.Context, sessionID, raw string, elapsed float64) (*Result, error) {
	body := domain.ExtractIdentity(raw).Body
	result, err := p.persist(ctx, domain.SessionIdentity(sessionID), body, elapsed)
	if err != nil {
		return nil, err
	}
	result.Session = true
	return result, nil
}

func (p *Pipeline) persist(ctx context.Context, id domain.Identity, body string, elapsed float64) (*Result, error) {
	previous, found, err := p.store.LoadLatest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load latest %s: %w", id, err)
	}

	final, status := body, StatusCreated
	if found {
		log.Printf("pipeline: existing version of %s found, merging", id)
		mergeCtx, span := telemetry.StartSpan(ctx, "pipeline.merge_update", telemetry.SpanAttributes{
			Stage:        "merge_update",
			Organization: id.Organization,
			Process:      id.Process,
		})
		final, err = p.reducer.MergeUpdate(mergeCtx, previous, body)
		span.End()
		if err != nil {
			return nil, err
		}
		status = StatusUpdated
	}

	locator, err := p.save(ctx, id, final, elapsed)
	if err != nil {
		return nil, err
	}

	return &Result{
		SOP:               final,
		Identity:          id,
		Status:            status,
		Locator:           locator,
		ProcessingSeconds: elapsed,
	}, nil
}

func (p *Pipeline) save(ctx context.Context, id domain.Identity, text string, elapsed float64) (string, error) {
	locator, err := p.store.SaveNextVersion(ctx, id, text, elapsed)
	switch {
	case errors.Is(err, domain.ErrVersionConflict):
		p.metrics.Saved(p.backend, metrics.OutcomeConflict)
		return "", err
	case err != nil:
		p.metrics.Saved(p.backend, metrics.OutcomeFailed)
		var de *domain.DomainError
		if errors.As(err, &de) {
			return "", err
		}
		return "", domain.ErrStoreWrite.Wrap(err)
	case locator == storage.DegradedLocator:
		p.metrics.Saved(p.backend, metrics.OutcomeDegraded)
	default:
		p.metrics.Saved(p.backend, metrics.OutcomeOK)
	}
	return locator, nil
}
