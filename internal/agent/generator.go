package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scribepatch/scribepatch/internal/config"
	"github.com/scribepatch/scribepatch/internal/llm"
	"github.com/scribepatch/scribepatch/internal/patch"
	"github.com/scribepatch/scribepatch/internal/repo"
)

// Request describes one generation invocation.
type Request struct {
	Repo       repo.Ref
	Transcript []TranscriptEntry
	Model      string // logical model name, "" = registry default
	Notify     Notifier
}

// snapshotView is the subset of repo.Snapshot the generator needs. It
// exists so tests can substitute an in-memory checkout.
type snapshotView interface {
	RepoView
	patch.Reader
	Close() error
}

// Generator wires the model registry, repository snapshots, and the patch
// builder into the end-to-end transcript-to-patches pipeline.
type Generator struct {
	registry *llm.Registry
	agentCfg config.AgentConfig
	repoCfg  config.RepoConfig
	builder  *patch.Builder
	logger   *zap.Logger

	openSnapshot func(ctx context.Context, ref repo.Ref) (snapshotView, error)
}

// NewGenerator constructs a Generator from resolved configuration.
func NewGenerator(registry *llm.Registry, agentCfg config.AgentConfig, repoCfg config.RepoConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		registry: registry,
		agentCfg: agentCfg,
		repoCfg:  repoCfg,
		builder:  patch.NewBuilder(),
		logger:   logger,
	}
	g.openSnapshot = func(ctx context.Context, ref repo.Ref) (snapshotView, error) {
		snap, err := repo.Open(ctx, ref, repo.Options{
			CloneTimeout: repoCfg.CloneTimeout,
			Depth:        repoCfg.Depth,
			WorkDir:      repoCfg.WorkDir,
			MaxFileBytes: repoCfg.MaxFileBytes,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return snap, nil
	}
	return g
}

// Generate runs the whole pipeline: resolve the model, snapshot the
// repository, drive the bounded tool loop, validate the answer, and build
// per-file patches. Model resolution and repository access failures are
// fatal; a malformed final answer degrades instead.
func (g *Generator) Generate(ctx context.Context, req Request) (*Generation, error) {
	provider, route, err := g.registry.Resolve(req.Model)
	if err != nil {
		return nil, fmt.Errorf("resolve model: %w", err)
	}

	req.Notify.emit(Event{Kind: "clone", Detail: req.Repo.URL})
	snap, err := g.openSnapshot(ctx, req.Repo)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := snap.Close(); cerr != nil {
			g.logger.Warn("snapshot close", zap.Error(cerr))
		}
	}()

	session := NewSession(provider, route, NewCatalog(snap), g.agentCfg, g.logger, req.Notify)
	raw, err := session.Run(ctx, req.Transcript)
	if err != nil {
		return nil, err
	}

	outcome := ParseOutcome(raw)
	if outcome.Degraded {
		g.logger.Warn("model answer not parseable as structured result",
			zap.Int("raw_len", len(raw)))
	}

	patches := g.builder.Build(ctx, snap, outcome.Result.Files)

	g.logger.Info("generation complete",
		zap.Int("iterations", session.Iterations()),
		zap.Int("files", len(patches)),
		zap.Bool("degraded", outcome.Degraded))

	return &Generation{
		Summary:    outcome.Result.Summary,
		Files:      patches,
		Degraded:   outcome.Degraded,
		Iterations: session.Iterations(),
	}, nil
}
