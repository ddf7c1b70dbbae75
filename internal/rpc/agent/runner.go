package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scribepatch/scribepatch/internal/agent"
	"github.com/scribepatch/scribepatch/internal/observability"
	"github.com/scribepatch/scribepatch/internal/rpc"
)

// emptyTranscriptSummary is returned without consulting the model when the
// request carries no conversation at all.
const emptyTranscriptSummary = "No conversations were recorded, so there are no changes to propose."

// Runner executes a generation request and yields streamed events.
type Runner interface {
	Run(ctx context.Context, req rpc.GenerateRequest) (<-chan rpc.GenerateEvent, error)
}

// PatchGenerator produces a Generation from one request.
type PatchGenerator interface {
	Generate(ctx context.Context, req agent.Request) (*agent.Generation, error)
}

// GenerateRunner bridges the agent generator to RPC events.
type GenerateRunner struct {
	Generator PatchGenerator
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// Run executes the pipeline and emits progress, summary, and per-file
// patch events. The returned channel is closed when the run finishes.
func (r *GenerateRunner) Run(ctx context.Context, req rpc.GenerateRequest) (<-chan rpc.GenerateEvent, error) {
	out := make(chan rpc.GenerateEvent, 16)
	go func() {
		defer close(out)
		start := time.Now()
		corr := req.CorrelationID
		if corr == "" {
			corr = req.SessionID
		}

		emit := func(ev rpc.GenerateEvent) bool {
			ev.SessionID = req.SessionID
			ev.CorrelationID = corr
			select {
			case <-ctx.Done():
				return false
			case out <- ev:
				return true
			}
		}

		if r.Generator == nil {
			emit(rpc.GenerateEvent{Type: "error", Error: "generator unavailable"})
			return
		}

		// An empty transcript never reaches the model or the repository.
		if len(req.Transcript) == 0 {
			emit(rpc.GenerateEvent{Type: "summary", Summary: emptyTranscriptSummary})
			emit(rpc.GenerateEvent{Type: "done", Done: true})
			r.Metrics.RecordGeneration("empty", time.Since(start), 0)
			return
		}

		notify := func(ev agent.Event) {
			switch ev.Kind {
			case "clone":
				emit(rpc.GenerateEvent{Type: "message", Message: fmt.Sprintf("cloning %s", ev.Detail)})
			case "iteration":
				emit(rpc.GenerateEvent{Type: "message", Message: fmt.Sprintf("model round %d", ev.Iteration), Iteration: ev.Iteration})
			case "tool":
				r.Metrics.RecordToolCall(ev.Tool)
				emit(rpc.GenerateEvent{Type: "tool", ToolName: ev.Tool, Iteration: ev.Iteration})
			}
		}

		gen, err := r.Generator.Generate(ctx, agent.Request{
			Repo:       req.Repo,
			Transcript: req.Transcript,
			Model:      req.Model,
			Notify:     notify,
		})
		if err != nil {
			r.logf("generation failed (session=%s): %v", req.SessionID, err)
			emit(rpc.GenerateEvent{Type: "error", Error: err.Error()})
			r.Metrics.RecordGeneration("error", time.Since(start), 0)
			return
		}

		emit(rpc.GenerateEvent{Type: "summary", Summary: gen.Summary, Degraded: gen.Degraded})
		for _, fp := range gen.Files {
			if !emit(rpc.GenerateEvent{Type: "patch", Filename: fp.Filename, Patch: fp.Patch}) {
				return
			}
		}
		emit(rpc.GenerateEvent{Type: "done", Done: true, Iteration: gen.Iterations})

		outcome := "ok"
		if gen.Degraded {
			outcome = "degraded"
		}
		r.Metrics.RecordGeneration(outcome, time.Since(start), gen.Iterations)
	}()
	return out, nil
}

func (r *GenerateRunner) logf(format string, args ...interface{}) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Sugar().Infof(format, args...)
}
