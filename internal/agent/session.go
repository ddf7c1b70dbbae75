package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scribepatch/scribepatch/internal/config"
	"github.com/scribepatch/scribepatch/internal/llm"
)

// sessionState names the loop's position in the request/execute cycle.
type sessionState int

const (
	stateAwaitingModel sessionState = iota
	stateExecutingTools
	stateDone
	stateFailed
)

// Session runs the bounded request/tool-execute/continue loop for one
// invocation. The message log is append-only: no message is ever removed
// or reordered, and it is discarded with the session.
type Session struct {
	provider llm.Provider
	route    llm.ModelRoute
	catalog  *Catalog
	cfg      config.AgentConfig
	logger   *zap.Logger
	notify   Notifier

	state      sessionState
	messages   []llm.ChatMessage
	iterations int
}

// NewSession seeds a session with the system prompt and the formatted
// transcript as the user prompt.
func NewSession(provider llm.Provider, route llm.ModelRoute, catalog *Catalog, cfg config.AgentConfig, logger *zap.Logger, notify Notifier) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		provider: provider,
		route:    route,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger,
		notify:   notify,
		state:    stateAwaitingModel,
		messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: buildSystemPrompt()},
		},
	}
}

// Run drives the loop until the model produces a non-tool-call answer or
// the iteration bound is hit, and returns the final answer content.
func (s *Session) Run(ctx context.Context, transcript []TranscriptEntry) (string, error) {
	s.messages = append(s.messages, llm.ChatMessage{
		Role:    llm.RoleUser,
		Content: buildUserPrompt(transcript),
	})

	maxIterations := s.cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 10
	}

	for round := 1; round <= maxIterations; round++ {
		s.iterations = round
		if err := ctx.Err(); err != nil {
			s.state = stateFailed
			return "", fmt.Errorf("generation cancelled: %w", err)
		}

		s.notify.emit(Event{Kind: "iteration", Iteration: s.iterations})

		resp, err := s.provider.Chat(ctx, llm.ChatRequest{
			Model:       s.route.Model,
			Messages:    s.messages,
			Tools:       s.catalog.Definitions(),
			MaxTokens:   pickMaxTokens(s.route.MaxTokens, s.cfg.MaxTokens),
			Temperature: pickTemperature(s.route.Temperature, s.cfg.Temperature),
			ForceJSON:   s.cfg.ForceJSON,
		})
		if err != nil {
			s.state = stateFailed
			return "", fmt.Errorf("model call: %w", err)
		}

		s.messages = append(s.messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			s.state = stateDone
			s.notify.emit(Event{Kind: "answer", Iteration: s.iterations})
			return resp.Message.Content, nil
		}

		s.state = stateExecutingTools
		s.logger.Debug("executing tool calls",
			zap.Int("iteration", s.iterations),
			zap.Int("count", len(resp.Message.ToolCalls)))

		results := s.catalog.DispatchAll(ctx, resp.Message.ToolCalls)
		for i, msg := range results {
			s.messages = append(s.messages, msg)
			s.notify.emit(Event{
				Kind:      "tool",
				Tool:      resp.Message.ToolCalls[i].Function.Name,
				Detail:    msg.Content,
				Iteration: s.iterations,
			})
		}
		s.state = stateAwaitingModel
	}

	s.state = stateFailed
	return "", fmt.Errorf("%w (limit %d)", ErrIterationsExceeded, maxIterations)
}

// Iterations reports how many model rounds the session consumed.
func (s *Session) Iterations() int {
	return s.iterations
}

// Messages exposes the append-only log, mainly for tests.
func (s *Session) Messages() []llm.ChatMessage {
	return s.messages
}

func pickTemperature(routeTemp, agentTemp float64) float64 {
	if routeTemp > 0 {
		return routeTemp
	}
	return agentTemp
}

func pickMaxTokens(routeMax, agentMax int) int {
	if routeMax > 0 {
		return routeMax
	}
	return agentMax
}
