// Package rpc defines the wire types shared by the daemon's transports.
package rpc

import (
	"github.com/scribepatch/scribepatch/internal/agent"
	"github.com/scribepatch/scribepatch/internal/repo"
)

// GenerateRequest is the top-level request for one transcript-to-patches run.
type GenerateRequest struct {
	SessionID     string                  `json:"session_id,omitempty"`
	CorrelationID string                  `json:"correlation_id,omitempty"`
	Model         string                  `json:"model,omitempty"`
	Repo          repo.Ref                `json:"repo"`
	Transcript    []agent.TranscriptEntry `json:"transcript"`
}

// GenerateEvent streams back progress and results from the daemon.
type GenerateEvent struct {
	Type          string `json:"type"` // message|tool|summary|patch|done|error
	SessionID     string `json:"session_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
	Done          bool   `json:"done,omitempty"`
	Iteration     int    `json:"iteration,omitempty"`
	ToolName      string `json:"tool_name,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Degraded      bool   `json:"degraded,omitempty"`
	Filename      string `json:"filename,omitempty"`
	Patch         string `json:"patch,omitempty"`
}

// GenerateStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must contain the Run payload; subsequent messages can
// carry control signals.
type GenerateStreamRequest struct {
	Run           *GenerateRequest `json:"run,omitempty"`
	Cancel        bool             `json:"cancel,omitempty"`
	SessionID     string           `json:"session_id,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
}
