package agent

import (
	"errors"

	"github.com/scribepatch/scribepatch/internal/patch"
)

// ErrIterationsExceeded reports that the model never produced a final
// answer within the configured iteration bound.
var ErrIterationsExceeded = errors.New("agent exceeded maximum iterations")

// TranscriptEntry is one chronological record of the recorded conversation.
type TranscriptEntry struct {
	Timestamp string `json:"timestamp,omitempty"`
	Username  string `json:"username"`
	Text      string `json:"text"`
}

// RepoView is the read-only repository surface exposed to the tool catalog.
type RepoView interface {
	ListFiles() ([]string, error)
	ReadFile(path string) (string, error)
}

// GenerationResult is the contract the model must return as its final
// answer: a summary plus the full proposed content of each changed file.
type GenerationResult struct {
	Summary string             `json:"summary"`
	Files   []patch.FileChange `json:"files"`
}

// Outcome tags a parse attempt: either a valid GenerationResult or a
// degraded one built from the raw text.
type Outcome struct {
	Result   GenerationResult
	Degraded bool
}

// Generation is the final product of one invocation.
type Generation struct {
	Summary    string
	Files      []patch.FilePatch
	Degraded   bool
	Iterations int
}

// Event reports loop progress to an optional observer.
type Event struct {
	Kind      string // clone|iteration|tool|answer
	Tool      string
	Detail    string
	Iteration int
}

// Notifier receives progress events; nil notifiers are ignored.
type Notifier func(Event)

func (n Notifier) emit(e Event) {
	if n != nil {
		n(e)
	}
}
