package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/scribepatch/scribepatch/internal/llm"
)

// Tool names the model may invoke. The catalog is fixed: these two
// operations are the model's entire view of the repository.
const (
	ToolListRepoFiles  = "list_repo_files"
	ToolGetFileContent = "get_file_content"
)

// ToolDefinitions returns the machine-readable catalog consumed by the
// provider's function-calling mechanism.
func ToolDefinitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        ToolListRepoFiles,
				Description: "List every file in the repository as repository-relative paths, one per line.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
			},
		},
		{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        ToolGetFileContent,
				Description: "Read the content of one repository file. The path must be one previously reported by list_repo_files.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"filePath":{"type":"string","description":"Repository-relative path of the file to read"}},"required":["filePath"]}`),
			},
		},
	}
}

// Catalog dispatches tool calls against one repository view. Failures are
// captured as data in the tool result, never raised: a failed tool call is
// a recoverable step in the conversation.
type Catalog struct {
	view RepoView
}

// NewCatalog binds the catalog to a repository view.
func NewCatalog(view RepoView) *Catalog {
	return &Catalog{view: view}
}

// Definitions returns the fixed tool declarations.
func (c *Catalog) Definitions() []llm.ToolDefinition {
	return ToolDefinitions()
}

type toolResult struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Dispatch executes a single tool call and returns the tool message that
// answers it, tagged with the call's id.
func (c *Catalog) Dispatch(ctx context.Context, call llm.ToolCall) llm.ChatMessage {
	var result toolResult
	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
	} else {
		result = c.execute(call)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(`{"error":"failed to encode tool result"}`)
	}

	return llm.ChatMessage{
		Role:       llm.RoleTool,
		Name:       call.Function.Name,
		ToolCallID: call.ID,
		Content:    string(payload),
	}
}

func (c *Catalog) execute(call llm.ToolCall) toolResult {
	switch call.Function.Name {
	case ToolListRepoFiles:
		files, err := c.view.ListFiles()
		if err != nil {
			return toolResult{Error: err.Error()}
		}
		return toolResult{Content: strings.Join(files, "\n")}

	case ToolGetFileContent:
		var args struct {
			FilePath string `json:"filePath"`
		}
		if len(call.Function.Arguments) > 0 {
			if err := json.Unmarshal(call.Function.Arguments, &args); err != nil {
				return toolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}
			}
		}
		if strings.TrimSpace(args.FilePath) == "" {
			return toolResult{Error: "filePath is required"}
		}
		content, err := c.view.ReadFile(args.FilePath)
		if err != nil {
			return toolResult{Error: err.Error()}
		}
		return toolResult{Content: content}

	default:
		return toolResult{Error: fmt.Sprintf("unknown tool %q", call.Function.Name)}
	}
}

// DispatchAll executes every call of one assistant turn. Independent reads
// run concurrently, but results are placed by index so the returned
// messages are always in call-issue order.
func (c *Catalog) DispatchAll(ctx context.Context, calls []llm.ToolCall) []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(calls))

	g, ctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			out[i] = c.Dispatch(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return out
}
