package tools

import (
	"encoding/json"
	"net/http"

	"github.com/scribepatch/scribepatch/internal/agent"
)

// SchemaHandler serves the fixed tool catalog declarations as JSON.
type SchemaHandler struct{}

// ServeHTTP renders the tool schemas.
func (h SchemaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(agent.ToolDefinitions())
}
