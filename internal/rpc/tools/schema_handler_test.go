package tools

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribepatch/scribepatch/internal/llm"
)

func TestSchemaHandlerServesCatalog(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/tools/schemas", nil)
	rr := httptest.NewRecorder()

	SchemaHandler{}.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var defs []llm.ToolDefinition
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &defs))
	require.Len(t, defs, 2)
	assert.Equal(t, "list_repo_files", defs[0].Function.Name)
	assert.Equal(t, "get_file_content", defs[1].Function.Name)
}

func TestSchemaHandlerRejectsPost(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/schemas", nil)
	rr := httptest.NewRecorder()

	SchemaHandler{}.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
