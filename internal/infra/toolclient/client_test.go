package toolclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolmesh/internal/domain"
)

func TestListTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/tools", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"name": "calculator", "description": "Evaluate a math expression", "parameters": {"expression": "string"}},
			{"name": "web_search", "description": "Search the web", "parameters": {"query": {"type": "string"}, "limit": {"unknown": true}}},
			{"description": "nameless entries are dropped"}
		]`))
	}))
	defer server.Close()

	client := New()
	tools, err := client.ListTools(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, tools, 2)

	assert.Equal(t, "calculator", tools[0].Name)
	assert.Equal(t, map[string]string{"expression": "string"}, tools[0].Parameters)

	// Object-shaped type hints are unwrapped; unknown shapes become "any".
	assert.Equal(t, map[string]string{"query": "string", "limit": "any"}, tools[1].Parameters)
}

func TestListToolsRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := New().ListTools(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestFetchSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tools/calculator/schema", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"type": "object",
			"properties": {"expression": {"type": "string"}},
			"required": ["expression"]
		}`))
	}))
	defer server.Close()

	schema, err := New().FetchSchema(context.Background(), server.URL, "calculator")
	require.NoError(t, err)

	resolved, err := schema.Resolve(nil)
	require.NoError(t, err)
	assert.NoError(t, resolved.Validate(map[string]any{"expression": "2+2"}))
	assert.Error(t, resolved.Validate(map[string]any{}))
}

func TestExecuteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/tools/calculator/execute", r.URL.Path)

		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "2+2", params["expression"])

		_, _ = w.Write([]byte(`{"result": 4}`))
	}))
	defer server.Close()

	result, err := New().Execute(context.Background(), server.URL, "calculator", map[string]any{"expression": "2+2"})
	require.NoError(t, err)
	assert.Equal(t, float64(4), result)
}

// A 2xx response carrying an error field is a soft failure, distinct from
// transport errors, and surfaces as the soft-failure sentinel.
func TestExecuteSoftFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "division by zero"}`))
	}))
	defer server.Close()

	_, err := New().Execute(context.Background(), server.URL, "calculator", map[string]any{"expression": "1/0"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSoftFailure)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestExecuteRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New().Execute(context.Background(), server.URL, "calculator", nil)
	assert.Error(t, err)
}

func TestExecuteHonorsContext(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Execute(ctx, server.URL, "calculator", nil)
	assert.Error(t, err)
}
