package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpratt/lifelogd/internal/config"
	"github.com/mpratt/lifelogd/internal/storage"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{
		GapThreshold:   5 * time.Minute,
		ContextWindow:  30 * time.Minute,
		SearchLimit:    25,
		SearchCacheTTL: time.Minute,
	}
	s, err := NewServer(context.Background(), store, cfg, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func ingestFixture(t *testing.T, s *Server) {
	t.Helper()
	res, err := s.handleIngestLifelogs(context.Background(), toolRequest(map[string]interface{}{
		"lifelogs": []interface{}{
			map[string]interface{}{
				"id":        "ll-001",
				"title":     "Morning standup",
				"startTime": "2025-06-01T10:00:00Z",
				"endTime":   "2025-06-01T10:02:00Z",
				"creator":   "user",
				"contents": []interface{}{
					map[string]interface{}{
						"type":              "blockquote",
						"content":           "let's deploy after lunch",
						"speakerName":       "Alice",
						"speakerIdentifier": "spk-alice",
					},
				},
			},
			map[string]interface{}{
				"id":        "ll-002",
				"startTime": "2025-06-01T10:03:00Z",
				"creator":   "user",
			},
		},
	}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(2), out["ingested"])
}

func TestHandleIngestLifelogs(t *testing.T) {
	s := setupServer(t)
	ingestFixture(t, s)
}

func TestHandleIngestLifelogsMissingParam(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleIngestLifelogs(context.Background(), toolRequest(map[string]interface{}{}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleSearchTranscripts(t *testing.T) {
	s := setupServer(t)
	ingestFixture(t, s)

	res, err := s.handleSearchTranscripts(context.Background(), toolRequest(map[string]interface{}{
		"query": "deploy",
	}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(1), out["count"])
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	hit := results[0].(map[string]interface{})
	assert.Equal(t, "let's deploy after lunch", hit["text"])
}

func TestHandleSearchTranscriptsEmptyQuery(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleSearchTranscripts(context.Background(), toolRequest(map[string]interface{}{
		"query": "",
	}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeEmptyQuery, mcpErr.Code)
}

func TestHandleSearchTranscriptsBadLimit(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleSearchTranscripts(context.Background(), toolRequest(map[string]interface{}{
		"query": "anything",
		"limit": float64(500),
	}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleGetContext(t *testing.T) {
	s := setupServer(t)
	ingestFixture(t, s)

	res, err := s.handleGetContext(context.Background(), toolRequest(map[string]interface{}{
		"external_log_id": "ll-001",
	}))
	require.NoError(t, err)
	out := resultJSON(t, res)

	// The fixture pair is one logical event; the response takes the event shape.
	assert.Contains(t, out, "logical_event_id")
	event, ok := out["event"].([]interface{})
	require.True(t, ok)
	assert.Len(t, event, 2)
	assert.Contains(t, out["transcript"], "Alice: let's deploy after lunch")
}

func TestHandleGetContextNotFound(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleGetContext(context.Background(), toolRequest(map[string]interface{}{
		"external_log_id": "ll-missing",
	}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeNotFound, mcpErr.Code)
}

func TestHandleGetStatus(t *testing.T) {
	s := setupServer(t)
	ingestFixture(t, s)

	res, err := s.handleGetStatus(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(2), out["conversations"])
	assert.Equal(t, float64(1), out["speakers"])
	assert.Equal(t, float64(1), out["utterances"])
	assert.Equal(t, float64(1), out["logical_events"])
}

func TestGetIntDefault(t *testing.T) {
	args := map[string]interface{}{"a": float64(7), "b": 3}
	assert.Equal(t, 7, getIntDefault(args, "a", 1))
	assert.Equal(t, 3, getIntDefault(args, "b", 1))
	assert.Equal(t, 1, getIntDefault(args, "missing", 1))
}
