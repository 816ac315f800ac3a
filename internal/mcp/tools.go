package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mpratt/lifelogd/internal/search"
	"github.com/mpratt/lifelogd/internal/storage"
	"github.com/mpratt/lifelogd/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound      = -32001 // Referenced conversation does not exist
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
)

// handleIngestLifelogs handles the ingest_lifelogs tool invocation
func (s *Server) handleIngestLifelogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	rawLogs, ok := args["lifelogs"]
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "lifelogs parameter is required", map[string]interface{}{
			"param":  "lifelogs",
			"reason": "missing",
		})
	}

	// The transport hands us loosely-typed JSON; round-trip it through the
	// wire types so the pipeline sees the same shape the fetcher produces.
	encoded, err := json.Marshal(rawLogs)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "lifelogs is not valid JSON", map[string]interface{}{
			"error": err.Error(),
		})
	}
	var batch []types.RawLifelog
	if err := json.Unmarshal(encoded, &batch); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "lifelogs does not match the record schema", map[string]interface{}{
			"error": err.Error(),
		})
	}

	result, err := s.pipeline.Ingest(ctx, batch)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ingestion halted", map[string]interface{}{
			"error":    err.Error(),
			"ingested": result.Ingested,
		})
	}

	response := map[string]interface{}{
		"ingested":    result.Ingested,
		"skipped":     result.Skipped,
		"failed":      result.Failed,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if len(result.Errors) > 0 {
		failures := make([]map[string]interface{}, 0, len(result.Errors))
		for _, re := range result.Errors {
			failures = append(failures, map[string]interface{}{
				"external_log_id": re.ExternalLogID,
				"error":           re.Err.Error(),
			})
		}
		response["errors"] = failures
	}

	s.searcher.Invalidate()
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchTranscripts handles the search_transcripts tool invocation
func (s *Server) handleSearchTranscripts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", s.cfg.SearchLimit)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	resp, err := s.searcher.Search(ctx, search.Request{
		Query:    query,
		Limit:    limit,
		UseCache: true,
		CacheTTL: s.cfg.SearchCacheTTL,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, hit := range resp.Results {
		entry := map[string]interface{}{
			"utterance_id":    hit.ID,
			"conversation_id": hit.ConversationID,
			"text":            hit.Text,
			"seq":             hit.Seq,
			"rank":            hit.Rank,
		}
		if hit.StartTime != nil {
			entry["start_time"] = hit.StartTime.Format("2006-01-02T15:04:05Z07:00")
		}
		results = append(results, entry)
	}

	response := map[string]interface{}{
		"results":     results,
		"count":       len(results),
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetContext handles the get_context tool invocation
func (s *Server) handleGetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	externalLogID, ok := args["external_log_id"].(string)
	if !ok || externalLogID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "external_log_id parameter is required", map[string]interface{}{
			"param":  "external_log_id",
			"reason": "missing or empty",
		})
	}

	anchor, err := s.store.GetConversationByExternalID(ctx, externalLogID)
	if err != nil {
		return nil, newMCPError(ErrorCodeNotFound, "conversation not found", map[string]interface{}{
			"external_log_id": externalLogID,
		})
	}

	resolved, err := s.resolver.Resolve(ctx, anchor.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "context resolution failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"anchor":     conversationJSON(resolved.Anchor),
		"transcript": resolved.Transcript,
	}
	if resolved.Anchor.LogicalEventID != nil {
		response["logical_event_id"] = *resolved.Anchor.LogicalEventID
		response["event"] = conversationsJSON(resolved.Event)
	} else {
		response["preceding"] = conversationsJSON(resolved.Preceding)
		response["succeeding"] = conversationsJSON(resolved.Succeeding)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.store.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"conversations":  status.Conversations,
		"speakers":       status.Speakers,
		"utterances":     status.Utterances,
		"logical_events": status.LogicalEvents,
		"pending":        status.Pending,
		"size_mb":        fmt.Sprintf("%.2f", status.SizeMB),
		"fts_index":      status.FTSIndexBuilt,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func conversationJSON(c storage.Conversation) map[string]interface{} {
	entry := map[string]interface{}{
		"id":              c.ID,
		"external_log_id": c.ExternalLogID,
		"title":           c.Title,
		"start_time":      c.StartTime.Format("2006-01-02T15:04:05Z07:00"),
		"status":          string(c.Status),
	}
	if c.EndTime != nil {
		entry["end_time"] = c.EndTime.Format("2006-01-02T15:04:05Z07:00")
	}
	if c.LogicalEventID != nil {
		entry["logical_event_id"] = *c.LogicalEventID
	}
	return entry
}

func conversationsJSON(conversations []storage.Conversation) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, conversationJSON(c))
	}
	return out
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}
