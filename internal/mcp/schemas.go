package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestLifelogsTool returns the tool definition for ingest_lifelogs
func ingestLifelogsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_lifelogs",
		Description: "Ingest a batch of raw lifelog records into durable, clustered, searchable storage",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"lifelogs": map[string]interface{}{
					"type":        "array",
					"description": "Raw lifelog records as delivered by the transcript source",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id":        map[string]interface{}{"type": "string", "description": "External log id (unique natural key)"},
							"title":     map[string]interface{}{"type": "string"},
							"markdown":  map[string]interface{}{"type": "string", "description": "Full raw transcript text"},
							"creator":   map[string]interface{}{"type": "string"},
							"startTime": map[string]interface{}{"type": "string", "description": "ISO-8601 start time (required)"},
							"endTime":   map[string]interface{}{"type": "string"},
							"contents":  map[string]interface{}{"type": "array", "description": "Speech/text segments"},
						},
						"required": []string{"id", "startTime"},
					},
				},
			},
			Required: []string{"lifelogs"},
		},
	}
}

// searchTranscriptsTool returns the tool definition for search_transcripts
func searchTranscriptsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_transcripts",
		Description: "Full-text search over stored utterance text, best matches first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (FTS5 match syntax accepted)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     25,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getContextTool returns the tool definition for get_context
func getContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_context",
		Description: "Reconstruct the logical event or time-windowed neighborhood around a conversation",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"external_log_id": map[string]interface{}{
					"type":        "string",
					"description": "External log id of the anchor conversation",
				},
			},
			Required: []string{"external_log_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report stored row counts, logical event count, and database size",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
