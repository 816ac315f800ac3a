// Package mcp exposes the lifelog store to MCP clients over stdio.
//
// Tools:
//   - ingest_lifelogs: ingest a batch of raw lifelog records
//   - search_transcripts: full-text search over utterance text
//   - get_context: reconstruct the logical event or window around a conversation
//   - get_status: row counts and database statistics
//
// stdout carries the MCP protocol; all logging goes to stderr.
package mcp
