// Package mcp implements the Model Context Protocol (MCP) server for skillmarket.
//
// The MCP server exposes four tools to AI assistants:
//   - search_listings: Search listings by title, description or owner
//   - chat: Ask the marketplace assistant a question
//   - get_status: Report store statistics and embedding progress
//   - reindex_listings: Refresh listing embeddings
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Start it with:
//
//	skillmarket mcp
//
// Logs go to stderr; stdout is reserved for the protocol.
//
// # Tool: search_listings
//
//	Request:
//	{
//	  "name": "search_listings",
//	  "arguments": {
//	    "query": "guitar lessons",
//	    "listing_type": "Providing Skills",
//	    "limit": 10
//	  }
//	}
//
//	Response:
//	{
//	  "query": "guitar lessons",
//	  "terms": ["guitar", "lessons"],
//	  "total": 1,
//	  "results": [
//	    {
//	      "id": "3f2a...",
//	      "title": "Guitar Lessons",
//	      "listing_type": "Providing Skills",
//	      "link": "/listings/3f2a..."
//	    }
//	  ]
//	}
//
// # Tool: chat
//
//	Request:
//	{
//	  "name": "chat",
//	  "arguments": {
//	    "message": "any photographers nearby?",
//	    "session_id": "temp-1700000000",
//	    "user_id": "user-42",
//	    "history": [{"text": "hi", "sender": "user"}]
//	  }
//	}
//
//	Response:
//	{
//	  "response": "...",
//	  "session_id": "9b1c..."
//	}
//
// # Error Handling
//
// Errors are returned as *MCPError with a JSON-RPC code:
//   - -32602: Invalid params (missing message, bad limit, unknown listing_type)
//   - -32603: Internal error
//   - -32002: Indexing in progress
//   - -32004: Query has no usable terms
package mcp
