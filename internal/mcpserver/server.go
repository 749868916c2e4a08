package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all facegate tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("facegate", "0.1.0")
	h := NewHandlers(NewFacegateClient(cfg))

	s.AddTool(ToolReplayEvidence, h.HandleReplayEvidence)
	s.AddTool(ToolCreateSession, h.HandleCreateSession)
	s.AddTool(ToolGetSession, h.HandleGetSession)
	s.AddTool(ToolSubmitFrame, h.HandleSubmitFrame)
	s.AddTool(ToolSendSignal, h.HandleSendSignal)
	s.AddTool(ToolListAttempts, h.HandleListAttempts)

	return s
}
