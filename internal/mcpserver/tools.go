package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the facegate diagnostics server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolReplayEvidence = mcp.NewTool("replay_evidence",
	mcp.WithDescription(
		"Run the anti-spoof engine locally over a sequence of classifier outputs and show "+
			"the decision for every frame. Use this to explain why a capture was rejected or "+
			"challenged without touching a live session."),
	mcp.WithString("evidence",
		mcp.Required(),
		mcp.Description("JSON array of frames, e.g. [{\"confidence\":0.92,\"isSpoof\":false}, ...]")),
	mcp.WithString("scenario",
		mcp.Description("Threshold preset to replay under"),
		mcp.Enum("verification", "registration", "update", "security_check")),
)

var ToolCreateSession = mcp.NewTool("create_session",
	mcp.WithDescription(
		"Open a capture session on the facegate service. Returns the session ID and its "+
			"initial workflow state."),
	mcp.WithString("scenario",
		mcp.Description("Threshold preset for the session (default: the server's configured scenario)"),
		mcp.Enum("verification", "registration", "update", "security_check")),
)

var ToolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription(
		"Show a session's workflow state, user message, frame counters and engine state."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session ID (e.g. 'ses_...')")),
)

var ToolSubmitFrame = mcp.NewTool("submit_frame",
	mcp.WithDescription(
		"Submit one frame observation to a session and show the resulting state, decision "+
			"and framing feedback. Omit the box when no face was detected."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session ID (e.g. 'ses_...')")),
	mcp.WithNumber("face_count",
		mcp.Required(),
		mcp.Description("Number of faces the detector found")),
	mcp.WithNumber("confidence",
		mcp.Description("Classifier confidence in [0, 1] (default 0)")),
	mcp.WithBoolean("is_spoof",
		mcp.Description("Classifier verdict for this frame (default false)")),
	mcp.WithObject("box",
		mcp.Description("Normalized face box: {\"x\":0.3,\"y\":0.25,\"width\":0.4,\"height\":0.5}")),
)

var ToolSendSignal = mcp.NewTool("send_signal",
	mcp.WithDescription(
		"Send an out-of-band client signal to a session, such as a camera error or a "+
			"confirmed liveness challenge."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session ID (e.g. 'ses_...')")),
	mcp.WithString("signal",
		mcp.Required(),
		mcp.Description("Signal name"),
		mcp.Enum("camera_ready", "no_face", "multiple_faces", "camera_error",
			"permission_denied", "network_error", "liveness_confirmed")),
)

var ToolListAttempts = mcp.NewTool("list_attempts",
	mcp.WithDescription(
		"List recorded capture attempts, newest first, with their outcome and counters."),
	mcp.WithString("session_id",
		mcp.Description("Only attempts from this session")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of attempts to return (default 20)")),
)
