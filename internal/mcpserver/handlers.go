package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/montanaflynn/stats"

	"github.com/mbd888/facegate/internal/antispoof"
	"github.com/mbd888/facegate/internal/session"
)

// maxReplayFrames bounds a single replay_evidence call.
const maxReplayFrames = 2000

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *FacegateClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *FacegateClient) *Handlers {
	return &Handlers{client: client}
}

// HandleReplayEvidence runs the engine locally over a frame sequence.
func (h *Handlers) HandleReplayEvidence(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("evidence", "")
	if strings.TrimSpace(raw) == "" {
		return mcp.NewToolResultError("evidence is required"), nil
	}

	var evs []antispoof.Evidence
	if err := json.Unmarshal([]byte(raw), &evs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evidence must be a JSON array of frames: %v", err)), nil
	}
	if len(evs) == 0 {
		return mcp.NewToolResultError("evidence is empty"), nil
	}
	if len(evs) > maxReplayFrames {
		return mcp.NewToolResultError(fmt.Sprintf("at most %d frames per replay", maxReplayFrames)), nil
	}

	scenario, err := antispoof.ParseScenario(req.GetString("scenario", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	decisions, err := antispoof.Replay(antispoof.ConfigForScenario(scenario), evs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Replay failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatReplay(scenario, evs, decisions)), nil
}

// HandleCreateSession opens a session on the service.
func (h *Handlers) HandleCreateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.CreateSession(ctx, req.GetString("scenario", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create session: %v", err)), nil
	}

	text, err := formatSession(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetSession shows a session snapshot.
func (h *Handlers) HandleGetSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	raw, err := h.client.GetSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get session: %v", err)), nil
	}

	text, err := formatSession(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleSubmitFrame posts one frame observation.
func (h *Handlers) HandleSubmitFrame(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	args := req.GetArguments()
	if _, ok := args["face_count"]; !ok {
		return mcp.NewToolResultError("face_count is required"), nil
	}

	frame := map[string]any{
		"faceCount": req.GetInt("face_count", 0),
		"evidence": map[string]any{
			"confidence": req.GetFloat("confidence", 0),
			"isSpoof":    req.GetBool("is_spoof", false),
		},
	}
	if box, ok := args["box"].(map[string]any); ok {
		frame["box"] = box
	}

	raw, err := h.client.SubmitFrame(ctx, id, frame)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit frame: %v", err)), nil
	}

	text, err := formatOutcome(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse outcome: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleSendSignal posts an out-of-band client signal.
func (h *Handlers) HandleSendSignal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	signal := req.GetString("signal", "")
	if id == "" || signal == "" {
		return mcp.NewToolResultError("session_id and signal are required"), nil
	}

	raw, err := h.client.SendSignal(ctx, id, signal)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send signal: %v", err)), nil
	}

	text, err := formatOutcome(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse outcome: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListAttempts lists recorded attempts.
func (h *Handlers) HandleListAttempts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListAttempts(ctx, req.GetString("session_id", ""), req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list attempts: %v", err)), nil
	}

	text, err := formatAttempts(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse attempts: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// --- Formatting ---

func formatReplay(scenario antispoof.Scenario, evs []antispoof.Evidence, decisions []antispoof.Decision) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Replayed %d frames (scenario: %s)\n\n", len(decisions), scenario)

	verdicts := make(map[antispoof.Verdict]int)
	firstAccept := 0
	for i, d := range decisions {
		v := d.Verdict()
		verdicts[v]++
		if v == antispoof.VerdictAccept && firstAccept == 0 {
			firstAccept = i + 1
		}
		spoof := ""
		if evs[i].IsSpoof {
			spoof = " spoof"
		}
		fmt.Fprintf(&sb, "%4d. %.2f%-6s %-8s %-9s suspicion=%d  %s\n",
			i+1, evs[i].Confidence, spoof, d.Level, v, d.Suspicion, d.Explanation)
	}

	sb.WriteString("\nVerdicts:")
	for _, v := range []antispoof.Verdict{
		antispoof.VerdictAccept, antispoof.VerdictReject, antispoof.VerdictChallenge, antispoof.VerdictHold,
	} {
		fmt.Fprintf(&sb, " %s=%d", v, verdicts[v])
	}
	sb.WriteString("\n")

	if firstAccept > 0 {
		fmt.Fprintf(&sb, "First accepted at frame %d\n", firstAccept)
	} else {
		sb.WriteString("Never accepted\n")
	}

	confidences := make(stats.Float64Data, len(evs))
	for i, ev := range evs {
		confidences[i] = ev.Confidence
	}
	mean, _ := confidences.Mean()
	median, _ := confidences.Median()
	stddev, _ := confidences.StandardDeviationPopulation()
	lo, _ := confidences.Min()
	hi, _ := confidences.Max()
	fmt.Fprintf(&sb, "Confidence: mean=%.3f median=%.3f stddev=%.3f min=%.2f max=%.2f\n",
		mean, median, stddev, lo, hi)

	return sb.String()
}

func formatSession(raw json.RawMessage) (string, error) {
	var resp struct {
		Session *session.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Session == nil {
		return "", fmt.Errorf("no session in response: %s", string(raw))
	}
	s := resp.Session

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session: %s\n", s.ID)
	fmt.Fprintf(&sb, "Scenario: %s\n", s.Scenario)
	fmt.Fprintf(&sb, "State: %s\n", s.State)
	if s.Message != "" {
		fmt.Fprintf(&sb, "Message: %s\n", s.Message)
	}
	fmt.Fprintf(&sb, "Attempt: %d  Frames: %d  Rejections: %d\n", s.Attempt, s.Frames, s.Rejections)
	fmt.Fprintf(&sb, "Engine: suspicion=%d realStreak=%d bonusRemaining=%d history=%d variance=%.4f\n",
		s.Engine.Suspicion, s.Engine.RealStreak, s.Engine.BonusRemaining, s.Engine.HistoryLen, s.Engine.Variance)
	if s.Closed {
		sb.WriteString("Closed: yes\n")
	}
	return sb.String(), nil
}

func formatOutcome(raw json.RawMessage) (string, error) {
	var resp struct {
		Outcome *session.Outcome `json:"outcome"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Outcome == nil {
		return "", fmt.Errorf("no outcome in response: %s", string(raw))
	}
	o := resp.Outcome

	var sb strings.Builder
	changed := ""
	if o.Changed {
		changed = " (changed)"
	}
	fmt.Fprintf(&sb, "State: %s%s\n", o.State, changed)
	if o.Message != "" {
		fmt.Fprintf(&sb, "Message: %s\n", o.Message)
	}
	if o.Placement != "" {
		fmt.Fprintf(&sb, "Placement: %s\n", o.Placement)
	}
	if d := o.Decision; d != nil {
		fmt.Fprintf(&sb, "Decision: %s (confidence %.2f, %s, suspicion %d) - %s\n",
			d.Verdict(), d.Confidence, d.Level, d.Suspicion, d.Explanation)
	}
	if st := o.Stability; st != nil {
		fmt.Fprintf(&sb, "Stability: %.0f%%", st.Progress*100)
		if st.Stable {
			sb.WriteString(" stable")
		}
		if st.Moved {
			sb.WriteString(" moved")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatAttempts(raw json.RawMessage) (string, error) {
	var resp struct {
		Attempts []session.Attempt `json:"attempts"`
		HasMore  bool              `json:"hasMore"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Attempts) == 0 {
		return "No attempts recorded.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d attempts:\n\n", len(resp.Attempts))
	for i, a := range resp.Attempts {
		fmt.Fprintf(&sb, "%d. %s  session %s #%d\n", i+1, a.ID, a.SessionID, a.Number)
		fmt.Fprintf(&sb, "   Outcome: %s", a.Outcome)
		if a.Message != "" {
			fmt.Fprintf(&sb, " (%s)", a.Message)
		}
		fmt.Fprintf(&sb, "\n   Scenario: %s  Frames: %d  Rejections: %d  Duration: %s\n",
			a.Scenario, a.Frames, a.Rejections, a.FinishedAt.Sub(a.StartedAt).Round(time.Millisecond))
	}
	if resp.HasMore {
		sb.WriteString("\nMore attempts available.\n")
	}
	return sb.String(), nil
}
