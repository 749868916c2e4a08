package session

import (
	"context"
	"time"

	"github.com/mbd888/facegate/internal/antispoof"
	"github.com/mbd888/facegate/internal/pagination"
	"github.com/mbd888/facegate/internal/workflow"
)

// Attempt is the durable record of one finished capture attempt.
type Attempt struct {
	ID         string             `json:"id"`
	SessionID  string             `json:"sessionId"`
	Scenario   antispoof.Scenario `json:"scenario"`
	Number     int                `json:"number"` // 1-based attempt within the session
	Outcome    workflow.State     `json:"outcome"`
	Message    string             `json:"message,omitempty"`
	Frames     int                `json:"frames"`
	Rejections int                `json:"rejections"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// Succeeded reports whether the attempt registered a face.
func (a *Attempt) Succeeded() bool {
	return a.Outcome == workflow.Success
}

// ListOption configures optional parameters for list queries.
type ListOption func(*listOpts)

type listOpts struct {
	cursor    *pagination.Cursor
	sessionID string
}

func applyListOpts(opts []ListOption) listOpts {
	var o listOpts
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithCursor returns items older than the cursor position.
func WithCursor(cursor string) ListOption {
	return func(o *listOpts) {
		c, err := pagination.Decode(cursor)
		if err == nil {
			o.cursor = c
		}
	}
}

// WithSession limits results to one session's attempts.
func WithSession(id string) ListOption {
	return func(o *listOpts) { o.sessionID = id }
}

// Store persists attempt records. Live sessions stay in memory.
type Store interface {
	CreateAttempt(ctx context.Context, a *Attempt) error
	GetAttempt(ctx context.Context, id string) (*Attempt, error)
	// ListAttempts returns newest first.
	ListAttempts(ctx context.Context, limit int, opts ...ListOption) ([]*Attempt, error)
}
