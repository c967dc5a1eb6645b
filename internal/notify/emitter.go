package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"taskdesk/internal/domain"
	"taskdesk/internal/repo"
)

// Emitter produces notification records. Emission is best-effort: the
// engine calls Emit after the task transaction commits, and a failure
// here is logged but never propagated back into the mutation result.
type Emitter struct {
	Repo   repo.Repo
	Now    func() time.Time
	Logger *log.Logger
}

// Message describes one notification to emit.
type Message struct {
	RecipientID string
	SenderID    string
	TaskID      string
	Type        string
	Title       string
	Body        string
	Priority    string
}

func (e Emitter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Emitter) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Emit writes one notification row and returns it. Callers that treat
// emission as best-effort should use EmitBestEffort instead.
func (e Emitter) Emit(ctx context.Context, m Message) (domain.Notification, error) {
	if m.Priority == "" {
		m.Priority = domain.PriorityMedium
	}
	n := domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: m.RecipientID,
		Type:        m.Type,
		Title:       m.Title,
		Message:     m.Body,
		Priority:    m.Priority,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if m.SenderID != "" {
		n.SenderID = &m.SenderID
	}
	if m.TaskID != "" {
		n.TaskID = &m.TaskID
	}
	if err := e.Repo.InsertNotification(ctx, n); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// EmitBestEffort attempts emission and swallows failures after logging
// them. Task state and history are authoritative; notifications are not.
func (e Emitter) EmitBestEffort(ctx context.Context, m Message) {
	if m.RecipientID == "" || m.RecipientID == m.SenderID {
		return
	}
	if _, err := e.Emit(ctx, m); err != nil {
		e.logger().Printf("notify: emit %s to %s failed: %v", m.Type, m.RecipientID, err)
	}
}
