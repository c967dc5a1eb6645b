package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Recorder appends immutable audit records inside the caller's
// transaction. An append failure must abort the enclosing mutation, so
// errors are always returned, never swallowed.
type Recorder struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append writes one audit record for a single field change.
func (r Recorder) Append(ctx context.Context, tx *sql.Tx, taskID, field, oldValue, newValue, actorID string) error {
	if r.Now == nil {
		r.Now = time.Now
	}
	ts := r.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO task_history(task_id,field,old_value,new_value,actor_id,ts) VALUES (?,?,?,?,?,?)`,
		taskID, field, oldValue, newValue, actorID, ts)
	if err != nil {
		return fmt.Errorf("append history %s/%s: %w", taskID, field, err)
	}
	return nil
}
