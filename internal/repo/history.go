package repo

import (
	"context"

	"taskdesk/internal/domain"
)

// ListHistory returns a task's audit trail in the order changes were
// committed.
func (r Repo) ListHistory(ctx context.Context, taskID string) ([]domain.TaskHistory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,field,old_value,new_value,actor_id,ts
FROM task_history WHERE task_id=? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskHistory
	for rows.Next() {
		var h domain.TaskHistory
		if err := rows.Scan(&h.ID, &h.TaskID, &h.Field, &h.OldValue, &h.NewValue, &h.ActorID, &h.TS); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// CountHistory returns the number of audit records for a task.
func (r Repo) CountHistory(ctx context.Context, taskID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_history WHERE task_id=?`, taskID).Scan(&n)
	return n, err
}
