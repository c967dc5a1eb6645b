package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ConflictError indicates a unique-constraint violation.
type ConflictError struct {
	Field string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s already taken", e.Field)
}

const taskColumns = `id,title,description,status,priority,assigned_to,assigned_by,project_id,due_date,start_date,completion_date,estimated_hours,actual_hours,progress,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var description, assignedTo, projectID, dueDate, startDate, completionDate sql.NullString
	var estimated, actual sql.NullFloat64
	err := scan(&t.ID, &t.Title, &description, &t.Status, &t.Priority, &assignedTo, &t.AssignedBy,
		&projectID, &dueDate, &startDate, &completionDate, &estimated, &actual, &t.Progress,
		&t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if projectID.Valid {
		t.ProjectID = &projectID.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if startDate.Valid {
		t.StartDate = &startDate.String
	}
	if completionDate.Valid {
		t.CompletionDate = &completionDate.String
	}
	if estimated.Valid {
		t.EstimatedHours = &estimated.Float64
	}
	if actual.Valid {
		t.ActualHours = &actual.Float64
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Status, t.Priority,
		nullableStringPtr(t.AssignedTo), t.AssignedBy, nullableStringPtr(t.ProjectID),
		nullableStringPtr(t.DueDate), nullableStringPtr(t.StartDate), nullableStringPtr(t.CompletionDate),
		nullableFloatPtr(t.EstimatedHours), nullableFloatPtr(t.ActualHours), t.Progress,
		t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, assigned_to=?, project_id=?, due_date=?, start_date=?, completion_date=?, estimated_hours=?, actual_hours=?, progress=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status, t.Priority,
		nullableStringPtr(t.AssignedTo), nullableStringPtr(t.ProjectID),
		nullableStringPtr(t.DueDate), nullableStringPtr(t.StartDate), nullableStringPtr(t.CompletionDate),
		nullableFloatPtr(t.EstimatedHours), nullableFloatPtr(t.ActualHours), t.Progress,
		t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	Status     string
	Priority   string
	AssignedTo string
	ProjectID  string
	Limit      int
}

// urgencyOrder sorts overdue first, then due-today, then the rest;
// within a bucket priority descends, then most recently updated first.
// Terminal statuses never count as overdue or due today.
const urgencyOrder = `ORDER BY
CASE
  WHEN due_date IS NOT NULL AND status NOT IN ('completed','cancelled') AND due_date < ? THEN 0
  WHEN due_date IS NOT NULL AND status NOT IN ('completed','cancelled') AND due_date = ? THEN 1
  ELSE 2
END,
CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END,
updated_at DESC, id DESC`

// ListTasks returns tasks matching the filters in urgency order.
// today is the actor-clock calendar date (YYYY-MM-DD) used to derive
// the overdue and due-today buckets.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters, today string) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, today, today)
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + " " + urgencyOrder
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountDashboard aggregates task counts, optionally scoped to one assignee.
func (r Repo) CountDashboard(ctx context.Context, assignedTo, today string) (domain.DashboardCounts, error) {
	var c domain.DashboardCounts
	query := `SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN status='pending' THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN status='in_progress' THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN status='completed' THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN due_date IS NOT NULL AND status NOT IN ('completed','cancelled') AND due_date < ? THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN due_date IS NOT NULL AND status NOT IN ('completed','cancelled') AND due_date = ? THEN 1 ELSE 0 END),0)
FROM tasks`
	args := []any{today, today}
	if assignedTo != "" {
		query += ` WHERE assigned_to=?`
		args = append(args, assignedTo)
	}
	err := r.DB.QueryRowContext(ctx, query, args...).
		Scan(&c.Total, &c.Pending, &c.InProgress, &c.Completed, &c.Overdue, &c.DueToday)
	return c, err
}

// ListDueTasks returns non-terminal assigned tasks with a due date up to
// and including until. Used by the notification sweep.
func (r Repo) ListDueTasks(ctx context.Context, until string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
WHERE due_date IS NOT NULL AND due_date <= ? AND assigned_to IS NOT NULL
AND status NOT IN ('completed','cancelled')
ORDER BY due_date ASC, id ASC`, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
