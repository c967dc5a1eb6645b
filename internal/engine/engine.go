package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"taskdesk/internal/access"
	"taskdesk/internal/domain"
	"taskdesk/internal/history"
	"taskdesk/internal/notify"
	"taskdesk/internal/repo"
)

// Engine is the single choke point for task mutations: it combines
// authorization, validation, history recording and notification
// emission. Every status or field change goes through here.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	History  history.Recorder
	Notifier notify.Emitter
	Now      func() time.Time
}

func New(db *sql.DB) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		History:  history.Recorder{DB: db},
		Notifier: notify.Emitter{Repo: r},
		Now:      time.Now,
	}
}

// ValidationError reports a malformed or out-of-range field. It is
// always detected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

const dateLayout = "2006-01-02"

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) today() string {
	return e.now().UTC().Format(dateLayout)
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// actor loads the acting user and requires an active account.
func (e Engine) actor(ctx context.Context, actorID string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return u, access.ForbiddenError{Action: "act without a known account"}
		}
		return u, err
	}
	if u.Status != domain.UserActive {
		return u, access.ForbiddenError{Action: "act with a " + u.Status + " account"}
	}
	return u, nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title          string
	Description    string
	AssignedTo     string
	ProjectID      string
	Priority       string
	DueDate        string
	StartDate      string
	EstimatedHours *float64
	ActorID        string
}

// CreateTask validates and inserts a task, its "created" audit record
// and the assignment notification. Task and history commit atomically;
// the notification is emitted best-effort after commit.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	actor, err := e.actor(ctx, opts.ActorID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Title == "" {
		return domain.Task{}, ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Task{}, ValidationError{Field: "priority", Reason: "unknown value " + opts.Priority}
	}
	if err := validateDate("due_date", opts.DueDate); err != nil {
		return domain.Task{}, err
	}
	if err := validateDate("start_date", opts.StartDate); err != nil {
		return domain.Task{}, err
	}
	if opts.EstimatedHours != nil && *opts.EstimatedHours < 0 {
		return domain.Task{}, ValidationError{Field: "estimated_hours", Reason: "must not be negative"}
	}
	if opts.AssignedTo != "" {
		if err := e.requireActiveAssignee(ctx, opts.AssignedTo); err != nil {
			return domain.Task{}, err
		}
	}

	now := e.nowRFC3339()
	t := domain.Task{
		ID:             uuid.New().String(),
		Title:          opts.Title,
		Description:    opts.Description,
		Status:         domain.StatusPending,
		Priority:       opts.Priority,
		AssignedBy:     actor.ID,
		AssignedTo:     optionalString(opts.AssignedTo),
		ProjectID:      optionalString(opts.ProjectID),
		DueDate:        optionalString(opts.DueDate),
		StartDate:      optionalString(opts.StartDate),
		EstimatedHours: opts.EstimatedHours,
		Progress:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.History.Append(ctx, tx, t.ID, "created", "", t.Title, actor.ID); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	if t.AssignedTo != nil {
		e.Notifier.EmitBestEffort(ctx, notify.Message{
			RecipientID: *t.AssignedTo,
			SenderID:    actor.ID,
			TaskID:      t.ID,
			Type:        domain.NotifyTaskAssigned,
			Title:       "New task assigned",
			Body:        fmt.Sprintf("%s assigned you %q", actor.DisplayName, t.Title),
			Priority:    t.Priority,
		})
	}
	return t, nil
}

// GetTask applies the visibility rule: out-of-scope requests report
// NotFound, never Forbidden, so task existence does not leak.
func (e Engine) GetTask(ctx context.Context, id, actorID string) (domain.Task, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if !access.CanSee(actor, t) {
		return domain.Task{}, repo.ErrNotFound
	}
	return t, nil
}

// ListTasks returns tasks in urgency order, scoped to the actor's
// visibility. Employee filters on assigned_to are overridden to self.
func (e Engine) ListTasks(ctx context.Context, actorID string, f repo.TaskFilters) ([]domain.Task, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleEmployee {
		f.AssignedTo = actor.ID
	}
	return e.Repo.ListTasks(ctx, f, e.today())
}

// ListHistory returns a task's audit trail, subject to task visibility.
func (e Engine) ListHistory(ctx context.Context, taskID, actorID string) ([]domain.TaskHistory, error) {
	if _, err := e.GetTask(ctx, taskID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListHistory(ctx, taskID)
}

// TaskUpdateOptions carries a field-level patch. Pointer fields left nil
// are untouched; the Provided flags distinguish "clear" from "omit" for
// nullable columns.
type TaskUpdateOptions struct {
	ID      string
	ActorID string

	Title       *string
	Description *string
	Status      *string
	Priority    *string
	Progress    *int

	AssignedTo     *string
	AssignProvided bool

	ProjectID       *string
	ProjectProvided bool

	DueDate         *string
	DueDateProvided bool

	StartDate         *string
	StartDateProvided bool

	EstimatedHours    *float64
	EstimatedProvided bool

	ActualHours    *float64
	ActualProvided bool
}

type fieldChange struct {
	field string
	old   string
	new   string
}

// UpdateTask runs the transition algorithm: load, authorize, diff and
// validate, apply, record history in the same transaction, then emit
// notifications best-effort. A rejected update leaves the task and its
// history untouched.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	actor, err := e.actor(ctx, opts.ActorID)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	// Assigners keep mutation rights over tasks they created even when
	// the visibility rule hides the task from their list view.
	if !access.CanSee(actor, t) && t.AssignedBy != actor.ID {
		return domain.Task{}, repo.ErrNotFound
	}
	level := access.Resolve(actor, t)
	if level == access.LevelNone {
		return domain.Task{}, access.ForbiddenError{Action: "modify this task"}
	}

	original := t
	var changes []fieldChange
	record := func(field, oldV, newV string) error {
		if oldV == newV {
			return nil
		}
		if !access.CanEditField(level, field) {
			return access.ForbiddenError{Action: "change " + field}
		}
		changes = append(changes, fieldChange{field: field, old: oldV, new: newV})
		return nil
	}

	if opts.Title != nil {
		if *opts.Title == "" {
			return domain.Task{}, ValidationError{Field: "title", Reason: "must not be empty"}
		}
		if err := record("title", t.Title, *opts.Title); err != nil {
			return domain.Task{}, err
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		if err := record("description", t.Description, *opts.Description); err != nil {
			return domain.Task{}, err
		}
		t.Description = *opts.Description
	}
	if opts.Status != nil {
		if !domain.ValidStatus(*opts.Status) {
			return domain.Task{}, ValidationError{Field: "status", Reason: "unknown value " + *opts.Status}
		}
		if err := record("status", t.Status, *opts.Status); err != nil {
			return domain.Task{}, err
		}
		t.Status = *opts.Status
	}
	if opts.Priority != nil {
		if !domain.ValidPriority(*opts.Priority) {
			return domain.Task{}, ValidationError{Field: "priority", Reason: "unknown value " + *opts.Priority}
		}
		if err := record("priority", t.Priority, *opts.Priority); err != nil {
			return domain.Task{}, err
		}
		t.Priority = *opts.Priority
	}
	if opts.Progress != nil {
		if *opts.Progress < 0 || *opts.Progress > 100 {
			return domain.Task{}, ValidationError{Field: "progress_percentage", Reason: "must be between 0 and 100"}
		}
		if err := record("progress_percentage", strconv.Itoa(t.Progress), strconv.Itoa(*opts.Progress)); err != nil {
			return domain.Task{}, err
		}
		t.Progress = *opts.Progress
	}
	if opts.AssignProvided {
		newAssignee := stringOrEmpty(opts.AssignedTo)
		if newAssignee != "" {
			if err := e.requireActiveAssignee(ctx, newAssignee); err != nil {
				return domain.Task{}, err
			}
		}
		if err := record("assigned_to", stringOrEmpty(t.AssignedTo), newAssignee); err != nil {
			return domain.Task{}, err
		}
		t.AssignedTo = optionalString(newAssignee)
	}
	if opts.ProjectProvided {
		if err := record("project_id", stringOrEmpty(t.ProjectID), stringOrEmpty(opts.ProjectID)); err != nil {
			return domain.Task{}, err
		}
		t.ProjectID = normalizePtr(opts.ProjectID)
	}
	if opts.DueDateProvided {
		newDate := stringOrEmpty(opts.DueDate)
		if err := validateDate("due_date", newDate); err != nil {
			return domain.Task{}, err
		}
		if err := record("due_date", stringOrEmpty(t.DueDate), newDate); err != nil {
			return domain.Task{}, err
		}
		t.DueDate = optionalString(newDate)
	}
	if opts.StartDateProvided {
		newDate := stringOrEmpty(opts.StartDate)
		if err := validateDate("start_date", newDate); err != nil {
			return domain.Task{}, err
		}
		if err := record("start_date", stringOrEmpty(t.StartDate), newDate); err != nil {
			return domain.Task{}, err
		}
		t.StartDate = optionalString(newDate)
	}
	if opts.EstimatedProvided {
		if opts.EstimatedHours != nil && *opts.EstimatedHours < 0 {
			return domain.Task{}, ValidationError{Field: "estimated_hours", Reason: "must not be negative"}
		}
		if err := record("estimated_hours", floatOrEmpty(t.EstimatedHours), floatOrEmpty(opts.EstimatedHours)); err != nil {
			return domain.Task{}, err
		}
		t.EstimatedHours = opts.EstimatedHours
	}
	if opts.ActualProvided {
		if opts.ActualHours != nil && *opts.ActualHours < 0 {
			return domain.Task{}, ValidationError{Field: "actual_hours", Reason: "must not be negative"}
		}
		if err := record("actual_hours", floatOrEmpty(t.ActualHours), floatOrEmpty(opts.ActualHours)); err != nil {
			return domain.Task{}, err
		}
		t.ActualHours = opts.ActualHours
	}

	if len(changes) == 0 {
		// No-op patch: nothing to write, no history appended.
		return t, nil
	}

	// completion_date tracks status mechanically: set on entry to
	// completed, cleared on exit.
	if t.Status != original.Status {
		if t.Status == domain.StatusCompleted {
			now := e.nowRFC3339()
			t.CompletionDate = &now
		} else if original.Status == domain.StatusCompleted {
			t.CompletionDate = nil
		}
	}
	t.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	for _, c := range changes {
		if err := e.History.Append(ctx, tx, t.ID, c.field, c.old, c.new, actor.ID); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	e.emitUpdateNotifications(ctx, actor, original, t)
	return t, nil
}

// UpdateStatus is the narrow status-only path; it reuses the full
// transition algorithm so the permission model stays identical.
func (e Engine) UpdateStatus(ctx context.Context, id, status string, actualHours *float64, actorID string) (domain.Task, error) {
	opts := TaskUpdateOptions{
		ID:      id,
		ActorID: actorID,
		Status:  &status,
	}
	if actualHours != nil {
		opts.ActualHours = actualHours
		opts.ActualProvided = true
	}
	return e.UpdateTask(ctx, opts)
}

// DeleteTask removes a task. Admin only; history records cascade away
// with the row, notifications keep a nulled task reference.
func (e Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return err
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !access.CanSee(actor, t) && t.AssignedBy != actor.ID {
		return repo.ErrNotFound
	}
	if actor.Role != domain.RoleAdmin {
		return access.ForbiddenError{Action: "delete tasks"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) emitUpdateNotifications(ctx context.Context, actor domain.User, before, after domain.Task) {
	if after.Status != before.Status {
		notifType := domain.NotifyStatusUpdate
		title := "Task status updated"
		if after.Status == domain.StatusCompleted {
			notifType = domain.NotifyTaskCompleted
			title = "Task completed"
		}
		e.Notifier.EmitBestEffort(ctx, notify.Message{
			RecipientID: after.AssignedBy,
			SenderID:    actor.ID,
			TaskID:      after.ID,
			Type:        notifType,
			Title:       title,
			Body:        fmt.Sprintf("%q moved from %s to %s", after.Title, before.Status, after.Status),
			Priority:    after.Priority,
		})
		if after.AssignedTo != nil && *after.AssignedTo != after.AssignedBy {
			e.Notifier.EmitBestEffort(ctx, notify.Message{
				RecipientID: *after.AssignedTo,
				SenderID:    actor.ID,
				TaskID:      after.ID,
				Type:        domain.NotifyStatusUpdate,
				Title:       "Task status updated",
				Body:        fmt.Sprintf("%q moved from %s to %s", after.Title, before.Status, after.Status),
				Priority:    after.Priority,
			})
		}
	}
	if stringOrEmpty(after.AssignedTo) != stringOrEmpty(before.AssignedTo) && after.AssignedTo != nil {
		e.Notifier.EmitBestEffort(ctx, notify.Message{
			RecipientID: *after.AssignedTo,
			SenderID:    actor.ID,
			TaskID:      after.ID,
			Type:        domain.NotifyTaskAssigned,
			Title:       "Task reassigned to you",
			Body:        fmt.Sprintf("%s assigned you %q", actor.DisplayName, after.Title),
			Priority:    after.Priority,
		})
	}
}

// Dashboard returns task counts scoped to the actor's visibility.
func (e Engine) Dashboard(ctx context.Context, actorID string) (domain.DashboardCounts, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.DashboardCounts{}, err
	}
	scope := ""
	if actor.Role == domain.RoleEmployee {
		scope = actor.ID
	}
	return e.Repo.CountDashboard(ctx, scope, e.today())
}

// ListNotifications returns the actor's own notifications.
func (e Engine) ListNotifications(ctx context.Context, actorID string, unreadOnly bool) ([]domain.Notification, error) {
	if _, err := e.actor(ctx, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListNotifications(ctx, actorID, unreadOnly)
}

// MarkNotificationRead flips is_read; only the recipient may do so.
func (e Engine) MarkNotificationRead(ctx context.Context, id, actorID string) (domain.Notification, error) {
	if _, err := e.actor(ctx, actorID); err != nil {
		return domain.Notification{}, err
	}
	n, err := e.Repo.GetNotification(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if n.RecipientID != actorID {
		return domain.Notification{}, access.ForbiddenError{Action: "read another user's notification"}
	}
	if err := e.Repo.MarkNotificationRead(ctx, id, e.nowRFC3339()); err != nil {
		return domain.Notification{}, err
	}
	return e.Repo.GetNotification(ctx, id)
}

// SweepDueDates emits task_overdue and deadline_reminder notifications
// for assigned, non-terminal tasks. windowDays controls how far ahead
// reminders reach. The sweep is invoked explicitly (CLI or cron); there
// is no background scheduler in the core.
func (e Engine) SweepDueDates(ctx context.Context, windowDays int) (int, error) {
	if windowDays < 0 {
		windowDays = 0
	}
	today := e.today()
	until := e.now().UTC().AddDate(0, 0, windowDays).Format(dateLayout)
	tasks, err := e.Repo.ListDueTasks(ctx, until)
	if err != nil {
		return 0, err
	}
	emitted := 0
	for _, t := range tasks {
		notifType := domain.NotifyDeadlineReminder
		title := "Deadline approaching"
		priority := domain.PriorityHigh
		if *t.DueDate < today {
			notifType = domain.NotifyTaskOverdue
			title = "Task overdue"
			priority = domain.PriorityUrgent
		}
		dup, err := e.Repo.HasUnreadNotification(ctx, *t.AssignedTo, t.ID, notifType)
		if err != nil {
			return emitted, err
		}
		if dup {
			continue
		}
		if _, err := e.Notifier.Emit(ctx, notify.Message{
			RecipientID: *t.AssignedTo,
			TaskID:      t.ID,
			Type:        notifType,
			Title:       title,
			Body:        fmt.Sprintf("%q is due %s", t.Title, *t.DueDate),
			Priority:    priority,
		}); err != nil {
			return emitted, err
		}
		emitted++
	}
	return emitted, nil
}

func (e Engine) requireActiveAssignee(ctx context.Context, userID string) error {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ValidationError{Field: "assigned_to", Reason: "user " + userID + " does not exist"}
		}
		return err
	}
	if u.Status != domain.UserActive {
		return ValidationError{Field: "assigned_to", Reason: "user " + userID + " is " + u.Status}
	}
	return nil
}

func validateDate(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, v); err != nil {
		return ValidationError{Field: field, Reason: "must be a YYYY-MM-DD date"}
	}
	return nil
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalizePtr(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func floatOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
