package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskdesk/internal/access"
	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
	"taskdesk/internal/repo"
)

type testEnv struct {
	Engine   engine.Engine
	Ctx      context.Context
	Admin    domain.User
	Manager  domain.User
	Alice    domain.User // employee
	Bob      domain.User // employee
}

var testClock = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return testClock }
	eng.History.Now = eng.Now
	ctx := context.Background()

	admin, err := eng.BootstrapUser(ctx, engine.UserCreateOptions{
		Username: "root", Email: "root@example.com", Password: "password-1", Role: domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	mk := func(username, role string) domain.User {
		u, err := eng.CreateUser(ctx, engine.UserCreateOptions{
			Username: username, Email: username + "@example.com", Password: "password-1", Role: role,
		}, admin.ID)
		if err != nil {
			t.Fatalf("create %s: %v", username, err)
		}
		return u
	}
	return testEnv{
		Engine:  eng,
		Ctx:     ctx,
		Admin:   admin,
		Manager: mk("meg", domain.RoleManager),
		Alice:   mk("alice", domain.RoleEmployee),
		Bob:     mk("bob", domain.RoleEmployee),
	}
}

func (env testEnv) createTask(t *testing.T, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.ActorID == "" {
		opts.ActorID = env.Manager.ID
	}
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCreateTaskDefaultsAndAudit(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{
		Title:      "Write onboarding doc",
		AssignedTo: env.Alice.ID,
	})
	if task.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %s, want medium", task.Priority)
	}
	if task.Progress != 0 {
		t.Fatalf("progress = %d, want 0", task.Progress)
	}
	if task.AssignedBy != env.Manager.ID {
		t.Fatalf("assigned_by = %s, want manager", task.AssignedBy)
	}
	hist, err := env.Engine.ListHistory(env.Ctx, task.ID, env.Manager.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].Field != "created" {
		t.Fatalf("history = %+v, want single created record", hist)
	}
	notifs, err := env.Engine.ListNotifications(env.Ctx, env.Alice.ID, false)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(notifs) != 1 || notifs[0].Type != domain.NotifyTaskAssigned {
		t.Fatalf("notifications = %+v, want one task_assigned", notifs)
	}
}

func TestAssigneeFieldPermissions(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Fix login flake", AssignedTo: env.Alice.ID})

	progress := 40
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, ActorID: env.Alice.ID,
		Status:   strPtr(domain.StatusInProgress),
		Progress: &progress,
	})
	if err != nil {
		t.Fatalf("assignee status+progress: %v", err)
	}
	if updated.Status != domain.StatusInProgress || updated.Progress != 40 {
		t.Fatalf("got status=%s progress=%d", updated.Status, updated.Progress)
	}

	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, ActorID: env.Alice.ID,
		Title: strPtr("Renamed by assignee"),
	})
	var fe access.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("title change by assignee: got %v, want ForbiddenError", err)
	}

	// Rejected update must leave state and audit untouched.
	after, err := env.Engine.GetTask(env.Ctx, task.ID, env.Alice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Title != "Fix login flake" {
		t.Fatalf("title changed after rejected update: %s", after.Title)
	}
	hist, _ := env.Engine.ListHistory(env.Ctx, task.ID, env.Manager.ID)
	for _, h := range hist {
		if h.Field == "title" {
			t.Fatalf("unexpected title audit record after rejection")
		}
	}
}

func TestMixedPatchRejectedAtomically(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Ship exports", AssignedTo: env.Alice.ID})

	// One allowed field plus one forbidden field: nothing may land.
	progress := 80
	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, ActorID: env.Alice.ID,
		Progress: &progress,
		Priority: strPtr(domain.PriorityUrgent),
	})
	var fe access.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("got %v, want ForbiddenError", err)
	}
	after, _ := env.Engine.GetTask(env.Ctx, task.ID, env.Alice.ID)
	if after.Progress != 0 || after.Priority != domain.PriorityMedium {
		t.Fatalf("partial write leaked: progress=%d priority=%s", after.Progress, after.Priority)
	}
	n, err := env.Engine.Repo.CountHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("count history: %v", err)
	}
	if n != 1 {
		t.Fatalf("history grew after rejected update: %d records", n)
	}
}

func TestEmployeeVisibilityIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Quarter planning", AssignedTo: env.Alice.ID})

	// Bob is neither assignee nor assigner: the task must not exist for him.
	if _, err := env.Engine.GetTask(env.Ctx, task.ID, env.Bob.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get by outsider: got %v, want ErrNotFound", err)
	}
	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, ActorID: env.Bob.ID, Status: strPtr(domain.StatusCancelled),
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("update by outsider: got %v, want ErrNotFound", err)
	}
	if _, err := env.Engine.ListHistory(env.Ctx, task.ID, env.Bob.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("history by outsider: got %v, want ErrNotFound", err)
	}

	tasks, err := env.Engine.ListTasks(env.Ctx, env.Bob.ID, repo.TaskFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("outsider sees %d tasks, want 0", len(tasks))
	}
}

func TestEmployeeAssignerKeepsControl(t *testing.T) {
	env := newTestEnv(t)
	// Alice creates a task for Bob; she is not the assignee but may
	// still edit every field as the assigner.
	task := env.createTask(t, engine.TaskCreateOptions{
		Title: "Review PR", AssignedTo: env.Bob.ID, ActorID: env.Alice.ID,
	})
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, ActorID: env.Alice.ID,
		Title:    strPtr("Review and merge PR"),
		Priority: strPtr(domain.PriorityHigh),
	})
	if err != nil {
		t.Fatalf("assigner update: %v", err)
	}
	if updated.Title != "Review and merge PR" || updated.Priority != domain.PriorityHigh {
		t.Fatalf("assigner edit did not apply: %+v", updated)
	}
}

func TestUpdateRecordsOneAuditRowPerField(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Migrate billing"})

	due := "2026-03-20"
	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, ActorID: env.Manager.ID,
		Title:           strPtr("Migrate billing v2"),
		Priority:        strPtr(domain.PriorityHigh),
		DueDate:         &due,
		DueDateProvided: true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	hist, _ := env.Engine.ListHistory(env.Ctx, task.ID, env.Manager.ID)
	if len(hist) != 4 { // created + 3 changed fields
		t.Fatalf("history = %d records, want 4", len(hist))
	}
	fields := map[string]bool{}
	for _, h := range hist {
		fields[h.Field] = true
	}
	for _, want := range []string{"created", "title", "priority", "due_date"} {
		if !fields[want] {
			t.Fatalf("missing audit record for %s (have %v)", want, fields)
		}
	}

	// Re-sending identical values is a no-op: no new audit rows.
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, ActorID: env.Manager.ID,
		Title:    strPtr("Migrate billing v2"),
		Priority: strPtr(domain.PriorityHigh),
	})
	if err != nil {
		t.Fatalf("no-op update: %v", err)
	}
	hist2, _ := env.Engine.ListHistory(env.Ctx, task.ID, env.Manager.ID)
	if len(hist2) != len(hist) {
		t.Fatalf("no-op update appended history: %d -> %d", len(hist), len(hist2))
	}
}

func TestCompletionDateFollowsStatus(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Close the books", AssignedTo: env.Alice.ID})

	done, err := env.Engine.UpdateStatus(env.Ctx, task.ID, domain.StatusCompleted, nil, env.Alice.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletionDate == nil {
		t.Fatalf("completion_date not set on completion")
	}
	if *done.CompletionDate != testClock.UTC().Format(time.RFC3339) {
		t.Fatalf("completion_date = %s", *done.CompletionDate)
	}

	reopened, err := env.Engine.UpdateStatus(env.Ctx, task.ID, domain.StatusInProgress, nil, env.Alice.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.CompletionDate != nil {
		t.Fatalf("completion_date not cleared on reopen: %v", *reopened.CompletionDate)
	}
}

func TestValidationRejectsBeforeAnyWrite(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Tune cache", AssignedTo: env.Alice.ID})

	cases := []engine.TaskUpdateOptions{
		{ID: task.ID, ActorID: env.Manager.ID, Progress: intPtr(101)},
		{ID: task.ID, ActorID: env.Manager.ID, Progress: intPtr(-1)},
		{ID: task.ID, ActorID: env.Manager.ID, Status: strPtr("archived")},
		{ID: task.ID, ActorID: env.Manager.ID, Priority: strPtr("asap")},
		{ID: task.ID, ActorID: env.Manager.ID, Title: strPtr("")},
		{ID: task.ID, ActorID: env.Manager.ID, DueDate: strPtr("20-03-2026"), DueDateProvided: true},
		{ID: task.ID, ActorID: env.Manager.ID, ActualHours: floatPtr(-2), ActualProvided: true},
	}
	for i, opts := range cases {
		_, err := env.Engine.UpdateTask(env.Ctx, opts)
		var ve engine.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("case %d: got %v, want ValidationError", i, err)
		}
	}
	n, err := env.Engine.Repo.CountHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("count history: %v", err)
	}
	if n != 1 {
		t.Fatalf("rejected updates wrote history: %d records", n)
	}
}

func TestAssignmentRequiresActiveUser(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SetUserStatus(env.Ctx, env.Bob.ID, domain.UserSuspended, env.Admin.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "For bob", AssignedTo: env.Bob.ID, ActorID: env.Manager.ID,
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "assigned_to" {
		t.Fatalf("create for suspended user: got %v", err)
	}

	task := env.createTask(t, engine.TaskCreateOptions{Title: "Reassign me", AssignedTo: env.Alice.ID})
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, ActorID: env.Manager.ID,
		AssignedTo: &env.Bob.ID, AssignProvided: true,
	})
	if !errors.As(err, &ve) {
		t.Fatalf("reassign to suspended user: got %v", err)
	}
}

func TestDeleteTaskAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Obsolete", AssignedTo: env.Alice.ID})

	// Assignee sees the task, so denial is Forbidden, not NotFound.
	err := env.Engine.DeleteTask(env.Ctx, task.ID, env.Alice.ID)
	var fe access.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("delete by assignee: got %v, want ForbiddenError", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, env.Bob.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("delete by outsider: got %v, want ErrNotFound", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, env.Manager.ID); !errors.As(err, &fe) {
		t.Fatalf("delete by manager: got %v, want ForbiddenError", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, env.Admin.ID); err != nil {
		t.Fatalf("delete by admin: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, task.ID, env.Admin.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("task still present after delete: %v", err)
	}
}

func TestUrgencyOrdering(t *testing.T) {
	env := newTestEnv(t)
	mk := func(title, due, priority, status string) domain.Task {
		task := env.createTask(t, engine.TaskCreateOptions{
			Title: title, DueDate: due, Priority: priority, AssignedTo: env.Alice.ID,
		})
		if status != domain.StatusPending {
			var err error
			task, err = env.Engine.UpdateStatus(env.Ctx, task.ID, status, nil, env.Manager.ID)
			if err != nil {
				t.Fatalf("set status: %v", err)
			}
		}
		return task
	}
	overdue := mk("overdue-low", "2026-03-01", domain.PriorityLow, domain.StatusPending)
	dueToday := mk("today-medium", "2026-03-10", domain.PriorityMedium, domain.StatusPending)
	futureUrgent := mk("future-urgent", "2026-04-01", domain.PriorityUrgent, domain.StatusPending)
	// Completed with a past due date must not rank as overdue.
	donePastDue := mk("done-past-due", "2026-02-01", domain.PriorityHigh, domain.StatusCompleted)

	tasks, err := env.Engine.ListTasks(env.Ctx, env.Manager.ID, repo.TaskFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("got %d tasks", len(tasks))
	}
	wantOrder := []string{overdue.ID, dueToday.ID, futureUrgent.ID, donePastDue.ID}
	for i, want := range wantOrder {
		if tasks[i].ID != want {
			got := make([]string, len(tasks))
			for j, task := range tasks {
				got[j] = task.Title
			}
			t.Fatalf("order = %v", got)
		}
	}
}

func TestDashboardScoping(t *testing.T) {
	env := newTestEnv(t)
	env.createTask(t, engine.TaskCreateOptions{Title: "a", AssignedTo: env.Alice.ID, DueDate: "2026-03-01"})
	env.createTask(t, engine.TaskCreateOptions{Title: "b", AssignedTo: env.Alice.ID, DueDate: "2026-03-10"})
	env.createTask(t, engine.TaskCreateOptions{Title: "c", AssignedTo: env.Bob.ID})
	env.createTask(t, engine.TaskCreateOptions{Title: "d"})

	global, err := env.Engine.Dashboard(env.Ctx, env.Manager.ID)
	if err != nil {
		t.Fatalf("manager dashboard: %v", err)
	}
	if global.Total != 4 || global.Pending != 4 || global.Overdue != 1 || global.DueToday != 1 {
		t.Fatalf("global counts = %+v", global)
	}

	mine, err := env.Engine.Dashboard(env.Ctx, env.Alice.ID)
	if err != nil {
		t.Fatalf("employee dashboard: %v", err)
	}
	if mine.Total != 2 || mine.Overdue != 1 || mine.DueToday != 1 {
		t.Fatalf("scoped counts = %+v", mine)
	}
}

func TestSweepDueDates(t *testing.T) {
	env := newTestEnv(t)
	env.createTask(t, engine.TaskCreateOptions{Title: "late", AssignedTo: env.Alice.ID, DueDate: "2026-03-05"})
	env.createTask(t, engine.TaskCreateOptions{Title: "tomorrow", AssignedTo: env.Bob.ID, DueDate: "2026-03-11"})
	env.createTask(t, engine.TaskCreateOptions{Title: "far-out", AssignedTo: env.Bob.ID, DueDate: "2026-06-01"})
	env.createTask(t, engine.TaskCreateOptions{Title: "unassigned", DueDate: "2026-03-01"})

	n, err := env.Engine.SweepDueDates(env.Ctx, 1)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("emitted %d, want 2", n)
	}
	overdueNotifs := notifsOfType(t, env, env.Alice.ID, domain.NotifyTaskOverdue)
	if len(overdueNotifs) != 1 {
		t.Fatalf("alice overdue notifications = %+v", overdueNotifs)
	}
	reminders := notifsOfType(t, env, env.Bob.ID, domain.NotifyDeadlineReminder)
	if len(reminders) != 1 {
		t.Fatalf("bob reminders = %+v", reminders)
	}

	// While the first notification stays unread the sweep is quiet.
	n, err = env.Engine.SweepDueDates(env.Ctx, 1)
	if err != nil || n != 0 {
		t.Fatalf("second sweep emitted %d (%v), want 0", n, err)
	}

	// Once read, the next sweep re-notifies.
	if _, err := env.Engine.MarkNotificationRead(env.Ctx, overdueNotifs[0].ID, env.Alice.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	n, err = env.Engine.SweepDueDates(env.Ctx, 1)
	if err != nil || n != 1 {
		t.Fatalf("third sweep emitted %d (%v), want 1", n, err)
	}
}

func TestStatusChangeNotifiesAssigner(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Deploy", AssignedTo: env.Alice.ID})

	if _, err := env.Engine.UpdateStatus(env.Ctx, task.ID, domain.StatusCompleted, floatPtr(6), env.Alice.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	notifs, _ := env.Engine.ListNotifications(env.Ctx, env.Manager.ID, false)
	if len(notifs) != 1 || notifs[0].Type != domain.NotifyTaskCompleted {
		t.Fatalf("assigner notifications = %+v", notifs)
	}

	// Idempotent repeat: same status again changes nothing and stays quiet.
	before, _ := env.Engine.ListHistory(env.Ctx, task.ID, env.Manager.ID)
	if _, err := env.Engine.UpdateStatus(env.Ctx, task.ID, domain.StatusCompleted, floatPtr(6), env.Alice.ID); err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	after, _ := env.Engine.ListHistory(env.Ctx, task.ID, env.Manager.ID)
	if len(after) != len(before) {
		t.Fatalf("idempotent repeat appended history")
	}
	notifs, _ = env.Engine.ListNotifications(env.Ctx, env.Manager.ID, false)
	if len(notifs) != 1 {
		t.Fatalf("idempotent repeat emitted notification")
	}
}

func TestNotificationRecipientOnly(t *testing.T) {
	env := newTestEnv(t)
	env.createTask(t, engine.TaskCreateOptions{Title: "Ping alice", AssignedTo: env.Alice.ID})
	notifs, _ := env.Engine.ListNotifications(env.Ctx, env.Alice.ID, false)
	if len(notifs) != 1 {
		t.Fatalf("notifications = %+v", notifs)
	}
	_, err := env.Engine.MarkNotificationRead(env.Ctx, notifs[0].ID, env.Bob.ID)
	var fe access.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("mark read by non-recipient: got %v, want ForbiddenError", err)
	}
	n, err := env.Engine.MarkNotificationRead(env.Ctx, notifs[0].ID, env.Alice.ID)
	if err != nil || !n.IsRead || n.ReadAt == nil {
		t.Fatalf("mark read: %+v %v", n, err)
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.Authenticate(env.Ctx, "alice", "password-1")
	if err != nil || u.ID != env.Alice.ID {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "alice", "wrong"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "nobody", "password-1"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", err)
	}
	if _, err := env.Engine.SetUserStatus(env.Ctx, env.Alice.ID, domain.UserSuspended, env.Admin.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	_, err = env.Engine.Authenticate(env.Ctx, "alice", "password-1")
	var fe access.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("suspended login: got %v, want ForbiddenError", err)
	}
}

func TestRegisterDefaultsToEmployee(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.Register(env.Ctx, engine.UserCreateOptions{
		Username: "carol", Email: "carol@example.com", Password: "password-1", Role: domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Role != domain.RoleEmployee {
		t.Fatalf("self-registration role = %s, want employee", u.Role)
	}
	if u.Status != domain.UserActive {
		t.Fatalf("status = %s, want active", u.Status)
	}
}

func TestDuplicateUsernameConflict(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Register(env.Ctx, engine.UserCreateOptions{
		Username: "alice", Email: "other@example.com", Password: "password-1",
	})
	var ce repo.ConflictError
	if !errors.As(err, &ce) || ce.Field != "username" {
		t.Fatalf("duplicate username: got %v", err)
	}
	_, err = env.Engine.Register(env.Ctx, engine.UserCreateOptions{
		Username: "alice2", Email: "alice@example.com", Password: "password-1",
	})
	if !errors.As(err, &ce) || ce.Field != "email" {
		t.Fatalf("duplicate email: got %v", err)
	}
}

func TestRoleManagement(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetUserRole(env.Ctx, env.Bob.ID, domain.RoleManager, env.Manager.ID)
	var fe access.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("role change by manager: got %v, want ForbiddenError", err)
	}
	u, err := env.Engine.SetUserRole(env.Ctx, env.Bob.ID, domain.RoleManager, env.Admin.ID)
	if err != nil || u.Role != domain.RoleManager {
		t.Fatalf("role change by admin: %+v %v", u, err)
	}
	_, err = env.Engine.SetUserRole(env.Ctx, env.Admin.ID, domain.RoleEmployee, env.Admin.ID)
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("self-demotion: got %v, want ValidationError", err)
	}
}

func TestSuspendedActorCannotOperate(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Frozen", AssignedTo: env.Alice.ID})
	if _, err := env.Engine.SetUserStatus(env.Ctx, env.Alice.ID, domain.UserSuspended, env.Admin.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	_, err := env.Engine.UpdateStatus(env.Ctx, task.ID, domain.StatusInProgress, nil, env.Alice.ID)
	var fe access.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("suspended actor update: got %v, want ForbiddenError", err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	plaintext, key, err := env.Engine.CreateAPIKey(env.Ctx, "ci", env.Alice.ID)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if plaintext == "" || key.KeyHash == plaintext {
		t.Fatalf("key stored in plaintext")
	}
	u, err := env.Engine.ResolveAPIKey(env.Ctx, plaintext)
	if err != nil || u.ID != env.Alice.ID {
		t.Fatalf("resolve: %+v %v", u, err)
	}
	// Another user cannot revoke it.
	if err := env.Engine.DeleteAPIKey(env.Ctx, key.ID, env.Bob.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-user revoke: got %v", err)
	}
	if err := env.Engine.DeleteAPIKey(env.Ctx, key.ID, env.Alice.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.Engine.ResolveAPIKey(env.Ctx, plaintext); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("revoked key still resolves: %v", err)
	}
}

func notifsOfType(t *testing.T, env testEnv, recipientID, notifType string) []domain.Notification {
	t.Helper()
	all, err := env.Engine.ListNotifications(env.Ctx, recipientID, false)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	var out []domain.Notification
	for _, n := range all {
		if n.Type == notifType {
			out = append(out, n)
		}
	}
	return out
}

func strPtr(s string) *string    { return &s }
func intPtr(i int) *int          { return &i }
func floatPtr(f float64) *float64 { return &f }
