package domain

// User roles.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// Account statuses.
const (
	UserActive    = "active"
	UserInactive  = "inactive"
	UserSuspended = "suspended"
)

// Task statuses. Completed and cancelled are terminal for urgency
// computation, but any permitted actor may still set any status.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusOnHold     = "on_hold"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification types.
const (
	NotifyTaskAssigned     = "task_assigned"
	NotifyTaskCompleted    = "task_completed"
	NotifyTaskOverdue      = "task_overdue"
	NotifyDeadlineReminder = "deadline_reminder"
	NotifyStatusUpdate     = "status_update"
	NotifySystem           = "system"
)

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	Role         string `json:"role" enum:"admin,manager,employee"`
	Status       string `json:"status" enum:"active,inactive,suspended"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Status         string   `json:"status" enum:"pending,in_progress,completed,cancelled,on_hold"`
	Priority       string   `json:"priority" enum:"low,medium,high,urgent"`
	AssignedTo     *string  `json:"assigned_to,omitempty"`
	AssignedBy     string   `json:"assigned_by"`
	ProjectID      *string  `json:"project_id,omitempty"`
	DueDate        *string  `json:"due_date,omitempty"`
	StartDate      *string  `json:"start_date,omitempty"`
	CompletionDate *string  `json:"completion_date,omitempty" format:"date-time"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	ActualHours    *float64 `json:"actual_hours,omitempty"`
	Progress       int      `json:"progress_percentage"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
}

// TaskHistory is an append-only audit record: one row per committed
// field change. Rows are never updated or deleted while the task exists.
type TaskHistory struct {
	ID       int64  `json:"id"`
	TaskID   string `json:"task_id"`
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	ActorID  string `json:"actor_id"`
	TS       string `json:"ts" format:"date-time"`
}

type Notification struct {
	ID          string  `json:"id"`
	RecipientID string  `json:"recipient_id"`
	SenderID    *string `json:"sender_id,omitempty"`
	TaskID      *string `json:"task_id,omitempty"`
	Type        string  `json:"type" enum:"task_assigned,task_completed,task_overdue,deadline_reminder,status_update,system"`
	Title       string  `json:"title"`
	Message     string  `json:"message"`
	Priority    string  `json:"priority" enum:"low,medium,high,urgent"`
	IsRead      bool    `json:"is_read"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	ReadAt      *string `json:"read_at,omitempty" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// DashboardCounts summarizes tasks visible to an actor.
type DashboardCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
	DueToday   int `json:"due_today"`
}

// ValidStatus reports whether s is one of the five task statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusOnHold:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// ValidUserStatus reports whether s is a known account status.
func ValidUserStatus(s string) bool {
	switch s {
	case UserActive, UserInactive, UserSuspended:
		return true
	}
	return false
}
