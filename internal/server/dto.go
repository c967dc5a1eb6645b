package server

import (
	"taskdesk/internal/domain"
)

type RegisterRequest struct {
	Username    string `json:"username" example:"jane"`
	Email       string `json:"email" example:"jane@example.com"`
	DisplayName string `json:"display_name,omitempty"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type CreateUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Password    string `json:"password"`
	Role        string `json:"role,omitempty" enum:"admin,manager,employee"`
}

type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		Status:      u.Status,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func mapUsers(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse(u))
	}
	return out
}

type CreateTaskRequest struct {
	Title          string   `json:"title"`
	Description    *string  `json:"description,omitempty"`
	AssignedTo     *string  `json:"assigned_to,omitempty"`
	ProjectID      *string  `json:"project_id,omitempty"`
	Priority       *string  `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	DueDate        *string  `json:"due_date,omitempty" example:"2026-09-15"`
	StartDate      *string  `json:"start_date,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

type UpdateTaskRequest struct {
	Title          *string  `json:"title,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Status         *string  `json:"status,omitempty" enum:"pending,in_progress,completed,cancelled,on_hold"`
	Priority       *string  `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Progress       *int     `json:"progress_percentage,omitempty" minimum:"0" maximum:"100"`
	AssignedTo     *string  `json:"assigned_to,omitempty"`
	ProjectID      *string  `json:"project_id,omitempty"`
	DueDate        *string  `json:"due_date,omitempty"`
	StartDate      *string  `json:"start_date,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	ActualHours    *float64 `json:"actual_hours,omitempty"`
}

type UpdateStatusRequest struct {
	Status      string   `json:"status" enum:"pending,in_progress,completed,cancelled,on_hold"`
	ActualHours *float64 `json:"actual_hours,omitempty"`
}

type TaskResponse struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	AssignedTo     *string  `json:"assigned_to,omitempty"`
	AssignedBy     string   `json:"assigned_by"`
	ProjectID      *string  `json:"project_id,omitempty"`
	DueDate        *string  `json:"due_date,omitempty"`
	StartDate      *string  `json:"start_date,omitempty"`
	CompletionDate *string  `json:"completion_date,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	ActualHours    *float64 `json:"actual_hours,omitempty"`
	Progress       int      `json:"progress_percentage"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         t.Status,
		Priority:       t.Priority,
		AssignedTo:     t.AssignedTo,
		AssignedBy:     t.AssignedBy,
		ProjectID:      t.ProjectID,
		DueDate:        t.DueDate,
		StartDate:      t.StartDate,
		CompletionDate: t.CompletionDate,
		EstimatedHours: t.EstimatedHours,
		ActualHours:    t.ActualHours,
		Progress:       t.Progress,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func mapTasks(tasks []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse(t))
	}
	return out
}

type HistoryResponse struct {
	ID       int64  `json:"id"`
	TaskID   string `json:"task_id"`
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	ActorID  string `json:"actor_id"`
	TS       string `json:"ts"`
}

func mapHistory(items []domain.TaskHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(items))
	for _, h := range items {
		out = append(out, HistoryResponse{
			ID:       h.ID,
			TaskID:   h.TaskID,
			Field:    h.Field,
			OldValue: h.OldValue,
			NewValue: h.NewValue,
			ActorID:  h.ActorID,
			TS:       h.TS,
		})
	}
	return out
}

type NotificationResponse struct {
	ID          string  `json:"id"`
	RecipientID string  `json:"recipient_id"`
	SenderID    *string `json:"sender_id,omitempty"`
	TaskID      *string `json:"task_id,omitempty"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Message     string  `json:"message"`
	Priority    string  `json:"priority"`
	IsRead      bool    `json:"is_read"`
	CreatedAt   string  `json:"created_at"`
	ReadAt      *string `json:"read_at,omitempty"`
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		TaskID:      n.TaskID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		Priority:    n.Priority,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
		ReadAt:      n.ReadAt,
	}
}

func mapNotifications(items []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notificationResponse(n))
	}
	return out
}

type DashboardResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
	DueToday   int `json:"due_today"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt}
}
