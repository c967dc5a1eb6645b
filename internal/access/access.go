package access

import (
	"fmt"

	"taskdesk/internal/domain"
)

// ForbiddenError indicates the actor lacks the role or relationship
// needed for an operation.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not permitted to %s", e.Action)
}

// Level is the actor's effective capability over a task, resolved in
// precedence order: elevated role first, then assignee, then assigner.
type Level int

const (
	// LevelNone means no role or relationship matches.
	LevelNone Level = iota
	// LevelAssignee may change status, progress and actual hours only.
	LevelAssignee
	// LevelAssigner may change any field of a task it created.
	LevelAssigner
	// LevelElevated (admin or manager) is unrestricted.
	LevelElevated
)

// Resolve computes the actor's level over a task.
func Resolve(actor domain.User, t domain.Task) Level {
	if actor.Role == domain.RoleAdmin || actor.Role == domain.RoleManager {
		return LevelElevated
	}
	if t.AssignedTo != nil && *t.AssignedTo == actor.ID {
		return LevelAssignee
	}
	if t.AssignedBy == actor.ID {
		return LevelAssigner
	}
	return LevelNone
}

// assigneeFields are the only fields an assignee may change.
var assigneeFields = map[string]bool{
	"status":              true,
	"progress_percentage": true,
	"actual_hours":        true,
}

// CanEditField reports whether a level permits changing the named field.
func CanEditField(level Level, field string) bool {
	switch level {
	case LevelElevated, LevelAssigner:
		return true
	case LevelAssignee:
		return assigneeFields[field]
	}
	return false
}

// CanSee reports whether an actor may read a task at all. Admins and
// managers see everything; employees see only their own assignments.
// Denial surfaces as NotFound upstream so existence never leaks.
func CanSee(actor domain.User, t domain.Task) bool {
	if actor.Role == domain.RoleAdmin || actor.Role == domain.RoleManager {
		return true
	}
	return t.AssignedTo != nil && *t.AssignedTo == actor.ID
}
