package access

import (
	"testing"

	"taskdesk/internal/domain"
)

func user(id, role string) domain.User {
	return domain.User{ID: id, Role: role, Status: domain.UserActive}
}

func task(assignedTo, assignedBy string) domain.Task {
	t := domain.Task{AssignedBy: assignedBy}
	if assignedTo != "" {
		t.AssignedTo = &assignedTo
	}
	return t
}

func TestResolvePrecedence(t *testing.T) {
	cases := []struct {
		name  string
		actor domain.User
		t     domain.Task
		want  Level
	}{
		{"admin", user("u1", domain.RoleAdmin), task("other", "other"), LevelElevated},
		{"manager", user("u1", domain.RoleManager), task("other", "other"), LevelElevated},
		{"assignee", user("u1", domain.RoleEmployee), task("u1", "other"), LevelAssignee},
		{"assigner", user("u1", domain.RoleEmployee), task("other", "u1"), LevelAssigner},
		{"self-assigned", user("u1", domain.RoleEmployee), task("u1", "u1"), LevelAssignee},
		{"unrelated", user("u1", domain.RoleEmployee), task("other", "other"), LevelNone},
		{"unassigned", user("u1", domain.RoleEmployee), task("", "other"), LevelNone},
	}
	for _, tc := range cases {
		if got := Resolve(tc.actor, tc.t); got != tc.want {
			t.Errorf("%s: Resolve = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanEditField(t *testing.T) {
	for _, field := range []string{"status", "progress_percentage", "actual_hours"} {
		if !CanEditField(LevelAssignee, field) {
			t.Errorf("assignee should edit %s", field)
		}
	}
	for _, field := range []string{"title", "description", "priority", "assigned_to", "due_date", "estimated_hours"} {
		if CanEditField(LevelAssignee, field) {
			t.Errorf("assignee must not edit %s", field)
		}
		if !CanEditField(LevelAssigner, field) {
			t.Errorf("assigner should edit %s", field)
		}
		if !CanEditField(LevelElevated, field) {
			t.Errorf("elevated should edit %s", field)
		}
	}
	if CanEditField(LevelNone, "status") {
		t.Errorf("none must not edit anything")
	}
}

func TestCanSee(t *testing.T) {
	if !CanSee(user("m", domain.RoleManager), task("other", "other")) {
		t.Errorf("manager sees everything")
	}
	if !CanSee(user("e", domain.RoleEmployee), task("e", "other")) {
		t.Errorf("assignee sees own task")
	}
	if CanSee(user("e", domain.RoleEmployee), task("other", "e")) {
		t.Errorf("employee-assigner is hidden from list views")
	}
	if CanSee(user("e", domain.RoleEmployee), task("", "other")) {
		t.Errorf("unassigned task hidden from employees")
	}
}
