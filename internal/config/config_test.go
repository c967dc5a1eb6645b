package config

import (
	"testing"
)

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("auth:\n  jwt_secret: s3cret\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("jwt_secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Addr != "127.0.0.1:8844" {
		t.Fatalf("addr default lost: %q", cfg.Server.Addr)
	}
	if cfg.Auth.TokenTTLHours != 24 {
		t.Fatalf("ttl default lost: %d", cfg.Auth.TokenTTLHours)
	}
	if cfg.Notifications.ReminderWindowDays != 1 {
		t.Fatalf("reminder window default lost: %d", cfg.Notifications.ReminderWindowDays)
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := []string{
		"server:\n  base_path: v1\n",
		"auth:\n  token_ttl_hours: -1\n",
		"notifications:\n  webhooks:\n    - types: [task_assigned]\n",
	}
	for i, src := range cases {
		if _, err := FromYAML([]byte(src)); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestWebhookConfig(t *testing.T) {
	cfg, err := FromYAML([]byte(`notifications:
  reminder_window_days: 3
  webhooks:
    - url: https://hooks.example.com/taskdesk
      types: [task_overdue, task_completed]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Notifications.Webhooks) != 1 {
		t.Fatalf("webhooks = %+v", cfg.Notifications.Webhooks)
	}
	wh := cfg.Notifications.Webhooks[0]
	if wh.URL != "https://hooks.example.com/taskdesk" || len(wh.Types) != 2 {
		t.Fatalf("webhook = %+v", wh)
	}
}
