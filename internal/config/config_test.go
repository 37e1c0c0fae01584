package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LongJobInMinutes != 30 || cfg.PurgeLogsOlderThanDays != 30 {
		t.Fatalf("unexpected defaults %d %d", cfg.LongJobInMinutes, cfg.PurgeLogsOlderThanDays)
	}
	if cfg.MailerTransport != "default" {
		t.Fatalf("expected default transport, got %q", cfg.MailerTransport)
	}
	if cfg.Disabled {
		t.Fatalf("monitor should be enabled by default")
	}
	if cfg.Recipients() != nil {
		t.Fatalf("expected no recipients, got %v", cfg.Recipients())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor.yaml")
	content := []byte(`
disabled: true
longJobInMinutes: 45
purgeLogsOlderThanDays: 7
notificationRecipients: "ops@example.com, oncall@example.com"
mailerTransport: log
smtp:
  host: mail.example.com
  port: 587
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(FileEnv, path)
	t.Setenv("QUEUE_MONITOR_PURGE_LOGS_OLDER_THAN_DAYS", "14")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Disabled || cfg.LongJobInMinutes != 45 || cfg.MailerTransport != "log" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.PurgeLogsOlderThanDays != 14 {
		t.Fatalf("env should override file, got %d", cfg.PurgeLogsOlderThanDays)
	}
	if cfg.SMTP.Host != "mail.example.com" || cfg.SMTP.Port != 2525 {
		t.Fatalf("unexpected smtp config %+v", cfg.SMTP)
	}
	got := cfg.Recipients()
	if len(got) != 2 || got[0] != "ops@example.com" || got[1] != "oncall@example.com" {
		t.Fatalf("unexpected recipients %v", got)
	}
}

func TestLoadFallsBackOnNonPositiveThresholds(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("QUEUE_MONITOR_LONG_JOB_IN_MINUTES", "0")
	t.Setenv("QUEUE_MONITOR_PURGE_LOGS_OLDER_THAN_DAYS", "-3")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LongJobInMinutes != DefaultLongJobInMinutes || cfg.PurgeLogsOlderThanDays != DefaultPurgeLogsOlderThanDays {
		t.Fatalf("expected defaults, got %d %d", cfg.LongJobInMinutes, cfg.PurgeLogsOlderThanDays)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("REDIS_DB", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRecipientsKeepsBlankEntries(t *testing.T) {
	cfg := Config{NotificationRecipients: "ops@example.com,"}
	got := cfg.Recipients()
	if len(got) != 2 || got[1] != "" {
		t.Fatalf("expected trailing blank entry, got %q", got)
	}
}
