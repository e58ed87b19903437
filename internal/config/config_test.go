package config

import (
	"testing"
)

func TestParseIDList(t *testing.T) {
	ids, err := parseIDList(" 12345, 67890 ,")
	if err != nil {
		t.Fatalf("parseIDList: %v", err)
	}
	if len(ids) != 2 || ids[0] != 12345 || ids[1] != 67890 {
		t.Fatalf("unexpected ids: %v", ids)
	}

	if _, err := parseIDList("abc"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}

	ids, err = parseIDList("")
	if err != nil {
		t.Fatalf("parseIDList empty: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ADMIN_IDS", "111,222")
	t.Setenv("SUPPORT_CHAT_ID", "-1001234")
	t.Setenv("BOT_TOKEN", "test-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Intake.QueueThreshold != 3 {
		t.Errorf("QueueThreshold = %d, want 3", cfg.Intake.QueueThreshold)
	}
	if got := len(cfg.Intake.AllowedExtensions); got != 5 {
		t.Errorf("AllowedExtensions len = %d, want 5", got)
	}
	if cfg.Bot.SupportChatID != -1001234 {
		t.Errorf("SupportChatID = %d", cfg.Bot.SupportChatID)
	}
	if !cfg.Bot.IsAdmin(111) || cfg.Bot.IsAdmin(333) {
		t.Error("IsAdmin mismatch")
	}
	if !cfg.Intake.BadWordsEnabled {
		t.Error("BadWordsEnabled should default to true")
	}
}

func TestInvalidAdminIDs(t *testing.T) {
	t.Setenv("ADMIN_IDS", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed ADMIN_IDS")
	}
}
