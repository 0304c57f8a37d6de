package config

import (
	"strings"
	"testing"
)

func setRequiredRegistryEnv(t *testing.T) {
	t.Setenv("ATTRIBUTE_TYPE_NIN", "at-nin-uuid")
	t.Setenv("ATTRIBUTE_TYPE_EMAIL", "at-email-uuid")
	t.Setenv("ATTRIBUTE_TYPE_PHONE", "at-phone-uuid")
	t.Setenv("DEFAULT_TEAM_ROLE_ID", "team-role-1")
}

func TestLoadRegistryConfigReportsAllMissingSettings(t *testing.T) {
	required := []string{
		"ATTRIBUTE_TYPE_NIN",
		"ATTRIBUTE_TYPE_EMAIL",
		"ATTRIBUTE_TYPE_PHONE",
		"DEFAULT_TEAM_ROLE_ID",
	}
	for _, key := range required {
		t.Setenv(key, "")
	}

	_, err := LoadRegistryConfig()
	if err == nil {
		t.Fatal("expected error when required settings are unset")
	}
	for _, key := range required {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q should name %s", err, key)
		}
	}
}

func TestLoadRegistryConfigPartiallyMissing(t *testing.T) {
	setRequiredRegistryEnv(t)
	t.Setenv("ATTRIBUTE_TYPE_EMAIL", "")

	_, err := LoadRegistryConfig()
	if err == nil {
		t.Fatal("expected error when one setting is unset")
	}
	if !strings.Contains(err.Error(), "ATTRIBUTE_TYPE_EMAIL") {
		t.Errorf("error %q should name ATTRIBUTE_TYPE_EMAIL", err)
	}
	if strings.Contains(err.Error(), "ATTRIBUTE_TYPE_NIN") {
		t.Errorf("error %q must not name settings that are set", err)
	}
}

func TestLoadRegistryConfigDefaults(t *testing.T) {
	setRequiredRegistryEnv(t)
	t.Setenv("RECOVERY_CONCURRENCY", "")
	t.Setenv("SYNC_PAGE_SIZE", "")
	t.Setenv("PASSWORD_WORDS", "")
	t.Setenv("DEFAULT_USER_ROLE", "")

	cfg, err := LoadRegistryConfig()
	if err != nil {
		t.Fatalf("LoadRegistryConfig: %v", err)
	}
	if cfg.RecoveryConcurrency != 5 {
		t.Errorf("RecoveryConcurrency = %d, want 5", cfg.RecoveryConcurrency)
	}
	if cfg.SyncPageSize != 500 {
		t.Errorf("SyncPageSize = %d, want 500", cfg.SyncPageSize)
	}
	if cfg.DefaultRole != "Provider" {
		t.Errorf("DefaultRole = %q, want Provider", cfg.DefaultRole)
	}
	if len(cfg.PasswordWords) == 0 {
		t.Error("PasswordWords must fall back to the built-in list")
	}
	if field, ok := cfg.AttributeTypes.FieldForAttributeType("at-email-uuid"); !ok || field != "email" {
		t.Errorf("FieldForAttributeType = %q/%v, want email/true", field, ok)
	}
}

func TestLoadRegistryConfigPasswordWordsFromEnv(t *testing.T) {
	setRequiredRegistryEnv(t)
	t.Setenv("PASSWORD_WORDS", " mango , simba ,, chai ")

	cfg, err := LoadRegistryConfig()
	if err != nil {
		t.Fatalf("LoadRegistryConfig: %v", err)
	}
	want := []string{"mango", "simba", "chai"}
	if len(cfg.PasswordWords) != len(want) {
		t.Fatalf("PasswordWords = %v, want %v", cfg.PasswordWords, want)
	}
	for i, w := range want {
		if cfg.PasswordWords[i] != w {
			t.Errorf("PasswordWords[%d] = %q, want %q", i, cfg.PasswordWords[i], w)
		}
	}
}
