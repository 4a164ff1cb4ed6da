package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.IntroducerKey != "source" {
		t.Errorf("IntroducerKey = %q, want %q", cfg.IntroducerKey, "source")
	}
	if cfg.HostLanguage != "yaml" {
		t.Errorf("HostLanguage = %q, want %q", cfg.HostLanguage, "yaml")
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.toml")
	content := `
introducer_key = "query"
embedded_language = "prql"

[server]
command = "prql-lsp"
args = ["--stdio"]

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.IntroducerKey != "query" {
		t.Errorf("IntroducerKey = %q", cfg.IntroducerKey)
	}
	if cfg.EmbeddedLanguage != "prql" {
		t.Errorf("EmbeddedLanguage = %q", cfg.EmbeddedLanguage)
	}
	if cfg.Server.Command != "prql-lsp" || len(cfg.Server.Args) != 1 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	// Untouched fields keep their defaults.
	if cfg.HostLanguage != "yaml" {
		t.Errorf("HostLanguage = %q, want default", cfg.HostLanguage)
	}
}

func TestLoad_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.toml")
	if err := os.WriteFile(path, []byte("introducer_key = ["), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Default()
	valid.Server.Command = "embedded-lsp"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing command", func(c *Config) { c.Server.Command = "" }, ErrNoServerCommand},
		{"missing language", func(c *Config) { c.EmbeddedLanguage = "" }, ErrNoLanguageID},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, ErrBadTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if tt.wantErr != nil && err != tt.wantErr {
				t.Errorf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateEmptyIntroducer(t *testing.T) {
	cfg := Default()
	cfg.Server.Command = "embedded-lsp"
	cfg.IntroducerKey = ""

	if err := cfg.Validate(); err == nil {
		t.Error("empty introducer_key must not validate")
	}
}

func TestConfig_DetectionEquals(t *testing.T) {
	a := Default()
	b := Default()
	if !a.DetectionEquals(b) {
		t.Error("identical configs must compare equal")
	}

	b.Log.Level = "debug"
	if !a.DetectionEquals(b) {
		t.Error("log changes do not affect detection")
	}

	b.IntroducerKey = "query"
	if a.DetectionEquals(b) {
		t.Error("introducer change affects detection")
	}
}
