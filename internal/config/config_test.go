package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Port:                 "8080",
		Environment:          "dev",
		Store:                StoreBadger,
		BadgerDir:            "/tmp/badger",
		TwilioAuthToken:      "secret",
		EmergencyPhoneNumber: "911",
		MaxEmptyTurns:        2,
		GatherTimeout:        5 * time.Second,
		AnalysisTimeout:      8 * time.Second,
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("TABLE_PREFIX", "")
	t.Setenv("ANALYSIS_TIMEOUT", "3")
	t.Setenv("GATHER_TIMEOUT", "750ms")
	t.Setenv("MIN_CONFIDENCE", "0.4")
	t.Setenv("BARGE_IN", "false")
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("PUBLIC_BASE_URL", "https://agent.example.com/")

	cfg := Load()

	if cfg.TablePrefix != "test_" {
		t.Errorf("TablePrefix = %q", cfg.TablePrefix)
	}
	if cfg.AnalysisTimeout != 3*time.Second || cfg.GatherTimeout != 750*time.Millisecond {
		t.Errorf("timeouts = %v / %v", cfg.AnalysisTimeout, cfg.GatherTimeout)
	}
	if cfg.MinConfidence != 0.4 || cfg.BargeIn {
		t.Errorf("MinConfidence = %v BargeIn = %v", cfg.MinConfidence, cfg.BargeIn)
	}
	if cfg.SupabaseJWKSURL != "https://abc.supabase.co/auth/v1/.well-known/jwks.json" {
		t.Errorf("SupabaseJWKSURL = %q", cfg.SupabaseJWKSURL)
	}
	if cfg.PublicBaseURL != "https://agent.example.com" {
		t.Errorf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
	if cfg.MaxEmptyTurns != 2 || cfg.OpenAIModel != "gpt-4o-mini" || !cfg.LiveEvents {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoad_LiveEventsSwitch(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "false", want: false},
		{value: "0", want: false},
		{value: "true", want: true},
		{value: "", want: true},
	}

	for _, tt := range tests {
		t.Run("LIVE_EVENTS="+tt.value, func(t *testing.T) {
			t.Setenv("LIVE_EVENTS", tt.value)
			if got := Load().LiveEvents; got != tt.want {
				t.Errorf("LiveEvents = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "mongo" }, wantErr: true},
		{name: "postgres needs url", mutate: func(c *Config) { c.Store = StorePostgres }, wantErr: true},
		{name: "missing token", mutate: func(c *Config) { c.TwilioAuthToken = "" }, wantErr: true},
		{name: "bypass allows missing token in dev", mutate: func(c *Config) {
			c.TwilioAuthToken = ""
			c.WebhookSignatureBypass = true
		}},
		{name: "bypass rejected in prod", mutate: func(c *Config) {
			c.Environment = "prod"
			c.PublicBaseURL = "https://agent.example.com"
			c.WebhookSignatureBypass = true
		}, wantErr: true},
		{name: "prod needs public url", mutate: func(c *Config) { c.Environment = "prod" }, wantErr: true},
		{name: "confidence above one", mutate: func(c *Config) { c.MinConfidence = 1.5 }, wantErr: true},
		{name: "zero empty turns", mutate: func(c *Config) { c.MaxEmptyTurns = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifySignatures(t *testing.T) {
	cfg := validConfig()
	if !cfg.VerifySignatures() {
		t.Error("signatures must be verified by default")
	}
	cfg.WebhookSignatureBypass = true
	if cfg.VerifySignatures() {
		t.Error("bypass should disable verification in dev")
	}
	cfg.Environment = "prod"
	if !cfg.VerifySignatures() {
		t.Error("bypass must never apply in prod")
	}
}

func TestSetupLogFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"callagent-2020-01-01T00-00-00.log", "callagent-2020-01-02T00-00-00.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	f, err := SetupLogFile(dir, 2)
	if err != nil {
		t.Fatalf("SetupLogFile() error = %v", err)
	}
	f.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "callagent-*.log"))
	if len(files) != 2 {
		t.Errorf("kept %d log files, want 2", len(files))
	}
	if _, err := os.Stat(filepath.Join(dir, "callagent-2020-01-01T00-00-00.log")); !os.IsNotExist(err) {
		t.Error("oldest log should be removed")
	}
}
