package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("JWT_SECRET", "jwt-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.WhatsApp.QRTimeout != 60*time.Second {
		t.Errorf("QRTimeout = %s, want 60s", cfg.WhatsApp.QRTimeout)
	}
	if cfg.WhatsApp.ChatListLimit != 50 {
		t.Errorf("ChatListLimit = %d, want 50", cfg.WhatsApp.ChatListLimit)
	}
	if cfg.QRCode.Size != 256 {
		t.Errorf("QRCode.Size = %d, want 256", cfg.QRCode.Size)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("WA_QR_TIMEOUT", "30")
	t.Setenv("WA_SESSION_DIR", "/var/lib/wa-sessions")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.WhatsApp.QRTimeout != 30*time.Second {
		t.Errorf("QRTimeout = %s, want 30s", cfg.WhatsApp.QRTimeout)
	}
	if cfg.WhatsApp.SessionDir != "/var/lib/wa-sessions" {
		t.Errorf("SessionDir = %q", cfg.WhatsApp.SessionDir)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != "https://a.example" {
		t.Errorf("AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080"},
			Database: DatabaseConfig{Password: "secret"},
			JWT:      JWTConfig{Secret: "jwt-secret"},
			WhatsApp: WhatsAppConfig{QRTimeout: 60 * time.Second, SessionDir: "./sessions"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing db password", func(c *Config) { c.Database.Password = "" }, true},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, true},
		{"missing port", func(c *Config) { c.Server.Port = "" }, true},
		{"qr timeout too short", func(c *Config) { c.WhatsApp.QRTimeout = 5 * time.Second }, true},
		{"missing session dir", func(c *Config) { c.WhatsApp.SessionDir = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "db.internal", Port: "5432", User: "app",
		Password: "secret", Name: "connector", SSLMode: "require",
	}
	want := "host=db.internal port=5432 user=app password=secret dbname=connector sslmode=require"
	if got := db.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
