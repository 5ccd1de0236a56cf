package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "production" {
		t.Fatalf("expected App.Env to be production, got %q", cfg.App.Env)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Fatalf("unexpected backend base url %q", cfg.Backend.BaseURL)
	}
	if got := cfg.Backend.Timeout; got != 15*time.Second {
		t.Fatalf("expected backend timeout 15s, got %v", got)
	}
	if cfg.Cart.Storage != CartStorageMemory {
		t.Fatalf("expected memory cart storage by default, got %q", cfg.Cart.Storage)
	}
	if cfg.Cart.SlotName != "cart.v1" {
		t.Fatalf("unexpected cart slot %q", cfg.Cart.SlotName)
	}
	if len(cfg.Cart.CORSOrigins) != 1 || cfg.Cart.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins %v", cfg.Cart.CORSOrigins)
	}
}

func TestLoad_TrimsBaseURL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvAPIBaseURL, "https://api.example.com/ ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Backend.BaseURL)
	}
}

func TestLoad_RejectsNonHTTPBaseURL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvAPIBaseURL, "ftp://example.com")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-http base url")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_UnknownStorage(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvCartStorage, "cookie")

	if _, err := Load(); err == nil {
		t.Fatal("expected unknown cart storage to be rejected")
	}
}

func TestLoad_RedisStorageNeedsEndpoint(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvCartStorage, "redis")

	if _, err := Load(); err == nil {
		t.Fatal("expected redis storage without endpoint to fail")
	}

	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if !cfg.Redis.Enabled() {
		t.Fatal("expected redis to be enabled")
	}
}

func TestLoad_SQLStorageDefaultsToSQLiteFile(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvCartStorage, "SQL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if !cfg.DB.IsSQLite() {
		t.Fatalf("expected sqlite driver, got %q", cfg.DB.Driver)
	}
	if cfg.DB.DSN == "" {
		t.Fatal("expected sqlite dsn to be filled in")
	}
}

func TestLoad_PostgresDSNFromParts(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvCartStorage, "sql")
	t.Setenv(EnvDBDriver, "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing postgres parts to fail")
	}

	t.Setenv(EnvDBHost, "db")
	t.Setenv(EnvDBUser, "shop")
	t.Setenv(EnvDBName, "storefront")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.DB.DSN != "postgres://shop@db:5432/storefront?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", cfg.DB.DSN)
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "production")
	t.Setenv(EnvPort, "3001")
}

func TestAppConfigEnvHelpers(t *testing.T) {
	devConfig := AppConfig{Env: "DEV"}
	if !devConfig.IsDev() {
		t.Fatalf("expected IsDev true for %q", devConfig.Env)
	}
	if devConfig.IsProd() {
		t.Fatalf("expected IsProd false for %q", devConfig.Env)
	}

	prodConfig := AppConfig{Env: "prod"}
	if !prodConfig.IsProd() {
		t.Fatalf("expected IsProd true for %q", prodConfig.Env)
	}
	if prodConfig.IsDev() {
		t.Fatalf("expected IsDev false for %q", prodConfig.Env)
	}
}

func TestEnsureDSNKeepsExplicitDSN(t *testing.T) {
	db := DBConfig{DSN: "postgres://u@h/db", Driver: DBDriverPostgres}
	if err := db.EnsureDSN(); err != nil {
		t.Fatalf("EnsureDSN() returned unexpected error: %v", err)
	}
	if db.DSN != "postgres://u@h/db" {
		t.Fatalf("explicit dsn overwritten: %q", db.DSN)
	}

	missing := DBConfig{Driver: DBDriverPostgres}
	if err := missing.EnsureDSN(); err == nil {
		t.Fatal("expected error when postgres parts are missing")
	}
}
