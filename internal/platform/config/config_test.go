package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"ENGINE_BACKEND_URL":          "https://backend.example.com/api",
		"ENGINE_SESSION_TOKEN_SECRET": "plain-secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(baseEnv()),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Session.TTL != 10*time.Minute {
		t.Fatalf("expected default session TTL, got %s", cfg.Session.TTL)
	}
	if cfg.Firestore.Collection != "sessions" {
		t.Fatalf("expected default collection, got %q", cfg.Firestore.Collection)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 || cfg.RateLimits.QuotePerMinute != 30 {
		t.Fatalf("unexpected rate limits: %+v", cfg.RateLimits)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{}),
	)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := strings.Join(validation.Fields(), ",")
	if !strings.Contains(fields, "Backend.BaseURL") || !strings.Contains(fields, "Session.TokenSecret") {
		t.Fatalf("unexpected fields: %s", fields)
	}
}

func TestLoadEnvMapOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "ENGINE_SERVER_PORT=9999\nENGINE_BACKEND_TIMEOUT=5s\n# comment\nexport ENGINE_FIRESTORE_PROJECT_ID=\"demo-project\"\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	env := baseEnv()
	env["ENGINE_SERVER_PORT"] = "7070"
	cfg, err := Load(context.Background(),
		WithEnvFile(envFile),
		WithoutSystemEnv(),
		WithEnvMap(env),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected map override, got %q", cfg.Server.Port)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Fatalf("expected .env timeout, got %s", cfg.Backend.Timeout)
	}
	if cfg.Firestore.ProjectID != "demo-project" {
		t.Fatalf("expected unquoted export value, got %q", cfg.Firestore.ProjectID)
	}
	if cfg.Jobs.ProjectID != "demo-project" {
		t.Fatalf("expected jobs project fallback, got %q", cfg.Jobs.ProjectID)
	}
}

func TestLoadResolvesSecretReference(t *testing.T) {
	env := baseEnv()
	env["ENGINE_SESSION_TOKEN_SECRET"] = "secret://session-signing-key"

	var seen string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		seen = ref
		return "resolved-secret", nil
	})

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Session.TokenSecret != "resolved-secret" {
		t.Fatalf("expected resolved secret, got %q", cfg.Session.TokenSecret)
	}
	if seen != "secret://session-signing-key" {
		t.Fatalf("resolver saw %q", seen)
	}
}

func TestLoadSecretReferenceWithoutResolver(t *testing.T) {
	env := baseEnv()
	env["ENGINE_SESSION_TOKEN_SECRET"] = "secret://session-signing-key"

	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
	)
	if err == nil || !strings.Contains(err.Error(), "secret resolver required") {
		t.Fatalf("expected resolver error, got %v", err)
	}
}
