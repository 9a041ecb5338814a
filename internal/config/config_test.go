package config

import (
	"testing"
	"time"
)

// clearEnvAll はテストに影響する環境変数をまとめて空にする。
func clearEnvAll(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_PORT", "CORS_ALLOWED_ORIGIN", "ADMIN_EMAIL", "DATA_DIR",
		"KV_REST_API_URL", "KV_REST_API_TOKEN",
		"GITHUB_TOKEN", "GITHUB_REPO", "GITHUB_DATA_FILE", "GITHUB_BRANCH", "GITHUB_CACHE_TTL",
		"TELEGRAM_BOT_TOKEN", "TOKEN_TTL", "SESSION_TIMEOUT",
		"RATE_LIMIT_GENERAL", "RATE_LIMIT_COMMENT", "COMMENT_MAX_LENGTH",
		"VERCEL", "AWS_LAMBDA_FUNCTION_NAME",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnvAll(t)

	cfg := Load()

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.CORSAllowedOrigin != "*" {
		t.Errorf("CORSAllowedOrigin = %q, want %q", cfg.CORSAllowedOrigin, "*")
	}
	if cfg.AdminEmail == "" {
		t.Error("AdminEmail should have a default value")
	}
	if cfg.GitHubCacheTTL != 30*time.Second {
		t.Errorf("GitHubCacheTTL = %v, want %v", cfg.GitHubCacheTTL, 30*time.Second)
	}
	if cfg.SessionTimeout != 15*time.Second {
		t.Errorf("SessionTimeout = %v, want %v", cfg.SessionTimeout, 15*time.Second)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want %v", cfg.TokenTTL, 24*time.Hour)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want 120", cfg.RateLimitGeneral)
	}
	if cfg.CommentMaxLength != 1000 {
		t.Errorf("CommentMaxLength = %d, want 1000", cfg.CommentMaxLength)
	}
}

func TestLoad_BackendSelection_Defaults(t *testing.T) {
	clearEnvAll(t)

	cfg := Load()

	if cfg.UseGitHub() {
		t.Error("UseGitHub() should be false without GITHUB_TOKEN")
	}
	if cfg.UseKV() {
		t.Error("UseKV() should be false without KV credentials")
	}
}

func TestLoad_GitHubTokenSelectsGitHub(t *testing.T) {
	clearEnvAll(t)
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg := Load()

	if !cfg.UseGitHub() {
		t.Error("UseGitHub() should be true with GITHUB_TOKEN set")
	}
	if cfg.GitHubRepo == "" {
		t.Error("GitHubRepo should have a default value")
	}
	if cfg.GitHubDataFile != "data/storage.json" {
		t.Errorf("GitHubDataFile = %q, want %q", cfg.GitHubDataFile, "data/storage.json")
	}
	if cfg.GitHubBranch != "main" {
		t.Errorf("GitHubBranch = %q, want %q", cfg.GitHubBranch, "main")
	}
}

func TestLoad_KVRequiresURLAndToken(t *testing.T) {
	clearEnvAll(t)
	t.Setenv("KV_REST_API_URL", "https://kv.example.com")

	cfg := Load()
	if cfg.UseKV() {
		t.Error("UseKV() should be false with URL only")
	}

	t.Setenv("KV_REST_API_TOKEN", "secret")
	cfg = Load()
	if !cfg.UseKV() {
		t.Error("UseKV() should be true with URL and token")
	}
}

func TestLoad_ServerlessDataDir(t *testing.T) {
	clearEnvAll(t)
	t.Setenv("VERCEL", "1")

	cfg := Load()

	if cfg.DataDir != "/tmp/data" {
		t.Errorf("DataDir = %q, want %q on serverless", cfg.DataDir, "/tmp/data")
	}
}

func TestLoad_DataDirOverride(t *testing.T) {
	clearEnvAll(t)
	t.Setenv("DATA_DIR", "/var/lib/lukavaka")

	cfg := Load()

	if cfg.DataDir != "/var/lib/lukavaka" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/var/lib/lukavaka")
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	clearEnvAll(t)
	t.Setenv("SESSION_TIMEOUT", "not-a-duration")

	cfg := Load()

	if cfg.SessionTimeout != 15*time.Second {
		t.Errorf("SessionTimeout = %v, want default %v", cfg.SessionTimeout, 15*time.Second)
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	clearEnvAll(t)
	t.Setenv("RATE_LIMIT_GENERAL", "abc")

	cfg := Load()

	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want default 120", cfg.RateLimitGeneral)
	}
}
