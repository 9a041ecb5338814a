package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// すべての項目にデフォルト値があり、環境変数なしでも起動できる。
type Config struct {
	// Server
	ServerPort        string
	CORSAllowedOrigin string

	// Admin
	AdminEmail string

	// Storage (local file + optional remote KV)
	DataDir        string
	KVRestAPIURL   string
	KVRestAPIToken string

	// Storage (GitHub repository file)
	GitHubToken    string
	GitHubRepo     string
	GitHubDataFile string
	GitHubBranch   string
	GitHubCacheTTL time.Duration

	// Auth
	TelegramBotToken string
	TokenTTL         time.Duration

	// Presence
	SessionTimeout time.Duration

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitComment int

	// Comments
	CommentMaxLength int
}

// Load は環境変数からConfigを読み込む。
func Load() *Config {
	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	cfg.AdminEmail = getEnvString("ADMIN_EMAIL", "dalinnatasha6@gmail.com")

	cfg.DataDir = getEnvString("DATA_DIR", defaultDataDir())
	cfg.KVRestAPIURL = os.Getenv("KV_REST_API_URL")
	cfg.KVRestAPIToken = os.Getenv("KV_REST_API_TOKEN")

	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	cfg.GitHubRepo = getEnvString("GITHUB_REPO", "Mimi-by-typh/lukavaka")
	cfg.GitHubDataFile = getEnvString("GITHUB_DATA_FILE", "data/storage.json")
	cfg.GitHubBranch = getEnvString("GITHUB_BRANCH", "main")
	cfg.GitHubCacheTTL = getEnvDuration("GITHUB_CACHE_TTL", 30*time.Second)

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)

	cfg.SessionTimeout = getEnvDuration("SESSION_TIMEOUT", 15*time.Second)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitComment = getEnvInt("RATE_LIMIT_COMMENT", 10)

	cfg.CommentMaxLength = getEnvInt("COMMENT_MAX_LENGTH", 1000)

	return cfg
}

// UseGitHub はGitHubバックエンドを使用すべきかを返す。
// トークンが設定されていればGitHubバックエンドを排他的に選択する。
func (c *Config) UseGitHub() bool {
	return c.GitHubToken != ""
}

// UseKV はリモートKVストアを使用すべきかを返す。
// URLとトークンの両方が設定されている場合のみ有効。
func (c *Config) UseKV() bool {
	return c.KVRestAPIURL != "" && c.KVRestAPIToken != ""
}

// IsServerless はサーバーレス環境（Vercel / AWS Lambda）で動作しているかを返す。
func IsServerless() bool {
	return os.Getenv("VERCEL") != "" || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// defaultDataDir はローカルDBファイルの配置先を返す。
// サーバーレス環境ではルートが読み取り専用のため/tmp配下を使う。
func defaultDataDir() string {
	if IsServerless() {
		return filepath.Join("/tmp", "data")
	}
	return filepath.Join(".", "data")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
