package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// KV格納時のキー。ユーザーのみ1レコード1キーで格納する。
const (
	kvKeyComments       = "comments"
	kvKeyUsersPrefix    = "users"
	kvKeyOnlineSessions = "online_sessions"
	kvKeyAdminEmails    = "admin_emails"
	kvKeyRoles          = "roles"
	kvKeyUserRoles      = "user_roles"
	kvKeyWidgetSettings = "widget_settings"
)

// KVClient はVercel KV（Upstash互換）のREST APIクライアント。
// 値はJSONにシリアライズして格納し、取得時はJSON文字列としてデシリアライズする。
type KVClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewKVClient はKVClientの新しいインスタンスを生成する。
func NewKVClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *KVClient {
	return &KVClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// kvResult はREST APIのレスポンスエンベロープ。
// resultはJSONシリアライズ済みの値を文字列で保持する。キー未検出時はnull。
type kvResult struct {
	Result *string `json:"result"`
}

// kvKeysResult はkeysコマンドのレスポンスエンベロープ。
type kvKeysResult struct {
	Result []string `json:"result"`
}

// Get はキーの値を取得してdestにデシリアライズする。
// キーが存在しない場合、および値がnullの場合は(false, nil)を返す。
func (c *KVClient) Get(ctx context.Context, key string, dest any) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, "/get/"+url.PathEscape(key), nil)
	if err != nil {
		return false, err
	}

	var result kvResult
	if err := json.Unmarshal(body, &result); err != nil {
		return false, fmt.Errorf("KVレスポンスのパースに失敗しました: %w", err)
	}
	if result.Result == nil {
		return false, nil
	}
	// 格納値がJSONのnullの場合もキー未検出として扱う。
	// デシリアライズでdestがnilマップ等に上書きされるのを防ぐ。
	if strings.TrimSpace(*result.Result) == "null" {
		return false, nil
	}

	if err := json.Unmarshal([]byte(*result.Result), dest); err != nil {
		return false, fmt.Errorf("KV値のデシリアライズに失敗しました (key=%s): %w", key, err)
	}
	return true, nil
}

// Set はキーに値を設定する。値はJSONにシリアライズされる。
func (c *KVClient) Set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("KV値のシリアライズに失敗しました (key=%s): %w", key, err)
	}

	if _, err := c.do(ctx, http.MethodPost, "/set/"+url.PathEscape(key), payload); err != nil {
		return err
	}
	return nil
}

// Keys はパターンに一致するキーの一覧を取得する。
func (c *KVClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "/keys/"+url.PathEscape(pattern), nil)
	if err != nil {
		return nil, err
	}

	var result kvKeysResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("KVレスポンスのパースに失敗しました: %w", err)
	}
	return result.Result, nil
}

// do はKV REST APIへのHTTPリクエストを実行してレスポンスボディを返す。
func (c *KVClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("KV APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("KV APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("method", method),
			slog.String("path", path),
		)
		return nil, fmt.Errorf("KV APIがステータス %d を返しました", resp.StatusCode)
	}

	return body, nil
}

// userKey はユーザーIDからKVキーを組み立てる。
func userKey(userID string) string {
	return kvKeyUsersPrefix + ":" + userID
}
