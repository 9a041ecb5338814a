package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Mimi-by-typh/lukavaka/internal/auth"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

type mockAuthService struct {
	telegramFunc func(ctx context.Context, data map[string]any, ip string) (*model.User, string, error)
	googleFunc   func(ctx context.Context, idToken, ip string) (*model.User, string, error)
	verifyFunc   func(ctx context.Context, token, ip string) (*auth.TokenPayload, error)
}

func (m *mockAuthService) LoginWithTelegram(ctx context.Context, data map[string]any, ip string) (*model.User, string, error) {
	return m.telegramFunc(ctx, data, ip)
}

func (m *mockAuthService) LoginWithGoogle(ctx context.Context, idToken, ip string) (*model.User, string, error) {
	return m.googleFunc(ctx, idToken, ip)
}

func (m *mockAuthService) VerifyToken(ctx context.Context, token, ip string) (*auth.TokenPayload, error) {
	return m.verifyFunc(ctx, token, ip)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestAuthHandler_Telegram(t *testing.T) {
	service := &mockAuthService{
		telegramFunc: func(_ context.Context, data map[string]any, ip string) (*model.User, string, error) {
			if data["id"] != float64(12345) {
				t.Errorf("telegramData.id = %v, want 12345", data["id"])
			}
			return &model.User{
				ID:       "telegram_12345",
				Username: "luka",
				Provider: "telegram",
				Avatar:   "https://t.me/i/userpic/luka.jpg",
			}, "issued-token", nil
		},
	}
	h := NewAuthHandler(service, discardLogger())

	body := `{"action":"telegram","telegramData":{"id":12345,"hash":"abc"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
	}
	if !resp.Success {
		t.Error("success = false, want true")
	}
	if resp.User.ID != "telegram_12345" {
		t.Errorf("user.id = %q, want %q", resp.User.ID, "telegram_12345")
	}
	if resp.Token != "issued-token" {
		t.Errorf("token = %q, want %q", resp.Token, "issued-token")
	}
}

func TestAuthHandler_BannedUser(t *testing.T) {
	service := &mockAuthService{
		googleFunc: func(_ context.Context, _, _ string) (*model.User, string, error) {
			return nil, "", model.NewBannedError()
		},
	}
	h := NewAuthHandler(service, discardLogger())

	body := `{"action":"google","idToken":"a.b.c"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusForbidden)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
	}
	if resp["error"] != "Your account has been banned" {
		t.Errorf("error = %q, want %q", resp["error"], "Your account has been banned")
	}
}

func TestAuthHandler_Verify(t *testing.T) {
	service := &mockAuthService{
		verifyFunc: func(_ context.Context, token, _ string) (*auth.TokenPayload, error) {
			if token != "user-token" {
				t.Errorf("token = %q, want %q", token, "user-token")
			}
			return &auth.TokenPayload{ID: "google_1", Username: "luka"}, nil
		},
	}
	h := NewAuthHandler(service, discardLogger())

	body := `{"action":"verify","token":"user-token"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Success bool              `json:"success"`
		User    auth.TokenPayload `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
	}
	if resp.User.ID != "google_1" {
		t.Errorf("user.id = %q, want %q", resp.User.ID, "google_1")
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(`{"action":"logout"}`))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAuthHandler_InvalidAction(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(`{"action":"unknown"}`))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
	}
	if resp["error"] != "Invalid action" {
		t.Errorf("error = %q, want %q", resp["error"], "Invalid action")
	}
}
