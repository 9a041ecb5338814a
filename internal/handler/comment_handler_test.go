package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Mimi-by-typh/lukavaka/internal/auth"
	"github.com/Mimi-by-typh/lukavaka/internal/metrics"
	"github.com/Mimi-by-typh/lukavaka/internal/middleware"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
	"github.com/Mimi-by-typh/lukavaka/internal/security"
)

type mockCommentStore struct {
	getCommentsFunc       func(ctx context.Context) ([]model.Comment, error)
	saveCommentsFunc      func(ctx context.Context, comments []model.Comment) error
	addCommentFunc        func(ctx context.Context, comment model.Comment) error
	deleteCommentByIDFunc func(ctx context.Context, id int64) (*model.Comment, error)
	getUserFunc           func(ctx context.Context, userID string) (*model.User, error)
	getUserMainRoleFunc   func(ctx context.Context, userID string) (*model.Role, error)
	getWidgetSettingsFunc func(ctx context.Context) (*model.WidgetSettings, error)
	isAdminFunc           func(ctx context.Context, email string) (bool, error)
}

func (m *mockCommentStore) GetComments(ctx context.Context) ([]model.Comment, error) {
	if m.getCommentsFunc != nil {
		return m.getCommentsFunc(ctx)
	}
	return nil, nil
}

func (m *mockCommentStore) SaveComments(ctx context.Context, comments []model.Comment) error {
	if m.saveCommentsFunc != nil {
		return m.saveCommentsFunc(ctx, comments)
	}
	return nil
}

func (m *mockCommentStore) AddComment(ctx context.Context, comment model.Comment) error {
	if m.addCommentFunc != nil {
		return m.addCommentFunc(ctx, comment)
	}
	return nil
}

func (m *mockCommentStore) DeleteCommentByID(ctx context.Context, id int64) (*model.Comment, error) {
	if m.deleteCommentByIDFunc != nil {
		return m.deleteCommentByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockCommentStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getUserFunc != nil {
		return m.getUserFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockCommentStore) GetUserMainRole(ctx context.Context, userID string) (*model.Role, error) {
	if m.getUserMainRoleFunc != nil {
		return m.getUserMainRoleFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockCommentStore) GetWidgetSettings(ctx context.Context) (*model.WidgetSettings, error) {
	if m.getWidgetSettingsFunc != nil {
		return m.getWidgetSettingsFunc(ctx)
	}
	return model.DefaultWidgetSettings(), nil
}

func (m *mockCommentStore) IsAdmin(ctx context.Context, email string) (bool, error) {
	if m.isAdminFunc != nil {
		return m.isAdminFunc(ctx, email)
	}
	return false, nil
}

func newTestCommentHandler(store *mockCommentStore) *CommentHandler {
	h := NewCommentHandler(store, security.NewCommentSanitizer(), metrics.NopCollector{}, discardLogger(), 1000)
	h.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func requestWithUser(r *http.Request, user *auth.TokenPayload) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), user))
}

func sampleComments() []model.Comment {
	return []model.Comment{
		{ID: 1, Author: "luka", Text: "最初のコメント", UserID: "google_1", Status: model.CommentStatusPublished},
		{ID: 2, Author: "mimi", Text: "second comment", UserID: "telegram_2", Status: model.CommentStatusPending},
		{ID: 3, Author: "luka", Text: "third comment", UserID: "google_1", Status: model.CommentStatusPublished},
	}
}

func TestCommentHandler_List(t *testing.T) {
	store := &mockCommentStore{
		getCommentsFunc: func(_ context.Context) ([]model.Comment, error) {
			return sampleComments(), nil
		},
	}
	h := newTestCommentHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/comments", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
	if resp.Page != 1 {
		t.Errorf("page = %d, want 1", resp.Page)
	}
	if resp.TotalPages != 1 {
		t.Errorf("totalPages = %d, want 1", resp.TotalPages)
	}
	if len(resp.Comments) != 3 {
		t.Errorf("len(comments) = %d, want 3", len(resp.Comments))
	}
}

func TestCommentHandler_ListFilters(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantIDs []int64
	}{
		{name: "ステータスで絞り込み", query: "status=pending", wantIDs: []int64{2}},
		{name: "allは全件", query: "status=all", wantIDs: []int64{1, 2, 3}},
		{name: "本文検索", query: "search=second", wantIDs: []int64{2}},
		{name: "投稿者名検索", query: "search=LUKA", wantIDs: []int64{1, 3}},
		{name: "ユーザーIDで絞り込み", query: "author=google_1", wantIDs: []int64{1, 3}},
		{name: "組み合わせ", query: "status=published&author=google_1&search=third", wantIDs: []int64{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockCommentStore{
				getCommentsFunc: func(_ context.Context) ([]model.Comment, error) {
					return sampleComments(), nil
				},
			}
			h := newTestCommentHandler(store)

			req := httptest.NewRequest(http.MethodGet, "/api/comments?"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.List(rec, req)

			var resp listResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
			}

			var gotIDs []int64
			for _, c := range resp.Comments {
				gotIDs = append(gotIDs, c.ID)
			}
			if len(gotIDs) != len(tt.wantIDs) {
				t.Fatalf("コメントID = %v, want %v", gotIDs, tt.wantIDs)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.wantIDs[i] {
					t.Errorf("コメントID = %v, want %v", gotIDs, tt.wantIDs)
					break
				}
			}
		})
	}
}

func TestCommentHandler_ListPagination(t *testing.T) {
	comments := make([]model.Comment, 5)
	for i := range comments {
		comments[i] = model.Comment{ID: int64(i + 1), Status: model.CommentStatusPublished}
	}
	store := &mockCommentStore{
		getCommentsFunc: func(_ context.Context) ([]model.Comment, error) {
			return comments, nil
		},
	}
	h := newTestCommentHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/comments?page=2&limit=2", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
	}
	if resp.Total != 5 {
		t.Errorf("total = %d, want 5", resp.Total)
	}
	if resp.TotalPages != 3 {
		t.Errorf("totalPages = %d, want 3", resp.TotalPages)
	}
	if len(resp.Comments) != 2 {
		t.Fatalf("len(comments) = %d, want 2", len(resp.Comments))
	}
	if resp.Comments[0].ID != 3 || resp.Comments[1].ID != 4 {
		t.Errorf("コメントID = [%d %d], want [3 4]", resp.Comments[0].ID, resp.Comments[1].ID)
	}
}

func TestCommentHandler_ListEnrichesRole(t *testing.T) {
	role := &model.Role{ID: "mod", Name: "Moderator", Color: "#00ff00", Priority: 10}
	prefix := "VIP"
	store := &mockCommentStore{
		getCommentsFunc: func(_ context.Context) ([]model.Comment, error) {
			return []model.Comment{{ID: 1, UserID: "google_1", Status: model.CommentStatusPublished}}, nil
		},
		getUserMainRoleFunc: func(_ context.Context, userID string) (*model.Role, error) {
			if userID != "google_1" {
				t.Errorf("userID = %q, want %q", userID, "google_1")
			}
			return role, nil
		},
		getUserFunc: func(_ context.Context, _ string) (*model.User, error) {
			return &model.User{ID: "google_1", CustomPrefix: &prefix}, nil
		},
	}
	h := newTestCommentHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/comments", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
	}
	if resp.Comments[0].Role == nil || resp.Comments[0].Role.Name != "Moderator" {
		t.Errorf("role = %+v, want Moderator", resp.Comments[0].Role)
	}
	if resp.Comments[0].CustomPrefix == nil || *resp.Comments[0].CustomPrefix != "VIP" {
		t.Errorf("customPrefix = %v, want VIP", resp.Comments[0].CustomPrefix)
	}
}

func TestCommentHandler_CreateUnauthorized(t *testing.T) {
	h := newTestCommentHandler(&mockCommentStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestCommentHandler_Create(t *testing.T) {
	var saved model.Comment
	store := &mockCommentStore{
		addCommentFunc: func(_ context.Context, comment model.Comment) error {
			saved = comment
			return nil
		},
	}
	h := newTestCommentHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(`{"text":"こんにちは！"}`))
	req = requestWithUser(req, &auth.TokenPayload{ID: "google_1", Username: "luka", Provider: "google"})
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("ステータスコード = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if saved.Text != "こんにちは！" {
		t.Errorf("text = %q, want %q", saved.Text, "こんにちは！")
	}
	if saved.Author != "luka" {
		t.Errorf("author = %q, want %q", saved.Author, "luka")
	}
	if saved.UserID != "google_1" {
		t.Errorf("userId = %q, want %q", saved.UserID, "google_1")
	}
	if saved.Status != model.CommentStatusPublished {
		t.Errorf("status = %q, want %q", saved.Status, model.CommentStatusPublished)
	}
	if saved.IsAdmin {
		t.Error("isAdmin = true, want false")
	}
	wantID := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	if saved.ID != wantID {
		t.Errorf("id = %d, want %d", saved.ID, wantID)
	}
	if !strings.Contains(saved.Avatar, "ui-avatars.com") {
		t.Errorf("avatar = %q, フォールバックアバターが設定されていない", saved.Avatar)
	}
}

func TestCommentHandler_CreateSanitizesHTML(t *testing.T) {
	var saved model.Comment
	store := &mockCommentStore{
		addCommentFunc: func(_ context.Context, comment model.Comment) error {
			saved = comment
			return nil
		},
	}
	h := newTestCommentHandler(store)

	body := `{"text":"hello <script>alert(1)</script>world"}`
	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(body))
	req = requestWithUser(req, &auth.TokenPayload{ID: "google_1", Username: "luka"})
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusCreated)
	}
	if strings.Contains(saved.Text, "<script>") {
		t.Errorf("text = %q, スクリプトタグが除去されていない", saved.Text)
	}
}

func TestCommentHandler_CreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{name: "本文なし", body: `{"text":""}`, wantError: "Comment text is required"},
		{name: "空白のみ", body: `{"text":"   "}`, wantError: "Comment text is required"},
		{name: "長すぎる", body: `{"text":"` + strings.Repeat("a", 1001) + `"}`, wantError: "Comment too long (max 1000 characters)"},
		{name: "サニタイズ後に空", body: `{"text":"<script>alert(1)</script>"}`, wantError: "Invalid comment text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestCommentHandler(&mockCommentStore{})

			req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(tt.body))
			req = requestWithUser(req, &auth.TokenPayload{ID: "google_1", Username: "luka"})
			rec := httptest.NewRecorder()
			h.Create(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusBadRequest)
			}

			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", resp["error"], tt.wantError)
			}
		})
	}
}

func TestCommentHandler_CreatePremoderation(t *testing.T) {
	settings := model.DefaultWidgetSettings()
	settings.RequirePremoderation = true

	var saved model.Comment
	store := &mockCommentStore{
		getWidgetSettingsFunc: func(_ context.Context) (*model.WidgetSettings, error) {
			return settings, nil
		},
		addCommentFunc: func(_ context.Context, comment model.Comment) error {
			saved = comment
			return nil
		},
	}
	h := newTestCommentHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(`{"text":"nice post"}`))
	req = requestWithUser(req, &auth.TokenPayload{ID: "google_1", Username: "luka"})
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if saved.Status != model.CommentStatusPending {
		t.Errorf("status = %q, want %q", saved.Status, model.CommentStatusPending)
	}
}

func TestCommentHandler_CreateAutoModerationKeyword(t *testing.T) {
	settings := model.DefaultWidgetSettings()
	settings.AutoModeration = true
	settings.ModerationKeywords = []string{"spam"}

	var saved model.Comment
	store := &mockCommentStore{
		getWidgetSettingsFunc: func(_ context.Context) (*model.WidgetSettings, error) {
			return settings, nil
		},
		addCommentFunc: func(_ context.Context, comment model.Comment) error {
			saved = comment
			return nil
		},
	}
	h := newTestCommentHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(`{"text":"this is SPAM content"}`))
	req = requestWithUser(req, &auth.TokenPayload{ID: "google_1", Username: "luka"})
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if saved.Status != model.CommentStatusPending {
		t.Errorf("status = %q, want %q", saved.Status, model.CommentStatusPending)
	}
}

func TestCommentHandler_CreateAdminAlwaysPublished(t *testing.T) {
	settings := model.DefaultWidgetSettings()
	settings.RequirePremoderation = true

	var saved model.Comment
	store := &mockCommentStore{
		getWidgetSettingsFunc: func(_ context.Context) (*model.WidgetSettings, error) {
			return settings, nil
		},
		addCommentFunc: func(_ context.Context, comment model.Comment) error {
			saved = comment
			return nil
		},
	}
	h := newTestCommentHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(`{"text":"announcement"}`))
	req = requestWithUser(req, &auth.TokenPayload{Email: "admin@example.com", Role: "admin"})
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if saved.Status != model.CommentStatusPublished {
		t.Errorf("status = %q, want %q", saved.Status, model.CommentStatusPublished)
	}
	if !saved.IsAdmin {
		t.Error("isAdmin = false, want true")
	}
	if saved.Author != "admin" {
		t.Errorf("author = %q, want %q", saved.Author, "admin")
	}
	if !strings.Contains(saved.Avatar, "background=6366f1") {
		t.Errorf("avatar = %q, 管理者用の背景色が設定されていない", saved.Avatar)
	}
}

func TestCommentHandler_UpdateForbidden(t *testing.T) {
	h := newTestCommentHandler(&mockCommentStore{})

	body := `{"commentId":1,"status":"hidden"}`
	req := httptest.NewRequest(http.MethodPut, "/api/comments", strings.NewReader(body))
	req = requestWithUser(req, &auth.TokenPayload{ID: "google_1", Username: "luka"})
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusForbidden)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
	}
	if resp["error"] != "Forbidden. Admin access required." {
		t.Errorf("error = %q, want %q", resp["error"], "Forbidden. Admin access required.")
	}
}

func TestCommentHandler_Update(t *testing.T) {
	var saved []model.Comment
	store := &mockCommentStore{
		getCommentsFunc: func(_ context.Context) ([]model.Comment, error) {
			return sampleComments(), nil
		},
		saveCommentsFunc: func(_ context.Context, comments []model.Comment) error {
			saved = comments
			return nil
		},
	}
	h := newTestCommentHandler(store)

	body := `{"commentId":2,"status":"published","text":"approved text"}`
	req := httptest.NewRequest(http.MethodPut, "/api/comments", strings.NewReader(body))
	req = requestWithUser(req, &auth.TokenPayload{Email: "admin@example.com", Role: "admin"})
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(saved) != 3 {
		t.Fatalf("保存されたコメント数 = %d, want 3", len(saved))
	}
	if saved[1].Status != model.CommentStatusPublished {
		t.Errorf("status = %q, want %q", saved[1].Status, model.CommentStatusPublished)
	}
	if saved[1].Text != "approved text" {
		t.Errorf("text = %q, want %q", saved[1].Text, "approved text")
	}
	if saved[1].UpdatedAt == nil {
		t.Error("updatedAt が設定されていない")
	}
}

func TestCommentHandler_UpdateValidation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "IDなし", body: `{"status":"hidden"}`, wantStatus: http.StatusBadRequest, wantError: "Comment ID is required"},
		{name: "空の本文", body: `{"commentId":1,"text":"  "}`, wantStatus: http.StatusBadRequest, wantError: "Comment text cannot be empty"},
		{name: "不正なステータス", body: `{"commentId":1,"status":"archived"}`, wantStatus: http.StatusBadRequest, wantError: "Invalid status"},
		{name: "存在しないID", body: `{"commentId":999,"status":"hidden"}`, wantStatus: http.StatusNotFound, wantError: "Comment not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockCommentStore{
				getCommentsFunc: func(_ context.Context) ([]model.Comment, error) {
					return sampleComments(), nil
				},
			}
			h := newTestCommentHandler(store)

			req := httptest.NewRequest(http.MethodPut, "/api/comments", strings.NewReader(tt.body))
			req = requestWithUser(req, &auth.TokenPayload{Email: "admin@example.com", Role: "admin"})
			rec := httptest.NewRecorder()
			h.Update(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("ステータスコード = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", resp["error"], tt.wantError)
			}
		})
	}
}

func TestCommentHandler_Delete(t *testing.T) {
	deleted := &model.Comment{ID: 2, Author: "mimi"}
	store := &mockCommentStore{
		deleteCommentByIDFunc: func(_ context.Context, id int64) (*model.Comment, error) {
			if id != 2 {
				t.Errorf("id = %d, want 2", id)
			}
			return deleted, nil
		},
	}
	h := newTestCommentHandler(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/comments", strings.NewReader(`{"commentId":2}`))
	req = requestWithUser(req, &auth.TokenPayload{Email: "admin@example.com", Role: "admin"})
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
	}
	if resp.Message != "Comment deleted successfully" {
		t.Errorf("message = %q, want %q", resp.Message, "Comment deleted successfully")
	}
}

func TestCommentHandler_DeleteByQuery(t *testing.T) {
	store := &mockCommentStore{
		deleteCommentByIDFunc: func(_ context.Context, id int64) (*model.Comment, error) {
			if id != 42 {
				t.Errorf("id = %d, want 42", id)
			}
			return &model.Comment{ID: 42}, nil
		},
	}
	h := newTestCommentHandler(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/comments?commentId=42", nil)
	req = requestWithUser(req, &auth.TokenPayload{Email: "admin@example.com", Role: "admin"})
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestCommentHandler_DeleteNotFound(t *testing.T) {
	store := &mockCommentStore{
		deleteCommentByIDFunc: func(_ context.Context, _ int64) (*model.Comment, error) {
			return nil, nil
		},
	}
	h := newTestCommentHandler(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/comments?commentId=999", nil)
	req = requestWithUser(req, &auth.TokenPayload{Email: "admin@example.com", Role: "admin"})
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
