package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Mimi-by-typh/lukavaka/internal/config"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// Store は認証サービスが必要とするストア操作のサブセット。
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	SaveUser(ctx context.Context, user *model.User) error
	AddUserIP(ctx context.Context, userID, ip string) error
	IsUserBanned(ctx context.Context, userID string) (bool, error)
	IsAdmin(ctx context.Context, email string) (bool, error)
}

// Service は認証のユースケースを提供する。
type Service struct {
	store    Store
	botToken string
	tokenTTL time.Duration
	logger   *slog.Logger

	// テスト用に現在時刻を差し替え可能
	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store Store, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		botToken: cfg.TelegramBotToken,
		tokenTTL: cfg.TokenTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// LoginWithTelegram はTelegramログインウィジェットのデータを検証してログインする。
// 成功時はユーザーと不透明トークンを返す。BANされたユーザーは拒否される。
func (s *Service) LoginWithTelegram(ctx context.Context, data map[string]any, ip string) (*model.User, string, error) {
	if len(data) == 0 {
		return nil, "", &model.APIError{Code: model.ErrCodeValidation, Message: "Valid Telegram data is required", Status: 400}
	}

	rawID, hasID := data["id"].(float64)
	hash, hasHash := data["hash"].(string)
	if !hasID || !hasHash || hash == "" {
		return nil, "", &model.APIError{Code: model.ErrCodeValidation, Message: "Missing required Telegram data fields", Status: 400}
	}

	if !VerifyTelegramHash(s.botToken, TelegramFields(data), hash, s.now()) {
		return nil, "", &model.APIError{Code: model.ErrCodeUnauthorized, Message: "Invalid Telegram authentication", Status: 401}
	}

	telegramID := strconv.FormatInt(int64(rawID), 10)
	username, _ := data["username"].(string)
	if username == "" {
		username = "user" + telegramID
	}
	firstName, _ := data["first_name"].(string)
	lastName, _ := data["last_name"].(string)
	photoURL, _ := data["photo_url"].(string)

	user, err := s.upsertIdentity(ctx, identity{
		userID:    "telegram_" + telegramID,
		username:  username,
		firstName: firstName,
		lastName:  lastName,
		avatar:    photoURL,
		provider:  "telegram",
	}, ip)
	if err != nil {
		return nil, "", err
	}

	return user, s.issueUserToken(user), nil
}

// LoginWithGoogle はGoogleサインインのIDトークンを解析してログインする。
// 成功時はユーザーと不透明トークンを返す。BANされたユーザーは拒否される。
func (s *Service) LoginWithGoogle(ctx context.Context, idToken, ip string) (*model.User, string, error) {
	if idToken == "" {
		return nil, "", &model.APIError{Code: model.ErrCodeValidation, Message: "Valid Google ID token is required", Status: 400}
	}
	if strings.Count(idToken, ".") != 2 {
		return nil, "", &model.APIError{Code: model.ErrCodeValidation, Message: "Invalid Google token format", Status: 400}
	}

	claims, err := ParseGoogleIDToken(idToken, s.now())
	if err != nil {
		if err == ErrGoogleTokenExpired {
			return nil, "", &model.APIError{Code: model.ErrCodeUnauthorized, Message: "Token expired", Status: 401}
		}
		return nil, "", &model.APIError{Code: model.ErrCodeValidation, Message: "Invalid Google token", Status: 400}
	}

	username := claims.GivenName
	if username == "" {
		username = claims.Name
	}
	if username == "" {
		sub := claims.Sub
		if len(sub) > 8 {
			sub = sub[:8]
		}
		username = "User" + sub
	}

	user, err := s.upsertIdentity(ctx, identity{
		userID:    "google_" + claims.Sub,
		username:  username,
		firstName: claims.GivenName,
		lastName:  claims.FamilyName,
		email:     claims.Email,
		avatar:    claims.Picture,
		provider:  "google",
	}, ip)
	if err != nil {
		return nil, "", err
	}

	return user, s.issueUserToken(user), nil
}

// VerifyToken はユーザートークンを検証し、ペイロードを返す。
// BANされたユーザーは拒否される。検証成功時はIPアドレスを記録する。
func (s *Service) VerifyToken(ctx context.Context, token, ip string) (*TokenPayload, error) {
	payload, err := DecodeToken(token, s.now())
	if err != nil {
		return nil, &model.APIError{Code: model.ErrCodeUnauthorized, Message: "Invalid token", Status: 401}
	}

	banned, err := s.store.IsUserBanned(ctx, payload.ID)
	if err != nil {
		return nil, fmt.Errorf("BAN状態の確認に失敗しました: %w", err)
	}
	if banned {
		return nil, model.NewBannedError()
	}

	if err := s.store.AddUserIP(ctx, payload.ID, ip); err != nil {
		s.logger.Error("IPアドレスの記録に失敗しました",
			slog.String("user_id", payload.ID),
			slog.String("error", err.Error()),
		)
	}

	return payload, nil
}

// AdminLogin は管理者メールアドレスによるログインを行い、管理者トークンを返す。
func (s *Service) AdminLogin(ctx context.Context, email string) (string, *TokenPayload, error) {
	if email == "" {
		return "", nil, &model.APIError{Code: model.ErrCodeValidation, Message: "Email is required", Status: 400}
	}

	ok, err := s.store.IsAdmin(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("管理者判定に失敗しました: %w", err)
	}
	if !ok {
		return "", nil, &model.APIError{Code: model.ErrCodeForbidden, Message: "Access denied. You are not an admin.", Status: 403}
	}

	email = strings.ToLower(email)
	payload := TokenPayload{
		Email:    email,
		Username: strings.SplitN(email, "@", 2)[0],
		Role:     "admin",
		Exp:      s.now().Add(s.tokenTTL).UnixMilli(),
	}
	return EncodeToken(payload), &payload, nil
}

// VerifyAdmin は管理者トークンを検証する。
// トークンが有効で、かつペイロードのメールアドレスが管理者集合に含まれること。
func (s *Service) VerifyAdmin(ctx context.Context, token string) (*TokenPayload, error) {
	unauthorized := &model.APIError{Code: model.ErrCodeUnauthorized, Message: "Unauthorized. Admin access required.", Status: 401}

	if token == "" {
		return nil, unauthorized
	}

	payload, err := DecodeToken(token, s.now())
	if err != nil {
		return nil, unauthorized
	}

	ok, err := s.store.IsAdmin(ctx, payload.Email)
	if err != nil {
		return nil, fmt.Errorf("管理者判定に失敗しました: %w", err)
	}
	if !ok {
		return nil, unauthorized
	}
	return payload, nil
}

// identity は外部IdPから取得したユーザー属性。
type identity struct {
	userID    string
	username  string
	firstName string
	lastName  string
	email     string
	avatar    string
	provider  string
}

// upsertIdentity はIdP属性をユーザーへ反映して保存する。
// 既存ユーザーのBAN状態・IP履歴・カスタムプレフィックスは維持される。
// BANされている場合はエラーを返す。
func (s *Service) upsertIdentity(ctx context.Context, id identity, ip string) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id.userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		user = &model.User{ID: id.userID}
	}

	user.Username = id.username
	user.FirstName = id.firstName
	user.LastName = id.lastName
	if id.email != "" {
		user.Email = id.email
	}
	user.Provider = id.provider
	user.Avatar = id.avatar
	if user.Avatar == "" {
		user.Avatar = fallbackAvatarURL(id.username)
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの保存に失敗しました: %w", err)
	}
	if err := s.store.AddUserIP(ctx, user.ID, ip); err != nil {
		s.logger.Error("IPアドレスの記録に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	banned, err := s.store.IsUserBanned(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("BAN状態の確認に失敗しました: %w", err)
	}
	if banned {
		return nil, model.NewBannedError()
	}

	return user, nil
}

// issueUserToken はユーザーの不透明トークンを発行する。
func (s *Service) issueUserToken(user *model.User) string {
	return EncodeToken(TokenPayload{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		PhotoURL:  user.Avatar,
		Provider:  user.Provider,
		Exp:       s.now().Add(s.tokenTTL).UnixMilli(),
	})
}

// fallbackAvatarURL はアバター未設定時のプレースホルダ画像URLを返す。
func fallbackAvatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
}
