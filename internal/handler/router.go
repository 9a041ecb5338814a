package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mimi-by-typh/lukavaka/internal/metrics"
	"github.com/Mimi-by-typh/lukavaka/internal/middleware"
	"github.com/Mimi-by-typh/lukavaka/internal/security"
	"github.com/Mimi-by-typh/lukavaka/internal/storage"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	TokenVerifier     middleware.TokenVerifier
	RateLimiter       *middleware.RateLimiter

	// サービス
	AuthService  AuthServiceInterface
	AdminService AdminServiceInterface
	Tracker      PresenceTrackerInterface

	// ストレージ
	Store storage.Store

	// セキュリティ
	Sanitizer   security.CommentSanitizerService
	AvatarGuard security.AvatarGuardService

	// 計測
	Metrics          metrics.MetricsCollector
	MetricsGatherer  prometheus.Gatherer
	CommentMaxLength int

	Logger *slog.Logger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Metrics → Auth → Logging → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	authHandler := NewAuthHandler(deps.AuthService, deps.Logger)
	onlineHandler := NewOnlineHandler(deps.Tracker, deps.Logger)
	commentHandler := NewCommentHandler(deps.Store, deps.Sanitizer, deps.Metrics, deps.Logger, deps.CommentMaxLength)
	adminHandler := NewAdminHandler(deps.AdminService, deps.Store, deps.Logger)
	adminUserHandler := NewAdminUserHandler(deps.AdminService, deps.Store, deps.Logger)
	roleHandler := NewRoleHandler(deps.AdminService, deps.Store, deps.Logger)
	userRoleHandler := NewUserRoleHandler(deps.AdminService, deps.Store, deps.Logger)
	profileHandler := NewProfileHandler(deps.Store, deps.AvatarGuard, deps.Logger)
	settingsHandler := NewSettingsHandler(deps.AdminService, deps.Store, deps.Logger)

	// --- 監視用ルート（レート制限の対象外） ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- APIルート ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/auth", authHandler.Handle)

		r.Route("/api/online", func(r chi.Router) {
			r.Get("/", onlineHandler.Count)
			r.Post("/", onlineHandler.Heartbeat)
		})

		r.Route("/api/comments", func(r chi.Router) {
			r.Get("/", commentHandler.List)
			// POST /api/comments - コメント投稿（投稿専用レート制限を追加）
			r.With(deps.RateLimiter.CommentMiddleware()).Post("/", commentHandler.Create)
			r.Put("/", commentHandler.Update)
			r.Delete("/", commentHandler.Delete)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Get("/", adminHandler.Handle)
			r.Post("/", adminHandler.Handle)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", adminUserHandler.List)
				r.Post("/", adminUserHandler.AddAdmin)
				r.Put("/", adminUserHandler.UpdateBan)
			})
		})

		r.Route("/api/roles", func(r chi.Router) {
			r.Get("/", roleHandler.List)
			r.Post("/", roleHandler.Create)
			r.Put("/", roleHandler.Update)
			r.Delete("/", roleHandler.Delete)
		})

		r.Route("/api/user-roles", func(r chi.Router) {
			r.Get("/", userRoleHandler.List)
			r.Post("/", userRoleHandler.Assign)
			r.Put("/", userRoleHandler.UpdatePrefix)
			r.Delete("/", userRoleHandler.Remove)
		})

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Put("/", profileHandler.Update)
			r.Post("/", profileHandler.Update)
		})

		r.Route("/api/widget-settings", func(r chi.Router) {
			r.Get("/", settingsHandler.Get)
			r.Put("/", settingsHandler.Update)
			r.Post("/", settingsHandler.Update)
		})
	})

	return r
}
