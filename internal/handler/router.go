package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nathanael10142/Campusos/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenParser       middleware.TokenParser
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface

	// OAuth
	OAuthService    OAuthServiceInterface
	OAuthConfigured bool

	// ユーザー
	UserService UserServiceInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit → (Auth)
//
// 認証エンドポイントはIP単位、認証済みAPIはアカウント単位でレート制限する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	authHandler := NewAuthHandler(deps.AuthService)
	oauthHandler := NewOAuthHandler(deps.OAuthService, deps.OAuthConfigured)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート（クライアントIP単位のレート制限） ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		// Google OAuthフロー
		r.Route("/oauth/google", func(r chi.Router) {
			r.Get("/login", oauthHandler.Login)
			r.Get("/callback", oauthHandler.Callback)
			r.Post("/complete", oauthHandler.Complete)
		})

		// パスワード認証
		r.Post("/api/auth/register", authHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
		r.Post("/api/auth/refresh", authHandler.Refresh)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenParser))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/auth/me", authHandler.Me)
		r.Get("/api/users/{id}/avatar", userHandler.Avatar)
	})

	// --- 運用エンドポイント ---
	r.Get("/healthz", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	return r
}

// NewHealthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if checker == nil || checker.PingContext(ctx) != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
