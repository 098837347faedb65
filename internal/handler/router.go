package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/toshokan/internal/middleware"
)

// Pinger はヘルスチェックで使うデータベース疎通確認のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// メトリクス（nil可）
	HTTPObserver         func(next http.Handler) http.Handler
	RegistrationRecorder RegistrationRecorder

	// サービス
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	CatalogService CatalogServiceInterface
	RentalService  RentalServiceInterface
	OpenLoanLister OpenLoanLister

	// ヘルスチェック（nil可）
	DB Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → CSRF
//	→ (認証ルート: ログインのみIPレート制限)
//	→ (APIルート: Session → RateLimit(General) → [管理者ルート: RequireAdmin])
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.HTTPObserver != nil {
		r.Use(deps.HTTPObserver)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.RegistrationRecorder, deps.AuthConfig)
	bookHandler := NewBookHandler(deps.CatalogService, deps.OpenLoanLister)
	rentalHandler := NewRentalHandler(deps.RentalService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.DB))
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			// ログインは未認証で叩かれるため、IPごとのレート制限を掛ける
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Session → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// 蔵書閲覧と貸出（全利用者）
			r.Route("/api/books", func(r chi.Router) {
				r.Get("/", bookHandler.ListBooks)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", bookHandler.GetBook)
					r.Post("/rental", rentalHandler.Toggle)
				})
			})

			r.Get("/api/authors", bookHandler.ListAuthors)
			r.Get("/api/categories", bookHandler.ListCategories)

			// カタログ管理と貸出台帳（管理者専用）
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewRequireAdminMiddleware(deps.UserFinder))

				r.Post("/api/books", bookHandler.CreateBook)
				r.Patch("/api/books/{id}", bookHandler.UpdateBook)
				r.Delete("/api/books/{id}", bookHandler.DeleteBook)

				r.Post("/api/authors", bookHandler.CreateAuthor)
				r.Post("/api/categories", bookHandler.CreateCategory)

				r.Get("/api/rentals", rentalHandler.ListLedger)
			})
		})
	})

	return r
}

// healthHandler はヘルスチェックのハンドラーを返す。
// DBが指定されている場合は疎通確認を行い、失敗時は503を返す。
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK

		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				status = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
