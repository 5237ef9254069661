package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/booklend/internal/api/handlers"
	"github.com/baharkarakas/booklend/internal/api/httpx"
	"github.com/baharkarakas/booklend/internal/auth"
	"github.com/baharkarakas/booklend/internal/config"
	"github.com/baharkarakas/booklend/internal/metrics"
	"github.com/baharkarakas/booklend/internal/middleware"
	"github.com/baharkarakas/booklend/internal/services"
)

type RouterDeps struct {
	Cfg      config.Config
	TM       *auth.TokenManager
	Users    *services.UserService
	Books    *services.BookService
	Requests *services.RequestService
}

func NewRouter(d RouterDeps) http.Handler {
	authH := handlers.NewAuthHandler(d.TM, d.Users, d.Cfg.Env)
	bookH := handlers.NewBookHandler(d.Books)
	reqH := handlers.NewRequestHandler(d.Requests)
	authMW := middleware.NewAuthMiddleware(d.TM, d.Cfg.Env)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- auth ----------
		r.Post("/auth/register", authH.Register)
		r.Post("/auth/login", authH.Login)
		r.Post("/auth/refresh", authH.Refresh)

		r.Get("/books", bookH.List)

		r.Group(func(r chi.Router) {
			r.Use(authMW.Auth)

			// ---------- users ----------
			r.Get("/users", func(w http.ResponseWriter, r *http.Request) {
				users, err := d.Users.List(r.Context())
				if err != nil {
					httpx.Fail(w, r, err)
					return
				}
				httpx.OK(w, http.StatusOK, users)
			})

			// ---------- books ----------
			r.Post("/books", bookH.Add)
			r.Delete("/books/{id}", bookH.Delete)

			// ---------- requests ----------
			r.Get("/requests", reqH.List)
			r.Post("/requests", reqH.Create)
			r.Patch("/requests/{id}", reqH.Transition)
			r.Get("/requests/{id}/otp", reqH.GenerateOTP)
			r.Get("/requests/{id}/transactions", reqH.History)
		})
	})

	return r
}
