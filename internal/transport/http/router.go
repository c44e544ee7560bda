package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-notify-api/internal/application/notification"
	"github.com/go-notify-api/internal/application/template"
	"github.com/go-notify-api/internal/config"
	"github.com/go-notify-api/internal/schedule"
	"github.com/go-notify-api/internal/transport/http/handler"
	appmiddleware "github.com/go-notify-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	TemplateRepo     TemplateRepository
	NotificationRepo NotificationRepository
	LogRepo          AttemptLogRepository
	Resolver         *schedule.Resolver
	Dispatcher       notification.Scheduler
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10 — applied to the create endpoint, which
	// fans out into sends.
	createRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	templateSvc := template.NewService(deps.TemplateRepo)
	notifSvc := notification.NewService(notification.ServiceDeps{
		NotificationRepo: deps.NotificationRepo,
		TemplateRepo:     deps.TemplateRepo,
		LogRepo:          deps.LogRepo,
		Resolver:         deps.Resolver,
		Dispatcher:       deps.Dispatcher,
	})

	healthH := handler.NewHealthHandler()
	templateH := handler.NewTemplateHandler(templateSvc)
	notifH := handler.NewNotificationHandler(notifSvc)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Post("/templates", templateH.Create)
		r.Get("/templates", templateH.List)
		r.Get("/templates/{key}", templateH.Get)
		r.Put("/templates/{key}", templateH.Update)
		r.Delete("/templates/{key}", templateH.Delete)

		r.With(createRL.Limit).Post("/notifications", notifH.Create)
		r.Get("/notifications", notifH.List)
		r.Get("/notifications/{id}", notifH.Get)
		r.Post("/notifications/{id}/cancel", notifH.Cancel)
		r.Get("/notifications/{id}/logs", notifH.Logs)
	})

	return r
}
