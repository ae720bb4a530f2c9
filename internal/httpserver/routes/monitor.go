package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/mw"
)

func init() { Register(registerMonitor) }

func registerMonitor(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateLimitBurst,
		RefillPerIPPerMin: d.RateLimitPerMin,
		MaxEntries:        10000,
		TrustProxy:        d.TrustProxy,
		Logger:            d.Logger,
	})

	r.Route("/api/monitor", func(r chi.Router) {
		r.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))

		r.With(limit).Post("/task", handlers.CreateTask(d))
		r.Get("/tasks", handlers.ListTasks(d))
		r.Get("/task/{id}", handlers.GetTask(d))
		r.Delete("/task/{id}", handlers.DeleteTask(d))
		r.Post("/task/{id}/stop", handlers.StopTask(d))
		r.Patch("/task/{id}/price", handlers.UpdateTargetPrice(d))
		r.Post("/cleanup", handlers.Cleanup(d))
		r.Get("/historical/{activityId}", handlers.HistoricalData(d))
	})
}
