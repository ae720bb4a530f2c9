package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/mw"
)

func init() { Register(registerActivity) }

// Every activity route reaches upstream, so all of them are rate limited.
func registerActivity(r chi.Router, d deps.Deps) {
	r.Route("/api/activity", func(r chi.Router) {
		r.Use(
			mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
			mw.RateLimit(mw.RateLimitConfig{
				Burst:             d.RateLimitBurst,
				RefillPerIPPerMin: d.RateLimitPerMin,
				MaxEntries:        10000,
				TrustProxy:        d.TrustProxy,
				Logger:            d.Logger,
			}),
		)

		r.Get("/list", handlers.ActivityList(d))
		r.Get("/search", handlers.ActivitySearch(d))
		r.Get("/detail/{id}", handlers.ActivityDetail(d))
	})
}
