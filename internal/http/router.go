package httpapi

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/hackshop/fulfillment/internal/obs"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products", app.listProductsHandler)
	mux.HandleFunc("/api/products/", app.getProductHandler)
	mux.HandleFunc("/api/orders", app.ordersHandler)
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.HandleFunc("/debug/status", app.statusHandler)
	mux.Handle("/metrics", obs.MetricsHandler())
	mux.HandleFunc("/openapi.yaml", app.openapiHandler)
	mux.HandleFunc("/docs", app.docsHandler)

	var lim *rate.Limiter
	if app.Cfg.RateLimitRPS > 0 {
		burst := app.Cfg.RateLimitBurst
		if burst <= 0 {
			burst = app.Cfg.RateLimitRPS
		}
		lim = rate.NewLimiter(rate.Limit(app.Cfg.RateLimitRPS), burst)
	}
	return WithRequestID(WithLogging(WithRateLimit(lim, mux)))
}
