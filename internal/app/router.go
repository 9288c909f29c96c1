package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stockbook-app/stockbook/internal/invoicing"
	"github.com/stockbook-app/stockbook/internal/observability"
	"github.com/stockbook-app/stockbook/internal/production"
	"github.com/stockbook-app/stockbook/internal/receiving"
	"github.com/stockbook-app/stockbook/internal/stock"
	"github.com/stockbook-app/stockbook/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	InvoiceHandler      *invoicing.Handler
	PurchaseItemHandler *receiving.Handler
	ProductionHandler   *production.Handler
	StockHandler        *stock.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with Stockbook defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/invoices", params.InvoiceHandler.MountRoutes)
	r.Route("/purchase-items", params.PurchaseItemHandler.MountRoutes)
	r.Route("/production-runs", params.ProductionHandler.MountRoutes)
	r.Route("/stock", params.StockHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
