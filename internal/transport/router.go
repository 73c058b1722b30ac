package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/uibind/internal/config"
	"github.com/pitabwire/uibind/internal/controller"
	"github.com/pitabwire/uibind/internal/observability"
	"github.com/pitabwire/uibind/internal/render"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config     *config.Config
	Controller *controller.Controller
	Resolver   *render.Resolver
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Readiness  observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the middleware pipeline and all route
// registrations. Health, readiness, and metrics endpoints skip the request
// logging and timeout layers.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	h := &handlers{
		controller: deps.Controller,
		resolver:   deps.Resolver,
		logger:     logger,
	}

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Get("/ui/views", h.listViews)
		r.Get("/ui/views/{viewId}", h.getView)
		r.Get("/ui/forms/{modelName}", h.getForm)
		r.Get("/ui/grids/{modelName}", h.getGrid)
		r.Get("/ui/stores/{storeId}/data", h.getStoreData)
		r.Post("/ui/models/{modelName}/validate", h.validateRecord)
		r.Post("/ui/actions/{action}", h.dispatchAction)
	})

	return r
}
