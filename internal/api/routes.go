package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Logging снаружи: видит 500 от Recovery и отдаёт ему логгер запроса
	chain := Chain(
		Logging(h.logger),
		Recovery(h.logger),
	)

	// Служебные
	mux.Handle("GET /test/ping", chain(http.HandlerFunc(h.Ping)))
	mux.Handle("GET /healthz", chain(http.HandlerFunc(h.Healthz)))
	mux.Handle("GET /monitors/system", chain(http.HandlerFunc(h.SystemMonitor)))
	mux.Handle("GET /metrics", promhttp.Handler())

	// Templates
	if h.templates != nil {
		mux.Handle("GET /api/v1/templates", chain(http.HandlerFunc(h.ListTemplates)))
		mux.Handle("POST /api/v1/templates", chain(http.HandlerFunc(h.CreateTemplate)))
		mux.Handle("GET /api/v1/templates/{id}", chain(http.HandlerFunc(h.GetTemplate)))
		mux.Handle("PUT /api/v1/templates/{id}/active", chain(http.HandlerFunc(h.SetTemplateActive)))
	}
	if h.reloader != nil {
		mux.Handle("POST /api/v1/templates/reload", chain(http.HandlerFunc(h.ReloadTemplates)))
	}

	// Workflows
	if h.starter != nil {
		mux.Handle("POST /api/v1/workflows", chain(http.HandlerFunc(h.StartWorkflow)))
	}
	if h.instances != nil {
		mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
	}
}
