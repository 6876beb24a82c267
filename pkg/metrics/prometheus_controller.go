package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller mounts its routes on the metrics router.
type Controller interface {
	Key() string
	Register(r *mux.Router)
}

type PrometheusController struct {
	path string
}

func NewPrometheusController(path string) Controller {
	if path == "" {
		path = "/debug/prometheus"
	}
	return &PrometheusController{path: path}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	r.Handle(c.path, promhttp.Handler()).Methods(http.MethodGet)
}

// HealthController answers liveness probes with the result of check.
type HealthController struct {
	path  string
	check func(*http.Request) error
}

func NewHealthController(path string, check func(*http.Request) error) Controller {
	if path == "" {
		path = "/healthz"
	}
	return &HealthController{path: path, check: check}
}

func (c *HealthController) Key() string {
	return c.path
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc(c.path, func(w http.ResponseWriter, req *http.Request) {
		if c.check != nil {
			if err := c.check(req); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
}
