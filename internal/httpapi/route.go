package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/AdguardTeam/golibs/netutil/httputil"
	"github.com/NYTimes/gziphandler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path pattern constants.
const (
	PathPatternHealthCheck = "/health-check"
	PathPatternMetrics     = "/metrics"
	PathPatternV1Leases    = "/api/v1/leases"
	PathPatternV1Lease     = "/api/v1/leases/{ip}"
	PathPatternV1Resources = "/api/v1/resources"
)

// Route pattern constants.
const (
	routePatternHealthCheck     = http.MethodGet + " " + PathPatternHealthCheck
	routePatternMetrics         = http.MethodGet + " " + PathPatternMetrics
	routePatternGetV1Leases     = http.MethodGet + " " + PathPatternV1Leases
	routePatternGetV1Lease      = http.MethodGet + " " + PathPatternV1Lease
	routePatternPostV1Resources = http.MethodPost + " " + PathPatternV1Resources
)

// route registers all necessary handlers in mux.
func (svc *Service) route(mux *http.ServeMux) {
	type route struct {
		handler http.Handler
		pattern string
		isJSON  bool
	}

	routes := []route{{
		handler: httputil.HealthCheckHandler,
		pattern: routePatternHealthCheck,
		isJSON:  false,
	}, {
		handler: http.HandlerFunc(svc.handleGetV1Leases),
		pattern: routePatternGetV1Leases,
		isJSON:  true,
	}, {
		handler: http.HandlerFunc(svc.handleGetV1Lease),
		pattern: routePatternGetV1Lease,
		isJSON:  true,
	}, {
		handler: http.HandlerFunc(svc.handlePostV1Resources),
		pattern: routePatternPostV1Resources,
		isJSON:  true,
	}}

	logMw := httputil.NewLogMiddleware(svc.logger, slog.LevelDebug)
	for _, r := range routes {
		hdlr := r.handler
		if r.isJSON {
			hdlr = gziphandler.GzipHandler(jsonMw(hdlr))
		}

		mux.Handle(r.pattern, logMw.Wrap(hdlr))
	}

	if svc.gatherer != nil {
		// promhttp compresses the response itself.
		h := promhttp.HandlerFor(svc.gatherer, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(svc.logger.Handler(), slog.LevelError),
		})
		mux.Handle(routePatternMetrics, logMw.Wrap(h))
	}
}
