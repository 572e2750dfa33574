package lodd

import (
	gethprom "github.com/ethereum/go-ethereum/metrics/prometheus"
	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"io"
	"log/slog"
	"net/http"
)

func (d *LODDaemon) NewRouter() *mux.Router {
	router := mux.NewRouter().StrictSlash(false)
	router.Use(loggingMiddleware)

	// Websocket; not behind the JSON content type.
	router.Path("/socket").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = d.melodyInstance.HandleRequest(w, r)
	})

	apiRoutes := router.NewRoute().Subrouter()
	apiRoutes.Use(permissiveCorsMiddleware)

	// /ping is a simple server healthcheck endpoint
	apiRoutes.Path("/ping").HandlerFunc(pingPong).Methods(http.MethodGet)

	apiRoutes.Path("/metrics").Handler(d.metricsHandler()).Methods(http.MethodGet)
	apiRoutes.Path("/debug/metrics").Handler(gethprom.Handler(d.tileset.MetricsRegistry())).Methods(http.MethodGet)

	apiJSONRoutes := apiRoutes.NewRoute().Subrouter()
	apiJSONRoutes.Use(contentTypeMiddlewareFunc("application/json"))

	apiJSONRoutes.Path("/status").HandlerFunc(d.statusReport).Methods(http.MethodGet)
	apiJSONRoutes.Path("/selected").HandlerFunc(d.handleSelected).Methods(http.MethodGet)
	apiJSONRoutes.Path("/viewport").HandlerFunc(d.handleViewport).Methods(http.MethodPost, http.MethodOptions)

	return router
}

func permissiveCorsMiddleware(next http.Handler) http.Handler {
	return ghandlers.CORS(
		ghandlers.AllowedOrigins([]string{"*"}),
		ghandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		ghandlers.AllowedHeaders([]string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"}),
	)(next)
}

func contentTypeMiddlewareFunc(contentType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			next.ServeHTTP(w, r)
		})
	}
}

// writeLog logs one request through slog instead of Apache common log lines.
func writeLog(_ io.Writer, params ghandlers.LogFormatterParams) {
	slog.Debug("HTTP",
		"method", params.Request.Method,
		"uri", params.URL.RequestURI(),
		"status", params.StatusCode,
		"size", params.Size,
		"remote", params.Request.RemoteAddr,
		"at", params.TimeStamp)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return ghandlers.CustomLoggingHandler(io.Discard, next, writeLog)
}
