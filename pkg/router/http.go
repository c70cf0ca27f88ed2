package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wampio/wampio/pkg/auth"
	"github.com/wampio/wampio/pkg/protocol"
)

// mountHTTP registers the router's ambient HTTP surface: /metrics
// (Prometheus exposition) and /healthz (liveness).
func (r *Router) mountHTTP() {
	r.mux.Get("/healthz", r.handleHealthz)
	r.mux.Handle("/metrics", promhttp.Handler())
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// mountWebSocket registers path as a WebSocket upgrade endpoint bound to
// authProvider, restricted to accepted serializers (nil = any).
func (r *Router) mountWebSocket(path string, authProvider auth.Provider, accepted protocol.AcceptedSerializers) {
	r.mux.Get(path, func(w http.ResponseWriter, req *http.Request) {
		ws, err := protocol.AcceptWebSocket(w, req)
		if err != nil {
			r.metrics.HandshakeFailed("websocket")
			r.logger.Debug("websocket upgrade failed", "error", err)
			return
		}
		if accepted != nil && !accepted[ws.Serializer()] {
			r.metrics.HandshakeFailed("websocket")
			_ = ws.Close()
			return
		}
		r.accept(ws, authProvider, accepted, "websocket")
	})
}
