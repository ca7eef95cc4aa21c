// Package api provides the HTTP server for a clawmarket node: one POST
// endpoint per market or reputation call, read-only queries, a live event
// stream, and the operational endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clawchain/clawmarket/internal/health"
	"github.com/clawchain/clawmarket/internal/infra/events"
	"github.com/clawchain/clawmarket/internal/node"
)

// Server is the clawmarket HTTP API server.
type Server struct {
	node           *node.Node
	auth           AuthConfig
	nodeID         string
	version        string
	metricsEnabled bool
	requestLog     bool
	corsOrigins    []string
	hub            *events.Hub     // nil disables /api/v1/events/live
	health         *health.Checker // nil reports ok unconditionally
}

// NewServer creates a new API server.
func NewServer(n *node.Node, auth AuthConfig) *Server {
	return &Server{node: n, auth: auth, version: "dev", corsOrigins: []string{"*"}}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// EnableRequestLog logs every request.
func (s *Server) EnableRequestLog() { s.requestLog = true }

// SetHub sets the live event hub.
func (s *Server) SetHub(h *events.Hub) { s.hub = h }

// SetHealth sets the health checker reported by /health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetIdentity sets the node id and version reported by /api/v1/status.
func (s *Server) SetIdentity(nodeID, version string) {
	s.nodeID = nodeID
	s.version = version
}

// SetCORSOrigins restricts the allowed origins.
func (s *Server) SetCORSOrigins(origins []string) {
	if len(origins) > 0 {
		s.corsOrigins = origins
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.requestLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		// Queries are public.
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/count", s.handleTaskCount)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Get("/tasks/{id}/bids", s.handleListBids)
		r.Get("/tasks/{id}/bids/{bidder}", s.handleGetBid)
		r.Get("/accounts/{account}/reputation", s.handleReputation)
		r.Get("/accounts/{account}/history", s.handleHistory)
		r.Get("/accounts/{account}/balance", s.handleBalance)
		r.Get("/accounts/{account}/ledger", s.handleLedger)
		r.Get("/reviews/{reviewer}/{reviewee}", s.handleGetReview)
		r.Get("/events", s.handleEvents)
		r.Get("/extrinsics", s.handleExtrinsics)
		if s.hub != nil {
			r.Handle("/events/live", s.hub)
		}

		// Calls need an authenticated origin.
		r.Group(func(r chi.Router) {
			r.Use(s.auth.requireAuth)
			r.Get("/whoami", s.handleWhoAmI)

			r.Post("/tasks", s.handlePostTask)
			r.Post("/tasks/{id}/bids", s.handleBid)
			r.Post("/tasks/{id}/assign", s.handleAssign)
			r.Post("/tasks/{id}/submit", s.handleSubmit)
			r.Post("/tasks/{id}/approve", s.handleApprove)
			r.Post("/tasks/{id}/dispute", s.handleDispute)
			r.Post("/tasks/{id}/resolve", s.handleResolve)
			r.Post("/tasks/{id}/cancel", s.handleCancel)
			r.Post("/reviews", s.handleReview)
			r.Post("/slashes", s.handleSlash)

			// Raw form: the body is the call's JSON arguments.
			r.Post("/calls/{method}", s.handleCall)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":    s.nodeID,
		"version":    s.version,
		"seq":        s.node.Seq(),
		"task_count": s.node.TaskCount(),
		"escrow":     s.node.Escrow(),
		"time":       time.Now().UTC(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	})
}

// corsMiddleware adds CORS headers for browser clients.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := strings.Join(s.corsOrigins, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Account")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
