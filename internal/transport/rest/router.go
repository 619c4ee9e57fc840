package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"resilience-sim/internal/content"
	"resilience-sim/internal/service"
	"resilience-sim/internal/transport/rest/handler"
	"resilience-sim/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	Catalog       *content.Catalog
	GameService   *service.GameService
	CrisisService *service.CrisisService
	WSHub         *ws.Hub
	WSHandler     *ws.Handler
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	badgeHandler := handler.NewBadgeHandler(c.Catalog)
	sessionHandler := handler.NewSessionHandler(c.GameService)
	crisisHandler := handler.NewCrisisHandler(c.CrisisService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Badge catalog
	v1.HandleFunc("/badges", badgeHandler.List).Methods("GET", "OPTIONS")
	v1.HandleFunc("/badges/{badgeId}", badgeHandler.Get).Methods("GET", "OPTIONS")

	// Simulation sessions
	v1.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}", sessionHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}", sessionHandler.Delete).Methods("DELETE", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}/choice", sessionHandler.SelectChoice).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}/advance", sessionHandler.Advance).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}/freeform", sessionHandler.SubmitFreeform).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{sessionId}/reset", sessionHandler.Reset).Methods("POST", "OPTIONS")

	// Crisis conversations
	v1.HandleFunc("/crisis", crisisHandler.Create).Methods("POST", "OPTIONS")
	v1.HandleFunc("/crisis/strategies", crisisHandler.ListStrategies).Methods("GET", "OPTIONS")
	v1.HandleFunc("/crisis/{conversationId}", crisisHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/crisis/{conversationId}", crisisHandler.Delete).Methods("DELETE", "OPTIONS")
	v1.HandleFunc("/crisis/{conversationId}/context", crisisHandler.SubmitContext).Methods("POST", "OPTIONS")
	v1.HandleFunc("/crisis/{conversationId}/messages", crisisHandler.SendMessage).Methods("POST", "OPTIONS")
	v1.HandleFunc("/crisis/{conversationId}/strategies", crisisHandler.AdvanceToStrategies).Methods("POST", "OPTIONS")

	// WebSocket route
	if c.WSHandler != nil {
		v1.HandleFunc("/ws/sessions/{id}", c.WSHandler.SessionWS).Methods("GET")
	}

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
