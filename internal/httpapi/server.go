package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dialogd/internal/conversation"
	"dialogd/internal/coordinator"
	"dialogd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *coordinator.Coordinator implements it.
type Service interface {
	Start(ctx context.Context, prompt string, params coordinator.Params, conversationID string) (*coordinator.Handle, error)
	Cancel(sessionID string) bool
	CancelAll() []string
	SessionInfo(sessionID string) (coordinator.SessionInfo, bool)
	Sessions() []coordinator.SessionInfo

	StartConversation(ctx context.Context, title string) (string, error)
	ContinueConversation(ctx context.Context, id string) error
	ClearConversation(ctx context.Context, id string) error
	ConversationInfo(id string) (conversation.Info, bool)
	ConversationMessages(id string) ([]conversation.Message, bool)
	Conversations() []conversation.Info
	CurrentConversation() string
	ExportConversations() ([]byte, error)
	ImportConversations(ctx context.Context, data []byte) (int, error)

	Status() types.StatusResponse
	Ready() bool
}

var _ Service = (*coordinator.Coordinator)(nil)

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}

	r.Get("/models", h.models)
	r.Get("/status", h.status)
	r.Post("/generate", h.generate)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.listSessions)
		r.Post("/cancel", h.cancelAll)
		r.Get("/{id}", h.getSession)
		r.Delete("/{id}", h.cancelSession)
	})

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.listConversations)
		r.Post("/", h.createConversation)
		r.Get("/export", h.exportConversations)
		r.Post("/import", h.importConversations)
		r.Get("/{id}", h.getConversation)
		r.Delete("/{id}", h.clearConversation)
		r.Post("/{id}/continue", h.continueConversation)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func corsOptions() cors.Options {
	methods := corsAllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	}
	headers := corsAllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "X-Log-Level", "X-Request-Id"}
	}
	return cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		ExposedHeaders: []string{sessionHeader, middleware.RequestIDHeader},
		MaxAge:         300,
	}
}

type handlers struct {
	svc Service
}

func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	list := models
	if list == nil {
		list = []types.Model{}
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: list, Active: activeModel})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}
