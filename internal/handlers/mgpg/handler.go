// Package mgpg exposes the MGPG bridge flow over HTTP, including the
// callback endpoints MGPG calls with a resume token.
package mgpg

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/adapters/mgpg"
	"github.com/kevin07696/purchase-gateway/internal/handlers/respond"
	"github.com/kevin07696/purchase-gateway/internal/ng"
	"github.com/kevin07696/purchase-gateway/internal/services/bridge"
)

// Service is the bridge flow the handler drives
type Service interface {
	Init(ctx context.Context, req ng.InitRequest) (*ng.InitResponse, error)
	Process(ctx context.Context, req ng.ProcessRequest) (*ng.ProcessResponse, error)
	Return(ctx context.Context, token string) (string, error)
	Postback(ctx context.Context, token string, pb mgpg.Postback) error
}

// Handler serves the bridge endpoints
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// NewHandler creates a bridge handler
func NewHandler(svc Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the bridge endpoints on mux
func (h *Handler) Register(mux *http.ServeMux, wrap func(route string, next http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/mgpg/init", wrap("mgpg_init", http.HandlerFunc(h.Init)))
	mux.Handle("POST /api/v1/mgpg/process", wrap("mgpg_process", http.HandlerFunc(h.Process)))
	mux.Handle("GET "+bridge.ReturnPath+"{token}", wrap("mgpg_return", http.HandlerFunc(h.Return)))
	mux.Handle("POST "+bridge.ReturnPath+"{token}", wrap("mgpg_return", http.HandlerFunc(h.Return)))
	mux.Handle("POST "+bridge.PostbackPath+"{token}", wrap("mgpg_postback", http.HandlerFunc(h.Postback)))
}

// Init opens a purchase on MGPG
// POST /api/v1/mgpg/init
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	var req ng.InitRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	resp, err := h.svc.Init(r.Context(), req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, h.logger, http.StatusOK, resp)
}

// Process pays for a purchase opened on MGPG
// POST /api/v1/mgpg/process
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req ng.ProcessRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	resp, err := h.svc.Process(r.Context(), req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, h.logger, http.StatusOK, resp)
}

// Return sends the payer back to the client's return URL
// GET|POST /api/v1/mgpg/return/{token}
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	target, err := h.svc.Return(r.Context(), r.PathValue("token"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Postback relays an MGPG postback to the client. Any non-2xx answer makes
// MGPG redeliver.
// POST /api/v1/mgpg/postback/{token}
func (h *Handler) Postback(w http.ResponseWriter, r *http.Request) {
	var pb mgpg.Postback
	if err := respond.Decode(w, r, &pb); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	if err := h.svc.Postback(r.Context(), r.PathValue("token"), pb); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
