// Package purchase exposes the NG purchase flow over HTTP.
package purchase

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/auth"
	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/handlers/respond"
	"github.com/kevin07696/purchase-gateway/internal/ng"
	"github.com/kevin07696/purchase-gateway/internal/services/postback"
	purchasesvc "github.com/kevin07696/purchase-gateway/internal/services/purchase"
	"github.com/kevin07696/purchase-gateway/pkg/middleware"
)

// Service is the purchase flow the handler drives
type Service interface {
	Init(ctx context.Context, req ng.InitRequest) (*ng.InitResponse, error)
	Process(ctx context.Context, req ng.ProcessRequest) (*ng.ProcessResponse, error)
	ValidateCaptcha(ctx context.Context, sessionID string) (*ng.ProcessResponse, error)
	Complete3DS(ctx context.Context, req ng.ThreeDSCompleteRequest) (*ng.ProcessResponse, error)
	FailedBillers(ctx context.Context, sessionID string) (*ng.FailedBillersResponse, error)
	Postback(ctx context.Context, n postback.Notification) (*postback.Result, error)
	Return(ctx context.Context, n postback.Notification) (string, error)
}

// Handler serves the purchase endpoints
type Handler struct {
	svc            Service
	callbackSecret string
	logger         *zap.Logger
}

// NewHandler creates a purchase handler. Postbacks must be signed with
// callbackSecret.
func NewHandler(svc Service, callbackSecret string, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, callbackSecret: callbackSecret, logger: logger}
}

// Register mounts the purchase endpoints on mux. wrap decorates each
// endpoint with its metric route name.
func (h *Handler) Register(mux *http.ServeMux, wrap func(route string, next http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/purchase/init", wrap("purchase_init", http.HandlerFunc(h.Init)))
	mux.Handle("POST /api/v1/purchase/process", wrap("purchase_process", http.HandlerFunc(h.Process)))
	mux.Handle("POST /api/v1/purchase/captcha/{sessionId}", wrap("purchase_captcha", http.HandlerFunc(h.ValidateCaptcha)))
	mux.Handle("GET /api/v1/purchase/failed-billers/{sessionId}", wrap("purchase_failed_billers", http.HandlerFunc(h.FailedBillers)))
	mux.Handle("POST "+purchasesvc.ThreeDSPath+"{sessionId}", wrap("purchase_3ds_complete", http.HandlerFunc(h.Complete3DS)))
	mux.Handle("GET "+purchasesvc.ReturnPath+"{sessionId}", wrap("purchase_return", http.HandlerFunc(h.Return)))
	mux.Handle("POST "+purchasesvc.ReturnPath+"{sessionId}", wrap("purchase_return", http.HandlerFunc(h.Return)))
	mux.Handle("POST "+purchasesvc.PostbackPath+"{sessionId}", wrap("purchase_postback",
		middleware.CallbackSignature(h.callbackSecret, h.logger)(http.HandlerFunc(h.Postback))))
}

// Init opens a purchase session
// POST /api/v1/purchase/init
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

// Process pays for a session
// POST /api/v1/purchase/process
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req ng.ProcessRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if req.ClientIP == "" {
		req.ClientIP = auth.GetClientIP(r.Context())
	}
	if req.ClientIP == "" {
		req.ClientIP = middleware.ClientIP(r, false)
	}

	resp, err := h.svc.Process(r.Context(), req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, h.logger, http.StatusOK, resp)
}

// ValidateCaptcha releases a session held for captcha
// POST /api/v1/purchase/captcha/{sessionId}
func (h *Handler) ValidateCaptcha(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.ValidateCaptcha(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, h.logger, http.StatusOK, resp)
}

// FailedBillers lists the billers that did not approve a session
// GET /api/v1/purchase/failed-billers/{sessionId}
func (h *Handler) FailedBillers(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.FailedBillers(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, h.logger, http.StatusOK, resp)
}

// Complete3DS finishes a 3DS challenge. Access control servers post a form,
// the client SDK posts JSON.
// POST /api/v1/purchase/threed/complete/{sessionId}
func (h *Handler) Complete3DS(w http.ResponseWriter, r *http.Request) {
	req := ng.ThreeDSCompleteRequest{}
	if isJSON(r) {
		if err := respond.Decode(w, r, &req); err != nil {
			respond.Error(w, r, h.logger, err)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, respond.MaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			respond.Error(w, r, h.logger, domain.WrapError(domain.ErrorCodeValidationFailed, "malformed form body", err))
			return
		}
		req.PaRes = firstOf(r.PostForm, "PaRes", "pares")
		req.MD = firstOf(r.PostForm, "MD", "md")
		req.Flow = r.PostForm.Get("flow")
	}
	req.SessionID = r.PathValue("sessionId")

	resp, err := h.svc.Complete3DS(r.Context(), req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, h.logger, http.StatusOK, resp)
}

// Return takes the payer back from a third-party biller and redirects them
// to the client's return URL. The query only identifies the payer's
// transaction; its outcome is confirmed with the transaction service.
// GET|POST /api/v1/purchase/return/{sessionId}
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, respond.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		respond.Error(w, r, h.logger, domain.WrapError(domain.ErrorCodeValidationFailed, "malformed return parameters", err))
		return
	}
	n := notificationFromValues(r.PathValue("sessionId"), r.Form)

	target, err := h.svc.Return(r.Context(), n)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Postback applies a biller's server-to-server notification
// POST /api/v1/purchase/postback/{sessionId}
func (h *Handler) Postback(w http.ResponseWriter, r *http.Request) {
	var body Notification
	if err := respond.Decode(w, r, &body); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	res, err := h.svc.Postback(r.Context(), body.toNotification(r.PathValue("sessionId")))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, h.logger, http.StatusOK, PostbackAck{
		SessionID:     res.SessionID,
		State:         string(res.State),
		TransactionID: res.TransactionID,
		Status:        string(res.Status),
	})
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

