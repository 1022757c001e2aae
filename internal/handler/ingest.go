package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/handler/dto"
	"github.com/keenchase/edit-business/internal/httperr"
	"github.com/keenchase/edit-business/internal/middleware"
)

// UserIDHeader tells the upstream data service who the records belong to.
const UserIDHeader = "X-User-Id"

const refundTimeout = 5 * time.Second

// IngestHandler forwards admitted collection requests to the data
// service. Units are refunded when the upstream fails.
type IngestHandler struct {
	logger *slog.Logger
	quota  QuotaService
	proxy  *httputil.ReverseProxy
}

// NewIngestHandler creates an IngestHandler. With an empty upstream the
// handler acknowledges admitted requests itself.
func NewIngestHandler(logger *slog.Logger, quota QuotaService, upstream string) (*IngestHandler, error) {
	h := &IngestHandler{logger: logger, quota: quota}
	if upstream == "" {
		return h, nil
	}

	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del(middleware.APIKeyHeader)
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Set(UserIDHeader, auth.UserIDFromContext(pr.In.Context()))
			pr.Out.Header.Set(middleware.RequestIDHeader, middleware.GetRequestID(pr.In.Context()))
		},
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode >= http.StatusInternalServerError {
				h.refund(resp.Request.Context(), "upstream_status")
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed",
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.GetRequestID(r.Context())),
			)
			// Cancelled by the client; the upstream may have stored the records.
			if !errors.Is(err, context.Canceled) && !errors.Is(r.Context().Err(), context.Canceled) {
				h.refund(r.Context(), "upstream_error")
			}
			httperr.Write(w, http.StatusBadGateway, httperr.CodeUnavailable, "Upstream data service unavailable", nil)
		},
	}
	return h, nil
}

// ServeHTTP handles POST /api/v1/notes, /bloggers and their batch forms.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	admission := middleware.AdmissionFromContext(r.Context())
	if admission == nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.CodeInternal, "Internal server error", nil)
		return
	}

	if h.proxy == nil {
		writeJSON(w, http.StatusAccepted, dto.IngestAcceptedResponse{Accepted: admission.Units, Usage: admission.Usage})
		return
	}
	h.proxy.ServeHTTP(w, r)
}

func (h *IngestHandler) refund(ctx context.Context, reason string) {
	a := middleware.AdmissionFromContext(ctx)
	if a == nil || a.Usage == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()
	if err := h.quota.RefundDay(rctx, a.UserID, a.Usage.Day, a.Units); err != nil {
		h.logger.Warn("quota refund failed",
			slog.String("user_id", a.UserID),
			slog.Int("units", a.Units),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
}
