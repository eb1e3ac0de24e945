// Package ipn exposes the payment-provider notification endpoint over HTTP
// and maps pipeline outcomes to the response envelope providers expect.
package ipn

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/paybridge/ipn/internal/app/services"
)

const maxPayloadBytes = 1 << 20

// Response is the JSON envelope returned to the provider.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the static health check body.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// Handler processes provider notification requests.
type Handler struct {
	pipeline   *services.Pipeline
	service    string
	version    string
	trustProxy bool
}

// NewHandler constructs the IPN webhook handler. Proxy headers are trusted
// by default; see WithProxyHeaders for direct deployments.
func NewHandler(pipeline *services.Pipeline, service, version string) *Handler {
	return &Handler{pipeline: pipeline, service: service, version: version, trustProxy: true}
}

// WithProxyHeaders controls whether X-Real-IP / X-Forwarded-For are used to
// resolve the client address. Disable when the service is reached directly,
// otherwise a caller can spoof past the IP allowlist.
func (h *Handler) WithProxyHeaders(trust bool) *Handler {
	h.trustProxy = trust
	return h
}

// Handle runs one notification through the pipeline and answers with the
// provider-facing envelope.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) error {
	request := services.WebhookRequest{
		ContentType: r.Header.Get("Content-Type"),
		ClientIP:    h.clientIP(r),
		UserAgent:   r.UserAgent(),
	}

	body, readErr := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	request.Body = body
	if readErr != nil {
		h.pipeline.RecordReadFailure(request, readErr)
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "malformed_payload",
			Details: "request body could not be read",
		})
		return nil
	}

	result, err := h.pipeline.Process(r.Context(), request)
	if handled := h.writePipelineError(w, result, err); handled {
		return nil
	}
	if err != nil {
		return err
	}

	response := Response{Success: result.Success, OrderID: result.OrderID, Message: result.Message}
	if !result.Success {
		response.Error = "downstream_error"
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

// Health answers the companion liveness probe; it is outside the
// security-critical path.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   h.service,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	})
	return nil
}

func (h *Handler) writePipelineError(w http.ResponseWriter, result services.Result, err error) bool {
	switch services.ClassifyPipelineError(err) {
	case services.PipelineErrorUnknown:
		return false
	case services.PipelineErrorMalformed:
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "malformed_payload",
			Details: "request body could not be decoded",
		})
		return true
	case services.PipelineErrorMissingOrderID:
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "missing_order_id",
			Details: "no order id found in payload",
		})
		return true
	case services.PipelineErrorUnauthorized:
		writeJSON(w, http.StatusUnauthorized, Response{
			Success: false,
			Error:   "unauthorized",
			Details: string(result.FailedCheck) + " check failed",
		})
		return true
	case services.PipelineErrorUnexpected:
		writeJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "internal_error",
		})
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// clientIP resolves the source address. Proxy headers are consulted only
// when trusted, otherwise the socket peer is authoritative.
func (h *Handler) clientIP(r *http.Request) string {
	if h.trustProxy {
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
