package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cerberus-gate/cerberus/internal/service"
	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// ProxyPrefix is the governed proxy mount point; everything after it is
// the upstream path.
const ProxyPrefix = "/governance-plane/api/v1/proxy"

// maxRequestBody caps inbound bodies, matching the upstream read cap.
const maxRequestBody = 10 << 20

// ProxyHandler translates inbound HTTP requests into proxy calls and
// writes the in-band outcome. Every governed response is HTTP 200.
type ProxyHandler struct {
	svc *service.ProxyService
}

// NewProxyHandler creates the proxy endpoint handler.
func NewProxyHandler(svc *service.ProxyService) *ProxyHandler {
	return &ProxyHandler{svc: svc}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		message := "failed to read request body"
		if errors.As(err, &maxErr) {
			message = "request body too large"
		}
		writeEnvelope(w, mcp.NewErrorResponse(nil, mcp.CodeParseError, message, nil))
		return
	}

	resp := h.svc.Handle(ctx, &service.ProxyRequest{
		Method:        r.Method,
		Path:          "/" + chi.URLParam(r, "*"),
		Query:         r.URL.RawQuery,
		Body:          body,
		Headers:       r.Header,
		Authorization: r.Header.Get("Authorization"),
		ClientIP:      clientIP(r),
		UserAgent:     r.UserAgent(),
		RequestID:     RequestIDFromContext(ctx),
	})

	header := w.Header()
	for name, values := range resp.UpstreamHeaders {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	header.Set("Content-Type", "application/json")
	header.Set("X-Request-ID", resp.RequestID)
	if resp.RequestDecisionID != "" {
		header.Set("X-Request-Decision-ID", resp.RequestDecisionID)
	}
	if resp.ResponseDecisionID != "" {
		header.Set("X-Response-Decision-ID", resp.ResponseDecisionID)
	}

	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

func writeEnvelope(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
