// Package service wires the domain into the inbound transports: the
// proxy flow orchestration and the seed loader.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cerberus-gate/cerberus/internal/adapter/outbound/upstream"
	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/internal/domain/decision"
	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// ProxyRequest is one inbound proxy call as seen by the transport.
type ProxyRequest struct {
	Method        string
	Path          string
	Query         string
	Body          []byte
	Headers       http.Header
	Authorization string
	ClientIP      string
	UserAgent     string
	RequestID     string
	SessionID     string
}

// ProxyResponse is the transport-agnostic outcome. Status is always
// 200; governance and upstream failures ride inside Body as protocol
// error envelopes.
type ProxyResponse struct {
	Status             int
	Body               []byte
	UpstreamHeaders    http.Header
	RequestID          string
	RequestDecisionID  string
	ResponseDecisionID string
}

// ProxyService runs the end-to-end governed proxy flow: authenticate,
// decide on the request, forward, decide on the response, return.
type ProxyService struct {
	credentials *credential.Resolver
	engine      *decision.Engine
	upstream    *upstream.Client
	logger      *slog.Logger
}

// NewProxyService creates the proxy orchestrator.
func NewProxyService(credentials *credential.Resolver, engine *decision.Engine, client *upstream.Client, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		credentials: credentials,
		engine:      engine,
		upstream:    client,
		logger:      logger,
	}
}

// Handle executes the proxy flow for one inbound request. It never
// returns an error: every outcome is a 200 with a JSON body.
func (s *ProxyService) Handle(ctx context.Context, req *ProxyRequest) *ProxyResponse {
	if req.RequestID == "" {
		req.RequestID = decision.NewRequestID()
	}
	out := &ProxyResponse{Status: http.StatusOK, RequestID: req.RequestID}

	agent, err := s.credentials.Resolve(ctx, req.Authorization)
	if err != nil {
		if !errors.Is(err, credential.ErrInvalidCredential) {
			s.logger.Error("credential resolution failed", "request_id", req.RequestID, "error", err)
		}
		out.Body = mcp.NewErrorResponse(nil, mcp.CodeGovernanceBlocked,
			"Invalid or missing credential", map[string]any{"reason": "invalid_credential"})
		return out
	}

	msg, parseErr := s.requestMessage(req)
	if parseErr != nil {
		out.Body = mcp.NewErrorResponse(nil, mcp.CodeParseError,
			"Invalid JSON in request body", map[string]any{"error": parseErr.Error()})
		return out
	}

	reqDecision := s.engine.Evaluate(ctx, &decision.Request{
		Direction: mcp.DirectionRequest,
		Message:   msg,
		Agent:     agent,
		RequestID: req.RequestID,
		SessionID: req.SessionID,
	})
	out.RequestDecisionID = reqDecision.DecisionID

	if !reqDecision.Allow {
		out.Body = blockedEnvelope(msg, reqDecision, "request")
		return out
	}

	body := req.Body
	if reqDecision.Action == decision.ActionModify && reqDecision.Modified != nil && len(body) > 0 {
		body = reqDecision.Modified.Raw
	}

	result := s.upstream.Forward(ctx, &upstream.Call{
		Method:    req.Method,
		Path:      req.Path,
		Query:     req.Query,
		Body:      body,
		Headers:   req.Headers,
		RequestID: req.RequestID,
		ClientIP:  req.ClientIP,
		UserAgent: req.UserAgent,
		Agent:     agent,
	})
	if result.Failed() {
		out.Body = mcp.NewErrorResponse(msg.RawID(), mcp.CodeUpstreamError,
			result.ErrorMessage, map[string]any{"status": result.Status})
		return out
	}
	out.UpstreamHeaders = result.Headers

	respMsg, err := mcp.Decode(result.Body, mcp.DirectionResponse)
	if err != nil {
		// Valid JSON but not an object; governance cannot inspect it.
		out.Body = mcp.NewErrorResponse(msg.RawID(), mcp.CodeUpstreamError,
			"upstream returned non-object JSON", map[string]any{"status": result.Status})
		return out
	}

	respDecision := s.engine.Evaluate(ctx, &decision.Request{
		Direction: mcp.DirectionResponse,
		Message:   respMsg,
		Agent:     agent,
		RequestID: req.RequestID,
		SessionID: req.SessionID,
		Metadata:  map[string]any{"request_decision_id": reqDecision.DecisionID},
	})
	out.ResponseDecisionID = respDecision.DecisionID

	if !respDecision.Allow {
		out.Body = blockedEnvelope(respMsg, respDecision, "response")
		return out
	}
	if respDecision.Action == decision.ActionModify && respDecision.Modified != nil {
		out.Body = respDecision.Modified.Raw
		return out
	}
	out.Body = result.Body
	return out
}

// requestMessage parses the inbound body, or synthesises a message for
// bodiless requests so guardrails still see method and path.
func (s *ProxyService) requestMessage(req *ProxyRequest) (*mcp.Message, error) {
	if !bodyBearing(req.Method, req.Body) {
		return mcp.Synthetic(req.Method, req.Path, mcp.DirectionRequest), nil
	}
	if !json.Valid(req.Body) {
		return nil, errors.New("request body is not valid JSON")
	}
	msg, err := mcp.Decode(req.Body, mcp.DirectionRequest)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func bodyBearing(method string, body []byte) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	case http.MethodDelete:
		return len(body) > 0
	default:
		return len(body) > 0
	}
}

func blockedEnvelope(msg *mcp.Message, d *decision.Response, stage string) []byte {
	detail := "Policy violation"
	if len(d.Reasons) > 0 {
		detail = strings.Join(d.Reasons, "; ")
	}
	prefix := "Request"
	if stage == "response" {
		prefix = "Response"
	}
	message := prefix + " blocked by governance policy: " + detail
	data := map[string]any{
		"decision_id":          d.DecisionID,
		"action":               string(d.Action),
		"stage":                stage,
		"guardrails_triggered": d.TriggeredGuardrails(),
	}
	// The blocking guardrail is the last evaluated; surface its details
	// (rate limits carry retry_after_seconds here).
	if len(d.Events) > 0 {
		if last := d.Events[len(d.Events)-1]; last.Triggered && len(last.Details) > 0 {
			data["details"] = last.Details
		}
	}
	return mcp.NewErrorResponse(msg.RawID(), mcp.CodeGovernanceBlocked, message, data)
}
