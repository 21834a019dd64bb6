package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"bidsmith/internal/domain"
	"bidsmith/internal/usecase"
)

const (
	headerCorrelationID  = "X-Correlation-Id"
	headerCriticFeedback = "X-Critic-Feedback"
	headerDraftPath      = "X-Draft-Path"
	maxBodyBytes         = 6 << 20
)

type Analyzer interface {
	Analyze(ctx context.Context, caller domain.Caller, in usecase.AnalyzeInput) (domain.SolicitationIntelligence, error)
}

type Chatter interface {
	Chat(ctx context.Context, caller domain.Caller, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type Proposer interface {
	Propose(ctx context.Context, caller domain.Caller, in usecase.ProposalInput) (usecase.ProposalOutput, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, caller domain.Caller) (usecase.BalanceOutput, error)
}

type Resolver interface {
	Resolve(ctx context.Context, headers map[string]string) (domain.Caller, error)
}

// Services groups the use cases served over the function URL.
type Services struct {
	Analyze  Analyzer
	Chat     Chatter
	Proposal Proposer
	Balance  BalanceReader
}

type Handler struct {
	svc    Services
	auth   Resolver
	logger *slog.Logger
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type chatRequest struct {
	Messages    []domain.ChatMessage `json:"messages"`
	AnalysisID  string               `json:"analysisId"`
	Constraints string               `json:"constraints"`
}

type proposalRequest struct {
	AnalysisID string `json:"analysisId"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func NewHandler(svc Services, auth Resolver, logger *slog.Logger) (*Handler, error) {
	if svc.Analyze == nil || svc.Chat == nil || svc.Proposal == nil || svc.Balance == nil {
		return nil, errors.New("handler: all services are required")
	}
	if auth == nil {
		return nil, errors.New("handler: caller resolver must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, auth: auth, logger: logger}, nil
}

// Handle serves one Lambda function URL invocation in streaming mode.
func (h *Handler) Handle(ctx context.Context, req events.LambdaFunctionURLRequest) (*events.LambdaFunctionURLStreamingResponse, error) {
	correlationID := strings.TrimSpace(header(req.Headers, "x-correlation-id"))
	if correlationID == "" {
		correlationID = req.RequestContext.RequestID
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID)

	method := strings.ToUpper(req.RequestContext.HTTP.Method)
	path := strings.TrimRight(req.RawPath, "/")
	logger.Info("request", "method", method, "path", path)

	var resp *events.LambdaFunctionURLStreamingResponse
	switch {
	case method == http.MethodPost && path == "/analyze":
		resp = h.analyze(ctx, logger, req)
	case method == http.MethodPost && path == "/chat":
		resp = h.chat(ctx, logger, req)
	case method == http.MethodPost && path == "/proposal":
		resp = h.proposal(ctx, logger, req)
	case method == http.MethodGet && path == "/balance":
		resp = h.balance(ctx, logger, req)
	default:
		resp = errorJSON(logger, &usecase.Error{Code: usecase.ErrorNotFound, Reason: "route_not_found"})
	}
	resp.Headers[headerCorrelationID] = correlationID
	return resp, nil
}

func (h *Handler) analyze(ctx context.Context, logger *slog.Logger, req events.LambdaFunctionURLRequest) *events.LambdaFunctionURLStreamingResponse {
	caller, err := h.auth.Resolve(ctx, req.Headers)
	if err != nil {
		return errorJSON(logger, err)
	}
	var body analyzeRequest
	if err := decodeBody(req, &body); err != nil {
		return errorJSON(logger, err)
	}
	out, err := h.svc.Analyze.Analyze(ctx, caller, usecase.AnalyzeInput{Text: body.Text})
	if err != nil {
		return errorJSON(logger, err)
	}
	return jsonResponse(http.StatusOK, out)
}

func (h *Handler) chat(ctx context.Context, logger *slog.Logger, req events.LambdaFunctionURLRequest) *events.LambdaFunctionURLStreamingResponse {
	caller, err := h.auth.Resolve(ctx, req.Headers)
	if err != nil {
		return errorJSON(logger, err)
	}
	var body chatRequest
	if err := decodeBody(req, &body); err != nil {
		return errorJSON(logger, err)
	}
	out, err := h.svc.Chat.Chat(ctx, caller, usecase.ChatInput{
		Messages:    body.Messages,
		AnalysisID:  body.AnalysisID,
		Constraints: body.Constraints,
	})
	if err != nil {
		return errorJSON(logger, err)
	}
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":       "text/plain; charset=utf-8",
			"Cache-Control":      "no-cache",
			headerCriticFeedback: url.PathEscape(out.Feedback),
			headerDraftPath:      string(out.Path),
		},
		Body: &streamBody{stream: out.Stream, logger: logger},
	}
}

func (h *Handler) proposal(ctx context.Context, logger *slog.Logger, req events.LambdaFunctionURLRequest) *events.LambdaFunctionURLStreamingResponse {
	caller, err := h.auth.Resolve(ctx, req.Headers)
	if err != nil {
		return errorJSON(logger, err)
	}
	var body proposalRequest
	if err := decodeBody(req, &body); err != nil {
		return errorJSON(logger, err)
	}
	out, err := h.svc.Proposal.Propose(ctx, caller, usecase.ProposalInput{AnalysisID: body.AnalysisID})
	if err != nil {
		return errorJSON(logger, err)
	}
	resp := jsonResponse(http.StatusOK, out)
	resp.Headers[headerCriticFeedback] = url.PathEscape(out.Feedback)
	return resp
}

func (h *Handler) balance(ctx context.Context, logger *slog.Logger, req events.LambdaFunctionURLRequest) *events.LambdaFunctionURLStreamingResponse {
	caller, err := h.auth.Resolve(ctx, req.Headers)
	if err != nil {
		return errorJSON(logger, err)
	}
	out, err := h.svc.Balance.Balance(ctx, caller)
	if err != nil {
		return errorJSON(logger, err)
	}
	return jsonResponse(http.StatusOK, out)
}

func decodeBody(req events.LambdaFunctionURLRequest, dst any) error {
	raw := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body_encoding", Err: err}
		}
		raw = decoded
	}
	if len(raw) > maxBodyBytes {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "body_too_large"}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err}
	}
	if dec.More() {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json"}
	}
	return nil
}

func jsonResponse(status int, v any) *events.LambdaFunctionURLStreamingResponse {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"INTERNAL_ERROR","reason":"encode_error"}`)
	}
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       bytes.NewReader(b),
	}
}

func errorJSON(logger *slog.Logger, err error) *events.LambdaFunctionURLStreamingResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		ucErr = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected_error", Err: err}
	}
	status := ucErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	} else {
		logger.Info("request rejected", "code", ucErr.Code, "reason", ucErr.Reason)
	}
	return jsonResponse(status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason})
}

// streamBody adapts a committed answer stream to the response body. A stream
// error after headers are sent ends the body early.
type streamBody struct {
	stream  domain.TextStream
	logger  *slog.Logger
	pending []byte
	err     error
	closed  bool
}

func (b *streamBody) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		chunk, err := b.stream.Recv()
		b.pending = append(b.pending, chunk...)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.logger.Warn("answer stream interrupted", "err", err)
			}
			b.err = err
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *streamBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.stream.Close()
}

var _ io.ReadCloser = (*streamBody)(nil)
