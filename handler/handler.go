package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"wellness-agent/internal/domain"
	"wellness-agent/internal/logging"
	"wellness-agent/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	errorInternal       = "INTERNAL_ERROR"
	defaultDrainTimeout = 2 * time.Second
)

type ChatUseCase interface {
	Send(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type VoiceUseCase interface {
	Authorize(ctx context.Context, id domain.Identity) (usecase.VoiceSessionGrant, error)
}

type SpeechUseCase interface {
	Synthesize(ctx context.Context, id domain.Identity, text string) ([]byte, error)
}

type CrisisUseCase interface {
	Resolve(ctx context.Context, resolver domain.Identity, id string) (domain.CrisisEvent, error)
}

// Drainer flushes background persistence retries before the invocation ends.
type Drainer interface {
	Drain(ctx context.Context) error
}

type chatRequest struct {
	Content   string `json:"content"`
	SessionID string `json:"sessionId,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

type chatResponse struct {
	Reply         string `json:"reply"`
	Strategy      string `json:"strategy"`
	Level         string `json:"level"`
	ExerciseID    string `json:"exerciseId,omitempty"`
	CrisisEventID string `json:"crisisEventId,omitempty"`
	Degraded      bool   `json:"degraded"`
	RequestID     string `json:"requestId"`
}

type voiceSessionResponse struct {
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type speechRequest struct {
	Text string `json:"text"`
}

type crisisEventResponse struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Level              string    `json:"level"`
	ActionTaken        string    `json:"actionTaken"`
	Resolved           bool      `json:"resolved"`
	EmergencyContacted bool      `json:"emergencyContacted"`
	EmergencyContactID string    `json:"emergencyContactId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type errorResponse struct {
	Error             string `json:"error"`
	Reason            string `json:"reason,omitempty"`
	Message           string `json:"message"`
	Resources         string `json:"resources,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

type Handler struct {
	chat         ChatUseCase
	voice        VoiceUseCase
	speech       SpeechUseCase
	crises       CrisisUseCase
	drain        Drainer
	drainTimeout time.Duration
}

// NewHandler wires the routes. drain may be nil.
func NewHandler(chat ChatUseCase, voice VoiceUseCase, speech SpeechUseCase, crises CrisisUseCase, drain Drainer) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if voice == nil {
		return nil, errors.New("handler: voice use case must not be nil")
	}
	if speech == nil {
		return nil, errors.New("handler: speech use case must not be nil")
	}
	if crises == nil {
		return nil, errors.New("handler: crisis use case must not be nil")
	}
	return &Handler{
		chat:         chat,
		voice:        voice,
		speech:       speech,
		crises:       crises,
		drain:        drain,
		drainTimeout: defaultDrainTimeout,
	}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := logging.FromContext(ctx).With("correlation_id", correlationID, "method", req.HTTPMethod, "path", req.Path)
	ctx = logging.WithContext(ctx, logger)
	start := time.Now()

	resp := h.route(ctx, req, correlationID)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[headerCorrelationID] = correlationID

	h.flush(ctx)
	logger.Info("request completed", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func (h *Handler) route(ctx context.Context, req events.APIGatewayProxyRequest, correlationID string) events.APIGatewayProxyResponse {
	path := strings.TrimRight(req.Path, "/")
	if req.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, errorResponse{
			Error:   string(usecase.ErrorValidation),
			Reason:  "method_not_allowed",
			Message: "Only POST is supported.",
		})
	}

	id := identityFrom(req)
	switch {
	case path == "/chat":
		return h.handleChat(ctx, req, id, correlationID)
	case path == "/voice/sessions":
		return h.handleVoice(ctx, id)
	case path == "/speech":
		return h.handleSpeech(ctx, req, id)
	case strings.HasPrefix(path, "/crisis-events/") && strings.HasSuffix(path, "/resolve"):
		eventID := req.PathParameters["id"]
		if eventID == "" {
			eventID = strings.TrimSuffix(strings.TrimPrefix(path, "/crisis-events/"), "/resolve")
		}
		return h.handleResolve(ctx, id, eventID)
	}
	return jsonResponse(http.StatusNotFound, errorResponse{
		Error:   string(usecase.ErrorNotFound),
		Reason:  "route_not_found",
		Message: "Not found.",
	})
}

func (h *Handler) handleChat(ctx context.Context, req events.APIGatewayProxyRequest, id domain.Identity, correlationID string) events.APIGatewayProxyResponse {
	var body chatRequest
	if err := decodeBody(req, &body); err != nil {
		return invalidBody(ctx, err)
	}
	out, err := h.chat.Send(ctx, usecase.ChatInput{
		Identity:  id,
		Content:   body.Content,
		SessionID: body.SessionID,
		Mode:      body.Mode,
		RequestID: correlationID,
	})
	if err != nil {
		return errorToResponse(ctx, err)
	}
	return jsonResponse(http.StatusOK, chatResponse{
		Reply:         out.Reply,
		Strategy:      out.Strategy,
		Level:         out.Level.String(),
		ExerciseID:    out.ExerciseID,
		CrisisEventID: out.CrisisEventID,
		Degraded:      out.Degraded,
		RequestID:     out.RequestID,
	})
}

func (h *Handler) handleVoice(ctx context.Context, id domain.Identity) events.APIGatewayProxyResponse {
	grant, err := h.voice.Authorize(ctx, id)
	if err != nil {
		return errorToResponse(ctx, err)
	}
	return jsonResponse(http.StatusCreated, voiceSessionResponse{SessionID: grant.SessionID, ExpiresAt: grant.ExpiresAt})
}

func (h *Handler) handleSpeech(ctx context.Context, req events.APIGatewayProxyRequest, id domain.Identity) events.APIGatewayProxyResponse {
	var body speechRequest
	if err := decodeBody(req, &body); err != nil {
		return invalidBody(ctx, err)
	}
	audio, err := h.speech.Synthesize(ctx, id, body.Text)
	if err != nil {
		return errorToResponse(ctx, err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Headers:         map[string]string{"Content-Type": "audio/mpeg"},
		Body:            base64.StdEncoding.EncodeToString(audio),
		IsBase64Encoded: true,
	}
}

func (h *Handler) handleResolve(ctx context.Context, id domain.Identity, eventID string) events.APIGatewayProxyResponse {
	ev, err := h.crises.Resolve(ctx, id, eventID)
	if err != nil {
		return errorToResponse(ctx, err)
	}
	return jsonResponse(http.StatusOK, crisisEventResponse{
		ID:                 ev.ID,
		UserID:             ev.UserID,
		Level:              ev.Level.String(),
		ActionTaken:        ev.ActionTaken,
		Resolved:           ev.Resolved,
		EmergencyContacted: ev.EmergencyContacted,
		EmergencyContactID: ev.EmergencyContactID,
		CreatedAt:          ev.CreatedAt,
		UpdatedAt:          ev.UpdatedAt,
	})
}

// flush gives background audit and crisis writes a bounded chance to finish
// before Lambda freezes the sandbox.
func (h *Handler) flush(ctx context.Context) {
	if h.drain == nil {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.drainTimeout)
	defer cancel()
	if err := h.drain.Drain(dctx); err != nil {
		logging.FromContext(ctx).Error("background writes still pending at end of request", "err", err)
	}
}

func identityFrom(req events.APIGatewayProxyRequest) domain.Identity {
	auth := req.RequestContext.Authorizer
	if claims, ok := auth["claims"].(map[string]interface{}); ok {
		auth = claims
	}
	return domain.Identity{
		UserID:       authorizerString(auth, "userId"),
		Subscription: domain.ParseSubscriptionStatus(authorizerString(auth, "subscriptionStatus")),
		Role:         authorizerString(auth, "role"),
	}
}

func authorizerString(auth map[string]interface{}, key string) string {
	v, ok := auth[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	raw := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return fmt.Errorf("decode base64 body: %w", err)
		}
		raw = decoded
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	return json.Unmarshal(raw, v)
}

func invalidBody(ctx context.Context, err error) events.APIGatewayProxyResponse {
	logging.FromContext(ctx).Warn("invalid request body", "err", err)
	return jsonResponse(http.StatusBadRequest, errorResponse{
		Error:   string(usecase.ErrorValidation),
		Reason:  "invalid_json",
		Message: "The request body must be valid JSON.",
	})
}

func errorToResponse(ctx context.Context, err error) events.APIGatewayProxyResponse {
	logger := logging.FromContext(ctx)
	ue, ok := usecase.AsError(err)
	if !ok {
		logger.Error("unexpected error", "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{
			Error:   errorInternal,
			Message: "Something went wrong on our side. Please try again shortly.",
		})
	}

	body := errorResponse{
		Error:     string(ue.Code),
		Reason:    ue.Reason,
		Message:   ue.Message,
		Resources: ue.Resources,
	}
	status := statusFor(ue)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", string(ue.Code), "reason", ue.Reason, "err", ue.Err)
	} else {
		logger.Info("request rejected", "code", string(ue.Code), "reason", ue.Reason)
	}

	if ue.Code != usecase.ErrorRateLimitExceeded {
		return jsonResponse(status, body)
	}
	body.RetryAfterSeconds = retryAfterSeconds(ue.RetryAfter)
	resp := jsonResponse(status, body)
	resp.Headers["Retry-After"] = strconv.Itoa(body.RetryAfterSeconds)
	return resp
}

func statusFor(ue *usecase.Error) int {
	switch ue.Code {
	case usecase.ErrorValidation:
		return http.StatusBadRequest
	case usecase.ErrorRateLimitExceeded:
		return http.StatusTooManyRequests
	case usecase.ErrorEntitlementDenied:
		if ue.Reason == "NOT_AUTHENTICATED" {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case usecase.ErrorProviderUnavailable:
		return http.StatusServiceUnavailable
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"INTERNAL_ERROR","message":"failed to encode response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
