package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kianbahrami/labassist/internal/pipeline"
)

var chatTracer = otel.Tracer("labassist/server/chat")

// ChatPipeline answers one question as an ordered event stream.
type ChatPipeline interface {
	Run(ctx context.Context, question string, em pipeline.Emitter) error
}

// ChatHandler serves the streaming chat endpoint.
type ChatHandler struct {
	Pipeline ChatPipeline
	Logger   *log.Logger
}

func (h *ChatHandler) Register(e *echo.Echo) {
	e.POST("/api/chat/stream", h.stream)
}

type chatRequest struct {
	Question string `json:"question"`
}

// sseEmitter writes pipeline events as server-sent event frames, flushing
// after each so clients see progress during multi-second waits.
type sseEmitter struct {
	resp    *echo.Response
	flusher http.Flusher
}

func (e *sseEmitter) Emit(ev pipeline.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.resp, "data: %s\n\n", payload); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// stream answers one question over SSE. Malformed or empty questions are
// rejected before the pipeline runs; once streaming starts every outcome
// terminates with a done event.
func (h *ChatHandler) stream(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	httpReq := c.Request()
	ctx, span := chatTracer.Start(httpReq.Context(), "ChatHandler.stream")
	defer span.End()
	requestID := uuid.NewString()
	span.SetAttributes(attribute.String("request_id", requestID))

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	start := time.Now()
	em := &sseEmitter{resp: resp, flusher: flusher}
	if err := h.Pipeline.Run(ctx, question, em); err != nil {
		// Emitter failures mean the client went away; nothing to send back.
		h.Logger.Printf("[%s] chat stream ended early: %v", requestID, err)
	}
	chatLatency.Observe(time.Since(start).Seconds())
	return nil
}
