package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/kianbahrami/labassist/internal/pipeline"
)

type scriptedPipeline struct {
	events    []pipeline.Event
	questions []string
}

func (s *scriptedPipeline) Run(ctx context.Context, question string, em pipeline.Emitter) error {
	s.questions = append(s.questions, question)
	for _, e := range s.events {
		if err := em.Emit(e); err != nil {
			return err
		}
	}
	return nil
}

func newChatServer(p ChatPipeline) *echo.Echo {
	e := echo.New()
	h := &ChatHandler{Pipeline: p, Logger: log.New(io.Discard, "", 0)}
	h.Register(e)
	return e
}

func postChat(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStreamRejectsEmptyQuestion(t *testing.T) {
	e := newChatServer(&scriptedPipeline{})

	for _, body := range []string{`{"question": ""}`, `{"question": "   "}`, `{}`} {
		rec := postChat(e, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestStreamRejectsMalformedBody(t *testing.T) {
	e := newChatServer(&scriptedPipeline{})

	rec := postChat(e, `{"question": `)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStreamWritesEventFrames(t *testing.T) {
	p := &scriptedPipeline{events: []pipeline.Event{
		{Type: pipeline.EventStatus, Content: "Understanding your question..."},
		{Type: pipeline.EventToken, Content: "Sodium is low."},
		{Type: pipeline.EventDone},
	}}
	e := newChatServer(p)

	rec := postChat(e, `{"question": "Explain sodium for patient 10014354"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if len(p.questions) != 1 || p.questions[0] != "Explain sodium for patient 10014354" {
		t.Errorf("pipeline got questions %v", p.questions)
	}

	body := rec.Body.String()
	frames := []string{
		`data: {"type":"status","content":"Understanding your question..."}`,
		`data: {"type":"token","content":"Sodium is low."}`,
		`data: {"type":"done"}`,
	}
	for _, f := range frames {
		if !strings.Contains(body, f+"\n\n") {
			t.Errorf("missing frame %q in body:\n%s", f, body)
		}
	}
	if !strings.HasSuffix(strings.TrimRight(body, "\n"), `data: {"type":"done"}`) {
		t.Errorf("done must be the final frame:\n%s", body)
	}
}
