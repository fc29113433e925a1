package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tribu-ia/don-confiado/internal/chatapi"
)

type fakeBackend struct {
	resp  *chatapi.ChatResponse
	err   error
	calls []*chatapi.ChatRequest
}

func (b *fakeBackend) Chat(ctx context.Context, req *chatapi.ChatRequest) (*chatapi.ChatResponse, error) {
	b.calls = append(b.calls, req)
	if b.err != nil {
		return nil, b.err
	}
	return b.resp, nil
}

func TestRun_ForwardsLinesAndPrintsReply(t *testing.T) {
	backend := &fakeBackend{resp: &chatapi.ChatResponse{Reply: "hola, soy don confiado"}}
	var out bytes.Buffer

	c := New(backend, "console", strings.NewReader("hola\nsalir\n"), &out)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(backend.calls) != 1 {
		t.Fatalf("backend called %d times, want 1", len(backend.calls))
	}
	if backend.calls[0].Message != "hola" || backend.calls[0].UserID != "console" {
		t.Errorf("request = %+v", backend.calls[0])
	}
	if !strings.Contains(out.String(), "hola, soy don confiado") {
		t.Errorf("output missing reply: %s", out.String())
	}
}

func TestRun_ExitKeywordStopsWithoutBackendCall(t *testing.T) {
	backend := &fakeBackend{resp: &chatapi.ChatResponse{Reply: "never"}}
	var out bytes.Buffer

	c := New(backend, "console", strings.NewReader("exit\n"), &out)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(backend.calls) != 0 {
		t.Errorf("backend called %d times for exit keyword", len(backend.calls))
	}
}

func TestRun_EOFStops(t *testing.T) {
	backend := &fakeBackend{resp: &chatapi.ChatResponse{Reply: "x"}}
	var out bytes.Buffer

	c := New(backend, "console", strings.NewReader(""), &out)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_BackendErrorPrintedAndLoopContinues(t *testing.T) {
	backend := &fakeBackend{err: errors.New("backend down")}
	var out bytes.Buffer

	c := New(backend, "console", strings.NewReader("hola\nsalir\n"), &out)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "error: backend down") {
		t.Errorf("output missing error: %s", out.String())
	}
	if !strings.Contains(out.String(), "¡Hasta pronto!") {
		t.Error("loop did not reach the exit keyword after a backend error")
	}
}

func TestRun_BlankLinesSkipped(t *testing.T) {
	backend := &fakeBackend{resp: &chatapi.ChatResponse{Reply: "x"}}
	var out bytes.Buffer

	c := New(backend, "console", strings.NewReader("\n   \nsalir\n"), &out)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(backend.calls) != 0 {
		t.Errorf("backend called %d times for blank input", len(backend.calls))
	}
}
