// Package console is an interactive terminal chat against the backend,
// useful for exercising it without a WhatsApp session.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tribu-ia/don-confiado/internal/chatapi"
)

// Backend is the chat call the console depends on.
type Backend interface {
	Chat(ctx context.Context, req *chatapi.ChatRequest) (*chatapi.ChatResponse, error)
}

// Console reads lines, forwards them to the backend and prints replies.
type Console struct {
	backend Backend
	userID  string
	in      io.Reader
	out     io.Writer
}

// New creates a console bound to the given streams.
func New(backend Backend, userID string, in io.Reader, out io.Writer) *Console {
	return &Console{
		backend: backend,
		userID:  userID,
		in:      in,
		out:     out,
	}
}

// Run loops until EOF or an exit keyword.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, "Don Confiado — consola de chat. Escribe 'salir' para terminar.")

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isExit(line) {
			fmt.Fprintln(c.out, "¡Hasta pronto!")
			return nil
		}

		resp, err := c.backend.Chat(ctx, &chatapi.ChatRequest{
			Message: line,
			UserID:  c.userID,
		})
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			continue
		}

		reply := resp.Text()
		if reply == "" {
			reply = "(sin respuesta)"
		}
		fmt.Fprintln(c.out, reply)
	}
	return scanner.Err()
}

func isExit(line string) bool {
	switch strings.ToLower(line) {
	case "salir", "exit", "quit":
		return true
	}
	return false
}
