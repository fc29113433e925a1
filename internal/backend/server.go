package backend

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tribu-ia/don-confiado/internal/chatapi"
)

// Chatter answers one chat request. Satisfied by *Service.
type Chatter interface {
	Chat(ctx context.Context, req *chatapi.ChatRequest) (*ChatResult, error)
}

// Server is the HTTP surface of the chat backend.
type Server struct {
	engine  *gin.Engine
	chatter Chatter
	logger  *log.Logger
}

// NewServer wires the routes over the given chat service.
func NewServer(chatter Chatter, corsConfig cors.Config, logger *log.Logger) *Server {
	router := gin.Default()
	router.Use(cors.New(corsConfig))

	s := &Server{
		engine:  router,
		chatter: chatter,
		logger:  logger,
	}

	router.GET("/health", s.handleHealth)
	router.GET("/", s.handleRoot)
	router.POST("/api/chat", s.handleChat)

	return s
}

// Run blocks serving HTTP on the given address.
func (s *Server) Run(addr string) error {
	s.logger.Printf("Chat backend listening on %s", addr)
	return s.engine.Run(addr)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
		"service":   "don-confiado-backend",
	})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Don Confiado API",
		"status":  "running",
		"endpoints": gin.H{
			"health": "GET /health",
			"chat":   "POST /api/chat",
		},
	})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatapi.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Message == "" && req.FileBase64 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message or file_base64 is required"})
		return
	}

	result, err := s.chatter.Chat(c.Request.Context(), &req)
	if err != nil {
		s.logger.Printf("Chat failed for user %s: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate reply"})
		return
	}

	resp := chatapi.ChatResponse{Reply: result.Reply}
	if result.Intention != IntentionNone {
		resp.UserIntention = string(result.Intention)
	}
	c.JSON(http.StatusOK, resp)
}
