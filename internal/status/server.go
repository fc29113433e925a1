// Package status exposes a small HTTP surface for operators: connection
// phase and the pending pairing QR.
package status

import (
	"encoding/base64"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/tribu-ia/don-confiado/internal/lifecycle"
)

// Source is the read-only view of the session manager the server reports.
type Source interface {
	Phase() lifecycle.Phase
	QRAttempts() int
	LatestQR() string
}

// Server reports session state over HTTP.
type Server struct {
	engine    *gin.Engine
	source    Source
	logger    *log.Logger
	startTime time.Time
}

// NewServer wires the status routes over the given source.
func NewServer(source Source, logger *log.Logger) *Server {
	router := gin.Default()

	s := &Server{
		engine:    router,
		source:    source,
		logger:    logger,
		startTime: time.Now(),
	}

	router.GET("/health", s.handleHealth)
	router.GET("/qr", s.handleQR)

	return s
}

// Run blocks serving HTTP on the given address.
func (s *Server) Run(addr string) error {
	s.logger.Printf("Status server listening on %s", addr)
	return s.engine.Run(addr)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"phase":       s.source.Phase().String(),
		"qr_attempts": s.source.QRAttempts(),
		"uptime":      time.Since(s.startTime).String(),
	})
}

func (s *Server) handleQR(c *gin.Context) {
	code := s.source.LatestQR()
	if code == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no QR code pending"})
		return
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		s.logger.Printf("Failed to generate QR code: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate QR code"})
		return
	}
	png, err := qr.PNG(256)
	if err != nil {
		s.logger.Printf("Failed to render QR PNG: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render QR code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"qrcode":  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		"attempt": s.source.QRAttempts(),
	})
}
