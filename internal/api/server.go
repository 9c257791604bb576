package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	ws "classboard/internal/websocket"
	"classboard/pkg/interfaces"
)

// Options configures the HTTP server.
type Options struct {
	Address        string
	DisableReqLogs bool
}

// Server exposes the REST API and the websocket endpoints over one echo
// instance.
type Server struct {
	opts        Options
	app         *echo.Echo
	store       interfaces.MessageStore
	roster      interfaces.RosterManager
	broadcaster Broadcaster
	wsHandler   *ws.Handler
}

// NewServer wires routes onto a fresh echo instance.
func NewServer(opts Options, store interfaces.MessageStore, roster interfaces.RosterManager, broadcaster Broadcaster, wsHandler *ws.Handler) *Server {
	s := &Server{
		opts:        opts,
		app:         echo.New(),
		store:       store,
		roster:      roster,
		broadcaster: broadcaster,
		wsHandler:   wsHandler,
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	s.app.Use(middleware.Recover())

	s.app.GET("/health", s.health)

	v1 := s.app.Group("/api/v1")

	// Websocket handshakes carry identity in the query string, not the
	// header, so they sit outside the identity middleware.
	v1.GET("/qa/ws/:class_id", s.serveQAWebSocket)
	v1.GET("/chat/ws/:user_id", s.serveChatWebSocket)

	authed := v1.Group("", identityMiddleware(s.store))
	authed.GET("/users/me", s.getCurrentUser)
	authed.GET("/qa/:class_id", s.getQuestions)
	authed.POST("/qa", s.createQuestion)
	authed.POST("/qa/answer", s.createAnswer)
	authed.GET("/chat/conversations", s.getConversations)
	authed.GET("/chat/:user_id/messages", s.getMessages)
}

// Start blocks serving HTTP until the listener fails or Stop is called.
func (s *Server) Start() error {
	err := s.app.Start(s.opts.Address)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

// ServeHTTP lets tests drive the server through httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}
