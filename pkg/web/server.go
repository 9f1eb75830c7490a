// Package web serves the interview console dashboard: REST endpoints
// for session control and state, plus websocket feeds for the event
// log, status changes, and the two audio visualizations.
package web

import (
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/marcussrh/interview-console/pkg/hub"
	"github.com/marcussrh/interview-console/pkg/interview"
	"github.com/marcussrh/interview-console/pkg/visualizer"
)

// Server is the dashboard HTTP server. One server fronts exactly one
// interview session.
type Server struct {
	app     *fiber.App
	addr    string
	logger  *slog.Logger
	session *interview.Session

	statusHub    *hub.Hub
	eventHub     *hub.Hub
	clientVizHub *hub.Hub
	serverVizHub *hub.Hub

	mu      sync.RWMutex
	handoff *interview.Handoff
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Default ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithStaticDir serves dashboard assets from dir at the root path.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.app.Static("/", dir) }
}

// NewServer builds the dashboard around a session. It registers
// itself as the session's state and handoff observer, so the caller
// must not install its own.
func NewServer(session *interview.Session, opts ...Option) *Server {
	s := &Server{
		addr:         ":8080",
		logger:       slog.Default(),
		session:      session,
		statusHub:    hub.New("status", slog.Default()),
		eventHub:     hub.New("events", slog.Default()),
		clientVizHub: hub.New("viz-client", slog.Default()),
		serverVizHub: hub.New("viz-server", slog.Default()),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Interview Console",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	s.app = app

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Get("/conversation", s.handleConversation)
	api.Get("/memory", s.handleMemory)
	api.Get("/report", s.handleReport)
	api.Post("/session/connect", s.handleConnect)
	api.Post("/session/disconnect", s.handleDisconnect)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.serveStatusFeed))
	app.Get("/ws/events", websocket.New(s.serveFeed(s.eventHub)))
	app.Get("/ws/viz/client", websocket.New(s.serveFeed(s.clientVizHub)))
	app.Get("/ws/viz/server", websocket.New(s.serveFeed(s.serverVizHub)))

	session.OnStateChange(func(state interview.State) {
		if err := s.statusHub.BroadcastJSON(s.statusPayload()); err != nil {
			s.logger.Warn("status broadcast failed", "error", err)
		}
	})
	session.OnHandoff(func(h interview.Handoff) {
		s.mu.Lock()
		s.handoff = &h
		s.mu.Unlock()
	})
	session.Events().Notify(func(e interview.Entry) {
		if err := s.eventHub.BroadcastJSON(e); err != nil {
			s.logger.Warn("event broadcast failed", "error", err)
		}
	})

	return s
}

// PublishFrame routes a visualization frame to the feed matching its
// direction. Intended as the render loop's publish function.
func (s *Server) PublishFrame(f visualizer.Frame) {
	h := s.clientVizHub
	if f.Direction == visualizer.DirectionServer {
		h = s.serverVizHub
	}
	if err := h.BroadcastJSON(f); err != nil {
		s.logger.Warn("frame broadcast failed", "error", err)
	}
}

// Start runs the hubs and blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	go s.statusHub.Run()
	go s.eventHub.Run()
	go s.clientVizHub.Run()
	go s.serverVizHub.Run()

	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops the HTTP server and the broadcast hubs.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.statusHub.Stop()
	s.eventHub.Stop()
	s.clientVizHub.Stop()
	s.serverVizHub.Stop()
	return err
}
