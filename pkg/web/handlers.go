package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/marcussrh/interview-console/pkg/hub"
	"github.com/marcussrh/interview-console/pkg/interview"
)

// statusPayload is the status document sent to both the REST
// endpoint and the status feed.
type statusPayload struct {
	InterviewID string          `json:"interview_id"`
	State       interview.State `json:"state"`
	Items       int             `json:"items"`
	Events      int             `json:"events"`
}

// conversationEntry is one displayed turn of dialog.
type conversationEntry struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	Transcript string `json:"transcript"`
}

func (s *Server) statusPayload() statusPayload {
	return statusPayload{
		InterviewID: s.session.InterviewID(),
		State:       s.session.State(),
		Items:       len(s.session.Items()),
		Events:      s.session.Events().Len(),
	}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.statusPayload())
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	return c.JSON(s.session.Events().Entries())
}

func (s *Server) handleConversation(c *fiber.Ctx) error {
	items := s.session.Items()
	out := make([]conversationEntry, 0, len(items))
	for _, item := range items {
		out = append(out, conversationEntry{
			ID:         item.ID,
			Role:       item.Role,
			Status:     string(item.Status),
			Transcript: item.Formatted.Transcript,
		})
	}
	return c.JSON(out)
}

func (s *Server) handleMemory(c *fiber.Ctx) error {
	return c.JSON(s.session.Memory().Snapshot())
}

// handleReport returns the closing handoff, 404 until the session
// has ended.
func (s *Server) handleReport(c *fiber.Ctx) error {
	s.mu.RLock()
	h := s.handoff
	s.mu.RUnlock()
	if h == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no finished interview",
		})
	}
	return c.JSON(h)
}

func (s *Server) handleConnect(c *fiber.Ctx) error {
	if err := s.session.Connect(c.UserContext()); err != nil {
		status := fiber.StatusBadGateway
		if errors.Is(err, interview.ErrSessionActive) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.statusPayload())
}

func (s *Server) handleDisconnect(c *fiber.Ctx) error {
	if err := s.session.Disconnect(c.UserContext()); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, interview.ErrNotLive) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.statusPayload())
}

// serveFeed attaches a websocket connection to a broadcast hub and
// blocks until the peer goes away.
func (s *Server) serveFeed(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		hub.NewClient(h, conn).Run()
	}
}

// serveStatusFeed sends the current status immediately, then streams
// updates.
func (s *Server) serveStatusFeed(conn *websocket.Conn) {
	if err := conn.WriteJSON(s.statusPayload()); err != nil {
		return
	}
	hub.NewClient(s.statusHub, conn).Run()
}
