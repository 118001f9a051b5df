package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"freeda-support/src/contracts"
	"freeda-support/src/orchestrator"
	"freeda-support/src/ticket"
)

type createTicketRequest struct {
	InitialMessage string `json:"initial_message"`
	CustomerName   string `json:"customer_name"`
	Channel        string `json:"channel"`
}

type createTicketResponse struct {
	TicketID              string              `json:"ticket_id"`
	Message               string              `json:"message"`
	TrackingURL           string              `json:"tracking_url"`
	EstimatedResponseTime string              `json:"estimated_response_time"`
	Analytics             contracts.Analytics `json:"analytics"`
	AssistantMessage      *contracts.Message  `json:"assistant_message,omitempty"`
}

type addMessageRequest struct {
	Message    string `json:"message"`
	AuthorName string `json:"author_name"`
}

type addMessageResponse struct {
	Message          string             `json:"message"`
	MessageID        string             `json:"message_id"`
	Timestamp        time.Time          `json:"timestamp"`
	AssistantMessage *contracts.Message `json:"assistant_message,omitempty"`
}

type statusRequest struct {
	Status contracts.Status `json:"status"`
}

type statusResponse struct {
	Message  string           `json:"message"`
	Status   contracts.Status `json:"status"`
	ClosedAt *time.Time       `json:"closed_at,omitempty"`
}

type statusView struct {
	TicketID     string            `json:"ticket_id"`
	Status       contracts.Status  `json:"status"`
	StatusInfo   ticket.StatusInfo `json:"status_info"`
	LastUpdate   time.Time         `json:"last_update"`
	MessageCount int               `json:"message_count"`
}

// publicMessage leaves out internal enrichment such as sentiment.
type publicMessage struct {
	ID        string                `json:"message_id"`
	Content   string                `json:"content"`
	Author    string                `json:"author"`
	Timestamp time.Time             `json:"timestamp"`
	Type      contracts.MessageType `json:"type"`
}

type publicTicket struct {
	TicketID     string           `json:"ticket_id"`
	Status       contracts.Status `json:"status"`
	StatusLabel  string           `json:"status_label"`
	CreatedAt    time.Time        `json:"created_at"`
	CustomerName string           `json:"customer_name"`
	Messages     []publicMessage  `json:"messages"`
	LastUpdate   time.Time        `json:"last_update"`
}

func trackingURL(id string) string {
	return "/public/tickets/" + id
}

func (s *Server) createTicket(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errBadRequest)
		return
	}

	res, err := s.orch.CreateTicket(c.Request.Context(), orchestrator.CreateRequest{
		InitialMessage: req.InitialMessage,
		CustomerName:   req.CustomerName,
		Channel:        req.Channel,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, createTicketResponse{
		TicketID:              res.Ticket.ID,
		Message:               "Ticket créé",
		TrackingURL:           trackingURL(res.Ticket.ID),
		EstimatedResponseTime: orchestrator.EstimatedResponseTime,
		Analytics:             res.Analytics,
		AssistantMessage:      res.AssistantMessage,
	})
}

func (s *Server) getTicket(c *gin.Context) {
	t, ok := s.loadTicket(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, publicTicket{
		TicketID:     t.ID,
		Status:       t.Status,
		StatusLabel:  ticket.Label(t.Status),
		CreatedAt:    t.CreatedAt,
		CustomerName: t.CustomerName,
		Messages: lo.Map(t.Messages, func(m contracts.Message, _ int) publicMessage {
			return publicMessage{ID: m.ID, Content: m.Content, Author: m.Author, Timestamp: m.Timestamp, Type: m.Type}
		}),
		LastUpdate: t.UpdatedAt,
	})
}

func (s *Server) addMessage(c *gin.Context) {
	id := c.Param("id")
	if !ticket.ValidID(id) {
		s.fail(c, ticket.ErrNotFound)
		return
	}
	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errBadRequest)
		return
	}

	res, err := s.orch.AddMessage(c.Request.Context(), id, req.Message, req.AuthorName)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, addMessageResponse{
		Message:          "Message ajouté",
		MessageID:        res.Message.ID,
		Timestamp:        res.Message.Timestamp,
		AssistantMessage: res.AssistantMessage,
	})
}

func (s *Server) getStatus(c *gin.Context) {
	t, ok := s.loadTicket(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, statusView{
		TicketID:     t.ID,
		Status:       t.Status,
		StatusInfo:   ticket.Info(t.Status),
		LastUpdate:   t.UpdatedAt,
		MessageCount: len(t.Messages),
	})
}

func (s *Server) updateStatus(c *gin.Context) {
	id := c.Param("id")
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errBadRequest)
		return
	}
	// The transition is checked before the ticket is looked up, so a
	// forbidden status is reported even for unknown tickets.
	if err := ticket.ValidateTransition(req.Status); err != nil {
		s.fail(c, err)
		return
	}
	if !ticket.ValidID(id) {
		s.fail(c, ticket.ErrNotFound)
		return
	}

	res, err := s.orch.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	if res.AlreadyClosed {
		c.JSON(http.StatusOK, statusResponse{Message: "Déjà fermé", Status: res.Status})
		return
	}
	c.JSON(http.StatusOK, statusResponse{Message: "Ticket fermé", Status: res.Status, ClosedAt: res.ClosedAt})
}

// loadTicket fetches the :id ticket, writing the error response itself when
// it cannot.
func (s *Server) loadTicket(c *gin.Context) (*contracts.Ticket, bool) {
	id := c.Param("id")
	if !ticket.ValidID(id) {
		s.fail(c, ticket.ErrNotFound)
		return nil, false
	}
	t, err := s.orch.GetTicket(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return t, true
}
