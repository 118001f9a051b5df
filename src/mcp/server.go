package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"freeda-support/src/contracts"
	"freeda-support/src/logger"
	"freeda-support/src/orchestrator"
	"freeda-support/src/ticket"
)

// listWindow is how many recently updated tickets list_tickets tiers.
const listWindow = 200

// Server is the MCP server for the support backend.
type Server struct {
	mcpServer *server.MCPServer
	orch      *orchestrator.Orchestrator
	log       logger.Logger
}

// NewServer creates a new MCP server backed by orch.
func NewServer(orch *orchestrator.Orchestrator, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	s := server.NewMCPServer(
		"freeda-support",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		orch:      orch,
		log:       log,
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	createTool := mcp.NewTool("create_ticket",
		mcp.WithDescription("Open a support ticket on behalf of a customer. Chat tickets get an immediate assistant reply, which is returned."),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The customer's first message"),
		),
		mcp.WithString("customer_name",
			mcp.Description("Customer display name (default: Anonyme)"),
		),
		mcp.WithString("channel",
			mcp.Description("Origin channel such as chat or email (default: chat)"),
		),
	)

	getTool := mcp.NewTool("get_ticket",
		mcp.WithDescription("Get a ticket with its analytics and a compacted transcript of the latest messages. Use after list_tickets to drill into a ticket."),
		mcp.WithString("ticket_id",
			mcp.Required(),
			mcp.Description("Ticket ID, e.g. FRE-1A2B3C4D"),
		),
	)

	addTool := mcp.NewTool("add_message",
		mcp.WithDescription("Append a customer message to an open ticket. The assistant reply is returned."),
		mcp.WithString("ticket_id",
			mcp.Required(),
			mcp.Description("Ticket ID"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("Message content"),
		),
		mcp.WithString("author_name",
			mcp.Description("Author display name (default: the ticket's customer)"),
		),
	)

	closeTool := mcp.NewTool("close_ticket",
		mcp.WithDescription("Close a ticket. Closing an already closed ticket is a no-op."),
		mcp.WithString("ticket_id",
			mcp.Required(),
			mcp.Description("Ticket ID"),
		),
	)

	takeOverTool := mcp.NewTool("take_over_ticket",
		mcp.WithDescription("Mark a new ticket as taken over by an agent (status en cours). Already in progress tickets are left as is; closed tickets are rejected."),
		mcp.WithString("ticket_id",
			mcp.Required(),
			mcp.Description("Ticket ID"),
		),
	)

	listTool := mcp.NewTool("list_tickets",
		mcp.WithDescription("List recent tickets grouped by urgency. Tier 1 (retention alerts, high urgency) is fully summarized; open and closed tickets are one-line briefs."),
		mcp.WithNumber("limit",
			mcp.Description("Max urgent tickets (default: 15); lower tiers are scaled down"),
		),
	)

	s.mcpServer.AddTool(createTool, s.handleCreateTicket)
	s.mcpServer.AddTool(getTool, s.handleGetTicket)
	s.mcpServer.AddTool(addTool, s.handleAddMessage)
	s.mcpServer.AddTool(closeTool, s.handleCloseTicket)
	s.mcpServer.AddTool(takeOverTool, s.handleTakeOver)
	s.mcpServer.AddTool(listTool, s.handleListTickets)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

type createTicketResult struct {
	TicketID         string              `json:"ticket_id"`
	Status           contracts.Status    `json:"status"`
	TrackingURL      string              `json:"tracking_url"`
	Analytics        contracts.Analytics `json:"analytics"`
	AssistantMessage *contracts.Message  `json:"assistant_message,omitempty"`
	ReplySource      string              `json:"reply_source,omitempty"`
}

type addMessageResult struct {
	TicketID         string             `json:"ticket_id"`
	MessageID        string             `json:"message_id"`
	Timestamp        time.Time          `json:"timestamp"`
	Sentiment        string             `json:"sentiment,omitempty"`
	AssistantMessage *contracts.Message `json:"assistant_message,omitempty"`
	ReplySource      string             `json:"reply_source,omitempty"`
}

type takeOverResult struct {
	TicketID    string           `json:"ticket_id"`
	Status      contracts.Status `json:"status"`
	StatusLabel string           `json:"status_label"`
}

type closeTicketResult struct {
	TicketID      string           `json:"ticket_id"`
	Status        contracts.Status `json:"status"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	AlreadyClosed bool             `json:"already_closed"`
}

func (s *Server) handleCreateTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := request.GetString("message", "")
	if message == "" {
		return mcp.NewToolResultError("message parameter is required"), nil
	}

	res, err := s.orch.CreateTicket(ctx, orchestrator.CreateRequest{
		InitialMessage: message,
		CustomerName:   request.GetString("customer_name", ""),
		Channel:        request.GetString("channel", ""),
	})
	if err != nil {
		return s.toolError("create_ticket", err), nil
	}

	return jsonResult(createTicketResult{
		TicketID:         res.Ticket.ID,
		Status:           res.Ticket.Status,
		TrackingURL:      "/public/tickets/" + res.Ticket.ID,
		Analytics:        res.Analytics,
		AssistantMessage: res.AssistantMessage,
		ReplySource:      string(res.ReplySource),
	})
}

func (s *Server) handleGetTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("ticket_id", "")
	if id == "" {
		return mcp.NewToolResultError("ticket_id parameter is required"), nil
	}

	t, err := s.orch.GetTicket(ctx, id)
	if err != nil {
		return s.toolError("get_ticket", err), nil
	}

	transcript, omitted := CompressTranscript(t.Messages, MaxTranscriptMessages)
	return jsonResult(TicketDetail{
		ID:          t.ID,
		Status:      string(t.Status),
		StatusLabel: ticket.Label(t.Status),
		Channel:     t.Channel,
		Customer:    t.CustomerName,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ClosedAt:    t.ClosedAt,
		Analytics:   t.Analytics,
		Transcript:  transcript,
		Omitted:     omitted,
	})
}

func (s *Server) handleAddMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("ticket_id", "")
	if id == "" {
		return mcp.NewToolResultError("ticket_id parameter is required"), nil
	}
	message := request.GetString("message", "")
	if message == "" {
		return mcp.NewToolResultError("message parameter is required"), nil
	}

	res, err := s.orch.AddMessage(ctx, id, message, request.GetString("author_name", ""))
	if err != nil {
		return s.toolError("add_message", err), nil
	}

	return jsonResult(addMessageResult{
		TicketID:         id,
		MessageID:        res.Message.ID,
		Timestamp:        res.Message.Timestamp,
		Sentiment:        res.Message.Sentiment,
		AssistantMessage: res.AssistantMessage,
		ReplySource:      string(res.ReplySource),
	})
}

func (s *Server) handleCloseTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("ticket_id", "")
	if id == "" {
		return mcp.NewToolResultError("ticket_id parameter is required"), nil
	}

	res, err := s.orch.UpdateStatus(ctx, id, contracts.StatusClosed)
	if err != nil {
		return s.toolError("close_ticket", err), nil
	}

	return jsonResult(closeTicketResult{
		TicketID:      res.TicketID,
		Status:        res.Status,
		ClosedAt:      res.ClosedAt,
		AlreadyClosed: res.AlreadyClosed,
	})
}

func (s *Server) handleTakeOver(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("ticket_id", "")
	if id == "" {
		return mcp.NewToolResultError("ticket_id parameter is required"), nil
	}

	res, err := s.orch.TakeOver(ctx, id)
	if err != nil {
		return s.toolError("take_over_ticket", err), nil
	}

	return jsonResult(takeOverResult{
		TicketID:    res.TicketID,
		Status:      res.Status,
		StatusLabel: ticket.Label(res.Status),
	})
}

func (s *Server) handleListTickets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", DefaultTier1Limit)

	tickets, err := s.orch.ListTickets(ctx, listWindow)
	if err != nil {
		return s.toolError("list_tickets", err), nil
	}

	return jsonResult(TierTickets(tickets, limit))
}

// toolError reports err to the calling model in the user-facing wording.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.log.Warn("[MCP] %s failed: %v", tool, err)
	return mcp.NewToolResultError(ticket.WrapError(err).Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
