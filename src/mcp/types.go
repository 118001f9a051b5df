// Package mcp exposes ticket operations as MCP tools so that agent-side
// assistants can triage and answer support tickets.
package mcp

import (
	"time"

	"freeda-support/src/contracts"
)

// TicketManifest is the list_tickets response. Tier 1 tickets need a human
// now and are fully summarized; tiers 2 and 3 are one-line briefs that can
// be expanded with get_ticket.
type TicketManifest struct {
	Total       int             `json:"total"`
	Tier1Urgent []TicketSummary `json:"tier_1_urgent"`
	Tier2Open   []TicketBrief   `json:"tier_2_open"`
	Tier3Closed []TicketBrief   `json:"tier_3_closed"`
	Omitted     int             `json:"omitted_tickets,omitempty"`
}

// TicketSummary is the expanded form of an urgent ticket.
type TicketSummary struct {
	ID           string    `json:"ticket_id"`
	Status       string    `json:"status"`
	Channel      string    `json:"channel"`
	CustomerName string    `json:"customer_name"`
	Urgency      string    `json:"urgency"`
	ChurnRisk    int       `json:"churn_risk"`
	Alert        string    `json:"alert,omitempty"`
	Summary      string    `json:"summary"`
	NextAction   string    `json:"next_action"`
	MessageCount int       `json:"message_count"`
	LastMessage  string    `json:"last_message"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TicketBrief is the one-line form used for lower tiers.
type TicketBrief struct {
	ID        string    `json:"ticket_id"`
	Tier      int       `json:"tier"`
	Status    string    `json:"status"`
	Preview   string    `json:"preview"`
	ChurnRisk int       `json:"churn_risk"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TicketDetail is the get_ticket response.
type TicketDetail struct {
	ID          string               `json:"ticket_id"`
	Status      string               `json:"status"`
	StatusLabel string               `json:"status_label"`
	Channel     string               `json:"channel"`
	Customer    string               `json:"customer_name"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	ClosedAt    *time.Time           `json:"closed_at,omitempty"`
	Analytics   *contracts.Analytics `json:"analytics,omitempty"`
	// Transcript holds one compacted "role author: text" line per message,
	// oldest first.
	Transcript []string `json:"transcript"`
	Omitted    int      `json:"omitted_messages,omitempty"`
}
