package mcp

import (
	"sort"

	"freeda-support/src/analytics"
	"freeda-support/src/contracts"
)

// Default ticket limits per tier.
// Tier 1 gets more entries since those tickets need action first.
const (
	DefaultTier1Limit = 15
	DefaultTier2Limit = 10
	DefaultTier3Limit = 5
)

// urgentChurnRisk is the churn risk from which an open ticket is urgent even
// without an alert.
const urgentChurnRisk = 60

// classifyTicket returns 1 (urgent), 2 (open) or 3 (closed).
func classifyTicket(t *contracts.Ticket) int {
	if t.Status == contracts.StatusClosed {
		return 3
	}
	a := t.Analytics
	if a == nil {
		return 2
	}
	if a.Alert == analytics.AlertRetention || a.Urgency == "haute" || a.ChurnRisk >= urgentChurnRisk {
		return 1
	}
	return 2
}

func churnRisk(t *contracts.Ticket) int {
	if t.Analytics == nil {
		return 0
	}
	return t.Analytics.ChurnRisk
}

func toSummary(t *contracts.Ticket) TicketSummary {
	s := TicketSummary{
		ID:           t.ID,
		Status:       string(t.Status),
		Channel:      t.Channel,
		CustomerName: t.CustomerName,
		MessageCount: len(t.Messages),
		UpdatedAt:    t.UpdatedAt,
	}
	if a := t.Analytics; a != nil {
		s.Urgency = a.Urgency
		s.ChurnRisk = a.ChurnRisk
		s.Alert = a.Alert
		s.Summary = a.Summary
		s.NextAction = a.NextAction
	}
	if last := t.LastMessages(1); len(last) == 1 {
		s.LastMessage = CompressLine(last[0].Content, transcriptLength)
	}
	return s
}

func toBrief(t *contracts.Ticket, tier int) TicketBrief {
	return TicketBrief{
		ID:        t.ID,
		Tier:      tier,
		Status:    string(t.Status),
		Preview:   CompressLine(t.InitialMessage, previewLength),
		ChurnRisk: churnRisk(t),
		UpdatedAt: t.UpdatedAt,
	}
}

// TierTickets groups tickets by urgency. limit caps tier 1 (default when
// <= 0); lower tiers get proportionally smaller limits. Within a tier the
// highest churn risk comes first, then the most recently updated.
//
// Note: This function sorts the input slice.
func TierTickets(tickets []*contracts.Ticket, limit int) TicketManifest {
	tier1Limit := DefaultTier1Limit
	tier2Limit := DefaultTier2Limit
	tier3Limit := DefaultTier3Limit

	if limit > 0 && limit != DefaultTier1Limit {
		tier1Limit = limit
		tier2Limit = max(1, limit*2/3)
		tier3Limit = max(1, limit/3)
	}

	sort.SliceStable(tickets, func(i, j int) bool {
		ri, rj := churnRisk(tickets[i]), churnRisk(tickets[j])
		if ri != rj {
			return ri > rj
		}
		return tickets[i].UpdatedAt.After(tickets[j].UpdatedAt)
	})

	m := TicketManifest{
		Total:       len(tickets),
		Tier1Urgent: []TicketSummary{},
		Tier2Open:   []TicketBrief{},
		Tier3Closed: []TicketBrief{},
	}
	for _, t := range tickets {
		switch tier := classifyTicket(t); tier {
		case 1:
			if len(m.Tier1Urgent) < tier1Limit {
				m.Tier1Urgent = append(m.Tier1Urgent, toSummary(t))
				continue
			}
		case 2:
			if len(m.Tier2Open) < tier2Limit {
				m.Tier2Open = append(m.Tier2Open, toBrief(t, tier))
				continue
			}
		default:
			if len(m.Tier3Closed) < tier3Limit {
				m.Tier3Closed = append(m.Tier3Closed, toBrief(t, tier))
				continue
			}
		}
		m.Omitted++
	}
	return m
}
