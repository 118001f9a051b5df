package app

import (
	"context"
	"time"

	"freeda-support/src/breaker"
	"freeda-support/src/broker"
	"freeda-support/src/rag"
	"freeda-support/src/store"
)

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

// GatewayHealth describes the conversational gateway.
type GatewayHealth struct {
	Enabled  bool             `json:"enabled"`
	Circuit  breaker.Snapshot `json:"circuit"`
	Attempts int64            `json:"attempts"`
}

// Health is reported by the /health endpoint and `freeda status`.
type Health struct {
	Status        string        `json:"status"`
	Mode          string        `json:"mode"`
	Storage       string        `json:"storage"`
	StorageError  string        `json:"storage_error,omitempty"`
	BrokerError   string        `json:"broker_error,omitempty"`
	Gateway       GatewayHealth `json:"gateway"`
	Analytics     bool          `json:"analytics"`
	KnowledgeDocs int           `json:"knowledge_documents"`
	Knowledge     *rag.Stats    `json:"knowledge,omitempty"`
	LiveTickets   int           `json:"live_tickets"`
	CheckedAt     time.Time     `json:"checked_at"`
}

// Health checks the components. Storage that cannot be reached makes the
// service down; an unreachable broker, an open circuit or a missing gateway
// only degrades it.
func (a *App) Health(ctx context.Context) Health {
	h := Health{
		Status:      HealthOK,
		Mode:        a.Mode.String(),
		Storage:     a.Config.StorageType,
		Analytics:   a.Analytics != nil,
		LiveTickets: a.Broadcaster.Rooms(),
		CheckedAt:   a.Clock.Now(),
	}

	if p, ok := a.Store.(store.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			h.Status = HealthDown
			h.StorageError = err.Error()
		}
	}

	brokerDown := false
	if p, ok := a.Broker.(broker.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			brokerDown = true
			h.BrokerError = err.Error()
		}
	}

	h.Gateway.Circuit = a.Breaker.Snapshot()
	if a.Gateway != nil {
		h.Gateway.Enabled = true
		h.Gateway.Attempts = a.Gateway.Attempts()
	}
	if a.Knowledge != nil {
		stats := a.Knowledge.Stats()
		h.KnowledgeDocs = stats.TotalDocuments
		h.Knowledge = &stats
	}

	if h.Status == HealthOK && (brokerDown || !h.Gateway.Enabled || h.Gateway.Circuit.State == breaker.StateOpen) {
		h.Status = HealthDegraded
	}
	return h
}
