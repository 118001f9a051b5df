// Package orchestrator composes storage, the conversational gateway, the
// optional analytics and knowledge-base collaborators, and the event
// broadcaster into the ticket use cases: create, append, close and watch.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"freeda-support/src/analytics"
	"freeda-support/src/clock"
	"freeda-support/src/contracts"
	"freeda-support/src/events"
	"freeda-support/src/gateway"
	"freeda-support/src/logger"
	"freeda-support/src/sanitize"
	"freeda-support/src/store"
	"freeda-support/src/ticket"
)

const (
	// DefaultHistoryWindow is how many previous turns go into a reply prompt.
	DefaultHistoryWindow = 5

	// DegradedReply is sent when no generated reply is available.
	DegradedReply = "Je prends note. Un agent va vous répondre."

	// DefaultSystemPrompt frames every gateway conversation.
	DefaultSystemPrompt = "Tu es Freeda, l'assistante du service client Free. Réponds en français, " +
		"de façon concise, polie et précise. Si tu ne connais pas la réponse, indique qu'un agent " +
		"va prendre le relais. Ne promets jamais de geste commercial."

	// EstimatedResponseTime is shown to customers after ticket creation.
	EstimatedResponseTime = "Sous 2 heures"

	// ChatChannel is the only channel that gets an automated reply.
	ChatChannel = "chat"

	maxMessageLength = 5000
	maxIDAttempts    = 5
)

// Chatter produces a reply from a conversation.
type Chatter interface {
	Chat(ctx context.Context, req gateway.Request) (string, error)
}

// Analyzer scores a conversation.
type Analyzer interface {
	AnalyzeTicket(ctx context.Context, history []contracts.ChatMessage) (contracts.Analytics, error)
}

// ContextRetriever returns knowledge base context for a query, or "".
type ContextRetriever interface {
	GetContext(ctx context.Context, query string) string
}

// CannedResponder answers a message without calling the gateway.
type CannedResponder interface {
	Match(message string) (string, bool)
}

// ReplySource tells where an assistant reply came from.
type ReplySource string

const (
	ReplyNone     ReplySource = ""
	ReplyCanned   ReplySource = "canned"
	ReplyGateway  ReplySource = "gateway"
	ReplyDegraded ReplySource = "degraded"
)

// Deps are the collaborators of an Orchestrator. Store and Broadcaster are
// required; every other collaborator may be nil.
type Deps struct {
	Store       store.Store
	Broadcaster *events.Broadcaster

	Gateway   Chatter
	Analytics Analyzer
	RAG       ContextRetriever
	Replies   CannedResponder

	Logger        logger.Logger
	Clock         clock.Clock
	SystemPrompt  string
	HistoryWindow int
}

// Orchestrator runs the ticket use cases.
type Orchestrator struct {
	store       store.Store
	broadcaster *events.Broadcaster
	gateway     Chatter
	analytics   Analyzer
	rag         ContextRetriever
	replies     CannedResponder

	logger        logger.Logger
	clock         clock.Clock
	systemPrompt  string
	historyWindow int

	// turns serializes AddMessage calls on a ticket, gateway call included.
	// locks guards read-modify-persist-broadcast sections and is only held
	// briefly, so viewers and status changes never wait on a reply.
	turns *keyedMutex
	locks *keyedMutex
}

// New creates an Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("orchestrator: store is required")
	}
	if deps.Broadcaster == nil {
		return nil, fmt.Errorf("orchestrator: broadcaster is required")
	}

	o := &Orchestrator{
		store:         deps.Store,
		broadcaster:   deps.Broadcaster,
		gateway:       deps.Gateway,
		analytics:     deps.Analytics,
		rag:           deps.RAG,
		replies:       deps.Replies,
		logger:        deps.Logger,
		clock:         deps.Clock,
		systemPrompt:  deps.SystemPrompt,
		historyWindow: deps.HistoryWindow,
		turns:         newKeyedMutex(),
		locks:         newKeyedMutex(),
	}
	if o.logger == nil {
		o.logger = logger.NewSilentLogger()
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.systemPrompt == "" {
		o.systemPrompt = DefaultSystemPrompt
	}
	if o.historyWindow <= 0 {
		o.historyWindow = DefaultHistoryWindow
	}
	return o, nil
}

// CreateRequest opens a ticket.
type CreateRequest struct {
	InitialMessage string
	CustomerName   string
	Channel        string
}

// CreateResult is the outcome of CreateTicket.
type CreateResult struct {
	Ticket           *contracts.Ticket
	Analytics        contracts.Analytics
	AssistantMessage *contracts.Message
	ReplySource      ReplySource
}

// CreateTicket opens a ticket, scores its opening message and, for the chat
// channel, answers it. Only storage failures are returned; analytics and
// gateway problems degrade the result instead.
func (o *Orchestrator) CreateTicket(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	content := sanitize.Truncate(sanitize.Clean(req.InitialMessage), maxMessageLength)
	id, err := o.newTicketID(ctx)
	if err != nil {
		return nil, err
	}

	t, err := ticket.New(id, content, sanitize.Clean(req.CustomerName), req.Channel, o.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := o.store.SaveTicket(ctx, t); err != nil {
		return nil, ticket.StorageError("save ticket", err)
	}

	result := &CreateResult{Ticket: t}
	result.Analytics = o.analyze(ctx, t)
	t.Analytics = &result.Analytics

	if t.Channel == ChatChannel {
		text, source := o.reply(ctx, content, nil)
		msg := ticket.AppendAssistantMessage(t, text, o.clock.Now())
		result.AssistantMessage = &msg
		result.ReplySource = source
	}

	if err := o.store.SaveTicket(ctx, t); err != nil {
		return nil, ticket.StorageError("save ticket", err)
	}

	o.logger.Info("[Orchestrator] Created ticket %s (channel=%s, reply=%s)", t.ID, t.Channel, result.ReplySource)

	o.broadcast(ctx, t.ID, contracts.NewTicketCreatedEvent(t))
	o.broadcast(ctx, t.ID, contracts.NewMessageEvent(t.ID, t.Messages[0]))
	if result.AssistantMessage != nil {
		o.broadcast(ctx, t.ID, contracts.NewMessageEvent(t.ID, *result.AssistantMessage))
	}

	result.Ticket = t.Clone()
	return result, nil
}

// AddResult is the outcome of AddMessage.
type AddResult struct {
	Message          contracts.Message
	AssistantMessage *contracts.Message
	Analytics        *contracts.Analytics
	ReplySource      ReplySource
}

// AddMessage appends a client message to an open ticket and answers it.
// Calls for the same ticket are serialized, so every client message is
// directly followed by its reply. The client message is persisted and
// broadcast before the reply is generated. A caller that goes away while the
// reply is pending gets ctx.Err() and no placeholder reply is stored.
func (o *Orchestrator) AddMessage(ctx context.Context, ticketID, content, author string) (*AddResult, error) {
	content = sanitize.Truncate(sanitize.Clean(content), maxMessageLength)
	if content == "" {
		return nil, ticket.ErrEmptyMessage
	}

	endTurn, err := o.turns.Lock(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer endTurn()

	t, msg, err := o.appendClientMessage(ctx, ticketID, content, author)
	if err != nil {
		return nil, err
	}

	result := &AddResult{}
	if o.analytics != nil {
		a := o.analyze(ctx, t)
		msg.Sentiment = a.Sentiment
		result.Analytics = &a
	}
	result.Message = msg

	previous := t.Messages[:len(t.Messages)-1]
	text, source := o.reply(ctx, content, lastN(previous, o.historyWindow))
	if err := ctx.Err(); err != nil {
		o.logger.Debug("[Orchestrator] Caller left before the reply for %s", ticketID)
		return nil, err
	}
	bot := ticket.NewAssistantMessage(text, o.clock.Now())

	if err := o.recordReply(ctx, ticketID, msg.ID, result.Analytics, bot); err != nil {
		return nil, err
	}
	result.AssistantMessage = &bot
	result.ReplySource = source
	return result, nil
}

// appendClientMessage persists and broadcasts a client message. It returns
// the ticket as it stood right after the append.
func (o *Orchestrator) appendClientMessage(ctx context.Context, ticketID, content, author string) (*contracts.Ticket, contracts.Message, error) {
	unlock, err := o.locks.Lock(ctx, ticketID)
	if err != nil {
		return nil, contracts.Message{}, err
	}
	defer unlock()

	t, err := o.load(ctx, ticketID)
	if err != nil {
		return nil, contracts.Message{}, err
	}
	msg, err := ticket.AppendMessage(t, content, sanitize.Clean(author), o.clock.Now())
	if err != nil {
		return nil, contracts.Message{}, err
	}
	if err := o.store.AddMessage(ctx, t.ID, msg); err != nil {
		return nil, contracts.Message{}, ticket.StorageError("add message", err)
	}
	o.broadcast(ctx, t.ID, contracts.NewMessageEvent(t.ID, msg))
	return t, msg, nil
}

// recordReply stores the analytics of the turn, tags the client message with
// its sentiment, then persists and broadcasts the assistant reply.
func (o *Orchestrator) recordReply(ctx context.Context, ticketID, msgID string, a *contracts.Analytics, bot contracts.Message) error {
	unlock, err := o.locks.Lock(ctx, ticketID)
	if err != nil {
		return err
	}
	defer unlock()

	if a != nil {
		t, err := o.load(ctx, ticketID)
		if err != nil {
			return err
		}
		t.Analytics = a
		for i := range t.Messages {
			if t.Messages[i].ID == msgID {
				t.Messages[i].Sentiment = a.Sentiment
			}
		}
		if err := o.store.SaveTicket(ctx, t); err != nil {
			return ticket.StorageError("save analytics", err)
		}
	}

	if err := o.store.AddMessage(ctx, ticketID, bot); err != nil {
		return ticket.StorageError("add assistant message", err)
	}
	o.broadcast(ctx, ticketID, contracts.NewMessageEvent(ticketID, bot))
	return nil
}

// StatusResult is the outcome of UpdateStatus.
type StatusResult struct {
	TicketID      string
	Status        contracts.Status
	ClosedAt      *time.Time
	AlreadyClosed bool
}

// UpdateStatus applies an externally requested status change. Only closing
// is allowed, and closing twice is a no-op that broadcasts nothing.
func (o *Orchestrator) UpdateStatus(ctx context.Context, ticketID string, status contracts.Status) (*StatusResult, error) {
	if err := ticket.ValidateTransition(status); err != nil {
		return nil, err
	}

	unlock, err := o.locks.Lock(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := o.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	now := o.clock.Now()
	if !ticket.Close(t, now) {
		return &StatusResult{TicketID: t.ID, Status: t.Status, ClosedAt: t.ClosedAt, AlreadyClosed: true}, nil
	}
	if err := o.store.UpdateTicketStatus(ctx, t.ID, t.Status, now); err != nil {
		return nil, ticket.StorageError("update status", err)
	}

	o.logger.Info("[Orchestrator] Ticket %s closed", t.ID)
	o.broadcast(ctx, t.ID, contracts.NewStatusEvent(t.ID, t.Status))
	return &StatusResult{TicketID: t.ID, Status: t.Status, ClosedAt: t.ClosedAt}, nil
}

// TakeOver moves a new ticket to en cours when an agent picks it up. It is a
// no-op for tickets already in progress and fails with ErrTicketClosed for
// closed ones.
func (o *Orchestrator) TakeOver(ctx context.Context, ticketID string) (*StatusResult, error) {
	unlock, err := o.locks.Lock(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := o.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Status == contracts.StatusInProgress {
		return &StatusResult{TicketID: t.ID, Status: t.Status}, nil
	}

	now := o.clock.Now()
	if err := ticket.StartProgress(t, now); err != nil {
		return nil, err
	}
	if err := o.store.UpdateTicketStatus(ctx, t.ID, t.Status, now); err != nil {
		return nil, ticket.StorageError("update status", err)
	}

	o.logger.Info("[Orchestrator] Ticket %s taken over", t.ID)
	o.broadcast(ctx, t.ID, contracts.NewStatusEvent(t.ID, t.Status))
	return &StatusResult{TicketID: t.ID, Status: t.Status}, nil
}

// GetTicket loads a ticket.
func (o *Orchestrator) GetTicket(ctx context.Context, ticketID string) (*contracts.Ticket, error) {
	return o.load(ctx, ticketID)
}

// ListTickets returns the most recently updated tickets.
func (o *Orchestrator) ListTickets(ctx context.Context, limit int) ([]*contracts.Ticket, error) {
	tickets, err := o.store.ListTickets(ctx, limit)
	if err != nil {
		return nil, ticket.StorageError("list tickets", err)
	}
	return tickets, nil
}

// Watch attaches a live viewer to a ticket. The subscription receives a
// ticket_snapshot first, then every later event. The caller must release it
// with Unwatch.
func (o *Orchestrator) Watch(ctx context.Context, ticketID string) (*events.Subscription, error) {
	// Holding the ticket lock keeps mutations from slipping between the
	// snapshot and the first live event. It is never held across a gateway
	// call, and waiting for it gives up with ctx.
	unlock, err := o.locks.Lock(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := o.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	sub, first := o.broadcaster.Subscribe(ticketID)
	if _, err := o.broadcaster.Deliver(sub, contracts.NewSnapshotEvent(t)); err != nil {
		o.broadcaster.Unsubscribe(ticketID, sub)
		return nil, fmt.Errorf("failed to deliver snapshot: %w", err)
	}
	o.logger.Debug("[Orchestrator] Viewer attached to %s (first=%v, viewers=%d)", ticketID, first, o.broadcaster.Count(ticketID))
	return sub, nil
}

// Unwatch detaches a viewer.
func (o *Orchestrator) Unwatch(sub *events.Subscription) {
	if sub == nil {
		return
	}
	o.broadcaster.Unsubscribe(sub.TicketID(), sub)
}

func (o *Orchestrator) load(ctx context.Context, ticketID string) (*contracts.Ticket, error) {
	t, err := o.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, ticket.StorageError("get ticket", err)
	}
	return t, nil
}

func (o *Orchestrator) newTicketID(ctx context.Context) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := ticket.NewID()
		exists, err := o.store.TicketExists(ctx, id)
		if err != nil {
			return "", ticket.StorageError("check ticket id", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no free ticket id after %d attempts", ticket.ErrStorage, maxIDAttempts)
}

// analyze scores the last turns of t. Failures yield the neutral record.
func (o *Orchestrator) analyze(ctx context.Context, t *contracts.Ticket) contracts.Analytics {
	if o.analytics == nil {
		return analytics.Default(o.clock)
	}
	a, err := o.analytics.AnalyzeTicket(ctx, toChat(t.LastMessages(o.historyWindow)))
	if err != nil {
		o.logger.Warn("[Orchestrator] Analytics failed for %s: %v", t.ID, err)
		return analytics.Default(o.clock)
	}
	return a
}

// reply answers content, trying the canned responder before the gateway.
// It never fails: without a usable gateway reply it returns DegradedReply.
func (o *Orchestrator) reply(ctx context.Context, content string, history []contracts.Message) (string, ReplySource) {
	if o.replies != nil {
		if text, ok := o.replies.Match(content); ok {
			return text, ReplyCanned
		}
	}
	if o.gateway == nil {
		return DegradedReply, ReplyDegraded
	}

	messages := make([]contracts.ChatMessage, 0, len(history)+2)
	messages = append(messages, contracts.ChatMessage{Role: contracts.RoleSystem, Content: o.promptFor(ctx, content)})
	messages = append(messages, toChat(history)...)
	messages = append(messages, contracts.ChatMessage{Role: contracts.RoleUser, Content: content})

	text, err := o.gateway.Chat(ctx, gateway.Request{Messages: messages})
	if err != nil {
		o.logger.Warn("[Orchestrator] Gateway reply failed: %v", err)
		return DegradedReply, ReplyDegraded
	}
	text = sanitize.Clean(text)
	if text == "" {
		return DegradedReply, ReplyDegraded
	}
	return sanitize.NormalizeSignature(text), ReplyGateway
}

// promptFor extends the system prompt with knowledge base context.
func (o *Orchestrator) promptFor(ctx context.Context, query string) string {
	if o.rag == nil {
		return o.systemPrompt
	}
	kb := o.rag.GetContext(ctx, query)
	if kb == "" {
		return o.systemPrompt
	}
	return o.systemPrompt + "\n\nUtilise les infos suivantes :\n" + kb
}

func (o *Orchestrator) broadcast(ctx context.Context, ticketID string, ev contracts.Event) {
	if err := o.broadcaster.Broadcast(ctx, ticketID, ev); err != nil {
		o.logger.Error("[Orchestrator] Broadcast %s for %s failed: %v", ev.Type, ticketID, err)
	}
}

func toChat(msgs []contracts.Message) []contracts.ChatMessage {
	return lo.Map(msgs, func(m contracts.Message, _ int) contracts.ChatMessage {
		return contracts.ChatMessage{Role: m.Role(), Content: m.Content}
	})
}

func lastN(msgs []contracts.Message, n int) []contracts.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
