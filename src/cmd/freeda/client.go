package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tmaxmax/go-sse"

	"freeda-support/src/contracts"
	"freeda-support/src/ticket"
)

// apiClient talks to a running `freeda serve` over its public API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// ticketStatus mirrors GET /public/tickets/:id/status.
type ticketStatus struct {
	TicketID     string            `json:"ticket_id"`
	Status       contracts.Status  `json:"status"`
	StatusInfo   ticket.StatusInfo `json:"status_info"`
	LastUpdate   time.Time         `json:"last_update"`
	MessageCount int               `json:"message_count"`
}

func (c *apiClient) ticketURL(id, suffix string) string {
	return c.baseURL + "/public/tickets/" + url.PathEscape(id) + suffix
}

// Status fetches the public status of a ticket.
func (c *apiClient) Status(ctx context.Context, id string) (*ticketStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ticketURL(id, "/status"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	var st ticketStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &st, nil
}

// Stream follows the ticket's SSE feed and delivers every event to out until
// the server ends the stream or ctx is done. out is closed on return.
func (c *apiClient) Stream(ctx context.Context, id string, out chan<- contracts.Event) error {
	defer close(out)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ticketURL(id, "/events"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}

	for ev, err := range sse.Read(resp.Body, &sse.ReadConfig{}) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream failed: %w", err)
		}
		var event contracts.Event
		if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
			return fmt.Errorf("bad %s event: %w", ev.Type, err)
		}
		select {
		case out <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// checkResponse maps API error statuses back onto the ticket errors so the
// CLI can print the same hints as the other surfaces.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}

	var base error
	switch resp.StatusCode {
	case http.StatusNotFound:
		base = ticket.ErrNotFound
	case http.StatusConflict:
		base = ticket.ErrTicketClosed
	case http.StatusTooManyRequests:
		return &ticket.UserError{Message: body.Error, Hint: "Wait a minute before retrying."}
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return ticket.WrapError(errors.Join(base, errors.New(body.Error)))
}
