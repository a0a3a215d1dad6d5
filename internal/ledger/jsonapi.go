package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// JSONAPIConfig locates a ledger HTTP JSON API endpoint.
type JSONAPIConfig struct {
	// BaseURL is the http(s) root of the JSON API, e.g.
	// http://localhost:7575.
	BaseURL string

	// Token is the bearer token presented on every call.
	Token string

	// HTTPTimeout bounds individual HTTP calls. Zero means 30s.
	HTTPTimeout time.Duration
}

type createSub struct {
	template string
	match    Match
	handler  CreateHandler
}

type archiveSub struct {
	template string
	match    Match
	handler  ArchiveHandler
}

// JSONAPIClient talks to a ledger through its HTTP JSON API. Commands
// and queries go over plain HTTP; live events arrive on a websocket
// query stream. All subscription callbacks run on the single stream
// reader goroutine, which preserves event order.
type JSONAPIClient struct {
	cfg        JSONAPIConfig
	httpClient *http.Client
	log        *logger.Logger

	mu            sync.Mutex
	createSubs    []createSub
	archiveSubs   []archiveSub
	txStartSubs   []TransactionStartHandler
	txEndSubs     []TransactionEndHandler
	seenContracts map[ContractID]string
}

// NewJSONAPIClient creates a client for the given endpoint. Call Run to
// start the event stream after handlers are registered.
func NewJSONAPIClient(cfg JSONAPIConfig, log *logger.Logger) *JSONAPIClient {
	if log == nil {
		log = logger.NewDefault("jsonapi")
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &JSONAPIClient{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: timeout},
		log:           log,
		seenContracts: make(map[ContractID]string),
	}
}

type createPayload struct {
	TemplateID string       `json:"templateId"`
	Payload    ContractData `json:"payload"`
}

type exercisePayload struct {
	ContractID ContractID   `json:"contractId"`
	Choice     string       `json:"choice"`
	Argument   ContractData `json:"argument"`
}

// Submit sends the commands one at a time, stopping at the first
// failure.
func (c *JSONAPIClient) Submit(ctx context.Context, commands []Command) error {
	for _, cmd := range commands {
		var err error
		switch cmd.Kind {
		case CommandCreate:
			err = c.post(ctx, "/v1/create", createPayload{
				TemplateID: cmd.Template,
				Payload:    cmd.Arguments,
			}, nil)
		case CommandExercise:
			err = c.post(ctx, "/v1/exercise", exercisePayload{
				ContractID: cmd.ContractID,
				Choice:     cmd.Choice,
				Argument:   cmd.Arguments,
			}, nil)
		default:
			err = fmt.Errorf("unknown command kind %q", cmd.Kind)
		}
		if err != nil {
			return fmt.Errorf("submit %s: %w", cmd.Kind, err)
		}
	}
	return nil
}

type queryPayload struct {
	TemplateIDs []string `json:"templateIds"`
}

type queryResult struct {
	Result []struct {
		ContractID ContractID   `json:"contractId"`
		Payload    ContractData `json:"payload"`
	} `json:"result"`
}

// FindActive queries active contracts of the template. Match filtering
// happens client side.
func (c *JSONAPIClient) FindActive(ctx context.Context, template string, match Match) ([]ActiveContract, error) {
	var result queryResult
	err := c.post(ctx, "/v1/query", queryPayload{TemplateIDs: []string{template}}, &result)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", template, err)
	}

	var out []ActiveContract
	for _, entry := range result.Result {
		if match.Matches(entry.Payload) {
			out = append(out, ActiveContract{ContractID: entry.ContractID, Data: entry.Payload})
		}
	}
	return out, nil
}

func (c *JSONAPIClient) OnContractCreated(template string, match Match, handler CreateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createSubs = append(c.createSubs, createSub{template: template, match: match, handler: handler})
}

func (c *JSONAPIClient) OnContractArchived(template string, match Match, handler ArchiveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.archiveSubs = append(c.archiveSubs, archiveSub{template: template, match: match, handler: handler})
}

func (c *JSONAPIClient) OnTransactionStart(handler TransactionStartHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txStartSubs = append(c.txStartSubs, handler)
}

func (c *JSONAPIClient) OnTransactionEnd(handler TransactionEndHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txEndSubs = append(c.txEndSubs, handler)
}

// Ready polls the endpoint's readiness route until it answers or the
// context expires.
func (c *JSONAPIClient) Ready(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/readyz", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			c.log.WithField("status", resp.StatusCode).Debug("ledger not ready")
		} else {
			c.log.WithError(err).Debug("ledger not reachable")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("awaiting ledger readiness: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Run reads the websocket event stream until the context ends,
// reconnecting with a fixed backoff on stream failure.
func (c *JSONAPIClient) Run(ctx context.Context) {
	templates := c.subscribedTemplates()
	if len(templates) == 0 {
		c.log.Info("no ledger subscriptions, event stream not started")
		<-ctx.Done()
		return
	}

	for {
		if err := c.streamOnce(ctx, templates); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.WithError(err).Warn("event stream failed, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// subscribedTemplates collects the distinct templates under
// subscription. A single wildcard registration subsumes the rest and
// collapses the stream query to everything.
func (c *JSONAPIClient) subscribedTemplates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, sub := range c.createSubs {
		if sub.template == WildcardTemplate {
			return []string{WildcardTemplate}
		}
		if !seen[sub.template] {
			seen[sub.template] = true
			out = append(out, sub.template)
		}
	}
	for _, sub := range c.archiveSubs {
		if sub.template == WildcardTemplate {
			return []string{WildcardTemplate}
		}
		if !seen[sub.template] {
			seen[sub.template] = true
			out = append(out, sub.template)
		}
	}
	return out
}

type createdEvent struct {
	TemplateID string       `json:"templateId"`
	ContractID ContractID   `json:"contractId"`
	Payload    ContractData `json:"payload"`
}

type archivedEvent struct {
	TemplateID string     `json:"templateId"`
	ContractID ContractID `json:"contractId"`
}

type streamEvent struct {
	Created  *createdEvent  `json:"created,omitempty"`
	Archived *archivedEvent `json:"archived,omitempty"`
}

type streamMessage struct {
	Events []streamEvent `json:"events"`
	Offset string        `json:"offset"`
}

func (c *JSONAPIClient) streamOnce(ctx context.Context, templates []string) error {
	wsURL, err := websocketURL(c.cfg.BaseURL, "/v1/stream/query")
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"jwt.token." + c.cfg.Token, "daml.ws.auth"},
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(queryPayload{TemplateIDs: templates}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.log.WithField("templates", strings.Join(templates, ",")).Info("event stream connected")

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read event stream: %w", err)
		}
		if len(msg.Events) == 0 {
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch translates one stream message into a transaction boundary
// with its contract events. The JSON API stream does not expose command
// or workflow identity, so the ledger offset stands in for both.
func (c *JSONAPIClient) dispatch(msg streamMessage) {
	c.mu.Lock()
	createSubs := c.createSubs
	archiveSubs := c.archiveSubs
	txStartSubs := c.txStartSubs
	txEndSubs := c.txEndSubs
	c.mu.Unlock()

	var events []ContractEvent
	for _, ev := range msg.Events {
		switch {
		case ev.Created != nil:
			c.seenContracts[ev.Created.ContractID] = ev.Created.TemplateID
			events = append(events, ContractCreateEvent{
				Template:   ev.Created.TemplateID,
				ContractID: ev.Created.ContractID,
				Data:       ev.Created.Payload,
			})
		case ev.Archived != nil:
			template := ev.Archived.TemplateID
			if template == "" {
				template = c.seenContracts[ev.Archived.ContractID]
			}
			delete(c.seenContracts, ev.Archived.ContractID)
			events = append(events, ContractArchiveEvent{
				Template:   template,
				ContractID: ev.Archived.ContractID,
			})
		}
	}

	for _, handler := range txStartSubs {
		handler(TransactionStartEvent{CommandID: msg.Offset, ContractEvents: events})
	}

	for _, ev := range events {
		switch event := ev.(type) {
		case ContractCreateEvent:
			for _, sub := range createSubs {
				if templateMatches(sub.template, event.Template) && sub.match.Matches(event.Data) {
					sub.handler(event)
				}
			}
		case ContractArchiveEvent:
			for _, sub := range archiveSubs {
				if templateMatches(sub.template, event.Template) {
					sub.handler(event)
				}
			}
		}
	}

	for _, handler := range txEndSubs {
		handler(TransactionEndEvent{CommandID: msg.Offset, ContractEvents: events})
	}
}

func templateMatches(subscribed, template string) bool {
	return subscribed == WildcardTemplate || subscribed == template
}

type apiError struct {
	Status int      `json:"status"`
	Errors []string `json:"errors"`
}

func (c *JSONAPIClient) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && len(apiErr.Errors) > 0 {
			return fmt.Errorf("%s: %s (status %d)", path, strings.Join(apiErr.Errors, "; "), resp.StatusCode)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%s: decode response: %w", path, err)
		}
	}
	return nil
}

func websocketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}
