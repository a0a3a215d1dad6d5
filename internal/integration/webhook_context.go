package integration

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/ledgerworks/integration-runtime/internal/auth"
	"github.com/ledgerworks/integration-runtime/internal/httputil"
	"github.com/ledgerworks/integration-runtime/internal/ledger"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// WebhookHandler serves one webhook route. Its result is translated to
// an HTTP response; any returned ledger commands are submitted first.
type WebhookHandler func(r *http.Request) (any, error)

// WebhookRouteSnapshot extends the invocation snapshot with routing
// identity.
type WebhookRouteSnapshot struct {
	InvocationSnapshot
	URLPath string `json:"url_path"`
	Method  string `json:"method"`
}

type webhookRoute struct {
	status *InvocationStatus
	path   string
	method string
}

// WebhookContext maps (method, path) routes to registered handlers.
// Routes live under the integration's URL prefix and carry an
// authorization level read by the auth middleware. Webhook dispatch is
// inline with the HTTP request; only ledger, timer, and internal-queue
// events go through the deferral queue.
type WebhookContext struct {
	invoker       *invoker
	log           *logger.Logger
	integrationID string
	router        *mux.Router
	levels        *auth.RouteLevels

	mu     sync.Mutex
	routes []*webhookRoute
}

// NewWebhookContext creates a webhook context registering routes on the
// given router.
func NewWebhookContext(client ledger.Client, integrationID string, router *mux.Router, levels *auth.RouteLevels, log *logger.Logger) *WebhookContext {
	if log == nil {
		log = logger.NewDefault("webhook-context")
	}
	return &WebhookContext{
		invoker:       &invoker{client: client, log: log},
		log:           log,
		integrationID: integrationID,
		router:        router,
		levels:        levels,
	}
}

// Get registers a GET route at the given suffix.
func (c *WebhookContext) Get(urlSuffix, label string, level auth.Level, fn WebhookHandler) *InvocationStatus {
	return c.register(http.MethodGet, urlSuffix, label, level, fn)
}

// Post registers a POST route at the given suffix.
func (c *WebhookContext) Post(urlSuffix, label string, level auth.Level, fn WebhookHandler) *InvocationStatus {
	return c.register(http.MethodPost, urlSuffix, label, level, fn)
}

func (c *WebhookContext) urlPath(suffix string) string {
	return "/integration/" + c.integrationID + suffix
}

func (c *WebhookContext) register(method, urlSuffix, label string, level auth.Level, fn WebhookHandler) *InvocationStatus {
	path := c.urlPath(urlSuffix)

	c.mu.Lock()
	index := len(c.routes)
	status := newInvocationStatus(index, label)
	c.routes = append(c.routes, &webhookRoute{status: status, path: path, method: method})
	c.mu.Unlock()

	c.log.WithField("method", method).
		WithField("path", path).
		WithField("label", label).
		Info("registered webhook route")

	routeName := fmt.Sprintf("webhook-%d-%s", index, method)
	c.router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		raw, err := c.invoker.invoke(r.Context(), status, func(ctx context.Context) (any, error) {
			return fn(r.WithContext(ctx))
		})
		if err != nil {
			httputil.InternalError(w, "webhook handler failed")
			return
		}
		writeWebhookResponse(w, r, raw)
	}).Methods(method).Name(routeName)
	c.levels.Set(routeName, level)

	return status
}

// writeWebhookResponse translates a handler result into the HTTP reply.
// Precedence: raw response, JSON payload, text payload, binary payload,
// default empty success. Exactly one is honoured.
func writeWebhookResponse(w http.ResponseWriter, r *http.Request, raw any) {
	var resp *WebhookResponse
	switch v := raw.(type) {
	case *WebhookResponse:
		resp = v
	case WebhookResponse:
		resp = &v
	}

	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	switch {
	case resp.Raw != nil:
		resp.Raw.ServeHTTP(w, r)
	case resp.JSON != nil:
		httputil.WriteJSON(w, status, resp.JSON)
	case resp.Text != "":
		contentType := resp.ContentType
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp.Text))
	case resp.Blob != nil:
		contentType := resp.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(resp.Blob)
	default:
		w.WriteHeader(status)
	}
}

// Status returns a snapshot per route, in registration order.
func (c *WebhookContext) Status() []WebhookRouteSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WebhookRouteSnapshot, 0, len(c.routes))
	for _, route := range c.routes {
		out = append(out, WebhookRouteSnapshot{
			InvocationSnapshot: route.status.Snapshot(),
			URLPath:            route.path,
			Method:             route.method,
		})
	}
	return out
}
