package integration

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
)

// DefaultCommandTimeout bounds ledger command submission from handler
// results.
const DefaultCommandTimeout = 5 * time.Second

// Response is the normalized result of a handler invocation: zero or
// more ledger commands plus the submission timeout to apply.
type Response struct {
	Commands       []ledger.Command
	CommandTimeout time.Duration
}

// WebhookResponse extends Response with the HTTP reply for a webhook
// handler. Exactly one of Raw, JSON, Text, or Blob is honoured, checked
// in that order; when none is set an empty success response is sent.
type WebhookResponse struct {
	Response

	// Raw takes full control of the HTTP reply.
	Raw http.Handler

	// JSON is encoded as an application/json body.
	JSON any

	// Text is sent as a plain-text body.
	Text string

	// Blob is sent as a binary body.
	Blob []byte

	// ContentType overrides the content type for Text and Blob replies.
	ContentType string

	// StatusCode overrides the HTTP status; zero means 200.
	StatusCode int
}

// normalizeResponse adapts a handler's return value into a Response.
// Accepted shapes: nil (no commands), a single ledger.Command, a
// command slice, *Response, Response, *WebhookResponse, and
// WebhookResponse. Anything else is an error recorded against the
// handler.
func normalizeResponse(v any) (*Response, error) {
	switch r := v.(type) {
	case nil:
		return &Response{}, nil
	case *Response:
		if r == nil {
			return &Response{}, nil
		}
		return r, nil
	case Response:
		return &r, nil
	case *WebhookResponse:
		if r == nil {
			return &Response{}, nil
		}
		return &r.Response, nil
	case WebhookResponse:
		return &r.Response, nil
	case ledger.Command:
		return &Response{Commands: []ledger.Command{r}}, nil
	case []ledger.Command:
		return &Response{Commands: r}, nil
	default:
		return nil, fmt.Errorf("unsupported handler response type %T", v)
	}
}
