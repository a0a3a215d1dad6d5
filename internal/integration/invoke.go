package integration

import (
	"context"
	"fmt"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
	"github.com/ledgerworks/integration-runtime/internal/metrics"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// invoker runs registered handlers on behalf of the event contexts:
// it maintains the handler's InvocationStatus, submits resulting ledger
// commands with a bounded timeout, and contains every failure so the
// caller (the queue worker in particular) never sees one.
type invoker struct {
	client ledger.Client
	log    *logger.Logger
}

// invoke executes fn under the invocation contract. The raw handler
// result is returned (for webhook response translation) together with
// the recorded error, if any. Errors are already counted and logged
// when invoke returns; callers may ignore them.
func (iv *invoker) invoke(ctx context.Context, status *InvocationStatus, fn func(context.Context) (any, error)) (raw any, err error) {
	status.noteUse()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			iv.record(status, err)
		}
	}()

	raw, err = fn(ctx)
	if err != nil {
		iv.record(status, err)
		return raw, err
	}

	resp, err := normalizeResponse(raw)
	if err != nil {
		iv.record(status, err)
		return raw, err
	}

	if len(resp.Commands) > 0 {
		if err := iv.submit(ctx, resp); err != nil {
			err = fmt.Errorf("command submission failed: %w", err)
			iv.record(status, err)
			return raw, err
		}
		status.noteCommands(len(resp.Commands))
		metrics.RecordCommands(len(resp.Commands))
	}

	return raw, nil
}

func (iv *invoker) submit(ctx context.Context, resp *Response) error {
	timeout := resp.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	iv.log.WithField("commands", len(resp.Commands)).
		WithField("timeout", timeout.String()).
		Debug("submitting ledger commands")

	return iv.client.Submit(subCtx, resp.Commands)
}

func (iv *invoker) record(status *InvocationStatus, err error) {
	status.noteError(err)
	metrics.RecordHandlerError(status.Label())
	iv.log.WithError(err).
		WithField("handler", status.Label()).
		Error("error while processing handler invocation")
}
