package audit

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var (
	securityTypes = map[EventType]struct{}{
		EventLoginFailed:        {},
		EventSecurityIncident:   {},
		EventSuspiciousActivity: {},
	}
	transactionTypes = map[EventType]struct{}{
		EventTransactionCreate: {},
		EventFundsTransfer:     {},
		EventTransactionModify: {},
	}
)

// IsSecurityEvent reports whether e belongs on the security channel.
func IsSecurityEvent(e Event) bool {
	if e.Severity == SeverityCritical {
		return true
	}
	_, ok := securityTypes[e.EventType]
	return ok
}

// IsTransactionEvent reports whether e belongs on the transaction channel.
func IsTransactionEvent(e Event) bool {
	_, ok := transactionTypes[e.EventType]
	return ok
}

// Router sends every event to Primary and, depending on category, also to
// the Security and Transaction channels. Nil channels are skipped.
type Router struct {
	Primary     Sink
	Security    Sink
	Transaction Sink
}

// Write delivers to all matching channels concurrently and joins their
// errors.
func (r *Router) Write(ctx context.Context, event Event) error {
	if r == nil {
		return nil
	}

	targets := make([]namedSink, 0, 3)
	if r.Primary != nil {
		targets = append(targets, namedSink{"primary", r.Primary})
	}
	if r.Security != nil && IsSecurityEvent(event) {
		targets = append(targets, namedSink{"security", r.Security})
	}
	if r.Transaction != nil && IsTransactionEvent(event) {
		targets = append(targets, namedSink{"transaction", r.Transaction})
	}

	if len(targets) == 1 {
		return targets[0].write(ctx, event)
	}

	// a plain Group: one channel failing must not cancel the others
	var g errgroup.Group
	errs := make([]error, len(targets))
	for i, t := range targets {
		g.Go(func() error {
			errs[i] = t.write(ctx, event)
			return errs[i]
		})
	}
	if g.Wait() == nil {
		return nil
	}
	return errors.Join(errs...)
}

type namedSink struct {
	name string
	sink Sink
}

func (n namedSink) write(ctx context.Context, event Event) error {
	if err := n.sink.Write(ctx, event); err != nil {
		return fmt.Errorf("%s channel: %w", n.name, err)
	}
	return nil
}
