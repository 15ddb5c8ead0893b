package dhcpsvc

import (
	"context"
	"time"
)

// Metrics is the interface for the collection of the server statistics.
type Metrics interface {
	// ObserveMessage records the handling of a message of the type.  typ is
	// "bootp" for BOOTP messages and "unknown" for the unsupported ones.
	ObserveMessage(ctx context.Context, typ string, dur time.Duration)

	// IncReplies records a reply of the type.
	IncReplies(ctx context.Context, typ string)

	// IncDropped records a dropped message with the reason.
	IncDropped(ctx context.Context, reason string)

	// IncQuarantined records a quarantined address.
	IncQuarantined(ctx context.Context)

	// SetBindings sets the number of bindings in the store.
	SetBindings(ctx context.Context, n int)
}

// Reasons of dropped messages.
const (
	DropReasonParse    = "parse"
	DropReasonIgnored  = "ignored"
	DropReasonNoLease  = "no_lease"
	DropReasonBadRelay = "bad_relay"
)

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// ObserveMessage implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveMessage(_ context.Context, _ string, _ time.Duration) {}

// IncReplies implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncReplies(_ context.Context, _ string) {}

// IncDropped implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncDropped(_ context.Context, _ string) {}

// IncQuarantined implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncQuarantined(_ context.Context) {}

// SetBindings implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetBindings(_ context.Context, _ int) {}
