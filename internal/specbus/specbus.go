// Package specbus carries feature-set spec publications to ingestion jobs
// and ingestion jobs' acknowledgements back to the coordinator, over a
// Kafka-backed bus delivered with a buffered worker pool guarded by a
// circuit breaker and exponential backoff.
package specbus

import (
	"context"
)

// FeatureSetSpec is the payload published on the spec topic.
type FeatureSetSpec struct {
	Project string
	Name    string
	Version int
	Fields  map[string]string
}

// AckRecord is the payload consumed from the ack topic.
type AckRecord struct {
	FeatureSetRef   string
	FeatureSetVersion int
	JobID           string
}

// SpecBus publishes specs and consumes delivery acknowledgements.
type SpecBus interface {
	// PublishSpec delivers spec keyed by "<project>/<name>" and returns
	// once that delivery has actually succeeded or failed - a nil return
	// is the caller's signal that the broker accepted the write, not
	// merely that the spec was queued for one. Callers that gate
	// caller-visible state on delivery (the propagator bumping a link's
	// version) rely on this: an enqueue that later fails asynchronously
	// must never be reported as success. ctx bounds how long the caller
	// is willing to wait; a cancelled ctx returns before delivery is
	// known either way, leaving the caller free to retry on its own
	// schedule.
	PublishSpec(ctx context.Context, key string, spec FeatureSetSpec) error

	// ConsumeAcks runs until ctx is cancelled, invoking handler once per
	// ack record read from the bus. Malformed records are discarded and
	// logged rather than passed to handler.
	ConsumeAcks(ctx context.Context, handler func(AckRecord)) error

	// Ready reports whether the bus is reachable.
	Ready(ctx context.Context) error

	// Close drains in-flight publishes and releases bus resources.
	Close(ctx context.Context) error
}

// Stats summarizes the spec bus's buffered publish path: queue depth and
// lifetime delivery/failure counts.
type Stats struct {
	QueueDepth int
	Queued     int64
	Delivered  int64
	Failed     int64
	Dropped    int64
}
