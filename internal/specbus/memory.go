package specbus

import (
	"context"
	"sync"
)

// Memory is an in-memory SpecBus double used by coordinator tests. It
// records every published spec; ack delivery is exercised by calling the
// ack listener directly rather than through ConsumeAcks.
type Memory struct {
	mu        sync.Mutex
	published []publishedSpec
	// FailPublish, if true, makes PublishSpec return an error without
	// recording anything.
	FailPublish bool
}

type publishedSpec struct {
	Key  string
	Spec FeatureSetSpec
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) PublishSpec(ctx context.Context, key string, spec FeatureSetSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPublish {
		return errPublishFailed
	}
	m.published = append(m.published, publishedSpec{Key: key, Spec: spec})
	return nil
}

// Published returns every spec handed to PublishSpec, in call order.
func (m *Memory) Published() []publishedSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishedSpec, len(m.published))
	copy(out, m.published)
	return out
}

func (m *Memory) ConsumeAcks(ctx context.Context, handler func(AckRecord)) error {
	<-ctx.Done()
	return nil
}

func (m *Memory) Ready(ctx context.Context) error {
	return nil
}

func (m *Memory) Close(ctx context.Context) error {
	return nil
}

var errPublishFailed = publishError("specbus: publish failed")

type publishError string

func (e publishError) Error() string { return string(e) }

var _ SpecBus = (*Memory)(nil)
