package specbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"

	"coordinator/internal/apperrors"
	"coordinator/pkg/backoff"
	"coordinator/pkg/circuitbreaker"
	"coordinator/pkg/cloudevent"
)

const (
	eventTypeSpec = "coordinator.featureset.spec"
	eventTypeAck  = "coordinator.featureset.ack"

	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultMaxRetries       = 3
)

// KafkaConfig configures the Kafka-backed SpecBus.
type KafkaConfig struct {
	Brokers   []string
	SpecTopic string
	AckTopic  string
	GroupID   string
	BufferSize int // pending publish buffer, default 10000
	Workers    int // concurrent publish goroutines, default 4
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.GroupID == "" {
		c.GroupID = "coordinator"
	}
	return c
}

type publishJob struct {
	key    string
	spec   FeatureSetSpec
	result chan error
}

// Kafka is a SpecBus backed by segmentio/kafka-go. Publishes are buffered
// and delivered by a worker pool guarded by a circuit breaker and
// exponential backoff, retargeted at a Kafka writer instead of an HTTP
// sender.
type Kafka struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	reader *kafka.Reader
	logger *slog.Logger
	breaker *circuitbreaker.Breaker

	queue    chan publishJob
	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewKafka creates a Kafka-backed SpecBus and starts its publish workers.
func NewKafka(cfg KafkaConfig) *Kafka {
	cfg = cfg.withDefaults()

	k := &Kafka{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.SpecTopic,
			Balancer:     &kafka.Hash{}, // per-key ordering
			RequiredAcks: kafka.RequireAll,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.AckTopic,
			GroupID: cfg.GroupID,
		}),
		logger:   slog.With("component", "specbus.kafka"),
		breaker:  circuitbreaker.New(circuitbreaker.Config{Threshold: defaultBreakerThreshold, Cooldown: defaultBreakerCooldown}),
		queue:    make(chan publishJob, cfg.BufferSize),
		shutdown: make(chan struct{}),
	}

	k.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go k.worker()
	}

	return k
}

// PublishSpec hands spec to the worker pool and waits for the outcome of
// the actual broker write, so a nil return is never just "accepted for
// later delivery": the breaker-guarded retries in deliver have already
// run by the time this returns. ctx only bounds how long the caller waits
// for that outcome - it does not cancel a delivery already in flight,
// which keeps running against its own internal deadline and whose result
// is simply dropped on the floor if nobody is left listening for it.
func (k *Kafka) PublishSpec(ctx context.Context, key string, spec FeatureSetSpec) error {
	if k.closed.Load() {
		return fmt.Errorf("specbus is closed")
	}

	job := publishJob{key: key, spec: spec, result: make(chan error, 1)}
	select {
	case k.queue <- job:
		k.queued.Add(1)
	default:
		k.dropped.Add(1)
		k.logger.Warn("Spec publish dropped, buffer full", "key", key)
		return errors.New("specbus buffer full")
	}

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *Kafka) worker() {
	defer k.wg.Done()
	for {
		select {
		case <-k.shutdown:
			k.drainQueue()
			return
		case job := <-k.queue:
			k.deliver(job)
		}
	}
}

func (k *Kafka) drainQueue() {
	for {
		select {
		case job := <-k.queue:
			k.deliver(job)
		default:
			return
		}
	}
}

// deliver runs the breaker-guarded, backed-off write attempt for job and
// reports the outcome on job.result. A job whose result nobody is still
// waiting on (PublishSpec's caller gave up on ctx) just has its result
// dropped - the buffered channel never blocks this send.
func (k *Kafka) deliver(job publishJob) {
	if !k.breaker.Allow() {
		k.dropped.Add(1)
		k.logger.Warn("Spec publish dropped, circuit open", "key", job.key)
		job.result <- errors.New("specbus circuit open")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body, err := json.Marshal(job.spec)
	if err != nil {
		k.breaker.RecordFailure()
		k.failed.Add(1)
		k.logger.Error("Failed to marshal spec", "key", job.key, "error", err)
		job.result <- err
		return
	}

	event := cloudevent.New(eventTypeSpec, "coordinator", job.key, uuid.NewString(), map[string]any{"spec": json.RawMessage(body)})
	envelope, err := json.Marshal(event)
	if err != nil {
		k.breaker.RecordFailure()
		k.failed.Add(1)
		job.result <- err
		return
	}

	var lastErr error
retry:
	for attempt := 0; attempt <= defaultMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retry
			case <-time.After(backoff.Exponential(attempt, nil)):
			}
		}

		lastErr = k.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(job.key),
			Value: envelope,
		})
		if lastErr == nil {
			break
		}
	}

	if lastErr != nil {
		k.breaker.RecordFailure()
		k.failed.Add(1)
		k.logger.Warn("Spec publish failed after retries", "key", job.key, "error", lastErr)
		job.result <- lastErr
		return
	}

	k.breaker.RecordSuccess()
	k.delivered.Add(1)
	job.result <- nil
}

// ConsumeAcks reads the ack topic until ctx is cancelled, unwrapping each
// CloudEvent and handing the decoded AckRecord to handler. Malformed
// records are logged and skipped: ack input arrives from ingestion jobs,
// an untrusted boundary, and must never crash the consumer loop.
func (k *Kafka) ConsumeAcks(ctx context.Context, handler func(AckRecord)) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			k.logger.Warn("Ack read failed", "error", err)
			continue
		}

		var event cloudevent.CloudEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			k.logger.Warn("Discarding malformed ack envelope", "error", err)
			continue
		}
		if event.Type != eventTypeAck {
			continue
		}

		record, err := decodeAck(event, string(msg.Key))
		if err != nil {
			k.logger.Warn("Discarding malformed ack payload", "error", err)
			continue
		}

		handler(record)
	}
}

func decodeAck(event cloudevent.CloudEvent, key string) (AckRecord, error) {
	versionRaw, ok := event.Data["featureSetVersion"]
	if !ok {
		return AckRecord{}, apperrors.Validation("featureSetVersion", "missing ack field")
	}
	version, ok := versionRaw.(float64)
	if !ok {
		return AckRecord{}, apperrors.Validation("featureSetVersion", "not a number")
	}

	jobID, _ := event.Data["jobName"].(string)
	if jobID == "" {
		return AckRecord{}, apperrors.Validation("jobName", "missing ack field")
	}

	return AckRecord{
		FeatureSetRef:     key,
		FeatureSetVersion: int(version),
		JobID:             jobID,
	}, nil
}

func (k *Kafka) Ready(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.cfg.Brokers[0])
	if err != nil {
		return apperrors.Internal("specbus.ready", err)
	}
	return conn.Close()
}

func (k *Kafka) Close(ctx context.Context) error {
	if k.closed.Swap(true) {
		return nil
	}

	close(k.shutdown)

	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		k.logger.Warn("Spec bus shutdown timed out", "remaining", len(k.queue))
	}

	if err := k.writer.Close(); err != nil {
		k.logger.Warn("Failed to close Kafka writer", "error", err)
	}
	if err := k.reader.Close(); err != nil {
		k.logger.Warn("Failed to close Kafka reader", "error", err)
	}
	return ctx.Err()
}

func (k *Kafka) Stats() Stats {
	return Stats{
		QueueDepth: len(k.queue),
		Queued:     k.queued.Load(),
		Delivered:  k.delivered.Load(),
		Failed:     k.failed.Load(),
		Dropped:    k.dropped.Load(),
	}
}

var _ SpecBus = (*Kafka)(nil)
