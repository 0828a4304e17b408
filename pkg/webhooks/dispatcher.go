package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/deskforge/deskforge/pkg/async"
	"github.com/deskforge/deskforge/pkg/observability"
)

const truncationSuffix = "... (truncated)"

// SubscriberSource resolves which subscriptions match an event
type SubscriberSource interface {
	ListActive(ctx context.Context, appCode string, trigger TriggerType) ([]*Webhook, error)
}

// DeliveryRecorder persists one row per delivery attempt
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, log *DeliveryLog) error
}

// DispatcherConfig holds dispatch settings
type DispatcherConfig struct {
	// DeliveryTimeout bounds each individual POST. Defaults to 10s.
	DeliveryTimeout time.Duration
	// PoolSize is the number of dispatch workers. Defaults to 16.
	PoolSize int
	// MaxConcurrentDeliveries bounds in-flight POSTs across all
	// events. Defaults to 4x PoolSize.
	MaxConcurrentDeliveries int64
	// MaxResponseBody is the stored response body limit in bytes.
	// Longer bodies are truncated with a marker suffix. Defaults to
	// 1000.
	MaxResponseBody int
	Metrics         *observability.Metrics
}

// Dispatcher fans events out to matched webhooks. Fire is
// fire-and-forget: it hands the event to a detached worker and
// returns, so a slow or dead endpoint can never block or fail the
// mutation that triggered it.
type Dispatcher struct {
	source   SubscriberSource
	recorder DeliveryRecorder
	client   *http.Client
	pool     *async.WorkerPool
	sem      *semaphore.Weighted
	timeout  time.Duration
	maxBody  int
	metrics  *observability.Metrics
	logger   *observability.Logger
}

func NewDispatcher(source SubscriberSource, recorder DeliveryRecorder, cfg DispatcherConfig, logger *observability.Logger) *Dispatcher {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 16
	}
	if cfg.MaxConcurrentDeliveries <= 0 {
		cfg.MaxConcurrentDeliveries = int64(cfg.PoolSize) * 4
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = 1000
	}

	// Pool timeout covers the whole fan-out of one event, not a
	// single POST; matched deliveries run concurrently so the fan-out
	// is bounded by the slowest delivery plus queueing.
	poolTimeout := cfg.DeliveryTimeout * 3

	return &Dispatcher{
		source:   source,
		recorder: recorder,
		client:   &http.Client{Timeout: cfg.DeliveryTimeout},
		pool:     async.NewWorkerPool(cfg.PoolSize, "webhook-dispatch", poolTimeout, logger),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentDeliveries),
		timeout:  cfg.DeliveryTimeout,
		maxBody:  cfg.MaxResponseBody,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Fire dispatches an event asynchronously. It never returns an error
// and never blocks on delivery; failures surface only in delivery
// logs and operational logging.
func (d *Dispatcher) Fire(event Event) {
	payload := buildPayload(event)

	if d.metrics != nil {
		d.metrics.WebhookDispatchBacklog.Inc()
	}
	err := d.pool.Submit(func(ctx context.Context) error {
		d.dispatch(ctx, event, payload)
		return nil
	})
	if err != nil {
		// Shutdown race: the mutation already succeeded, so the only
		// honest option is to log the dropped event.
		if d.metrics != nil {
			d.metrics.WebhookDispatchBacklog.Dec()
		}
		d.logger.WithFields(map[string]interface{}{
			"app":     event.AppCode,
			"trigger": string(event.Trigger),
		}).WithError(err).Warn("webhook event dropped")
	}
}

// Shutdown drains in-flight dispatches
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	return d.pool.Shutdown(timeout)
}

func buildPayload(event Event) *Payload {
	p := &Payload{
		Event:     event.Trigger,
		App:       PayloadApp{ID: event.AppID, Code: event.AppCode},
		Record:    event.Record,
		Extra:     event.Extra,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if event.RecordID != "" {
		p.RecordID = &event.RecordID
	}
	if event.Actor.UserID != "" {
		p.Actor = &event.Actor.UserID
	}
	return p
}

func (d *Dispatcher) dispatch(ctx context.Context, event Event, payload *Payload) {
	if d.metrics != nil {
		defer d.metrics.WebhookDispatchBacklog.Dec()
	}

	hooks, err := d.source.ListActive(ctx, event.AppCode, event.Trigger)
	if err != nil {
		d.logger.WithFields(map[string]interface{}{
			"app":     event.AppCode,
			"trigger": string(event.Trigger),
		}).WithError(err).Error("failed to resolve webhook subscriptions")
		return
	}
	if len(hooks) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.WithError(err).Error("failed to encode webhook payload")
		return
	}

	// Each matched webhook gets its own timeout and its own log row;
	// one endpoint timing out must not delay or suppress the others.
	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(hook *Webhook) {
			defer wg.Done()
			defer observability.RecoverPanic(d.logger.WithField("webhook", hook.ID), "webhook-delivery")

			if err := d.sem.Acquire(ctx, 1); err != nil {
				d.logFailure(hook, event, body, 0, fmt.Sprintf("delivery slot unavailable: %v", err))
				return
			}
			defer d.sem.Release(1)

			d.deliver(hook, event, body)
		}(hook)
	}
	wg.Wait()
}

// deliver POSTs one payload to one endpoint and records the outcome.
// It uses a fresh context so sibling deliveries and pool timeouts
// cannot cut an in-progress request short of its own timeout.
func (d *Dispatcher) deliver(hook *Webhook, event Event, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		d.logFailure(hook, event, body, time.Since(start), fmt.Sprintf("invalid request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		d.logFailure(hook, event, body, elapsed, err.Error())
		return
	}
	defer resp.Body.Close()

	respBody := d.readLimited(resp.Body)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	status := resp.StatusCode
	log := &DeliveryLog{
		WebhookID:      hook.ID,
		AppCode:        event.AppCode,
		TriggerType:    event.Trigger,
		URL:            hook.URL,
		Payload:        string(body),
		Success:        success,
		ResponseStatus: &status,
		ResponseBody:   &respBody,
		Duration:       elapsed.Milliseconds(),
	}
	d.record(log)
	d.observe(event.Trigger, success, elapsed)
}

func (d *Dispatcher) logFailure(hook *Webhook, event Event, body []byte, elapsed time.Duration, message string) {
	log := &DeliveryLog{
		WebhookID:    hook.ID,
		AppCode:      event.AppCode,
		TriggerType:  event.Trigger,
		URL:          hook.URL,
		Payload:      string(body),
		Success:      false,
		ErrorMessage: &message,
		Duration:     elapsed.Milliseconds(),
	}
	d.record(log)
	d.observe(event.Trigger, false, elapsed)
}

// record persists a delivery log row. A failed write is operational
// noise, never a delivery failure.
func (d *Dispatcher) record(log *DeliveryLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.recorder.RecordDelivery(ctx, log); err != nil {
		d.logger.WithFields(map[string]interface{}{
			"webhook": log.WebhookID,
			"app":     log.AppCode,
		}).WithError(err).Error("failed to write delivery log")
	}
}

func (d *Dispatcher) readLimited(r io.Reader) string {
	limited, err := io.ReadAll(io.LimitReader(r, int64(d.maxBody)+1))
	if err != nil {
		return fmt.Sprintf("(unreadable response body: %v)", err)
	}
	if len(limited) <= d.maxBody {
		return string(limited)
	}
	// Never cut a multibyte rune in half; back up to a rune start.
	cut := d.maxBody
	for cut > 0 && !utf8.RuneStart(limited[cut]) {
		cut--
	}
	return string(limited[:cut]) + truncationSuffix
}

func (d *Dispatcher) observe(trigger TriggerType, success bool, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.ObserveWebhookDelivery(string(trigger), success, elapsed)
}
