package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/metrics"
)

// Dispatch outcomes recorded per alert and per endpoint.
const (
	OutcomeDelivered      = "delivered"
	OutcomeFailed         = "failed"
	OutcomeShortCircuited = "short_circuited"
)

var (
	errCircuitOpen = errors.New("circuit open")
	errQueueFull   = errors.New("dispatch queue full")
)

// DispatchRecorder receives the delivery outcome for each alert and channel.
// *alert.Manager satisfies it.
type DispatchRecorder interface {
	RecordDispatch(alertID, channel string, rec alert.DispatchRecord) error
}

// Config holds dispatcher-wide settings. Per-endpoint retry policy lives on
// the endpoint itself.
type Config struct {
	// AttemptTimeout bounds one HTTP attempt, default 10s.
	AttemptTimeout time.Duration
	// QueueDepth is the per-endpoint buffered queue size, default 256.
	// Events that arrive with the queue full fail immediately and are
	// recorded, so the alert pipeline never blocks on a slow sink.
	QueueDepth int
}

func (c Config) withDefaults() Config {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 256
	}
	return c
}

type job struct {
	alertID    string
	event      alert.EventType
	body       []byte
	enqueuedAt time.Time
}

// endpointRunner is the per-endpoint dispatch state: a FIFO queue drained by
// one goroutine, a circuit breaker, and cumulative stats.
type endpointRunner struct {
	ep      Endpoint
	queue   chan job
	breaker *breaker

	mu    sync.Mutex
	stats Stats
}

// Notifier owns all endpoint runners and fans alert events out to them.
type Notifier struct {
	cfg      Config
	logger   *slog.Logger
	recorder DispatchRecorder
	client   *http.Client
	runners  []*endpointRunner
	seq      atomic.Uint64
	now      func() time.Time
}

// New builds a Notifier for the given endpoints. The recorder may be nil
// when dispatch records are not persisted.
func New(cfg Config, endpoints []Endpoint, recorder DispatchRecorder, logger *slog.Logger) (*Notifier, error) {
	cfg = cfg.withDefaults()
	n := &Notifier{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		client:   &http.Client{Timeout: cfg.AttemptTimeout},
		now:      time.Now,
	}
	for _, ep := range endpoints {
		if err := ep.validate(); err != nil {
			return nil, err
		}
		ep.Retry = ep.Retry.withDefaults()
		n.runners = append(n.runners, &endpointRunner{
			ep:      ep,
			queue:   make(chan job, cfg.QueueDepth),
			breaker: newBreaker(func() time.Time { return n.now() }),
		})
	}
	return n, nil
}

// Run starts one dispatcher goroutine per enabled endpoint and blocks until
// ctx is cancelled and all of them have stopped.
func (n *Notifier) Run(ctx context.Context) {
	var wg sync.WaitGroup
	started := 0
	for _, r := range n.runners {
		if !r.ep.Enabled {
			continue
		}
		started++
		wg.Add(1)
		go func(r *endpointRunner) {
			defer wg.Done()
			n.runLoop(ctx, r)
		}(r)
	}
	n.logger.Info("notification dispatcher started", "endpoints", started)
	wg.Wait()
}

func (n *Notifier) runLoop(ctx context.Context, r *endpointRunner) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-r.queue:
			n.deliver(ctx, r, j)
		}
	}
}

// HandleAlertEvent enqueues the event for every enabled endpoint whose
// filters match. Closed alerts are not dispatched.
func (n *Notifier) HandleAlertEvent(e alert.Event) {
	if e.Type == alert.EventClosed {
		return
	}
	for _, r := range n.runners {
		if !r.ep.Enabled || !r.ep.Filters.matches(e.Alert) {
			continue
		}
		body, err := buildPayload(r.ep, e, n.seq.Add(1))
		if err != nil {
			n.logger.Error("payload build failed", "endpoint", r.ep.ID, "error", err)
			continue
		}
		j := job{alertID: e.Alert.ID, event: e.Type, body: body, enqueuedAt: n.now()}
		select {
		case r.queue <- j:
		default:
			n.finish(r, j, OutcomeFailed, 0, errQueueFull, 0)
		}
	}
}

// deliver runs the retry loop for one queued dispatch. Every attempt asks
// the breaker first, so a breaker that trips mid-dispatch also stops the
// remaining retries.
func (n *Notifier) deliver(ctx context.Context, r *endpointRunner, j job) {
	start := time.Now()
	backoff := time.Duration(r.ep.Retry.BaseBackoff)
	var lastErr error

	attempts := 0
	for attempts < r.ep.Retry.MaxAttempts {
		if !r.breaker.allow() {
			if attempts == 0 {
				n.finish(r, j, OutcomeShortCircuited, 0, errCircuitOpen, time.Since(start))
			} else {
				n.finish(r, j, OutcomeFailed, attempts, lastErr, time.Since(start))
			}
			return
		}
		attempts++
		err := n.post(ctx, r.ep, j.body)
		if err == nil {
			r.breaker.success()
			n.finish(r, j, OutcomeDelivered, attempts, nil, time.Since(start))
			return
		}
		lastErr = err
		r.breaker.failure()
		if attempts < r.ep.Retry.MaxAttempts {
			if sleepCtx(ctx, backoff) != nil {
				break
			}
			backoff *= 2
		}
	}
	n.finish(r, j, OutcomeFailed, attempts, lastErr, time.Since(start))
}

func (n *Notifier) post(ctx context.Context, ep Endpoint, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	ep.Auth.apply(req, body)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) finish(r *endpointRunner, j job, outcome string, attempts int, err error, took time.Duration) {
	errText := ""
	if err != nil {
		errText = err.Error()
	}

	r.mu.Lock()
	r.stats.Sent++
	if outcome == OutcomeDelivered {
		r.stats.Succeeded++
	} else {
		r.stats.Failed++
		r.stats.LastError = errText
	}
	r.mu.Unlock()

	metrics.RecordDispatch(r.ep.Type, outcome, took)
	metrics.SetBreakerState(r.ep.ID, float64(r.breaker.current()))

	if n.recorder != nil && j.alertID != "" {
		rec := alert.DispatchRecord{Outcome: outcome, Attempts: attempts, Error: errText, At: n.now()}
		if recErr := n.recorder.RecordDispatch(j.alertID, r.ep.ID, rec); recErr != nil {
			n.logger.Warn("dispatch record not stored",
				"alert", j.alertID, "endpoint", r.ep.ID, "error", recErr)
		}
	}

	if outcome == OutcomeDelivered {
		n.logger.Info("dispatch delivered",
			"endpoint", r.ep.ID, "alert", j.alertID, "event", string(j.event), "attempts", attempts)
		return
	}
	n.logger.Warn("dispatch not delivered",
		"endpoint", r.ep.ID, "alert", j.alertID, "event", string(j.event),
		"outcome", outcome, "attempts", attempts, "error", errText)
}

// Stats returns a snapshot of per-endpoint delivery stats keyed by id.
func (n *Notifier) Stats() map[string]Stats {
	out := make(map[string]Stats, len(n.runners))
	for _, r := range n.runners {
		r.mu.Lock()
		out[r.ep.ID] = r.stats
		r.mu.Unlock()
	}
	return out
}

// Endpoints returns the configured endpoints in config order.
func (n *Notifier) Endpoints() []Endpoint {
	out := make([]Endpoint, len(n.runners))
	for i, r := range n.runners {
		out[i] = r.ep
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
