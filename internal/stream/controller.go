// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrControllerClosed is returned once Close has run.
	ErrControllerClosed = errors.New("stream controller closed")
	// ErrEmptyURL is returned by Start for a blank stream URL.
	ErrEmptyURL = errors.New("stream url is empty")
)

// Config tunes a Controller.
type Config struct {
	RetryBase        time.Duration // backoff base (default 1s)
	RetryCapExponent int           // backoff exponent cap; 0 keeps every delay at RetryBase, negative means 5
	StaleAfter       time.Duration // Live without progress for this long becomes Buffering (default 8s)
	HealthInterval   time.Duration // staleness tick (default 2s)

	Clock      Clock
	NewDecoder DecoderFactory
	Sink       io.Writer // where decoded media goes (default io.Discard)
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		RetryBase:        time.Second,
		RetryCapExponent: 5,
		StaleAfter:       8 * time.Second,
		HealthInterval:   2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RetryBase <= 0 {
		c.RetryBase = def.RetryBase
	}
	if c.RetryCapExponent < 0 {
		c.RetryCapExponent = def.RetryCapExponent
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = def.StaleAfter
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = def.HealthInterval
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	if c.Sink == nil {
		c.Sink = io.Discard
	}
	return c
}

// Controller manages one stream session at a time.
type Controller struct {
	cfg    Config
	clock  Clock
	logger zerolog.Logger

	box       *mailbox
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the loop goroutine.
	exiting     bool
	gen         uint64
	active      bool
	sessionID   string
	url         string
	status      Status
	errMsg      string
	lastDataAt  time.Time
	retryCount  int
	visible     bool
	decoder     Decoder
	retryTimer  Timer
	retrySeq    uint64
	retryDelay  time.Duration
	healthTimer Timer

	snapMu sync.RWMutex
	snap   Snapshot

	subMu   sync.Mutex
	subs    map[int]chan Transition
	nextSub int
}

// New creates a Controller and starts its event loop. Call Close to release it.
func New(cfg Config) *Controller {
	if cfg.NewDecoder == nil {
		panic("invariant violation: decoder factory is nil in stream.New")
	}
	cfg = cfg.withDefaults()

	c := &Controller{
		cfg:     cfg,
		clock:   cfg.Clock,
		logger:  xglog.WithComponent("stream"),
		box:     newMailbox(),
		done:    make(chan struct{}),
		status:  StatusConnecting,
		visible: true,
		subs:    make(map[int]chan Transition),
	}
	c.refreshSnapshot()
	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.done)
	for range c.box.notify {
		for _, fn := range c.box.drain() {
			fn()
			c.refreshSnapshot()
			if c.exiting {
				c.box.close()
				c.closeSubscribers()
				return
			}
		}
	}
}

func (c *Controller) post(fn func()) bool {
	return c.box.post(fn)
}

// Start begins a new session for url, tearing down any previous one.
func (c *Controller) Start(url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return ErrEmptyURL
	}
	if !c.post(func() { c.startSession(url) }) {
		return ErrControllerClosed
	}
	return nil
}

// Stop cancels all timers, releases the decoder and ends the session. Idempotent.
func (c *Controller) Stop() {
	c.post(func() { c.teardown(ReasonStop) })
}

// SetVisible reports whether the consuming surface is in the foreground.
func (c *Controller) SetVisible(visible bool) {
	c.post(func() { c.handleVisibility(visible) })
}

// Retry forces an immediate reconnect attempt, bypassing backoff.
func (c *Controller) Retry() {
	c.post(c.handleManualRetry)
}

// ReportProgress folds a surface-level progress notification into the current session.
func (c *Controller) ReportProgress() {
	c.post(func() {
		if c.active {
			c.handleProgress()
		}
	})
}

// ReportError folds a surface-level fault into the current session.
func (c *Controller) ReportError(kind ErrorKind, fatal bool, detail string) {
	c.post(func() {
		if c.active {
			c.handleError(kind, fatal, detail)
		}
	})
}

// CheckStaleness runs one staleness check outside the periodic tick.
func (c *Controller) CheckStaleness() {
	c.post(func() {
		if c.active {
			c.checkStaleness()
		}
	})
}

// Snapshot returns the state as of the last applied event.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// Flush waits until every event posted before the call has been applied.
// It must not be called from a Reporter callback.
func (c *Controller) Flush(ctx context.Context) error {
	applied := make(chan struct{})
	if !c.post(func() { close(applied) }) {
		return ErrControllerClosed
	}
	select {
	case <-applied:
		return nil
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the session and the event loop. Subscriber channels are closed.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		if !c.post(func() {
			c.teardown(ReasonStop)
			c.exiting = true
		}) {
			return
		}
		<-c.done
	})
}

// Subscribe returns a channel of transitions and a cancel func.
// Delivery never blocks the loop: when the buffer is full the transition is dropped.
func (c *Controller) Subscribe(buffer int) (<-chan Transition, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Transition, buffer)

	c.subMu.Lock()
	if c.subs == nil {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.subs = nil
}

func (c *Controller) notify(t Transition) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- t:
		default:
			metrics.IncStreamSubscriberDrop()
		}
	}
}

// --- loop-owned handlers ---

func (c *Controller) startSession(url string) {
	if c.active {
		c.teardown(ReasonStop)
	}

	c.gen++
	c.active = true
	c.sessionID = uuid.NewString()
	c.url = url
	c.retryCount = 0
	c.lastDataAt = time.Time{}

	dec := c.cfg.NewDecoder(sessionReporter{c: c, gen: c.gen})
	c.decoder = dec

	c.logger.Info().
		Str(xglog.FieldEvent, "stream.session_started").
		Str(xglog.FieldSessionID, c.sessionID).
		Str(xglog.FieldURL, url).
		Uint64(xglog.FieldGeneration, c.gen).
		Msg("stream session started")

	c.transition(StatusConnecting, "", ReasonStart)

	dec.AttachSink(c.cfg.Sink)
	dec.LoadSource(url)
	dec.StartLoad()
	c.scheduleHealthCheck()
}

func (c *Controller) teardown(reason string) {
	if !c.active {
		return
	}
	c.cancelRetry()
	if c.healthTimer != nil {
		c.healthTimer.Stop()
		c.healthTimer = nil
	}
	if dec := c.decoder; dec != nil {
		c.decoder = nil
		dec.StopLoad()
		dec.Destroy()
	}
	c.active = false
	// Bump the generation so callbacks from the released decoder are ignored.
	c.gen++

	c.logger.Info().
		Str(xglog.FieldEvent, "stream.session_stopped").
		Str(xglog.FieldSessionID, c.sessionID).
		Str(xglog.FieldURL, c.url).
		Msg("stream session stopped")

	now := c.clock.Now()
	c.refreshSnapshot()
	c.notify(Transition{From: c.status, To: c.status, Reason: reason, At: now, Snapshot: c.Snapshot()})
	metrics.SetStreamStatus("")
}

// transition applies a status change. While hidden every target collapses to
// Paused, which never carries a message.
func (c *Controller) transition(to Status, msg, reason string) {
	if !c.visible {
		to = StatusPaused
	}
	if to == StatusPaused {
		msg = ""
	}
	from := c.status
	c.status = to
	c.errMsg = msg

	if from != to {
		c.logger.Info().
			Str(xglog.FieldEvent, "stream.status_changed").
			Str(xglog.FieldSessionID, c.sessionID).
			Str(xglog.FieldOldState, string(from)).
			Str(xglog.FieldNewState, string(to)).
			Str("reason", reason).
			Str(xglog.FieldDetail, msg).
			Msg("stream status changed")
		metrics.RecordStreamTransition(string(from), string(to), reason)
	}
	metrics.SetStreamStatus(string(to))

	now := c.clock.Now()
	c.refreshSnapshot()
	c.notify(Transition{From: from, To: to, Reason: reason, At: now, Snapshot: c.Snapshot()})
}

func (c *Controller) handleProgress() {
	c.lastDataAt = c.clock.Now()
	c.retryCount = 0
	c.cancelRetry()
	metrics.IncStreamProgress()

	if (c.status == StatusLive || c.status == StatusPaused) && c.errMsg == "" {
		return
	}
	c.transition(StatusLive, "", ReasonProgress)
}

func (c *Controller) handleError(kind ErrorKind, fatal bool, detail string) {
	metrics.IncStreamDecoderError(string(kind), fatal)

	evt := c.logger.Debug()
	if fatal {
		evt = c.logger.Warn()
	}
	evt.
		Str(xglog.FieldEvent, "stream.decoder_error").
		Str(xglog.FieldSessionID, c.sessionID).
		Str(xglog.FieldErrorKind, string(kind)).
		Bool(xglog.FieldFatal, fatal).
		Str(xglog.FieldDetail, detail).
		Msg("decoder reported an error")

	if !fatal {
		return
	}

	switch kind {
	case ErrorNetwork:
		delay := RetryDelay(c.cfg.RetryBase, c.retryCount, c.cfg.RetryCapExponent)
		c.retryCount++
		c.scheduleRetry(delay)
		c.transition(StatusBuffering, retryPendingMessage(delay), ReasonNetworkError)
	case ErrorMedia:
		c.transition(StatusBuffering, msgRecovering, ReasonMediaError)
		c.decoder.RecoverMediaError()
	case ErrorUnsupported:
		c.cancelRetry()
		c.transition(StatusError, unsupportedMessage(detail), ReasonUnsupported)
	default:
		c.transition(StatusBuffering, msgWaiting, ReasonOtherError)
	}
}

func (c *Controller) scheduleRetry(delay time.Duration) {
	c.cancelRetry()
	gen, seq := c.gen, c.retrySeq
	c.retryDelay = delay
	c.retryTimer = c.clock.AfterFunc(delay, func() {
		c.post(func() { c.fireRetry(gen, seq) })
	})
	metrics.ObserveStreamRetryDelay(delay)

	c.logger.Info().
		Str(xglog.FieldEvent, "stream.retry_scheduled").
		Str(xglog.FieldSessionID, c.sessionID).
		Int(xglog.FieldRetryCount, c.retryCount).
		Dur(xglog.FieldDelay, delay).
		Msg("reconnect scheduled")
}

// cancelRetry stops the pending retry timer and invalidates a callback
// that may already sit in the mailbox.
func (c *Controller) cancelRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retrySeq++
	c.retryDelay = 0
}

func (c *Controller) fireRetry(gen, seq uint64) {
	if gen != c.gen || !c.active || seq != c.retrySeq {
		metrics.IncStreamStaleCallback("retry_timer")
		return
	}
	c.retryTimer = nil
	c.retryDelay = 0
	metrics.IncStreamRetry("backoff")

	c.logger.Info().
		Str(xglog.FieldEvent, "stream.retry_fired").
		Str(xglog.FieldSessionID, c.sessionID).
		Int(xglog.FieldRetryCount, c.retryCount).
		Msg("resuming load after backoff")
	c.decoder.StartLoad()
}

func (c *Controller) scheduleHealthCheck() {
	gen := c.gen
	c.healthTimer = c.clock.AfterFunc(c.cfg.HealthInterval, func() {
		c.post(func() {
			if gen != c.gen || !c.active {
				return
			}
			c.checkStaleness()
			c.scheduleHealthCheck()
		})
	})
}

func (c *Controller) checkStaleness() {
	if c.status != StatusLive {
		return
	}
	if c.clock.Now().Sub(c.lastDataAt) < c.cfg.StaleAfter {
		return
	}
	metrics.IncStreamStall()
	c.transition(StatusBuffering, msgStale, ReasonStale)
}

func (c *Controller) handleVisibility(visible bool) {
	if c.visible == visible {
		return
	}
	c.visible = visible
	if !c.active {
		return
	}
	if !visible {
		c.transition(StatusPaused, "", ReasonHidden)
		return
	}
	if c.status == StatusLive {
		return
	}
	c.cancelRetry()
	c.transition(StatusConnecting, "", ReasonVisible)
	c.decoder.StartLoad()
}

func (c *Controller) handleManualRetry() {
	if !c.active {
		return
	}
	c.cancelRetry()
	metrics.IncStreamRetry("manual")
	c.transition(StatusConnecting, msgReconnecting, ReasonManualRetry)
	c.decoder.StartLoad()
}

func (c *Controller) refreshSnapshot() {
	s := Snapshot{
		SessionID:    c.sessionID,
		Generation:   c.gen,
		Active:       c.active,
		URL:          c.url,
		Status:       c.status,
		ErrorMessage: c.errMsg,
		LastDataAt:   c.lastDataAt,
		RetryCount:   c.retryCount,
		Visible:      c.visible,
		RetryPending: c.retryTimer != nil,
		RetryDelay:   c.retryDelay,
		UpdatedAt:    c.clock.Now(),
	}
	c.snapMu.Lock()
	c.snap = s
	c.snapMu.Unlock()
}

// sessionReporter binds decoder callbacks to the generation that created them.
type sessionReporter struct {
	c   *Controller
	gen uint64
}

func (r sessionReporter) current(kind string) bool {
	if r.gen != r.c.gen || !r.c.active {
		metrics.IncStreamStaleCallback(kind)
		return false
	}
	return true
}

func (r sessionReporter) ManifestLoaded() {
	r.c.post(func() {
		if !r.current("manifest") {
			return
		}
		r.c.logger.Debug().
			Str(xglog.FieldEvent, "stream.manifest_loaded").
			Str(xglog.FieldSessionID, r.c.sessionID).
			Msg("manifest loaded")
	})
}

func (r sessionReporter) Progress() {
	r.c.post(func() {
		if r.current("progress") {
			r.c.handleProgress()
		}
	})
}

func (r sessionReporter) Error(kind ErrorKind, fatal bool, detail string) {
	r.c.post(func() {
		if r.current("error") {
			r.c.handleError(kind, fatal, detail)
		}
	})
}
