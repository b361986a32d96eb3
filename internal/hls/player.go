// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/metrics"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 64 << 20

// Details passed to Reporter.Error.
const (
	DetailManifestLoad    = "manifestLoadError"
	DetailLevelLoad       = "levelLoadError"
	DetailFragLoad        = "fragLoadError"
	DetailManifestInvalid = "manifestIncompatible"
	DetailKeySystem       = "keySystemUnsupported"
	DetailLevelParsing    = "levelParsingError"
	DetailBufferAppend    = "bufferAppendError"
	DetailStreamEnded     = "streamEnded"
)

// Options tunes a Player.
type Options struct {
	Client               *http.Client
	RequestTimeout       time.Duration // per HTTP request (default 5s)
	SegmentRetries       int           // non-fatal segment failures before the error turns fatal
	MaxRequestsPerSecond float64       // 0 disables pacing
	MinPollInterval      time.Duration // floor for targetDuration/2 (default 500ms)
	PollInterval         time.Duration // fixed reload interval; 0 derives it from the playlist
	LiveEdgeSegments     int           // segments played from the end on a fresh load (default 3)
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 5 * time.Second
	}
	if o.SegmentRetries < 0 {
		o.SegmentRetries = 0
	}
	if o.MinPollInterval <= 0 {
		o.MinPollInterval = 500 * time.Millisecond
	}
	if o.LiveEdgeSegments <= 0 {
		o.LiveEdgeSegments = 3
	}
	return o
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

type decodeError struct {
	kind   stream.ErrorKind
	detail string
	err    error
}

func (e *decodeError) Error() string {
	if e.err == nil {
		return e.detail
	}
	return e.detail + ": " + e.err.Error()
}

func (e *decodeError) Unwrap() error { return e.err }

// Player follows a live HLS playlist over HTTP and writes segment bytes to
// its sink. It implements stream.Decoder; all events go to the Reporter.
type Player struct {
	opts    Options
	rep     stream.Reporter
	logger  zerolog.Logger
	limiter *rate.Limiter
	wake    chan struct{}

	mu        sync.Mutex
	source    string
	mediaURL  string
	sink      io.Writer
	lastSeq   uint64
	haveSeq   bool
	announced bool
	destroyed bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPlayer returns an idle Player reporting to rep.
func NewPlayer(opts Options, rep stream.Reporter) *Player {
	opts = opts.withDefaults()
	p := &Player{
		opts:   opts,
		rep:    rep,
		logger: xglog.WithComponent("hls"),
		wake:   make(chan struct{}, 1),
		sink:   io.Discard,
	}
	if opts.MaxRequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.MaxRequestsPerSecond), 1)
	}
	return p
}

// Factory adapts NewPlayer to stream.DecoderFactory.
func Factory(opts Options) stream.DecoderFactory {
	return func(rep stream.Reporter) stream.Decoder {
		return NewPlayer(opts, rep)
	}
}

func (p *Player) LoadSource(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = url
	p.mediaURL = ""
	p.haveSeq = false
	p.announced = false
}

func (p *Player) AttachSink(sink io.Writer) {
	if sink == nil {
		sink = io.Discard
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// StartLoad starts the polling loop, or forces an immediate reload when it is running.
func (p *Player) StartLoad() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	if p.cancel != nil {
		select {
		case p.wake <- struct{}{}:
		default:
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	prev := p.done
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go p.run(ctx, cancel, prev, done)
}

// StopLoad stops polling. It does not wait for an in-flight request.
func (p *Player) StopLoad() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// RecoverMediaError drops the selected variant and sequence position and
// reloads from the master playlist at the live edge.
func (p *Player) RecoverMediaError() {
	p.mu.Lock()
	p.mediaURL = ""
	p.haveSeq = false
	p.mu.Unlock()

	p.logger.Info().Str(xglog.FieldEvent, "hls.media_recover").Str(xglog.FieldURL, p.sourceURL()).Msg("recovering from media error")
	p.StartLoad()
}

// Destroy stops the loop and waits for it. No events are reported afterwards.
func (p *Player) Destroy() {
	p.mu.Lock()
	p.destroyed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	done := p.done
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (p *Player) sourceURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

func (p *Player) run(ctx context.Context, cancel context.CancelFunc, prev, done chan struct{}) {
	defer close(done)
	defer cancel()
	defer p.finish(done)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	for {
		wait, derr := p.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if derr != nil {
			// Mark the loop stopped first so a StartLoad reacting to the
			// error starts a fresh loop instead of waking this one.
			p.finish(done)
			p.fail(ctx, derr)
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// finish marks the loop as stopped unless a newer one already replaced it.
func (p *Player) finish(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == done {
		p.cancel = nil
	}
}

func (p *Player) poll(ctx context.Context) (time.Duration, *decodeError) {
	p.mu.Lock()
	target, isMedia := p.mediaURL, p.mediaURL != ""
	if !isMedia {
		target = p.source
	}
	p.mu.Unlock()

	loadDetail := DetailManifestLoad
	if isMedia {
		loadDetail = DetailLevelLoad
	}
	if target == "" {
		return 0, &decodeError{kind: stream.ErrorNetwork, detail: loadDetail, err: errors.New("no source loaded")}
	}

	body, err := p.get(ctx, target)
	if err != nil {
		metrics.IncHLSPlaylistFetch(fetchOutcome(err))
		return 0, &decodeError{kind: stream.ErrorNetwork, detail: loadDetail, err: err}
	}

	pl, err := Parse(body)
	switch {
	case errors.Is(err, ErrNotM3U8):
		metrics.IncHLSPlaylistFetch("parse_error")
		return 0, &decodeError{kind: stream.ErrorUnsupported, detail: DetailManifestInvalid, err: err}
	case errors.Is(err, ErrUnsupportedEncryption):
		metrics.IncHLSPlaylistFetch("parse_error")
		return 0, &decodeError{kind: stream.ErrorUnsupported, detail: DetailKeySystem, err: err}
	case err != nil:
		metrics.IncHLSPlaylistFetch("parse_error")
		return 0, &decodeError{kind: stream.ErrorMedia, detail: DetailLevelParsing, err: err}
	}
	metrics.IncHLSPlaylistFetch("ok")

	if pl.Master {
		v, _ := pl.BestVariant()
		u, err := ResolveURI(target, v.URI)
		if err != nil {
			return 0, &decodeError{kind: stream.ErrorUnsupported, detail: DetailManifestInvalid, err: err}
		}
		p.mu.Lock()
		p.mediaURL = u
		p.mu.Unlock()

		p.logger.Info().
			Str(xglog.FieldEvent, "hls.variant_selected").
			Str(xglog.FieldURL, u).
			Int64("bandwidth", v.Bandwidth).
			Str("resolution", v.Resolution).
			Msg("selected highest bandwidth variant")
		p.announce(ctx)
		return 0, nil
	}

	if _, err := Truth(pl); err != nil {
		return 0, &decodeError{kind: stream.ErrorMedia, detail: DetailLevelParsing, err: err}
	}
	p.mu.Lock()
	if p.mediaURL == "" {
		p.mediaURL = target
	}
	p.mu.Unlock()
	p.announce(ctx)

	for _, seg := range p.pending(pl) {
		if derr := p.deliver(ctx, target, seg); derr != nil {
			return 0, derr
		}
	}

	if pl.Ended && p.caughtUp(pl) {
		return 0, &decodeError{kind: stream.ErrorOther, detail: DetailStreamEnded}
	}
	return p.interval(pl), nil
}

// pending returns the segments not yet delivered. A fresh load (or a
// sequence reset by the publisher) starts LiveEdgeSegments from the end.
func (p *Player) pending(pl *Playlist) []Segment {
	segs := pl.Segments
	if len(segs) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	last := segs[len(segs)-1].Sequence
	if p.haveSeq && last < p.lastSeq {
		p.logger.Warn().
			Str(xglog.FieldEvent, "hls.sequence_reset").
			Uint64("last_seq", p.lastSeq).
			Uint64("playlist_last_seq", last).
			Msg("media sequence went backwards, jumping to live edge")
		p.haveSeq = false
	}

	if !p.haveSeq {
		if pl.Ended {
			return segs
		}
		start := len(segs) - p.opts.LiveEdgeSegments
		if start < 0 {
			start = 0
		}
		return segs[start:]
	}

	if first := segs[0].Sequence; first > p.lastSeq+1 {
		p.logger.Warn().
			Str(xglog.FieldEvent, "hls.sequence_gap").
			Uint64("last_seq", p.lastSeq).
			Uint64("first_seq", first).
			Msg("segments expired before they were fetched")
	}
	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		if s.Sequence > p.lastSeq {
			out = append(out, s)
		}
	}
	return out
}

func (p *Player) caughtUp(pl *Playlist) bool {
	if len(pl.Segments) == 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.haveSeq && p.lastSeq >= pl.Segments[len(pl.Segments)-1].Sequence
}

func (p *Player) deliver(ctx context.Context, base string, seg Segment) *decodeError {
	u, err := ResolveURI(base, seg.URI)
	if err != nil {
		return &decodeError{kind: stream.ErrorMedia, detail: DetailLevelParsing, err: err}
	}

	var data []byte
	for attempt := 0; ; attempt++ {
		start := time.Now()
		data, err = p.get(ctx, u)
		if err == nil {
			metrics.ObserveHLSSegment("ok", int64(len(data)), time.Since(start))
			break
		}
		metrics.ObserveHLSSegment(fetchOutcome(err), 0, time.Since(start))
		if ctx.Err() != nil || attempt >= p.opts.SegmentRetries {
			return &decodeError{kind: stream.ErrorNetwork, detail: DetailFragLoad, err: err}
		}
		p.logger.Debug().
			Str(xglog.FieldEvent, "hls.segment_retry").
			Str(xglog.FieldURL, u).
			Int("attempt", attempt+1).
			Err(err).
			Msg("segment fetch failed, retrying")
		p.emitError(ctx, stream.ErrorNetwork, false, DetailFragLoad)
	}

	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if _, err := sink.Write(data); err != nil {
		return &decodeError{kind: stream.ErrorMedia, detail: DetailBufferAppend, err: err}
	}

	p.mu.Lock()
	p.lastSeq = seg.Sequence
	p.haveSeq = true
	p.mu.Unlock()

	p.logger.Debug().
		Str(xglog.FieldEvent, "hls.segment_buffered").
		Uint64(xglog.FieldSequence, seg.Sequence).
		Int("bytes", len(data)).
		Msg("segment buffered")
	p.emit(ctx, p.rep.Progress)
	return nil
}

func (p *Player) interval(pl *Playlist) time.Duration {
	if p.opts.PollInterval > 0 {
		return p.opts.PollInterval
	}
	d := pl.TargetDuration / 2
	if d < p.opts.MinPollInterval {
		d = p.opts.MinPollInterval
	}
	return d
}

func (p *Player) get(ctx context.Context, url string) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	rctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func fetchOutcome(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return "http_error"
	}
	return "transport_error"
}

func (p *Player) announce(ctx context.Context) {
	p.mu.Lock()
	first := !p.announced
	p.announced = true
	p.mu.Unlock()
	if first {
		p.emit(ctx, p.rep.ManifestLoaded)
	}
}

func (p *Player) fail(ctx context.Context, derr *decodeError) {
	p.logger.Warn().
		Str(xglog.FieldEvent, "hls.fatal").
		Str(xglog.FieldURL, p.sourceURL()).
		Str(xglog.FieldErrorKind, string(derr.kind)).
		Str(xglog.FieldDetail, derr.detail).
		Err(derr.err).
		Msg("loading stopped")
	p.emitError(ctx, derr.kind, true, derr.detail)
}

func (p *Player) emitError(ctx context.Context, kind stream.ErrorKind, fatal bool, detail string) {
	p.emit(ctx, func() { p.rep.Error(kind, fatal, detail) })
}

// emit drops events from a stopped loop or a destroyed player.
func (p *Player) emit(ctx context.Context, fn func()) {
	if ctx.Err() != nil {
		return
	}
	p.mu.Lock()
	destroyed := p.destroyed
	p.mu.Unlock()
	if !destroyed {
		fn()
	}
}
