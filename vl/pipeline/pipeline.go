// Package pipeline sends localization requests issued by the core to the localization service
// and reports the results back to it.
//
// Requests are handled on the caller's tick goroutine and sent from background workers. Their
// results are queued and only delivered to the core when the tick goroutine calls Poll, so the
// core is never entered from two goroutines at once.
package pipeline

import (
	"bytes"
	"context"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/arceye/vlsdk/camera"
	"github.com/arceye/vlsdk/native"
	"github.com/arceye/vlsdk/utils"
	"github.com/arceye/vlsdk/vl"
)

const (
	// DefaultCapacity is the number of POST requests allowed in flight.
	DefaultCapacity = 20

	// DefaultGracePeriod is how long the queue may stay full before it is cleared.
	DefaultGracePeriod = 5 * time.Second

	// DefaultRequestTimeout bounds a single HTTP exchange.
	DefaultRequestTimeout = 30 * time.Second

	maxConcurrentGets = 8
)

var (
	// ErrQueueFull is returned when a POST request arrives while the queue is at capacity.
	ErrQueueFull = errors.New("vl request queue is full")
	// ErrNetworkUnreachable is returned when the network is known to be down.
	ErrNetworkUnreachable = errors.New("network is disconnected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("request pipeline is closed")
)

// A Sink receives the service's answer to a request, keyed by the request's key.
type Sink interface {
	SendSuccessResponse(key int, body string)
	SendFailureResponse(key int, body string, status vl.ResponseStatus)
}

// An Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the wall clock used for the queue grace period.
func WithClock(clk clock.Clock) Option {
	return func(p *Pipeline) { p.clk = clk }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pipeline) { p.client = client }
}

// WithCapacity sets how many POST requests may be in flight.
func WithCapacity(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.capacity = n
		}
	}
}

// WithGracePeriod sets how long the queue may stay full before it is cleared.
func WithGracePeriod(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.grace = d
		}
	}
}

// WithReachability installs a check run before every request.
func WithReachability(reachable func() bool) Option {
	return func(p *Pipeline) { p.reachable = reachable }
}

// WithQueryImageDir saves every query image sent into dir.
func WithQueryImageDir(dir string) Option {
	return func(p *Pipeline) { p.saveDir = dir }
}

type completion struct {
	id      uint64
	tracked bool
	key     int
	url     string
	code    int
	body    string
	err     error
}

// Pipeline is the request queue between the core and the localization service.
type Pipeline struct {
	logger    golog.Logger
	sink      Sink
	parser    *vl.ResponseParser
	client    *http.Client
	clk       clock.Clock
	reachable func() bool
	capacity  int
	grace     time.Duration
	saveDir   string
	getSem    *semaphore.Weighted
	workers   utils.StoppableWorkers

	// tick goroutine only
	query image.Image

	mu                     sync.Mutex
	active                 map[uint64]struct{}
	nextID                 uint64
	full                   bool
	fullSince              time.Time
	graceTimer             *clock.Timer
	completions            []completion
	requestListeners       []func(vl.RequestEvent)
	responseListeners      []func(vl.ResponseEvent)
	useRequestWithPosition bool
	positionSupported      bool
	closed                 bool
}

// New returns a pipeline that reports results to sink.
func New(sink Sink, logger golog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:                 logger,
		sink:                   sink,
		parser:                 vl.NewResponseParser(logger),
		client:                 &http.Client{Timeout: DefaultRequestTimeout},
		clk:                    clock.New(),
		capacity:               DefaultCapacity,
		grace:                  DefaultGracePeriod,
		getSem:                 semaphore.NewWeighted(maxConcurrentGets),
		active:                 map[uint64]struct{}{},
		useRequestWithPosition: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.workers = utils.NewStoppableWorkers(context.Background())
	return p
}

// SetUseRequestWithPosition allows or forbids position-based requests. When false every request
// is sent without odometry and last pose.
func (p *Pipeline) SetUseRequestWithPosition(use bool) {
	p.mu.Lock()
	p.useRequestWithPosition = use
	p.mu.Unlock()
}

// SetPositionSupported tells the pipeline whether the active frame source produces poses that a
// position-based request can use.
func (p *Pipeline) SetPositionSupported(supported bool) {
	p.mu.Lock()
	p.positionSupported = supported
	p.mu.Unlock()
}

// OnRequest registers a listener called before each request is sent.
func (p *Pipeline) OnRequest(f func(vl.RequestEvent)) {
	p.mu.Lock()
	p.requestListeners = append(p.requestListeners, f)
	p.mu.Unlock()
}

// OnResponse registers a listener called for every response outcome.
func (p *Pipeline) OnResponse(f func(vl.ResponseEvent)) {
	p.mu.Lock()
	p.responseListeners = append(p.responseListeners, f)
	p.mu.Unlock()
}

// Active returns the number of POST requests in flight.
func (p *Pipeline) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// QueryImage returns the last query image built.
func (p *Pipeline) QueryImage() image.Image {
	return p.query
}

// Handle services a request issued by the core. Requests that fail before reaching the network
// are reported to response listeners and never to the sink.
func (p *Pipeline) Handle(key int, info vl.RequestInfo) error {
	if p.isClosed() {
		return ErrClosed
	}
	query, err := p.createQueryImage(info)
	if err != nil {
		p.logger.Warnw("failed to create a query image", "error", err)
		return err
	}

	if p.reachable != nil && !p.reachable() {
		p.emitResponse(vl.NewResponseEvent(vl.StatusNetworkConnectionError))
		p.logger.Error("network is disconnected")
		return ErrNetworkUnreachable
	}

	p.mu.Lock()
	if !p.useRequestWithPosition {
		info.RequestWithPosition = false
	}
	positionSupported := p.positionSupported
	p.mu.Unlock()

	body := vl.NewRequestBody(info, positionSupported)
	bounds := query.Bounds()
	if err := body.Validate(bounds.Dx(), bounds.Dy()); err != nil {
		p.emitResponse(vl.NewResponseEvent(vl.StatusBadRequestClient))
		p.logger.Errorw("invalid vl request body", "request", body.String(), "error", err)
		return err
	}

	if body.Method == vl.MethodPOST {
		return p.Enqueue(key, body, query)
	}
	p.sendLimitless(key, body, query)
	return nil
}

func (p *Pipeline) createQueryImage(info vl.RequestInfo) (image.Image, error) {
	var src image.Image
	switch {
	case len(info.ImageBuffer) > 0:
		img, err := imaging.Decode(bytes.NewReader(info.ImageBuffer))
		if err != nil {
			return nil, errors.Wrap(err, "decoding request image")
		}
		src = img
	case info.Image != nil:
		src = info.Image
	default:
		return nil, errors.New("request has no image")
	}
	b := src.Bounds()
	size := camera.QuerySize(b.Dx(), b.Dy())
	if size.X == 0 || size.Y == 0 {
		return nil, errors.Errorf("empty request image %dx%d", b.Dx(), b.Dy())
	}
	if size.X != b.Dx() || size.Y != b.Dy() {
		src = imaging.Resize(src, size.X, size.Y, imaging.Linear)
	}
	p.query = src
	return src, nil
}

// Enqueue sends a POST request if the queue has room. When it is full the request is dropped;
// if the queue then stays full for the grace period every in-flight request is forgotten.
func (p *Pipeline) Enqueue(key int, body *vl.RequestBody, query image.Image) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.full && p.clk.Since(p.fullSince) >= p.grace {
		p.clearLocked()
	}
	if len(p.active) >= p.capacity {
		if !p.full {
			p.full = true
			p.fullSince = p.clk.Now()
			p.graceTimer = p.clk.AfterFunc(p.grace, p.graceElapsed)
		}
		p.mu.Unlock()
		p.logger.Warnw("vl request queue is full, dropping request", "capacity", p.capacity)
		return ErrQueueFull
	}
	id := p.nextID
	p.nextID++
	p.active[id] = struct{}{}
	p.mu.Unlock()

	p.dispatch(id, true, key, body, query)
	return nil
}

func (p *Pipeline) graceElapsed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full && !p.closed {
		p.clearLocked()
	}
}

func (p *Pipeline) clearLocked() {
	p.logger.Info("vl request queue is cleared")
	p.active = map[uint64]struct{}{}
	p.resetFullLocked()
}

func (p *Pipeline) resetFullLocked() {
	p.full = false
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
}

func (p *Pipeline) sendLimitless(key int, body *vl.RequestBody, query image.Image) {
	p.dispatch(0, false, key, body, query)
}

func (p *Pipeline) dispatch(id uint64, tracked bool, key int, body *vl.RequestBody, query image.Image) {
	var jpeg []byte
	if body.Method == vl.MethodPOST {
		var err error
		jpeg, err = encodeJPEG(query)
		if err != nil {
			p.logger.Errorw("failed to encode query image", "error", err)
			p.queue(completion{id: id, tracked: tracked, key: key, url: body.URL, err: err})
			return
		}
		if p.saveDir != "" {
			p.saveQueryImage(body.Filename, query)
		}
	}

	p.emitRequest(vl.RequestEvent{URL: body.URL, SecretKey: body.Authorization, Image: query})
	p.logger.Debugw("sending vl request", "request", body.String())

	started := p.workers.AddWorkers(func(ctx context.Context) {
		var req *http.Request
		var err error
		if body.Method == vl.MethodPOST {
			req, err = newPostRequest(ctx, body, jpeg)
		} else {
			if err = p.getSem.Acquire(ctx, 1); err != nil {
				return
			}
			defer p.getSem.Release(1)
			req, err = newGetRequest(ctx, body)
		}
		if err != nil {
			p.queue(completion{id: id, tracked: tracked, key: key, url: body.URL, err: err})
			return
		}
		code, respBody, err := do(p.client, req)
		if ctx.Err() != nil {
			return
		}
		p.queue(completion{id: id, tracked: tracked, key: key, url: body.URL, code: code, body: respBody, err: err})
	})
	if !started {
		p.release(id, tracked)
	}
}

func (p *Pipeline) queue(c completion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.completions = append(p.completions, c)
}

func (p *Pipeline) release(id uint64, tracked bool) {
	if !tracked {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, id)
	if p.full && len(p.active) < p.capacity {
		p.resetFullLocked()
	}
}

// Poll delivers the results of finished requests to the sink. It returns how many were
// delivered. Poll must be called from the goroutine that owns the core.
func (p *Pipeline) Poll() int {
	p.mu.Lock()
	done := p.completions
	p.completions = nil
	p.mu.Unlock()

	for _, c := range done {
		p.release(c.id, c.tracked)
		if c.err != nil {
			p.logger.Warnw("vl request failed", "url", c.url, "code", c.code, "error", c.err)
		}
		if vl.IsSuccessCode(c.code) {
			p.logger.Debugw("vl response", "url", c.url, "body", c.body)
			p.sink.SendSuccessResponse(c.key, c.body)
			continue
		}
		status := vl.StatusFromHTTPCode(c.code)
		p.logger.Debugw("vl request rejected", "url", c.url, "code", c.code, "status", status, "body", c.body)
		p.sink.SendFailureResponse(c.key, c.body, status)
	}
	return len(done)
}

// HandleCoreResponse reports a response the core finished processing to response listeners.
func (p *Pipeline) HandleCoreResponse(data native.ResponseEventData) {
	ev := p.parser.ResponseEventFromBody(data.Status, data.Message, data.ResponseBody)
	if ev.Timestamp == 0 {
		ev.Timestamp = data.Timestamp
	}
	if ev.Confidence == 0 {
		ev.Confidence = data.Confidence
	}
	p.emitResponse(ev)
}

func (p *Pipeline) emitRequest(ev vl.RequestEvent) {
	p.mu.Lock()
	listeners := append([]func(vl.RequestEvent){}, p.requestListeners...)
	p.mu.Unlock()
	for _, f := range listeners {
		f(ev)
	}
}

func (p *Pipeline) emitResponse(ev vl.ResponseEvent) {
	p.mu.Lock()
	listeners := append([]func(vl.ResponseEvent){}, p.responseListeners...)
	p.mu.Unlock()
	for _, f := range listeners {
		f(ev)
	}
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close abandons in-flight requests. Their results are dropped.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.active = map[uint64]struct{}{}
	p.completions = nil
	p.resetFullLocked()
	p.mu.Unlock()
	p.workers.Stop()
	return nil
}
