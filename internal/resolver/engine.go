package resolver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"hires/internal/hostdoc"
)

// ActionGetOriginalURL is the only action the engine answers.
const ActionGetOriginalURL = "getOriginalUrl"

// Request asks for the original of the most recently targeted thumbnail.
// TargetHint is the thumbnail address, used to locate the element when no
// target was captured.
type Request struct {
	Action     string `json:"action"`
	TargetHint string `json:"targetHint"`
}

// Response carries the resolved address; nil means none was found.
type Response struct {
	OriginalURL *string `json:"originalUrl"`
}

// Tracker remembers the element the user most recently targeted.
type Tracker struct {
	mu  sync.Mutex
	ref hostdoc.Ref
	set bool
}

// Capture records ref as the current target.
func (t *Tracker) Capture(ref hostdoc.Ref) {
	t.mu.Lock()
	t.ref, t.set = ref, true
	t.mu.Unlock()
}

// Current returns the recorded target.
func (t *Tracker) Current() (hostdoc.Ref, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ref, t.set
}

// Clear forgets the recorded target.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.ref, t.set = "", false
	t.mu.Unlock()
}

// Engine runs at most one session at a time against a document. A new
// request cancels the running session and waits for its cleanup before
// starting.
type Engine struct {
	doc     hostdoc.Document
	tracker *Tracker
	opts    Options
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine returns an Engine over doc. tracker may be shared with whatever
// installs the capture hook; nil gets a private one.
func NewEngine(doc hostdoc.Document, tracker *Tracker, opts Options) *Engine {
	if tracker == nil {
		tracker = &Tracker{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{doc: doc, tracker: tracker, opts: opts, logger: logger}
}

// Capture is the hook for right-click style interactions.
func (e *Engine) Capture(ref hostdoc.Ref) {
	e.tracker.Capture(ref)
}

// Handle answers req. It never fails: anything short of an accepted
// candidate, including an unknown action, is a nil OriginalURL.
func (e *Engine) Handle(ctx context.Context, req Request) Response {
	if req.Action != ActionGetOriginalURL {
		e.logger.Debug("ignoring request", zap.String("action", req.Action))
		return Response{}
	}
	u, ok := e.Resolve(ctx, req.TargetHint)
	if !ok {
		return Response{}
	}
	return Response{OriginalURL: &u}
}

// Resolve runs a session for the captured target, or for the image whose
// address is hint when nothing was captured.
func (e *Engine) Resolve(ctx context.Context, hint string) (url string, ok bool) {
	ctx, finish := e.supersede(ctx)
	defer finish()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("session panicked", zap.Any("panic", r))
			url, ok = "", false
		}
	}()

	target, found := e.target(ctx, hint)
	if !found {
		e.logger.Debug("no target to resolve", zap.String("hint", hint))
		return "", false
	}
	return e.run(ctx, target)
}

// ResolveRef runs a session for ref regardless of what the tracker holds.
// Callers that capture and resolve on different goroutines use it so a
// later capture cannot redirect an earlier resolution.
func (e *Engine) ResolveRef(ctx context.Context, ref hostdoc.Ref) (url string, ok bool) {
	ctx, finish := e.supersede(ctx)
	defer finish()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("session panicked", zap.Any("panic", r))
			url, ok = "", false
		}
	}()

	if ref == "" {
		return "", false
	}
	return e.run(ctx, ref)
}

func (e *Engine) run(ctx context.Context, target hostdoc.Ref) (string, bool) {
	c, ok := NewSession(e.doc, target, e.opts).Run(ctx)
	if !ok {
		return "", false
	}
	return c.URL, true
}

func (e *Engine) target(ctx context.Context, hint string) (hostdoc.Ref, bool) {
	if ref, ok := e.tracker.Current(); ok {
		return ref, true
	}
	if hint == "" {
		return "", false
	}
	ref, ok, err := e.doc.FindByImageSrc(ctx, hint)
	if err != nil {
		e.logger.Debug("hint lookup failed", zap.Error(err))
		return "", false
	}
	return ref, ok
}

// supersede cancels the running session, waits until it has cleaned up and
// registers the caller as the running one. The wait ignores the caller's own
// cancellation: done closes only after the predecessor's has, so sessions
// never overlap however many requests arrive while one is cleaning up.
func (e *Engine) supersede(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	e.mu.Lock()
	prevCancel, prevDone := e.cancel, e.done
	e.cancel, e.done = cancel, done
	e.mu.Unlock()

	if prevCancel != nil {
		e.logger.Debug("superseding running session")
		prevCancel()
		<-prevDone
	}

	return ctx, func() {
		cancel()
		close(done)
		e.mu.Lock()
		if e.done == done {
			e.cancel, e.done = nil, nil
		}
		e.mu.Unlock()
	}
}
