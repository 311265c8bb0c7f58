package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"hires/internal/activation"
	"hires/internal/candidate"
	"hires/internal/hostdoc"
	"hires/internal/observe"
)

// Session resolves one target. It is single-use: call Run once.
//
// Run always ends in StateCleaned, whatever happened before: the
// suppression style is removed, the preview surface dismissed and every
// subscription opened through the session released.
type Session struct {
	id     string
	doc    *trackedDoc
	target hostdoc.Ref
	opts   Options
	logger *zap.Logger
	ctrl   *activation.Controller

	mu       sync.Mutex
	state    State
	history  []State
	deadline time.Time
	resolved *candidate.Candidate
	handle   *activation.Handle
}

// NewSession prepares a session for target in doc.
func NewSession(doc hostdoc.Document, target hostdoc.Ref, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Deadline <= 0 {
		opts.Deadline = 4 * time.Second
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = 2 * time.Second
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("session", id), zap.String("target", string(target)))
	td := newTrackedDoc(doc)

	return &Session{
		id:      id,
		doc:     td,
		target:  target,
		opts:    opts,
		logger:  logger,
		ctrl:    activation.New(td, opts.Activation, logger),
		state:   StateIdle,
		history: []State{StateIdle},
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Run resolves the target: a fast path over data already in the document,
// then activation and a bounded observation window. ok is false when no
// candidate was accepted before the deadline.
func (s *Session) Run(ctx context.Context) (c candidate.Candidate, ok bool) {
	s.mu.Lock()
	s.deadline = time.Now().Add(s.opts.Deadline)
	s.mu.Unlock()
	defer s.cleanup()

	if c, ok := s.fastPath(ctx); ok {
		s.resolve(c)
		return c, true
	}
	if ctx.Err() != nil {
		s.transition(StateExpired)
		return candidate.Candidate{}, false
	}

	w := observe.New(s.doc, s.opts.Scanner, s.opts.Policy, s.opts.Observe, s.logger)
	if n := w.Baseline(ctx); n > 0 {
		s.logger.Debug("ignoring images visible before activation", zap.Int("count", n))
	}

	h, err := s.ctrl.Activate(ctx, s.target)
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("activation failed, observing anyway", zap.Error(err))
	}
	s.transition(StateActivated)

	s.transition(StateObserving)
	found, hit := w.Observe(ctx, s.target, time.Until(s.deadline))
	if !hit {
		s.transition(StateExpired)
		return candidate.Candidate{}, false
	}

	found = found.WithURL(candidate.Normalize(found.URL))
	s.resolve(found)
	return found, true
}

// fastPath scans the markup around the target as it already is.
func (s *Session) fastPath(ctx context.Context) (candidate.Candidate, bool) {
	markup, err := s.doc.OuterHTML(ctx, s.target, s.opts.FastPathLevels)
	if err != nil {
		s.logger.Debug("fast path unavailable", zap.Error(err))
		return candidate.Candidate{}, false
	}
	c, ok := s.opts.Policy.Select(s.opts.Scanner.ScanHTML(markup, time.Now()))
	if !ok {
		return candidate.Candidate{}, false
	}
	s.logger.Debug("fast path hit", zap.String("origin", string(c.Origin)))
	return c.WithURL(candidate.Normalize(c.URL)), true
}

// cleanup runs under its own context so that an expired or cancelled
// request context cannot skip it.
func (s *Session) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CleanupTimeout)
	defer cancel()

	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()

	var err error
	if h != nil {
		err = multierr.Append(err, s.ctrl.Deactivate(ctx, h))
	}
	if n := s.doc.releaseAll(); n > 0 {
		s.logger.Debug("released subscriptions", zap.Int("count", n))
	}
	if err != nil {
		s.logger.Warn("cleanup incomplete", zap.Error(err))
	}
	s.transition(StateCleaned)
}

func (s *Session) resolve(c candidate.Candidate) {
	s.mu.Lock()
	s.resolved = &c
	s.mu.Unlock()
	s.logger.Info("resolved", zap.String("url", c.URL), zap.String("origin", string(c.Origin)))
	s.transition(StateResolved)
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.history = append(s.history, to)
	s.mu.Unlock()
	s.logger.Debug("state", zap.Stringer("from", from), zap.Stringer("to", to))
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every state the session has been in, in order.
func (s *Session) History() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.history...)
}

// Resolved returns the accepted candidate, if any.
func (s *Session) Resolved() (candidate.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved == nil {
		return candidate.Candidate{}, false
	}
	return *s.resolved, true
}

// LiveSubscriptions counts subscriptions opened through the session and
// not yet released.
func (s *Session) LiveSubscriptions() int {
	return s.doc.liveCount()
}

// trackedDoc records every subscription opened through it so the session
// can release them all on exit.
type trackedDoc struct {
	hostdoc.Document

	mu   sync.Mutex
	next int
	live map[int]func()
}

func newTrackedDoc(doc hostdoc.Document) *trackedDoc {
	return &trackedDoc{Document: doc, live: make(map[int]func())}
}

func (t *trackedDoc) Subscribe(ctx context.Context, ref hostdoc.Ref, levels int) (<-chan hostdoc.Change, func(), error) {
	ch, release, err := t.Document.Subscribe(ctx, ref, levels)
	if err != nil {
		return nil, nil, err
	}

	t.mu.Lock()
	id := t.next
	t.next++
	t.live[id] = release
	t.mu.Unlock()

	return ch, func() {
		t.mu.Lock()
		delete(t.live, id)
		t.mu.Unlock()
		release()
	}, nil
}

func (t *trackedDoc) releaseAll() int {
	t.mu.Lock()
	pending := t.live
	t.live = make(map[int]func())
	t.mu.Unlock()

	for _, release := range pending {
		func() {
			defer func() { _ = recover() }()
			release()
		}()
	}
	return len(pending)
}

func (t *trackedDoc) liveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}
