// Package observe waits, for a bounded time, for an accepted image
// candidate to show up in a host document after activation.
package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hires/internal/candidate"
	"hires/internal/hostdoc"
)

// Source is the part of a host document the window reads.
type Source interface {
	hostdoc.Reader
	hostdoc.Watcher
}

// Config tunes the window.
type Config struct {
	// PollInterval is the re-scan cadence of the poll path.
	PollInterval time.Duration
	// FinalScanTimeout bounds the scan made once the deadline passes.
	FinalScanTimeout time.Duration
	// AncestorLevels widens the watched and scanned scope above the target.
	AncestorLevels int
	// MinPollArea is the smallest natural pixel area the poll path treats
	// as a full-size image.
	MinPollArea int
}

// Window races a change subscription against periodic re-scans and a
// deadline.
type Window struct {
	src     Source
	scanner *candidate.Scanner
	policy  *candidate.Policy
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	// image sources that were already visible before activation
	baseline map[string]bool
}

// New returns a Window over src.
func New(src Source, scanner *candidate.Scanner, policy *candidate.Policy, cfg Config, logger *zap.Logger) *Window {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.FinalScanTimeout <= 0 {
		cfg.FinalScanTimeout = 250 * time.Millisecond
	}
	return &Window{
		src:     src,
		scanner: scanner,
		policy:  policy,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Baseline records the large images visible right now and returns how many
// there were. Scan skips them from then on, so an image left over from an
// earlier activation, or a large image the page always shows, cannot answer
// for the current target. Call it before activating and before Observe.
func (w *Window) Baseline(ctx context.Context) int {
	imgs, err := w.src.VisibleImages(ctx, w.cfg.MinPollArea)
	if err != nil {
		w.logger.Debug("baseline unavailable", zap.Error(err))
		return 0
	}
	w.baseline = make(map[string]bool, len(imgs))
	for _, img := range imgs {
		w.baseline[img.Src] = true
	}
	return len(w.baseline)
}

// Observe returns the first accepted candidate found in scope by the push
// or poll path before deadline elapses. Both paths stop as soon as either
// accepts. If the deadline passes with nothing accepted, one final scan of
// the current document state decides. Observe gives up without the final
// scan when ctx itself ends.
func (w *Window) Observe(ctx context.Context, scope hostdoc.Ref, deadline time.Duration) (candidate.Candidate, bool) {
	started := w.now()

	dctx, cancelDeadline := context.WithTimeout(ctx, deadline)
	defer cancelDeadline()
	race, stop := context.WithCancel(dctx)
	defer stop()

	var (
		once  sync.Once
		found candidate.Candidate
		ok    bool
	)
	accept := func(path string, c candidate.Candidate) {
		once.Do(func() {
			found, ok = c, true
			stop()
			w.logger.Debug("candidate accepted",
				zap.String("path", path),
				zap.String("url", c.URL),
				zap.String("origin", string(c.Origin)),
				zap.Duration("after", w.now().Sub(started)))
		})
	}

	g, gctx := errgroup.WithContext(race)
	g.Go(func() error { return w.push(gctx, scope, accept) })
	g.Go(func() error { return w.poll(gctx, scope, accept) })
	_ = g.Wait()

	if ok {
		return found, true
	}
	if ctx.Err() != nil {
		return candidate.Candidate{}, false
	}

	fctx, cancel := context.WithTimeout(ctx, w.cfg.FinalScanTimeout)
	defer cancel()
	c, hit := w.Scan(fctx, scope)
	if hit {
		w.logger.Debug("final scan accepted", zap.String("url", c.URL))
	} else {
		w.logger.Debug("observation expired", zap.Duration("deadline", deadline))
	}
	return c, hit
}

// push re-scans every change notification for scope until one yields an
// accepted candidate.
func (w *Window) push(ctx context.Context, scope hostdoc.Ref, accept func(string, candidate.Candidate)) (err error) {
	defer w.recoverPath("push", &err)

	changes, release, err := w.src.Subscribe(ctx, scope, w.cfg.AncestorLevels)
	if err != nil {
		w.logger.Debug("push path unavailable", zap.Error(err))
		return nil
	}
	defer release()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, open := <-changes:
			if !open {
				return nil
			}
			if c, ok := w.policy.Select(w.scanner.ScanHTML(ch.HTML, w.now())); ok {
				accept("push", c)
				return nil
			}
		}
	}
}

// poll re-scans scope and the large visible images at PollInterval.
func (w *Window) poll(ctx context.Context, scope hostdoc.Ref, accept func(string, candidate.Candidate)) (err error) {
	defer w.recoverPath("poll", &err)

	t := time.NewTicker(w.cfg.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if c, ok := w.Scan(ctx, scope); ok {
				accept("poll", c)
				return nil
			}
		}
	}
}

// Scan inspects the current document state once: the scope subtree and
// every visible image of at least MinPollArea that is not in the baseline.
// Read errors are logged and treated as finding nothing.
func (w *Window) Scan(ctx context.Context, scope hostdoc.Ref) (c candidate.Candidate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn("scan panicked", zap.Any("panic", r))
			c, ok = candidate.Candidate{}, false
		}
	}()

	at := w.now()
	var cands []candidate.Candidate

	if markup, err := w.src.OuterHTML(ctx, scope, w.cfg.AncestorLevels); err != nil {
		w.logger.Debug("scope scan failed", zap.Error(err))
	} else {
		cands = append(cands, w.scanner.ScanHTML(markup, at)...)
	}

	imgs, err := w.src.VisibleImages(ctx, w.cfg.MinPollArea)
	if err != nil {
		w.logger.Debug("visible image scan failed", zap.Error(err))
	}
	for _, img := range imgs {
		if w.baseline[img.Src] {
			continue
		}
		if cand, ok := candidate.New(img.Src, candidate.OriginPreviewImage, img.Width*img.Height, at); ok {
			cands = append(cands, cand)
		}
	}

	return w.policy.Select(cands)
}

func (w *Window) recoverPath(path string, err *error) {
	if r := recover(); r != nil {
		w.logger.Warn("observation path panicked", zap.String("path", path), zap.Error(fmt.Errorf("%v", r)))
		*err = nil
	}
}
