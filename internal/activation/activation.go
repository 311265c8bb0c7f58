// Package activation forces a host document to materialize lazily loaded
// image data by synthesizing a pointer interaction on a result, while keeping
// the preview surface it opens invisible to the user.
package activation

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"hires/internal/hostdoc"
)

// pointerSequence is dispatched in order at each activation target.
var pointerSequence = []string{"pointerdown", "mousedown", "pointerup", "mouseup", "click"}

// Config names the host regions activation touches.
type Config struct {
	// PreviewSelectors match the preview surface that opens on activation.
	// It is made transparent, never removed from rendering, so the host
	// keeps loading its images.
	PreviewSelectors []string
	// InteractiveSelector matches the nearest clickable ancestor of a
	// result image.
	InteractiveSelector string
	// DismissSelectors match controls that close the preview surface.
	DismissSelectors []string
}

// Controller applies and reverses activation side effects.
type Controller struct {
	doc    hostdoc.Actuator
	cfg    Config
	logger *zap.Logger
}

// New returns a Controller acting on doc.
func New(doc hostdoc.Actuator, cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{doc: doc, cfg: cfg, logger: logger}
}

// Handle owns the side effects of one activation. Releasing it through
// Deactivate is idempotent.
type Handle struct {
	styleID    string
	styled     bool
	dispatched bool
	released   atomic.Bool
}

// StyleID is the id of the suppression style element.
func (h *Handle) StyleID() string { return h.styleID }

// Released reports whether Deactivate has run for h.
func (h *Handle) Released() bool { return h.released.Load() }

// Activate suppresses the preview surface and dispatches the pointer
// sequence at target and at its nearest interactive ancestor. It always
// returns a non-nil Handle, even when some steps fail, so the caller can
// hand it to Deactivate; the returned error combines every failed step.
func (c *Controller) Activate(ctx context.Context, target hostdoc.Ref) (h *Handle, err error) {
	h = &Handle{styleID: "hires-suppress-" + uuid.NewString()}
	defer func() {
		if r := recover(); r != nil {
			err = multierr.Append(err, fmt.Errorf("activation panicked: %v", r))
		}
		if err != nil {
			c.logger.Warn("activation incomplete", zap.String("target", string(target)), zap.Error(err))
		}
	}()

	if css := c.suppressionCSS(); css != "" {
		h.styled = true
		if e := c.doc.InjectStyle(ctx, h.styleID, css); e != nil {
			err = multierr.Append(err, fmt.Errorf("failed to inject suppression style: %w", e))
		}
	}

	targets := []hostdoc.Ref{target}
	if c.cfg.InteractiveSelector != "" {
		anc, ok, e := c.doc.Ancestor(ctx, target, c.cfg.InteractiveSelector)
		switch {
		case e != nil:
			err = multierr.Append(err, fmt.Errorf("failed to find interactive ancestor: %w", e))
		case ok:
			targets = append(targets, anc)
		}
	}

	h.dispatched = true
	for _, ref := range targets {
		if e := c.press(ctx, ref); e != nil {
			err = multierr.Append(err, e)
		}
	}

	c.logger.Debug("activated", zap.String("target", string(target)), zap.Int("targets", len(targets)))
	return h, err
}

func (c *Controller) press(ctx context.Context, ref hostdoc.Ref) error {
	rect, err := c.doc.Bounds(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to read bounds of %s: %w", ref, err)
	}
	x, y := rect.Center()
	for _, typ := range pointerSequence {
		if err := c.doc.Dispatch(ctx, ref, hostdoc.Event{Type: typ, X: x, Y: y}); err != nil {
			return fmt.Errorf("failed to dispatch %s on %s: %w", typ, ref, err)
		}
	}
	return nil
}

// Deactivate dismisses the preview surface, by escape key and by clicking a
// dismiss control since either may be missing, then removes the suppression
// style. It is safe on a nil Handle, on a partially applied Handle and on a
// Handle that was already released.
func (c *Controller) Deactivate(ctx context.Context, h *Handle) (err error) {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = multierr.Append(err, fmt.Errorf("deactivation panicked: %v", r))
		}
		if err != nil {
			c.logger.Warn("deactivation incomplete", zap.Error(err))
		}
	}()

	if h.dispatched {
		if e := c.doc.PressEscape(ctx); e != nil {
			err = multierr.Append(err, fmt.Errorf("failed to press escape: %w", e))
		}
		if len(c.cfg.DismissSelectors) > 0 {
			if _, e := c.doc.ClickFirst(ctx, c.cfg.DismissSelectors); e != nil {
				err = multierr.Append(err, fmt.Errorf("failed to click dismiss control: %w", e))
			}
		}
	}

	if h.styled {
		if e := c.doc.RemoveStyle(ctx, h.styleID); e != nil {
			err = multierr.Append(err, fmt.Errorf("failed to remove suppression style: %w", e))
		}
	}
	return err
}

func (c *Controller) suppressionCSS() string {
	if len(c.cfg.PreviewSelectors) == 0 {
		return ""
	}
	return strings.Join(c.cfg.PreviewSelectors, ", ") +
		" { opacity: 0 !important; pointer-events: none !important;" +
		" transition: none !important; animation: none !important; }"
}
