package google

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"hires/internal/hostdoc"
)

const (
	subscriptionBuffer = 16
	releaseTimeout     = 2 * time.Second
)

// Document is a hostdoc.Document over a live rod page. Elements are
// addressed through an in-page registry so refs survive between calls.
type Document struct {
	page   *rod.Page
	logger *zap.Logger
}

var _ hostdoc.Document = (*Document)(nil)

// NewDocument installs the element registry on page, now and on every
// document the page loads later.
func NewDocument(page *rod.Page, logger *zap.Logger) (*Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := page.EvalOnNewDocument("(" + registryJS + ")();"); err != nil {
		return nil, fmt.Errorf("failed to install element registry: %w", err)
	}
	d := &Document{page: page, logger: logger}
	if err := d.install(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) install() error {
	if _, err := d.page.Timeout(10 * time.Second).Eval(registryJS); err != nil {
		return fmt.Errorf("failed to install element registry: %w", err)
	}
	return nil
}

func (d *Document) eval(ctx context.Context, js string, args ...interface{}) (gson.JSON, error) {
	if err := ctx.Err(); err != nil {
		return gson.JSON{}, err
	}
	res, err := d.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

// decode reads an Eval result into out.
func decode(v gson.JSON, out interface{}) error {
	raw, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func (d *Document) OuterHTML(ctx context.Context, ref hostdoc.Ref, levels int) (string, error) {
	v, err := d.eval(ctx, outerHTMLJS, string(ref), levels)
	if err != nil {
		return "", fmt.Errorf("failed to read element markup: %w", err)
	}
	if v.Nil() {
		return "", hostdoc.ErrDetached
	}
	return v.Str(), nil
}

func (d *Document) VisibleImages(ctx context.Context, minArea int) ([]hostdoc.Image, error) {
	v, err := d.eval(ctx, visibleImagesJS, minArea)
	if err != nil {
		return nil, fmt.Errorf("failed to list visible images: %w", err)
	}
	var images []hostdoc.Image
	if err := decode(v, &images); err != nil {
		return nil, err
	}
	return images, nil
}

func (d *Document) FindByImageSrc(ctx context.Context, src string) (hostdoc.Ref, bool, error) {
	v, err := d.eval(ctx, findByImageSrcJS, src)
	if err != nil {
		return "", false, fmt.Errorf("failed to find image: %w", err)
	}
	id := v.Str()
	return hostdoc.Ref(id), id != "", nil
}

// Subscribe runs a MutationObserver on the watched root and forwards each
// batch of mutations through a dedicated runtime binding.
func (d *Document) Subscribe(ctx context.Context, ref hostdoc.Ref, levels int) (<-chan hostdoc.Change, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	name := "hires_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := (proto.RuntimeAddBinding{Name: name}).Call(d.page); err != nil {
		return nil, nil, fmt.Errorf("failed to add binding: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan hostdoc.Change, subscriptionBuffer)
	wait := d.page.Context(subCtx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != name || e.Payload == "" {
			return
		}
		select {
		case ch <- hostdoc.Change{HTML: e.Payload}:
		default:
		}
	})
	go func() {
		wait()
		close(ch)
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			p := d.page.Timeout(releaseTimeout)
			if _, err := p.Eval(unobserveJS, name); err != nil {
				d.logger.Debug("failed to disconnect observer", zap.String("binding", name), zap.Error(err))
			}
			if err := (proto.RuntimeRemoveBinding{Name: name}).Call(p); err != nil {
				d.logger.Debug("failed to remove binding", zap.String("binding", name), zap.Error(err))
			}
		})
	}
	stop := context.AfterFunc(ctx, release)

	v, err := d.eval(ctx, observeJS, string(ref), levels, name)
	if err != nil || !v.Bool() {
		stop()
		release()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to observe element: %w", err)
		}
		return nil, nil, hostdoc.ErrDetached
	}

	return ch, func() {
		stop()
		release()
	}, nil
}

func (d *Document) InjectStyle(ctx context.Context, id, css string) error {
	if _, err := d.eval(ctx, injectStyleJS, id, css); err != nil {
		return fmt.Errorf("failed to inject style: %w", err)
	}
	return nil
}

func (d *Document) RemoveStyle(ctx context.Context, id string) error {
	if _, err := d.eval(ctx, removeStyleJS, id); err != nil {
		return fmt.Errorf("failed to remove style: %w", err)
	}
	return nil
}

func (d *Document) Bounds(ctx context.Context, ref hostdoc.Ref) (hostdoc.Rect, error) {
	v, err := d.eval(ctx, boundsJS, string(ref))
	if err != nil {
		return hostdoc.Rect{}, fmt.Errorf("failed to read bounds: %w", err)
	}
	if v.Nil() {
		return hostdoc.Rect{}, hostdoc.ErrDetached
	}
	var r hostdoc.Rect
	if err := decode(v, &r); err != nil {
		return hostdoc.Rect{}, err
	}
	return r, nil
}

func (d *Document) Ancestor(ctx context.Context, ref hostdoc.Ref, selector string) (hostdoc.Ref, bool, error) {
	v, err := d.eval(ctx, ancestorJS, string(ref), selector)
	if err != nil {
		return "", false, fmt.Errorf("failed to find ancestor: %w", err)
	}
	if v.Nil() {
		return "", false, hostdoc.ErrDetached
	}
	id := v.Str()
	return hostdoc.Ref(id), id != "", nil
}

func (d *Document) Dispatch(ctx context.Context, ref hostdoc.Ref, ev hostdoc.Event) error {
	v, err := d.eval(ctx, dispatchJS, string(ref), ev.Type, ev.X, ev.Y)
	if err != nil {
		return fmt.Errorf("failed to dispatch %s: %w", ev.Type, err)
	}
	if !v.Bool() {
		return hostdoc.ErrDetached
	}
	return nil
}

func (d *Document) PressEscape(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.page.Keyboard.Type(input.Escape); err != nil {
		return fmt.Errorf("failed to press escape: %w", err)
	}
	return nil
}

func (d *Document) ClickFirst(ctx context.Context, selectors []string) (bool, error) {
	if len(selectors) == 0 {
		return false, nil
	}
	v, err := d.eval(ctx, clickFirstJS, selectors)
	if err != nil {
		return false, fmt.Errorf("failed to click: %w", err)
	}
	if s := v.Str(); s != "" {
		d.logger.Debug("clicked", zap.String("selector", s))
		return true, nil
	}
	return false, nil
}
