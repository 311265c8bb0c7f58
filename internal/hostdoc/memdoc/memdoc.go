// Package memdoc is an in-memory hostdoc.Document backed by a parsed HTML
// tree. It serves saved result pages and lets tests script how the host
// reacts to activation.
package memdoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"hires/internal/hostdoc"
)

var _ hostdoc.Document = (*Doc)(nil)

// Dispatched is a recorded synthetic event.
type Dispatched struct {
	Ref   hostdoc.Ref
	Event hostdoc.Event
}

type subscription struct {
	root *html.Node
	ch   chan hostdoc.Change
}

// Doc is safe for concurrent use.
type Doc struct {
	mu sync.Mutex

	root  *html.Node
	refs  map[hostdoc.Ref]*html.Node
	ids   map[*html.Node]hostdoc.Ref
	nextN int

	styles        map[string]string
	stylesCreated int

	subs    map[int]*subscription
	nextSub int

	events     []Dispatched
	escapes    int
	clicks     []string
	onDispatch func(hostdoc.Ref, hostdoc.Event)
	faults     map[string]error
}

// Parse builds a Doc from markup.
func Parse(markup string) (*Doc, error) {
	return Load(strings.NewReader(markup))
}

// Load builds a Doc from r.
func Load(r io.Reader) (*Doc, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Doc{
		root:   root,
		refs:   make(map[hostdoc.Ref]*html.Node),
		ids:    make(map[*html.Node]hostdoc.Ref),
		styles: make(map[string]string),
		subs:   make(map[int]*subscription),
		faults: make(map[string]error),
	}, nil
}

// Find returns a reference to the first element matching selector.
func (d *Doc) Find(selector string) (hostdoc.Ref, bool) {
	refs := d.FindAll(selector)
	if len(refs) == 0 {
		return "", false
	}
	return refs[0], true
}

// FindAll returns references to every element matching selector in
// document order. An invalid selector matches nothing.
func (d *Doc) FindAll(selector string) []hostdoc.Ref {
	d.mu.Lock()
	defer d.mu.Unlock()

	var refs []hostdoc.Ref
	goquery.NewDocumentFromNode(d.root).Find(selector).Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, d.refLocked(s.Get(0)))
	})
	return refs
}

// Attr returns an attribute of the referenced element.
func (d *Doc) Attr(ref hostdoc.Ref, name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.nodeLocked(ref)
	if err != nil {
		return "", false
	}
	return goquery.NewDocumentFromNode(n).Attr(name)
}

// SetAttr sets an attribute and notifies subscribers watching the element.
func (d *Doc) SetAttr(ref hostdoc.Ref, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.nodeLocked(ref)
	if err != nil {
		return err
	}
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			d.notifyLocked(n)
			return nil
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
	d.notifyLocked(n)
	return nil
}

// AppendHTML parses fragment in the context of the referenced element,
// appends the result to it and notifies subscribers.
func (d *Doc) AppendHTML(ref hostdoc.Ref, fragment string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.nodeLocked(ref)
	if err != nil {
		return err
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), n)
	if err != nil {
		return fmt.Errorf("failed to parse fragment: %w", err)
	}
	for _, c := range nodes {
		n.AppendChild(c)
	}
	d.notifyLocked(n)
	return nil
}

// Remove detaches the referenced element from the tree.
func (d *Doc) Remove(ref hostdoc.Ref) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.nodeLocked(ref)
	if err != nil {
		return err
	}
	parent := n.Parent
	if parent == nil {
		return fmt.Errorf("cannot remove the document root")
	}
	parent.RemoveChild(n)
	d.notifyLocked(parent)
	return nil
}

// OnDispatch registers fn to run after every dispatched event. fn runs
// without the document lock held and may mutate the document.
func (d *Doc) OnDispatch(fn func(hostdoc.Ref, hostdoc.Event)) {
	d.mu.Lock()
	d.onDispatch = fn
	d.mu.Unlock()
}

// Fail makes the named operation return err until cleared with a nil err.
func (d *Doc) Fail(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.faults, op)
		return
	}
	d.faults[op] = err
}

// Styles returns the currently injected styles by id.
func (d *Doc) Styles() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.styles))
	for k, v := range d.styles {
		out[k] = v
	}
	return out
}

// StylesCreated counts every InjectStyle call that succeeded.
func (d *Doc) StylesCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stylesCreated
}

// LiveSubscriptions counts subscriptions not yet released.
func (d *Doc) LiveSubscriptions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Events returns the dispatched events in order.
func (d *Doc) Events() []Dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Dispatched(nil), d.events...)
}

// Escapes counts PressEscape calls.
func (d *Doc) Escapes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.escapes
}

// Clicks returns the selectors ClickFirst clicked through.
func (d *Doc) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

func (d *Doc) OuterHTML(ctx context.Context, ref hostdoc.Ref, levels int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(ctx, "OuterHTML"); err != nil {
		return "", err
	}
	n, err := d.nodeLocked(ref)
	if err != nil {
		return "", err
	}
	return render(climb(n, levels))
}

func (d *Doc) VisibleImages(ctx context.Context, minArea int) ([]hostdoc.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(ctx, "VisibleImages"); err != nil {
		return nil, err
	}
	var out []hostdoc.Image
	goquery.NewDocumentFromNode(d.root).Find("img").Each(func(_ int, s *goquery.Selection) {
		if hidden(s) {
			return
		}
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			return
		}
		w, _ := strconv.Atoi(s.AttrOr("width", ""))
		h, _ := strconv.Atoi(s.AttrOr("height", ""))
		if w <= 0 || h <= 0 || w*h < minArea {
			return
		}
		out = append(out, hostdoc.Image{Src: src, Width: w, Height: h})
	})
	return out, nil
}

func (d *Doc) FindByImageSrc(ctx context.Context, src string) (hostdoc.Ref, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(ctx, "FindByImageSrc"); err != nil {
		return "", false, err
	}
	src = strings.TrimSpace(src)
	if src == "" {
		return "", false, nil
	}
	match := goquery.NewDocumentFromNode(d.root).Find("img").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.AttrOr("src", "")) == src
	})
	if match.Length() == 0 {
		return "", false, nil
	}
	return d.refLocked(match.Get(0)), true, nil
}

func (d *Doc) Subscribe(ctx context.Context, ref hostdoc.Ref, levels int) (<-chan hostdoc.Change, func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(ctx, "Subscribe"); err != nil {
		return nil, nil, err
	}
	n, err := d.nodeLocked(ref)
	if err != nil {
		return nil, nil, err
	}

	id := d.nextSub
	d.nextSub++
	sub := &subscription{root: climb(n, levels), ch: make(chan hostdoc.Change, 16)}
	d.subs[id] = sub

	var once sync.Once
	release := func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs, id)
			close(sub.ch)
		})
	}
	stop := context.AfterFunc(ctx, release)
	return sub.ch, func() {
		stop()
		release()
	}, nil
}

func (d *Doc) InjectStyle(ctx context.Context, id, css string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(ctx, "InjectStyle"); err != nil {
		return err
	}
	d.styles[id] = css
	d.stylesCreated++
	return nil
}

func (d *Doc) RemoveStyle(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(ctx, "RemoveStyle"); err != nil {
		return err
	}
	delete(d.styles, id)
	return nil
}

func (d *Doc) Bounds(ctx context.Context, ref hostdoc.Ref) (hostdoc.Rect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(ctx, "Bounds"); err != nil {
		return hostdoc.Rect{}, err
	}
	n, err := d.nodeLocked(ref)
	if err != nil {
		return hostdoc.Rect{}, err
	}
	s := goquery.NewDocumentFromNode(n).Selection
	num := func(name string) float64 {
		v, _ := strconv.ParseFloat(s.AttrOr(name, "0"), 64)
		return v
	}
	return hostdoc.Rect{
		X:      num("data-x"),
		Y:      num("data-y"),
		Width:  num("data-width"),
		Height: num("data-height"),
	}, nil
}

func (d *Doc) Ancestor(ctx context.Context, ref hostdoc.Ref, selector string) (hostdoc.Ref, bool, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return "", false, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(ctx, "Ancestor"); err != nil {
		return "", false, err
	}
	n, err := d.nodeLocked(ref)
	if err != nil {
		return "", false, err
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && sel.Match(p) {
			return d.refLocked(p), true, nil
		}
	}
	return "", false, nil
}

func (d *Doc) Dispatch(ctx context.Context, ref hostdoc.Ref, ev hostdoc.Event) error {
	d.mu.Lock()
	if err := d.checkLocked(ctx, "Dispatch"); err != nil {
		d.mu.Unlock()
		return err
	}
	if _, err := d.nodeLocked(ref); err != nil {
		d.mu.Unlock()
		return err
	}
	d.events = append(d.events, Dispatched{Ref: ref, Event: ev})
	fn := d.onDispatch
	d.mu.Unlock()

	if fn != nil {
		fn(ref, ev)
	}
	return nil
}

func (d *Doc) PressEscape(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(ctx, "PressEscape"); err != nil {
		return err
	}
	d.escapes++
	return nil
}

func (d *Doc) ClickFirst(ctx context.Context, selectors []string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(ctx, "ClickFirst"); err != nil {
		return false, err
	}
	for _, s := range selectors {
		sel, err := cascadia.Compile(s)
		if err != nil {
			return false, fmt.Errorf("invalid selector %q: %w", s, err)
		}
		if cascadia.Query(d.root, sel) != nil {
			d.clicks = append(d.clicks, s)
			return true, nil
		}
	}
	return false, nil
}

func (d *Doc) checkLocked(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.faults[op]; err != nil {
		return err
	}
	return nil
}

func (d *Doc) refLocked(n *html.Node) hostdoc.Ref {
	if ref, ok := d.ids[n]; ok {
		return ref
	}
	d.nextN++
	ref := hostdoc.Ref("n" + strconv.Itoa(d.nextN))
	d.ids[n] = ref
	d.refs[ref] = n
	return ref
}

func (d *Doc) nodeLocked(ref hostdoc.Ref) (*html.Node, error) {
	n, ok := d.refs[ref]
	if !ok || !d.attachedLocked(n) {
		return nil, hostdoc.ErrDetached
	}
	return n, nil
}

func (d *Doc) attachedLocked(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == d.root {
			return true
		}
	}
	return false
}

// notifyLocked tells every subscription whose subtree holds n about the
// change. Full buffers drop the notification; the next one carries the
// whole subtree anyway.
func (d *Doc) notifyLocked(n *html.Node) {
	for _, sub := range d.subs {
		if !contains(sub.root, n) {
			continue
		}
		markup, err := render(sub.root)
		if err != nil {
			continue
		}
		select {
		case sub.ch <- hostdoc.Change{HTML: markup}:
		default:
		}
	}
}

func contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// climb walks up to levels element ancestors, stopping at the top element.
func climb(n *html.Node, levels int) *html.Node {
	for i := 0; i < levels; i++ {
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			break
		}
		n = n.Parent
	}
	return n
}

func render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("failed to render markup: %w", err)
	}
	return buf.String(), nil
}

func hidden(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}
