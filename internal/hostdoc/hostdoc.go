// Package hostdoc describes the live search-results document the resolver
// works against. A browser page implements it in production; memdoc
// implements it in memory for tests and saved pages.
package hostdoc

import (
	"context"
	"errors"
)

// ErrDetached is returned when a reference no longer points into the
// document.
var ErrDetached = errors.New("element is no longer attached to the document")

// Ref is an opaque handle to an element. Refs are only meaningful to the
// Document that issued them.
type Ref string

// Rect is an element's layout box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the point a pointer would hit.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Event is a synthetic input event dispatched at a point.
type Event struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Change is one structural change notification. HTML is the markup of the
// subtree that changed, or of the watched root when the source cannot narrow
// it down.
type Change struct {
	HTML string
}

// Image is a rendered image element.
type Image struct {
	Src    string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Reader inspects the document without changing it.
type Reader interface {
	// OuterHTML returns the markup of the element levels ancestors above
	// ref, or of the topmost ancestor reached when the tree is shallower.
	OuterHTML(ctx context.Context, ref Ref, levels int) (string, error)
	// VisibleImages lists rendered images whose area is at least minArea.
	VisibleImages(ctx context.Context, minArea int) ([]Image, error)
	// FindByImageSrc locates the image element whose source is src.
	FindByImageSrc(ctx context.Context, src string) (Ref, bool, error)
}

// Watcher delivers structural change notifications for a subtree.
type Watcher interface {
	// Subscribe watches the subtree rooted levels ancestors above ref. The
	// returned release func stops delivery and closes the channel; it is
	// safe to call more than once.
	Subscribe(ctx context.Context, ref Ref, levels int) (<-chan Change, func(), error)
}

// Actuator changes the document on the user's behalf.
type Actuator interface {
	InjectStyle(ctx context.Context, id, css string) error
	RemoveStyle(ctx context.Context, id string) error
	Bounds(ctx context.Context, ref Ref) (Rect, error)
	// Ancestor returns the nearest strict ancestor of ref matching selector.
	Ancestor(ctx context.Context, ref Ref, selector string) (Ref, bool, error)
	Dispatch(ctx context.Context, ref Ref, ev Event) error
	PressEscape(ctx context.Context) error
	// ClickFirst clicks the first element matching any of selectors and
	// reports whether one was found.
	ClickFirst(ctx context.Context, selectors []string) (bool, error)
}

// Document is everything the resolver needs from a host page.
type Document interface {
	Reader
	Watcher
	Actuator
}
