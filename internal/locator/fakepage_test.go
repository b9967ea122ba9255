package locator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"adswap/internal/element"
	"adswap/internal/locator"
)

type fakeElement struct {
	id      locator.ElementID
	tag     string
	classes []string
	rect    element.Rect
	hidden  atomic.Bool
	rectErr error
}

func (e *fakeElement) ID() locator.ElementID { return e.id }

// Rect measures like a browser: a hidden element has no box.
func (e *fakeElement) Rect(ctx context.Context) (element.Rect, error) {
	if e.hidden.Load() {
		return element.Rect{}, e.rectErr
	}
	return e.rect, e.rectErr
}

// fakePage is an in-memory document. Placeholders are appended to inserted,
// originals are only flagged hidden.
type fakePage struct {
	mu       sync.Mutex
	elements []*fakeElement
	inserted []locator.Placeholder
	queryErr error
	failNext bool
}

func (p *fakePage) add(tag string, classes []string, rect element.Rect) *fakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	el := &fakeElement{
		id:      locator.ElementID(fmt.Sprintf("node-%d", len(p.elements)+1)),
		tag:     tag,
		classes: classes,
		rect:    rect,
	}
	p.elements = append(p.elements, el)
	return el
}

func (p *fakePage) Query(ctx context.Context, selector string) ([]locator.Element, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	tag, classes := element.ParseSelector(selector)

	p.mu.Lock()
	defer p.mu.Unlock()
	var out []locator.Element
	for _, el := range p.elements {
		if el.tag == tag && hasAll(el.classes, classes) {
			out = append(out, el)
		}
	}
	return out, nil
}

func (p *fakePage) Replace(ctx context.Context, el locator.Element, rect element.Rect, text string) (locator.Placeholder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return locator.Placeholder{}, errors.New("node detached")
	}
	el.(*fakeElement).hidden.Store(true)
	ph := locator.Placeholder{
		ID:   locator.ElementID(fmt.Sprintf("placeholder-%d", len(p.inserted)+1)),
		Text: text,
		Rect: rect,
	}
	p.inserted = append(p.inserted, ph)
	return ph, nil
}

func (p *fakePage) placeholders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inserted)
}

func hasAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, c := range want {
		if !set[c] {
			return false
		}
	}
	return true
}
