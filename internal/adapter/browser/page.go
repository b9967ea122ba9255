package browser

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-rod/rod"
	"github.com/google/uuid"

	"adswap/internal/element"
	"adswap/internal/locator"
)

// PlaceholderClass marks every inserted placeholder.
const PlaceholderClass = "extension-content-widget"

const rectScript = `() => {
	const r = this.getBoundingClientRect();
	return {width: r.width, height: r.height, top: r.top, left: r.left};
}`

// replaceScript hides the element in place and inserts a sized placeholder
// before it. The original node stays in the document.
const replaceScript = `(cls, id, width, height, text) => {
	const div = document.createElement('div');
	div.className = cls;
	div.dataset.adswapId = id;
	div.style.cssText = [
		'width: ' + width + 'px',
		'height: ' + height + 'px',
		'display: flex',
		'align-items: center',
		'justify-content: center',
		'text-align: center',
		'padding: 10px',
		'background: #f8f9fa',
		'border-radius: 4px',
		'font-family: Arial, sans-serif',
	].join(';');
	div.textContent = text;
	this.style.display = 'none';
	this.parentNode.insertBefore(div, this);
}`

const scanScript = `(selector, cls) => Array.from(document.querySelectorAll(selector))
	.filter(el => !el.classList.contains(cls) && el.style.display !== 'none')
	.map(el => {
		const r = el.getBoundingClientRect();
		return {
			tagName: el.tagName.toLowerCase(),
			classList: Array.from(el.classList),
			rect: {width: r.width, height: r.height, top: r.top, left: r.left},
		};
	})`

const viewportScript = `() => ({windowWidth: window.innerWidth, windowHeight: window.innerHeight})`

// Page is a live document. It satisfies locator.Page.
type Page struct {
	page *rod.Page
	url  string
}

type liveElement struct {
	id locator.ElementID
	el *rod.Element
}

func (e *liveElement) ID() locator.ElementID { return e.id }

func (e *liveElement) Rect(ctx context.Context) (element.Rect, error) {
	res, err := e.el.Context(ctx).Eval(rectScript)
	if err != nil {
		return element.Rect{}, fmt.Errorf("browser: measure element: %w", err)
	}
	var rect element.Rect
	if err := res.Value.Unmarshal(&rect); err != nil {
		return element.Rect{}, fmt.Errorf("browser: decode rect: %w", err)
	}
	return rect, nil
}

func (p *Page) URL() string {
	return p.url
}

// Query returns the elements matching selector. Element ids are the
// backend node ids, stable for the life of the node.
func (p *Page) Query(ctx context.Context, selector string) ([]locator.Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}

	out := make([]locator.Element, 0, len(els))
	for _, el := range els {
		node, err := el.Describe(0, false)
		if err != nil {
			continue
		}
		out = append(out, &liveElement{
			id: locator.ElementID(strconv.Itoa(int(node.BackendNodeID))),
			el: el,
		})
	}
	return out, nil
}

func (p *Page) Replace(ctx context.Context, el locator.Element, rect element.Rect, text string) (locator.Placeholder, error) {
	live, ok := el.(*liveElement)
	if !ok {
		return locator.Placeholder{}, fmt.Errorf("browser: foreign element %s", el.ID())
	}

	id := uuid.New().String()
	if _, err := live.el.Context(ctx).Eval(replaceScript, PlaceholderClass, id, rect.Width, rect.Height, text); err != nil {
		return locator.Placeholder{}, fmt.Errorf("browser: insert placeholder: %w", err)
	}
	return locator.Placeholder{
		ID:   locator.ElementID(id),
		Text: text,
		Rect: rect,
	}, nil
}

// Scan snapshots every visible element matching selector. Placeholders and
// already hidden elements are skipped.
func (p *Page) Scan(ctx context.Context, selector string) ([]element.Descriptor, error) {
	res, err := p.page.Context(ctx).Eval(scanScript, selector, PlaceholderClass)
	if err != nil {
		return nil, fmt.Errorf("browser: scan %q: %w", selector, err)
	}
	var out []element.Descriptor
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("browser: decode scan: %w", err)
	}
	return out, nil
}

func (p *Page) Viewport(ctx context.Context) (element.Viewport, error) {
	res, err := p.page.Context(ctx).Eval(viewportScript)
	if err != nil {
		return element.Viewport{}, fmt.Errorf("browser: viewport: %w", err)
	}
	var vp element.Viewport
	if err := res.Value.Unmarshal(&vp); err != nil {
		return element.Viewport{}, fmt.Errorf("browser: decode viewport: %w", err)
	}
	return vp, nil
}

func (p *Page) Close() error {
	return p.page.Close()
}

var _ locator.Page = (*Page)(nil)
