package orchestrator

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"adswap/internal/element"
)

// maxTrackedViewports bounds how many page contexts keep a last-known
// viewport. The least recently reporting context is forgotten first.
const maxTrackedViewports = 1024

// viewports remembers the last viewport each page context reported.
type viewports struct {
	byOrigin *lru.Cache[string, element.Viewport]
	fallback element.Viewport
}

func newViewports(fallback element.Viewport, size int) *viewports {
	if size < 1 {
		size = maxTrackedViewports
	}
	// New only fails for a non-positive size.
	cache, _ := lru.New[string, element.Viewport](size)
	return &viewports{byOrigin: cache, fallback: fallback}
}

// resolve prefers the reported viewport, then the last one seen for origin,
// then the configured fallback.
func (v *viewports) resolve(origin string, reported *element.Viewport) element.Viewport {
	if reported != nil && !reported.IsZero() {
		v.byOrigin.Add(origin, *reported)
		return *reported
	}
	if vp, ok := v.byOrigin.Get(origin); ok {
		return vp
	}
	return v.fallback
}

func (v *viewports) len() int {
	return v.byOrigin.Len()
}
