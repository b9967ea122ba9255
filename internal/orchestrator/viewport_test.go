package orchestrator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"adswap/internal/element"
)

func TestViewports_BoundedByRecentOrigins(t *testing.T) {
	fallback := element.Viewport{Width: 1280, Height: 800}
	v := newViewports(fallback, 2)

	tab1 := element.Viewport{Width: 390, Height: 844}
	tab2 := element.Viewport{Width: 768, Height: 1024}
	tab3 := element.Viewport{Width: 1920, Height: 1080}

	v.resolve("tab-1", &tab1)
	v.resolve("tab-2", &tab2)
	// tab-1 is used again, so tab-2 is the oldest when tab-3 arrives.
	assert.Equal(t, tab1, v.resolve("tab-1", nil))
	v.resolve("tab-3", &tab3)

	assert.Equal(t, 2, v.len())
	assert.Equal(t, tab1, v.resolve("tab-1", nil))
	assert.Equal(t, tab3, v.resolve("tab-3", nil))
	assert.Equal(t, fallback, v.resolve("tab-2", nil), "evicted origin uses the fallback")
}

func TestViewports_ManyOriginsStayCapped(t *testing.T) {
	v := newViewports(element.Viewport{Width: 1280, Height: 800}, 0)
	for i := 0; i < maxTrackedViewports*3; i++ {
		v.resolve(fmt.Sprintf("tab-%d", i), &element.Viewport{Width: 100, Height: 100})
	}
	assert.Equal(t, maxTrackedViewports, v.len())
}
