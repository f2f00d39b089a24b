package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrontierFIFO(t *testing.T) {
	f := &frontier{}
	assert.Equal(t, 0, f.Len())

	f.Push(frontierItem{url: "https://example.com/a", depth: 0})
	f.Push(
		frontierItem{url: "https://example.com/b", depth: 1},
		frontierItem{url: "https://example.com/c", depth: 1},
	)
	assert.Equal(t, 3, f.Len())

	first, ok := f.Pop()
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/a", first.url)

	second, ok := f.Pop()
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/b", second.url)
	assert.Equal(t, 1, second.depth)

	third, ok := f.Pop()
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/c", third.url)

	_, ok = f.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, f.Len())
}

func TestVisitedSet(t *testing.T) {
	v := newVisitedSet()
	assert.False(t, v.Has("https://example.com/"))
	assert.Equal(t, 0, v.Len())

	v.Add("https://example.com/")
	assert.True(t, v.Has("https://example.com/"))
	assert.False(t, v.Has("https://example.com/other"))
	assert.Equal(t, 1, v.Len())

	// Re-adding is a no-op.
	v.Add("https://example.com/")
	assert.Equal(t, 1, v.Len())
}
