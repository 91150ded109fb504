package counted

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounted(t *testing.T) {
	c := New[string]()
	assert.Equal(t, 0, c.Count("x"))
	assert.Equal(t, 1, c.Add("x"))
	assert.Equal(t, 2, c.Add("x"))
	c.AddItems([]string{"x", "y"})
	assert.Equal(t, 3, c.Count("x"))
	assert.Equal(t, 1, c.Count("y"))
	assert.Equal(t, 4, c.Total())
}

func TestMerge(t *testing.T) {
	a := New[int]()
	a.AddCount(1, 2)
	b := New[int]()
	b.AddCount(1, 3)
	b.Add(2)
	a.Merge(b)
	assert.Equal(t, 5, a.Count(1))
	assert.Equal(t, 1, a.Count(2))
}
