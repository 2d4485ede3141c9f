package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestDerivedKeepsPrefix(t *testing.T) {
	id := Derived("clip1")
	assert.True(t, strings.HasPrefix(id, "clip1-"))
	assert.NotEqual(t, Derived("clip1"), id)
	assert.NotEmpty(t, Derived(""))
}
