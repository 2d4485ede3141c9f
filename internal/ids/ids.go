// Package ids generates identifiers for elements and clips.
package ids

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns a fresh, lexically sortable id.
func New() string {
	return strings.ToLower(ulid.Make().String())
}

// Derived returns a fresh id that keeps prefix as its leading part, so
// split and duplicated items stay recognisable next to their source.
func Derived(prefix string) string {
	if prefix == "" {
		return New()
	}
	return prefix + "-" + New()
}
