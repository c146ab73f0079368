package cache

import (
	"fmt"
	"net/url"
	"strings"
)

// Key builds a deterministic, order-sensitive cache key. Parts are escaped so
// the separator never appears inside a part and distinct argument lists never collide.
func Key(op string, args ...any) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, url.QueryEscape(op))
	for _, a := range args {
		parts = append(parts, url.QueryEscape(fmt.Sprint(a)))
	}
	return strings.Join(parts, ":")
}
