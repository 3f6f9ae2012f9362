package conflict

import (
	"fmt"
	"net/url"
	"strings"
)

// ConflictError reports that a candidate dataset overlaps a dataset owned by
// an active policy.
type ConflictError struct {
	Candidate string
	Existing  string
	Policy    string
}

func (e *ConflictError) Error() string {
	if e.Policy == "" {
		return fmt.Sprintf("dataset %s conflicts with registered dataset %s", e.Candidate, e.Existing)
	}
	return fmt.Sprintf("dataset %s conflicts with dataset %s of active policy %s", e.Candidate, e.Existing, e.Policy)
}

// HiveOverlap reports whether two table-like dataset names collide.
func HiveOverlap(candidate, registered string) bool {
	return candidate == registered
}

// FSOverlap reports whether two filesystem paths collide: equal paths, or
// one path being an ancestor of the other. The path with fewer segments is
// taken as the parent; on a tie the candidate is.
func FSOverlap(candidate, registered string) bool {
	candidate, registered = pathOf(candidate), pathOf(registered)

	if candidate == registered {
		return true
	}

	candParts := splitPath(candidate)
	if len(candParts) > 1 && !strings.HasPrefix(registered, "/"+candParts[1]) {
		return false
	}

	regParts := splitPath(registered)
	parent, child := candParts, regParts
	if len(regParts) < len(candParts) {
		parent, child = regParts, candParts
	}
	for i, seg := range parent {
		if child[i] != seg {
			return false
		}
	}
	return true
}

// splitPath splits on "/" and drops trailing empty segments, so "/a/b/"
// and "/a/b" split alike.
func splitPath(p string) []string {
	parts := strings.Split(p, "/")
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// pathOf strips a scheme and authority from a fully qualified path.
func pathOf(p string) string {
	if !strings.Contains(p, "://") {
		return p
	}
	u, err := url.Parse(p)
	if err != nil {
		return p
	}
	return u.Path
}
