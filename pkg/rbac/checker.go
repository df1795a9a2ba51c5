package rbac

import (
	"sync"

	"github.com/aquaops/fieldserve/pkg/auth"
)

// Checker evaluates permissions against the matrix plus in-memory
// deployment overrides. Safe for concurrent use.
type Checker struct {
	mu     sync.RWMutex
	matrix Matrix
}

// NewChecker creates a checker over the given matrix
func NewChecker(matrix Matrix) *Checker {
	if matrix == nil {
		matrix = DefaultMatrix()
	}
	return &Checker{matrix: matrix}
}

// CanPerform reports whether the role may use the feature within the
// category. Unknown role, category, or feature resolves to false.
func (c *Checker) CanPerform(role auth.Role, category ResourceCategory, feature Feature) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	grants, ok := c.matrix[role]
	if !ok {
		return false
	}
	flags, ok := grants[category]
	if !ok {
		return false
	}
	return flags[feature]
}

// CanView reports whether the role may see the category at all,
// by consulting the category's explicit view_* feature.
func (c *Checker) CanView(role auth.Role, category ResourceCategory) bool {
	feature, ok := ViewFeature(category)
	if !ok {
		return false
	}
	return c.CanPerform(role, category, feature)
}

// SetOverride flips one flag for a role at runtime. Only declared
// (category, feature) pairs can be overridden; others are ignored so an
// override cannot widen the feature set.
func (c *Checker) SetOverride(role auth.Role, category ResourceCategory, feature Feature, allowed bool) {
	if !role.Valid() {
		return
	}
	declared := false
	for _, f := range CategoryFeatures[category] {
		if f == feature {
			declared = true
			break
		}
	}
	if !declared {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	grants, ok := c.matrix[role]
	if !ok {
		grants = emptyGrants()
		c.matrix[role] = grants
	}
	grants[category][feature] = allowed
}

// Grants returns a copy of the role's full flag set, for capability
// listings in client UIs. Unknown roles get a complete all-false set.
func (c *Checker) Grants(role auth.Role) map[ResourceCategory]map[Feature]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := emptyGrants()
	grants, ok := c.matrix[role]
	if !ok {
		return out
	}
	for category, flags := range grants {
		for feature, allowed := range flags {
			if _, declared := out[category]; declared {
				out[category][feature] = allowed
			}
		}
	}
	return out
}
