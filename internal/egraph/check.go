package egraph

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/marcusrossel/slotted-egraphs/internal/ir"
	"github.com/marcusrossel/slotted-egraphs/internal/lang"
)

// ErrInvariant is wrapped by every violation CheckInvariants reports.
var ErrInvariant = errors.New("egraph invariant violated")

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...)
}

// CheckInvariants scans the whole graph and reports every violated
// invariant. It returns nil for a consistent graph. Only meaningful between
// operations; nothing is checked while a union is in flight.
func (g *EGraph) CheckInvariants() error {
	var result *multierror.Error

	owners := make(map[string]ir.ID)
	for _, id := range g.Classes() {
		c := g.classes[id]

		for _, key := range sortedKeys(c.nodes) {
			m := c.nodes[key]

			// hash-cons uniqueness
			if first, dup := owners[key]; dup {
				result = multierror.Append(result, violation("shape %s owned by %v and %v", key, first, id))
			} else {
				owners[key] = id
			}
			if h, ok := g.hashcons[key]; !ok || h != id {
				result = multierror.Append(result, violation("hash-cons entry for %s is %v, want %v", key, h, id))
			}
			if !lang.IsShape(m.shape) {
				result = multierror.Append(result, violation("member %s of %v is not canonical", key, id))
			}

			// exposed slots
			if !m.bij.IsBijection() {
				result = multierror.Append(result, violation("member %s of %v has non-injective bijection %v", key, id, m.bij))
			}
			if !ir.SameSlots(m.bij.KeySet(), lang.Slots(m.shape)) {
				result = multierror.Append(result, violation("member %s of %v: bijection %v does not cover its slots", key, id, m.bij))
			}
			if !ir.IsSubset(c.slots, m.bij.ValueSet()) {
				result = multierror.Append(result, violation("%v exposes %s but member %s only has %s",
					id, ir.FormatSlots(c.slots), key, ir.FormatSlots(m.bij.ValueSet())))
			}

			// child references
			for _, child := range lang.AppliedIDs(m.shape) {
				cc, live := g.classes[child.ID]
				if !live {
					result = multierror.Append(result, violation("member %s of %v references retired class %v", key, id, child.ID))
					continue
				}
				if !ir.SameSlots(child.M.KeySet(), cc.slots) {
					result = multierror.Append(result, violation("member %s of %v: reference %v does not map exactly %s",
						key, id, child, ir.FormatSlots(cc.slots)))
				}
				if !cc.usages.Contains(usage{owner: id, key: key}) {
					result = multierror.Append(result, violation("%v is missing usage of member %s of %v", child.ID, key, id))
				}
			}
		}
	}

	for key, id := range g.hashcons {
		if c, ok := g.classes[id]; !ok {
			result = multierror.Append(result, violation("hash-cons entry %s points to retired class %v", key, id))
		} else if _, ok := c.nodes[key]; !ok {
			result = multierror.Append(result, violation("hash-cons entry %s points to %v which lacks it", key, id))
		}
	}

	for id, a := range g.unionfind {
		c, ok := g.classes[a.ID]
		if !ok {
			result = multierror.Append(result, violation("union-find entry %v -> %v is not one hop from a live class", id, a))
			continue
		}
		if !a.M.IsBijection() || !ir.SameSlots(a.M.KeySet(), c.slots) {
			result = multierror.Append(result, violation("union-find entry %v -> %v does not map exactly %s", id, a, ir.FormatSlots(c.slots)))
		}
		if _, live := g.classes[id]; live && id != a.ID {
			result = multierror.Append(result, violation("live class %v resolves to %v", id, a.ID))
		}
	}

	return result.ErrorOrNil()
}
