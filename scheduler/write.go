package scheduler

import (
	"fmt"

	"fluent/collection"
	"fluent/rule"
	"fluent/tuple"
)

// applyWrite dispatches a rule's write mode onto the concrete collection
// kind's write primitive. The kinds don't share a single write signature —
// Table/Scratch never fail, Channel/Stdout can (encoding, address typing) —
// so rather than forcing every kind through one fallible interface method,
// the scheduler switches on concrete type once per write and reports which
// (target, mode) combinations spec.md §3 doesn't allow.
//
// ephemeral reports whether the target never retains t (a channel send or a
// printed stdout line): spec.md §4.3 says such writes get an immediate
// paired delete-lineage event, since the tuple isn't around at the next
// tick to be deleted the ordinary way.
func applyWrite(target collection.Collection, mode rule.Mode, t tuple.Tuple, hash uint64, logicalTime int64) (ephemeral bool, err error) {
	switch c := target.(type) {
	case *collection.Table:
		switch mode {
		case rule.Merge:
			c.Merge(t, hash, logicalTime)
		case rule.DeferMerge:
			c.DeferMerge(t, hash, logicalTime)
		case rule.DeferDelete:
			c.DeferDelete(t, hash, logicalTime)
		default:
			return false, fmt.Errorf("scheduler: table %q: unknown write mode %v", c.Name(), mode)
		}
		return false, nil

	case *collection.Scratch:
		if mode != rule.Merge {
			return false, fmt.Errorf("scheduler: scratch %q only accepts merge, got %v", c.Name(), mode)
		}
		c.Merge(t, hash, logicalTime)
		return false, nil

	case *collection.Channel:
		if mode != rule.Merge {
			return false, fmt.Errorf("scheduler: channel %q only accepts merge, got %v", c.Name(), mode)
		}
		if err := c.Merge(t, hash, logicalTime); err != nil {
			return false, err
		}
		return true, nil

	case *collection.Stdout:
		switch mode {
		case rule.Merge:
			if err := c.Merge(t, hash, logicalTime); err != nil {
				return false, err
			}
		case rule.DeferMerge:
			c.DeferMerge(t, hash, logicalTime)
		default:
			return false, fmt.Errorf("scheduler: stdout only accepts merge or deferred merge, got %v", mode)
		}
		return true, nil

	default:
		return false, fmt.Errorf("scheduler: %q of kind %v is not a valid rule target", target.Name(), target.Kind())
	}
}
