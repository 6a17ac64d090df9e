package mutation

import (
	"fmt"
	"sort"
)

// Result is the outcome of one deduplication pass. Keep and Remove
// partition the input descriptor ids exactly: every input id lands in
// one of the two, never both. Actions is a human-readable trace of
// which rule fired for which entity.
type Result struct {
	Keep    []string
	Remove  []string
	Actions []string
}

// Deduplicate collapses redundant queued mutations before replay. It
// groups descriptors by entity, orders each group by submission time,
// and applies three reduction rules in priority order:
//
//  1. create+delete cancellation: the entity was created offline under a
//     provisional id and then deleted, so the server never knew about it.
//     Every operation in the group is dropped.
//  2. delete absorbs updates: updating a record that is about to be
//     deleted is wasted work; only the delete (and a server-acknowledged
//     create, which the delete depends on) survives.
//  3. multi-update merge: only the chronologically last update survives.
//     Its payload is expected to already carry the cumulative intent;
//     callers that queue partial updates must collapse them with
//     MergeUpdateVariables before replay.
//
// A group matching none of the rules is kept unchanged. Deduplicate
// never fails; the worst case is a pass that keeps everything.
func Deduplicate(descs []Descriptor) Result {
	res := Result{
		Keep:    []string{},
		Remove:  []string{},
		Actions: []string{},
	}

	for _, group := range groupByEntity(descs) {
		reduceGroup(group, &res)
	}

	return res
}

// groupByEntity partitions descriptors by composite entity key,
// preserving first-appearance order of groups and sorting each group by
// timestamp ascending (stable, so same-timestamp operations keep their
// queue order).
func groupByEntity(descs []Descriptor) [][]Descriptor {
	byKey := make(map[EntityKey][]Descriptor)
	order := make([]EntityKey, 0)

	for _, d := range descs {
		key := d.Key()
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}

		byKey[key] = append(byKey[key], d)
	}

	groups := make([][]Descriptor, 0, len(order))

	for _, key := range order {
		group := byKey[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})
		groups = append(groups, group)
	}

	return groups
}

// reduceGroup applies the reduction rules to one entity's operations and
// appends its keep/remove/action contributions to res.
func reduceGroup(group []Descriptor, res *Result) {
	key := group[0].Key()

	var hasCreate, hasDelete bool

	var updates int

	for _, d := range group {
		switch d.Kind {
		case KindCreate:
			hasCreate = true
		case KindDelete:
			hasDelete = true
		case KindUpdate:
			updates++
		}
	}

	switch {
	case hasCreate && hasDelete && IsTempID(key.ID):
		// The create never reached the server, so the entity has no
		// server-side existence. Nothing to send at all.
		for _, d := range group {
			res.Remove = append(res.Remove, d.ID)
		}

		res.Actions = append(res.Actions, fmt.Sprintf(
			"%s %s: cancelled unsynced create+delete, dropped %d operations",
			key.Type, key.ID, len(group)))

	case hasDelete && updates > 0:
		// A create in this branch carries a real server id (a
		// provisional create+delete was caught by the rule above), and
		// the delete depends on it having been sent.
		for _, d := range group {
			if d.Kind == KindUpdate {
				res.Remove = append(res.Remove, d.ID)
			} else {
				res.Keep = append(res.Keep, d.ID)
			}
		}

		res.Actions = append(res.Actions, fmt.Sprintf(
			"%s %s: delete absorbed %d updates", key.Type, key.ID, updates))

	case updates > 1:
		// Keep only the last update. The group is timestamp-sorted, so
		// that is the last update encountered in order.
		lastUpdate := ""

		for _, d := range group {
			if d.Kind == KindUpdate {
				lastUpdate = d.ID
			}
		}

		for _, d := range group {
			if d.Kind == KindUpdate && d.ID != lastUpdate {
				res.Remove = append(res.Remove, d.ID)
			} else {
				res.Keep = append(res.Keep, d.ID)
			}
		}

		res.Actions = append(res.Actions, fmt.Sprintf(
			"%s %s: merged %d updates into the latest", key.Type, key.ID, updates))

	default:
		for _, d := range group {
			res.Keep = append(res.Keep, d.ID)
		}
	}
}
