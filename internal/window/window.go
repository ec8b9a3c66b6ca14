// Package window implements context expansion: id-range windows around hit
// messages and the merge of overlapping or touching windows into blocks.
package window

import "sort"

// DefaultContextSize is the number of messages included on each side of a
// hit when the caller does not specify one.
const DefaultContextSize = 5

// Window is an inclusive id range.
type Window struct {
	Lo int64
	Hi int64
}

// Around builds one window [id-size, id+size] per hit id, clamped at id 1,
// sorted by lower bound. Duplicate hit ids are collapsed.
func Around(ids []int64, size int) []Window {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	ws := make([]Window, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		lo := id - int64(size)
		if lo < 1 {
			lo = 1
		}
		ws = append(ws, Window{Lo: lo, Hi: id + int64(size)})
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].Lo < ws[j].Lo })
	return ws
}

// Merge joins overlapping and exactly-touching windows into maximal blocks.
// Touching boundaries merge: [95,105] and [106,110] become [95,110], so a
// message id can appear in at most one block. Input must be sorted by Lo.
func Merge(ws []Window) []Window {
	if len(ws) == 0 {
		return nil
	}
	out := make([]Window, 0, len(ws))
	out = append(out, ws[0])
	for _, w := range ws[1:] {
		last := &out[len(out)-1]
		if w.Lo <= last.Hi+1 {
			if w.Hi > last.Hi {
				last.Hi = w.Hi
			}
			continue
		}
		out = append(out, w)
	}
	return out
}
