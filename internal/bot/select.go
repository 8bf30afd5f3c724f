package bot

import (
	"strings"

	"woonbot/internal/woonnet"
)

// SelectTargets picks targets from listings, which must be sorted
// cheapest first. skip holds listing ids to leave out.
//
// Explicit ids win: they are returned in the given order, limited to ids
// discovery returned unless sel.Force is set. Otherwise the first
// sel.Count listings are taken, or all of them with sel.Max.
func SelectTargets(listings []woonnet.Listing, sel Selection, skip map[string]bool) []woonnet.Listing {
	byID := make(map[string]woonnet.Listing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}

	var out []woonnet.Listing
	if len(sel.IDs) > 0 {
		seen := map[string]bool{}
		for _, raw := range sel.IDs {
			id := strings.TrimSpace(raw)
			if id == "" || seen[id] || skip[id] {
				continue
			}
			seen[id] = true
			l, ok := byID[id]
			if !ok {
				if !sel.Force {
					continue
				}
				l = woonnet.Listing{ID: id}
			}
			out = append(out, l)
		}
		return out
	}

	n := sel.Count
	if n <= 0 {
		n = 1
	}
	for _, l := range listings {
		if skip[l.ID] {
			continue
		}
		if !sel.Max && len(out) >= n {
			break
		}
		out = append(out, l)
	}
	return out
}
