package stitch

import (
	"sort"
	"strings"
)

// InboundPrefixIdx assigns a small integer to each distinct inbound prefix
// of the chains terminating in a focus service/operation. End-to-end chain
// lists use it to disambiguate chains that share an inbound path.
type InboundPrefixIdx struct {
	items []prefixIdxItem
}

type prefixIdxItem struct {
	prefix string
	idx    int
}

// NewInboundPrefixIdx indexes the chains of the focus service/operation.
// Non-leaf chains overwrite leaf chains on the same prefix, and lookups use
// the longest matching prefix.
func NewInboundPrefixIdx(s *Stitched, serviceOper string) *InboundPrefixIdx {
	var chains []CallChainData
	for _, entry := range s.CallChain {
		if entry.Key == serviceOper {
			chains = entry.Chains
			break
		}
	}

	byPrefix := make(map[string]int)
	// leaf chains first, then non-leaf chains overwrite
	for _, wantLeaf := range []bool{true, false} {
		for idx := range chains {
			if chains[idx].IsLeaf != wantLeaf {
				continue
			}
			prefix, _, _ := strings.Cut(chains[idx].FullKey, "&")
			byPrefix[strings.TrimSpace(prefix)] = idx + 1
		}
	}

	out := &InboundPrefixIdx{}
	for prefix, idx := range byPrefix {
		out.items = append(out.items, prefixIdxItem{prefix, idx})
	}
	// longest prefix first so Idx picks the most specific match
	sort.Slice(out.items, func(i, j int) bool {
		if len(out.items[i].prefix) != len(out.items[j].prefix) {
			return len(out.items[i].prefix) > len(out.items[j].prefix)
		}
		return out.items[i].prefix < out.items[j].prefix
	})
	return out
}

// Idx returns the index of the longest prefix matching fullKey, 0 when no
// prefix matches.
func (p *InboundPrefixIdx) Idx(fullKey string) int {
	for _, item := range p.items {
		if strings.HasPrefix(fullKey, item.prefix) {
			return item.idx
		}
	}
	return 0
}
