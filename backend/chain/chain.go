package chain

import (
	"fmt"
	"strings"

	"github.com/spanlens/spanlens/internal/models"
)

// CallChain is the ordered sequence of calls from the trace root (or the
// earliest visible span for unrooted chains) toward a terminal span.
type CallChain []Call

// LeafLabel marks chains that terminate at a leaf span in the canonical key.
const LeafLabel = "*LEAF*"

const leafLabelWithSpace = " " + LeafLabel

// Key identifies the statistics bucket of one call chain: the path itself,
// the caching-service label and whether the chain ends at a leaf.
type Key struct {
	CallChain      CallChain `json:"call_chain" msgpack:"call_chain"`
	CachingService string    `json:"caching_process" msgpack:"caching_process"`
	IsLeaf         bool      `json:"is_leaf" msgpack:"is_leaf"`
}

// FormatKey builds the canonical textual key. The '&' separator keeps the
// key intact inside ';'-separated CSV files.
func FormatKey(cc CallChain, cachingService string, isLeaf bool) string {
	parts := make([]string, len(cc))
	for i, call := range cc {
		parts[i] = call.String()
	}
	leaf := ""
	if isLeaf {
		leaf = leafLabelWithSpace
	}
	return strings.Join(parts, " | ") + " & " + cachingService + "& " + leaf
}

// String renders the canonical key of k.
func (k Key) String() string {
	return FormatKey(k.CallChain, k.CachingService, k.IsLeaf)
}

// ParseKey reconstructs a Key from its canonical textual form.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "&")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return Key{}, fmt.Errorf("call-chain key is empty")
	}
	var key Key
	if len(parts) > 1 {
		key.CachingService = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		switch leaf := strings.TrimSpace(parts[2]); leaf {
		case LeafLabel:
			key.IsLeaf = true
		case "":
		default:
			return Key{}, fmt.Errorf("expected %s or empty leaf marker, found %q", LeafLabel, leaf)
		}
	}
	for _, callStr := range strings.Split(parts[0], "|") {
		call, err := ParseCall(callStr)
		if err != nil {
			return Key{}, err
		}
		key.CallChain = append(key.CallChain, call)
	}
	return key, nil
}

// Endpoint returns the "service/operation" of the first call, the external
// entry point of this chain.
func (k Key) Endpoint() string {
	if len(k.CallChain) == 0 {
		return ""
	}
	return k.CallChain[0].ServiceOper()
}

// Leaf returns the "service/operation" of the last call. Whether this is a
// real leaf depends on IsLeaf: partial chains extend beyond it.
func (k Key) Leaf() string {
	if len(k.CallChain) == 0 {
		return ""
	}
	return k.CallChain[len(k.CallChain)-1].ServiceOper()
}

// LeafService returns the service of the last call, the grouping key of the
// per-service statistics.
func (k Key) LeafService() string {
	if len(k.CallChain) == 0 {
		return ""
	}
	return k.CallChain[len(k.CallChain)-1].Service
}

// Operation returns the operation of the last call.
func (k Key) Operation() string {
	if len(k.CallChain) == 0 {
		return ""
	}
	return k.CallChain[len(k.CallChain)-1].Operation
}

// InboundKey builds a compressed key from the inbound calls only. It carries
// less redundancy than the full key but is not guaranteed unique. When no
// call is marked inbound the first call is shown (an api-gateway entry that
// lost its kind tag).
func (k Key) InboundKey() string {
	var parts []string
	for _, call := range k.CallChain {
		if call.Direction == models.Inbound {
			parts = append(parts, call.ServiceOper())
		}
	}
	if len(parts) == 0 && len(k.CallChain) > 0 {
		return k.CallChain[0].ServiceOper()
	}
	return strings.Join(parts, ", ")
}

// CachingServiceLabel returns the bracketed list of configured caching
// services that occur on the chain, or "" when none do. Plain transport
// methods are skipped so a cache is not counted twice for the call into it.
func CachingServiceLabel(cachingServices []string, cc CallChain) string {
	if len(cachingServices) == 0 {
		return ""
	}
	var cached []string
	for _, call := range cc {
		switch call.Operation {
		case "GET", "POST", "HEAD", "QUERY":
			continue
		}
		for _, cs := range cachingServices {
			if cs == call.Service {
				cached = append(cached, call.Service)
				break
			}
		}
	}
	if len(cached) == 0 {
		return ""
	}
	return "[" + strings.Join(cached, ", ") + "]"
}
