package repair

import (
	"github.com/spanlens/spanlens/backend/chain"
)

// Remap tries to extend an unrooted chain to a known catalogue chain. The
// chain of length L matches a candidate when the candidate's last L calls
// equal it field-wise (service and operation; direction and leaf flag are
// ignored).
//
// Exactly one match adopts the candidate's chain and leaf flag. With two
// matches the one with the same leaf flag wins, else the first. Zero or
// three-plus matches leave the key unchanged; numMatches lets the caller
// record the incident.
func Remap(key *chain.Key, expected []chain.Key) (remapped bool, numMatches int) {
	l := len(key.CallChain)
	var matches []chain.Key
	for _, cand := range expected {
		if len(cand.CallChain) < l {
			continue
		}
		if suffixEqual(key.CallChain, cand.CallChain) {
			matches = append(matches, cand)
		}
	}

	var winner *chain.Key
	switch len(matches) {
	case 0:
	case 1:
		winner = &matches[0]
	case 2:
		winner = &matches[0]
		if matches[0].IsLeaf != key.IsLeaf && matches[1].IsLeaf == key.IsLeaf {
			winner = &matches[1]
		}
	default:
		// ambiguous, leave the chain unrepaired
	}
	if winner == nil {
		return false, len(matches)
	}
	key.CallChain = append(chain.CallChain(nil), winner.CallChain...)
	key.IsLeaf = winner.IsLeaf
	return true, len(matches)
}

// suffixEqual compares cc against the trailing len(cc) calls of candidate.
func suffixEqual(cc, candidate chain.CallChain) bool {
	offset := len(candidate) - len(cc)
	for i, call := range cc {
		if !call.Equal(candidate[offset+i]) {
			return false
		}
	}
	return true
}
