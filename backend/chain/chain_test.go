package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlens/spanlens/internal/models"
)

func TestCallString(t *testing.T) {
	call := Call{Service: "svc-a", Operation: "GET", Direction: models.Outbound}
	assert.Equal(t, "svc-a/GET [Outbound]", call.String())

	unknown := Call{Service: "svc-a", Operation: "GET", Direction: models.Unknown}
	assert.Equal(t, "svc-a/GET", unknown.String())
}

func TestFormatKeyCanonicalForm(t *testing.T) {
	key := Key{
		CallChain: CallChain{
			{Service: "svc-a", Operation: "GET", Direction: models.Outbound},
			{Service: "svc-b", Operation: "handle", Direction: models.Inbound},
		},
		CachingService: "[cache-1]",
		IsLeaf:         true,
	}
	assert.Equal(t, "svc-a/GET [Outbound] | svc-b/handle [Inbound] & [cache-1]&  *LEAF*", key.String())
}

func TestParseKeyRoundTrip(t *testing.T) {
	keys := []Key{
		{
			CallChain: CallChain{
				{Service: "svc-a", Operation: "GET", Direction: models.Outbound},
				{Service: "svc-b", Operation: "handle", Direction: models.Inbound},
			},
			CachingService: "[cache-1]",
			IsLeaf:         true,
		},
		{
			CallChain: CallChain{
				{Service: "gw", Operation: "route", Direction: models.Unknown},
			},
		},
		{
			CallChain: CallChain{
				{Service: "a", Operation: "x", Direction: models.Inbound},
				{Service: "b", Operation: "y", Direction: models.Outbound},
				{Service: "c", Operation: "z", Direction: models.Inbound},
			},
			IsLeaf: false,
		},
	}
	for _, key := range keys {
		parsed, err := ParseKey(key.String())
		require.NoError(t, err)
		assert.Equal(t, key, parsed)
	}
}

func TestParseKeyFields(t *testing.T) {
	parsed, err := ParseKey("svc-a/GET [Outbound] | svc-b/handle [Inbound] & [cache-1]&  *LEAF*")
	require.NoError(t, err)

	require.Len(t, parsed.CallChain, 2)
	assert.Equal(t, "[cache-1]", parsed.CachingService)
	assert.True(t, parsed.IsLeaf)
	assert.Equal(t, "svc-a/GET", parsed.Endpoint())
	assert.Equal(t, "svc-b/handle", parsed.Leaf())
	assert.Equal(t, "svc-b", parsed.LeafService())
}

func TestParseKeyRejectsBadLeafMarker(t *testing.T) {
	_, err := ParseKey("a/b & & *TRUNK*")
	assert.Error(t, err)
}

func TestInboundKey(t *testing.T) {
	key := Key{
		CallChain: CallChain{
			{Service: "gw", Operation: "route", Direction: models.Inbound},
			{Service: "gw", Operation: "GET", Direction: models.Outbound},
			{Service: "svc", Operation: "handle", Direction: models.Inbound},
		},
	}
	assert.Equal(t, "gw/route, svc/handle", key.InboundKey())

	// no inbound call at all: fall back to the first call
	noInbound := Key{
		CallChain: CallChain{
			{Service: "gw", Operation: "route", Direction: models.Outbound},
		},
	}
	assert.Equal(t, "gw/route", noInbound.InboundKey())
}

func TestCachingServiceLabel(t *testing.T) {
	cc := CallChain{
		{Service: "gw", Operation: "route", Direction: models.Inbound},
		{Service: "redis", Operation: "lookup", Direction: models.Outbound},
		{Service: "redis", Operation: "GET", Direction: models.Outbound},
	}
	assert.Equal(t, "[redis]", CachingServiceLabel([]string{"redis"}, cc))
	assert.Equal(t, "", CachingServiceLabel(nil, cc))
	assert.Equal(t, "", CachingServiceLabel([]string{"memcache"}, cc))
}
