package httpcore

import (
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDnsCacheEntryPositive(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	entry := &dnsCacheEntry{
		records:  []dns.RR{aRecord("foo.com.", 300, "1.1.1.1")},
		deadline: now.Add(300 * time.Second),
	}

	encoded, err := encodeDnsCacheEntry(entry)
	require.NoError(t, err)

	decoded, err := decodeDnsCacheEntry(encoded)
	require.NoError(t, err)
	assert.False(t, decoded.negative)
	assert.WithinDuration(t, entry.deadline, decoded.deadline, 0)
	require.Len(t, decoded.records, 1)
	assert.Equal(t, "1.1.1.1", decoded.records[0].(*dns.A).A.String())
}

func TestEncodeDecodeDnsCacheEntryNegative(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	entry := &dnsCacheEntry{negative: true, deadline: now.Add(2 * time.Second)}

	encoded, err := encodeDnsCacheEntry(entry)
	require.NoError(t, err)

	decoded, err := decodeDnsCacheEntry(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.negative)
	assert.Nil(t, decoded.records)
	assert.WithinDuration(t, entry.deadline, decoded.deadline, 0)
}

func TestDecodeDnsCacheEntryRejectsShortInput(t *testing.T) {
	_, err := decodeDnsCacheEntry([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeDnsCacheEntryRejectsUnknownVersion(t *testing.T) {
	header := make([]byte, redisEntryHeaderSz)
	header[0] = redisEntryVersion + 1
	_, err := decodeDnsCacheEntry(header)
	assert.Error(t, err)
}

func TestRedisBackendKeyIsCaseInsensitiveOnName(t *testing.T) {
	b := &redisBackend{prefix: "httpcore:"}
	k1 := b.key(Question{Name: "Foo.COM.", RecordType: dns.TypeA})
	k2 := b.key(Question{Name: "foo.com.", RecordType: dns.TypeA})
	assert.Equal(t, k1, k2)
}
