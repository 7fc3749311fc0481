package records

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyGenerator_DeterministicWithInjectedSources(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return at }

	first := NewKeyGeneratorWith(clock, rand.New(rand.NewSource(42))).Next()
	second := NewKeyGeneratorWith(clock, rand.New(rand.NewSource(42))).Next()

	assert.Equal(t, first, second)
}

func TestKeyGenerator_TimestampPrefixPlusSuffix(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewKeyGeneratorWith(func() time.Time { return at }, rand.New(rand.NewSource(1)))

	key := g.Next()

	prefix := strconv.FormatInt(at.UnixNano(), 36)
	require.True(t, strings.HasPrefix(key, prefix), key)
	assert.Len(t, key, len(prefix)+4)
}

func TestKeyGenerator_SuccessiveKeysDiffer(t *testing.T) {
	g := NewKeyGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := g.Next()
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}
