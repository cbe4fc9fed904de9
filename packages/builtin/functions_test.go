package builtin

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/reqly/packages/core/env"
)

var fixed = time.Date(2024, 3, 9, 14, 5, 6, 789_000_000, time.UTC)

func newTestScope() *Scope {
	return NewScope(WithClock(func() time.Time { return fixed }), WithSeed(42))
}

func TestLookup_Values(t *testing.T) {
	s := newTestScope()
	tests := []struct {
		key  string
		want string
	}{
		{"$timestamp", "1709993106"},
		{"$timestampMs", "1709993106789"},
		{"$isoTimestamp", "2024-03-09T14:05:06.789Z"},
		{"$date", "2024-03-09"},
		{"$date(02/01/2006)", "09/03/2024"},
		{"$base64(user:pass)", "dXNlcjpwYXNz"},
		{"$base64Decode(dXNlcjpwYXNz)", "user:pass"},
		{"$md5(abc)", "900150983cd24fb0d6963f7d28e17f72"},
		{"$sha256(abc)", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"$urlEncode('a b&c')", "a+b%26c"},
		{"$urlDecode(a+b%26c)", "a b&c"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := s.Lookup(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookup_NotFound(t *testing.T) {
	s := newTestScope()
	for _, key := range []string{
		"guid",
		"$unknown",
		"$base64",
		"$randomInt(a, b)",
		"$randomInt(10, 1)",
		"$base64Decode(%%%)",
		"$",
	} {
		_, ok := s.Lookup(key)
		assert.False(t, ok, key)
	}
}

func TestLookup_UUID(t *testing.T) {
	s := newTestScope()
	a, ok := s.Lookup("$guid")
	require.True(t, ok)
	b, _ := s.Lookup("$randomUUID")

	_, err := uuid.Parse(a)
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLookup_RandomInt(t *testing.T) {
	s := newTestScope()
	for range 100 {
		v, ok := s.Lookup("$randomInt(3, 5)")
		require.True(t, ok)
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 3)
		assert.LessOrEqual(t, n, 5)
	}

	v, ok := s.Lookup("$randomInt")
	require.True(t, ok)
	n, _ := strconv.Atoi(v)
	assert.LessOrEqual(t, n, 1000)

	v, ok = s.Lookup("$randomInt(0)")
	require.True(t, ok)
	assert.Equal(t, "0", v)
}

func TestLookup_RandomStrings(t *testing.T) {
	s := newTestScope()

	v, _ := s.Lookup("$randomString(12)")
	assert.Len(t, v, 12)
	v, _ = s.Lookup("$randomAlphaNumeric")
	assert.Len(t, v, 1)
	v, _ = s.Lookup("$randomEmail")
	assert.Regexp(t, `^[a-z]{8}@[a-z]{6}\.com$`, v)
	v, _ = s.Lookup("$randomBoolean")
	assert.Contains(t, []string{"true", "false"}, v)
}

func TestSeedIsReproducible(t *testing.T) {
	a, _ := NewScope(WithSeed(7)).Lookup("$randomString(20)")
	b, _ := NewScope(WithSeed(7)).Lookup("$randomString(20)")
	assert.Equal(t, a, b)
}

func TestRegister(t *testing.T) {
	s := newTestScope()
	s.Register("tenant", func(_ *Scope, args []string) (string, error) {
		return "t-" + args[0], nil
	})

	v, ok := s.Lookup("$tenant(acme)")
	require.True(t, ok)
	assert.Equal(t, "t-acme", v)
	assert.Contains(t, s.Names(), "tenant")
}

func TestResolveThroughEnv(t *testing.T) {
	s := newTestScope()
	vars := env.MapScope{"timestamp": "shadowed", "host": "api.test"}

	got := env.Resolve("https://{{host}}/t/{{$timestamp}}?d={{ $date }}&x={{$nope}}", vars, s)
	assert.Equal(t, "https://api.test/t/1709993106?d=2024-03-09&x={{$nope}}", got)
}

func TestConcurrentLookups(t *testing.T) {
	s := NewScope()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, ok := s.Lookup("$randomInt(1, 100)")
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()
}
