package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload := []byte(`{"message":"hello hello hello hello"}`)
	for _, tc := range []struct {
		name string
		typ  Type
	}{
		{"gzip", TypeGzip},
		{"deflate", TypeDeflate},
		{"zstd", TypeZstd},
		{"br", TypeBr},
	} {
		t.Run(tc.name, func(t *testing.T) {
			compressed, err := Compress(payload, tc.typ)
			require.NoError(t, err)
			assert.NotEqual(t, payload, compressed)

			got, err := DecompressWithContentEncoding(compressed, tc.name)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestDecompressWithContentEncoding_Stacked(t *testing.T) {
	payload := []byte("stacked body")
	gz, err := Compress(payload, TypeGzip)
	require.NoError(t, err)
	br, err := Compress(gz, TypeBr)
	require.NoError(t, err)

	got, err := DecompressWithContentEncoding(br, "gzip, br")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecompressWithContentEncoding_Identity(t *testing.T) {
	got, err := DecompressWithContentEncoding([]byte("plain"), "identity")
	require.NoError(t, err)
	assert.Equal(t, "plain", string(got))
}

func TestDecompressWithContentEncoding_Unsupported(t *testing.T) {
	_, err := DecompressWithContentEncoding([]byte("x"), "compress")
	assert.Error(t, err)
}
