package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKnownDigest(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
}

func TestHashIgnoresLineEndingsAndPadding(t *testing.T) {
	t.Parallel()

	h := New()
	page, err := h.Hash([]byte("<html>\n<body>broken</body>\n</html>"))
	require.NoError(t, err)

	for _, variant := range []string{
		"<html>\r\n<body>broken</body>\r\n</html>",
		"\n  <html>\n<body>broken</body>\n</html>\n\n",
	} {
		got, err := h.Hash([]byte(variant))
		require.NoError(t, err)
		assert.Equal(t, page, got, "%q", variant)
	}

	other, err := h.Hash([]byte("<html><body>broken</body></html>"))
	require.NoError(t, err)
	assert.NotEqual(t, page, other)
}
