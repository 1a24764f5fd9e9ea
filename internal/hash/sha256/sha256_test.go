package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got := h.Key("/phim/naruto-a1/")
	require.Len(t, got, 64)
	require.Equal(t, got, h.Key("/phim/naruto-a1/"))
	require.NotEqual(t, got, h.Key("/phim/bleach-a2/"))
}

func TestKeyIgnoresPathNoise(t *testing.T) {
	t.Parallel()

	h := New()
	want := h.Key("/phim/naruto-a1")
	for _, p := range []string{"phim/naruto-a1", " /phim/naruto-a1/ ", "/phim/naruto-a1/?ref=home", "/phim/naruto-a1#top"} {
		require.Equal(t, want, h.Key(p), p)
	}
	// Paths on the remote site are case sensitive.
	require.NotEqual(t, want, h.Key("/phim/Naruto-a1"))
}
