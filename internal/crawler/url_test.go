package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases host", in: "HTTPS://WWW.Example.com/Explore/Coupe/", want: "https://www.example.com/Explore/Coupe"},
		{name: "drops default port", in: "https://example.com:443/a", want: "https://example.com/a"},
		{name: "drops fragment", in: "https://example.com/a#top", want: "https://example.com/a"},
		{name: "sorts query", in: "https://example.com/a?b=2&a=1", want: "https://example.com/a?a=1&b=2"},
		{name: "keeps root slash", in: "https://example.com/", want: "https://example.com/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWorkItemKeyDedupesTrailingSlash(t *testing.T) {
	t.Parallel()

	a := WorkItem{Kind: KindListing, URL: "https://example.com/explore/suv/"}
	b := WorkItem{Kind: KindListing, URL: "https://EXAMPLE.com/explore/suv"}
	assert.Equal(t, a.Key(), b.Key())
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	got, ok := ResolveURL("https://example.com/explore/suv/", "/mercedes-benz/2024-glc_coupe/")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/mercedes-benz/2024-glc_coupe/", got)

	_, ok = ResolveURL("https://example.com/", "javascript:void(0)")
	assert.False(t, ok)
	_, ok = ResolveURL("https://example.com/", "#top")
	assert.False(t, ok)
}

func TestChildInheritsContext(t *testing.T) {
	t.Parallel()

	parent := WorkItem{Kind: KindSubcategory, URL: "https://example.com/explore/suv/premium/", Category: "SUV", Subcategory: "Premium"}
	child := parent.Child(KindModel, "https://example.com/bmw/2024-x5/", "X5")
	assert.Equal(t, parent.Key(), child.Parent)
	assert.Equal(t, "SUV", child.Category)
	assert.Equal(t, "Premium", child.Subcategory)
	assert.Equal(t, KindModel, child.Kind)
}

func TestKindLevels(t *testing.T) {
	t.Parallel()

	assert.Less(t, KindRoot.Level(), KindCategory.Level())
	assert.Less(t, KindListing.Level(), KindModel.Level())
	assert.True(t, KindModel.Terminal())
	_, err := ParseKind("bogus")
	assert.Error(t, err)
}

func TestSafeBasename(t *testing.T) {
	t.Parallel()

	got := SafeBasename("https://www.example.com/bmw/2024-x5/", "0123456789abcdef0123")
	assert.Equal(t, "www.example.com_bmw_2024-x5_0123456789abcdef", got)
}

func TestImageResolution(t *testing.T) {
	t.Parallel()

	w, h, ok := ImageResolution("https://img.example.com/Audi-A4-2024-1920x1080-1.jpg")
	require.True(t, ok)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	_, _, ok = ImageResolution("https://img.example.com/audi-a4-thumb.jpg")
	assert.False(t, ok)
	_, _, ok = ImageResolution("https://img.example.com/00x00.jpg")
	assert.False(t, ok)
}
