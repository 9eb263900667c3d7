package htmlextract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

const base = "https://www.example-cars.com"

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return body
}

func TestParseCategories(t *testing.T) {
	t.Parallel()

	links, err := New().ParseCategories(fixture(t, "index.html"), base+"/")
	require.NoError(t, err)
	assert.Equal(t, []crawler.Link{
		{URL: base + "/explore/coupe/", Label: "Coupe"},
		{URL: base + "/explore/crossover-suv/", Label: "Crossover Suv"},
	}, links)
}

func TestParseCategoriesWithoutExploreLinks(t *testing.T) {
	t.Parallel()

	_, err := New().ParseCategories([]byte(`<html><a href="/about/">About</a></html>`), base+"/")
	var pe *crawler.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "categories", pe.Page)
}

func TestParseSubcategories(t *testing.T) {
	t.Parallel()

	links, err := New().ParseSubcategories(fixture(t, "category.html"), base+"/explore/crossover-suv/")
	require.NoError(t, err)
	assert.Equal(t, []crawler.Link{
		{URL: base + "/explore/crossover-suv/premium/", Label: "Premium"},
		{URL: base + "/explore/crossover-suv/midsize/", Label: "Midsize"},
		{URL: base + "/explore/crossover-suv/compact/", Label: "Compact SUV"},
	}, links)
}

func TestParseSubcategoriesNone(t *testing.T) {
	t.Parallel()

	links, err := New().ParseSubcategories([]byte(`<a href="/audi/2024-q5/">Q5</a>`), base+"/explore/coupe/")
	require.NoError(t, err)
	assert.Empty(t, links)

	_, err = New().ParseSubcategories([]byte(`<p>nothing</p>`), base+"/explore/coupe/")
	require.Error(t, err)
}

func TestParseListing(t *testing.T) {
	t.Parallel()

	page, err := New().ParseListing(fixture(t, "listing.html"), base+"/explore/crossover-suv/premium/")
	require.NoError(t, err)

	require.Len(t, page.Entries, 3)
	assert.Equal(t, crawler.ListingEntry{
		ModelURL:    base + "/mercedes-benz/2024-glc_coupe/",
		Make:        "mercedes-benz",
		Name:        "glc_coupe",
		Year:        "2024",
		Description: "Mercedes-Benz GLC Coupe (2024)",
	}, page.Entries[0])
	assert.Equal(t, "q5_sportback", page.Entries[1].Name)
	assert.Equal(t, "sq5_sportback", page.Entries[2].Name)

	assert.Equal(t, []string{
		base + "/explore/crossover-suv/premium/audi/",
		base + "/explore/crossover-suv/premium/?page=2",
		base + "/explore/crossover-suv/premium/?page=3",
	}, page.Next)
}

func TestParseListingEmptyBody(t *testing.T) {
	t.Parallel()

	_, err := New().ParseListing(nil, base+"/explore/coupe/")
	var pe *crawler.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "empty body", pe.Reason)
}

func TestParseDetail(t *testing.T) {
	t.Parallel()

	detail, err := New().ParseDetail(fixture(t, "detail.html"), base+"/mercedes-benz/2024-glc_coupe/")
	require.NoError(t, err)

	assert.Equal(t, "mercedes-benz", detail.Make)
	assert.Equal(t, "glc_coupe", detail.Model)
	assert.Equal(t, []string{"2025", "2024"}, detail.Years)
	assert.Contains(t, detail.Review, "sloping roofline")
	assert.Equal(t, base+"/mercedes-benz/2024-glc_coupe-wallpapers/", detail.GalleryURL)
	require.Len(t, detail.Trims, 1)
	assert.Equal(t, "GLC 300 4MATIC Coupe", detail.Trims[0].Name)
}

func TestParseDetailUsesCanonical(t *testing.T) {
	t.Parallel()

	detail, err := New().ParseDetail(fixture(t, "detail.html"), base+"/m/12345")
	require.NoError(t, err)
	assert.Equal(t, "glc_coupe", detail.Model)
	assert.Equal(t, base+"/mercedes-benz/2024-glc_coupe-wallpapers/", detail.GalleryURL)
}

func TestParseDetailWithoutIdentity(t *testing.T) {
	t.Parallel()

	_, err := New().ParseDetail([]byte(`<h1>Some page</h1>`), base+"/about/")
	var pe *crawler.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "detail", pe.Page)
}

func TestParseGallery(t *testing.T) {
	t.Parallel()

	entries, err := New().ParseGallery(fixture(t, "gallery.html"), base+"/mercedes-benz/2024-glc_coupe-wallpapers/")
	require.NoError(t, err)

	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		urls = append(urls, e.URL)
	}
	assert.Equal(t, []string{
		base + "/R/Mercedes-Benz-GLC_Coupe-2024-3840x2160-04.jpg",
		base + "/R/Mercedes-Benz-GLC_Coupe-2024-1920x1080-02.jpg",
		base + "/R/Mercedes-Benz-GLC_Coupe-2024-1600x1200-03.jpg",
		base + "/R/Mercedes-Benz-GLC_Coupe-2024-800x600-01.jpg",
	}, urls)
	assert.Equal(t, 3840, entries[0].Width)
}

func TestParseGalleryNoImages(t *testing.T) {
	t.Parallel()

	_, err := New().ParseGallery([]byte(`<img src="/logo.svg">`), base+"/audi/2024-q5-wallpapers/")
	require.Error(t, err)
}

func TestParseTrimsTable(t *testing.T) {
	t.Parallel()

	trims, err := New().ParseTrims(fixture(t, "detail.html"), base+"/mercedes-benz/2024-glc_coupe/")
	require.NoError(t, err)
	require.Len(t, trims, 1)

	trim := trims[0]
	require.NotNil(t, trim.Price)
	assert.Equal(t, "$58,900", *trim.Price)
	assert.Equal(t, []string{"Displacement: 2.0 L", "Power: 255 hp", "48V mild hybrid"}, trim.Specifications["Engine"])
}

func TestParseTrimsList(t *testing.T) {
	t.Parallel()

	trims, err := New().ParseTrims(fixture(t, "trims_list.html"), base+"/mercedes-benz/2024-glc_coupe/")
	require.NoError(t, err)
	require.Len(t, trims, 1)

	trim := trims[0]
	assert.Equal(t, "AMG GLC 43", trim.Name)
	require.NotNil(t, trim.Price)
	assert.Equal(t, "$72,500", *trim.Price)
	assert.Equal(t, []string{"421 hp", "AMG Ride Control", "Night Package"}, trim.Specifications["Highlights"])
	assert.Equal(t, []string{"Active Brake Assist"}, trim.Specifications["Safety"])
	assert.Empty(t, trim.Specifications["Comfort"])
}

func TestParseTrimsDropsRepeatedRows(t *testing.T) {
	t.Parallel()

	page := []byte(`<html><body>
<div class="trim-specs"><h3>SX Prestige</h3>
<table>
<tr><th colspan="2">Engine</th></tr>
<tr><td>Engine</td><td>V6</td></tr>
<tr><td>Engine</td><td>V6</td></tr>
<tr><td>Torque</td><td>262 lb-ft</td></tr>
</table></div>
<div class="trim-specs"><h3>SX Prestige</h3>
<table>
<tr><th colspan="2">Engine</th></tr>
<tr><td>Torque</td><td>262 lb-ft</td></tr>
</table></div>
</body></html>`)

	trims, err := New().ParseTrims(page, base+"/kia/2024-sorento/")
	require.NoError(t, err)
	require.Len(t, trims, 1)
	assert.Equal(t, "SX Prestige", trims[0].Name)
	assert.Equal(t, []string{"Engine: V6", "Torque: 262 lb-ft"}, trims[0].Specifications["Engine"])
}

func TestParseTrimsAbsent(t *testing.T) {
	t.Parallel()

	_, err := New().ParseTrims([]byte(`<p>No specs here</p>`), base+"/audi/2024-q5/")
	var pe *crawler.ParseError
	require.ErrorAs(t, err, &pe)
}
