package merge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

func img(model string, n, w, h int) string {
	return fmt.Sprintf("https://cdn.example.com/%s-%dx%d-%d.jpg", model, w, h, n)
}

func price(s string) *string { return &s }

func glcFirstCrawl() crawler.ModelRecord {
	return crawler.ModelRecord{
		Make:  "mercedes_benz",
		Model: "glc_coupe",
		Years: map[string]crawler.YearRecord{
			"2024": {
				MainImages: []string{img("glc", 1, 1920, 1080), img("glc", 2, 1600, 900)},
				SourceURL:  "https://example.com/mercedes-benz/2024-glc_coupe/",
			},
		},
	}
}

func glcSecondCrawl() crawler.ModelRecord {
	return crawler.ModelRecord{
		Make:  "mercedes_benz",
		Model: "glc_coupe",
		Years: map[string]crawler.YearRecord{
			"2024": {
				MainImages:   []string{img("glc", 2, 1600, 900), img("glc", 3, 2560, 1440), img("glc", 4, 1280, 720)},
				ExpertReview: "The GLC Coupe pairs a sloping roofline with a refined cabin.",
			},
			"2025": {
				MainImages: []string{img("glc", 5, 1920, 1080)},
			},
		},
	}
}

func TestMergeGLCCoupeRecrawl(t *testing.T) {
	t.Parallel()

	m := New()
	first := m.Merge(nil, glcFirstCrawl())
	merged := m.Merge(&first, glcSecondCrawl())

	require.Equal(t, []string{"2024", "2025"}, merged.SortedYears())
	y24 := merged.Years["2024"]
	assert.Equal(t, []string{
		img("glc", 3, 2560, 1440),
		img("glc", 1, 1920, 1080),
		img("glc", 2, 1600, 900),
		img("glc", 4, 1280, 720),
	}, y24.MainImages)
	assert.Equal(t, "The GLC Coupe pairs a sloping roofline with a refined cabin.", y24.ExpertReview)
	assert.Equal(t, "https://example.com/mercedes-benz/2024-glc_coupe/", y24.SourceURL)
	assert.Equal(t, []string{img("glc", 5, 1920, 1080)}, merged.Years["2025"].MainImages)

	again := m.Merge(&merged, glcSecondCrawl())
	assert.Equal(t, merged, again, "re-crawling an unchanged page must not grow the record")
}

func TestMergeIdempotent(t *testing.T) {
	t.Parallel()

	records := []crawler.ModelRecord{
		glcFirstCrawl(),
		{Make: "audi", Model: "a4"},
		{Make: "audi", Model: "a4", Years: map[string]crawler.YearRecord{}},
		{Make: "bmw", Model: "x5", Years: map[string]crawler.YearRecord{
			"2023": {
				MainImages:   []string{"https://cdn.example.com/x5-front.jpg", "https://cdn.example.com/x5-rear.jpg"},
				ExpertReview: "review",
				Trims: []crawler.TrimRecord{
					{Name: "xDrive40i", Price: price("$65,200"), Specifications: map[string][]string{
						"Engine": {"3.0L I6", "375 hp"},
					}},
					{Name: "M60i"},
				},
			},
		}},
		{Make: "kia", Model: "sorento", Years: map[string]crawler.YearRecord{
			"2024": {
				MainImages: []string{img("sorento", 1, 1280, 720), img("sorento", 2, 1920, 1080), img("sorento", 1, 1280, 720)},
				Trims: []crawler.TrimRecord{
					{Name: "Base", Price: price("$31,990"), Specifications: map[string][]string{
						"General": {"Seats: 5", "Seats: 5"},
					}},
					{Name: "Base", Price: price("$33,490"), Specifications: map[string][]string{
						"General": {"Seats: 7"},
						"Engine":  {},
					}},
					{Name: "X-Line"},
				},
			},
		}},
	}
	for _, policy := range []ReviewPolicy{ReviewIncoming, ReviewLonger, ReviewExisting} {
		m := New(WithReviewPolicy(policy))
		for _, rec := range records {
			x := rec
			assert.Equal(t, x, m.Merge(&x, x), "policy %s record %s", policy, x.Key())
		}
	}
}

func TestMergeRepeatedValuesSurviveRecrawl(t *testing.T) {
	t.Parallel()

	page := crawler.ModelRecord{Make: "kia", Model: "sorento", Years: map[string]crawler.YearRecord{
		"2024": {Trims: []crawler.TrimRecord{
			{Name: "Base", Specifications: map[string][]string{"General": {"Engine: V6", "Engine: V6"}}},
			{Name: "Base", Price: price("$33,490")},
		}},
	}}

	m := New()
	stored := m.Merge(nil, page)
	for range 3 {
		stored = m.Merge(&stored, page)
	}

	trims := stored.Years["2024"].Trims
	require.Len(t, trims, 2)
	assert.Equal(t, []string{"Engine: V6", "Engine: V6"}, trims[0].Specifications["General"])
	assert.Nil(t, trims[0].Price)
	assert.Equal(t, "$33,490", *trims[1].Price)

	more := page.Clone()
	yr := more.Years["2024"]
	yr.Trims = append(yr.Trims, crawler.TrimRecord{Name: "Base", Price: price("$35,000")})
	more.Years["2024"] = yr
	assert.Len(t, m.Merge(&stored, more).Years["2024"].Trims, 3)
}

func TestMergeKeepsYearsAndImages(t *testing.T) {
	t.Parallel()

	existing := crawler.ModelRecord{Make: "audi", Model: "q5", Years: map[string]crawler.YearRecord{
		"2021": {MainImages: []string{"https://cdn.example.com/q5-a.jpg", "https://cdn.example.com/q5-b.jpg"}},
		"2022": {ExpertReview: "old"},
	}}
	incomings := []crawler.ModelRecord{
		{Make: "audi", Model: "q5"},
		{Make: "audi", Model: "q5", Years: map[string]crawler.YearRecord{"2021": {}}},
		{Make: "audi", Model: "q5", Years: map[string]crawler.YearRecord{
			"2021": {MainImages: []string{"https://cdn.example.com/q5-c-1920x1080.jpg"}},
			"2023": {ExpertReview: "new"},
		}},
	}

	m := New()
	for _, in := range incomings {
		merged := m.Merge(&existing, in)
		for year := range existing.Years {
			assert.Contains(t, merged.Years, year)
		}
		for year := range in.Years {
			assert.Contains(t, merged.Years, year)
		}
		for _, u := range existing.Years["2021"].MainImages {
			assert.Contains(t, merged.Years["2021"].MainImages, u)
		}
	}
}

func TestMergeUnresolvableImagesKeepDiscoveryOrder(t *testing.T) {
	t.Parallel()

	existing := crawler.ModelRecord{Make: "a", Model: "b", Years: map[string]crawler.YearRecord{
		"2024": {MainImages: []string{"https://cdn.example.com/front.jpg", img("b", 1, 800, 600)}},
	}}
	incoming := crawler.ModelRecord{Make: "a", Model: "b", Years: map[string]crawler.YearRecord{
		"2024": {MainImages: []string{img("b", 2, 3840, 2160), "https://cdn.example.com/front.jpg"}},
	}}

	merged := New().Merge(&existing, incoming)
	assert.Equal(t, []string{
		"https://cdn.example.com/front.jpg",
		img("b", 1, 800, 600),
		img("b", 2, 3840, 2160),
	}, merged.Years["2024"].MainImages)
}

func TestMergeReviewPolicies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		policy   ReviewPolicy
		existing string
		incoming string
		want     string
	}{
		{ReviewIncoming, "old review", "new", "new"},
		{ReviewIncoming, "old review", "", "old review"},
		{ReviewIncoming, "", "new", "new"},
		{ReviewLonger, "old review", "new", "old review"},
		{ReviewLonger, "old", "newer review", "newer review"},
		{ReviewLonger, "same", "SAME", "same"},
		{ReviewExisting, "old", "new", "old"},
		{ReviewExisting, "", "new", "new"},
		{ReviewExisting, "old", "   ", "old"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s/%s", tt.policy, tt.existing, tt.incoming), func(t *testing.T) {
			t.Parallel()
			existing := crawler.ModelRecord{Make: "m", Model: "n", Years: map[string]crawler.YearRecord{"2024": {ExpertReview: tt.existing}}}
			incoming := crawler.ModelRecord{Make: "m", Model: "n", Years: map[string]crawler.YearRecord{"2024": {ExpertReview: tt.incoming}}}
			got := New(WithReviewPolicy(tt.policy)).Merge(&existing, incoming)
			assert.Equal(t, tt.want, got.Years["2024"].ExpertReview)
		})
	}
}

func TestMergeTrims(t *testing.T) {
	t.Parallel()

	existing := crawler.ModelRecord{Make: "bmw", Model: "x5", Years: map[string]crawler.YearRecord{
		"2024": {Trims: []crawler.TrimRecord{
			{Name: "xDrive40i", Price: price("$65,200"), Specifications: map[string][]string{
				"Engine": {"3.0L I6"},
			}},
			{Name: "M60i"},
		}},
	}}
	incoming := crawler.ModelRecord{Make: "bmw", Model: "x5", Years: map[string]crawler.YearRecord{
		"2024": {Trims: []crawler.TrimRecord{
			{Name: "xDrive50e", Price: price("$72,500")},
			{Name: "xDrive40i", Price: price("$66,000"), Specifications: map[string][]string{
				"Engine":     {"375 hp", "3.0L I6"},
				"Dimensions": {"Length 4935 mm"},
			}},
			{Name: "M60i", Price: price("")},
		}},
	}}

	merged := New().Merge(&existing, incoming)
	trims := merged.Years["2024"].Trims
	require.Len(t, trims, 3)
	assert.Equal(t, "xDrive40i", trims[0].Name)
	assert.Equal(t, "$66,000", *trims[0].Price)
	assert.Equal(t, []string{"3.0L I6", "375 hp"}, trims[0].Specifications["Engine"])
	assert.Equal(t, []string{"Length 4935 mm"}, trims[0].Specifications["Dimensions"])
	assert.Equal(t, "M60i", trims[1].Name)
	assert.Nil(t, trims[1].Price)
	assert.Equal(t, "xDrive50e", trims[2].Name)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	existing := glcFirstCrawl()
	incoming := glcSecondCrawl()
	merged := New().Merge(&existing, incoming)
	merged.Years["2024"].MainImages[0] = "mutated"

	assert.Equal(t, glcFirstCrawl(), existing)
	assert.Equal(t, glcSecondCrawl(), incoming)
}

func TestMergeNilExistingCopiesIncoming(t *testing.T) {
	t.Parallel()

	incoming := glcSecondCrawl()
	got := New().Merge(nil, incoming)
	assert.Equal(t, incoming, got)
	got.Years["2025"].MainImages[0] = "mutated"
	assert.Equal(t, glcSecondCrawl(), incoming)
}

func TestMergeKeepsExistingIdentity(t *testing.T) {
	t.Parallel()

	existing := crawler.ModelRecord{Make: "mercedes_benz", Model: "glc_coupe"}
	incoming := crawler.ModelRecord{Make: "mercedes", Model: "glc_coupe"}
	got := New().Merge(&existing, incoming)
	assert.Equal(t, "mercedes_benz", got.Make)
}

func TestParseReviewPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseReviewPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReviewIncoming, p)

	p, err = ParseReviewPolicy(" Longer ")
	require.NoError(t, err)
	assert.Equal(t, ReviewLonger, p)

	_, err = ParseReviewPolicy("newest")
	require.Error(t, err)

	assert.Equal(t, ReviewExisting, New(WithReviewPolicy(ReviewExisting)).ReviewPolicy())
	assert.Equal(t, ReviewIncoming, New(WithReviewPolicy("")).ReviewPolicy())
}
