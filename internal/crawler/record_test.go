package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelRecordCloneIsDeep(t *testing.T) {
	t.Parallel()

	price := "$50,000"
	rec := ModelRecord{
		Make:  "bmw",
		Model: "x5",
		Years: map[string]YearRecord{
			"2024": {
				MainImages: []string{"https://img/1.jpg"},
				Trims: []TrimRecord{{
					Name:           "xDrive40i",
					Price:          &price,
					Specifications: map[string][]string{"Engine": {"3.0L"}},
				}},
			},
		},
	}
	cp := rec.Clone()
	assert.Equal(t, rec, cp)

	cp.Years["2024"].MainImages[0] = "changed"
	*cp.Years["2024"].Trims[0].Price = "changed"
	cp.Years["2024"].Trims[0].Specifications["Engine"][0] = "changed"

	assert.Equal(t, "https://img/1.jpg", rec.Years["2024"].MainImages[0])
	assert.Equal(t, "$50,000", *rec.Years["2024"].Trims[0].Price)
	assert.Equal(t, "3.0L", rec.Years["2024"].Trims[0].Specifications["Engine"][0])
}

func TestSortedYears(t *testing.T) {
	t.Parallel()

	rec := ModelRecord{Years: map[string]YearRecord{"2025": {}, "2023": {}, "2024": {}}}
	assert.Equal(t, []string{"2023", "2024", "2025"}, rec.SortedYears())
}
