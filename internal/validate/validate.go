// Package validate gates model records before they are persisted. It only
// classifies; records are never modified.
package validate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// Result is the outcome of validating one record. MissingFields uses dotted
// paths such as "years.2024.main_images|expert_review".
type Result struct {
	OK            bool
	MissingFields []string
	Warnings      []string
}

// Failure converts a failed result into a *crawler.ValidationFailure.
func (r Result) Failure(key crawler.ModelKey) error {
	if r.OK {
		return nil
	}
	return &crawler.ValidationFailure{Key: key, MissingFields: append([]string(nil), r.MissingFields...)}
}

// Validator checks required fields and collects data-quality warnings.
type Validator struct{}

// New returns a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate checks rec. Required: make, model, at least one year, each year
// with images or a review, and a name on every trim present.
func (v *Validator) Validate(rec crawler.ModelRecord) Result {
	var res Result
	if strings.TrimSpace(rec.Make) == "" {
		res.MissingFields = append(res.MissingFields, "make")
	}
	if strings.TrimSpace(rec.Model) == "" {
		res.MissingFields = append(res.MissingFields, "model")
	}
	if len(rec.Years) == 0 {
		res.MissingFields = append(res.MissingFields, "years")
	}

	for _, year := range rec.SortedYears() {
		yr := rec.Years[year]
		prefix := "years." + year
		if len(yr.MainImages) == 0 && strings.TrimSpace(yr.ExpertReview) == "" {
			res.MissingFields = append(res.MissingFields, prefix+".main_images|expert_review")
		}
		for _, u := range yr.MainImages {
			if !absoluteHTTP(u) {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: image URL %q is not absolute http(s)", prefix, u))
			}
		}
		if len(yr.Trims) == 0 {
			res.Warnings = append(res.Warnings, prefix+": no trims")
		}
		for i, trim := range yr.Trims {
			if strings.TrimSpace(trim.Name) == "" {
				res.MissingFields = append(res.MissingFields, fmt.Sprintf("%s.trims[%d].name", prefix, i))
			}
			for category, values := range trim.Specifications {
				if len(values) == 0 {
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("%s.trims[%d]: specification category %q has no values", prefix, i, category))
				}
			}
		}
	}

	res.OK = len(res.MissingFields) == 0
	return res
}

func absoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
