package crawler

import "sort"

// SortedYears returns the record's year keys in ascending order.
func (r ModelRecord) SortedYears() []string {
	years := make([]string, 0, len(r.Years))
	for y := range r.Years {
		years = append(years, y)
	}
	sort.Strings(years)
	return years
}

// Clone returns a deep copy of the record.
func (r ModelRecord) Clone() ModelRecord {
	out := ModelRecord{Make: r.Make, Model: r.Model}
	if r.Years != nil {
		out.Years = make(map[string]YearRecord, len(r.Years))
		for y, yr := range r.Years {
			out.Years[y] = yr.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the year record.
func (y YearRecord) Clone() YearRecord {
	out := y
	out.MainImages = cloneStrings(y.MainImages)
	if y.Trims != nil {
		out.Trims = make([]TrimRecord, len(y.Trims))
		for i, t := range y.Trims {
			out.Trims[i] = t.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the trim.
func (t TrimRecord) Clone() TrimRecord {
	out := TrimRecord{Name: t.Name}
	if t.Price != nil {
		p := *t.Price
		out.Price = &p
	}
	if t.Specifications != nil {
		out.Specifications = make(map[string][]string, len(t.Specifications))
		for k, v := range t.Specifications {
			out.Specifications[k] = cloneStrings(v)
		}
	}
	return out
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}
