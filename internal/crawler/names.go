package crawler

import (
	"regexp"
	"strings"
)

var (
	separatorRun = regexp.MustCompile(`[\s\-]+`)
	nonWord      = regexp.MustCompile(`[^a-z0-9_]+`)
	underscores  = regexp.MustCompile(`_+`)
)

// DefaultMakeAliases folds common spellings of a make onto one key.
var DefaultMakeAliases = map[string]string{
	"mercedes":      "mercedes_benz",
	"mercedesbenz":  "mercedes_benz",
	"mb":            "mercedes_benz",
	"vw":            "volkswagen",
	"land_rover_uk": "land_rover",
}

// NormalizeName lowercases name and collapses whitespace and punctuation runs
// into a single underscore.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = separatorRun.ReplaceAllString(n, "_")
	n = nonWord.ReplaceAllString(n, "")
	n = underscores.ReplaceAllString(n, "_")
	return strings.Trim(n, "_")
}

// NewModelKey normalizes makeName and model and applies make aliases. A nil alias
// map falls back to DefaultMakeAliases.
func NewModelKey(makeName, model string, aliases map[string]string) ModelKey {
	if aliases == nil {
		aliases = DefaultMakeAliases
	}
	m := NormalizeName(makeName)
	if alias, ok := aliases[m]; ok {
		m = alias
	}
	return ModelKey{Make: m, Model: NormalizeName(model)}
}
