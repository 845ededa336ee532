package record

import (
	"strings"

	"github.com/meridian-health/hl7-reporter/internal/codetable"
)

// stateAbbreviations maps full US state/territory names to their postal
// abbreviations. Keys are normalized lowercase.
var stateAbbreviations = map[string]string{
	"alabama":              "AL",
	"alaska":               "AK",
	"arizona":              "AZ",
	"arkansas":             "AR",
	"california":           "CA",
	"colorado":             "CO",
	"connecticut":          "CT",
	"delaware":             "DE",
	"district of columbia": "DC",
	"florida":              "FL",
	"georgia":              "GA",
	"hawaii":               "HI",
	"idaho":                "ID",
	"illinois":             "IL",
	"indiana":              "IN",
	"iowa":                 "IA",
	"kansas":               "KS",
	"kentucky":             "KY",
	"louisiana":            "LA",
	"maine":                "ME",
	"maryland":             "MD",
	"massachusetts":        "MA",
	"michigan":             "MI",
	"minnesota":            "MN",
	"mississippi":          "MS",
	"missouri":             "MO",
	"montana":              "MT",
	"nebraska":             "NE",
	"nevada":               "NV",
	"new hampshire":        "NH",
	"new jersey":           "NJ",
	"new mexico":           "NM",
	"new york":             "NY",
	"north carolina":       "NC",
	"north dakota":         "ND",
	"ohio":                 "OH",
	"oklahoma":             "OK",
	"oregon":               "OR",
	"pennsylvania":         "PA",
	"puerto rico":          "PR",
	"rhode island":         "RI",
	"south carolina":       "SC",
	"south dakota":         "SD",
	"tennessee":            "TN",
	"texas":                "TX",
	"utah":                 "UT",
	"vermont":              "VT",
	"virginia":             "VA",
	"washington":           "WA",
	"west virginia":        "WV",
	"wisconsin":            "WI",
	"wyoming":              "WY",
}

var validAbbreviations = func() map[string]bool {
	m := make(map[string]bool, len(stateAbbreviations))
	for _, abbr := range stateAbbreviations {
		m[abbr] = true
	}
	return m
}()

// StateAbbreviation resolves any representation of a US state name (full name
// or postal abbreviation) to the abbreviation. Unknown names resolve to "".
func StateAbbreviation(name string) string {
	clean := codetable.Clean(name)
	if abbr, ok := stateAbbreviations[clean]; ok {
		return abbr
	}
	if upper := strings.ToUpper(clean); validAbbreviations[upper] {
		return upper
	}
	return ""
}
