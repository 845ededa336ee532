package jurisdiction

import (
	"fmt"
	"strings"
	"time"
)

// Jurisdictions with a fixed local-time hour offset from UTC. These render
// their timestamps with an explicit +HHMM/-HHMM suffix.
var utcOffsets = map[string]int{
	"hawaii": -10,
}

// Jurisdictions whose timestamps carry no UTC-offset suffix at all. Every
// jurisdiction with an explicit offset is exempt from the -0000 fallback too.
var offsetExempt = map[string]bool{
	"nebraska": true,
	"iowa":     true,
	"florida":  true,
	"kentucky": true,
	"colorado": true,
	"texas":    true,
	"hawaii":   true,
}

// Jurisdictions that want the reporting-lab prefix on the ordering facility
// name.
var facilityNamePrefix = map[string]bool{
	"maryland": true,
}

// Jurisdictions that want the patient's county appended to the address block.
var addCounty = map[string]bool{
	"maryland": true,
}

// FacilityNamePrefix is prepended to the facility name for the jurisdictions
// that request it.
const FacilityNamePrefix = "Meridian Health - "

// OffsetSuffix returns the numeric UTC-offset suffix for a jurisdiction's
// timestamps: +HHMM/-HHMM when an explicit offset is configured, empty for
// offset-exempt jurisdictions, -0000 otherwise.
func OffsetSuffix(doh string) string {
	return offsetSuffix(utcOffsets, offsetExempt, doh)
}

func offsetSuffix(offsets map[string]int, exempt map[string]bool, doh string) string {
	if hours, ok := offsets[doh]; ok {
		sign := "+"
		if hours <= 0 {
			sign = "-"
			hours = -hours
		}
		return fmt.Sprintf("%s%04d", sign, hours*100)
	}
	if exempt[doh] {
		return ""
	}
	return "-0000"
}

// isoLayouts lists the ISO-8601 shapes accepted for order timestamps.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseISO parses an ISO-8601 timestamp string.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO-8601 timestamp: %q", s)
}

// FormatTime renders a timestamp the way the jurisdiction's HL7 messages
// expect: YYYYMMDDHHMMSS plus the jurisdiction's offset suffix. Order
// timestamps are already jurisdiction-local, so the offset table selects only
// the suffix.
func FormatTime(doh string, t time.Time) string {
	return t.Format("20060102150405") + OffsetSuffix(doh)
}

// FormatTimestamp is FormatTime over either a pre-parsed time.Time or an
// ISO-8601 string, the two shapes order payloads deliver.
func FormatTimestamp(doh string, v any) (string, error) {
	switch ts := v.(type) {
	case time.Time:
		return FormatTime(doh, ts), nil
	case string:
		t, err := ParseISO(ts)
		if err != nil {
			return "", err
		}
		return FormatTime(doh, t), nil
	default:
		return "", fmt.Errorf("timestamp is %T, want string or time.Time", v)
	}
}

// PrependsFacilityName reports whether the jurisdiction wants the reporting
// lab's prefix on facility names.
func PrependsFacilityName(doh string) bool {
	return facilityNamePrefix[doh]
}

// IncludesCounty reports whether the jurisdiction wants the patient's county
// in the address block.
func IncludesCounty(doh string) bool {
	return addCounty[doh]
}
