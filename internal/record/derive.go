package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/meridian-health/hl7-reporter/internal/jurisdiction"
)

// MissingValue is the HL7 placeholder substituted for absent optional data.
// The substitution happens once, at the accessor boundary.
const MissingValue = "^"

// Default performing-facility identity rendered when no jurisdiction rule has
// switched the record to FacilityOverride.
const (
	defaultLabName    = "MERIDIAN"
	defaultLabStreet1 = "1151 E 3900 S"
	defaultLabStreet2 = "UNIT B"
	defaultLabCity    = "SALT LAKE CITY"
	defaultLabState   = "UT"
	defaultLabZip     = "84124"
	defaultLabCountry = "USA"
)

// pcrLabCLIA is reported for PCR procedures regardless of the ordering
// facility's own CLIA id.
const pcrLabCLIA = "46D2189468"

// hl7Delimiters are stripped from free-text address lines so they cannot
// corrupt segment framing.
const hl7Delimiters = "|^~\\&#"

func stripDelimiters(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(hl7Delimiters, r) {
			return -1
		}
		return r
	}, s)
}

// CollectionDateTime renders the sample collection timestamp for the
// jurisdiction.
func (r *OrderRecord) CollectionDateTime(doh string) (string, error) {
	v, _ := lookupPath(r.payload, "order", "sample_date")
	return jurisdiction.FormatTimestamp(doh, v)
}

// ResultsDateTime renders the RESULTED lifecycle timestamp for the
// jurisdiction.
func (r *OrderRecord) ResultsDateTime(doh string) (string, error) {
	v, _ := lookupPath(r.payload, "order", "states", "RESULTED")
	return jurisdiction.FormatTimestamp(doh, v)
}

// PatientDOB renders the patient's date of birth as YYYYMMDD.
func (r *OrderRecord) PatientDOB() (string, error) {
	dob := r.stringAt("patient", "personal", "dob")
	t, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return "", fmt.Errorf("parsing patient dob: %w", err)
	}
	return t.Format("20060102"), nil
}

// PatientPhone renders the patient's phone as areacode^number. Only digits
// count; the last ten digits are kept, and shorter numbers render with an
// empty area code.
func (r *OrderRecord) PatientPhone() string {
	raw, ok := lookupPath(r.payload, "patient", "contact", "phone")
	if !ok {
		return MissingValue
	}
	entries, _ := raw.([]any)
	var digits []rune
	for _, entry := range entries {
		s, _ := entry.(string)
		for _, c := range s {
			if c >= '0' && c <= '9' {
				digits = append(digits, c)
			}
		}
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	if len(digits) < 10 {
		return "^" + string(digits)
	}
	return string(digits[:3]) + "^" + string(digits[3:])
}

// OptionalPersonal returns an optional personal field (race, ethnicity or
// ssn), blank when absent. Other fields are a caller bug.
func (r *OrderRecord) OptionalPersonal(field string) (string, error) {
	switch field {
	case "race", "ethnicity", "ssn":
	default:
		return "", fmt.Errorf("field %q is not an optional personal field", field)
	}
	return r.stringAt("patient", "personal", field), nil
}

// stateValid reports whether the patient's address state resolves to a
// jurisdiction-recognized state.
func (r *OrderRecord) stateValid() bool {
	return StateAbbreviation(r.stringAt("patient", "address", "state")) != ""
}

// PatientState returns the patient's state abbreviation, or "" when the state
// does not resolve.
func (r *OrderRecord) PatientState() string {
	if !r.stateValid() {
		return ""
	}
	return StateAbbreviation(r.stringAt("patient", "address", "state"))
}

// PatientPostalCode passes the postal code through, suppressed when the state
// does not resolve.
func (r *OrderRecord) PatientPostalCode() string {
	if !r.stateValid() {
		return ""
	}
	return r.PatientField("address", "postal_code")
}

// CountySuffix returns the optional county component of the patient address
// block: only jurisdictions configured for counties get it, and only when the
// county is present.
func (r *OrderRecord) CountySuffix(doh string) string {
	if !jurisdiction.IncludesCounty(doh) {
		return ""
	}
	county, ok := lookupPath(r.payload, "patient", "address", "county")
	if !ok {
		return ""
	}
	return "^^^^" + asString(county)
}

// PatientStreet1 returns the first patient address line with HL7 delimiters
// stripped.
func (r *OrderRecord) PatientStreet1() string {
	return stripDelimiters(r.stringAt("patient", "address", "street_1"))
}

// PatientStreet2 returns the second patient address line, blank when absent.
func (r *OrderRecord) PatientStreet2() string {
	v, ok := lookupPath(r.payload, "patient", "address", "street_2")
	if !ok {
		return ""
	}
	return stripDelimiters(asString(v))
}

// PatientField reads a patient sub-field, substituting the HL7 placeholder
// for absent data.
func (r *OrderRecord) PatientField(path ...string) string {
	v, ok := lookupPath(r.payload, append([]string{"patient"}, path...)...)
	if !ok {
		return MissingValue
	}
	return asString(v)
}

// FacilityField reads a facility sub-field, substituting the HL7 placeholder
// for absent data.
func (r *OrderRecord) FacilityField(path ...string) string {
	v, ok := lookupPath(r.payload, append([]string{"facility"}, path...)...)
	if !ok {
		return MissingValue
	}
	return asString(v)
}

// FacilityName returns the ordering facility name, carrying the reporting-lab
// prefix for jurisdictions that want it.
func (r *OrderRecord) FacilityName(doh string) string {
	name := r.stringAt("facility", "name")
	if jurisdiction.PrependsFacilityName(doh) {
		return jurisdiction.FacilityNamePrefix + name
	}
	return name
}

// OrgID returns the facility organization id.
func (r *OrderRecord) OrgID() string { return r.stringAt("facility", "org_id") }

// OrderingFacilityNPI returns the facility NPI, falling back to the
// jurisdiction's configured default.
func (r *OrderRecord) OrderingFacilityNPI(defaultNPI string) string {
	v, ok := lookupPath(r.payload, "facility", "npi")
	if !ok {
		return defaultNPI
	}
	return asString(v)
}

// CLIANumber returns the CLIA id to report: the fixed PCR lab CLIA for PCR
// procedures, the facility's own otherwise.
func (r *OrderRecord) CLIANumber() string {
	if r.stringAt("order", "procedure_type_id") == "PCR" {
		return pcrLabCLIA
	}
	return r.stringAt("facility", "clia_id")
}

// TestKitID returns the order's test kit id, placeholder when absent.
func (r *OrderRecord) TestKitID() string {
	v, ok := lookupPath(r.payload, "order", "test_kit_id")
	if !ok {
		return MissingValue
	}
	return asString(v)
}

// VaccineKitID returns the order's vaccine kit type id, placeholder when
// absent.
func (r *OrderRecord) VaccineKitID() string {
	v, ok := lookupPath(r.payload, "order", "vaccine_kit_type_id")
	if !ok {
		return MissingValue
	}
	return asString(v)
}

// EncounterPatientID returns the patient id carried on the encounter.
func (r *OrderRecord) EncounterPatientID() string {
	return r.stringAt("encounter", "patient_id")
}

// OrderField reads an order sub-field, substituting the HL7 placeholder for
// absent data. The vaccination flow reads its payload-specific fields through
// this accessor.
func (r *OrderRecord) OrderField(path ...string) string {
	v, ok := lookupPath(r.payload, append([]string{"order"}, path...)...)
	if !ok {
		return MissingValue
	}
	return asString(v)
}

// PerformingFacilityName returns the performing lab name under the given
// facility mode.
func (r *OrderRecord) PerformingFacilityName(mode FacilityMode) string {
	if mode == FacilityOverride {
		return r.stringAt("facility", "default_pcr_lab_id")
	}
	return defaultLabName
}

// PerformingFacilityAddress1 returns the performing lab's first address line.
func (r *OrderRecord) PerformingFacilityAddress1(mode FacilityMode) string {
	if mode == FacilityOverride {
		return r.stringAt("facility", "address", "address")
	}
	return defaultLabStreet1
}

// PerformingFacilityAddress2 returns the performing lab's second address
// line, blank when the overriding facility has none.
func (r *OrderRecord) PerformingFacilityAddress2(mode FacilityMode) string {
	if mode == FacilityOverride {
		v, ok := lookupPath(r.payload, "facility", "address", "street_2")
		if !ok {
			return ""
		}
		return asString(v)
	}
	return defaultLabStreet2
}

// PerformingFacilityCity returns the performing lab city.
func (r *OrderRecord) PerformingFacilityCity(mode FacilityMode) string {
	if mode == FacilityOverride {
		return r.stringAt("facility", "address", "city")
	}
	return defaultLabCity
}

// PerformingFacilityState returns the performing lab state.
func (r *OrderRecord) PerformingFacilityState(mode FacilityMode) string {
	if mode == FacilityOverride {
		return r.stringAt("facility", "address", "state")
	}
	return defaultLabState
}

// PerformingFacilityZip returns the performing lab postal code.
func (r *OrderRecord) PerformingFacilityZip(mode FacilityMode) string {
	if mode == FacilityOverride {
		return r.stringAt("facility", "address", "postal_code")
	}
	return defaultLabZip
}

// PerformingFacilityCountry returns the performing lab country.
func (r *OrderRecord) PerformingFacilityCountry(mode FacilityMode) string {
	if mode == FacilityOverride {
		return r.stringAt("facility", "address", "country")
	}
	return defaultLabCountry
}
