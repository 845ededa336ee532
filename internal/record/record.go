// Package record wraps a raw order payload in an immutable, validated view.
// The validating constructor enforces the required/optional field contract,
// normalizes nested fields, and computes the derived values the segment
// assemblers read.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meridian-health/hl7-reporter/internal/codetable"
)

// ErrDuplicateMessage marks a record whose order already carries a delivered
// HL7_SENT state.
var ErrDuplicateMessage = errors.New("message has been delivered already")

// MissingFieldError names every required dotted path absent from a payload.
type MissingFieldError struct {
	Paths []string
}

func (e *MissingFieldError) Error() string {
	return "record is missing required fields: " + strings.Join(e.Paths, ", ")
}

// FacilityMode selects which performing-facility identity the segment
// builders render.
type FacilityMode int

const (
	// FacilityDefault renders the reporting lab's own identity.
	FacilityDefault FacilityMode = iota
	// FacilityOverride renders the record's facility as the performing lab.
	FacilityOverride
)

// Result is one entry of the order's results list.
type Result struct {
	Name  string
	Value string
}

// DOHResolver resolves the reporting jurisdictions for a facility
// organization id.
type DOHResolver interface {
	FindDOHs(orgID string) []string
}

// Required dotted paths. A record missing any of these cannot produce a
// legally valid report.
var requiredPaths = [][]string{
	{"order", "patient_id"},
	{"order", "sample_date"},
	{"order", "id"},
	{"order", "states", "RESULTED"},
	{"facility", "org_id"},
	{"facility", "name"},
	{"test_kit_types", "assay"},
	{"patient", "personal", "dob"},
	{"patient", "address", "street_1"},
}

// Optional dotted paths. Missing ones degrade to blank HL7 placeholders and
// are reported as warnings only.
var optionalPaths = [][]string{
	{"order", "test_kit_id"},
	{"facility", "address", "address"},
	{"facility", "address", "city"},
	{"facility", "address", "state"},
	{"facility", "address", "postal_code"},
	{"patient", "personal", "first_name"},
	{"patient", "personal", "last_name"},
	{"patient", "personal", "gender"},
	{"patient", "address", "street_2"},
	{"patient", "address", "city"},
	{"patient", "address", "state"},
	{"patient", "address", "postal_code"},
	{"patient", "address", "county"},
}

// Dict-inside-list constraints: every element of the named list must contain
// the named key.
var requiredInLists = []struct {
	list []string
	key  string
}{
	{list: []string{"order", "results"}, key: "result"},
}

// OrderRecord is an immutable view over a validated order payload.
type OrderRecord struct {
	payload map[string]any
	results []Result
	mrn     string
	dohs    []string
	logger  zerolog.Logger
}

type options struct {
	reprocess bool
}

// Option customizes record construction.
type Option func(*options)

// WithReprocess allows records whose order already reports as sent to be
// processed again.
func WithReprocess(reprocess bool) Option {
	return func(o *options) { o.reprocess = reprocess }
}

// New validates a raw order payload and returns the immutable record view.
// Every missing required path is collected into a single MissingFieldError;
// missing optional paths are logged as a warning. Duplicate delivery returns
// ErrDuplicateMessage unless reprocessing is enabled.
func New(payload map[string]any, resolver DOHResolver, logger zerolog.Logger, opts ...Option) (*OrderRecord, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rec := &OrderRecord{payload: payload, logger: logger}
	joinAddressField(rec.section("facility"), "address")

	var missingOptional []string
	for _, path := range optionalPaths {
		if _, ok := lookupPath(payload, path...); !ok {
			missingOptional = append(missingOptional, strings.Join(path, "."))
		}
	}
	if len(missingOptional) > 0 {
		logger.Warn().Strs("missing", missingOptional).Msg("record is missing optional attributes")
	}

	var missing []string
	for _, path := range requiredPaths {
		v, ok := lookupPath(payload, path...)
		if !ok {
			missing = append(missing, strings.Join(path, "."))
			continue
		}
		// Diagnostic context attaches as specific required fields resolve.
		switch strings.Join(path, ".") {
		case "order.states.RESULTED":
			rec.logger = rec.logger.With().Str("result_date", asString(v)).Logger()
		case "test_kit_types.assay":
			rec.logger = rec.logger.With().Str("assay", asString(v)).Logger()
		case "facility.org_id":
			orgID := asString(v)
			rec.logger = rec.logger.With().Str("org_id", orgID).Logger()
			if resolver != nil {
				rec.logger.Info().Msg("determining DOH")
				rec.dohs = resolver.FindDOHs(orgID)
				rec.logger = rec.logger.With().Strs("doh", rec.dohs).Logger()
			}
		}
	}

	for _, constraint := range requiredInLists {
		list, ok := lookupPath(payload, constraint.list...)
		if !ok {
			continue
		}
		items, ok := list.([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok || !hasKey(entry, constraint.key) {
				missing = append(missing, strings.Join(constraint.list, ".")+"."+constraint.key)
				break
			}
		}
	}

	if len(missing) > 0 {
		return nil, &MissingFieldError{Paths: missing}
	}

	rec.results = extractResults(rec.section("order"))

	patientID := rec.stringAt("order", "patient_id")
	rec.mrn = deriveMRN(patientID)
	rec.logger = rec.logger.With().Str("mrn", rec.mrn).Logger()

	if rec.delivered() && !o.reprocess {
		return nil, ErrDuplicateMessage
	}

	return rec, nil
}

// deriveMRN inserts the MRN separator after the fifth character of the
// patient id.
func deriveMRN(patientID string) string {
	if len(patientID) <= 5 {
		return patientID + "-"
	}
	return patientID[:5] + "-" + patientID[5:]
}

func (r *OrderRecord) delivered() bool {
	sent, ok := lookupPath(r.payload, "order", "states", "HL7_SENT")
	return ok && sent != nil
}

func extractResults(order map[string]any) []Result {
	raw, _ := order["results"].([]any)
	results := make([]Result, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["result_name"].(string)
		value, _ := entry["result"].(string)
		results = append(results, Result{Name: name, Value: value})
	}
	return results
}

// MessageRequired reports whether the record's results qualify for reporting:
// every result value must clean to "positive" or "negative".
func (r *OrderRecord) MessageRequired() bool {
	for _, res := range r.results {
		v := codetable.Clean(res.Value)
		if v != "positive" && v != "negative" {
			return false
		}
	}
	return true
}

// MRN returns the derived medical record number.
func (r *OrderRecord) MRN() string { return r.mrn }

// DOHs returns the jurisdictions resolved for the record's facility.
func (r *OrderRecord) DOHs() []string { return r.dohs }

// Results returns the order's results in payload order.
func (r *OrderRecord) Results() []Result { return r.results }

// Logger returns the record's logger with diagnostic context attached.
func (r *OrderRecord) Logger() zerolog.Logger { return r.logger }

// OrderID returns the order identifier.
func (r *OrderRecord) OrderID() string { return r.stringAt("order", "id") }

// Assay returns the test kit assay name.
func (r *OrderRecord) Assay() string { return r.stringAt("test_kit_types", "assay") }

// ProcedureTypeIDs returns the test kit's procedure type ids.
func (r *OrderRecord) ProcedureTypeIDs() []string {
	raw, _ := lookupPath(r.payload, "test_kit_types", "procedure_type_ids")
	items, _ := raw.([]any)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, asString(item))
	}
	return ids
}

// ---------------------------------------------------------------------------
// Payload navigation
// ---------------------------------------------------------------------------

func (r *OrderRecord) section(name string) map[string]any {
	m, _ := r.payload[name].(map[string]any)
	return m
}

func (r *OrderRecord) stringAt(path ...string) string {
	v, ok := lookupPath(r.payload, path...)
	if !ok {
		return ""
	}
	return asString(v)
}

func lookupPath(m map[string]any, path ...string) (any, bool) {
	var current any = m
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// joinAddressField joins street_1 and street_2 of the named address map into
// a single address key. With both lines present they concatenate with one
// space; with only line 1 present it is promoted as-is.
func joinAddressField(section map[string]any, key string) {
	addr, ok := section[key].(map[string]any)
	if !ok {
		return
	}
	JoinAddress(addr)
}

// JoinAddress applies the street-line join to an address map in place.
func JoinAddress(addr map[string]any) {
	s1, ok1 := addr["street_1"].(string)
	s2, ok2 := addr["street_2"].(string)
	switch {
	case ok1 && ok2:
		addr["address"] = s1 + " " + s2
		delete(addr, "street_1")
		delete(addr, "street_2")
	case ok1:
		addr["address"] = s1
		delete(addr, "street_1")
	}
}
