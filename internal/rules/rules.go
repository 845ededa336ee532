// Package rules evaluates per-jurisdiction business rules against a record's
// results before message emission. Rules can suppress a jurisdiction's message
// or switch how the performing facility is presented.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meridian-health/hl7-reporter/internal/codetable"
	"github.com/meridian-health/hl7-reporter/internal/record"
)

// Verdict is one rule's opinion on emitting the jurisdiction's message.
type Verdict int

const (
	// VerdictNone abstains: the rule ran for its side effect only.
	VerdictNone Verdict = iota
	// VerdictProceed votes for emission.
	VerdictProceed
	// VerdictSuppress votes against emission.
	VerdictSuppress
)

// StopNegativeReason is surfaced when stop_negative suppresses a message.
const StopNegativeReason = "state only wants positive results"

// Func is one named rule. Rules receive the evaluation so they can flip the
// facility presentation mode, and return a verdict plus an optional reason.
type Func func(e *Evaluation, doh string, res record.Result) (Verdict, string)

// registry maps the closed set of configurable rule names to their
// implementations.
var registry = map[string]Func{
	"stop_negative":             stopNegative,
	"perform_facility_override": performFacilityOverride,
}

// Mapping configures which rules run per jurisdiction per assay key.
type Mapping map[string]map[string][]string

// DefaultMapping is the deployed jurisdiction rule configuration.
var DefaultMapping = Mapping{
	"iowa":    {"c19": {"stop_negative"}},
	"florida": {"monkeypox": {"stop_negative", "perform_facility_override"}},
}

// Evaluation carries the mutable state rules may touch while running.
type Evaluation struct {
	FacilityMode record.FacilityMode
	rec          *record.OrderRecord
}

// Outcome is the aggregate of one jurisdiction's rule run.
type Outcome struct {
	Suppressed   bool
	Reasons      []string
	FacilityMode record.FacilityMode
}

// Evaluate runs the jurisdiction's configured rules over every result of the
// record. A result participates only when its cleaned name matches exactly one
// configured assay key; zero or multiple matches skip the result. Abstaining
// verdicts are dropped; any remaining suppress verdict suppresses the message
// with the union of non-empty reasons, and an empty verdict set proceeds.
func Evaluate(rec *record.OrderRecord, doh string, mapping Mapping) (Outcome, error) {
	eval := &Evaluation{FacilityMode: record.FacilityDefault, rec: rec}

	assayRules, ok := mapping[codetable.Clean(doh)]
	if !ok {
		return Outcome{FacilityMode: eval.FacilityMode}, nil
	}

	var verdicts []Verdict
	reasons := map[string]bool{}

	for _, res := range rec.Results() {
		name := codetable.Clean(res.Name)

		var matched []string
		for key := range assayRules {
			if strings.Contains(key, name) {
				matched = append(matched, key)
			}
		}
		if len(matched) != 1 {
			continue
		}

		for _, ruleName := range assayRules[matched[0]] {
			fn, ok := registry[ruleName]
			if !ok {
				return Outcome{}, fmt.Errorf("rule %q is not mapped", ruleName)
			}
			verdict, reason := fn(eval, doh, res)
			if verdict == VerdictNone {
				continue
			}
			verdicts = append(verdicts, verdict)
			if reason != "" {
				reasons[reason] = true
			}
		}
	}

	out := Outcome{FacilityMode: eval.FacilityMode}
	for _, v := range verdicts {
		if v == VerdictSuppress {
			out.Suppressed = true
			break
		}
	}
	if out.Suppressed {
		for reason := range reasons {
			out.Reasons = append(out.Reasons, reason)
		}
		sort.Strings(out.Reasons)
	}
	return out, nil
}

// stopNegative suppresses the jurisdiction's message for negative results.
func stopNegative(_ *Evaluation, _ string, res record.Result) (Verdict, string) {
	if codetable.Clean(res.Value) == "negative" {
		return VerdictSuppress, StopNegativeReason
	}
	return VerdictProceed, ""
}

// performFacilityOverride abstains from the emission vote but switches the
// performing-facility presentation to the record's own facility.
func performFacilityOverride(e *Evaluation, _ string, _ record.Result) (Verdict, string) {
	e.FacilityMode = record.FacilityOverride
	return VerdictNone, ""
}
