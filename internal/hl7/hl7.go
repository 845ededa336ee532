// Package hl7 assembles HL7 v2 flat-file messages from a validated order
// record, a jurisdiction configuration, and the master code table. Each
// segment renders through an embedded template; the message is the
// concatenation of the jurisdiction's configured segment sequence.
package hl7

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/meridian-health/hl7-reporter/internal/jurisdiction"
	"github.com/meridian-health/hl7-reporter/internal/record"
)

//go:embed templates/test/*.tmpl templates/vax/*.tmpl
var templateFS embed.FS

// The two flows parse into separate sets because segment file names repeat
// across them.
var (
	testTemplates = template.Must(
		template.New("test").Option("missingkey=error").ParseFS(templateFS, "templates/test/*.tmpl"),
	)
	vaxTemplates = template.Must(
		template.New("vax").Option("missingkey=error").ParseFS(templateFS, "templates/vax/*.tmpl"),
	)
)

// ErrUnknownSegment marks a segment type in a jurisdiction's segment list
// that has no builder.
var ErrUnknownSegment = errors.New("segment builder not implemented")

// Ordering provider identity rendered on common-order and observation-request
// segments.
const (
	providerNPI       = "1891733374"
	providerLastName  = "HOLT"
	providerFirstName = "MARGARET"
	providerPhone     = "385^3756419"
	providerAddress   = "1151 E 3900 S^UNIT B"
	providerCity      = "SALT LAKE CITY"
	providerState     = "UT"
	providerZip       = "84124"
)

// reportableAssays gate the observation-request blocks: only results with one
// of these cleaned names produce an OBR.
var reportableAssays = map[string]bool{
	"c19":       true,
	"monkeypox": true,
}

// BuildInput carries everything a segment builder may need.
type BuildInput struct {
	Rec    *record.OrderRecord
	Cfg    *jurisdiction.Config
	Master *jurisdiction.MasterFile
	Mode   record.FacilityMode
	DOH    string
}

// values accumulates template substitutions for one segment, remembering the
// first field whose resolution failed so the error names it.
type values struct {
	m   map[string]string
	err error
}

func newValues() *values {
	return &values{m: make(map[string]string)}
}

func (v *values) set(field, value string) {
	v.m[field] = value
}

// resolve stores the result of a fallible field resolution, capturing the
// field name on failure.
func (v *values) resolve(field string, value string, err error) {
	if v.err != nil {
		return
	}
	if err != nil {
		v.err = fmt.Errorf("resolve %s: %w", field, err)
		return
	}
	v.m[field] = value
}

// specific stores a static jurisdiction value under its own key.
func (v *values) specific(cfg *jurisdiction.Config, keys ...string) {
	for _, key := range keys {
		s, err := cfg.Specific(key)
		v.resolve(key, s, err)
	}
}

func (v *values) render(set *template.Template, templateName string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	var b strings.Builder
	if err := set.ExecuteTemplate(&b, templateName, v.m); err != nil {
		return "", fmt.Errorf("rendering %s: %w", templateName, err)
	}
	return b.String(), nil
}

// applySSNLogic blanks the SSN unless it is present and the jurisdiction
// includes SSNs; otherwise it renders with the SS identifier-type suffix.
func applySSNLogic(ssn string, cfg *jurisdiction.Config) string {
	if ssn == "" || !cfg.SpecificBool("include_ssn") {
		return ""
	}
	return ssn + "^SS"
}
