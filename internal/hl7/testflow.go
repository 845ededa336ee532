package hl7

import (
	"fmt"
	"sort"

	"github.com/meridian-health/hl7-reporter/internal/codetable"
	"github.com/meridian-health/hl7-reporter/internal/jurisdiction"
	"github.com/meridian-health/hl7-reporter/internal/record"
)

// BuildMessage assembles a test-flow message: each segment in the
// jurisdiction's configured order, rendered and concatenated. Failures carry
// the segment name.
func BuildMessage(in BuildInput) (string, error) {
	var b []byte
	for _, seg := range in.Cfg.SegmentList {
		block, err := buildTestSegment(seg, in)
		if err != nil {
			return "", fmt.Errorf("building %s segment: %w", seg, err)
		}
		b = append(b, block...)
	}
	return string(b), nil
}

func buildTestSegment(seg string, in BuildInput) (string, error) {
	switch seg {
	case "MSH":
		return buildMSH(in.Cfg)
	case "SFT":
		return buildSFT(in.Cfg)
	case "PID":
		return buildPID(in)
	case "ORC":
		return buildORC(in)
	case "OBR":
		return buildOBR(in)
	case "OBX":
		return buildOBX(in)
	case "NTE":
		return buildNTE()
	case "SPM":
		return buildSPM(in)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownSegment, seg)
	}
}

// ---------------------------------------------------------------------------
// Test-list lookups
// ---------------------------------------------------------------------------

func testListValue(cfg *jurisdiction.Config, assay, returnKey, what string) (string, error) {
	return codetable.LookupString(cfg.TestList, "assay", assay, returnKey, codetable.OpEquals,
		codetable.WithError(fmt.Errorf("unable to map test to %s: %s", what, assay)))
}

// loincCode resolves the assay's LOINC code. Some jurisdictions map one assay
// to per-result codes, in which case the table entry is keyed by result name.
func loincCode(cfg *jurisdiction.Config, assay, resultName string) (string, error) {
	v, err := codetable.Lookup(cfg.TestList, "assay", assay, "loinc_code", codetable.OpEquals,
		codetable.WithError(fmt.Errorf("unable to map test to LOINC code: %s", assay)))
	if err != nil {
		return "", err
	}
	switch code := v.(type) {
	case string:
		return code, nil
	case map[string]any:
		s, ok := code[codetable.Clean(resultName)].(string)
		if !ok {
			return "", fmt.Errorf("unable to map result %q to LOINC code for %s", resultName, assay)
		}
		return s, nil
	default:
		return "", fmt.Errorf("LOINC code for %s is %T, want string or per-result map", assay, v)
	}
}

// ---------------------------------------------------------------------------
// Race and ethnicity lookups
// ---------------------------------------------------------------------------

func demographicCode(table []codetable.Row, value, returnKey string, cfg *jurisdiction.Config, defaultKey string) (string, error) {
	fallback, err := cfg.Specific(defaultKey)
	if err != nil {
		return "", err
	}
	return codetable.LookupString(table, "databus_name", value, returnKey, codetable.OpContains,
		codetable.WithDefault(fallback))
}

// ---------------------------------------------------------------------------
// Segment builders
// ---------------------------------------------------------------------------

func buildMSH(cfg *jurisdiction.Config) (string, error) {
	v := newValues()
	v.specific(cfg, "msh2", "msh3", "msh4_1", "msh4_2", "msh4_3", "iso5", "iso6",
		"msh15", "msh16", "msh21_1", "msh21_2", "msh21_3")
	v.set("message_control_id", cfg.Metadata.MessageControlID)
	v.set("message_timestamp", cfg.Metadata.MessageTimestamp)
	return v.render(testTemplates, "msh.tmpl")
}

func buildSFT(cfg *jurisdiction.Config) (string, error) {
	v := newValues()
	sft, err := cfg.Specific("sft")
	v.resolve("sft_segment", sft, err)
	return v.render(testTemplates, "sft.tmpl")
}

func buildNTE() (string, error) {
	return newValues().render(testTemplates, "nte.tmpl")
}

func buildPID(in BuildInput) (string, error) {
	rec, cfg, master := in.Rec, in.Cfg, in.Master
	v := newValues()

	ssn, err := rec.OptionalPersonal("ssn")
	v.resolve("patient_ssn", applySSNLogic(ssn, cfg), err)

	race, err := rec.OptionalPersonal("race")
	if err != nil {
		return "", err
	}
	for key, spec := range map[string]struct{ returnKey, defaultKey string }{
		"patient_race":        {"value", "default_race_code"},
		"patient_race_desc":   {"desc", "default_race_desc"},
		"patient_race_system": {"system", "default_race_system"},
	} {
		code, err := demographicCode(master.RaceTable, race, spec.returnKey, cfg, spec.defaultKey)
		v.resolve(key, code, err)
	}

	ethnicity, err := rec.OptionalPersonal("ethnicity")
	if err != nil {
		return "", err
	}
	for key, spec := range map[string]struct{ returnKey, defaultKey string }{
		"patient_ethnicity":        {"value", "default_ethnicity_code"},
		"patient_ethnicity_desc":   {"desc", "default_ethnicity_desc"},
		"patient_ethnicity_system": {"system", "default_ethnicity_system"},
	} {
		code, err := demographicCode(master.EthnicityTable, ethnicity, spec.returnKey, cfg, spec.defaultKey)
		v.resolve(key, code, err)
	}

	dob, err := rec.PatientDOB()
	v.resolve("patient_dob", dob, err)

	v.specific(cfg, "pid2_suffix", "ISO_Number", "phone_field_prefix")
	v.set("patient_mrn", rec.MRN())
	v.set("patient_last", rec.PatientField("personal", "last_name"))
	v.set("patient_first", rec.PatientField("personal", "first_name"))
	v.set("patient_gender", rec.PatientField("personal", "gender"))
	v.set("patient_address_1", rec.PatientStreet1())
	v.set("patient_address_2", rec.PatientStreet2())
	v.set("patient_address_city", rec.PatientField("address", "city"))
	v.set("patient_address_state", rec.PatientState())
	v.set("patient_address_zip", rec.PatientPostalCode())
	v.set("optional_address_info", rec.CountySuffix(in.DOH))
	v.set("patient_phone", rec.PatientPhone())

	return v.render(testTemplates, "pid.tmpl")
}

func buildORC(in BuildInput) (string, error) {
	rec, cfg := in.Rec, in.Cfg
	v := newValues()

	facilityNPI, err := cfg.Specific("ordering_facility_NPI")
	v.resolve("ordering_facility_NPI", rec.OrderingFacilityNPI(facilityNPI), err)
	v.specific(cfg, "NPI_Number", "order_status")

	v.set("order_number", rec.TestKitID())
	v.set("filler_order_number", rec.MRN())
	v.set("provider_npi", providerNPI)
	v.set("provider_last_name", providerLastName)
	v.set("provider_first_name", providerFirstName)
	v.set("provider_phone_number", providerPhone)
	v.set("ordering_facility_name", rec.FacilityName(in.DOH))
	v.set("ordering_facility_address", rec.FacilityField("address", "address"))
	v.set("ordering_facility_city", rec.FacilityField("address", "city"))
	v.set("ordering_facility_state", rec.FacilityField("address", "state"))
	v.set("ordering_facility_zip", rec.FacilityField("address", "postal_code"))
	v.set("ordering_facility_phone", providerPhone)
	v.set("ordering_provider_address", providerAddress)
	v.set("ordering_provider_city", providerCity)
	v.set("ordering_provider_state", providerState)
	v.set("ordering_provider_zip", providerZip)

	return v.render(testTemplates, "orc.tmpl")
}

// buildOBR emits one observation-request block per reportable result.
func buildOBR(in BuildInput) (string, error) {
	rec, cfg, master := in.Rec, in.Cfg, in.Master

	var blocks []byte
	for _, res := range rec.Results() {
		if !reportableAssays[codetable.Clean(res.Name)] {
			continue
		}

		v := newValues()
		code, err := loincCode(cfg, rec.Assay(), res.Name)
		v.resolve("LOINC", code, err)

		desc, err := codetable.ResultDesc(master.ResultTable, res.Value, res.Name, rec.ProcedureTypeIDs())
		v.resolve("result_desc", desc, err)

		snomed, err := codetable.ResultSNOMED(master.ResultTable, res.Value, res.Name, rec.ProcedureTypeIDs())
		v.resolve("result_snomed", snomed, err)

		source, err := testListValue(cfg, rec.Assay(), "spec_source_obr", "specimen source OBR")
		v.resolve("spec_source_obr", source, err)

		collected, err := rec.CollectionDateTime(in.DOH)
		v.resolve("collection_date_time", collected, err)
		resulted, err := rec.ResultsDateTime(in.DOH)
		v.resolve("result_date", resulted, err)

		v.specific(cfg, "NPI_Number")
		v.set("order_number", rec.TestKitID())
		v.set("filler_order_number", rec.MRN())
		v.set("provider_npi", providerNPI)
		v.set("provider_last_name", providerLastName)
		v.set("provider_first_name", providerFirstName)
		v.set("provider_phone_number", providerPhone)

		block, err := v.render(testTemplates, "obr.tmpl")
		if err != nil {
			return "", err
		}
		blocks = append(blocks, block...)
	}
	return string(blocks), nil
}

// buildOBX emits one observation-result block per result, sorted by result
// name.
func buildOBX(in BuildInput) (string, error) {
	rec, cfg, master := in.Rec, in.Cfg, in.Master

	results := append([]record.Result(nil), rec.Results()...)
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	var blocks []byte
	for _, res := range results {
		v := newValues()

		code, err := loincCode(cfg, rec.Assay(), res.Name)
		v.resolve("LOINC", code, err)

		desc, err := codetable.ResultDesc(master.ResultTable, res.Value, res.Name, rec.ProcedureTypeIDs())
		v.resolve("result_desc", desc, err)
		snomed, err := codetable.ResultSNOMED(master.ResultTable, res.Value, res.Name, rec.ProcedureTypeIDs())
		v.resolve("result_snomed", snomed, err)
		flag, err := codetable.AbnormalFlag(master.ResultTable, res.Value, res.Name, rec.ProcedureTypeIDs())
		v.resolve("abnormal_flag", flag, err)
		flagDesc, err := codetable.AbnormalDesc(master.ResultTable, res.Value, res.Name, rec.ProcedureTypeIDs())
		v.resolve("abnormal_desc", flagDesc, err)

		method, err := testListValue(cfg, rec.Assay(), "obs_method", "observation method")
		v.resolve("obs_method", method, err)

		collected, err := rec.CollectionDateTime(in.DOH)
		v.resolve("collection_date_time", collected, err)
		resulted, err := rec.ResultsDateTime(in.DOH)
		v.resolve("results_date_time", resulted, err)

		v.specific(cfg, "abnormal_flag_suffix", "NPI_Number", "obx_23_7")
		v.set("test_clia", rec.CLIANumber())
		v.set("site_name", rec.PerformingFacilityName(in.Mode))
		v.set("performing_lab_street_1", rec.PerformingFacilityAddress1(in.Mode))
		v.set("performing_lab_street_2", rec.PerformingFacilityAddress2(in.Mode))
		v.set("performing_lab_city", rec.PerformingFacilityCity(in.Mode))
		v.set("performing_lab_state", rec.PerformingFacilityState(in.Mode))
		v.set("performing_lab_zip", rec.PerformingFacilityZip(in.Mode))
		v.set("performing_lab_country", rec.PerformingFacilityCountry(in.Mode))

		block, err := v.render(testTemplates, "obx.tmpl")
		if err != nil {
			return "", err
		}
		blocks = append(blocks, block...)
	}
	return string(blocks), nil
}

func buildSPM(in BuildInput) (string, error) {
	rec, cfg := in.Rec, in.Cfg
	v := newValues()

	for field, spec := range map[string]struct{ returnKey, what string }{
		"site_name":   {"site_name", "specimen site"},
		"site_code":   {"site_code", "specimen site code"},
		"spec_type":   {"spec_type", "specimen type"},
		"spec_source": {"spec_source", "specimen source"},
	} {
		value, err := testListValue(cfg, rec.Assay(), spec.returnKey, spec.what)
		v.resolve(field, value, err)
	}

	collected, err := rec.CollectionDateTime(in.DOH)
	v.resolve("collection_date_time", collected, err)
	received, err := rec.ResultsDateTime(in.DOH)
	v.resolve("received_date_time", received, err)

	v.set("order_number", rec.EncounterPatientID())
	v.set("filler_order_number", rec.MRN())
	v.set("Accession_Number", rec.TestKitID())

	return v.render(testTemplates, "spm.tmpl")
}
