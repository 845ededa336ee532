package hl7

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/meridian-health/hl7-reporter/internal/codetable"
	"github.com/meridian-health/hl7-reporter/internal/jurisdiction"
	"github.com/meridian-health/hl7-reporter/internal/record"
)

type fakeResolver struct{}

func (fakeResolver) FindDOHs(string) []string { return []string{"iowa"} }

func testPayload(results []any) map[string]any {
	return map[string]any{
		"order": map[string]any{
			"id":          "ord-9001",
			"patient_id":  "rcm1002069nk",
			"sample_date": "2023-05-01T12:00:00",
			"states":      map[string]any{"RESULTED": "2023-05-02T08:30:00"},
			"test_kit_id": "tk-55",
			"results":     results,
		},
		"test_kit_types": map[string]any{
			"assay":              "c19",
			"procedure_type_ids": []any{"pt-1"},
		},
		"facility": map[string]any{
			"org_id":  "42",
			"name":    "Westside Clinic",
			"clia_id": "46D0000001",
			"address": map[string]any{
				"street_1":    "500 Main St",
				"city":        "Des Moines",
				"state":       "IA",
				"postal_code": "50309",
			},
		},
		"encounter": map[string]any{"patient_id": "rcm1002069nk"},
		"patient": map[string]any{
			"personal": map[string]any{
				"first_name": "Ada",
				"last_name":  "Nguyen",
				"gender":     "F",
				"dob":        "1990-07-16",
			},
			"address": map[string]any{
				"street_1":    "12 Oak Ave",
				"city":        "Des Moines",
				"state":       "IA",
				"postal_code": "50310",
			},
			"contact": map[string]any{"phone": []any{"(801) 123-4567"}},
		},
	}
}

func testRecord(t *testing.T, results []any) *record.OrderRecord {
	t.Helper()
	rec, err := record.New(testPayload(results), fakeResolver{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("building record: %v", err)
	}
	return rec
}

func testConfig() *jurisdiction.Config {
	return &jurisdiction.Config{
		DOH: "iowa",
		SpecificValues: map[string]any{
			"msh2":    "MERIDIAN^46D2189468^CLIA",
			"msh3":    "MERIDIAN",
			"msh4_1":  "IA-DOH",
			"msh4_2":  "2.16.840.1.114222.4.3.3.19",
			"msh4_3":  "ISO",
			"iso5":    "IADOH",
			"iso6":    "2.16.840.1.114222.4.1.3650",
			"msh15":   "NE",
			"msh16":   "NE",
			"msh21_1": "PHLabReport-NoAck",
			"msh21_2": "2.16.840.1.113883.9.11",
			"msh21_3": "ISO",

			"pid2_suffix":        "^^^MRN",
			"ISO_Number":         "2.16.840.1.113883.3.0000",
			"phone_field_prefix": "^PRN^PH^^^",
			"include_ssn":        false,

			"default_race_code":        "UNK",
			"default_race_desc":        "Unknown",
			"default_race_system":      "NULLFL",
			"default_ethnicity_code":   "U",
			"default_ethnicity_desc":   "Unknown",
			"default_ethnicity_system": "NULLFL",

			"ordering_facility_NPI": "1002859796",
			"NPI_Number":            "NPI",
			"order_status":          "CM",

			"abnormal_flag_suffix": "^HL70078",
			"obx_23_7":             "XX",

			"sft": "Meridian Health^1.0^HL7 Reporter^1",
		},
		TestList: []codetable.Row{
			{
				"assay":           "c19",
				"loinc_code":      "94500-6^SARS-CoV-2 RNA^LN",
				"spec_source_obr": "119334006^Sputum specimen^SCT",
				"obs_method":      "OBS^Patient Observation",
				"site_name":       "Nasal structure",
				"site_code":       "53342003",
				"spec_type":       "445297001",
				"spec_source":     "Swab of internal nose",
			},
		},
		SegmentList: []string{"MSH", "PID", "ORC", "OBR", "OBX", "SPM"},
		Logic:       jurisdiction.Logic{FileLocation: "iowa/outbound", FileFormat: "TXT"},
		Metadata: jurisdiction.Metadata{
			MessageControlID: "123456789",
			MessageTimestamp: "20230501120000",
		},
	}
}

func testMaster() *jurisdiction.MasterFile {
	return &jurisdiction.MasterFile{
		ResultTable: map[string]any{
			"positive": map[string]any{
				"c19": map[string]any{
					"abnormal_flag": "A",
					"abnormal_desc": "Abnormal",
					"desc":          "SARS-CoV-2 RNA detected",
					"snomed":        "260373001",
				},
			},
			"negative": map[string]any{
				"c19": map[string]any{
					"abnormal_flag": "N",
					"abnormal_desc": "Normal",
					"desc":          "SARS-CoV-2 RNA not detected",
					"snomed":        "260415000",
				},
			},
		},
		RaceTable: []codetable.Row{
			{"databus_name": []any{"White"}, "value": "2106-3", "desc": "White", "system": "CDCREC"},
		},
		EthnicityTable: []codetable.Row{
			{"databus_name": []any{"Hispanic or Latino"}, "value": "H", "desc": "Hispanic or Latino", "system": "CDCREC"},
		},
	}
}

func positiveC19() []any {
	return []any{map[string]any{"result_name": "c19", "result": "positive"}}
}

func buildInput(t *testing.T, results []any) BuildInput {
	t.Helper()
	return BuildInput{
		Rec:    testRecord(t, results),
		Cfg:    testConfig(),
		Master: testMaster(),
		Mode:   record.FacilityDefault,
		DOH:    "iowa",
	}
}

func segmentIDs(message string) []string {
	var ids []string
	for _, line := range strings.Split(strings.TrimRight(message, "\n"), "\n") {
		if i := strings.Index(line, "|"); i > 0 {
			ids = append(ids, line[:i])
		}
	}
	return ids
}

func TestBuildMessage_SegmentOrder(t *testing.T) {
	message, err := BuildMessage(buildInput(t, positiveC19()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"MSH", "PID", "ORC", "OBR", "OBX", "SPM"}
	got := segmentIDs(message)
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBuildMessage_MSHContent(t *testing.T) {
	message, err := BuildMessage(buildInput(t, positiveC19()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msh := strings.SplitN(message, "\n", 2)[0]
	if !strings.Contains(msh, "ORU^R01^ORU_R01") {
		t.Errorf("expected ORU message type, got %s", msh)
	}
	if !strings.Contains(msh, "123456789") {
		t.Errorf("expected message control id, got %s", msh)
	}
	if !strings.Contains(msh, "20230501120000") {
		t.Errorf("expected message timestamp, got %s", msh)
	}
}

func TestBuildMessage_PIDContent(t *testing.T) {
	message, err := BuildMessage(buildInput(t, positiveC19()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var pid string
	for _, line := range strings.Split(message, "\n") {
		if strings.HasPrefix(line, "PID|") {
			pid = line
		}
	}
	if pid == "" {
		t.Fatal("no PID segment in message")
	}
	if !strings.Contains(pid, "rcm10-02069nk") {
		t.Errorf("expected derived MRN in PID, got %s", pid)
	}
	if !strings.Contains(pid, "Nguyen^Ada") {
		t.Errorf("expected patient name in PID, got %s", pid)
	}
	if !strings.Contains(pid, "19900716") {
		t.Errorf("expected formatted DOB in PID, got %s", pid)
	}
	if !strings.Contains(pid, "801^1234567") {
		t.Errorf("expected split phone in PID, got %s", pid)
	}
	// Absent race falls back to the configured default.
	if !strings.Contains(pid, "UNK^Unknown^NULLFL") {
		t.Errorf("expected default race coding in PID, got %s", pid)
	}
}

func TestBuildMessage_OBRGating(t *testing.T) {
	results := []any{
		map[string]any{"result_name": "c19", "result": "positive"},
		map[string]any{"result_name": "flu a", "result": "negative"},
	}
	in := buildInput(t, results)
	// flu a needs its own coding rows for OBX; extend the fixtures.
	in.Cfg.TestList[0]["loinc_code"] = map[string]any{
		"c19":   "94500-6^SARS-CoV-2 RNA^LN",
		"flu a": "92142-9^Influenza A RNA^LN",
	}
	in.Master.ResultTable["negative"].(map[string]any)["flu a"] = map[string]any{
		"pt-1": map[string]any{
			"abnormal_flag": "N",
			"abnormal_desc": "Normal",
			"desc":          "Influenza A not detected",
			"snomed":        "260415000",
		},
	}

	message, err := BuildMessage(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var obr, obx int
	for _, id := range segmentIDs(message) {
		switch id {
		case "OBR":
			obr++
		case "OBX":
			obx++
		}
	}
	if obr != 1 {
		t.Errorf("expected 1 OBR (only reportable assays), got %d", obr)
	}
	if obx != 2 {
		t.Errorf("expected 2 OBX (every result), got %d", obx)
	}
}

func TestBuildMessage_OBXSortedByResultName(t *testing.T) {
	results := []any{
		map[string]any{"result_name": "flu a", "result": "negative"},
		map[string]any{"result_name": "c19", "result": "positive"},
	}
	in := buildInput(t, results)
	in.Cfg.SegmentList = []string{"OBX"}
	in.Cfg.TestList[0]["loinc_code"] = map[string]any{
		"c19":   "94500-6^SARS-CoV-2 RNA^LN",
		"flu a": "92142-9^Influenza A RNA^LN",
	}
	in.Master.ResultTable["negative"].(map[string]any)["flu a"] = map[string]any{
		"pt-1": map[string]any{
			"abnormal_flag": "N",
			"abnormal_desc": "Normal",
			"desc":          "Influenza A not detected",
			"snomed":        "260415000",
		},
	}

	message, err := BuildMessage(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c19At := strings.Index(message, "94500-6")
	fluAt := strings.Index(message, "92142-9")
	if c19At < 0 || fluAt < 0 {
		t.Fatalf("expected both LOINC codes in message:\n%s", message)
	}
	if c19At > fluAt {
		t.Error("expected c19 OBX before flu a OBX")
	}
}

func TestBuildMessage_UnknownSegment(t *testing.T) {
	in := buildInput(t, positiveC19())
	in.Cfg.SegmentList = []string{"MSH", "ZZZ"}

	_, err := BuildMessage(in)
	if !errors.Is(err, ErrUnknownSegment) {
		t.Fatalf("expected ErrUnknownSegment, got %v", err)
	}
	if !strings.Contains(err.Error(), "building ZZZ segment") {
		t.Errorf("expected error to name the segment, got %v", err)
	}
}

func TestBuildMessage_LookupFailureNamesField(t *testing.T) {
	in := buildInput(t, positiveC19())
	delete(in.Cfg.TestList[0], "loinc_code")

	_, err := BuildMessage(in)
	if err == nil {
		t.Fatal("expected error for unmappable LOINC code")
	}
	if !strings.Contains(err.Error(), "resolve LOINC") {
		t.Errorf("expected error to name the failing field, got %v", err)
	}
	if !strings.Contains(err.Error(), "unable to map test to LOINC code") {
		t.Errorf("expected lookup error text, got %v", err)
	}
}

func TestBuildMessage_MissingSpecificValueNamesKey(t *testing.T) {
	in := buildInput(t, positiveC19())
	delete(in.Cfg.SpecificValues, "order_status")

	_, err := BuildMessage(in)
	if err == nil {
		t.Fatal("expected error for missing specific value")
	}
	if !strings.Contains(err.Error(), "order_status") {
		t.Errorf("expected error to name the missing key, got %v", err)
	}
}

func TestApplySSNLogic(t *testing.T) {
	cfg := testConfig()

	if got := applySSNLogic("123456789", cfg); got != "" {
		t.Errorf("expected blank SSN when jurisdiction excludes it, got %q", got)
	}

	cfg.SpecificValues["include_ssn"] = true
	if got := applySSNLogic("123456789", cfg); got != "123456789^SS" {
		t.Errorf("expected SSN with SS suffix, got %q", got)
	}
	if got := applySSNLogic("", cfg); got != "" {
		t.Errorf("expected blank for absent SSN, got %q", got)
	}
}
