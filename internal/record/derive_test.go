package record

import (
	"testing"
)

func TestCollectionDateTime(t *testing.T) {
	rec := newTestRecord(t, validPayload())

	got, err := rec.CollectionDateTime("iowa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "20230501120000" {
		t.Errorf("iowa: got %q", got)
	}

	got, err = rec.CollectionDateTime("utah")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "20230501120000-0000" {
		t.Errorf("utah: got %q", got)
	}
}

func TestResultsDateTime(t *testing.T) {
	rec := newTestRecord(t, validPayload())
	got, err := rec.ResultsDateTime("iowa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "20230502083000" {
		t.Errorf("got %q", got)
	}
}

func TestPatientDOB(t *testing.T) {
	rec := newTestRecord(t, validPayload())
	got, err := rec.PatientDOB()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "19900716" {
		t.Errorf("got %q", got)
	}
}

func TestPatientPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone any
		want  string
	}{
		{"full number", []any{"(801) 123-4567"}, "801^1234567"},
		{"short number", []any{"123-4567"}, "^1234567"},
		{"over ten digits", []any{"+1 (801) 123-4567"}, "801^1234567"},
		{"split across entries", []any{"801", "123-4567"}, "801^1234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validPayload()
			payload["patient"].(map[string]any)["contact"].(map[string]any)["phone"] = tt.phone
			rec := newTestRecord(t, payload)
			if got := rec.PatientPhone(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPatientPhone_Absent(t *testing.T) {
	payload := validPayload()
	delete(payload["patient"].(map[string]any), "contact")
	rec := newTestRecord(t, payload)
	if got := rec.PatientPhone(); got != MissingValue {
		t.Errorf("got %q, want %q", got, MissingValue)
	}
}

func TestPatientStateAndPostal(t *testing.T) {
	rec := newTestRecord(t, validPayload())
	if got := rec.PatientState(); got != "IA" {
		t.Errorf("expected IA, got %q", got)
	}
	if got := rec.PatientPostalCode(); got != "50310" {
		t.Errorf("expected 50310, got %q", got)
	}
}

func TestInvalidStateSuppressesPostalCode(t *testing.T) {
	payload := validPayload()
	payload["patient"].(map[string]any)["address"].(map[string]any)["state"] = "Elbonia"
	rec := newTestRecord(t, payload)
	if got := rec.PatientState(); got != "" {
		t.Errorf("expected blank state, got %q", got)
	}
	if got := rec.PatientPostalCode(); got != "" {
		t.Errorf("expected suppressed postal code, got %q", got)
	}
}

func TestCountySuffix(t *testing.T) {
	rec := newTestRecord(t, validPayload())
	if got := rec.CountySuffix("maryland"); got != "^^^^Polk" {
		t.Errorf("maryland: got %q", got)
	}
	if got := rec.CountySuffix("iowa"); got != "" {
		t.Errorf("iowa: got %q", got)
	}

	payload := validPayload()
	delete(payload["patient"].(map[string]any)["address"].(map[string]any), "county")
	rec = newTestRecord(t, payload)
	if got := rec.CountySuffix("maryland"); got != "" {
		t.Errorf("absent county: got %q", got)
	}
}

func TestPatientStreetStripsDelimiters(t *testing.T) {
	payload := validPayload()
	payload["patient"].(map[string]any)["address"].(map[string]any)["street_1"] = "12 Oak Ave |Unit #3^"
	rec := newTestRecord(t, payload)
	if got := rec.PatientStreet1(); got != "12 Oak Ave Unit 3" {
		t.Errorf("got %q", got)
	}
}

func TestFacilityName(t *testing.T) {
	rec := newTestRecord(t, validPayload())
	if got := rec.FacilityName("iowa"); got != "Westside Clinic" {
		t.Errorf("iowa: got %q", got)
	}
	if got := rec.FacilityName("maryland"); got != "Meridian Health - Westside Clinic" {
		t.Errorf("maryland: got %q", got)
	}
}

func TestCLIANumber(t *testing.T) {
	rec := newTestRecord(t, validPayload())
	if got := rec.CLIANumber(); got != "46D2189468" {
		t.Errorf("expected fixed PCR lab CLIA, got %q", got)
	}

	payload := validPayload()
	payload["order"].(map[string]any)["procedure_type_id"] = "ANTIGEN"
	rec = newTestRecord(t, payload)
	if got := rec.CLIANumber(); got != "46D0000001" {
		t.Errorf("expected facility CLIA, got %q", got)
	}
}

func TestOrderingFacilityNPI(t *testing.T) {
	rec := newTestRecord(t, validPayload())
	if got := rec.OrderingFacilityNPI("default-npi"); got != "default-npi" {
		t.Errorf("expected default, got %q", got)
	}

	payload := validPayload()
	payload["facility"].(map[string]any)["npi"] = "1234567890"
	rec = newTestRecord(t, payload)
	if got := rec.OrderingFacilityNPI("default-npi"); got != "1234567890" {
		t.Errorf("expected facility npi, got %q", got)
	}
}

func TestTestKitID_Placeholder(t *testing.T) {
	payload := validPayload()
	delete(payload["order"].(map[string]any), "test_kit_id")
	rec := newTestRecord(t, payload)
	if got := rec.TestKitID(); got != MissingValue {
		t.Errorf("got %q, want %q", got, MissingValue)
	}
}

func TestOptionalPersonal(t *testing.T) {
	rec := newTestRecord(t, validPayload())

	got, err := rec.OptionalPersonal("race")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected blank for absent race, got %q", got)
	}

	if _, err := rec.OptionalPersonal("first_name"); err == nil {
		t.Fatal("expected error for non-optional field")
	}
}

func TestPerformingFacilityModes(t *testing.T) {
	rec := newTestRecord(t, validPayload())

	if got := rec.PerformingFacilityName(FacilityDefault); got != "MERIDIAN" {
		t.Errorf("default name: got %q", got)
	}
	if got := rec.PerformingFacilityCity(FacilityDefault); got != "SALT LAKE CITY" {
		t.Errorf("default city: got %q", got)
	}
	if got := rec.PerformingFacilityState(FacilityDefault); got != "UT" {
		t.Errorf("default state: got %q", got)
	}

	if got := rec.PerformingFacilityCity(FacilityOverride); got != "Des Moines" {
		t.Errorf("override city: got %q", got)
	}
	if got := rec.PerformingFacilityState(FacilityOverride); got != "IA" {
		t.Errorf("override state: got %q", got)
	}
	if got := rec.PerformingFacilityZip(FacilityOverride); got != "50309" {
		t.Errorf("override zip: got %q", got)
	}
}
