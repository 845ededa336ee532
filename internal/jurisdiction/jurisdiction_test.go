package jurisdiction

import (
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("testdata")
	if err != nil {
		t.Fatalf("loading test store: %v", err)
	}
	return store
}

func TestFindDOHs(t *testing.T) {
	store := testStore(t)

	dohs := store.Master().FindDOHs("42")
	if len(dohs) != 2 {
		t.Fatalf("expected 2 jurisdictions for org 42, got %v", dohs)
	}
	if dohs[0] != "iowa" || dohs[1] != "maryland" {
		t.Errorf("expected normalized [iowa maryland], got %v", dohs)
	}
}

func TestFindDOHs_UnmappedOrg(t *testing.T) {
	store := testStore(t)
	if dohs := store.Master().FindDOHs("555"); len(dohs) != 0 {
		t.Errorf("expected no jurisdictions for unmapped org, got %v", dohs)
	}
}

func TestOffsetSuffix(t *testing.T) {
	tests := []struct {
		doh  string
		want string
	}{
		{"hawaii", "-1000"},
		{"iowa", ""},
		{"texas", ""},
		{"utah", "-0000"},
		{"maryland", "-0000"},
	}
	for _, tt := range tests {
		if got := OffsetSuffix(tt.doh); got != tt.want {
			t.Errorf("OffsetSuffix(%q) = %q, want %q", tt.doh, got, tt.want)
		}
	}
}

func TestOffsetSuffix_PositiveOffset(t *testing.T) {
	offsets := map[string]int{"guam": 10}
	if got := offsetSuffix(offsets, nil, "guam"); got != "+1000" {
		t.Errorf("expected +1000, got %q", got)
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	if got := FormatTime("utah", ts); got != "20230501120000-0000" {
		t.Errorf("utah: got %q", got)
	}
	if got := FormatTime("iowa", ts); got != "20230501120000" {
		t.Errorf("iowa: got %q", got)
	}
	if got := FormatTime("hawaii", ts); got != "20230501120000-1000" {
		t.Errorf("hawaii: got %q", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	got, err := FormatTimestamp("iowa", "2023-05-01T12:00:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "20230501120000" {
		t.Errorf("got %q", got)
	}

	if _, err := FormatTimestamp("iowa", "yesterday"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
	if _, err := FormatTimestamp("iowa", 42); err == nil {
		t.Error("expected error for non-string timestamp")
	}
}

func TestParseISO_DateOnly(t *testing.T) {
	got, err := ParseISO("1990-07-16")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Year() != 1990 || got.Month() != time.July || got.Day() != 16 {
		t.Errorf("got %v", got)
	}
}

func TestStoreConfig(t *testing.T) {
	store := testStore(t)
	store.now = func() time.Time {
		return time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	}

	cfg, err := store.Config("Iowa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DOH != "iowa" {
		t.Errorf("expected normalized doh iowa, got %s", cfg.DOH)
	}
	if cfg.Logic.FileFormat != "TXT" {
		t.Errorf("expected TXT file format, got %s", cfg.Logic.FileFormat)
	}
	if len(cfg.SegmentList) != 6 || cfg.SegmentList[0] != "MSH" {
		t.Errorf("unexpected segment list %v", cfg.SegmentList)
	}
	if cfg.Metadata.MessageControlID == "" {
		t.Error("expected a generated message control id")
	}
	if cfg.Metadata.MessageTimestamp != "20230501120000" {
		t.Errorf("expected iowa-formatted timestamp, got %s", cfg.Metadata.MessageTimestamp)
	}

	again, err := store.Config("iowa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != cfg {
		t.Error("expected cached config on second load")
	}
}

func TestStoreConfig_MultiWordJurisdiction(t *testing.T) {
	store := testStore(t)

	cfg, err := store.Config("new york")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DOH != "new york" {
		t.Errorf("expected normalized doh new york, got %s", cfg.DOH)
	}
	if cfg.Logic.FileLocation != "new-york/outbound" {
		t.Errorf("expected new york configuration document, got location %s", cfg.Logic.FileLocation)
	}
}

func TestStoreConfig_UnknownJurisdiction(t *testing.T) {
	store := testStore(t)
	if _, err := store.Config("atlantis"); err == nil {
		t.Fatal("expected error for missing configuration document")
	}
}

func TestConfigSpecific(t *testing.T) {
	store := testStore(t)
	cfg, err := store.Config("iowa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := cfg.Specific("receiving_application")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Error("expected a receiving application value")
	}

	if _, err := cfg.Specific("nonexistent_key"); err == nil {
		t.Fatal("expected error naming missing key")
	}
}

func TestJurisdictionFlags(t *testing.T) {
	if !PrependsFacilityName("maryland") {
		t.Error("expected maryland to prepend the facility name")
	}
	if PrependsFacilityName("iowa") {
		t.Error("expected iowa to not prepend the facility name")
	}
	if !IncludesCounty("maryland") {
		t.Error("expected maryland to include the county")
	}
	if IncludesCounty("texas") {
		t.Error("expected texas to not include the county")
	}
}
