// Package jurisdiction loads the master code table and the per-jurisdiction
// (DOH) configuration documents, and resolves which jurisdictions must receive
// a report for a given facility.
package jurisdiction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meridian-health/hl7-reporter/internal/codetable"
)

// MasterFileName is the master code table document inside the config
// directory.
const MasterFileName = "master_file.json"

// DOHMapping maps one jurisdiction to the facility organization ids it covers.
type DOHMapping struct {
	DOH     string   `json:"doh"`
	OrgList []string `json:"orgList"`
}

// MasterFile is the process-wide, read-only reference data shared by all
// jurisdictions in a run.
type MasterFile struct {
	ResultTable    map[string]any  `json:"result_table"`
	RaceTable      []codetable.Row `json:"race_table"`
	EthnicityTable []codetable.Row `json:"ethnicity_table"`
	DOHMappings    []DOHMapping    `json:"doh_mappings"`
}

// LoadMasterFile reads the master code table document from dir.
func LoadMasterFile(dir string) (*MasterFile, error) {
	raw, err := os.ReadFile(filepath.Join(dir, MasterFileName))
	if err != nil {
		return nil, fmt.Errorf("reading master file: %w", err)
	}
	var m MasterFile
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing master file: %w", err)
	}
	return &m, nil
}

// FindDOHs resolves the jurisdictions that must receive a report for the
// facility with the given organization id. Names are normalized; an empty
// result means the facility is unmapped.
func (m *MasterFile) FindDOHs(orgID string) []string {
	var dohs []string
	for _, mapping := range m.DOHMappings {
		for _, org := range mapping.OrgList {
			if org == orgID {
				dohs = append(dohs, codetable.Clean(mapping.DOH))
				break
			}
		}
	}
	return dohs
}
