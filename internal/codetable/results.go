package codetable

import (
	"fmt"
)

// Result-coding defaults applied when the result value is outside the
// positive/negative set.
const (
	DefaultAbnormalFlag = "N"
	DefaultAbnormalDesc = "Normal"
	DefaultResultDesc   = "Invalid result"
	DefaultResultSNOMED = "455371000124106"
)

// Assays whose result-table entries are indexed without the procedure-type
// level.
var flatAssays = map[string]bool{
	"c19":       true,
	"monkeypox": true,
}

// ResultField resolves one field of the master result-coding table. The table
// is indexed result value -> result name -> [procedure-type id] -> field, with
// the procedure-type level skipped for c19 and monkeypox. Result values
// outside {positive, negative} resolve to defaultValue.
func ResultField(table map[string]any, resultValue, resultName string, procedureTypeIDs []string, field, defaultValue string) (string, error) {
	resultValue = Clean(resultValue)
	resultName = Clean(resultName)

	if resultValue != "positive" && resultValue != "negative" {
		return defaultValue, nil
	}

	byName, err := step(table, resultValue)
	if err != nil {
		return "", err
	}
	entry, err := step(byName, resultName)
	if err != nil {
		return "", err
	}

	if !flatAssays[resultName] {
		if len(procedureTypeIDs) == 0 {
			return "", fmt.Errorf("result table: no procedure type id for result %q", resultName)
		}
		entry, err = step(entry, Clean(procedureTypeIDs[0]))
		if err != nil {
			return "", err
		}
	}

	v, ok := entry[field].(string)
	if !ok {
		return "", fmt.Errorf("result table has no %q entry for %s/%s", field, resultValue, resultName)
	}
	return v, nil
}

func step(m map[string]any, key string) (map[string]any, error) {
	next, ok := m[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("result table has no entry for %q", key)
	}
	return next, nil
}

// AbnormalFlag maps a result to its HL7 abnormal flag.
func AbnormalFlag(table map[string]any, resultValue, resultName string, procedureTypeIDs []string) (string, error) {
	return ResultField(table, resultValue, resultName, procedureTypeIDs, "abnormal_flag", DefaultAbnormalFlag)
}

// AbnormalDesc maps a result to the description of its abnormal flag.
func AbnormalDesc(table map[string]any, resultValue, resultName string, procedureTypeIDs []string) (string, error) {
	return ResultField(table, resultValue, resultName, procedureTypeIDs, "abnormal_desc", DefaultAbnormalDesc)
}

// ResultDesc maps a result to its reportable description.
func ResultDesc(table map[string]any, resultValue, resultName string, procedureTypeIDs []string) (string, error) {
	return ResultField(table, resultValue, resultName, procedureTypeIDs, "desc", DefaultResultDesc)
}

// ResultSNOMED maps a result to its SNOMED code.
func ResultSNOMED(table map[string]any, resultValue, resultName string, procedureTypeIDs []string) (string, error) {
	return ResultField(table, resultValue, resultName, procedureTypeIDs, "snomed", DefaultResultSNOMED)
}
