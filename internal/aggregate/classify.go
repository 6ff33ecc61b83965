package aggregate

import "overdose-pipeline/internal/models"

// Drug case types kept by DrugCaseTypes
const (
	CaseTypeSingle = "Single"
	CaseTypePoly   = "Poly"
)

// DrugCaseTypes counts cases per drug_case_type. Values other than
// Single and Poly are discarded; output order is Single, Poly.
func DrugCaseTypes(rows []models.LabeledCase) []Count {
	kept := Filter(rows, func(r models.LabeledCase) bool {
		return r.DrugCaseType == CaseTypeSingle || r.DrugCaseType == CaseTypePoly
	})
	counts := CountBy(kept, func(r models.LabeledCase) string { return r.DrugCaseType })
	return OrderBy(counts, []string{CaseTypeSingle, CaseTypePoly})
}
