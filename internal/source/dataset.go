package source

import (
	"time"

	"github.com/sells-group/flw-audit/internal/model"
)

// Dataset is the merged working set of one analysis run. It is built fresh
// per run and never shared.
type Dataset struct {
	Domain        string                               `json:"domain"`
	Visits        []model.CompletedVisit               `json:"visits"`
	Expected      map[string][]model.ExpectedVisit     `json:"expected"`
	Beneficiaries map[string]model.BeneficiaryMetadata `json:"beneficiaries"`
	// Owners maps beneficiary id to the responsible worker id.
	Owners        map[string]string `json:"owners"`
	VisitInfo     CollectionInfo    `json:"visit_info"`
	RegInfo       CollectionInfo    `json:"registration_info"`
	RejectedSlots int               `json:"rejected_slots"`
}

// Merge combines the two collections and derives beneficiary ownership.
// An explicit registration owner wins; otherwise the worker with the latest
// submission for the beneficiary owns it.
func Merge(domain string, visits *VisitSet, regs *RegistrationSet) *Dataset {
	ds := &Dataset{
		Domain:        domain,
		Visits:        visits.Visits,
		Expected:      regs.Expected,
		Beneficiaries: regs.Beneficiaries,
		Owners:        make(map[string]string, len(regs.Beneficiaries)),
		VisitInfo:     visits.Info,
		RegInfo:       regs.Info,
		RejectedSlots: regs.RejectedSlots,
	}

	latest := make(map[string]time.Time)
	for _, v := range visits.Visits {
		if t, ok := latest[v.BeneficiaryID]; ok && !v.SubmittedAt.After(t) {
			continue
		}
		latest[v.BeneficiaryID] = v.SubmittedAt
		ds.Owners[v.BeneficiaryID] = v.WorkerID
	}
	for id, b := range regs.Beneficiaries {
		if b.OwnerID != "" {
			ds.Owners[id] = b.OwnerID
		}
	}
	return ds
}

// MissingRegistrations returns the beneficiary ids referenced by visits that
// have no registration record.
func (ds *Dataset) MissingRegistrations() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range ds.Visits {
		if _, ok := ds.Beneficiaries[v.BeneficiaryID]; ok || seen[v.BeneficiaryID] {
			continue
		}
		seen[v.BeneficiaryID] = true
		out = append(out, v.BeneficiaryID)
	}
	return out
}
