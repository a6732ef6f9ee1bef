// Package visit classifies expected visits against completed submissions.
package visit

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/flw-audit/internal/model"
)

var folder = cases.Fold()

// visitAliases maps folded label variants to canonical visit types. Keys are
// produced by labelKey, so they are lower case, single-spaced and carry no
// trailing "visit"/"follow up" suffix.
var visitAliases = map[string]model.VisitType{
	"anc":                model.VisitANC,
	"antenatal":          model.VisitANC,
	"antenatal care":     model.VisitANC,
	"pregnancy":          model.VisitANC,
	"pnc":                model.VisitPostnatal,
	"postnatal":          model.VisitPostnatal,
	"post natal":         model.VisitPostnatal,
	"postnatal delivery": model.VisitPostnatal,
	"delivery":           model.VisitPostnatal,
	"week1":              model.VisitWeek1,
	"week 1":             model.VisitWeek1,
	"1 week":             model.VisitWeek1,
	"one week":           model.VisitWeek1,
	"month1":             model.VisitMonth1,
	"month 1":            model.VisitMonth1,
	"1 month":            model.VisitMonth1,
	"one month":          model.VisitMonth1,
	"month3":             model.VisitMonth3,
	"month 3":            model.VisitMonth3,
	"3 month":            model.VisitMonth3,
	"3 months":           model.VisitMonth3,
	"three month":        model.VisitMonth3,
	"month6":             model.VisitMonth6,
	"month 6":            model.VisitMonth6,
	"6 month":            model.VisitMonth6,
	"6 months":           model.VisitMonth6,
	"six month":          model.VisitMonth6,
}

// NormalizeVisitType collapses a raw visit label to its canonical type.
// It reports false for labels that match no known visit.
func NormalizeVisitType(label string) (model.VisitType, bool) {
	key := labelKey(label)
	if key == "" {
		return "", false
	}
	if vt := model.VisitType(key); vt.Valid() {
		return vt, true
	}
	vt, ok := visitAliases[key]
	return vt, ok
}

func labelKey(label string) string {
	s := folder.String(norm.NFKC.String(label))
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		default:
			return ' '
		}
	}, s)
	words := strings.Fields(s)

	// Drop trailing qualifiers that label variants add inconsistently.
	for len(words) > 1 {
		last := words[len(words)-1]
		if last == "visit" || last == "form" || last == "followup" {
			words = words[:len(words)-1]
			continue
		}
		if len(words) > 2 && words[len(words)-2] == "follow" && last == "up" {
			words = words[:len(words)-2]
			continue
		}
		break
	}
	return strings.Join(words, " ")
}
