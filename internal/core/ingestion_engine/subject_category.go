package ingestion_engine

import "strings"

const CategoryGeneral = "General"

// Checked in order; the first category with a matching keyword wins.
var subjectCategories = []struct {
	category string
	keywords []string
}{
	{"Math", []string{"math", "matem", "algebra", "álgebra", "calculus", "calculo", "cálculo", "geometr", "statistic", "estadistic", "trigonometr"}},
	{"Physics", []string{"physics", "fisica", "física", "mechanic", "mecanic"}},
	{"Chemistry", []string{"chem", "quimica", "química"}},
	{"Electrical", []string{"electr", "circuit"}},
}

// SubjectCategory maps a subject id onto a coarse category. It is total:
// unmatched subjects are "General".
func SubjectCategory(subject string) string {
	s := strings.ToLower(subject)
	for _, c := range subjectCategories {
		for _, kw := range c.keywords {
			if strings.Contains(s, kw) {
				return c.category
			}
		}
	}
	return CategoryGeneral
}
