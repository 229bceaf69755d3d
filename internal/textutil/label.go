package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// acronyms keeps imaging abbreviations upper-cased in labels.
var acronyms = map[string]string{
	"csa":  "CSA",
	"dti":  "DTI",
	"pmj":  "PMJ",
	"sc":   "SC",
	"gm":   "GM",
	"wm":   "WM",
	"moco": "MoCo",
	"qc":   "QC",
}

// StepLabel turns a step identifier such as "register_template" into a
// display label ("Register Template").
func StepLabel(step string) string {
	step = strings.TrimSpace(step)
	if step == "" {
		return ""
	}
	caser := cases.Title(language.Und)
	words := strings.FieldsFunc(step, func(r rune) bool { return r == '_' || r == '-' })
	for i, word := range words {
		if acronym, ok := acronyms[strings.ToLower(word)]; ok {
			words[i] = acronym
			continue
		}
		words[i] = caser.String(word)
	}
	return strings.Join(words, " ")
}

// Ternary returns a when cond holds, b otherwise.
func Ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}
