package logging

import "strings"

// FormatSubject builds the console label "subject · pipeline/step". Missing
// parts are dropped along with their separators.
func FormatSubject(subject, pipeline, step string) string {
	subject = strings.TrimSpace(subject)
	work := strings.Trim(strings.TrimSpace(pipeline)+"/"+strings.TrimSpace(step), "/")
	switch {
	case subject != "" && work != "":
		return subject + " · " + work
	case subject != "":
		return subject
	default:
		return work
	}
}
