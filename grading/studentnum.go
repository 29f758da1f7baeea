package grading

import (
	"regexp"
	"strings"
)

var (
	studentNumInName = regexp.MustCompile(`.*([a-zA-Z][0-9]{7}[a-zA-Z]).*`)
	studentNumExact  = regexp.MustCompile(`^[a-zA-Z][0-9]{7}[a-zA-Z]$`)
)

// ExtractStudentNumber pulls a student number such as A0123456X out of an
// uploaded file name. It returns "" when the name carries none.
func ExtractStudentNumber(filename string) string {
	m := studentNumInName.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

func NormalizeStudentNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func IsStudentNumber(s string) bool {
	return studentNumExact.MatchString(strings.TrimSpace(s))
}
