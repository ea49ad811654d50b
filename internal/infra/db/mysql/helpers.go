package mysql

import "strings"

// stringOrDash keeps NOT NULL text columns happy when the letter omits an
// optional field like source.
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
