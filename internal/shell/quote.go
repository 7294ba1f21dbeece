// Package shell builds command lines for a remote POSIX shell.
package shell

import "strings"

// Quote wraps s in single quotes so a POSIX shell passes it through as one
// literal word. Embedded single quotes are closed, escaped and reopened.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
