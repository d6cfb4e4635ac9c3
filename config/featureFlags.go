package config

import (
	"os"
	"strings"
)

// ExpireDiscrepanciesOnUnmatch controls whether unmatching a pair also
// cancels any still-pending discrepancy that references it. Off by default:
// the discrepancy stays behind as an audit record and must be rejected by a
// reviewer.
//
// Set via env:
// - EXPIRE_DISCREPANCIES_ON_UNMATCH=true
func ExpireDiscrepanciesOnUnmatch() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("EXPIRE_DISCREPANCIES_ON_UNMATCH")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
