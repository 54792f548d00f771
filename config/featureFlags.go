package config

import (
	"os"
	"strings"
)

const (
	NumberingModeCounter = "counter"
	NumberingModeScan    = "scan"
)

// DocumentNumberingMode selects how document numbers are allocated.
//
// Set via env:
// - DOCUMENT_NUMBERING_MODE=counter (default) locks a per-family/year counter row.
// - DOCUMENT_NUMBERING_MODE=scan reads the highest existing number and increments it, falling back
//   to a timestamp suffix on query failure. Not safe under concurrent creations.
func DocumentNumberingMode() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DOCUMENT_NUMBERING_MODE")))
	if v == NumberingModeScan {
		return NumberingModeScan
	}
	return NumberingModeCounter
}

// AutoApplyCreditNotes lets recurring billing consume open deduction credit notes of the client.
//
// Set via env:
// - AUTO_APPLY_CREDIT_NOTES=true
func AutoApplyCreditNotes() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("AUTO_APPLY_CREDIT_NOTES")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
