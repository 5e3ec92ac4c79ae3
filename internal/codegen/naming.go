package codegen

import (
	"strings"
	"unicode"
)

// VendorPrefix is the fixed prefix every generated public identifier
// carries, ahead of the sanitized spec name, so artifacts from two
// different specs never collide if linked together.
const VendorPrefix = "cf"

// Sanitize maps s into a valid, stable, lowercase snake_case C identifier
// fragment: non-identifier characters become underscores, runs of
// underscores collapse to one, and a leading digit gets an underscore
// prefix. Sanitize is a pure function of s; it never consults any
// external state, so codegen output depends only on IR content.
func Sanitize(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "_"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "_" + out
	}
	return out
}

// SpecPrefix returns the full vendor+spec prefix used ahead of every
// public symbol this codegen run emits, e.g. "cf_engine_bus".
func SpecPrefix(specName string) string {
	return VendorPrefix + "_" + Sanitize(specName)
}

// MessageSymbol returns the sanitized, lowercase message identifier
// fragment used in function names (e.g. "enginestatus" for a message
// named "EngineStatus").
func MessageSymbol(name string) string { return Sanitize(name) }

// MessageConstant returns the upper-case identifier fragment used for
// <MSG>_ID / <MSG>_DLC constants.
func MessageConstant(name string) string { return strings.ToUpper(Sanitize(name)) }

// SignalField returns the sanitized struct field name for a signal.
func SignalField(name string) string { return Sanitize(name) }
