package ctlapi

import "strings"

// Subject builds a wire subject of the form
// "{prefix}.v1.{lattice}.{entity}.{verb}[.{suffix}...]".
func Subject(prefix, lattice, entity, verb string, suffix ...string) string {
	parts := make([]string, 0, 4+len(suffix))
	parts = append(parts, prefix, "v1", lattice, entity, verb)
	parts = append(parts, suffix...)
	return strings.Join(parts, ".")
}

// TrimPrefixAndVersion strips the "{prefix}.v1.{lattice}." header from a
// delivered subject, returning the remaining dot-separated tail tokens
// the dispatcher routes on. Returns ok=false if the subject doesn't match
// the expected prefix/version/lattice header.
func TrimPrefixAndVersion(subject, prefix, lattice string) (tail []string, ok bool) {
	header := prefix + ".v1." + lattice + "."
	if !strings.HasPrefix(subject, header) {
		return nil, false
	}
	rest := subject[len(header):]
	if rest == "" {
		return nil, false
	}
	return strings.Split(rest, "."), true
}
