package aurforge

import "strings"

// Artifact filenames may carry a pacman epoch qualifier ("foo-2:1.0-1-...").
// The colon is illegal in the transport used to move artifacts between the
// build and publish stages, so it is substituted with a fixed token on the
// way in and restored on the way out. The substitution is the only change;
// decode(encode(x)) == x for every valid canonical name. Callers must encode
// exactly once per transport hop: encode is not idempotent on names that
// already contain the token.
const (
	epochSeparator = ":"
	epochToken     = "_EPOCH_"
)

// EncodeFilename maps a canonical artifact filename to its transport-safe
// form. It must be given a bare filename, never a path.
func EncodeFilename(name string) string {
	if !strings.Contains(name, epochSeparator) {
		return name
	}
	return strings.ReplaceAll(name, epochSeparator, epochToken)
}

// DecodeFilename restores the canonical filename from its transport-safe form.
func DecodeFilename(name string) string {
	if !strings.Contains(name, epochToken) {
		return name
	}
	return strings.ReplaceAll(name, epochToken, epochSeparator)
}

// IsEncodedFilename reports whether a filename carries the transport token.
func IsEncodedFilename(name string) bool {
	return strings.Contains(name, epochToken)
}
