// Package checksum computes and verifies the MD5 digests PayGate attaches to redirect
// parameters and browser callbacks.
//
// The digest is the lowercase hex MD5 of the fields concatenated in protocol order followed
// by the merchant secret. The remote side computes the same value, so field order and the
// output encoding are part of the wire contract.
package checksum

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

func Compute(fields []string, secret string) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f)
	}
	b.WriteString(secret)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether received matches the digest of fields and secret.
// Malformed or empty input is a mismatch.
func Verify(received string, fields []string, secret string) bool {
	received = strings.TrimSpace(received)
	if len(received) != hex.EncodedLen(md5.Size) {
		return false
	}
	expected := Compute(fields, secret)
	return subtle.ConstantTimeCompare([]byte(received), []byte(expected)) == 1
}
