// Package signature verifies HMAC signatures on inbound webhooks.
//
// A signature header carries a hex digest of the raw request body, either
// prefixed with its algorithm ("sha256=…", "sha1=…") or bare, in which case
// sha256 is assumed. Several comma separated signatures may be sent during
// a secret rotation; any match is accepted.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

var (
	ErrMissing   = errors.New("signature missing")
	ErrMalformed = errors.New("signature malformed")
	ErrMismatch  = errors.New("signature mismatch")
	ErrNoSecret  = errors.New("signature secret not configured")
)

type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
)

func (a Algorithm) hash() (func() hash.Hash, bool) {
	switch a {
	case SHA1:
		return sha1.New, true
	case SHA256:
		return sha256.New, true
	default:
		return nil, false
	}
}

// Sign returns the header value for body, for tests and the mock gateway.
func Sign(alg Algorithm, secret string, body []byte) string {
	h, ok := alg.hash()
	if !ok {
		return ""
	}
	mac := hmac.New(h, []byte(secret))
	mac.Write(body)
	return string(alg) + "=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks header against body using secret.
func Verify(secret string, body []byte, header string) error {
	if secret == "" {
		return ErrNoSecret
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissing
	}

	parsed := 0
	for _, part := range strings.Split(header, ",") {
		alg, digest, ok := parse(strings.TrimSpace(part))
		if !ok {
			continue
		}
		parsed++

		h, _ := alg.hash()
		mac := hmac.New(h, []byte(secret))
		mac.Write(body)
		if hmac.Equal(mac.Sum(nil), digest) {
			return nil
		}
	}

	if parsed == 0 {
		return ErrMalformed
	}

	return ErrMismatch
}

func parse(v string) (Algorithm, []byte, bool) {
	alg := SHA256
	if name, digest, found := strings.Cut(v, "="); found {
		alg = Algorithm(strings.ToLower(strings.TrimSpace(name)))
		v = digest
	}

	if _, ok := alg.hash(); !ok {
		return "", nil, false
	}

	b, err := hex.DecodeString(strings.TrimSpace(v))
	if err != nil || len(b) == 0 {
		return "", nil, false
	}

	return alg, b, true
}
