package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix enables
// future algorithm migration without colliding with old hashes.
const (
	DomainIR          = "manifest/ir/v1"
	DomainIdempotency = "manifest/idempotency/v1"
)

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents domain/data
// boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes the content-addressed identity of a compiled IR.
// Two compiles of the same manifest source produce the same hash; any
// semantic change to the IR changes it. The runtime stamps this hash on
// emitted events as provenance, and the cache uses it for change detection.
func ContentHash(doc *IR) (string, error) {
	data, err := Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return HashWithDomain(DomainIR, data), nil
}
