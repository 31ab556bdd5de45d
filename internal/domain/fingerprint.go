package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for record fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainSession = "pacer/session/v1"
	DomainEvent   = "pacer/event/v1"
	DomainPreset  = "pacer/preset/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns a content hash of the envelope's record.
// Two pushes of the same record state yield the same fingerprint,
// which lets a remote store skip rewriting unchanged rows.
func (e Envelope) Fingerprint() (string, error) {
	obj := e.CanonicalObject()
	if obj == nil {
		return "", fmt.Errorf("fingerprint: empty %s envelope %q", e.Kind, e.ID)
	}
	data, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	var prefix string
	switch e.Kind {
	case KindSession:
		prefix = DomainSession
	case KindEvent:
		prefix = DomainEvent
	case KindPreset:
		prefix = DomainPreset
	}
	return hashWithDomain(prefix, data), nil
}
