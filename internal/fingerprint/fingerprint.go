// Package fingerprint content-addresses diagnostic payloads.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the length of a fingerprint in bytes.
const Size = sha256.Size

var ErrInvalid = errors.New("invalid fingerprint")

// Fingerprint is the SHA-256 of a payload. Identical payloads always share a
// fingerprint; any byte difference yields a different one.
type Fingerprint [Size]byte

// Of hashes the payload exactly as given. No normalisation is applied.
func Of(payload []byte) Fingerprint {
	return sha256.Sum256(payload)
}

// OfString is Of for text payloads.
func OfString(payload string) Fingerprint {
	return Of([]byte(payload))
}

// Bytes returns a copy suitable for a BYTEA column.
func (f Fingerprint) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, f[:])
	return out
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FromBytes rebuilds a fingerprint read back from storage.
func FromBytes(b []byte) (Fingerprint, error) {
	var f Fingerprint
	if len(b) != Size {
		return f, fmt.Errorf("%w: got %d bytes", ErrInvalid, len(b))
	}
	copy(f[:], b)
	return f, nil
}

// Parse decodes the hex form produced by String.
func Parse(value string) (Fingerprint, error) {
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return FromBytes(decoded)
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
