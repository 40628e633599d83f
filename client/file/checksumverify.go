package file

import (
	"encoding/hex"
	"fmt"
	"hash"
)

// checksumVerifier hashes committed writes.
type checksumVerifier struct {
	hash     hash.Hash
	expected string
}

func (v *checksumVerifier) Write(p []byte) (int, error) {
	return v.hash.Write(p)
}

func (v *checksumVerifier) reset() {
	if v != nil {
		v.hash.Reset()
	}
}

func (v *checksumVerifier) Verify(name string) error {
	if v == nil {
		return nil
	}

	actual := hex.EncodeToString(v.hash.Sum(nil))
	if actual != v.expected {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("%s: expected %s, got %s", name, v.expected, actual),
		}
	}

	return nil
}
