package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// PayloadHash computes the content hash of a payload. encoding/json sorts
// map keys, so the encoding is canonical for map/slice/primitive payloads
// and hash equality is the sole change-detection signal.
func PayloadHash(payload map[string]any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		// Payloads come from decoded JSON, so re-encoding cannot fail;
		// hash the error text to keep the result deterministic anyway.
		raw = []byte(err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func hashFields(fields ...string) string {
	h := sha256.New()
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}
