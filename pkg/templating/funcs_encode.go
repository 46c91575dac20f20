package templating

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// toJSON renders any value as compact JSON.
func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// fromJSON parses a JSON document into maps, slices and scalars.
func fromJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// b64enc encodes s as standard base64.
func b64enc(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// b64dec decodes standard base64 input.
func b64dec(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// sha256sum returns the hex SHA-256 digest of s.
func sha256sum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// obfuscateEmail encodes every character of an address as an HTML numeric
// entity, so the text renders normally but does not appear verbatim in the
// page source.
func obfuscateEmail(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 6)
	for _, r := range s {
		fmt.Fprintf(&b, "&#%d;", r)
	}
	return b.String()
}
