// Package canonical provides the deterministic serialization used as the
// exact input to signing and hashing of ledger events and snapshots.
//
// Canonical form follows RFC 8785 (JSON Canonicalization Scheme):
//   - Map keys are sorted lexicographically by UTF-8 bytes.
//   - HTML escaping is DISABLED (unlike standard json.Marshal).
//   - Timestamps are normalized to RFC 3339 UTC with nanosecond precision.
//   - Non-finite numbers are rejected with ErrEncoding.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrEncoding is returned when a value cannot be canonicalized.
var ErrEncoding = errors.New("canonical: encoding failed")

// Field names excluded from the canonical form for signing and hashing.
// Signing excludes both the signature and the event hash; hashing excludes
// only the event hash (the signature is covered by the hash). Both
// operations MUST use these constants — re-deriving the sets at call sites
// silently breaks verification.
const (
	FieldSignature = "signature"
	FieldEventHash = "eventHash"
)

// SigningExclusions returns the field set excluded when encoding for signing.
func SigningExclusions() map[string]bool {
	return map[string]bool{FieldSignature: true, FieldEventHash: true}
}

// HashingExclusions returns the field set excluded when encoding for hashing.
func HashingExclusions() map[string]bool {
	return map[string]bool{FieldEventHash: true}
}

// Encode returns the canonical byte representation of v with the given
// top-level fields excluded. Field names refer to the JSON names of v's
// fields after marshaling.
func Encode(v interface{}, excluded map[string]bool) ([]byte, error) {
	// Marshal to intermediate JSON (standard) to respect struct json tags,
	// then decode to interface{} so ordering and formatting are ours.
	intermediate, err := json.Marshal(v)
	if err != nil {
		// json.Marshal rejects NaN and Inf; fold that into ErrEncoding.
		return nil, fmt.Errorf("%w: pre-marshal: %v", ErrEncoding, err)
	}

	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: intermediate decode: %v", ErrEncoding, err)
	}

	if m, ok := generic.(map[string]interface{}); ok {
		for name := range excluded {
			delete(m, name)
		}
	}

	return marshalRecursive(generic)
}

// EncodeForSigning encodes v with the signing exclusion set applied.
func EncodeForSigning(v interface{}) ([]byte, error) {
	return Encode(v, SigningExclusions())
}

// EncodeForHashing encodes v with the hashing exclusion set applied.
func EncodeForHashing(v interface{}) ([]byte, error) {
	return Encode(v, HashingExclusions())
}

func marshalRecursive(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // RFC 8785 requires no HTML escaping

	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return []byte(t.String()), nil
	case float64:
		// Reached only when v was constructed directly rather than decoded
		// with UseNumber.
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: non-finite number", ErrEncoding)
		}
		if err := enc.Encode(t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	case string:
		if err := enc.Encode(normalizeTimestamp(t)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		// json.Encoder adds a newline, trim it
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	case []interface{}:
		buf.Reset()
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalRecursive(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]interface{}:
		buf.Reset()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalString(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')

			vb, err := marshalRecursive(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	}
}

// marshalString encodes a map key. Keys are never timestamp-normalized.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// normalizeTimestamp rewrites RFC 3339 strings to UTC nanosecond form so
// the same instant always encodes to the same bytes regardless of the zone
// or precision the producer used. Non-timestamp strings pass through.
func normalizeTimestamp(s string) string {
	if len(s) < len("2006-01-02T15:04:05Z") {
		return s
	}
	// Cheap shape check before paying for a full parse.
	if s[4] != '-' || s[7] != '-' || s[10] != 'T' {
		return s
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return ts.UTC().Format(time.RFC3339Nano)
}
