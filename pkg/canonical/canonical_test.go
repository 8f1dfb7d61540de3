package canonical

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestEncode_Sorting(t *testing.T) {
	input := map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	expected := `{"a":1,"b":2,"c":3}`

	b, err := Encode(input, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestEncode_RecursiveSorting(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}

	expected := `{"a":1,"z":{"x":"bar","y":"foo"}}`

	b, err := Encode(input, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestEncode_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{
		"html": "<script>alert('xss')</script> &",
	}

	// Standard encoding/json produces < escapes; RFC 8785 forbids them.
	expected := `{"html":"<script>alert('xss')</script> &"}`

	b, err := Encode(input, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestEncode_FieldOrderIndependence(t *testing.T) {
	type A struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	type B struct {
		A int `json:"a"`
		B int `json:"b"`
	}

	b1, err := Encode(A{A: 1, B: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := Encode(B{A: 1, B: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b1) != string(b2) {
		t.Errorf("field order changed encoding: %s vs %s", b1, b2)
	}
}

func TestEncode_TimestampNormalization(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	instant := time.Date(2026, 3, 14, 10, 30, 0, 0, est)

	b1, err := Encode(map[string]interface{}{"at": instant}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := Encode(map[string]interface{}{"at": instant.UTC()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b1) != string(b2) {
		t.Errorf("same instant in different zones encoded differently: %s vs %s", b1, b2)
	}
	if !strings.Contains(string(b1), "15:30:00Z") {
		t.Errorf("expected UTC normalization, got %s", b1)
	}
}

func TestEncode_NonTimestampStringsUntouched(t *testing.T) {
	b, err := Encode(map[string]string{"note": "2026 was a year"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"note":"2026 was a year"}` {
		t.Errorf("non-timestamp string mangled: %s", b)
	}
}

func TestEncode_RejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := Encode(map[string]float64{"x": v}, nil); err == nil {
			t.Errorf("expected ErrEncoding for %v", v)
		}
	}
}

func TestEncode_Exclusions(t *testing.T) {
	input := map[string]interface{}{
		"eventType": "LOG_INGESTED",
		"signature": "deadbeef",
		"eventHash": "cafef00d",
	}

	b, err := Encode(input, SigningExclusions())
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"eventType":"LOG_INGESTED"}` {
		t.Errorf("signing exclusions not applied: %s", b)
	}

	b, err = Encode(input, HashingExclusions())
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"eventType":"LOG_INGESTED","signature":"deadbeef"}` {
		t.Errorf("hashing exclusions not applied: %s", b)
	}
}

// The exclusion sets are the contract between signing and hashing. A drift
// in either direction breaks verification of every previously sealed event,
// so the exact membership is pinned here.
func TestExclusionSetMembership(t *testing.T) {
	signing := SigningExclusions()
	if len(signing) != 2 || !signing[FieldSignature] || !signing[FieldEventHash] {
		t.Errorf("signing exclusions must be exactly {signature, eventHash}, got %v", signing)
	}

	hashing := HashingExclusions()
	if len(hashing) != 1 || !hashing[FieldEventHash] {
		t.Errorf("hashing exclusions must be exactly {eventHash}, got %v", hashing)
	}
	if hashing[FieldSignature] {
		t.Error("hashing must NOT exclude the signature")
	}
}

func TestHash_Stability(t *testing.T) {
	v1 := map[string]interface{}{"a": 1, "b": 2}

	type S struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	v2 := S{A: 1, B: 2}

	h1, err := Hash(v1, nil)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Hash(v2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("semantically identical values hashed differently: %s vs %s", h1, h2)
	}
}

func TestTransform_RawJSON(t *testing.T) {
	out, err := Transform([]byte(`{"b": 2, "a": 1}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"a":1,"b":2}` {
		t.Errorf("unexpected transform output: %s", out)
	}

	if _, err := Transform([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
