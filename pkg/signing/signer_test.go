package signing

import (
	"testing"
)

func TestSignDeterminism(t *testing.T) {
	secret := []byte("org-secret-1")
	payload := []byte(`{"eventType":"LOG_INGESTED","orgId":"org-1"}`)

	s1, err := Sign(payload, secret)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := Sign(payload, secret)
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Fatalf("same bytes and secret produced different signatures: %s vs %s", s1, s2)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	secret := []byte("org-secret-1")
	payload := []byte(`{"a":1}`)

	sig, err := Sign(payload, secret)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := Verify(payload, sig, secret)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("signature should verify")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	payload := []byte(`{"a":1}`)
	sig, _ := Sign(payload, []byte("secret-a"))

	ok, err := Verify(payload, sig, []byte("secret-b"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("signature must not verify under a different secret")
	}
}

func TestVerifyMutatedPayload(t *testing.T) {
	secret := []byte("org-secret-1")
	sig, _ := Sign([]byte(`{"eventType":"LOG_INGESTED"}`), secret)

	ok, err := Verify([]byte(`{"eventType":"VERIFICATION_REQUESTED"}`), sig, secret)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("mutated payload must fail verification")
	}
}

func TestVerifyMalformedSignature(t *testing.T) {
	ok, err := Verify([]byte(`{}`), "not-hex!!", []byte("s"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("malformed signature must be invalid, not an error")
	}
}

func TestEmptySecret(t *testing.T) {
	if _, err := Sign([]byte(`{}`), nil); err == nil {
		t.Fatal("expected error signing with empty secret")
	}
	if _, err := Verify([]byte(`{}`), "ab", nil); err == nil {
		t.Fatal("expected error verifying with empty secret")
	}
}

func TestDeriveKey(t *testing.T) {
	root := []byte("root-secret")

	k1, err := DeriveKey(root, "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(k1) != KeySize {
		t.Fatalf("expected %d-byte key, got %d", KeySize, len(k1))
	}

	k1again, _ := DeriveKey(root, "key-1")
	if string(k1) != string(k1again) {
		t.Fatal("derivation must be deterministic")
	}

	k2, _ := DeriveKey(root, "key-2")
	if string(k1) == string(k2) {
		t.Fatal("different key IDs must derive different keys")
	}

	if _, err := DeriveKey(nil, "key-1"); err == nil {
		t.Fatal("expected error for empty root secret")
	}
}
