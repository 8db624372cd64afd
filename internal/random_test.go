package internal

import "testing"

func TestNewFallbackDeviceIDUnique(t *testing.T) {
	a, err := NewFallbackDeviceID()
	if err != nil {
		t.Fatalf("NewFallbackDeviceID: %v", err)
	}
	b, err := NewFallbackDeviceID()
	if err != nil {
		t.Fatalf("NewFallbackDeviceID: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct fallback ids")
	}
	if !IsFallbackDeviceID(a) {
		t.Fatalf("expected %q to parse as fallback id", a)
	}
}

func TestParseFallbackIDRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "fp_abc", "fb_!!!", "fb_AAAA"} {
		if _, err := ParseFallbackID(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestHashFingerprintStableAndSkipsEmpty(t *testing.T) {
	a := HashFingerprint("uuid-1", "host", "linux")
	b := HashFingerprint("uuid-1", "", "host", "  ", "linux")
	if a != b {
		t.Fatalf("expected empty parts to be ignored: %s vs %s", a, b)
	}
	if a == HashFingerprint("uuid-2", "host", "linux") {
		t.Fatal("expected different input to change the fingerprint")
	}
	if len(a) != len("fp_")+32 {
		t.Fatalf("unexpected fingerprint length %d", len(a))
	}
}
