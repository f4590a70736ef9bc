package signing

import "testing"

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	body := []byte(`{"jobId":"job-1","status":"completed"}`)
	sig := s.Sign(body)
	if len(sig) == 0 {
		t.Fatalf("expected signature")
	}
	if !s.Validate(body, sig) {
		t.Fatalf("expected signature to validate")
	}
	if s.Validate([]byte(`{"jobId":"job-2"}`), sig) {
		t.Fatalf("expected validation to fail for a different body")
	}
	if s.Validate(body, "deadbeef") {
		t.Fatalf("expected validation to fail for a forged signature")
	}
}
