package checksum

import "testing"

func TestFields(t *testing.T) {
	// sha256 of the empty string
	if got := Fields(); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Fields() = %s", got)
	}
	if Fields("ab", "c") == Fields("a", "bc") {
		t.Error("field boundaries should change the digest")
	}
	if Fields("x", "y") != Fields("x", "y") {
		t.Error("digest should be stable")
	}
}
