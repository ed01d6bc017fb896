package wireerr

import "testing"

func TestNewAndError(t *testing.T) {
	err := New(UnknownLocal, "no entry for %q", "42")
	want := "UnknownLocal: no entry for \"42\""
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIs(t *testing.T) {
	err := New(DuplicateRemote, "boom")
	if !Is(err, DuplicateRemote) {
		t.Fatal("Is should report true for matching kind")
	}
	if Is(err, UnknownLocal) {
		t.Fatal("Is should report false for mismatched kind")
	}
	if Is(nil, DuplicateRemote) {
		t.Fatal("Is should report false for a non-*Error error")
	}
}
