package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Sum([]byte("abc")); got != want {
		t.Errorf("Sum = %s, want %s", got, want)
	}
}

func TestETagMatches(t *testing.T) {
	tag := ETag([]byte(`{"notes":[]}`))
	if len(tag) != 34 || tag[0] != '"' {
		t.Fatalf("ETag = %s", tag)
	}
	if ETag([]byte(`{"notes":[1]}`)) == tag {
		t.Error("different payloads share an ETag")
	}

	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{tag, true},
		{"W/" + tag, true},
		{`"other", ` + tag, true},
		{`"other"`, false},
		{"*", true},
	}
	for _, tc := range tests {
		if got := Matches(tc.header, tag); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}
