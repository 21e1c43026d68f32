package capability

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/:rw", "/:rw"},
		{"/:wr", "/:rw"},   // sorted
		{"/:rrww", "/:rw"}, // deduped
		{"/pub/pubky.app/:rw", "/pub/pubky.app/:rw"},
		{"/pub/:wx", "/pub/:wx"}, // unknown action 'x' preserved
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tc.in, got.String(), tc.want)
		}
	}
}

func TestParseInvalidFormat(t *testing.T) {
	for _, s := range []string{"no-colon", "/a:r:w", ""} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error", s)
		}
	}
}

func TestParseInvalidScope(t *testing.T) {
	if _, err := Parse("relative:rw"); err != ErrInvalidScope {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
}

func TestParseListLenientDecode(t *testing.T) {
	list := ParseList("/:rw,garbage,/pub/app/:r")
	if len(list) != 2 {
		t.Fatalf("expected 2 valid entries, got %d: %v", len(list), list)
	}
	if list.String() != "/:rw,/pub/app/:r" {
		t.Fatalf("unexpected serialization: %q", list.String())
	}
}

func TestCoversPath(t *testing.T) {
	c, _ := Parse("/pub/pubky.app/:rw")
	if !c.CoversPath("pub/pubky.app/foo") {
		t.Error("expected scope to cover nested path")
	}
	if c.CoversPath("pub/foo.bar/file") {
		t.Error("expected scope not to cover unrelated path")
	}
}

func TestFindWritable(t *testing.T) {
	list := ParseList("/pub/pubky.app/:rw")
	if _, ok := list.FindWritable("pub/pubky.app/foo"); !ok {
		t.Error("expected a writable capability for covered path")
	}
	if _, ok := list.FindWritable("pub/other/foo"); ok {
		t.Error("expected no writable capability for uncovered path")
	}
}
