package htmltext

import (
	"strings"
	"testing"
)

func TestTextFlattensBlocksAndDropsScripts(t *testing.T) {
	in := `<p>Use <code>sort.Slice</code> &amp; friends.</p><script>alert(1)</script><ul><li>one</li><li>two</li></ul>`
	want := "Use sort.Slice & friends.\n\none\n\ntwo"
	if got := Text(in); got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestTextKeepsInlineTagsGlued(t *testing.T) {
	cases := map[string]string{
		"foo<b>bar</b>baz":                   "foobarbaz",
		"call <code>f</code>(x)":             "call f(x)",
		"<p>Use <code>enumerate</code>.</p>": "Use enumerate.",
		"a <em>b</em> c":                     "a b c",
		"one<br>two":                         "one\ntwo",
		"<span>x</span>\n  <span>y</span>":   "x y",
		"<p>  lead</p><p>trail  </p>":        "lead\n\ntrail",
	}
	for in, want := range cases {
		if got := Text(in); got != want {
			t.Errorf("Text(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTextKeepsPreformattedWhitespace(t *testing.T) {
	got := Text("<pre>for i := 0; i < n; i++ {\n\tx++\n}</pre>")
	if !strings.Contains(got, "\tx++\n}") {
		t.Fatalf("expected preformatted whitespace kept, got %q", got)
	}
}

func TestTextOfPlainString(t *testing.T) {
	if got := Text("  just   words "); got != "just words" {
		t.Fatalf("Text() = %q", got)
	}
	if got := Text(""); got != "" {
		t.Fatalf("Text(\"\") = %q", got)
	}
}

func TestUnescape(t *testing.T) {
	if got := Unescape("a &quot;b&quot; &amp; c"); got != `a "b" & c` {
		t.Fatalf("Unescape() = %q", got)
	}
}
