package utils

import "testing"

func TestSanitizeHTML(t *testing.T) {
	in := `<html><head><style>body{color:red}</style></head>` +
		`<body><script>alert("x")</script><p>Hello   <b>world</b> &amp; friends</p></body></html>`
	got := SanitizeHTML(in)
	want := "Hello world & friends"
	if got != want {
		t.Fatalf("SanitizeHTML = %q, want %q", got, want)
	}
}

func TestNormalizeTextFoldsAccents(t *testing.T) {
	if got := NormalizeText("Café RÉSUMÉ"); got != "cafe resume" {
		t.Fatalf("NormalizeText = %q", got)
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	s := "héllo"
	got := Truncate(s, 2) // cuts into the middle of é
	if got != "h" {
		t.Fatalf("Truncate = %q, want %q", got, "h")
	}
	if Truncate(s, 100) != s {
		t.Fatal("Truncate must not change short strings")
	}
}
