package security

import (
	"strings"
	"testing"
)

func TestSanitize_AllowsBasicFormatting(t *testing.T) {
	s := NewContentSanitizer()

	input := `<p>SF小説の金字塔。<strong>砂の惑星</strong>を舞台にした<em>壮大な</em>物語。</p>`
	got := s.Sanitize(input)

	for _, tag := range []string{"<p>", "<strong>", "<em>"} {
		if !strings.Contains(got, tag) {
			t.Errorf("expected %q to survive sanitization, got: %s", tag, got)
		}
	}
}

func TestSanitize_RemovesScript(t *testing.T) {
	s := NewContentSanitizer()

	input := `<p>紹介文</p><script>alert("xss")</script>`
	got := s.Sanitize(input)

	if strings.Contains(got, "<script") {
		t.Errorf("script tag should be removed, got: %s", got)
	}
	if strings.Contains(got, "alert") {
		t.Errorf("script body should be removed, got: %s", got)
	}
}

func TestSanitize_RemovesEventAttributes(t *testing.T) {
	s := NewContentSanitizer()

	input := `<p onclick="alert('xss')">紹介文</p>`
	got := s.Sanitize(input)

	if strings.Contains(got, "onclick") {
		t.Errorf("on* attributes should be removed, got: %s", got)
	}
}

func TestSanitize_LinkGetsSafeRel(t *testing.T) {
	s := NewContentSanitizer()

	input := `<a href="https://example.com/review">書評</a>`
	got := s.Sanitize(input)

	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("expected target=_blank on links, got: %s", got)
	}
	if !strings.Contains(got, "noopener") || !strings.Contains(got, "noreferrer") {
		t.Errorf("expected noopener noreferrer rel on links, got: %s", got)
	}
}

func TestSanitize_EmptyInput(t *testing.T) {
	s := NewContentSanitizer()

	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty string", got)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := NewContentSanitizer()

	input := `<p>紹介文<script>bad()</script></p>`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)

	if once != twice {
		t.Errorf("sanitization is not idempotent: %q != %q", once, twice)
	}
}
