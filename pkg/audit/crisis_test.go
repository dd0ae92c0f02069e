package audit

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDetectCrisis(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"I don't want to live anymore", true},
		{"sometimes I think about hurting myself", false},
		{"I want to hurt myself", true},
		{"I feel like I'd be better off dead", true},
		{"my partner hits me when he drinks", true},
		{"I am tired and discouraged at work", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := DetectCrisis(tc.text); got != tc.want {
			t.Fatalf("DetectCrisis(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestCrisisRequirement(t *testing.T) {
	req := CrisisRequirement(true)
	if !req.Required {
		t.Fatal("expected required")
	}
	if len(req.Resources) == 0 || req.Prompt == "" {
		t.Fatalf("crisis requirement missing resources or prompt: %+v", req)
	}
	found988 := false
	for _, resource := range req.Resources {
		if strings.Contains(resource.Contact, "988") {
			found988 = true
		}
	}
	if !found988 {
		t.Fatalf("resources missing the 988 lifeline: %+v", req.Resources)
	}

	none := CrisisRequirement(false)
	if none.Required || len(none.Resources) != 0 || none.Prompt != "" {
		t.Fatalf("non-crisis requirement should be empty: %+v", none)
	}
}

func TestSanitizeInput(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  plain text  ", "plain text"},
		{"<script>alert(1)</script>hello", "alert(1)hello"},
		{`he said "hi" to 'them'`, "he said hi to them"},
		{"a < b > c", "a  c"},
	}
	for _, tc := range cases {
		if got := SanitizeInput(tc.in); got != tc.want {
			t.Fatalf("SanitizeInput(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeInputCapsLength(t *testing.T) {
	long := strings.Repeat("a", 4000)
	if got := SanitizeInput(long); len(got) != maxSubmissionChars {
		t.Fatalf("len = %d, want %d", len(got), maxSubmissionChars)
	}
}

func TestSanitizeInputCapsOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("a", maxSubmissionChars-1) + "é" + strings.Repeat("b", 100)
	got := SanitizeInput(long)
	if len(got) > maxSubmissionChars {
		t.Fatalf("len = %d, want <= %d", len(got), maxSubmissionChars)
	}
	if !utf8.ValidString(got) {
		t.Fatal("capped submission is not valid UTF-8")
	}
}
