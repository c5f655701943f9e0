package orchestration

import (
	"errors"
	"reflect"
	"testing"
)

func TestExtractReferences(t *testing.T) {
	cases := []struct {
		template string
		want     []string
	}{
		{"no references here", nil},
		{"Outline: {{user_request}}", []string{"user_request"}},
		{"{{a}} then {{b}} then {{a}} again", []string{"a", "b"}},
		{"{{_underscore}} and {{mixed_Case9}}", []string{"_underscore", "mixed_Case9"}},
		{"adjacent {{a}}{{b}}", []string{"a", "b"}},
		{"single brace {a} ignored", nil},
		{"malformed {{ spaced }} skipped", nil},
		{"malformed {{9digit}} skipped", nil},
		{"unclosed {{dangling", nil},
	}

	for _, tc := range cases {
		got := ExtractReferences(tc.template)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ExtractReferences(%q) = %v, want %v", tc.template, got, tc.want)
		}
	}
}

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{
		"user_request": "Distributed systems",
		"outline":      "1. Intro",
	}

	out, err := RenderTemplate("draft", "Write about {{user_request}} using {{outline}}.", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Write about Distributed systems using 1. Intro."
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

// Substituted text is not re-scanned for references
func TestRenderTemplateNoRescan(t *testing.T) {
	vars := map[string]string{"a": "{{b}}", "b": "never"}

	out, err := RenderTemplate("t", "value: {{a}}", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "value: {{b}}" {
		t.Errorf("substitution must be single-pass, got %q", out)
	}
}

func TestRenderTemplateUnresolved(t *testing.T) {
	_, err := RenderTemplate("draft", "Use {{ghost}}", map[string]string{})

	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
	if te.Identifier != "ghost" || te.TaskName != "draft" {
		t.Errorf("expected ghost/draft in error, got %+v", te)
	}
}

func TestRenderTemplateMalformed(t *testing.T) {
	for _, template := range []string{"bad {{ spaced }}", "bad {{", "bad {{9x}}"} {
		_, err := RenderTemplate("t", template, map[string]string{})
		var te *TemplateError
		if !errors.As(err, &te) {
			t.Errorf("template %q: expected TemplateError, got %v", template, err)
		}
	}
}

func TestRenderTemplateEmptyValueAllowed(t *testing.T) {
	out, err := RenderTemplate("t", "previous: {{prev_output}}", map[string]string{"prev_output": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "previous: " {
		t.Errorf("empty values substitute to empty, got %q", out)
	}
}
