package workflow

import (
	"strings"
	"testing"
)

const bookWorkflowYAML = `
name: book-draft
version: "1.0"
description: Outline, draft, and edit a short piece
continue_on_error: false
stages:
  - name: outline
    description: Produce an outline
    prompt_template: "Outline: {{user_request}}"
  - name: draft
    description: Expand the outline
    prompt_template: "Draft from: {{prev_output}}"
    max_retries: 2
  - name: edit
    description: Edit the draft
    prompt_template: "Edit: {{draft}}"
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(bookWorkflowYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if def.Name != "book-draft" || len(def.Stages) != 3 {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if def.Stages[1].MaxRetries != 2 {
		t.Errorf("expected max_retries 2 on draft, got %d", def.Stages[1].MaxRetries)
	}

	stages := def.BuildStages(map[string]Validator{
		"draft": func(output string) ValidationResult { return ValidationResult{Valid: true} },
	})
	if stages[1].Validator == nil {
		t.Error("expected the draft validator attached")
	}
	if stages[0].Validator != nil {
		t.Error("expected no validator on outline")
	}
}

func TestParseDefinitionRejectsDuplicates(t *testing.T) {
	yaml := `
name: dup
stages:
  - name: a
    prompt_template: "x"
  - name: a
    prompt_template: "y"
`
	_, err := ParseDefinition([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "duplicate stage name") {
		t.Errorf("expected duplicate stage error, got %v", err)
	}
}

func TestParseDefinitionRejectsMissingTemplate(t *testing.T) {
	yaml := `
name: incomplete
stages:
  - name: a
`
	_, err := ParseDefinition([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "no prompt template") {
		t.Errorf("expected missing template error, got %v", err)
	}
}

func TestParseDefinitionRejectsEmptyWorkflow(t *testing.T) {
	_, err := ParseDefinition([]byte("name: empty\nstages: []\n"))
	if err == nil || !strings.Contains(err.Error(), "no stages") {
		t.Errorf("expected no-stages error, got %v", err)
	}
}

func TestParseDefinitionRejectsBadYAML(t *testing.T) {
	_, err := ParseDefinition([]byte("::: not yaml"))
	if err == nil {
		t.Error("expected a parse error")
	}
}
