package orchestration

import (
	"fmt"
)

// PlanParseError reports that the planner LM output could not be parsed
// into a plan. RawOutput carries the full LM response for diagnostics.
type PlanParseError struct {
	RawOutput string
	Err       error
}

func (e *PlanParseError) Error() string {
	return fmt.Sprintf("failed to parse planner output: %v", e.Err)
}

func (e *PlanParseError) Unwrap() error {
	return e.Err
}

// PlanValidationError reports a structurally invalid plan: a template
// referencing an unknown task, or duplicate task names.
type PlanValidationError struct {
	TaskName  string
	Reference string
	Message   string
}

func (e *PlanValidationError) Error() string {
	if e.Reference != "" {
		return fmt.Sprintf("task %q references unknown variable %q", e.TaskName, e.Reference)
	}
	return e.Message
}

// CyclicDependencyError reports a cycle in the task reference graph
type CyclicDependencyError struct {
	Tasks []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("plan contains circular dependencies among tasks %v", e.Tasks)
}

// TemplateError reports an unresolved or malformed {{...}} reference at
// render time. The analyzer rejects unknown references up front, so hitting
// this during execution indicates a bug.
type TemplateError struct {
	TaskName   string
	Identifier string
}

func (e *TemplateError) Error() string {
	if e.TaskName != "" {
		return fmt.Sprintf("task %q: unresolved template reference %q", e.TaskName, e.Identifier)
	}
	return fmt.Sprintf("unresolved template reference %q", e.Identifier)
}

// ExecutionError reports a task failure that failed the whole workflow.
// Outputs persisted before the failure remain stored for resume.
type ExecutionError struct {
	WorkflowID string
	TaskName   string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("workflow %q: task %q failed: %v", e.WorkflowID, e.TaskName, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
