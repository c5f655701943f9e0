package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skanga/conductor/core"
	"github.com/skanga/conductor/llm"
)

// planMetaPrompt is the fixed instruction sent to the planner LM. The
// response must contain a JSON array; surrounding prose is tolerated.
const planMetaPrompt = `You are a planning assistant. Decompose the user request below into a list of tasks.

Respond with a JSON array only. Each element must be an object with exactly these keys:
  "name": a short unique identifier matching [A-Za-z_][A-Za-z0-9_]*
  "description": one sentence describing the task
  "promptTemplate": the prompt for the task; it may reference {{user_request}} or {{<otherTaskName>}} to consume another task's output

User request:
%s`

// PlanMaker turns a user request into a plan by calling the planner LM
// with a fixed meta-prompt and parsing the JSON array from its response.
type PlanMaker struct {
	provider llm.Provider
	logger   core.Logger
}

// NewPlanMaker creates a plan maker bound to a planner provider
func NewPlanMaker(provider llm.Provider, logger core.Logger) *PlanMaker {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("framework/orchestration")
	}
	return &PlanMaker{
		provider: provider,
		logger:   logger,
	}
}

// MakePlan calls the planner LM and parses its output into task
// definitions. An empty array is a valid plan with zero tasks.
func (p *PlanMaker) MakePlan(ctx context.Context, userRequest string) ([]core.TaskDefinition, error) {
	prompt := fmt.Sprintf(planMetaPrompt, userRequest)

	raw, err := p.provider.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("planner call failed: %w", err)
	}

	plan, err := ParsePlan(raw)
	if err != nil {
		p.logger.ErrorWithContext(ctx, "Planner output unparseable", map[string]interface{}{
			"operation":   "make_plan",
			"provider":    p.provider.Name(),
			"output_size": len(raw),
		})
		return nil, err
	}

	p.logger.InfoWithContext(ctx, "Plan created", map[string]interface{}{
		"operation":  "make_plan",
		"provider":   p.provider.Name(),
		"task_count": len(plan),
	})
	return plan, nil
}

// ParsePlan extracts the task array from raw planner output. The parse is
// tolerant of pre/postamble prose: it takes the substring between the
// first '[' and the last ']'. The extracted substring must still be a
// valid JSON array of objects with the required keys.
func ParsePlan(raw string) ([]core.TaskDefinition, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return nil, &PlanParseError{
			RawOutput: raw,
			Err:       fmt.Errorf("no JSON array found in planner output"),
		}
	}

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &entries); err != nil {
		return nil, &PlanParseError{RawOutput: raw, Err: err}
	}

	plan := make([]core.TaskDefinition, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		task, err := parseTask(entry)
		if err != nil {
			return nil, &PlanParseError{
				RawOutput: raw,
				Err:       fmt.Errorf("element %d: %w", i, err),
			}
		}
		if seen[task.Name] {
			return nil, &PlanValidationError{
				TaskName: task.Name,
				Message:  "duplicate task name " + task.Name,
			}
		}
		seen[task.Name] = true
		plan = append(plan, task)
	}
	return plan, nil
}

func parseTask(entry map[string]json.RawMessage) (core.TaskDefinition, error) {
	var task core.TaskDefinition
	for _, key := range []string{"name", "description", "promptTemplate"} {
		raw, ok := entry[key]
		if !ok {
			return task, fmt.Errorf("missing required key %q", key)
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return task, fmt.Errorf("key %q is not a string", key)
		}
		switch key {
		case "name":
			task.Name = value
		case "description":
			task.Description = value
		case "promptTemplate":
			task.PromptTemplate = value
		}
	}
	if task.Name == "" {
		return task, fmt.Errorf("task name must not be empty")
	}
	return task, nil
}
