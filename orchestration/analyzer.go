package orchestration

import (
	"github.com/skanga/conductor/core"
)

// Analyzer performs static dependency analysis over a plan's prompt
// templates and partitions tasks into parallel-executable batches.
type Analyzer struct {
	logger core.Logger
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(logger core.Logger) *Analyzer {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("framework/orchestration")
	}
	return &Analyzer{logger: logger}
}

// Analyze validates the plan's references, builds the dependency DAG, and
// returns an ordered list of batches. Tasks in the same batch are
// independent and may run in parallel; batch N fully precedes batch N+1.
// Within a batch, plan order is preserved.
//
// Reference semantics:
//   - {{user_request}} is an external input, never a dependency.
//   - {{prev_output}} is the stage-style convention: an implicit dependency
//     on the immediately preceding task in plan order.
//   - Any other identifier must name a task in the plan.
func (a *Analyzer) Analyze(plan []core.TaskDefinition) ([][]core.TaskDefinition, error) {
	byName := make(map[string]core.TaskDefinition, len(plan))
	for _, task := range plan {
		if _, dup := byName[task.Name]; dup {
			return nil, &PlanValidationError{
				TaskName: task.Name,
				Message:  "duplicate task name " + task.Name,
			}
		}
		byName[task.Name] = task
	}

	dag := NewTaskDAG()
	for i, task := range plan {
		var deps []string
		for _, ref := range ExtractReferences(task.PromptTemplate) {
			switch ref {
			case UserRequestVariable:
				// External input, not an edge
			case PrevOutputVariable:
				if i > 0 {
					deps = append(deps, plan[i-1].Name)
				}
			case task.Name:
				// Self-reference is a one-task cycle
				deps = append(deps, ref)
			default:
				if _, ok := byName[ref]; !ok {
					return nil, &PlanValidationError{TaskName: task.Name, Reference: ref}
				}
				deps = append(deps, ref)
			}
		}
		dag.AddTask(task.Name, deps)
	}

	if err := dag.Validate(); err != nil {
		return nil, err
	}

	levels := dag.ExecutionLevels()
	batches := make([][]core.TaskDefinition, len(levels))
	for i, level := range levels {
		batch := make([]core.TaskDefinition, len(level))
		for j, name := range level {
			batch[j] = byName[name]
		}
		batches[i] = batch
	}

	a.logger.Debug("Plan analyzed", map[string]interface{}{
		"operation":   "analyze_plan",
		"task_count":  len(plan),
		"batch_count": len(batches),
	})
	return batches, nil
}

// ParallelismReport summarizes how much parallel speedup a batch layout
// offers over sequential execution.
type ParallelismReport struct {
	TotalTasks       int
	BatchCount       int
	MaxBatchSize     int
	SpeedupPotential float64
}

// AnalyzeParallelismBenefit computes the parallelism report for a batch
// layout produced by Analyze.
func (a *Analyzer) AnalyzeParallelismBenefit(batches [][]core.TaskDefinition) ParallelismReport {
	report := ParallelismReport{BatchCount: len(batches)}
	for _, batch := range batches {
		report.TotalTasks += len(batch)
		if len(batch) > report.MaxBatchSize {
			report.MaxBatchSize = len(batch)
		}
	}
	if report.BatchCount > 0 {
		report.SpeedupPotential = float64(report.TotalTasks) / float64(report.BatchCount)
	}
	return report
}
