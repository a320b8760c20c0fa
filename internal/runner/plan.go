package runner

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var planStepPattern = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.*\S)\s*$`)

// parsePlanSteps extracts the numbered lines of a plan, in order,
// ignoring any surrounding prose the model emitted alongside them.
func parsePlanSteps(text string) []PlanStep {
	var steps []PlanStep
	for _, line := range strings.Split(text, "\n") {
		m := planStepPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		steps = append(steps, PlanStep{Index: len(steps) + 1, Text: m[2]})
	}
	return steps
}

// runID generates a unique correlation id for one engine run.
func runID() string {
	return "run-" + uuid.NewString()
}
