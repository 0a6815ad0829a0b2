package conversation

import "fmt"

// Flow identifies a multi-step dialog.
type Flow string

const (
	FlowOnboarding Flow = "onboarding"
	FlowCreateTask Flow = "create_task"
)

// Validate checks if the Flow is a valid enum value.
func (f Flow) Validate() error {
	switch f {
	case FlowOnboarding, FlowCreateTask:
		return nil
	default:
		return fmt.Errorf("unknown flow: %q", f)
	}
}

// Step identifies a single point within a flow awaiting one piece of input.
type Step string

const (
	// Onboarding flow
	StepAwaitingConsent     Step = "awaiting_consent"
	StepAwaitingCanvasToken Step = "awaiting_canvas_token"

	// Task creation flow
	StepAwaitingTitle       Step = "awaiting_title"
	StepAwaitingCourse      Step = "awaiting_course"
	StepAwaitingDueDate     Step = "awaiting_due_date"
	StepAwaitingDueTime     Step = "awaiting_due_time"
	StepAwaitingDescription Step = "awaiting_description"
)

// Validate checks if the Step is a valid enum value.
func (s Step) Validate() error {
	switch s {
	case StepAwaitingConsent, StepAwaitingCanvasToken,
		StepAwaitingTitle, StepAwaitingCourse, StepAwaitingDueDate,
		StepAwaitingDueTime, StepAwaitingDescription:
		return nil
	default:
		return fmt.Errorf("unknown step: %q", s)
	}
}

// flowSteps is the transition table: the ordered steps of each flow. A step
// only ever advances to its successor; anything else is invalid input for
// that step and re-prompts.
var flowSteps = map[Flow][]Step{
	FlowOnboarding: {
		StepAwaitingConsent,
		StepAwaitingCanvasToken,
	},
	FlowCreateTask: {
		StepAwaitingTitle,
		StepAwaitingCourse,
		StepAwaitingDueDate,
		StepAwaitingDueTime,
		StepAwaitingDescription,
	},
}

// nextStep returns the step after the given one within its flow, or false at
// the terminal step.
func nextStep(flow Flow, step Step) (Step, bool) {
	steps := flowSteps[flow]
	for i, s := range steps {
		if s == step && i+1 < len(steps) {
			return steps[i+1], true
		}
	}
	return "", false
}
