package saga

import (
	"fmt"
	"strings"
)

// Registry is the fixed, ordered list of steps defining one workflow type.
// It is constructed once at startup and passed by reference into every
// coordinator invocation; it is never mutated per run.
type Registry struct {
	steps []Step
}

func NewRegistry(steps ...Step) (Registry, error) {
	if len(steps) == 0 {
		return Registry{}, fmt.Errorf("registry requires at least one step")
	}
	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			return Registry{}, fmt.Errorf("step %d: name is required", i)
		}
		if _, ok := seen[name]; ok {
			return Registry{}, fmt.Errorf("step %d: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		if step.Forward == nil {
			return Registry{}, fmt.Errorf("step %q: forward action is required", name)
		}
		if step.Compensate == nil {
			return Registry{}, fmt.Errorf("step %q: compensating action is required", name)
		}
	}
	copied := make([]Step, len(steps))
	copy(copied, steps)
	return Registry{steps: copied}, nil
}

func (r Registry) Len() int { return len(r.steps) }

// Steps returns a copy of the ordered step list.
func (r Registry) Steps() []Step {
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}
