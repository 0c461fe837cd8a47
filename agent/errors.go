package agent

import "fmt"

// ModelError reports that the model could not be reached or returned an
// unusable response. It is terminal for the request.
type ModelError struct {
	Model     string
	Iteration int
	Err       error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s failed at iteration %d: %v", e.Model, e.Iteration, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// LoopExceededError reports that the model kept requesting tools beyond the
// configured iteration budget.
type LoopExceededError struct {
	MaxIterations int
}

func (e *LoopExceededError) Error() string {
	return fmt.Sprintf("agent loop exceeded %d model iterations", e.MaxIterations)
}
