package engine

// Engine runs jobs.
type Engine struct {
	jobs []string
}

// Run executes every job.
func (e *Engine) Run() error {
	for _, j := range e.jobs {
		if j == "" {
			return nil
		}
	}
	return nil
}
