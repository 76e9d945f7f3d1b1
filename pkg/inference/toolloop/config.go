package toolloop

import "time"

// LoopConfig configures one orchestration run.
type LoopConfig struct {
	// ModelTimeout bounds each worker and supervisor call. Zero disables it.
	ModelTimeout time.Duration
	// WorkerPrompt and SupervisorPrompt are text/template sources for the
	// system instructions, rendered with PromptData.
	WorkerPrompt     string
	SupervisorPrompt string
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		ModelTimeout:     60 * time.Second,
		WorkerPrompt:     DefaultWorkerPrompt,
		SupervisorPrompt: DefaultSupervisorPrompt,
	}
}

func (c LoopConfig) WithModelTimeout(timeout time.Duration) LoopConfig {
	c.ModelTimeout = timeout
	return c
}

// WithWorkerPrompt overrides the worker instruction; an empty prompt keeps the default.
func (c LoopConfig) WithWorkerPrompt(prompt string) LoopConfig {
	if prompt != "" {
		c.WorkerPrompt = prompt
	}
	return c
}

func (c LoopConfig) WithSupervisorPrompt(prompt string) LoopConfig {
	if prompt != "" {
		c.SupervisorPrompt = prompt
	}
	return c
}
