package llms

// StreamingPromptOptions collects everything a streaming model invocation
// needs beyond the prompt itself.
type StreamingPromptOptions struct {
	Instructions string
	Turns        []Turn
	Tools        []Tool
}

type StreamingPromptOption func(*StreamingPromptOptions)

// WithSystemPrompt sets the system instructions for the invocation.
// Repeating this option overwrites the previous instructions.
func WithSystemPrompt(prompt string) StreamingPromptOption {
	return func(o *StreamingPromptOptions) {
		o.Instructions = prompt
	}
}

// WithTurns appends conversation history turns, earliest first.
func WithTurns(turns ...Turn) StreamingPromptOption {
	return func(o *StreamingPromptOptions) {
		o.Turns = append(o.Turns, turns...)
	}
}

// WithTools exposes tools to the invocation. Repeating this option adds more
// tools.
func WithTools(tools ...Tool) StreamingPromptOption {
	return func(o *StreamingPromptOptions) {
		o.Tools = append(o.Tools, tools...)
	}
}
