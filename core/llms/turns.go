package llms

type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// Turn is a single finalized turn in the conversation history passed to the
// model: the user's utterance or the assistant's spoken response.
type Turn struct {
	Role    TurnRole
	Content string
	// ToolCalls records tools executed while producing an assistant turn.
	ToolCalls []ToolCall
}

// Response is the fully assembled output of a single model invocation.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolCall is a single tool invocation requested by the model, with its
// response filled in once the tool has been executed.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Response  string
}
