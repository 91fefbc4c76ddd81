package events

const (
	// KindAssistantResponseStarted identifies response generation start.
	KindAssistantResponseStarted Kind = "assistant_response.started"
	// KindAssistantResponseChunk identifies a speakable response chunk.
	KindAssistantResponseChunk Kind = "assistant_response.chunk"
	// KindAssistantResponseFinal identifies response stream completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
)

// AssistantResponseStarted marks the start of response generation.
type AssistantResponseStarted struct {
	Base
	TurnID    uint64
	Utterance string
}

// NewAssistantResponseStarted creates a response started event.
func NewAssistantResponseStarted(turnID uint64, utterance string) AssistantResponseStarted {
	return AssistantResponseStarted{Base: NewBase(KindAssistantResponseStarted), TurnID: turnID, Utterance: utterance}
}

// AssistantResponseChunk carries a speakable chunk forwarded to synthesis.
type AssistantResponseChunk struct {
	Base
	Ordinal int
	Text    string
	IsLast  bool
}

// NewAssistantResponseChunk creates a response chunk event.
func NewAssistantResponseChunk(ordinal int, text string, isLast bool) AssistantResponseChunk {
	return AssistantResponseChunk{Base: NewBase(KindAssistantResponseChunk), Ordinal: ordinal, Text: text, IsLast: isLast}
}

// AssistantResponseFinal marks that the response token stream is complete.
type AssistantResponseFinal struct {
	Base
	Text string
}

// NewAssistantResponseFinal creates a response final event.
func NewAssistantResponseFinal(text string) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), Text: text}
}
