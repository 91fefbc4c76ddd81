package llms

import "context"

// Stream is a cancellable stream of model output. Chunks stops yielding when
// the passed context is cancelled; implementations that support early abort
// should stop the underlying generation as well.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamToolCallChunk interface {
	StreamChunk
	ToolCall() ToolCall
}

// ContentChunk is a plain content-bearing stream chunk, usable by adapters
// that have no richer metadata to carry.
type ContentChunk struct {
	Text   string
	Finish *string
}

func (c ContentChunk) FinishReason() *string { return c.Finish }
func (c ContentChunk) Content() string       { return c.Text }

// ToolCallChunk is a plain tool-call-bearing stream chunk.
type ToolCallChunk struct {
	Call   ToolCall
	Finish *string
}

func (c ToolCallChunk) FinishReason() *string { return c.Finish }
func (c ToolCallChunk) ToolCall() ToolCall    { return c.Call }
