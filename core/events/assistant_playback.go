package events

const (
	// KindAssistantPlaybackStarted identifies playback start for the current response.
	KindAssistantPlaybackStarted Kind = "assistant_playback.started"
	// KindAssistantPlaybackFrame identifies an audio frame written to the output transport.
	KindAssistantPlaybackFrame Kind = "assistant_playback.frame"
	// KindAssistantPlaybackChunkPlayed identifies completion of a chunk's audio in ordinal order.
	KindAssistantPlaybackChunkPlayed Kind = "assistant_playback.chunk_played"
	// KindAssistantPlaybackEnded identifies the playback completion milestone.
	KindAssistantPlaybackEnded Kind = "assistant_playback.ended"
)

// AssistantPlaybackStarted marks the start of assistant playback.
type AssistantPlaybackStarted struct{ Base }

// NewAssistantPlaybackStarted creates an assistant playback started event.
func NewAssistantPlaybackStarted() AssistantPlaybackStarted {
	return AssistantPlaybackStarted{Base: NewBase(KindAssistantPlaybackStarted)}
}

// AssistantPlaybackFrame carries an audio frame written to the output transport.
type AssistantPlaybackFrame struct {
	Base
	Audio []byte
}

// NewAssistantPlaybackFrame creates an assistant playback frame event.
func NewAssistantPlaybackFrame(audio []byte) AssistantPlaybackFrame {
	return AssistantPlaybackFrame{Base: NewBase(KindAssistantPlaybackFrame), Audio: audio}
}

// AssistantPlaybackChunkPlayed marks that all audio for a response chunk was
// written to the transport.
type AssistantPlaybackChunkPlayed struct {
	Base
	Ordinal    int
	Transcript string
}

// NewAssistantPlaybackChunkPlayed creates a chunk played event.
func NewAssistantPlaybackChunkPlayed(ordinal int, transcript string) AssistantPlaybackChunkPlayed {
	return AssistantPlaybackChunkPlayed{Base: NewBase(KindAssistantPlaybackChunkPlayed), Ordinal: ordinal, Transcript: transcript}
}

// AssistantPlaybackEnded marks the end of assistant playback.
type AssistantPlaybackEnded struct {
	Base
	// Completed is true when playback drained naturally, false when it was
	// stopped by cancellation or failure.
	Completed bool
	// Transcript is the text actually spoken before playback ended.
	Transcript string
}

// NewAssistantPlaybackEnded creates an assistant playback ended event.
func NewAssistantPlaybackEnded(completed bool, transcript string) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewBase(KindAssistantPlaybackEnded), Completed: completed, Transcript: transcript}
}
