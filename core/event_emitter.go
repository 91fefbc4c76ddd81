package orchestration

import (
	"github.com/voicewire/duplex-core/core/events"
	"github.com/voicewire/duplex-core/core/speechtotext"
)

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(opts OrchestrateOptions) eventEmitter {
	return func(event events.Event) {
		if opts.onEvent != nil {
			opts.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.UserSpeechStarted:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(true)
			}
		case events.UserSpeechEnded:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(false)
			}
		case events.UserTranscriptFragment:
			if opts.onTranscriptFragment != nil {
				opts.onTranscriptFragment(speechtotext.Fragment{
					Text:    typedEvent.Text,
					IsFinal: typedEvent.IsFinal,
					Start:   typedEvent.Start,
					End:     typedEvent.End,
					Seq:     typedEvent.Seq,
				})
			}
		case events.UserUtteranceStable:
			if opts.onUtteranceCommitted != nil {
				opts.onUtteranceCommitted(typedEvent.Text)
			}
		case events.AssistantResponseChunk:
			if opts.onResponseChunk != nil {
				opts.onResponseChunk(typedEvent.Text)
			}
		case events.AssistantResponseFinal:
			if opts.onResponseEnd != nil {
				opts.onResponseEnd(typedEvent.Text)
			}
		case events.AssistantPlaybackFrame:
			if opts.onAudio != nil {
				opts.onAudio(typedEvent.Audio)
			}
		case events.AssistantPlaybackEnded:
			if opts.onPlaybackEnded != nil {
				opts.onPlaybackEnded(typedEvent.Transcript)
			}
		case events.TurnTransition:
			if opts.onTurnTransition != nil {
				opts.onTurnTransition(typedEvent.TurnID, typedEvent.From, typedEvent.To)
			}
		case events.TurnInterrupted:
			if opts.onInterruption != nil {
				opts.onInterruption(typedEvent.TurnID)
			}
		}
	}
}
