// Package events defines the typed orchestration event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - assistant_playback.*
//   - turn_state.*
//
// Semantics used across the package:
//
//   - Frame: binary audio frame payload.
//   - Fragment: transcript piece with a time range; partial fragments may be
//     superseded, final fragments never are.
//   - Chunk: a speakable unit of generated text, ordered by ordinal.
//   - Ended: lifecycle boundary indicating stream completion.
//
// user_input events
//
//   - UserAudioFrame (user_input.audio_frame): raw user input audio frame.
//   - UserSpeechStarted (user_input.speech_started): sustained speech
//     activity began; carries the detector confidence.
//   - UserSpeechEnded (user_input.speech_ended): speech activity ended after
//     the configured silence window.
//   - UserTranscriptFragment (user_input.transcript_fragment): a partial or
//     final transcript fragment covering a time range of the utterance.
//   - UserUtteranceStable (user_input.utterance_stable): the merged utterance
//     text is stable enough to act on.
//
// assistant_response events
//
//   - AssistantResponseStarted (assistant_response.started): response
//     generation started for the committed utterance.
//   - AssistantResponseChunk (assistant_response.chunk): a speakable response
//     chunk was forwarded to synthesis.
//   - AssistantResponseFinal (assistant_response.final): the response token
//     stream is complete.
//
// assistant_playback events
//
//   - AssistantPlaybackStarted (assistant_playback.started): playback of the
//     current response started.
//   - AssistantPlaybackFrame (assistant_playback.frame): an audio frame was
//     written to the output transport.
//   - AssistantPlaybackChunkPlayed (assistant_playback.chunk_played): all
//     audio for a response chunk was written, in ordinal order.
//   - AssistantPlaybackEnded (assistant_playback.ended): playback ended;
//     carries whether it completed naturally or was stopped.
//
// turn_state events
//
//   - TurnTransition (turn_state.transition): the turn state machine moved
//     between states; carries turn id, from, and to. This is the
//     operator-facing turn-event log.
//   - TurnCompleted (turn_state.completed): the turn finished its full
//     listen-respond cycle.
//   - TurnFailed (turn_state.failed): the turn was aborted by a failure.
//   - TurnInterrupted (turn_state.interrupted): the user barged in and the
//     response phase was cancelled.
package events
