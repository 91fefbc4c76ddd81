package events

import "time"

const (
	// KindUserAudioFrame identifies raw audio captured from user input.
	KindUserAudioFrame Kind = "user_input.audio_frame"
	// KindUserSpeechStarted identifies start of user speech activity.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserSpeechEnded identifies end of user speech activity.
	KindUserSpeechEnded Kind = "user_input.speech_ended"
	// KindUserTranscriptFragment identifies a partial or final transcript fragment.
	KindUserTranscriptFragment Kind = "user_input.transcript_fragment"
	// KindUserUtteranceStable identifies the moment the merged utterance becomes stable.
	KindUserUtteranceStable Kind = "user_input.utterance_stable"
)

// UserAudioFrame carries a user input audio frame.
type UserAudioFrame struct {
	Base
	Audio []byte
}

// NewUserAudioFrame creates a user input audio frame event.
func NewUserAudioFrame(audio []byte) UserAudioFrame {
	return UserAudioFrame{Base: NewBase(KindUserAudioFrame), Audio: audio}
}

// UserSpeechStarted marks when sustained user speech activity starts.
type UserSpeechStarted struct {
	Base
	Confidence float64
}

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted(confidence float64) UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted), Confidence: confidence}
}

// UserSpeechEnded marks when user speech activity ends.
type UserSpeechEnded struct {
	Base
	Confidence float64
}

// NewUserSpeechEnded creates a user speech ended event.
func NewUserSpeechEnded(confidence float64) UserSpeechEnded {
	return UserSpeechEnded{Base: NewBase(KindUserSpeechEnded), Confidence: confidence}
}

// UserTranscriptFragment carries a transcript fragment covering a time range.
type UserTranscriptFragment struct {
	Base
	Text    string
	IsFinal bool
	Start   time.Duration
	End     time.Duration
	Seq     uint64
}

// NewUserTranscriptFragment creates a transcript fragment event.
func NewUserTranscriptFragment(text string, isFinal bool, start, end time.Duration, seq uint64) UserTranscriptFragment {
	return UserTranscriptFragment{
		Base:    NewBase(KindUserTranscriptFragment),
		Text:    text,
		IsFinal: isFinal,
		Start:   start,
		End:     end,
		Seq:     seq,
	}
}

// UserUtteranceStable marks that the merged utterance text is stable enough
// to act on; carries the merged text.
type UserUtteranceStable struct {
	Base
	Text string
}

// NewUserUtteranceStable creates an utterance stable event.
func NewUserUtteranceStable(text string) UserUtteranceStable {
	return UserUtteranceStable{Base: NewBase(KindUserUtteranceStable), Text: text}
}
