package deepgram

type deepgramVoice string

const (
	VoiceThalia  deepgramVoice = "aura-2-thalia-en"
	VoiceAsteria deepgramVoice = "aura-2-asteria-en"
	VoiceOrion   deepgramVoice = "aura-2-orion-en"
	VoiceArcas   deepgramVoice = "aura-2-arcas-en"
	VoiceLuna    deepgramVoice = "aura-2-luna-en"

	defaultVoice = VoiceThalia
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{VoiceThalia, VoiceAsteria, VoiceOrion, VoiceArcas, VoiceLuna}
}
