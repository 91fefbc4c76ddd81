// Package deepgram implements the text-to-speech capability against the
// Deepgram streaming websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/voicewire/duplex-core/core/audio"
	"github.com/voicewire/duplex-core/core/texttospeech"
)

type SynthesisClient struct {
	voice deepgramVoice
}

func NewSynthesisClient(voice deepgramVoice) (*SynthesisClient, error) {
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice")
	}

	return &SynthesisClient{voice: voice}, nil
}

func (c *SynthesisClient) SetVoice(voice deepgramVoice) {
	c.voice = voice
}

// Synthesize converts a single chunk of text to audio, streaming it through
// the audio callback as it arrives. It returns once the whole chunk has been
// delivered, or with the context error if the context ends first.
func (c *SynthesisClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) error {
	options := &texttospeech.SynthesisOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	conn, err := connectWebsocket(ctx, c.voice, options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	for _, msg := range []any{speakMsg(text), flushMsg, closeMsg} {
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("failed to write to websocket: %w", err)
		}
	}

	// Unblocks the read loop below when the context ends mid-chunk.
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go func() {
		<-readCtx.Done()
		conn.Close()
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err.Error() == "websocket: close 1000 (normal)" {
				return nil
			}
			err = fmt.Errorf("synthesis stream closed: %w", err)
			if options.ErrorCallback != nil {
				options.ErrorCallback(err)
			}
			return err
		}

		switch msgType {
		case websocket.BinaryMessage:
			if options.AudioCallback != nil && len(msg) > 0 {
				options.AudioCallback(msg)
			}
		case websocket.TextMessage:
			var parsedMsg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				continue
			}
			if parsedMsg.Type == "Flushed" {
				return nil
			}
		}
	}
}

func connectWebsocket(ctx context.Context, voice deepgramVoice, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", string(encodingInfo.Format))
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		(&url.URL{
			Scheme: "wss",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

type websocketMessage struct {
	Type string `json:"type"`
}

var (
	speakMsg = func(text string) struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} {
		return struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: "Speak", Text: text}
	}
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)
