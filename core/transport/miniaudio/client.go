//go:build cgo

// Package miniaudio implements the duplex audio transport on local capture
// and playback devices via malgo.
package miniaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/voicewire/duplex-core/core/audio"
)

const inboundQueueCapacity = 64

// Client is a device-backed duplex transport: the default capture device
// feeds the inbound frame stream and the default playback device drains the
// outbound sink.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	capture      captureDevice
	playback     playbackDevice

	encodingInfo audio.EncodingInfo

	frames   chan audio.Frame
	closeErr chan error

	seqMu     sync.Mutex
	seq       uint64
	closeOnce sync.Once
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := &Client{
		audioContext: audioCtx,
		encodingInfo: audio.GetDefaultEncodingInfo(),
		frames:       make(chan audio.Frame, inboundQueueCapacity),
		closeErr:     make(chan error, 1),
	}

	if err := client.playback.init(audioCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := client.capture.init(audioCtx, client.onCapturedAudio); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return client, nil
}

func (c *Client) onCapturedAudio(payload []byte) {
	samples := append([]byte(nil), payload...)

	c.seqMu.Lock()
	c.seq++
	frame := audio.Frame{
		Seq:        c.seq,
		CapturedAt: time.Now(),
		Samples:    samples,
		Duration:   audio.FrameDuration(samples, c.encodingInfo),
	}
	c.seqMu.Unlock()

	// The device callback must never block; a full queue drops the frame.
	select {
	case c.frames <- frame:
	default:
	}
}

func (c *Client) Start(context.Context) error {
	if err := c.playback.start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	if err := c.capture.start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (c *Client) Frames() <-chan audio.Frame { return c.frames }

func (c *Client) WriteFrame(_ context.Context, frame audio.Frame) error {
	return c.playback.queueAudio(frame.Samples)
}

func (c *Client) CloseNotify() <-chan error { return c.closeErr }

func (c *Client) EncodingInfo() audio.EncodingInfo { return c.encodingInfo }

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.capture.uninit()
		_ = c.playback.uninit()
		if c.audioContext != nil {
			_ = c.audioContext.Uninit()
			c.audioContext.Free()
		}
		close(c.frames)
		c.closeErr <- nil
		close(c.closeErr)
	})
	return nil
}
