//go:build cgo

package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/voicewire/duplex-core/core/audio"
)

type captureDevice struct {
	device *malgo.Device

	mu sync.Mutex
}

func (c *captureDevice) init(audioContext *malgo.AllocatedContext, onAudio func(payload []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format := malgo.FormatS16
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(audio.DefaultSampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = 480
	config.Periods = 3

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			onAudio(pInput[:n])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	c.device = device
	return nil
}

func (c *captureDevice) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (c *captureDevice) uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}

type playbackDevice struct {
	device *malgo.Device

	pending []byte

	mu      sync.Mutex
	audioMu sync.Mutex
}

func (p *playbackDevice) init(audioContext *malgo.AllocatedContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	format := malgo.FormatS16
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(audio.DefaultSampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(audio.DefaultSampleRate) / 10
	config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			need := int(frameCount) * bytesPerFrame
			p.fill(pOutput, need)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	p.device = device
	return nil
}

func (p *playbackDevice) fill(pOutput []byte, need int) {
	p.audioMu.Lock()
	defer p.audioMu.Unlock()

	if len(p.pending) == 0 {
		return
	}
	if len(p.pending) < need {
		copy(pOutput, p.pending)
		p.pending = nil
		return
	}
	copy(pOutput, p.pending[:need])
	p.pending = p.pending[need:]
}

func (p *playbackDevice) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return fmt.Errorf("device not initialized")
	} else if p.device.IsStarted() {
		return nil
	}
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (p *playbackDevice) queueAudio(payload []byte) error {
	p.mu.Lock()
	started := p.device != nil && p.device.IsStarted()
	p.mu.Unlock()
	if !started {
		return fmt.Errorf("device not started")
	}

	p.audioMu.Lock()
	p.pending = append(p.pending, payload...)
	p.audioMu.Unlock()
	return nil
}

func (p *playbackDevice) uninit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}

	p.audioMu.Lock()
	p.pending = nil
	p.audioMu.Unlock()
	return nil
}
