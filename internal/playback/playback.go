// Package playback plays PCM streams through the default audio device.
package playback

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/quasilyte/glitch/processor"
)

// Config describes the played PCM stream.
type Config struct {
	SampleRate int

	// A zero value means stereo.
	Channels int

	// Format is the PCM encoding produced by the played readers.
	Format processor.SampleFormat

	// BufferSize is the device buffer duration.
	//
	// A zero value will use 100ms.
	BufferSize time.Duration
}

// Player owns the audio device context.
//
// Only one Player can be created per process.
type Player struct {
	ctx    *oto.Context
	config Config
}

// New opens the audio device and waits until it's ready.
func New(config Config) (*Player, error) {
	if config.SampleRate <= 0 {
		return nil, errors.New("invalid sample rate")
	}
	if config.Channels == 0 {
		config.Channels = 2
	}
	if config.BufferSize == 0 {
		config.BufferSize = 100 * time.Millisecond
	}

	format := oto.FormatSignedInt16LE
	if config.Format == processor.FormatFloat32LE {
		format = oto.FormatFloat32LE
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       format,
		BufferSize:   config.BufferSize,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	return &Player{ctx: ctx, config: config}, nil
}

// Play plays r until it reports io.EOF or ctx is canceled.
// It blocks until the played audio is drained.
func (p *Player) Play(ctx context.Context, r io.Reader) error {
	player := p.ctx.NewPlayer(r)
	player.Play()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			player.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Close()
}
