// Package rtpcast streams the processed audio as Opus over RTP/UDP.
package rtpcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hraban/opus"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

const (
	// Opus RTP timestamps always run at 48 kHz.
	rtpClockRate = 48000

	payloadType = 111
	mtu         = 1200

	maxPacketSize = 1275

	frameMillis = 20

	queueLen = 16
)

type Config struct {
	// Addr is the receiver "host:port".
	Addr string

	// SampleRate must be one of the Opus rates:
	// 8000, 12000, 16000, 24000 or 48000.
	//
	// A zero value will assume a sample rate of 48000.
	SampleRate int

	// Channels is 1 or 2.
	//
	// A zero value means stereo.
	Channels int

	// Bitrate is in bits per second.
	//
	// A zero value will use 64000.
	Bitrate int

	// A nil value discards the logs.
	Logger *slog.Logger
}

// Caster is an Opus RTP sender.
//
// Write is meant to be called from the audio thread: it never blocks,
// the frames that can't be queued are dropped.
// Write and Close must not be called concurrently.
type Caster struct {
	conn   net.Conn
	logger *slog.Logger

	encoder    *opus.Encoder
	packetizer rtp.Packetizer

	channels      int
	frameLen      int // interleaved samples per frame
	rtpFrameTicks uint32

	pending []float32
	queue   chan []float32
	free    chan []float32

	closeOnce sync.Once
	done      chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Dial connects the UDP socket and starts the sender goroutine.
func Dial(ctx context.Context, config Config) (*Caster, error) {
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.Channels == 0 {
		config.Channels = 2
	}
	if config.Bitrate == 0 {
		config.Bitrate = 64000
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	switch config.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("unsupported opus sample rate %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return nil, fmt.Errorf("unsupported channel count %d", config.Channels)
	}

	encoder, err := opus.NewEncoder(config.SampleRate, config.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if err := encoder.SetBitrate(config.Bitrate); err != nil {
		return nil, fmt.Errorf("set opus bitrate: %w", err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", config.Addr, err)
	}

	frameSize := config.SampleRate * frameMillis / 1000
	c := &Caster{
		conn:          conn,
		logger:        config.Logger,
		encoder:       encoder,
		channels:      config.Channels,
		frameLen:      frameSize * config.Channels,
		rtpFrameTicks: uint32(rtpClockRate * frameMillis / 1000),
		queue:         make(chan []float32, queueLen),
		free:          make(chan []float32, queueLen+1),
		done:          make(chan struct{}),
	}
	c.pending = make([]float32, 0, c.frameLen)
	for range queueLen + 1 {
		c.free <- make([]float32, c.frameLen)
	}
	c.packetizer = rtp.NewPacketizer(
		mtu,
		payloadType,
		rand.Uint32(),
		&codecs.OpusPayloader{},
		rtp.NewRandomSequencer(),
		rtpClockRate,
	)

	c.logger.Debug("rtp cast started",
		"addr", config.Addr,
		"sampleRate", config.SampleRate,
		"nchannels", config.Channels,
		"bitrate", config.Bitrate)

	go c.run()
	return c, nil
}

// Write queues interleaved samples for sending.
// The samples are sent in complete 20ms frames.
func (c *Caster) Write(interleaved []float32) {
	for len(interleaved) != 0 {
		n := min(c.frameLen-len(c.pending), len(interleaved))
		c.pending = append(c.pending, interleaved[:n]...)
		interleaved = interleaved[n:]
		if len(c.pending) < c.frameLen {
			break
		}

		if !c.enqueue(c.pending) {
			c.dropped.Add(1)
		}
		c.pending = c.pending[:0]
	}
}

func (c *Caster) enqueue(samples []float32) bool {
	var frame []float32
	select {
	case frame = <-c.free:
	default:
		return false
	}
	copy(frame, samples)
	select {
	case c.queue <- frame:
		return true
	default:
		c.free <- frame
		return false
	}
}

// Stats reports the number of sent and dropped frames.
func (c *Caster) Stats() (sent, dropped uint64) {
	return c.sent.Load(), c.dropped.Load()
}

// Close flushes the queued frames and closes the socket.
func (c *Caster) Close() error {
	c.closeOnce.Do(func() {
		close(c.queue)
	})
	<-c.done
	sent, dropped := c.Stats()
	c.logger.Debug("rtp cast stopped", "sent", sent, "dropped", dropped)
	return c.conn.Close()
}

func (c *Caster) run() {
	defer close(c.done)

	data := make([]byte, maxPacketSize)
	for frame := range c.queue {
		n, err := c.encoder.EncodeFloat32(frame, data)
		c.free <- frame
		if err != nil {
			c.logger.Error("opus encode failed", "err", err)
			continue
		}
		for _, packet := range c.packetizer.Packetize(data[:n], c.rtpFrameTicks) {
			b, err := packet.Marshal()
			if err != nil {
				c.logger.Error("marshal rtp packet", "err", err)
				continue
			}
			if _, err := c.conn.Write(b); err != nil {
				c.logger.Warn("send rtp packet", "err", err)
				continue
			}
		}
		c.sent.Add(1)
	}
}
