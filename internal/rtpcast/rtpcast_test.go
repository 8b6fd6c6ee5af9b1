package rtpcast

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
)

func TestDialErrors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"sample rate", Config{Addr: "127.0.0.1:9", SampleRate: 44100}},
		{"channels", Config{Addr: "127.0.0.1:9", Channels: 3}},
		{"addr", Config{Addr: "not an address"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, err := Dial(context.Background(), test.config)
			if err == nil {
				c.Close()
				t.Fatal("expected an error")
			}
		})
	}
}

func TestCast(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	c, err := Dial(context.Background(), Config{
		Addr:       listener.LocalAddr().String(),
		SampleRate: 48000,
		Channels:   2,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Three frames of a 440 Hz tone, written in uneven pieces.
	const frameLen = 960 * 2
	samples := make([]float32, 3*frameLen+100)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i/2)/48000))
	}
	for i := 0; i < len(samples); i += 700 {
		c.Write(samples[i:min(i+700, len(samples))])
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if sent, _ := c.Stats(); sent != 3 {
		t.Fatalf("sent frames: have %d, want 3", sent)
	}

	var packets []rtp.Packet
	buf := make([]byte, 1500)
	for len(packets) < 3 {
		listener.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, _, err := listener.ReadFrom(buf)
		if err != nil {
			t.Fatalf("read packet %d: %v", len(packets), err)
		}
		var p rtp.Packet
		if err := p.Unmarshal(buf[:n]); err != nil {
			t.Fatal(err)
		}
		packets = append(packets, p)
	}

	for i, p := range packets {
		if p.PayloadType != payloadType {
			t.Fatalf("packet %d: payload type %d", i, p.PayloadType)
		}
		if len(p.Payload) == 0 {
			t.Fatalf("packet %d: empty payload", i)
		}
		if i == 0 {
			continue
		}
		if d := p.Timestamp - packets[i-1].Timestamp; d != 960 {
			t.Fatalf("packet %d: timestamp step %d, want 960", i, d)
		}
		if p.SequenceNumber != packets[i-1].SequenceNumber+1 {
			t.Fatalf("packet %d: sequence number is not incremented", i)
		}
	}
}

func TestWriteFullQueue(t *testing.T) {
	c := &Caster{
		frameLen: 2,
		queue:    make(chan []float32, 1),
		free:     make(chan []float32, 2),
	}
	c.pending = make([]float32, 0, c.frameLen)
	c.queue <- make([]float32, 2)
	c.free <- make([]float32, 2)
	c.free <- make([]float32, 2)

	done := make(chan struct{})
	go func() {
		c.Write([]float32{1, 2, 3, 4})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Write blocked on a full queue")
	}

	if _, dropped := c.Stats(); dropped != 2 {
		t.Fatalf("dropped frames: have %d, want 2", dropped)
	}
	if len(c.free) != 2 {
		t.Fatalf("free buffers: have %d, want 2", len(c.free))
	}
}
