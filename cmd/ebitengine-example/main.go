package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/quasilyte/glitch/audiofile"
	"github.com/quasilyte/glitch/lofi"
	"github.com/quasilyte/glitch/processor"
)

// This simple CLI tool plays the specified audio file in a loop
// through the glitch processor using Ebitengine audio player.

func main() {
	flag.Usage = func() {
		fmt.Printf("usage: go run ./cmd/ebitengine-example path/to/audio.wav\n")
		flag.PrintDefaults()
	}
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()
	if len(flag.Args()) < 1 {
		panic("expected at least 1 command-line argument")
	}
	filename := flag.Args()[0]

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Ebitengine audio context expects 16-bit stereo.
	const sampleRate = 44100
	tape, err := audiofile.Load(filename, sampleRate, logger)
	if err != nil {
		panic(fmt.Errorf("load audio file: %v", err))
	}

	proc, err := processor.New(processor.Config{
		SampleRate:  sampleRate,
		NumChannels: 2,
		Logger:      logger,
	})
	if err != nil {
		panic(fmt.Errorf("create processor: %v", err))
	}
	stream := processor.NewStream(proc, tape.Source(true), processor.StreamConfig{})

	// You can have multiple players, but only one audio context.
	// See Ebitengine docs to learn more.
	audioContext := audio.NewContext(sampleRate)
	player, err := audioContext.NewPlayer(stream)
	if err != nil {
		panic(err)
	}

	g := &game{
		player:   player,
		params:   proc.Params(),
		filename: filename,
		paused:   true,
	}
	if err := ebiten.RunGame(g); err != nil {
		panic(err)
	}
}

type game struct {
	player *audio.Player

	// params is the only processor part touched by the game thread.
	params *processor.ParamStore

	filename string
	paused   bool
}

var codecCycle = []lofi.Kind{lofi.KindNone, lofi.KindMuLaw, lofi.KindOpus}

func (g *game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
		if g.player.IsPlaying() {
			g.player.Pause()
		} else {
			g.player.Play()
		}
	}

	const step = 0.05
	g.adjust(ebiten.KeyQ, ebiten.KeyA, func(p *processor.Params, delta float64) { p.AnalogFX += delta * step })
	g.adjust(ebiten.KeyW, ebiten.KeyS, func(p *processor.Params, delta float64) { p.DigitalFX += delta * step })
	g.adjust(ebiten.KeyE, ebiten.KeyD, func(p *processor.Params, delta float64) { p.LofiFX += delta * step })
	g.adjust(ebiten.KeyR, ebiten.KeyF, func(p *processor.Params, delta float64) { p.Repeats += int(delta) })
	g.adjust(ebiten.KeyT, ebiten.KeyG, func(p *processor.Params, delta float64) { p.DryWet += delta * step })

	if inpututil.IsKeyJustPressed(ebiten.KeyC) {
		g.params.Update(func(p *processor.Params) {
			for i, k := range codecCycle {
				if k == p.Codec {
					p.Codec = codecCycle[(i+1)%len(codecCycle)]
					break
				}
			}
		})
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyX) {
		g.params.Update(func(p *processor.Params) {
			if p.Distortion == lofi.KindBitcrush {
				p.Distortion = lofi.KindSaturation
			} else {
				p.Distortion = lofi.KindBitcrush
			}
		})
	}

	return nil
}

func (g *game) adjust(up, down ebiten.Key, f func(p *processor.Params, delta float64)) {
	switch {
	case inpututil.IsKeyJustPressed(up):
		g.params.Update(func(p *processor.Params) { f(p, 1) })
	case inpututil.IsKeyJustPressed(down):
		g.params.Update(func(p *processor.Params) { f(p, -1) })
	}
}

func (g *game) Draw(screen *ebiten.Image) {
	var sb strings.Builder
	if g.paused {
		sb.WriteString("Paused... press SPACE\n\n")
	} else {
		fmt.Fprintf(&sb, "Playing %s...\n\n", g.filename)
	}
	p := g.params.Load()
	fmt.Fprintf(&sb, "[Q/A] analog:  %.2f\n", p.AnalogFX)
	fmt.Fprintf(&sb, "[W/S] digital: %.2f\n", p.DigitalFX)
	fmt.Fprintf(&sb, "[E/D] lofi:    %.2f\n", p.LofiFX)
	fmt.Fprintf(&sb, "[R/F] repeats: %d\n", p.Repeats)
	fmt.Fprintf(&sb, "[T/G] dry/wet: %.2f\n", p.DryWet)
	fmt.Fprintf(&sb, "[X] distortion: %s\n", p.Distortion)
	fmt.Fprintf(&sb, "[C] codec:      %s\n", p.Codec)
	ebitenutil.DebugPrint(screen, sb.String())
}

func (g *game) Layout(_, _ int) (int, int) {
	return 640, 480
}
