// glitchlive applies the glitch effect to the default input device in real time.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gordonklaus/portaudio"

	"github.com/quasilyte/glitch/internal/config"
	"github.com/quasilyte/glitch/internal/rtpcast"
	"github.com/quasilyte/glitch/processor"
)

func main() {
	var args arguments
	flag.StringVar(&args.preset, "preset", "default", "preset name under the config dir")
	flag.StringVar(&args.cast, "cast", "", "stream the output as Opus RTP to this host:port")
	flag.IntVar(&args.sampleRate, "rate", 48000, "device sample rate")
	flag.IntVar(&args.channels, "channels", 2, "number of channels (1 or 2)")
	flag.IntVar(&args.frames, "frames", 256, "frames per device buffer")
	flag.Float64Var(&args.bpm, "bpm", 120, "tempo for the host-synced clock mode")
	flag.BoolVar(&args.verbose, "v", false, "enable debug logs")
	flag.Parse()

	if err := run(args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type arguments struct {
	preset     string
	cast       string
	sampleRate int
	channels   int
	frames     int
	bpm        float64
	verbose    bool
}

func run(args arguments) error {
	if args.channels != 1 && args.channels != 2 {
		return fmt.Errorf("unsupported channel count %d", args.channels)
	}

	logger, closeLog, err := openLog(args.verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	presetPath, err := config.PresetPath(args.preset)
	if err != nil {
		return err
	}
	cfg, err := config.Load(presetPath)
	if err != nil {
		return err
	}
	logger.Info("preset loaded", "path", presetPath)

	proc, err := processor.New(processor.Config{
		SampleRate:   uint(args.sampleRate),
		NumChannels:  args.channels,
		MaxBlockSize: args.frames,
		Seed:         cfg.Seed,
		Params:       &cfg.Params,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	var caster *rtpcast.Caster
	if args.cast != "" {
		caster, err = rtpcast.Dial(context.Background(), rtpcast.Config{
			Addr:       args.cast,
			SampleRate: args.sampleRate,
			Channels:   args.channels,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("init portaudio: %w", err)
	}
	defer portaudio.Terminate()

	audio, err := newLiveAudio(proc, caster, args.bpm, args.frames, logger)
	if err != nil {
		return err
	}
	if err := audio.Start(); err != nil {
		return err
	}

	m := model{
		audio:       audio,
		params:      proc.Params(),
		preset:      args.preset,
		numChannels: args.channels,
	}
	_, runErr := tea.NewProgram(m, tea.WithAltScreen()).Run()

	// The caster must outlive the audio callbacks.
	if err := audio.Close(); err != nil {
		logger.Error("close audio stream", "err", err)
	}
	if caster != nil {
		if err := caster.Close(); err != nil {
			logger.Error("close rtp cast", "err", err)
		}
	}
	return runErr
}

// openLog routes the logs into a file, since the terminal belongs to the UI.
func openLog(verbose bool) (*slog.Logger, func(), error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, err
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, func() { f.Close() }, nil
}
