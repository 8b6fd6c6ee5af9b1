// glitchrender applies the glitch effect to an audio file offline.
//
// Usage:
//
//	glitchrender -in song.mp3 -out glitched.wav [-preset name] [-script auto.lua] [-seed N] [-play]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/quasilyte/glitch/audiofile"
	"github.com/quasilyte/glitch/internal/automation"
	"github.com/quasilyte/glitch/internal/config"
	"github.com/quasilyte/glitch/internal/playback"
	"github.com/quasilyte/glitch/processor"
)

func main() {
	var args arguments
	flag.StringVar(&args.in, "in", "", "input WAV or MP3 file")
	flag.StringVar(&args.out, "out", "", "output WAV file")
	flag.StringVar(&args.preset, "preset", "", "preset name or path to a preset JSON file")
	flag.StringVar(&args.script, "script", "", "Lua automation script")
	flag.Uint64Var(&args.seed, "seed", 0, "random seed, 0 means the preset seed or a random one")
	flag.IntVar(&args.sampleRate, "rate", 0, "output sample rate, 0 keeps the preset rate")
	flag.BoolVar(&args.play, "play", false, "play the rendered audio")
	flag.BoolVar(&args.verbose, "v", false, "enable debug logs")
	flag.Parse()

	level := slog.LevelInfo
	if args.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger, args); err != nil {
		logger.Error("render failed", "err", err)
		os.Exit(1)
	}
}

type arguments struct {
	in         string
	out        string
	preset     string
	script     string
	seed       uint64
	sampleRate int
	play       bool
	verbose    bool
}

func run(ctx context.Context, logger *slog.Logger, args arguments) error {
	if args.in == "" {
		return errors.New("-in argument can't be empty")
	}
	if args.out == "" && !args.play {
		return errors.New("either -out or -play is required")
	}

	cfg, err := loadPreset(args.preset)
	if err != nil {
		return err
	}
	if args.seed != 0 {
		cfg.Seed = args.seed
	}
	if args.sampleRate != 0 {
		cfg.SampleRate = args.sampleRate
	}

	var script *automation.Script
	if args.script != "" {
		script, err = automation.Load(args.script)
		if err != nil {
			return err
		}
		defer script.Close()
	}

	input, err := audiofile.Load(args.in, cfg.SampleRate, logger)
	if err != nil {
		return err
	}
	numChannels := max(len(input.Channels), 2)

	proc, err := processor.New(processor.Config{
		SampleRate:   uint(cfg.SampleRate),
		NumChannels:  numChannels,
		MaxBlockSize: cfg.BlockSize,
		Seed:         cfg.Seed,
		Params:       &cfg.Params,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	startTime := time.Now()
	output, err := render(ctx, proc, input, script, cfg.BlockSize)
	if err != nil {
		return err
	}
	logger.Info("rendered",
		"in", args.in,
		"duration", output.Duration(),
		"elapsed", time.Since(startTime))

	if args.out != "" {
		if err := output.WriteWAV(args.out); err != nil {
			return err
		}
		logger.Info("saved", "out", args.out)
	}

	if args.play {
		player, err := playback.New(playback.Config{
			SampleRate: cfg.SampleRate,
			Channels:   numChannels,
			Format:     processor.FormatFloat32LE,
		})
		if err != nil {
			return fmt.Errorf("open audio device: %w", err)
		}
		r := processor.NewPCMReader(output.Source(false), numChannels, processor.StreamConfig{
			Format: processor.FormatFloat32LE,
		})
		if err := player.Play(ctx, r); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	return nil
}

func loadPreset(preset string) (*config.Config, error) {
	if preset == "" {
		return config.DefaultConfig(), nil
	}
	path := preset
	if _, err := os.Stat(path); err != nil {
		path, err = config.PresetPath(preset)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("preset %q not found", preset)
		}
	}
	return config.Load(path)
}

func render(ctx context.Context, proc *processor.Processor, input *audiofile.Tape, script *automation.Script, blockSize int) (*audiofile.Tape, error) {
	numChannels := proc.NumChannels()
	output := audiofile.NewTape(input.SampleRate, numChannels, input.NumFrames())
	src := input.Source(false)

	block := make([][]float32, numChannels)
	for ch := range block {
		block[ch] = make([]float32, blockSize)
	}

	framesDone := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if script != nil {
			t := float64(framesDone) / float64(input.SampleRate)
			params, err := script.Apply(t, proc.Params().Load())
			if err != nil {
				return nil, err
			}
			proc.Params().Store(params)
		}

		for ch := range block {
			block[ch] = block[ch][:blockSize]
		}
		n, err := src.ReadFrames(block)
		if n > 0 {
			for ch := range block {
				block[ch] = block[ch][:n]
			}
			proc.ProcessBlock(block)
			output.Append(block)
			framesDone += n
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return output, nil
}
