package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quasilyte/glitch/processor"
)

// Config is a saved preset together with the audio setup.
type Config struct {
	Params processor.Params `json:"params"`

	// Seed is 0 for a random seed.
	Seed uint64 `json:"seed,omitempty"`

	SampleRate int `json:"sampleRate,omitempty"`
	BlockSize  int `json:"blockSize,omitempty"`
}

// ParseError is returned when a preset file is not valid JSON
// or has a wrong field type.
type ParseError struct {
	Message string

	Offset int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (offset=%d)", e.Message, e.Offset)
}

// DefaultConfig returns a config with the processor defaults.
func DefaultConfig() *Config {
	return &Config{
		Params:     processor.DefaultParams(),
		SampleRate: 44100,
		BlockSize:  512,
	}
}

// Dir returns the config directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "glitch"), nil
}

// PresetPath returns the full path to a named preset.
func PresetPath(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".json"), nil
}

// Load reads the config from disk, or returns defaults if not found.
// Fields missing in the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes the config from JSON bytes.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, &ParseError{Message: syntaxErr.Error(), Offset: int(syntaxErr.Offset)}
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ParseError{Message: typeErr.Error(), Offset: int(typeErr.Offset)}
		}
		// Enum values are reported by their UnmarshalText methods.
		return nil, &ParseError{Message: err.Error(), Offset: -1}
	}
	cfg.Params = cfg.Params.Normalized()
	return cfg, nil
}

// Save writes the config to disk, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
