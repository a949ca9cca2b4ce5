// Package config loads the configuration of the tokenize command line: defaults, then a config
// file ("tokenize.yaml" in the current directory, or --config), then TOKENIZE_* environment
// variables and finally the command line flags.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix of the environment variables, e.g. TOKENIZE_TOKENIZER_PATH.
const EnvPrefix = "TOKENIZE"

type Config struct {
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Output    OutputConfig    `mapstructure:"output"`
}

type TokenizerConfig struct {
	// Path to a tokenizer directory, tokenizer.json, tokenizer.model or .gguf file.
	Path        string `mapstructure:"path"`
	AddSpecial  bool   `mapstructure:"add_special"`
	SkipSpecial bool   `mapstructure:"skip_special"`
}

type BatchConfig struct {
	Size  int `mapstructure:"size"`
	PadID int `mapstructure:"pad_id"`
}

type OutputConfig struct {
	// Format is "table" or "json".
	Format string `mapstructure:"format"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Tokenizer: TokenizerConfig{
			Path:        ".",
			AddSpecial:  true,
			SkipSpecial: true,
		},
		Batch: BatchConfig{
			Size:  256,
			PadID: 0,
		},
		Output: OutputConfig{
			Format: "table",
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.StringP("tokenizer-path", "t", defaults.Tokenizer.Path, "Tokenizer directory, tokenizer.json, tokenizer.model or .gguf file")
	fs.Bool("tokenizer-add-special", defaults.Tokenizer.AddSpecial, "Add the special tokens of the post-processor (e.g. [CLS] and [SEP]) when encoding")
	fs.Bool("tokenizer-skip-special", defaults.Tokenizer.SkipSpecial, "Skip special tokens when decoding")
	fs.Int("batch-size", defaults.Batch.Size, "Number of texts encoded in parallel")
	fs.Int("batch-pad-id", defaults.Batch.PadID, "Padding id used for the batch tensor")
	fs.String("output-format", defaults.Output.Format, "Output format: table or json")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
	} else {
		v.SetConfigName("tokenize")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, errors.Wrap(err, "read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that can't be checked by the flag parsing.
func (c Config) Validate() error {
	if c.Tokenizer.Path == "" {
		return errors.New("tokenizer path not set")
	}
	if c.Batch.Size <= 0 {
		return errors.Errorf("batch size must be positive, got %d", c.Batch.Size)
	}
	switch c.Output.Format {
	case "table", "json":
	default:
		return errors.Errorf("unknown output format %q, expected table or json", c.Output.Format)
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("tokenizer.path", c.Tokenizer.Path)
	v.SetDefault("tokenizer.add_special", c.Tokenizer.AddSpecial)
	v.SetDefault("tokenizer.skip_special", c.Tokenizer.SkipSpecial)
	v.SetDefault("batch.size", c.Batch.Size)
	v.SetDefault("batch.pad_id", c.Batch.PadID)
	v.SetDefault("output.format", c.Output.Format)
}

// flagKeys maps the configuration keys to their flags. Flags are bound to the nested keys
// (instead of aliased) so values from the config file are still found.
var flagKeys = map[string]string{
	"tokenizer.path":         "tokenizer-path",
	"tokenizer.add_special":  "tokenizer-add-special",
	"tokenizer.skip_special": "tokenizer-skip-special",
	"batch.size":             "batch-size",
	"batch.pad_id":           "batch-pad-id",
	"output.format":          "output-format",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "bind flag --%s", name)
		}
	}
	return nil
}
