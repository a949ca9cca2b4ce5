package main

import (
	goflag "flag"

	"github.com/gomlx/go-tokenizers/internal/config"
	"github.com/gomlx/go-tokenizers/tokenizers"
	"github.com/gomlx/go-tokenizers/tokenizers/pipeline"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "tokenize",
		Short:         "Encode and decode text with HuggingFace, SentencePiece and GGUF tokenizers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	// klog flags: -v, -logtostderr, etc.
	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newDecodeCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newBatchCmd())

	return cmd
}

// loadTokenizer loads the tokenizer of the active configuration.
func loadTokenizer() (*pipeline.Tokenizer, error) {
	if activeCfg.Tokenizer.Path == "" {
		return nil, errors.New("configuration not loaded")
	}
	tok, err := tokenizers.New(activeCfg.Tokenizer.Path)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("loaded tokenizer from %q: vocabulary size %d", activeCfg.Tokenizer.Path, tok.VocabSize())
	return tok, nil
}
