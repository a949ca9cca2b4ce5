// tokenize encodes and decodes text with HuggingFace, SentencePiece or GGUF tokenizers, and
// manages their added tokens.
//
// Examples:
//
//	tokenize encode -t ./bert-base-uncased "Hello [MASK] world"
//	tokenize decode -t ./bert-base-uncased 101 7592 102
//	tokenize add -t ./bert-base-uncased/tokenizer.json --special "<extra_0>"
//	tokenize batch -t ./model.gguf texts.parquet encoded.parquet
package main

import (
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

func main() {
	err := NewRootCmd().Execute()
	klog.Flush()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
