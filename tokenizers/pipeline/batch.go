package pipeline

import (
	"context"
	"runtime"

	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// EncodeBatch encodes the texts in parallel, and returns the results in the same order.
//
// All texts are encoded with the same snapshot of the added vocabulary, even if tokens are
// added concurrently. It stops at the first error, or when ctx is cancelled.
func (t *Tokenizer) EncodeBatch(ctx context.Context, texts []string, addSpecial bool) ([]*api.EncodingResult, error) {
	vocab := t.registry.Snapshot()
	results := make([]*api.EncodingResult, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, text := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			enc, err := t.encode(vocab, text, addSpecial)
			if err != nil {
				return errors.WithMessagef(err, "encoding text #%d", i)
			}
			results[i] = enc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// DecodeBatch decodes the sequences of ids in parallel, and returns the texts in the same order.
func (t *Tokenizer) DecodeBatch(ctx context.Context, batch [][]int, skipSpecial bool) ([]string, error) {
	vocab := t.registry.Snapshot()
	texts := make([]string, len(batch))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, ids := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := t.decode(vocab, ids, skipSpecial)
			if err != nil {
				return errors.WithMessagef(err, "decoding sequence #%d", i)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}
