package pipeline

import (
	"strings"

	"github.com/gomlx/go-tokenizers/tokenizers/addedvocab"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Decode converts ids back to text.
//
// Added tokens are emitted verbatim, or skipped if they are special and skipSpecial is set.
// The runs of ids between them are decoded by the model (if it implements IDsDecoder) or the
// decoder. Unknown ids are skipped.
func (t *Tokenizer) Decode(ids []int, skipSpecial bool) (string, error) {
	return t.decode(t.registry.Snapshot(), ids, skipSpecial)
}

func (t *Tokenizer) decode(vocab *addedvocab.Vocabulary, ids []int, skipSpecial bool) (string, error) {
	var (
		sb     strings.Builder
		runIDs []int
	)
	flush := func() error {
		if len(runIDs) == 0 {
			return nil
		}
		text, err := t.decodeRun(runIDs, sb.Len() == 0)
		if err != nil {
			return err
		}
		sb.WriteString(text)
		runIDs = runIDs[:0]
		return nil
	}

	for _, id := range ids {
		added, found := vocab.LookupID(id)
		if !found {
			runIDs = append(runIDs, id)
			continue
		}
		if err := flush(); err != nil {
			return "", err
		}
		if added.Special && skipSpecial {
			continue
		}
		sb.WriteString(added.Content)
	}
	if err := flush(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// decodeRun decodes ids that are not added tokens.
func (t *Tokenizer) decodeRun(ids []int, atStart bool) (string, error) {
	if d, ok := t.model.(IDsDecoder); ok {
		text, err := d.DecodeIDs(ids)
		return text, errors.WithMessage(err, "model failed to decode")
	}

	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		token, found := t.model.IDToToken(id)
		if !found {
			klog.Warningf("decode: skipping unknown id %d", id)
			continue
		}
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return "", nil
	}
	if t.decoder == nil {
		return strings.Join(tokens, " "), nil
	}
	text, err := t.decoder.Decode(tokens, atStart)
	if err != nil {
		return "", errors.WithMessage(err, "decoder failed")
	}
	return text, nil
}
