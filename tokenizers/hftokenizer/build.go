package hftokenizer

import (
	"unicode/utf8"

	"github.com/gomlx/go-tokenizers/tokenizers/decoders"
	"github.com/gomlx/go-tokenizers/tokenizers/internal/pattern"
	"github.com/gomlx/go-tokenizers/tokenizers/models"
	"github.com/gomlx/go-tokenizers/tokenizers/normalizers"
	"github.com/gomlx/go-tokenizers/tokenizers/pipeline"
	"github.com/gomlx/go-tokenizers/tokenizers/pretokenizers"
	"github.com/gomlx/go-tokenizers/tokenizers/processors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

func newPattern(p *Pattern) (*pattern.Pattern, error) {
	if p == nil {
		return nil, errors.New("missing pattern")
	}
	return pattern.New(p.String, p.Regex)
}

func buildNormalizer(n *Normalizer) (normalizers.Normalizer, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Type {
	case "BertNormalizer":
		return normalizers.Bert{
			CleanText:          n.CleanText,
			HandleChineseChars: n.HandleChineseChars,
			StripAccents:       n.StripAccents,
			Lowercase:          n.Lowercase,
		}, nil
	case "Lowercase":
		return normalizers.Lowercase{}, nil
	case "NFC":
		return normalizers.NFC, nil
	case "NFD":
		return normalizers.NFD, nil
	case "NFKC":
		return normalizers.NFKC, nil
	case "NFKD":
		return normalizers.NFKD, nil
	case "StripAccents":
		return normalizers.StripAccents{}, nil
	case "Strip":
		return normalizers.Strip{Left: n.Left, Right: n.Right}, nil
	case "Replace":
		if n.Pattern == nil {
			return nil, errors.New("Replace normalizer without a pattern")
		}
		return normalizers.NewReplace(n.Pattern.String, n.Pattern.Regex, n.Content)
	case "Prepend":
		return normalizers.Prepend{Prefix: n.Prepend}, nil
	case "Precompiled":
		// The precompiled SentencePiece charsmap is mostly NFKC.
		klog.Warningf("tokenizer.json: Precompiled normalizer approximated with NFKC")
		return normalizers.NFKC, nil
	case "Sequence":
		seq := make(normalizers.Sequence, 0, len(n.Normalizers))
		for i := range n.Normalizers {
			sub, err := buildNormalizer(&n.Normalizers[i])
			if err != nil {
				return nil, errors.WithMessagef(err, "normalizer #%d of sequence", i)
			}
			seq = append(seq, sub)
		}
		return seq, nil
	}
	return nil, errors.Errorf("unsupported normalizer type %q", n.Type)
}

func buildPreTokenizer(pt *PreTokenizer) (pretokenizers.PreTokenizer, error) {
	if pt == nil {
		return nil, nil
	}
	switch pt.Type {
	case "ByteLevel":
		useRegex := pt.UseRegex == nil || *pt.UseRegex
		return &pretokenizers.ByteLevel{AddPrefixSpace: pt.AddPrefixSpace, UseRegex: useRegex}, nil
	case "Whitespace":
		return pretokenizers.Whitespace{}, nil
	case "WhitespaceSplit":
		return pretokenizers.WhitespaceSplit{}, nil
	case "BertPreTokenizer":
		return pretokenizers.Bert{}, nil
	case "Metaspace":
		scheme := pretokenizers.PrependNever
		if pt.PrependScheme != "" {
			var err error
			scheme, err = pretokenizers.ParsePrependScheme(pt.PrependScheme)
			if err != nil {
				return nil, err
			}
		} else if pt.AddPrefixSpace {
			// Files written before prepend_scheme existed only have add_prefix_space.
			scheme = pretokenizers.PrependAlways
		}
		m := pretokenizers.NewMetaspace(scheme, pt.Split == nil || *pt.Split)
		if pt.Replacement != "" {
			m.Replacement = pt.Replacement
		}
		return m, nil
	case "Punctuation":
		behavior := pretokenizers.Isolated
		if pt.Behavior != "" {
			var err error
			if behavior, err = pretokenizers.ParseBehavior(pt.Behavior); err != nil {
				return nil, err
			}
		}
		return pretokenizers.Punctuation{Behavior: behavior}, nil
	case "Digits":
		return pretokenizers.Digits{IndividualDigits: pt.IndividualDigits}, nil
	case "Split":
		p, err := newPattern(pt.Pattern)
		if err != nil {
			return nil, errors.WithMessage(err, "Split pre-tokenizer")
		}
		behavior, err := pretokenizers.ParseBehavior(pt.Behavior)
		if err != nil {
			return nil, err
		}
		return &pretokenizers.Split{Pattern: p, Behavior: behavior, Invert: pt.Invert}, nil
	case "Sequence":
		seq := make(pretokenizers.Sequence, 0, len(pt.PreTokenizers))
		for i := range pt.PreTokenizers {
			sub, err := buildPreTokenizer(&pt.PreTokenizers[i])
			if err != nil {
				return nil, errors.WithMessagef(err, "pre-tokenizer #%d of sequence", i)
			}
			seq = append(seq, sub)
		}
		return seq, nil
	}
	return nil, errors.Errorf("unsupported pre-tokenizer type %q", pt.Type)
}

func deref(s *string, defaultValue string) string {
	if s == nil {
		return defaultValue
	}
	return *s
}

// buildModel returns the model and the name of its unknown token, if any.
func buildModel(m *Model) (model pipeline.Model, unkToken string, err error) {
	modelType := m.Type
	if modelType == "" && len(m.Merges) > 0 {
		// Some older files omit the type of BPE models.
		modelType = "BPE"
	}
	if m.Dropout != nil && *m.Dropout > 0 {
		klog.Warningf("tokenizer.json: BPE dropout %g ignored, tokenization is deterministic", *m.Dropout)
	}
	switch modelType {
	case "BPE":
		vocab, err := parseVocab(m.Vocab)
		if err != nil {
			return nil, "", err
		}
		merges, err := parseMerges(m.Merges)
		if err != nil {
			return nil, "", err
		}
		config := models.BPEConfig{
			UnkToken:                deref(m.UnkToken, ""),
			ContinuingSubwordPrefix: deref(m.ContinuingSubwordPrefix, ""),
			EndOfWordSuffix:         deref(m.EndOfWordSuffix, ""),
			FuseUnk:                 m.FuseUnk,
			ByteFallback:            m.ByteFallback,
			IgnoreMerges:            m.IgnoreMerges,
		}
		bpe, err := models.NewBPE(vocab, merges, config)
		return bpe, config.UnkToken, err
	case "WordPiece":
		vocab, err := parseVocab(m.Vocab)
		if err != nil {
			return nil, "", err
		}
		unk := deref(m.UnkToken, "[UNK]")
		wp, err := models.NewWordPiece(vocab, unk, deref(m.ContinuingSubwordPrefix, "##"), m.MaxInputCharsPerWord)
		return wp, unk, err
	case "WordLevel":
		vocab, err := parseVocab(m.Vocab)
		if err != nil {
			return nil, "", err
		}
		unk := deref(m.UnkToken, "")
		wl, err := models.NewWordLevel(vocab, unk)
		return wl, unk, err
	case "Unigram":
		entries, err := parseUnigramVocab(m.Vocab)
		if err != nil {
			return nil, "", err
		}
		pieces := make([]models.UnigramPiece, len(entries))
		for i, e := range entries {
			pieces[i] = models.UnigramPiece{Token: e.Token, Score: e.Score}
		}
		unkID := -1
		if m.UnkID != nil {
			unkID = *m.UnkID
		}
		u, err := models.NewUnigram(pieces, unkID, m.ByteFallback)
		if err != nil {
			return nil, "", err
		}
		if unkID >= 0 {
			unkToken = pieces[unkID].Token
		}
		return u, unkToken, nil
	}
	return nil, "", errors.Errorf("unsupported model type %q", m.Type)
}

func buildDecoder(d *Decoder) (decoders.Step, error) {
	if d == nil {
		return nil, nil
	}
	switch d.Type {
	case "ByteLevel":
		return decoders.ByteLevel{}, nil
	case "WordPiece":
		prefix := d.Prefix
		if prefix == "" {
			prefix = "##"
		}
		return decoders.WordPiece{Prefix: prefix, Cleanup: d.Cleanup == nil || *d.Cleanup}, nil
	case "Metaspace":
		addPrefixSpace := d.AddPrefixSpace == nil || *d.AddPrefixSpace
		if d.PrependScheme != "" {
			addPrefixSpace = d.PrependScheme != "never"
		}
		return decoders.Metaspace{Replacement: d.Replacement, AddPrefixSpace: addPrefixSpace}, nil
	case "BPEDecoder":
		return decoders.BPEDecoder{Suffix: d.Suffix}, nil
	case "Replace":
		if d.Pattern == nil {
			return nil, errors.New("Replace decoder without a pattern")
		}
		return decoders.NewReplace(d.Pattern.String, d.Pattern.Regex, d.Content)
	case "Strip":
		content, _ := utf8.DecodeRuneInString(d.Content)
		if d.Content == "" {
			content = ' '
		}
		return decoders.Strip{Content: content, Start: d.Start, Stop: d.Stop}, nil
	case "ByteFallback":
		return decoders.ByteFallback{}, nil
	case "Fuse":
		return decoders.Fuse{}, nil
	case "Sequence":
		seq := make(decoders.Sequence, 0, len(d.Decoders))
		for i := range d.Decoders {
			sub, err := buildDecoder(&d.Decoders[i])
			if err != nil {
				return nil, errors.WithMessagef(err, "decoder #%d of sequence", i)
			}
			seq = append(seq, sub)
		}
		return seq, nil
	}
	return nil, errors.Errorf("unsupported decoder type %q", d.Type)
}

func buildTemplatePieces(items []TemplateItem) ([]processors.Piece, error) {
	pieces := make([]processors.Piece, 0, len(items))
	for i, item := range items {
		switch {
		case item.SpecialToken != nil:
			pieces = append(pieces, processors.Piece{Special: item.SpecialToken.ID, TypeID: item.SpecialToken.TypeID})
		case item.Sequence != nil:
			seq := processors.SequenceA
			switch item.Sequence.ID {
			case "A":
			case "B":
				seq = processors.SequenceB
			default:
				return nil, errors.Errorf("template item #%d refers to unknown sequence %q", i, item.Sequence.ID)
			}
			pieces = append(pieces, processors.Piece{Sequence: seq, TypeID: item.Sequence.TypeID})
		default:
			return nil, errors.Errorf("template item #%d is neither a SpecialToken nor a Sequence", i)
		}
	}
	return pieces, nil
}

// byteLevelTrimming returns the offsets trimming configured for a ByteLevel or RobertaProcessing
// post-processor, or nil if trim_offsets is false.
func byteLevelTrimming(p *PostProcessor) processors.PostProcessor {
	if p.TrimOffsets != nil && !*p.TrimOffsets {
		return nil
	}
	return processors.ByteLevel{
		TrimOffsets:    true,
		AddPrefixSpace: p.AddPrefixSpace == nil || *p.AddPrefixSpace,
	}
}

// buildPostProcessor returns nil for post-processors that have no effect on the encoding
// (ByteLevel without trim_offsets).
func buildPostProcessor(p *PostProcessor) (processors.PostProcessor, error) {
	if p == nil {
		return nil, nil
	}
	switch p.Type {
	case "TemplateProcessing":
		single, err := buildTemplatePieces(p.Single)
		if err != nil {
			return nil, errors.WithMessage(err, "single template")
		}
		pair, err := buildTemplatePieces(p.Pair)
		if err != nil {
			return nil, errors.WithMessage(err, "pair template")
		}
		t := &processors.Template{Single: single, Pair: pair, SpecialTokens: make(map[string]processors.SpecialToken)}
		for name, st := range p.SpecialTokens {
			t.SpecialTokens[name] = processors.SpecialToken{ID: st.ID, IDs: st.IDs, Tokens: st.Tokens}
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		return t, nil
	case "BertProcessing", "RobertaProcessing":
		if p.Sep == nil || p.Cls == nil {
			return nil, errors.Errorf("%s requires both sep and cls", p.Type)
		}
		if p.Type == "BertProcessing" {
			return processors.NewBert(p.Sep.Token, p.Sep.ID, p.Cls.Token, p.Cls.ID), nil
		}
		roberta := processors.NewRoberta(p.Sep.Token, p.Sep.ID, p.Cls.Token, p.Cls.ID)
		if trim := byteLevelTrimming(p); trim != nil {
			return processors.Chain{trim, roberta}, nil
		}
		return roberta, nil
	case "ByteLevel":
		if trim := byteLevelTrimming(p); trim != nil {
			return trim, nil
		}
		klog.V(1).Infof("tokenizer.json: ByteLevel post-processor without trim_offsets has no effect on the encoding")
		return nil, nil
	case "Sequence":
		var chain processors.Chain
		for i := range p.Processors {
			sub, err := buildPostProcessor(&p.Processors[i])
			if err != nil {
				return nil, errors.WithMessagef(err, "post-processor #%d of sequence", i)
			}
			switch sub := sub.(type) {
			case nil:
			case processors.Chain:
				chain = append(chain, sub...)
			default:
				chain = append(chain, sub)
			}
		}
		if err := chain.Validate(); err != nil {
			return nil, err
		}
		switch len(chain) {
		case 0:
			return nil, nil
		case 1:
			return chain[0], nil
		}
		return chain, nil
	}
	return nil, errors.Errorf("unsupported post-processor type %q", p.Type)
}
