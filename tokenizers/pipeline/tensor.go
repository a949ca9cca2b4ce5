package pipeline

import (
	"github.com/gomlx/go-tokenizers/tokenizers/api"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// IDsTensor packs the ids of a batch of encodings in a [batchSize, maxLen] int32 tensor,
// padded at the end with padID, and returns it with the attention mask: a tensor of the same
// shape with 1 for the real tokens and 0 for the padding.
func IDsTensor(encodings []*api.EncodingResult, padID int) (ids, mask *tensors.Tensor, err error) {
	if len(encodings) == 0 {
		return nil, nil, errors.New("IDsTensor requires at least one encoding")
	}
	maxLen := 0
	for _, enc := range encodings {
		maxLen = max(maxLen, enc.Len())
	}
	if maxLen == 0 {
		return nil, nil, errors.New("IDsTensor requires at least one non-empty encoding")
	}
	flatIDs := make([]int32, len(encodings)*maxLen)
	flatMask := make([]int32, len(encodings)*maxLen)
	for i, enc := range encodings {
		row := i * maxLen
		for j := range maxLen {
			if j < enc.Len() {
				flatIDs[row+j] = int32(enc.IDs[j])
				flatMask[row+j] = 1
			} else {
				flatIDs[row+j] = int32(padID)
			}
		}
	}
	ids = tensors.FromFlatDataAndDimensions(flatIDs, len(encodings), maxLen)
	mask = tensors.FromFlatDataAndDimensions(flatMask, len(encodings), maxLen)
	return ids, mask, nil
}
