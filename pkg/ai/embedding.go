package ai

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

type embeddingBatcher interface {
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)
}

// GenerateEmbeddings embeds all inputs in one logical call. Clients that
// support batching are used directly; otherwise each input is embedded on
// its own goroutine and the results are returned in input order.
func GenerateEmbeddings(
	ctx context.Context,
	client Embedder,
	inputs [][]byte,
) ([][]float32, error) {
	if client == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	if b, ok := client.(embeddingBatcher); ok {
		out, err := b.GenerateEmbeddings(ctx, inputs)
		if err != nil {
			return nil, err
		}
		if len(out) != len(inputs) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(out), len(inputs))
		}
		return out, nil
	}

	out := make([][]float32, len(inputs))

	eg, ectx := errgroup.WithContext(ctx)
	for i := range inputs {
		eg.Go(func() error {
			emb, err := client.GenerateEmbedding(ectx, inputs[i])
			if err != nil {
				return err
			}
			out[i] = emb
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// FitDimension pads with zeros or truncates vec so it has exactly dim
// entries. A dim <= 0 returns vec unchanged.
func FitDimension(vec []float32, dim int) []float32 {
	if dim <= 0 || len(vec) == dim {
		return vec
	}
	if len(vec) > dim {
		return vec[:dim]
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}
