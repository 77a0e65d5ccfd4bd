package v1

import (
	"context"

	"github.com/gosuda/trajlog/internal/transcript"
)

// Reconstructor abstracts transcript retrieval for handler testing.
// *transcript.Reconstructor satisfies this interface.
type Reconstructor interface {
	Reconstruct(ctx context.Context, prefix string) (*transcript.Transcript, error)
}
