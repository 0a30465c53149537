package extract

import (
	"context"

	"github.com/kailas-cloud/tripmatch/internal/capability"
)

// Completer runs one chat completion through a fallback chain.
type Completer interface {
	Complete(ctx context.Context, req capability.ChatRequest, validate func(string) error) (string, error)
}

// DestinationSource supplies the known destination names for the
// keyword fallback extractor.
type DestinationSource interface {
	Destinations() []string
}
