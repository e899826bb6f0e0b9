package client

import (
	"context"

	"github.com/menta2k/siftkit/pkg/types"
)

// VisionClient is a vision model backend able to locate the subject of an image
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	LocateSubject(ctx context.Context, model, prompt, imgB64 string) (*types.LocateResult, error)
}
