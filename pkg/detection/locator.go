// Package detection asks a vision model where the subject of an image is
// and turns the answer into a keypoint detection mask.
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/siftkit/pkg/client"
	"github.com/menta2k/siftkit/pkg/processing"
	"github.com/menta2k/siftkit/pkg/types"
	"github.com/menta2k/siftkit/pkg/vision"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks for the dominant subject as a normalized box
const DefaultPrompt = `You are an image subject locator.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence (<= 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box must tightly include the visually dominant subject, including all of its visible parts.
- cx,cy is the subject center and lies inside the box.
- Tags: lowercase, concise, no punctuation or duplicates.
- If no subject is found, use label "none" with confidence 0.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// ErrNoSubject is returned by Mask when the model found nothing usable
var ErrNoSubject = errors.New("no subject located")

// Config controls how images are sent to the model and how answers are used
type Config struct {
	Model  string
	Prompt string
	// MaxDim bounds the longer side of the image sent to the model
	MaxDim  int
	Quality int
	// MinConfidence rejects weaker answers in Mask
	MinConfidence float64
	// Padding grows the subject box by this fraction of its size on every side
	Padding float64
}

// DefaultConfig returns the locator defaults for model
func DefaultConfig(model string) Config {
	return Config{
		Model:         model,
		Prompt:        DefaultPrompt,
		MaxDim:        1024,
		Quality:       90,
		MinConfidence: 0.3,
		Padding:       0.05,
	}
}

// Detector handles image subject detection using vision models
type Detector struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
}

// NewDetector creates a detector with default settings for model
func NewDetector(c client.VisionClient, model string) *Detector {
	return NewDetectorWithConfig(c, DefaultConfig(model))
}

// NewDetectorWithConfig creates a detector with custom settings
func NewDetectorWithConfig(c client.VisionClient, cfg Config) *Detector {
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	return &Detector{client: c, processor: processing.NewProcessor(), config: cfg}
}

// DetectSubject locates the primary subject of a base64 encoded image
func (d *Detector) DetectSubject(ctx context.Context, imageB64 string) (*types.LocateResult, error) {
	result, err := d.DetectSubjectWithPrompt(ctx, imageB64, d.config.Prompt)
	if err != nil {
		return nil, err
	}
	return validateResult(result), nil
}

// DetectSubjectWithPrompt locates a subject with a custom prompt
func (d *Detector) DetectSubjectWithPrompt(ctx context.Context, imageB64, prompt string) (*types.LocateResult, error) {
	result, err := d.client.LocateSubject(ctx, d.config.Model, prompt, imageB64)
	if err != nil {
		return nil, err
	}
	result.Primary.Box = normalizeBox(result.Primary.Box)
	result.Tags = normalizeTags(result.Tags)
	return result, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, d.config.Model, SimpleTestPrompt, imageB64)
}

// Mask locates the subject of img and returns a mask over its box. It
// returns ErrNoSubject, together with the model answer, when the answer is
// "none" or below MinConfidence.
func (d *Detector) Mask(ctx context.Context, img image.Image) (*image.Gray, *types.LocateResult, error) {
	b64, err := d.processor.PrepareImageForModel(img, "jpg", d.config.MaxDim, d.config.Quality)
	if err != nil {
		return nil, nil, fmt.Errorf("encode image: %w", err)
	}
	result, err := d.DetectSubject(ctx, b64)
	if err != nil {
		return nil, nil, err
	}

	p := result.Primary
	if strings.EqualFold(p.Label, "none") || p.Confidence < d.config.MinConfidence || p.Box.Empty() {
		return nil, result, fmt.Errorf("%w: %q (confidence %.2f)", ErrNoSubject, p.Label, p.Confidence)
	}

	box := pad(p.Box, d.config.Padding)
	return vision.RectMask(img.Bounds(), box.Rect(img.Bounds())), result, nil
}

var fallbackIndicators = []string{"unclear", "parse", "error", "fallback", "non-json"}

// validateResult demotes fallback answers to "none" and keeps the center inside the box
func validateResult(result *types.LocateResult) *types.LocateResult {
	p := &result.Primary
	if strings.EqualFold(p.Label, "none") {
		return result
	}

	for _, indicator := range fallbackIndicators {
		if strings.Contains(strings.ToLower(p.Label), indicator) || strings.Contains(strings.ToLower(result.Description), indicator) ||
			containsTag(result.Tags, indicator) {
			p.Label = "none"
			p.Confidence = 0
			return result
		}
	}

	p.Cx = clamp(p.Cx, p.Box.X, p.Box.X+p.Box.W)
	p.Cy = clamp(p.Cy, p.Box.Y, p.Box.Y+p.Box.H)
	return result
}

func containsTag(tags []string, s string) bool {
	for _, t := range tags {
		if t == s {
			return true
		}
	}
	return false
}

func pad(b types.Box, f float64) types.Box {
	dx, dy := b.W*f, b.H*f
	return normalizeBox(types.Box{X: b.X - dx, Y: b.Y - dy, W: b.W + 2*dx, H: b.H + 2*dy})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox clips a box to the unit square
func normalizeBox(b types.Box) types.Box {
	x0, y0 := clamp(b.X, 0, 1), clamp(b.Y, 0, 1)
	x1, y1 := clamp(b.X+b.W, 0, 1), clamp(b.Y+b.H, 0, 1)
	return types.Box{X: x0, Y: y0, W: max(x1-x0, 0), H: max(y1-y0, 0)}
}

// normalizeTags ensures tags are cleaned and limited to 5 entries
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}
