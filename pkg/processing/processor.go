package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"
)

// ErrUnknownFormat is returned when no decoder accepts the image data
var ErrUnknownFormat = errors.New("image: unknown or unsupported format")

// MaxDownloadSize bounds the body read from an image URL
const MaxDownloadSize = 64 << 20

// Processor loads, encodes and saves images. URL downloads share one rate limiter.
type Processor struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// Option configures a Processor
type Option func(*Processor)

// WithRateLimit allows r downloads per second with the given burst
func WithRateLimit(r float64, burst int) Option {
	return func(p *Processor) {
		if r <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(r), max(burst, 1))
	}
}

// WithHTTPClient replaces the download client
func WithHTTPClient(c *http.Client) Option {
	return func(p *Processor) { p.client = c }
}

// NewProcessor creates a new image processor
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(4), 4),
		userAgent: "siftkit/1.0",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadImageFromURL downloads and decodes an image, waiting for the rate limiter first
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") && ct != "application/octet-stream" {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return DecodeImage(data)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(source)
}

// DecodeImage decodes registered formats and falls back to the WebP decoder
func DecodeImage(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, ErrUnknownFormat
}

// PrepareImageForModel downsizes img to maxDim and returns it base64 encoded
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default:
		if quality <= 0 {
			quality = 90
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		if err := webp.Encode(f, img, opts); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	case "png":
		return imaging.Save(img, path)
	default:
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}
