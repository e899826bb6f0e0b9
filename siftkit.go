// Package siftkit detects, describes, matches and persists SIFT keypoints.
//
// A Toolkit ties the pieces together from one configuration:
//
//	tk, err := siftkit.NewWithConfig(ctx, config.Default())
//	if err != nil {
//		log.Fatal(err)
//	}
//	img, err := tk.LoadImage(ctx, "scene.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//	feats, err := tk.DetectDescribe(ctx, img, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer feats.Close()
//	if err := tk.Save(ctx, "scene", feats); err != nil {
//		log.Fatal(err)
//	}
//
// Detection runs on a registered backend: "pure" is always available, and
// "opencv" is linked in when building with the gocv tag. Detection can be
// restricted to a mask computed from image saliency or from a vision model's
// answer about the subject of the image.
package siftkit

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/siftkit/internal/config"
	"github.com/menta2k/siftkit/internal/logging"
	"github.com/menta2k/siftkit/pkg/client"
	"github.com/menta2k/siftkit/pkg/detection"
	"github.com/menta2k/siftkit/pkg/geometry"
	"github.com/menta2k/siftkit/pkg/llamacpp"
	"github.com/menta2k/siftkit/pkg/match"
	"github.com/menta2k/siftkit/pkg/ollama"
	"github.com/menta2k/siftkit/pkg/processing"
	"github.com/menta2k/siftkit/pkg/sift"
	"github.com/menta2k/siftkit/pkg/sift/gosift"
	"github.com/menta2k/siftkit/pkg/store"
	"github.com/menta2k/siftkit/pkg/store/minio"
	"github.com/menta2k/siftkit/pkg/store/s3"
	"github.com/menta2k/siftkit/pkg/vision"
)

// Version of the siftkit library
const Version = "1.0.0"

// Toolkit provides a high-level interface over detection, matching and storage
type Toolkit struct {
	cfg         *config.Config
	logger      *logging.Logger
	detector    *sift.Detector
	processor   *processing.Processor
	saliency    *vision.SubjectDetector
	locator     *detection.Detector
	collections *store.Collections
}

// Option overrides a component NewWithConfig would build from the config
type Option func(*options)

type options struct {
	blobs   store.BlobStore
	vision  client.VisionClient
	logger  *logging.Logger
	backend sift.Backend
}

// WithBlobStore replaces the configured storage backend
func WithBlobStore(bs store.BlobStore) Option {
	return func(o *options) { o.blobs = bs }
}

// WithVisionClient replaces the configured model client used for model masks
func WithVisionClient(c client.VisionClient) Option {
	return func(o *options) { o.vision = c }
}

// WithLogger replaces the logger built from the logging section
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBackend replaces the configured detection backend
func WithBackend(b sift.Backend) Option {
	return func(o *options) { o.backend = b }
}

// New creates a Toolkit with the default configuration and in-memory storage
func New() (*Toolkit, error) {
	return NewWithConfig(context.Background(), config.Default(), WithBlobStore(store.NewMemoryStore()))
}

// NewWithConfig validates cfg and builds every component it names
func NewWithConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Toolkit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	sift.SetLogger(logger)

	backend := o.backend
	if backend == nil {
		var err error
		if backend, err = newBackend(cfg.Detection); err != nil {
			return nil, err
		}
	}

	blobs := o.blobs
	if blobs == nil {
		var err error
		if blobs, err = OpenBlobStore(ctx, cfg.Storage); err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}
	packing, _ := sift.PackingByName(cfg.Storage.Packing)
	compression, _ := store.ParseCompression(cfg.Storage.Compression)

	tk := &Toolkit{
		cfg:       cfg,
		logger:    logger,
		detector:  sift.NewDetector(backend, sift.WithLogger(logger), sift.WithBlockSize(cfg.Detection.BlockSize)),
		processor: processing.NewProcessor(processing.WithRateLimit(cfg.Detection.DownloadRate, 2)),
		saliency:  vision.NewWithConfig(cfg.Vision.Detector()),
		collections: store.NewCollections(blobs,
			store.WithPacking(packing),
			store.WithCompression(compression),
			store.WithLogger(logger)),
	}

	if cfg.Detection.Mask == config.MaskModel {
		vc := o.vision
		if vc == nil {
			var err error
			if vc, err = newVisionClient(cfg.Detection); err != nil {
				return nil, err
			}
		}
		dc := detection.DefaultConfig(cfg.Detection.Model)
		dc.MinConfidence = cfg.Detection.MinConfidence
		tk.locator = detection.NewDetectorWithConfig(vc, dc)
	}
	return tk, nil
}

func newBackend(cfg config.DetectionConfig) (sift.Backend, error) {
	if cfg.Backend == gosift.Name && cfg.Workers > 0 {
		return gosift.New(gosift.WithWorkers(cfg.Workers)), nil
	}
	return sift.NewBackend(cfg.Backend)
}

func newVisionClient(cfg config.DetectionConfig) (client.VisionClient, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewClient(cfg.URL)
	case "llamacpp":
		return llamacpp.NewClient(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
	}
}

// OpenBlobStore builds the blob store named by cfg.Backend
func OpenBlobStore(ctx context.Context, cfg config.StorageConfig) (store.BlobStore, error) {
	switch cfg.Backend {
	case "local":
		return store.NewLocalStore(cfg.Root), nil
	case "memory":
		return store.NewMemoryStore(), nil
	case "minio":
		return minio.Dial(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Secure, cfg.Bucket, cfg.Prefix)
	case "s3":
		return s3.Dial(ctx, cfg.Region, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Config returns the configuration the toolkit was built from
func (tk *Toolkit) Config() *config.Config { return tk.cfg }

// Backend returns the name of the detection backend
func (tk *Toolkit) Backend() string { return tk.detector.Backend().Name() }

// LoadImage loads an image from a file path or http(s) URL
func (tk *Toolkit) LoadImage(ctx context.Context, source string) (image.Image, error) {
	return tk.processor.LoadImageSmart(ctx, source)
}

// Mask computes the detection mask for img from the configured source. A nil
// mask means the whole image is searched; that is also the result when the
// mask source finds no subject.
func (tk *Toolkit) Mask(ctx context.Context, img image.Image) (*image.Gray, error) {
	switch tk.cfg.Detection.Mask {
	case config.MaskSaliency:
		mask, err := tk.saliency.Mask(img, 0)
		if errors.Is(err, vision.ErrNoSubject) {
			tk.logger.WarnContext(ctx, "no salient region, searching whole image")
			return nil, nil
		}
		return mask, err
	case config.MaskModel:
		mask, res, err := tk.locator.Mask(ctx, img)
		if errors.Is(err, detection.ErrNoSubject) {
			tk.logger.WarnContext(ctx, "no subject located, searching whole image", "label", res.Primary.Label)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		tk.logger.DebugContext(ctx, "subject located", "label", res.Primary.Label, "confidence", res.Primary.Confidence)
		return mask, nil
	default:
		return nil, nil
	}
}

func (tk *Toolkit) maskOption(ctx context.Context, img image.Image) ([]sift.DetectOption, error) {
	mask, err := tk.Mask(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}
	if mask == nil {
		return nil, nil
	}
	return []sift.DetectOption{sift.WithMask(mask)}, nil
}

// Detect finds keypoints without descriptors
func (tk *Toolkit) Detect(ctx context.Context, img image.Image) (*sift.Results, error) {
	opts, err := tk.maskOption(ctx, img)
	if err != nil {
		return nil, err
	}
	return tk.detector.Detect(img, tk.cfg.SIFT, opts...)
}

// DetectDescribe detects and describes keypoints, or describes existing in place
func (tk *Toolkit) DetectDescribe(ctx context.Context, img image.Image, existing sift.Collection) (*sift.Results, error) {
	opts, err := tk.maskOption(ctx, img)
	if err != nil {
		return nil, err
	}
	return tk.detector.DetectDescribe(img, tk.cfg.SIFT, existing, opts...)
}

// Match pairs the descriptors of query and train
func (tk *Toolkit) Match(query, train *sift.Results) ([]match.Match, error) {
	return match.Results(query, train, tk.cfg.Matching)
}

// Fundamental estimates the fundamental matrix relating the matched keypoints
func (tk *Toolkit) Fundamental(query, train *sift.Results, ms []match.Match) (*geometry.Result, error) {
	p1, p2 := match.Points(query, train, ms)
	return geometry.Fundamental(p1, p2, tk.cfg.Geometry)
}

// Save stores a collection under name
func (tk *Toolkit) Save(ctx context.Context, name string, r *sift.Results) error {
	return tk.collections.Save(ctx, name, r)
}

// Load reads a stored collection
func (tk *Toolkit) Load(ctx context.Context, name string) (*sift.Results, error) {
	return tk.collections.Load(ctx, name)
}

// List returns the stored collection names under prefix
func (tk *Toolkit) List(ctx context.Context, prefix string) ([]string, error) {
	return tk.collections.List(ctx, prefix)
}

// DrawKeypoints returns img with every keypoint of r drawn as a scaled circle
func (tk *Toolkit) DrawKeypoints(img image.Image, r *sift.Results) (*image.NRGBA, error) {
	fs, err := r.Features()
	if err != nil {
		return nil, err
	}
	return processing.DrawFeatures(img, fs, processing.DefaultDrawOptions()), nil
}

// SaveImage writes img with the configured output format
func (tk *Toolkit) SaveImage(img image.Image, path string) error {
	out := tk.cfg.Output
	return tk.processor.SaveImage(img, path, out.OverlayFormat, out.Quality, out.Lossless)
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// GetImageInfo returns basic information about an image
func GetImageInfo(img image.Image) ImageInfo {
	b := img.Bounds()
	info := ImageInfo{Width: b.Dx(), Height: b.Dy(), Area: b.Dx() * b.Dy()}
	if info.Height > 0 {
		info.AspectRatio = float64(info.Width) / float64(info.Height)
	}
	return info
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
