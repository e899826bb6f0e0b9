package siftkit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/menta2k/siftkit/internal/utils"
)

// Report summarizes one processed image
type Report struct {
	Source    string    `json:"source"`
	Name      string    `json:"name"`
	Info      ImageInfo `json:"info"`
	Keypoints int       `json:"keypoints"`
	Overlay   string    `json:"overlay,omitempty"`
}

// ProcessImage loads source, detects and describes its keypoints and stores
// them under the collection name derived from source. With overlay set, a
// keypoint drawing is written to the output directory.
func (tk *Toolkit) ProcessImage(ctx context.Context, source string, overlay bool) (*Report, error) {
	img, err := tk.LoadImage(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	feats, err := tk.DetectDescribe(ctx, img, nil)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	defer feats.Close()

	rep := &Report{
		Source:    source,
		Name:      CollectionName(source),
		Info:      GetImageInfo(img),
		Keypoints: feats.Len(),
	}
	if err := tk.Save(ctx, rep.Name, feats); err != nil {
		return nil, err
	}

	if overlay {
		out := tk.cfg.Output
		if err := utils.EnsureDir(out.OutputDir); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		drawn, err := tk.DrawKeypoints(img, feats)
		if err != nil {
			return nil, err
		}
		rep.Overlay = utils.GenerateOutputFilename(rep.Name, out.OutputDir, out.Suffix, out.OverlayFormat)
		if err := tk.SaveImage(drawn, rep.Overlay); err != nil {
			return nil, fmt.Errorf("failed to save overlay: %w", err)
		}
	}
	tk.logger.WithImage(source).InfoContext(ctx, "image processed", "name", rep.Name, "keypoints", rep.Keypoints)
	return rep, nil
}

// CollectionName derives a storage name from an image path or URL
func CollectionName(source string) string {
	base := source
	if i := strings.IndexAny(base, "?#"); i >= 0 && strings.Contains(source, "://") {
		base = base[:i]
	}
	base = filepath.Base(filepath.FromSlash(base))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if name := utils.SanitizeFilename(base); name != "" {
		return name
	}
	return "image"
}
