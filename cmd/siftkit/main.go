package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/siftkit"
	"github.com/menta2k/siftkit/internal/config"
	"github.com/menta2k/siftkit/internal/utils"
	"github.com/menta2k/siftkit/pkg/store"
)

const usage = `usage: %s [flags] <command> [args]

commands:
  detect   <image>            detect keypoints and print their count
  describe <image> [name]     detect, describe and store keypoints
  match    <name-a> <name-b>  match two stored collections and fit F
  draw     <image> <name>     draw a stored collection over an image
  batch    <dir>              describe and store every image in dir
  list     [prefix]           list stored collections
`

func main() {
	var cfgPath, backend, mask, storage, outDir string
	var workers int
	var overlay, asJSON bool

	flag.StringVar(&cfgPath, "config", "", "config file (default ~/.config/siftkit/config.json when present)")
	flag.StringVar(&backend, "backend", "", "detection backend: pure|opencv")
	flag.StringVar(&mask, "mask", "", "detection mask: none|saliency|model")
	flag.StringVar(&storage, "storage", "", "storage backend: local|memory|minio|s3")
	flag.StringVar(&outDir, "out", "", "output directory for overlays")
	flag.IntVar(&workers, "workers", 0, "parallel images in batch mode (0 = config)")
	flag.BoolVar(&overlay, "overlay", false, "write keypoint overlays in describe and batch")
	flag.BoolVar(&asJSON, "json", false, "print reports as JSON")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if backend != "" {
		cfg.Detection.Backend = backend
	}
	if mask != "" {
		cfg.Detection.Mask = mask
	}
	if storage != "" {
		cfg.Storage.Backend = storage
	}
	if outDir != "" {
		cfg.Output.OutputDir = outDir
	}
	if workers > 0 {
		cfg.Detection.Workers = workers
	}

	ctx := context.Background()
	args := flag.Args()[1:]
	switch cmd := flag.Arg(0); cmd {
	case "detect":
		need(args, 1)
		err = runDetect(ctx, cfg, args[0])
	case "describe":
		need(args, 1)
		name := siftkit.CollectionName(args[0])
		if len(args) > 1 {
			name = args[1]
		}
		err = runDescribe(ctx, cfg, args[0], name, overlay, asJSON)
	case "match":
		need(args, 2)
		err = runMatch(ctx, cfg, args[0], args[1])
	case "draw":
		need(args, 2)
		err = runDraw(ctx, cfg, args[0], args[1])
	case "batch":
		need(args, 1)
		err = runBatch(ctx, cfg, args[0], overlay, asJSON)
	case "list":
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		err = runList(ctx, cfg, prefix)
	default:
		log.Printf("Unknown command: %s", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func need(args []string, n int) {
	if len(args) < n {
		flag.Usage()
		os.Exit(2)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.GetConfigPath()
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.LoadFromFile(path)
}

func runDetect(ctx context.Context, cfg *config.Config, source string) error {
	tk, err := siftkit.NewWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	img, err := tk.LoadImage(ctx, source)
	if err != nil {
		return err
	}
	kps, err := tk.Detect(ctx, img)
	if err != nil {
		return err
	}
	defer kps.Close()
	log.Printf("%s: %d keypoints (backend %s)", source, kps.Len(), tk.Backend())
	return nil
}

func runDescribe(ctx context.Context, cfg *config.Config, source, name string, overlay, asJSON bool) error {
	tk, err := siftkit.NewWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	img, err := tk.LoadImage(ctx, source)
	if err != nil {
		return err
	}
	feats, err := tk.DetectDescribe(ctx, img, nil)
	if err != nil {
		return err
	}
	defer feats.Close()
	if err := tk.Save(ctx, name, feats); err != nil {
		return err
	}

	rep := &siftkit.Report{Source: source, Name: name, Info: siftkit.GetImageInfo(img), Keypoints: feats.Len()}
	if overlay {
		if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
			return err
		}
		drawn, err := tk.DrawKeypoints(img, feats)
		if err != nil {
			return err
		}
		rep.Overlay = utils.GenerateOutputFilename(name, cfg.Output.OutputDir, cfg.Output.Suffix, cfg.Output.OverlayFormat)
		if err := tk.SaveImage(drawn, rep.Overlay); err != nil {
			return err
		}
	}
	printReport(rep, asJSON)
	return nil
}

func runMatch(ctx context.Context, cfg *config.Config, a, b string) error {
	tk, err := siftkit.NewWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	qa, err := tk.Load(ctx, a)
	if err != nil {
		return err
	}
	defer qa.Close()
	qb, err := tk.Load(ctx, b)
	if err != nil {
		return err
	}
	defer qb.Close()

	ms, err := tk.Match(qa, qb)
	if err != nil {
		return err
	}
	log.Printf("%s (%d) vs %s (%d): %d matches", a, qa.Len(), b, qb.Len(), len(ms))

	res, err := tk.Fundamental(qa, qb, ms)
	if err != nil {
		log.Printf("fundamental matrix: %v", err)
		return nil
	}
	log.Printf("fundamental matrix: %d/%d inliers after %d iterations", res.Inliers.GetCardinality(), len(ms), res.Iterations)
	for i := range 3 {
		log.Printf("  % .6e % .6e % .6e", res.F.At(i, 0), res.F.At(i, 1), res.F.At(i, 2))
	}
	return nil
}

func runDraw(ctx context.Context, cfg *config.Config, source, name string) error {
	tk, err := siftkit.NewWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	img, err := tk.LoadImage(ctx, source)
	if err != nil {
		return err
	}
	feats, err := tk.Load(ctx, name)
	if err != nil {
		return err
	}
	defer feats.Close()

	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		return err
	}
	drawn, err := tk.DrawKeypoints(img, feats)
	if err != nil {
		return err
	}
	path := utils.GenerateOutputFilename(name, cfg.Output.OutputDir, cfg.Output.Suffix, cfg.Output.OverlayFormat)
	if err := tk.SaveImage(drawn, path); err != nil {
		return err
	}
	log.Printf("wrote %s", path)
	return nil
}

// runBatch shares one blob store between per-worker toolkits, since a
// toolkit's detector holds per-call state.
func runBatch(ctx context.Context, cfg *config.Config, dir string, overlay, asJSON bool) error {
	files, err := utils.ListImageFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Printf("no images in %s", dir)
		return nil
	}

	blobs, err := siftkit.OpenBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	workers := max(1, min(cfg.Detection.Workers, len(files)))
	pool := make(chan *siftkit.Toolkit, workers)
	for range workers {
		tk, err := siftkit.NewWithConfig(ctx, cfg, siftkit.WithBlobStore(blobs))
		if err != nil {
			return err
		}
		pool <- tk
	}

	reports := make([]*siftkit.Report, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, file := range files {
		g.Go(func() error {
			tk := <-pool
			defer func() { pool <- tk }()
			rep, err := tk.ProcessImage(gctx, file, overlay)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := 0
	for _, rep := range reports {
		printReport(rep, asJSON)
		total += rep.Keypoints
	}
	log.Printf("processed %d images, %d keypoints", len(reports), total)
	return nil
}

func runList(ctx context.Context, cfg *config.Config, prefix string) error {
	blobs, err := siftkit.OpenBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	names, err := store.NewCollections(blobs).List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func printReport(rep *siftkit.Report, asJSON bool) {
	if asJSON {
		data, err := json.Marshal(rep)
		if err != nil {
			log.Printf("encode report: %v", err)
			return
		}
		fmt.Println(string(data))
		return
	}
	log.Printf("%s -> %s: %dx%d, %d keypoints", rep.Source, rep.Name, rep.Info.Width, rep.Info.Height, rep.Keypoints)
	if rep.Overlay != "" {
		log.Printf("wrote %s", rep.Overlay)
	}
}
