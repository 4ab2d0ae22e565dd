// Command reconstruct runs the structure-from-motion pipeline over a
// set of image files and writes the resulting geometry to a directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edaniels/golog"

	"go.viam.com/sfm"
)

var logger = golog.NewDevelopmentLogger("reconstruct")

func main() {
	if err := realMain(os.Args[1:]); err != nil {
		logger.Fatal(err)
	}
}

func realMain(args []string) error {
	flags := flag.NewFlagSet("reconstruct", flag.ExitOnError)
	mode := flags.String("mode", string(sfm.ModeBalanced), "reconstruction mode: fast, balanced or quality")
	featureCap := flags.Int("features", 0, "max keypoints per image (0 picks the mode default)")
	minMatches := flags.Int("min-matches", 80, "min accepted correspondences per image pair")
	matchRatio := flags.Float64("ratio", 0.75, "Lowe ratio for descriptor matching")
	wrap := flags.Bool("wrap", false, "also match the last image against the first")
	skipMesh := flags.Bool("skip-mesh", false, "export the point cloud only")
	plot := flags.Bool("plot-keypoints", false, "save keypoint debug plots next to the artifacts")
	seed := flags.Int64("seed", 1, "seed for descriptor sampling and RANSAC")
	outDir := flags.String("out", "", "output directory (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("usage: reconstruct -out <dir> [flags] <image files...>")
	}

	cfg := &sfm.Config{
		ImagePaths:      flags.Args(),
		Mode:            sfm.Mode(*mode),
		FeatureCap:      *featureCap,
		MinMatches:      *minMatches,
		MatchRatio:      *matchRatio,
		WrapMatch:       *wrap,
		OutputDirectory: *outDir,
		SkipMesh:        *skipMesh,
		PlotKeypoints:   *plot,
		Seed:            *seed,
	}
	pipeline, err := sfm.NewPipeline(cfg, sfm.DefaultCapabilities(), logger, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := pipeline.Run(ctx)
	if res != nil {
		logger.Infof("finished with state %q: %d points, %d mesh vertices, %d mesh triangles",
			res.State, res.PointCount, res.MeshVertexCount, res.MeshTriangleCount)
		for _, p := range res.ArtifactPaths {
			logger.Infof("wrote %s", p)
		}
	}
	return err
}
