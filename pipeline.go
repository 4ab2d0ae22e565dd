package sfm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sfm/keypoints"
	"go.viam.com/sfm/mesh"
	"go.viam.com/sfm/pointcloud"
	"go.viam.com/sfm/rimage"
	"go.viam.com/sfm/transform"
	"go.viam.com/sfm/utils"
)

// distanceQuantile keeps points within this quantile of the distance
// distribution around the cloud centroid.
const distanceQuantile = 0.98

// minCloudPoints is the smallest filtered cloud worth exporting.
const minCloudPoints = 200

// minMedianDisparityPx rejects image pairs with essentially no
// parallax; a zero baseline cannot be triangulated.
const minMedianDisparityPx = 1.0

// Pipeline runs one incremental structure-from-motion reconstruction:
// ordered images in, point cloud and optional mesh files out. A
// Pipeline is single-use; build a new one per run.
type Pipeline struct {
	cfg      *Config
	detector keypoints.Detector
	// degraded is set when the mode wanted float descriptors but the
	// build cannot provide them.
	degraded bool
	logger   golog.Logger
	sink     EventSink

	// paths holds the readable subset of cfg.ImagePaths once loading
	// has run; all later stages index into it.
	paths    []string
	warnings []Warning
}

// NewPipeline validates the config and prepares a pipeline. A nil sink
// logs events through the logger.
func NewPipeline(cfg *Config, caps Capabilities, logger golog.Logger, sink EventSink) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.FeatureCap == 0 {
		cfg.FeatureCap = cfg.Mode.defaultFeatureCap()
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NewLogSink(logger)
	}
	return &Pipeline{
		cfg:      cfg,
		detector: cfg.Mode.detector(caps, cfg.Seed),
		degraded: cfg.Mode != ModeFast && !caps.FloatDescriptors,
		logger:   logger,
		sink:     sink,
	}, nil
}

// camPose is one slot of the pose arena: the absolute rotation and
// translation of a camera, once chained.
type camPose struct {
	rot   *mat.Dense
	trans *mat.Dense
	known bool
}

func identityCamPose() camPose {
	rot := mat.NewDense(3, 3, nil)
	rot.Set(0, 0, 1)
	rot.Set(1, 1, 1)
	rot.Set(2, 2, 1)
	return camPose{rot: rot, trans: mat.NewDense(3, 1, nil), known: true}
}

// pairMatch is an image pair that survived matching: its accepted
// correspondences and, after pose estimation, the inlier subset.
type pairMatch struct {
	i, j    int
	matches []keypoints.Correspondence
	inliers []int
	// chain marks pairs that contribute to pose chaining; wrap pairs
	// only add triangulated points.
	chain bool
}

func (p *Pipeline) warnf(stage Stage, format string, args ...interface{}) {
	w := Warning{Stage: stage, Message: fmt.Sprintf(format, args...)}
	p.warnings = append(p.warnings, w)
	p.sink.Warning(w)
}

func (p *Pipeline) fail(err *Error) (*Result, error) {
	return &Result{State: StateFailed, Warnings: p.warnings}, err
}

func (p *Pipeline) cancelled(ctx context.Context) (*Result, error) {
	return &Result{State: StateCancelled, Warnings: p.warnings}, ctx.Err()
}

// Run executes the full pipeline. It returns a Result in every case;
// the error is non-nil when the run failed or was cancelled.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	// Loading
	p.sink.StageStarted(StageLoading)
	if p.degraded {
		p.warnf(StageLoading, "%s mode wants float descriptors but this build lacks them, using binary features", p.cfg.Mode)
	}
	paths, intrinsics, err := p.loadAndValidate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return p.cancelled(ctx)
		}
		return p.fail(WrapError(InputError, err, "image set cannot be used",
			"provide at least 8 readable images of the same size"))
	}
	p.paths = paths
	p.sink.Progress(3, fmt.Sprintf("validated %d images", len(paths)))
	p.sink.StageCompleted(StageLoading)
	if ctx.Err() != nil {
		return p.cancelled(ctx)
	}

	// ExtractingFeatures
	p.sink.StageStarted(StageExtractingFeatures)
	features, err := p.extractFeatures(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return p.cancelled(ctx)
		}
		var perr *Error
		if errors.As(err, &perr) {
			return p.fail(perr)
		}
		return p.fail(WrapError(FeatureError, err, "feature extraction failed",
			"use sharper, well-lit images with visible texture"))
	}
	p.sink.Progress(10, "extracted features")
	p.sink.StageCompleted(StageExtractingFeatures)
	if ctx.Err() != nil {
		return p.cancelled(ctx)
	}

	// Matching
	p.sink.StageStarted(StageMatching)
	pairs, err := p.matchPairs(ctx, features)
	if err != nil {
		if ctx.Err() != nil {
			return p.cancelled(ctx)
		}
		return p.fail(WrapError(MatchError, err, "too few image pairs matched",
			"increase image overlap or lower min_matches"))
	}
	p.sink.Progress(35, fmt.Sprintf("matched %d image pairs", len(pairs)))
	p.sink.StageCompleted(StageMatching)
	if ctx.Err() != nil {
		return p.cancelled(ctx)
	}

	// EstimatingPoses
	p.sink.StageStarted(StageEstimatingPoses)
	poses, connected, err := p.estimatePoses(ctx, features, pairs, intrinsics)
	if err != nil {
		if ctx.Err() != nil {
			return p.cancelled(ctx)
		}
		return p.fail(WrapError(PoseError, err, "camera poses could not be chained",
			"capture images in a continuous sweep with generous overlap"))
	}
	p.sink.Progress(55, fmt.Sprintf("chained %d camera poses", connected))
	p.sink.StageCompleted(StageEstimatingPoses)
	if ctx.Err() != nil {
		return p.cancelled(ctx)
	}

	// Triangulating
	p.sink.StageStarted(StageTriangulating)
	cloud, err := p.triangulate(ctx, features, pairs, poses, intrinsics)
	if err != nil {
		if ctx.Err() != nil {
			return p.cancelled(ctx)
		}
		return p.fail(WrapError(GeometryError, err, "triangulation produced no usable points",
			"check that the scene is static and images are in capture order"))
	}
	p.sink.Progress(70, fmt.Sprintf("triangulated %d points", cloud.Size()))
	p.sink.StageCompleted(StageTriangulating)
	if ctx.Err() != nil {
		return p.cancelled(ctx)
	}

	// Filtering
	p.sink.StageStarted(StageFiltering)
	filtered, err := pointcloud.StatisticalOutlierFilter(cloud, distanceQuantile)
	if err != nil {
		return p.fail(WrapError(GeometryError, err, "outlier filtering failed", ""))
	}
	if filtered.Size() < minCloudPoints {
		return p.fail(NewError(GeometryError,
			fmt.Sprintf("only %d points survived filtering, need at least %d", filtered.Size(), minCloudPoints),
			"add more images or use a mode with a higher feature cap"))
	}
	p.sink.Progress(82, fmt.Sprintf("kept %d points after filtering", filtered.Size()))
	p.sink.StageCompleted(StageFiltering)
	if ctx.Err() != nil {
		return p.cancelled(ctx)
	}

	// Meshing (optional, never fatal)
	var m *mesh.Mesh
	if !p.cfg.SkipMesh {
		p.sink.StageStarted(StageMeshing)
		reconstructed, meshErr := mesh.ReconstructImplicit(filtered, p.cfg.Mode.voxelResolution(), p.logger)
		if meshErr != nil {
			p.warnf(StageMeshing, "mesh reconstruction failed, exporting point cloud only: %v", meshErr)
		} else {
			m = reconstructed
		}
		p.sink.StageCompleted(StageMeshing)
		if ctx.Err() != nil {
			return p.cancelled(ctx)
		}
	}

	// Exporting
	p.sink.StageStarted(StageExporting)
	paths, err = p.export(filtered, m)
	if err != nil {
		return p.fail(WrapError(ExportError, err, "could not write point cloud artifacts",
			"check that the output directory is writable"))
	}
	p.sink.Progress(100, "reconstruction complete")
	p.sink.StageCompleted(StageExporting)

	res := &Result{
		State:         StateCompleted,
		PointCount:    filtered.Size(),
		ArtifactPaths: paths,
		Warnings:      p.warnings,
	}
	if m != nil {
		res.MeshVertexCount = m.VertexCount()
		res.MeshTriangleCount = m.TriangleCount()
	}
	return res, nil
}

// loadAndValidate checks every input image header and derives the
// shared intrinsics from the first readable image. Unreadable files
// are skipped with a warning; a size mismatch is fatal because the
// intrinsics are shared across the capture.
func (p *Pipeline) loadAndValidate(ctx context.Context) ([]string, *transform.PinholeCameraIntrinsics, error) {
	if len(p.cfg.ImagePaths) < minImages {
		return nil, nil, errors.Errorf("need at least %d images, got %d", minImages, len(p.cfg.ImagePaths))
	}
	var width, height int
	usable := make([]string, 0, len(p.cfg.ImagePaths))
	for _, path := range p.cfg.ImagePaths {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		w, h, err := rimage.ValidateImageFile(path)
		if err != nil {
			p.warnf(StageLoading, "skipping image %q: %v", path, err)
			continue
		}
		if len(usable) == 0 {
			width, height = w, h
		} else if w != width || h != height {
			return nil, nil, errors.Errorf("image %q is %dx%d, expected %dx%d like the first readable image",
				path, w, h, width, height)
		}
		usable = append(usable, path)
	}
	if len(usable) < minImages {
		return nil, nil, errors.Errorf("only %d of %d images are readable, need at least %d",
			len(usable), len(p.cfg.ImagePaths), minImages)
	}
	intrinsics, err := transform.NewEstimatedIntrinsics(width, height)
	if err != nil {
		return nil, nil, err
	}
	return usable, intrinsics, nil
}

// extractFeatures detects and describes keypoints in every image over a
// bounded worker group. Images are decoded, sampled for color, and
// released inside the worker.
func (p *Pipeline) extractFeatures(ctx context.Context) ([]*keypoints.FeatureSet, error) {
	n := len(p.paths)
	features := make([]*keypoints.FeatureSet, n)
	decodeErrs := make([]error, n)
	errs := make([]error, n)
	plotWarnings := make([]string, n)

	err := utils.GroupWorkParallel(ctx, n,
		func(groupSize int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				path := p.paths[workNum]
				img, err := rimage.ReadImageFromFile(path)
				if err != nil {
					decodeErrs[workNum] = err
					return
				}
				fs, err := p.detector.Detect(img, p.cfg.FeatureCap)
				if err != nil {
					errs[workNum] = errors.Wrapf(err, "image %q", path)
					return
				}
				features[workNum] = fs
				if p.cfg.PlotKeypoints {
					out := filepath.Join(p.cfg.OutputDirectory, fmt.Sprintf("keypoints_%03d.png", workNum))
					if err := keypoints.PlotKeypoints(rimage.MakeGray(img), fs.Points, out); err != nil {
						plotWarnings[workNum] = err.Error()
					}
				}
			}, nil
		})
	if err != nil {
		return nil, err
	}
	for i := range errs {
		if errs[i] != nil {
			return nil, errs[i]
		}
	}
	for i, msg := range plotWarnings {
		if msg != "" {
			p.warnf(StageExtractingFeatures, "could not plot keypoints for image %d: %s", i, msg)
		}
	}

	// header validation cannot catch a truncated body; images that fail
	// the full decode are excluded from the capture here
	keep := make([]int, 0, n)
	for i := range decodeErrs {
		if decodeErrs[i] != nil {
			p.warnf(StageExtractingFeatures, "excluding image %q: %v", p.paths[i], decodeErrs[i])
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) < minImages {
		return nil, NewError(InputError,
			fmt.Sprintf("only %d of %d images could be decoded, need at least %d", len(keep), n, minImages),
			"provide at least 8 readable images of the same size")
	}
	if len(keep) < n {
		paths := make([]string, len(keep))
		kept := make([]*keypoints.FeatureSet, len(keep))
		for k, i := range keep {
			paths[k] = p.paths[i]
			kept[k] = features[i]
		}
		p.paths = paths
		features = kept
	}

	textured := 0
	for i, fs := range features {
		p.logger.Debugf("image %d: %d keypoints (%s)", i, fs.Len(), fs.Algorithm)
		if fs.Len() < p.cfg.MinMatches {
			p.warnf(StageExtractingFeatures, "image %d has only %d keypoints", i, fs.Len())
			continue
		}
		textured++
	}
	if textured < 2 {
		return nil, errors.Errorf("only %d images have enough texture to match", textured)
	}
	return features, nil
}

// matchPairs runs ratio-test matching over adjacent pairs, plus the
// wrap pair (n-1, 0) when configured and the capture is long enough.
func (p *Pipeline) matchPairs(ctx context.Context, features []*keypoints.FeatureSet) ([]*pairMatch, error) {
	n := len(features)
	type candidate struct {
		i, j  int
		chain bool
	}
	candidates := make([]candidate, 0, n)
	for i := 0; i < n-1; i++ {
		candidates = append(candidates, candidate{i: i, j: i + 1, chain: true})
	}
	if p.cfg.WrapMatch && n >= 3 {
		candidates = append(candidates, candidate{i: n - 1, j: 0, chain: false})
	}

	matchCfg := &keypoints.MatchingConfig{Ratio: p.cfg.MatchRatio}
	pairs := make([]*pairMatch, 0, len(candidates))
	for _, c := range candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		matches, err := keypoints.MatchDescriptors(features[c.i], features[c.j], matchCfg, p.logger)
		if err != nil {
			p.warnf(StageMatching, "pair (%d, %d) failed to match: %v", c.i, c.j, err)
			continue
		}
		if len(matches) < p.cfg.MinMatches {
			p.warnf(StageMatching, "pair (%d, %d) has only %d matches, need %d", c.i, c.j, len(matches), p.cfg.MinMatches)
			continue
		}
		pairs = append(pairs, &pairMatch{i: c.i, j: c.j, matches: matches, chain: c.chain})
	}

	accepted := 0
	for _, pr := range pairs {
		if pr.chain {
			accepted++
		}
	}
	if accepted < 2 {
		return nil, errors.Errorf("only %d adjacent pairs shared at least %d matches", accepted, p.cfg.MinMatches)
	}
	return pairs, nil
}

// medianDisparity is the median pixel displacement between matched
// keypoints of a pair.
func medianDisparity(pts1, pts2 []r2.Point) float64 {
	if len(pts1) == 0 {
		return 0
	}
	dists := make([]float64, len(pts1))
	for i := range pts1 {
		dists[i] = pts2[i].Sub(pts1[i]).Norm()
	}
	return utils.Median(dists...)
}

func matchedPixelCoords(pr *pairMatch, features []*keypoints.FeatureSet) ([]r2.Point, []r2.Point) {
	pts1 := make([]r2.Point, len(pr.matches))
	pts2 := make([]r2.Point, len(pr.matches))
	for k, m := range pr.matches {
		kp1 := features[pr.i].Points[m.Idx1]
		kp2 := features[pr.j].Points[m.Idx2]
		pts1[k] = r2.Point{X: float64(kp1.X), Y: float64(kp1.Y)}
		pts2[k] = r2.Point{X: float64(kp2.X), Y: float64(kp2.Y)}
	}
	return pts1, pts2
}

// estimatePoses runs RANSAC pose estimation per pair and chains
// relative poses into the single-writer pose arena. Wrap pairs get
// inliers but never touch the chain.
func (p *Pipeline) estimatePoses(
	ctx context.Context,
	features []*keypoints.FeatureSet,
	pairs []*pairMatch,
	intrinsics *transform.PinholeCameraIntrinsics,
) ([]camPose, int, error) {
	n := len(features)
	poses := make([]camPose, n)
	poses[0] = identityCamPose()
	k := intrinsics.GetCameraMatrix()
	opts := transform.DefaultRANSACOptions()
	opts.ThresholdPx = p.cfg.Mode.ransacThresholdPx()
	opts.Seed = p.cfg.Seed

	for _, pr := range pairs {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		pts1, pts2 := matchedPixelCoords(pr, features)
		if d := medianDisparity(pts1, pts2); d < minMedianDisparityPx {
			p.warnf(StageEstimatingPoses, "pair (%d, %d) has no parallax (median disparity %.2f px)", pr.i, pr.j, d)
			continue
		}
		rel, inliers, err := transform.EstimatePoseRANSAC(pts1, pts2, k, opts)
		if err != nil {
			p.warnf(StageEstimatingPoses, "pair (%d, %d) pose estimation failed: %v", pr.i, pr.j, err)
			continue
		}
		pr.inliers = inliers
		if !pr.chain {
			continue
		}
		switch {
		case poses[pr.i].known && !poses[pr.j].known:
			poses[pr.j] = composePose(poses[pr.i], rel)
		case poses[pr.j].known && !poses[pr.i].known:
			poses[pr.i] = composeInversePose(poses[pr.j], rel)
		}
	}

	connected := 0
	for i := range poses {
		if poses[i].known {
			connected++
		}
	}
	if connected < 2 {
		return nil, 0, errors.Errorf("only %d cameras could be posed", connected)
	}
	return poses, connected, nil
}

// composePose chains an absolute pose with the relative pose of the
// next camera: R_j = R_rel R_i, t_j = R_rel t_i + t_rel.
func composePose(base camPose, rel *transform.CamPose) camPose {
	rot := mat.NewDense(3, 3, nil)
	rot.Mul(rel.Rotation, base.rot)
	trans := mat.NewDense(3, 1, nil)
	trans.Mul(rel.Rotation, base.trans)
	trans.Add(trans, rel.Translation)
	return camPose{rot: rot, trans: trans, known: true}
}

// composeInversePose recovers the earlier camera from the later one:
// R_i = R_relᵀ R_j, t_i = R_relᵀ (t_j - t_rel).
func composeInversePose(next camPose, rel *transform.CamPose) camPose {
	rot := mat.NewDense(3, 3, nil)
	rot.Mul(rel.Rotation.T(), next.rot)
	trans := mat.NewDense(3, 1, nil)
	trans.Sub(next.trans, rel.Translation)
	trans.Mul(rel.Rotation.T(), mat.DenseCopyOf(trans))
	return camPose{rot: rot, trans: trans, known: true}
}

// triangulate lifts every posed pair's inlier correspondences into 3D
// and accumulates them, colored from the first image of the pair and
// tagged with the pair index.
func (p *Pipeline) triangulate(
	ctx context.Context,
	features []*keypoints.FeatureSet,
	pairs []*pairMatch,
	poses []camPose,
	intrinsics *transform.PinholeCameraIntrinsics,
) (*pointcloud.PointCloud, error) {
	cloud := pointcloud.New()
	for pairIdx, pr := range pairs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !poses[pr.i].known || !poses[pr.j].known || len(pr.inliers) == 0 {
			continue
		}
		p1 := intrinsics.ProjectionMatrix(poses[pr.i].rot, poses[pr.i].trans)
		p2 := intrinsics.ProjectionMatrix(poses[pr.j].rot, poses[pr.j].trans)

		in1 := make([]r2.Point, len(pr.inliers))
		in2 := make([]r2.Point, len(pr.inliers))
		pts1, pts2 := matchedPixelCoords(pr, features)
		for k, idx := range pr.inliers {
			in1[k] = pts1[idx]
			in2[k] = pts2[idx]
		}
		pts3d, err := transform.TriangulatePoints(p1, p2,
			transform.Convert2DPointsToHomogeneousPoints(in1),
			transform.Convert2DPointsToHomogeneousPoints(in2))
		if err != nil {
			p.warnf(StageTriangulating, "pair (%d, %d) triangulation failed: %v", pr.i, pr.j, err)
			continue
		}
		added := 0
		for k, pt := range pts3d {
			if !transform.IsFinite(pt) {
				continue
			}
			m := pr.matches[pr.inliers[k]]
			c := features[pr.i].Colors[m.Idx1]
			cloud.Append(pt, pointcloud.NewColoredValueData(c, pairIdx))
			added++
		}
		p.logger.Debugf("pair (%d, %d): %d/%d inliers triangulated", pr.i, pr.j, added, len(pr.inliers))
	}
	if cloud.Size() == 0 {
		return nil, errors.New("no pair yielded finite 3D points")
	}
	return cloud, nil
}

// export writes the point cloud artifacts (fatal on failure) and, when
// a mesh exists, the mesh artifacts (per-file warnings on failure).
func (p *Pipeline) export(cloud *pointcloud.PointCloud, m *mesh.Mesh) ([]string, error) {
	dir := p.cfg.OutputDirectory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string

	plyPath := filepath.Join(dir, "point_cloud.ply")
	if err := pointcloud.WriteToPLYFile(cloud, plyPath); err != nil {
		return nil, err
	}
	paths = append(paths, plyPath)

	pcdPath := filepath.Join(dir, "point_cloud.pcd")
	if err := pointcloud.WriteToPCDFile(cloud, pcdPath, pointcloud.PCDAscii); err != nil {
		return nil, err
	}
	paths = append(paths, pcdPath)

	if m == nil {
		return paths, nil
	}
	meshWriters := []struct {
		name  string
		write func(*mesh.Mesh, string) error
	}{
		{"mesh.ply", mesh.WriteToPLYFile},
		{"mesh.obj", mesh.WriteToOBJFile},
		{"mesh.stl", mesh.WriteToSTLFile},
	}
	for _, mw := range meshWriters {
		path := filepath.Join(dir, mw.name)
		if err := mw.write(m, path); err != nil {
			p.warnf(StageExporting, "could not write %s: %v", mw.name, err)
			continue
		}
		paths = append(paths, path)
	}
	return paths, nil
}
