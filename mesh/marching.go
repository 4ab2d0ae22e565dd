package mesh

import (
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/sfm/pointcloud"
)

const (
	// isoLevelPercent places the extraction surface at this fraction of
	// the density range above the minimum.
	isoLevelPercent = 0.25
	// vertexConfidenceQuantile prunes mesh vertices whose interpolated
	// density falls below this quantile of all vertex densities.
	vertexConfidenceQuantile = 0.02
	// smoothingPasses is the number of box-blur passes applied to the
	// density grid before polygonization.
	smoothingPasses = 2
)

// VoxelGrid is a regular scalar grid of point densities over the
// bounding box of a point cloud. Values live on grid nodes; marching
// cubes polygonizes the cells between them.
type VoxelGrid struct {
	values     []float64
	nx, ny, nz int
	origin     r3.Vector
	cellSize   float64
}

// NewDensityGrid splats the cloud into a fresh voxel grid. The cell
// size is chosen so the longest bounding box axis spans roughly
// resolution cells; one cell of padding surrounds the cloud so the
// extracted surface always closes.
func NewDensityGrid(pc *pointcloud.PointCloud, resolution int) (*VoxelGrid, error) {
	if pc.Size() == 0 {
		return nil, errors.New("cannot build a density grid from an empty point cloud")
	}
	if resolution < 8 {
		return nil, errors.Errorf("grid resolution must be at least 8, got %d", resolution)
	}
	meta := pc.MetaData()
	extX := meta.MaxX - meta.MinX
	extY := meta.MaxY - meta.MinY
	extZ := meta.MaxZ - meta.MinZ
	maxExt := extX
	if extY > maxExt {
		maxExt = extY
	}
	if extZ > maxExt {
		maxExt = extZ
	}
	if maxExt <= 0 {
		return nil, errors.New("point cloud has no spatial extent")
	}
	cell := maxExt / float64(resolution-1)
	g := &VoxelGrid{
		nx:       int(extX/cell) + 4,
		ny:       int(extY/cell) + 4,
		nz:       int(extZ/cell) + 4,
		origin:   r3.Vector{X: meta.MinX - cell, Y: meta.MinY - cell, Z: meta.MinZ - cell},
		cellSize: cell,
	}
	g.values = make([]float64, g.nx*g.ny*g.nz)
	pc.Iterate(func(p r3.Vector, _ pointcloud.Data) bool {
		g.splat(p)
		return true
	})
	return g, nil
}

func (g *VoxelGrid) index(x, y, z int) int {
	return (z*g.ny+y)*g.nx + x
}

func (g *VoxelGrid) at(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= g.nx || y >= g.ny || z >= g.nz {
		return 0
	}
	return g.values[g.index(x, y, z)]
}

func (g *VoxelGrid) nodePosition(x, y, z int) r3.Vector {
	return r3.Vector{
		X: g.origin.X + float64(x)*g.cellSize,
		Y: g.origin.Y + float64(y)*g.cellSize,
		Z: g.origin.Z + float64(z)*g.cellSize,
	}
}

// splat distributes unit mass over the eight grid nodes surrounding p
// with trilinear weights.
func (g *VoxelGrid) splat(p r3.Vector) {
	fx := (p.X - g.origin.X) / g.cellSize
	fy := (p.Y - g.origin.Y) / g.cellSize
	fz := (p.Z - g.origin.Z) / g.cellSize
	x0, y0, z0 := int(fx), int(fy), int(fz)
	tx, ty, tz := fx-float64(x0), fy-float64(y0), fz-float64(z0)
	for dz := 0; dz <= 1; dz++ {
		for dy := 0; dy <= 1; dy++ {
			for dx := 0; dx <= 1; dx++ {
				x, y, z := x0+dx, y0+dy, z0+dz
				if x < 0 || y < 0 || z < 0 || x >= g.nx || y >= g.ny || z >= g.nz {
					continue
				}
				w := lerpWeight(tx, dx) * lerpWeight(ty, dy) * lerpWeight(tz, dz)
				g.values[g.index(x, y, z)] += w
			}
		}
	}
}

func lerpWeight(t float64, side int) float64 {
	if side == 0 {
		return 1 - t
	}
	return t
}

// Smooth applies passes of a 3x3x3 box blur to the grid.
func (g *VoxelGrid) Smooth(passes int) {
	for pass := 0; pass < passes; pass++ {
		out := make([]float64, len(g.values))
		for z := 0; z < g.nz; z++ {
			for y := 0; y < g.ny; y++ {
				for x := 0; x < g.nx; x++ {
					var sum float64
					var count int
					for dz := -1; dz <= 1; dz++ {
						for dy := -1; dy <= 1; dy++ {
							for dx := -1; dx <= 1; dx++ {
								xx, yy, zz := x+dx, y+dy, z+dz
								if xx < 0 || yy < 0 || zz < 0 || xx >= g.nx || yy >= g.ny || zz >= g.nz {
									continue
								}
								sum += g.values[g.index(xx, yy, zz)]
								count++
							}
						}
					}
					out[g.index(x, y, z)] = sum / float64(count)
				}
			}
		}
		g.values = out
	}
}

// MinMax returns the minimum and maximum grid values.
func (g *VoxelGrid) MinMax() (float64, float64) {
	minV, maxV := g.values[0], g.values[0]
	for _, v := range g.values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	return minV, maxV
}

// Interpolate returns the trilinearly interpolated grid value at p.
// Positions outside the grid read as zero density.
func (g *VoxelGrid) Interpolate(p r3.Vector) float64 {
	fx := (p.X - g.origin.X) / g.cellSize
	fy := (p.Y - g.origin.Y) / g.cellSize
	fz := (p.Z - g.origin.Z) / g.cellSize
	x0, y0, z0 := int(fx), int(fy), int(fz)
	tx, ty, tz := fx-float64(x0), fy-float64(y0), fz-float64(z0)
	var v float64
	for dz := 0; dz <= 1; dz++ {
		for dy := 0; dy <= 1; dy++ {
			for dx := 0; dx <= 1; dx++ {
				w := lerpWeight(tx, dx) * lerpWeight(ty, dy) * lerpWeight(tz, dz)
				v += w * g.at(x0+dx, y0+dy, z0+dz)
			}
		}
	}
	return v
}

// cube corner offsets in the Bourke ordering: 0-3 on the lower z face,
// 4-7 on the upper.
var cornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// cell edges as pairs of corner indices.
var edgeCorners = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

func interpolateVertex(iso float64, p1, p2 r3.Vector, v1, v2 float64) r3.Vector {
	if v2 == v1 {
		return p1.Add(p2.Sub(p1).Mul(0.5))
	}
	t := (iso - v1) / (v2 - v1)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return p1.Add(p2.Sub(p1).Mul(t))
}

// Polygonize extracts the iso-surface of the grid at the given level.
// The returned mesh has unwelded per-triangle vertices; run Cleanup to
// share them.
func (g *VoxelGrid) Polygonize(iso float64) *Mesh {
	m := New()
	var cornerVals [8]float64
	var cornerPos [8]r3.Vector
	var edgeVerts [12]r3.Vector
	for z := 0; z < g.nz-1; z++ {
		for y := 0; y < g.ny-1; y++ {
			for x := 0; x < g.nx-1; x++ {
				cubeIndex := 0
				for c := 0; c < 8; c++ {
					off := cornerOffsets[c]
					cornerVals[c] = g.at(x+off[0], y+off[1], z+off[2])
					cornerPos[c] = g.nodePosition(x+off[0], y+off[1], z+off[2])
					if cornerVals[c] < iso {
						cubeIndex |= 1 << c
					}
				}
				edges := edgeTable[cubeIndex]
				if edges == 0 {
					continue
				}
				for e := 0; e < 12; e++ {
					if edges&(1<<e) == 0 {
						continue
					}
					c0, c1 := edgeCorners[e][0], edgeCorners[e][1]
					edgeVerts[e] = interpolateVertex(iso, cornerPos[c0], cornerPos[c1], cornerVals[c0], cornerVals[c1])
				}
				tris := triTable[cubeIndex]
				for i := 0; tris[i] != -1; i += 3 {
					i0 := m.AddVertex(edgeVerts[tris[i]])
					i1 := m.AddVertex(edgeVerts[tris[i+1]])
					i2 := m.AddVertex(edgeVerts[tris[i+2]])
					m.AddTriangle(i0, i1, i2)
				}
			}
		}
	}
	return m
}

// ReconstructImplicit builds a cleaned triangle mesh from a filtered
// point cloud: splat into a density grid at the given resolution,
// smooth, polygonize at an adaptive iso-level, prune low-confidence
// vertices, and run the cleanup sequence.
func ReconstructImplicit(pc *pointcloud.PointCloud, resolution int, logger golog.Logger) (*Mesh, error) {
	grid, err := NewDensityGrid(pc, resolution)
	if err != nil {
		return nil, err
	}
	grid.Smooth(smoothingPasses)
	minV, maxV := grid.MinMax()
	if maxV <= minV {
		return nil, errors.New("density grid is constant, nothing to polygonize")
	}
	iso := minV + (maxV-minV)*isoLevelPercent
	logger.Debugf("polygonizing %dx%dx%d grid at iso-level %.4f", grid.nx, grid.ny, grid.nz, iso)

	m := grid.Polygonize(iso)
	if m.TriangleCount() == 0 {
		return nil, errors.New("surface extraction produced no triangles")
	}
	m.WeldVertices(weldEpsilon)

	if err := pruneLowConfidenceVertices(m, grid); err != nil {
		return nil, err
	}
	m.Cleanup()
	if m.TriangleCount() == 0 {
		return nil, errors.New("mesh is empty after cleanup")
	}
	logger.Debugf("reconstructed mesh with %d vertices, %d triangles", m.VertexCount(), m.TriangleCount())
	return m, nil
}

// pruneLowConfidenceVertices drops vertices whose interpolated grid
// density is below the confidence quantile, removing the triangles
// that touch them.
func pruneLowConfidenceVertices(m *Mesh, grid *VoxelGrid) error {
	verts := m.Vertices()
	if len(verts) == 0 {
		return nil
	}
	densities := make([]float64, len(verts))
	for i, v := range verts {
		densities[i] = grid.Interpolate(v)
	}
	sorted := make([]float64, len(densities))
	copy(sorted, densities)
	sort.Float64s(sorted)
	cutoff := stat.Quantile(vertexConfidenceQuantile, stat.Empirical, sorted, nil)

	drop := make([]bool, len(verts))
	anyKept := false
	for i := range densities {
		drop[i] = densities[i] < cutoff
		if !drop[i] {
			anyKept = true
		}
	}
	// degenerate distribution keeps everything
	if !anyKept {
		return nil
	}
	return m.RemoveVertices(drop)
}
