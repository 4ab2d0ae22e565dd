// Package mesh builds a triangle mesh from a filtered point cloud by
// splatting points into a voxel density grid and polygonizing it with
// marching cubes, then cleans the result and writes PLY/OBJ/STL files.
package mesh

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Mesh is an indexed triangle mesh. Triangles index into the shared
// vertex slice; normals, when computed, are per-vertex.
type Mesh struct {
	vertices  []r3.Vector
	normals   []r3.Vector
	triangles [][3]int
}

// New returns an empty mesh.
func New() *Mesh {
	return &Mesh{}
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(v r3.Vector) int {
	m.vertices = append(m.vertices, v)
	return len(m.vertices) - 1
}

// AddTriangle appends a triangle referencing existing vertex indices.
func (m *Mesh) AddTriangle(i0, i1, i2 int) {
	m.triangles = append(m.triangles, [3]int{i0, i1, i2})
}

// VertexCount returns the number of vertices in the mesh.
func (m *Mesh) VertexCount() int {
	return len(m.vertices)
}

// TriangleCount returns the number of triangles in the mesh.
func (m *Mesh) TriangleCount() int {
	return len(m.triangles)
}

// Vertices returns the vertex slice, shared with the mesh.
func (m *Mesh) Vertices() []r3.Vector {
	return m.vertices
}

// Triangles returns the triangle index slice, shared with the mesh.
func (m *Mesh) Triangles() [][3]int {
	return m.triangles
}

// Normals returns the per-vertex normals. Empty until ComputeNormals
// has been called.
func (m *Mesh) Normals() []r3.Vector {
	return m.normals
}

// TriangleNormal returns the unnormalized face normal of triangle t.
func (m *Mesh) TriangleNormal(t [3]int) r3.Vector {
	e0 := m.vertices[t[1]].Sub(m.vertices[t[0]])
	e1 := m.vertices[t[2]].Sub(m.vertices[t[0]])
	return e0.Cross(e1)
}

// weldEpsilon is the quantization step used to merge coincident
// vertices produced by marching cubes on shared cell edges.
const weldEpsilon = 1e-7

type weldKey struct {
	x, y, z int64
}

func quantize(v r3.Vector, eps float64) weldKey {
	return weldKey{
		x: int64(math.Round(v.X / eps)),
		y: int64(math.Round(v.Y / eps)),
		z: int64(math.Round(v.Z / eps)),
	}
}

// WeldVertices merges vertices closer than eps and remaps the
// triangles. Normals are invalidated.
func (m *Mesh) WeldVertices(eps float64) {
	if eps <= 0 {
		eps = weldEpsilon
	}
	remap := make([]int, len(m.vertices))
	seen := make(map[weldKey]int, len(m.vertices))
	welded := make([]r3.Vector, 0, len(m.vertices))
	for i, v := range m.vertices {
		k := quantize(v, eps)
		if j, ok := seen[k]; ok {
			remap[i] = j
			continue
		}
		seen[k] = len(welded)
		remap[i] = len(welded)
		welded = append(welded, v)
	}
	for i := range m.triangles {
		m.triangles[i][0] = remap[m.triangles[i][0]]
		m.triangles[i][1] = remap[m.triangles[i][1]]
		m.triangles[i][2] = remap[m.triangles[i][2]]
	}
	m.vertices = welded
	m.normals = nil
}

// RemoveDegenerateTriangles drops triangles with a repeated vertex
// index or with (near) zero area.
func (m *Mesh) RemoveDegenerateTriangles() {
	kept := m.triangles[:0]
	for _, t := range m.triangles {
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			continue
		}
		if m.TriangleNormal(t).Norm() < 1e-14 {
			continue
		}
		kept = append(kept, t)
	}
	m.triangles = kept
}

// RemoveDuplicateTriangles drops triangles whose vertex index set has
// already been seen, regardless of winding.
func (m *Mesh) RemoveDuplicateTriangles() {
	seen := make(map[[3]int]bool, len(m.triangles))
	kept := m.triangles[:0]
	for _, t := range m.triangles {
		key := sortedTriangle(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, t)
	}
	m.triangles = kept
}

func sortedTriangle(t [3]int) [3]int {
	a, b, c := t[0], t[1], t[2]
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return [3]int{a, b, c}
}

type meshEdge struct {
	a, b int
}

func orderedEdge(a, b int) meshEdge {
	if a > b {
		a, b = b, a
	}
	return meshEdge{a, b}
}

// RemoveNonManifoldTriangles drops every triangle that touches an edge
// shared by more than two triangles.
func (m *Mesh) RemoveNonManifoldTriangles() {
	edgeUse := make(map[meshEdge]int, len(m.triangles)*3)
	for _, t := range m.triangles {
		edgeUse[orderedEdge(t[0], t[1])]++
		edgeUse[orderedEdge(t[1], t[2])]++
		edgeUse[orderedEdge(t[2], t[0])]++
	}
	kept := m.triangles[:0]
	for _, t := range m.triangles {
		if edgeUse[orderedEdge(t[0], t[1])] > 2 ||
			edgeUse[orderedEdge(t[1], t[2])] > 2 ||
			edgeUse[orderedEdge(t[2], t[0])] > 2 {
			continue
		}
		kept = append(kept, t)
	}
	m.triangles = kept
}

// RemoveUnreferencedVertices drops vertices no triangle references and
// remaps the triangle indices. Normals are invalidated.
func (m *Mesh) RemoveUnreferencedVertices() {
	used := make([]bool, len(m.vertices))
	for _, t := range m.triangles {
		used[t[0]] = true
		used[t[1]] = true
		used[t[2]] = true
	}
	remap := make([]int, len(m.vertices))
	kept := make([]r3.Vector, 0, len(m.vertices))
	for i, v := range m.vertices {
		if !used[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, v)
	}
	for i := range m.triangles {
		m.triangles[i][0] = remap[m.triangles[i][0]]
		m.triangles[i][1] = remap[m.triangles[i][1]]
		m.triangles[i][2] = remap[m.triangles[i][2]]
	}
	m.vertices = kept
	m.normals = nil
}

// ComputeNormals recomputes per-vertex normals as the area-weighted
// average of incident face normals.
func (m *Mesh) ComputeNormals() {
	m.normals = make([]r3.Vector, len(m.vertices))
	for _, t := range m.triangles {
		n := m.TriangleNormal(t)
		m.normals[t[0]] = m.normals[t[0]].Add(n)
		m.normals[t[1]] = m.normals[t[1]].Add(n)
		m.normals[t[2]] = m.normals[t[2]].Add(n)
	}
	for i, n := range m.normals {
		if norm := n.Norm(); norm > 1e-14 {
			m.normals[i] = n.Mul(1.0 / norm)
		} else {
			m.normals[i] = r3.Vector{Z: 1}
		}
	}
}

// Cleanup runs the full cleanup sequence: weld, drop degenerate and
// duplicate triangles, drop triangles on non-manifold edges, drop
// unreferenced vertices, recompute normals.
func (m *Mesh) Cleanup() {
	m.WeldVertices(weldEpsilon)
	m.RemoveDegenerateTriangles()
	m.RemoveDuplicateTriangles()
	m.RemoveNonManifoldTriangles()
	m.RemoveUnreferencedVertices()
	m.ComputeNormals()
}

// RemoveVertices drops the flagged vertices, every triangle touching
// them, and then any vertices left unreferenced. Normals are
// invalidated.
func (m *Mesh) RemoveVertices(drop []bool) error {
	if len(drop) != len(m.vertices) {
		return fmt.Errorf("drop mask has %d entries for %d vertices", len(drop), len(m.vertices))
	}
	kept := m.triangles[:0]
	for _, t := range m.triangles {
		if drop[t[0]] || drop[t[1]] || drop[t[2]] {
			continue
		}
		kept = append(kept, t)
	}
	m.triangles = kept
	m.RemoveUnreferencedVertices()
	return nil
}
