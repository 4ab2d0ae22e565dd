package mesh

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestAddAndQuery(t *testing.T) {
	m := New()
	test.That(t, m.VertexCount(), test.ShouldEqual, 0)
	test.That(t, m.TriangleCount(), test.ShouldEqual, 0)

	i0 := m.AddVertex(r3.Vector{X: 0, Y: 0, Z: 0})
	i1 := m.AddVertex(r3.Vector{X: 1, Y: 0, Z: 0})
	i2 := m.AddVertex(r3.Vector{X: 0, Y: 1, Z: 0})
	m.AddTriangle(i0, i1, i2)
	test.That(t, m.VertexCount(), test.ShouldEqual, 3)
	test.That(t, m.TriangleCount(), test.ShouldEqual, 1)

	n := m.TriangleNormal([3]int{i0, i1, i2})
	test.That(t, n.X, test.ShouldAlmostEqual, 0)
	test.That(t, n.Y, test.ShouldAlmostEqual, 0)
	test.That(t, n.Z, test.ShouldAlmostEqual, 1)
}

func TestWeldVertices(t *testing.T) {
	m := New()
	a := m.AddVertex(r3.Vector{X: 0, Y: 0, Z: 0})
	b := m.AddVertex(r3.Vector{X: 1, Y: 0, Z: 0})
	c := m.AddVertex(r3.Vector{X: 0, Y: 1, Z: 0})
	// coincident with a up to well below the weld epsilon
	aDup := m.AddVertex(r3.Vector{X: 1e-10, Y: 0, Z: 0})
	d := m.AddVertex(r3.Vector{X: 1, Y: 1, Z: 0})
	m.AddTriangle(a, b, c)
	m.AddTriangle(aDup, b, d)

	m.WeldVertices(0)
	test.That(t, m.VertexCount(), test.ShouldEqual, 4)
	test.That(t, m.TriangleCount(), test.ShouldEqual, 2)
	// both triangles now share the welded vertex
	test.That(t, m.Triangles()[1][0], test.ShouldEqual, m.Triangles()[0][0])
}

func TestRemoveDegenerateTriangles(t *testing.T) {
	m := New()
	a := m.AddVertex(r3.Vector{X: 0, Y: 0, Z: 0})
	b := m.AddVertex(r3.Vector{X: 1, Y: 0, Z: 0})
	c := m.AddVertex(r3.Vector{X: 0, Y: 1, Z: 0})
	// colinear with a and b
	d := m.AddVertex(r3.Vector{X: 2, Y: 0, Z: 0})
	m.AddTriangle(a, b, c)
	m.AddTriangle(a, a, b)
	m.AddTriangle(a, b, d)

	m.RemoveDegenerateTriangles()
	test.That(t, m.TriangleCount(), test.ShouldEqual, 1)
	test.That(t, m.Triangles()[0], test.ShouldResemble, [3]int{a, b, c})
}

func TestRemoveDuplicateTriangles(t *testing.T) {
	m := New()
	a := m.AddVertex(r3.Vector{X: 0, Y: 0, Z: 0})
	b := m.AddVertex(r3.Vector{X: 1, Y: 0, Z: 0})
	c := m.AddVertex(r3.Vector{X: 0, Y: 1, Z: 0})
	m.AddTriangle(a, b, c)
	// same index set, different winding
	m.AddTriangle(c, b, a)
	m.AddTriangle(b, c, a)

	m.RemoveDuplicateTriangles()
	test.That(t, m.TriangleCount(), test.ShouldEqual, 1)
}

func TestRemoveNonManifoldTriangles(t *testing.T) {
	m := New()
	a := m.AddVertex(r3.Vector{X: 0, Y: 0, Z: 0})
	b := m.AddVertex(r3.Vector{X: 1, Y: 0, Z: 0})
	c := m.AddVertex(r3.Vector{X: 0, Y: 1, Z: 0})
	d := m.AddVertex(r3.Vector{X: 0, Y: 0, Z: 1})
	e := m.AddVertex(r3.Vector{X: 0, Y: -1, Z: 0})
	// edge (a, b) is used by three triangles
	m.AddTriangle(a, b, c)
	m.AddTriangle(a, b, d)
	m.AddTriangle(a, b, e)
	// a clean triangle away from the bad edge
	m.AddTriangle(c, d, e)

	m.RemoveNonManifoldTriangles()
	test.That(t, m.TriangleCount(), test.ShouldEqual, 1)
	test.That(t, m.Triangles()[0], test.ShouldResemble, [3]int{c, d, e})
}

func TestRemoveUnreferencedVertices(t *testing.T) {
	m := New()
	m.AddVertex(r3.Vector{X: 9, Y: 9, Z: 9}) // unreferenced
	a := m.AddVertex(r3.Vector{X: 0, Y: 0, Z: 0})
	b := m.AddVertex(r3.Vector{X: 1, Y: 0, Z: 0})
	c := m.AddVertex(r3.Vector{X: 0, Y: 1, Z: 0})
	m.AddTriangle(a, b, c)

	m.RemoveUnreferencedVertices()
	test.That(t, m.VertexCount(), test.ShouldEqual, 3)
	test.That(t, m.Triangles()[0], test.ShouldResemble, [3]int{0, 1, 2})
	test.That(t, m.Vertices()[0], test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: 0})
}

func TestComputeNormals(t *testing.T) {
	m := New()
	a := m.AddVertex(r3.Vector{X: 0, Y: 0, Z: 0})
	b := m.AddVertex(r3.Vector{X: 1, Y: 0, Z: 0})
	c := m.AddVertex(r3.Vector{X: 0, Y: 1, Z: 0})
	m.AddVertex(r3.Vector{X: 5, Y: 5, Z: 5}) // isolated vertex gets the fallback normal
	m.AddTriangle(a, b, c)

	m.ComputeNormals()
	normals := m.Normals()
	test.That(t, len(normals), test.ShouldEqual, m.VertexCount())
	for i := 0; i < 3; i++ {
		test.That(t, normals[i].Z, test.ShouldAlmostEqual, 1)
		test.That(t, normals[i].Norm(), test.ShouldAlmostEqual, 1)
	}
	test.That(t, normals[3], test.ShouldResemble, r3.Vector{Z: 1})
}

func TestRemoveVertices(t *testing.T) {
	m := New()
	a := m.AddVertex(r3.Vector{X: 0, Y: 0, Z: 0})
	b := m.AddVertex(r3.Vector{X: 1, Y: 0, Z: 0})
	c := m.AddVertex(r3.Vector{X: 0, Y: 1, Z: 0})
	d := m.AddVertex(r3.Vector{X: 1, Y: 1, Z: 0})
	m.AddTriangle(a, b, c)
	m.AddTriangle(b, d, c)

	test.That(t, m.RemoveVertices([]bool{true}), test.ShouldNotBeNil)

	drop := make([]bool, 4)
	drop[d] = true
	test.That(t, m.RemoveVertices(drop), test.ShouldBeNil)
	test.That(t, m.TriangleCount(), test.ShouldEqual, 1)
	test.That(t, m.VertexCount(), test.ShouldEqual, 3)
}

func TestCleanup(t *testing.T) {
	m := New()
	a := m.AddVertex(r3.Vector{X: 0, Y: 0, Z: 0})
	b := m.AddVertex(r3.Vector{X: 1, Y: 0, Z: 0})
	c := m.AddVertex(r3.Vector{X: 0, Y: 1, Z: 0})
	cDup := m.AddVertex(r3.Vector{X: 0, Y: 1, Z: 0})
	m.AddVertex(r3.Vector{X: 7, Y: 7, Z: 7}) // never referenced
	m.AddTriangle(a, b, c)
	m.AddTriangle(a, b, cDup) // duplicate after welding
	m.AddTriangle(a, a, b)    // degenerate

	m.Cleanup()
	test.That(t, m.TriangleCount(), test.ShouldEqual, 1)
	test.That(t, m.VertexCount(), test.ShouldEqual, 3)
	test.That(t, len(m.Normals()), test.ShouldEqual, 3)
	for _, tri := range m.Triangles() {
		for _, idx := range tri {
			test.That(t, idx, test.ShouldBeGreaterThanOrEqualTo, 0)
			test.That(t, idx, test.ShouldBeLessThan, m.VertexCount())
		}
	}
}
