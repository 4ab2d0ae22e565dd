package mesh

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/multierr"
)

// ToPLY writes the mesh as an ASCII PLY file with per-vertex normals
// and triangle faces.
func ToPLY(m *Mesh, out io.Writer) error {
	w := bufio.NewWriter(out)
	if len(m.normals) != len(m.vertices) {
		m.ComputeNormals()
	}
	if _, err := fmt.Fprintf(w, "ply\nformat ascii 1.0\nelement vertex %d\n", m.VertexCount()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "property float x\nproperty float y\nproperty float z\n"+
		"property float nx\nproperty float ny\nproperty float nz\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "element face %d\nproperty list uchar int vertex_indices\nend_header\n",
		m.TriangleCount()); err != nil {
		return err
	}
	for i, v := range m.vertices {
		n := m.normals[i]
		if _, err := fmt.Fprintf(w, "%f %f %f %f %f %f\n", v.X, v.Y, v.Z, n.X, n.Y, n.Z); err != nil {
			return err
		}
	}
	for _, t := range m.triangles {
		if _, err := fmt.Fprintf(w, "3 %d %d %d\n", t[0], t[1], t[2]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ToOBJ writes the mesh in Wavefront OBJ format. OBJ indices are
// 1-based.
func ToOBJ(m *Mesh, out io.Writer) error {
	w := bufio.NewWriter(out)
	if len(m.normals) != len(m.vertices) {
		m.ComputeNormals()
	}
	for _, v := range m.vertices {
		if _, err := fmt.Fprintf(w, "v %f %f %f\n", v.X, v.Y, v.Z); err != nil {
			return err
		}
	}
	for _, n := range m.normals {
		if _, err := fmt.Fprintf(w, "vn %f %f %f\n", n.X, n.Y, n.Z); err != nil {
			return err
		}
	}
	for _, t := range m.triangles {
		if _, err := fmt.Fprintf(w, "f %d//%d %d//%d %d//%d\n",
			t[0]+1, t[0]+1, t[1]+1, t[1]+1, t[2]+1, t[2]+1); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ToSTL writes the mesh in binary STL: an 80-byte header, a uint32
// triangle count, then per triangle a float32 normal, three float32
// vertices, and a zero attribute word.
func ToSTL(m *Mesh, out io.Writer) error {
	w := bufio.NewWriter(out)
	header := make([]byte, 80)
	copy(header, []byte("binary STL"))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(m.TriangleCount())); err != nil {
		return err
	}
	buf := make([]byte, 50)
	for _, t := range m.triangles {
		n := m.TriangleNormal(t)
		if norm := n.Norm(); norm > 1e-14 {
			n = n.Mul(1.0 / norm)
		}
		off := 0
		for _, f := range []float64{n.X, n.Y, n.Z} {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(f)))
			off += 4
		}
		for _, vi := range t {
			v := m.vertices[vi]
			for _, f := range []float64{v.X, v.Y, v.Z} {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(f)))
				off += 4
			}
		}
		binary.LittleEndian.PutUint16(buf[off:], 0)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteToPLYFile writes the mesh to a PLY file at the given path.
func WriteToPLYFile(m *Mesh, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ToPLY(m, f)
}

// WriteToOBJFile writes the mesh to an OBJ file at the given path.
func WriteToOBJFile(m *Mesh, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ToOBJ(m, f)
}

// WriteToSTLFile writes the mesh to a binary STL file at the given path.
func WriteToSTLFile(m *Mesh, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ToSTL(m, f)
}
