package pointcloud

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// formatCoord prints a coordinate with the fewest digits that still parse
// back to the identical float64, so ASCII output round-trips exactly.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ToPLY writes the cloud as an ASCII PLY file: float positions and, when the
// cloud is colored, uchar RGB per vertex.
func ToPLY(cloud *PointCloud, out io.Writer) error {
	w := bufio.NewWriter(out)
	hasColor := cloud.MetaData().HasColor
	if _, err := fmt.Fprintf(w, "ply\nformat ascii 1.0\nelement vertex %d\n", cloud.Size()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "property float x\nproperty float y\nproperty float z\n"); err != nil {
		return err
	}
	if hasColor {
		if _, err := fmt.Fprintf(w, "property uchar red\nproperty uchar green\nproperty uchar blue\n"); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "end_header\n"); err != nil {
		return err
	}
	var writeErr error
	cloud.Iterate(func(p r3.Vector, d Data) bool {
		if hasColor {
			r, g, b := uint8(255), uint8(255), uint8(255)
			if d != nil && d.HasColor() {
				r, g, b = d.RGB255()
			}
			_, writeErr = fmt.Fprintf(w, "%s %s %s %d %d %d\n",
				formatCoord(p.X), formatCoord(p.Y), formatCoord(p.Z), r, g, b)
		} else {
			_, writeErr = fmt.Fprintf(w, "%s %s %s\n", formatCoord(p.X), formatCoord(p.Y), formatCoord(p.Z))
		}
		return writeErr == nil
	})
	if writeErr != nil {
		return writeErr
	}
	return w.Flush()
}

// WriteToPLYFile writes the cloud to a PLY file at the given path.
func WriteToPLYFile(cloud *PointCloud, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ToPLY(cloud, f)
}

type plyHeader struct {
	vertexCount int
	hasColor    bool
}

func parsePLYHeader(in *bufio.Reader) (*plyHeader, error) {
	line, err := in.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(line) != "ply" {
		return nil, errors.New("not a ply file")
	}
	header := &plyHeader{vertexCount: -1}
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "unexpected end of ply header")
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "end_header":
			if header.vertexCount < 0 {
				return nil, errors.New("ply header is missing the vertex element")
			}
			return header, nil
		case strings.HasPrefix(line, "format "):
			if line != "format ascii 1.0" {
				return nil, errors.Errorf("unsupported ply format %q", line)
			}
		case strings.HasPrefix(line, "element vertex "):
			n, err := strconv.Atoi(strings.TrimPrefix(line, "element vertex "))
			if err != nil {
				return nil, errors.Wrap(err, "invalid vertex count")
			}
			header.vertexCount = n
		case strings.HasPrefix(line, "property uchar red"):
			header.hasColor = true
		}
	}
}

// ReadPLY reads an ASCII point cloud PLY written by ToPLY back into a
// PointCloud.
func ReadPLY(in io.Reader) (*PointCloud, error) {
	reader := bufio.NewReader(in)
	header, err := parsePLYHeader(reader)
	if err != nil {
		return nil, err
	}
	expected := 3
	if header.hasColor {
		expected = 6
	}
	pc := NewWithPrealloc(header.vertexCount)
	for i := 0; i < header.vertexCount; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading vertex %d", i)
		}
		tokens := strings.Fields(strings.TrimSpace(line))
		if len(tokens) < expected {
			return nil, errors.Errorf("vertex %d has %d fields, expected %d", i, len(tokens), expected)
		}
		coords := make([]float64, 3)
		for j := 0; j < 3; j++ {
			coords[j], err = strconv.ParseFloat(tokens[j], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid coordinate in vertex %d", i)
			}
		}
		var d Data
		if header.hasColor {
			channels := make([]uint8, 3)
			for j := 0; j < 3; j++ {
				c, err := strconv.ParseUint(tokens[3+j], 10, 8)
				if err != nil {
					return nil, errors.Wrapf(err, "invalid color in vertex %d", i)
				}
				channels[j] = uint8(c)
			}
			d = NewColoredData(color.NRGBA{R: channels[0], G: channels[1], B: channels[2], A: 255})
		} else {
			d = NewBasicData()
		}
		pc.Append(r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]}, d)
	}
	return pc, nil
}

// NewFromPLYFile reads a point cloud from a PLY file at the given path.
func NewFromPLYFile(path string) (*PointCloud, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadPLY(f)
}
