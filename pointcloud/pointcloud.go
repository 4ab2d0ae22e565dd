// Package pointcloud defines the point cloud container used by the
// reconstruction pipeline, its statistical outlier filter, and PLY/PCD
// serialization.
package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
)

// NewVector is a convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Data describes the payload associated with a single point: an optional
// color and an optional provenance value (the index of the image pair whose
// triangulation produced the point).
type Data interface {
	// HasColor returns whether or not this point is colored.
	HasColor() bool
	// RGB255 returns, if colored, the RGB components of the color.
	RGB255() (uint8, uint8, uint8)
	// Color returns the native color of the point.
	Color() color.Color
	// HasValue returns whether or not this point has a provenance value.
	HasValue() bool
	// Value returns the provenance value, if it exists.
	Value() int
}

type basicData struct {
	hasColor bool
	c        color.NRGBA

	hasValue bool
	value    int
}

// NewBasicData returns a point payload with no color or value.
func NewBasicData() Data {
	return &basicData{}
}

// NewColoredData returns a point payload with the given color.
func NewColoredData(c color.NRGBA) Data {
	return &basicData{c: c, hasColor: true}
}

// NewColoredValueData returns a point payload with a color and a provenance
// value.
func NewColoredValueData(c color.NRGBA, v int) Data {
	return &basicData{c: c, hasColor: true, value: v, hasValue: true}
}

func (bp *basicData) HasColor() bool {
	return bp.hasColor
}

func (bp *basicData) RGB255() (uint8, uint8, uint8) {
	return bp.c.R, bp.c.G, bp.c.B
}

func (bp *basicData) Color() color.Color {
	return &bp.c
}

func (bp *basicData) HasValue() bool {
	return bp.hasValue
}

func (bp *basicData) Value() int {
	return bp.value
}

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	HasColor bool
	HasValue bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData returns a new MetaData ready to be merged into.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the metadata with the given point.
func (meta *MetaData) Merge(v r3.Vector, data Data) {
	if data != nil {
		if data.HasColor() {
			meta.HasColor = true
		}
		if data.HasValue() {
			meta.HasValue = true
		}
	}
	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}
	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
}

// PointCloud is an ordered, append-only collection of points. Triangulation
// appends to it incrementally; afterwards it is read-only.
type PointCloud struct {
	points []r3.Vector
	data   []Data
	meta   MetaData
}

// New returns an empty point cloud.
func New() *PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty point cloud with capacity for n points.
func NewWithPrealloc(n int) *PointCloud {
	return &PointCloud{
		points: make([]r3.Vector, 0, n),
		data:   make([]Data, 0, n),
		meta:   NewMetaData(),
	}
}

// Size returns the number of points in the cloud.
func (pc *PointCloud) Size() int {
	return len(pc.points)
}

// MetaData returns the cloud metadata.
func (pc *PointCloud) MetaData() MetaData {
	return pc.meta
}

// Append adds a point with its payload to the cloud.
func (pc *PointCloud) Append(p r3.Vector, d Data) {
	pc.points = append(pc.points, p)
	pc.data = append(pc.data, d)
	pc.meta.Merge(p, d)
}

// At returns the i-th point and its payload.
func (pc *PointCloud) At(i int) (r3.Vector, Data) {
	return pc.points[i], pc.data[i]
}

// Iterate iterates over all points in the cloud and calls the given function
// for each one. If the supplied function returns false, iteration stops.
func (pc *PointCloud) Iterate(fn func(p r3.Vector, d Data) bool) {
	for i := range pc.points {
		if !fn(pc.points[i], pc.data[i]) {
			return
		}
	}
}

// Positions returns the raw position slice. The slice is shared with the
// cloud and must not be mutated.
func (pc *PointCloud) Positions() []r3.Vector {
	return pc.points
}
