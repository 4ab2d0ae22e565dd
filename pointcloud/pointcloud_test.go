package pointcloud

import (
	"image/color"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()
	test.That(t, pc.Size(), test.ShouldEqual, 0)

	pc.Append(NewVector(1, 2, 3), NewBasicData())
	pc.Append(NewVector(-1, 0, 5), NewColoredData(color.NRGBA{R: 10, G: 20, B: 30, A: 255}))
	test.That(t, pc.Size(), test.ShouldEqual, 2)

	p, d := pc.At(0)
	test.That(t, p, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, d.HasColor(), test.ShouldBeFalse)

	_, d = pc.At(1)
	test.That(t, d.HasColor(), test.ShouldBeTrue)
	r, g, b := d.RGB255()
	test.That(t, r, test.ShouldEqual, uint8(10))
	test.That(t, g, test.ShouldEqual, uint8(20))
	test.That(t, b, test.ShouldEqual, uint8(30))

	meta := pc.MetaData()
	test.That(t, meta.HasColor, test.ShouldBeTrue)
	test.That(t, meta.HasValue, test.ShouldBeFalse)
	test.That(t, meta.MinX, test.ShouldEqual, -1)
	test.That(t, meta.MaxX, test.ShouldEqual, 1)
	test.That(t, meta.MinZ, test.ShouldEqual, 3)
	test.That(t, meta.MaxZ, test.ShouldEqual, 5)

	count := 0
	pc.Iterate(func(_ r3.Vector, _ Data) bool {
		count++
		return count < 1
	})
	test.That(t, count, test.ShouldEqual, 1)
}

func TestColoredValueData(t *testing.T) {
	d := NewColoredValueData(color.NRGBA{R: 1, G: 2, B: 3, A: 255}, 7)
	test.That(t, d.HasColor(), test.ShouldBeTrue)
	test.That(t, d.HasValue(), test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 7)

	pc := New()
	pc.Append(NewVector(0, 0, 0), d)
	test.That(t, pc.MetaData().HasValue, test.ShouldBeTrue)
}

func TestCentroid(t *testing.T) {
	_, err := Centroid(New())
	test.That(t, err, test.ShouldNotBeNil)

	pc := New()
	pc.Append(NewVector(0, 0, 0), NewBasicData())
	pc.Append(NewVector(1, 2, 4), NewBasicData())
	pc.Append(NewVector(2, 4, 8), NewBasicData())
	// one far outlier must not move the median
	pc.Append(NewVector(1000, 1000, 1000), NewBasicData())
	center, err := Centroid(pc)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, center.X, test.ShouldAlmostEqual, 1.5)
	test.That(t, center.Y, test.ShouldAlmostEqual, 3)
	test.That(t, center.Z, test.ShouldAlmostEqual, 6)
}

func TestStatisticalOutlierFilter(t *testing.T) {
	_, err := StatisticalOutlierFilter(New(), 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = StatisticalOutlierFilter(New(), 1.5)
	test.That(t, err, test.ShouldNotBeNil)

	empty, err := StatisticalOutlierFilter(New(), 0.98)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Size(), test.ShouldEqual, 0)

	// a dense unit cluster with a handful of far outliers
	r := rand.New(rand.NewSource(11))
	pc := New()
	for i := 0; i < 200; i++ {
		pc.Append(NewVector(r.Float64(), r.Float64(), r.Float64()), NewBasicData())
	}
	for i := 0; i < 5; i++ {
		pc.Append(NewVector(100+float64(i), 100, 100), NewBasicData())
	}
	filtered, err := StatisticalOutlierFilter(pc, 0.95)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filtered.Size(), test.ShouldBeLessThan, pc.Size())
	center, err := Centroid(filtered)
	test.That(t, err, test.ShouldBeNil)
	// every far outlier is gone
	filtered.Iterate(func(p r3.Vector, _ Data) bool {
		test.That(t, p.Sub(center).Norm(), test.ShouldBeLessThan, 2)
		return true
	})

	// a degenerate cloud (all points identical) survives untouched
	same := New()
	for i := 0; i < 10; i++ {
		same.Append(NewVector(1, 1, 1), NewBasicData())
	}
	kept, err := StatisticalOutlierFilter(same, 0.98)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kept.Size(), test.ShouldEqual, 10)
}
