package sfm

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(MatchError, "too few pairs", "add overlap")
	test.That(t, err.Error(), test.ShouldEqual, "match error: too few pairs (add overlap)")

	noHint := NewError(InputError, "bad images", "")
	test.That(t, noHint.Error(), test.ShouldEqual, "input error: bad images")
}

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{
		KindUnknown:   "unknown",
		InputError:    "input",
		FeatureError:  "feature",
		MatchError:    "match",
		PoseError:     "pose",
		GeometryError: "geometry",
		MeshError:     "mesh",
		ExportError:   "export",
	}
	for k, s := range kinds {
		test.That(t, k.String(), test.ShouldEqual, s)
	}
}

func TestWrapErrorAndKindOf(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(ExportError, cause, "cannot write artifacts", "free up space")
	test.That(t, KindOf(err), test.ShouldEqual, ExportError)
	test.That(t, errors.Is(err, cause), test.ShouldBeTrue)
	test.That(t, err.Unwrap(), test.ShouldEqual, cause)

	// wrapping again still exposes the kind
	wrapped := errors.Wrap(err, "outer")
	test.That(t, KindOf(wrapped), test.ShouldEqual, ExportError)

	test.That(t, KindOf(errors.New("plain")), test.ShouldEqual, KindUnknown)
	test.That(t, KindOf(nil), test.ShouldEqual, KindUnknown)
}
