package sfm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies pipeline failures so callers can decide between
// retrying with different settings and fixing their input.
type Kind int

const (
	// KindUnknown is the zero Kind.
	KindUnknown Kind = iota
	// InputError: the image set cannot be used (too few images, unreadable
	// files, inconsistent dimensions).
	InputError
	// FeatureError: feature extraction failed or found too little texture.
	FeatureError
	// MatchError: too few image pairs shared enough correspondences.
	MatchError
	// PoseError: camera poses could not be chained across the capture.
	PoseError
	// GeometryError: too few 3D points survived triangulation and filtering.
	GeometryError
	// MeshError: surface reconstruction failed; the point cloud still stands.
	MeshError
	// ExportError: an artifact could not be written.
	ExportError
)

func (k Kind) String() string {
	switch k {
	case InputError:
		return "input"
	case FeatureError:
		return "feature"
	case MatchError:
		return "match"
	case PoseError:
		return "pose"
	case GeometryError:
		return "geometry"
	case MeshError:
		return "mesh"
	case ExportError:
		return "export"
	case KindUnknown:
		fallthrough
	default:
		return "unknown"
	}
}

// Error is a structured pipeline failure: a Kind for programmatic
// handling, a message for the log, and a hint telling the user what to
// try next.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	cause   error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s error: %s (%s)", e.Kind, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError returns a structured pipeline error.
func NewError(kind Kind, message, hint string) *Error {
	return &Error{Kind: kind, Message: message, Hint: hint}
}

// WrapError annotates an underlying error with a Kind and hint.
func WrapError(kind Kind, cause error, message, hint string) *Error {
	return &Error{Kind: kind, Message: message, Hint: hint, cause: cause}
}

// KindOf extracts the Kind of an error produced by the pipeline, or
// KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
