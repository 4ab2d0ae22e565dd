package sfm

// State is the terminal state of a reconstruction run.
type State string

// Terminal states.
const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Warning records a recoverable problem encountered during a run: a
// skipped pair, a failed mesh, a missing artifact.
type Warning struct {
	Stage   Stage
	Message string
}

// Result summarizes a finished (or aborted) reconstruction.
type Result struct {
	State State
	// PointCount is the size of the filtered point cloud.
	PointCount int
	// MeshVertexCount and MeshTriangleCount are zero when no mesh was
	// built.
	MeshVertexCount   int
	MeshTriangleCount int
	// ArtifactPaths lists every file the run wrote, in write order.
	ArtifactPaths []string
	Warnings      []Warning
}
