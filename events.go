package sfm

import "github.com/edaniels/golog"

// Stage names one phase of the pipeline state machine.
type Stage string

// The pipeline stages, in execution order.
const (
	StageLoading            Stage = "loading"
	StageExtractingFeatures Stage = "extracting_features"
	StageMatching           Stage = "matching"
	StageEstimatingPoses    Stage = "estimating_poses"
	StageTriangulating      Stage = "triangulating"
	StageFiltering          Stage = "filtering"
	StageMeshing            Stage = "meshing"
	StageExporting          Stage = "exporting"
)

// EventSink receives coarse progress events while a reconstruction
// runs. Implementations must be safe for use from the pipeline
// goroutine only; the pipeline never calls a sink concurrently.
type EventSink interface {
	StageStarted(stage Stage)
	Progress(percent int, message string)
	Warning(w Warning)
	StageCompleted(stage Stage)
}

// logSink reports events through a logger.
type logSink struct {
	logger golog.Logger
}

// NewLogSink returns an EventSink that writes every event to the given
// logger. It is the default sink when callers pass nil.
func NewLogSink(logger golog.Logger) EventSink {
	return &logSink{logger: logger}
}

func (s *logSink) StageStarted(stage Stage) {
	s.logger.Infof("stage started: %s", stage)
}

func (s *logSink) Progress(percent int, message string) {
	s.logger.Infof("progress %d%%: %s", percent, message)
}

func (s *logSink) Warning(w Warning) {
	s.logger.Warnf("[%s] %s", w.Stage, w.Message)
}

func (s *logSink) StageCompleted(stage Stage) {
	s.logger.Infof("stage completed: %s", stage)
}
