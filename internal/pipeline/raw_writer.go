package pipeline

import "netwatch/pkg/models"

// RawWriter records each poll's raw tuples for replay.
type RawWriter interface {
	WriteFrames(frames []models.CaptureFrame) error
	Close() error
}
