package pipeline

import "netwatch/pkg/models"

// ChangeWriter writes change events to an external sink.
type ChangeWriter interface {
	WriteChanges(events []models.ChangeEvent) error
	Close() error
}
