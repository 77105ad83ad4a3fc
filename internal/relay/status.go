package relay

import (
	"relaygent/internal/logging"
	"relaygent/internal/store"
)

// Coarse statuses published for external dashboards.
const (
	StatusWorking  = "working"
	StatusSleeping = "sleeping"
	StatusCrashed  = "crashed"
	StatusOff      = "off"
)

// StatusSink receives coarse harness status changes. Reporting is always
// best-effort; implementations must never fail the caller.
type StatusSink interface {
	Report(status string)
}

type nopStatus struct{}

func (nopStatus) Report(string) {}

func NopStatus() StatusSink {
	return nopStatus{}
}

type fileStatus struct {
	path   string
	logger logging.Logger
}

// NewFileStatus writes each status atomically to path so dashboard readers
// never observe a partial write.
func NewFileStatus(path string, logger logging.Logger) StatusSink {
	if logger == nil {
		logger = logging.Nop()
	}
	return &fileStatus{path: path, logger: logger}
}

func (s *fileStatus) Report(status string) {
	if err := store.WriteFileAtomic(s.path, []byte(status+"\n")); err != nil {
		s.logger.Warn("status write failed", logging.F("error", err))
	}
}
