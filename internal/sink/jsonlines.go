package sink

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"netglobe/internal/logging"
	"netglobe/internal/models"

	"github.com/sirupsen/logrus"
)

// JSONLines appends one JSON object per event to a file.
type JSONLines struct {
	mu      sync.Mutex
	w       io.Writer
	closeFn func() error
	log     *logrus.Logger
}

// NewJSONLines opens path for appending. "-" writes to stdout.
func NewJSONLines(path string, log *logrus.Logger) (*JSONLines, error) {
	if log == nil {
		log = logging.GetLogger()
	}
	if path == "-" {
		return &JSONLines{w: os.Stdout, log: log}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLines{w: f, closeFn: f.Close, log: log}, nil
}

func (j *JSONLines) Emit(ev models.EnrichedEvent) {
	out, err := json.Marshal(ev)
	if err != nil {
		j.log.WithError(err).Warn("jsonl encode failed")
		return
	}
	out = append(out, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.w == nil {
		return
	}
	if _, err := j.w.Write(out); err != nil {
		j.log.WithError(err).Warn("jsonl write failed")
	}
}

func (j *JSONLines) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.w = nil
	if j.closeFn != nil {
		err := j.closeFn()
		j.closeFn = nil
		return err
	}
	return nil
}
