package sink

import (
	"database/sql"
	"time"

	"netglobe/internal/logging"
	"netglobe/internal/models"
	"netglobe/internal/ratelimit"
	"netglobe/internal/system"

	"github.com/sirupsen/logrus"
)

// History records events in the SQLite history table.
type History struct {
	db     *sql.DB
	log    *logrus.Logger
	errors *ratelimit.Counter
}

func NewHistory(db *sql.DB, log *logrus.Logger) *History {
	if log == nil {
		log = logging.GetLogger()
	}
	return &History{db: db, log: log, errors: ratelimit.NewCounter(time.Minute, nil)}
}

func (h *History) Emit(ev models.EnrichedEvent) {
	if err := system.InsertHistory(h.db, ev); err != nil {
		if n, ok := h.errors.Inc(); ok {
			h.log.WithError(err).WithField("total", n).Warn("history insert failed")
		}
	}
}
