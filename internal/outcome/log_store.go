package outcome

import (
	"context"

	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// LogStore records outcomes in the log only. Used when no database is configured.
type LogStore struct {
	logger *logging.Logger
}

func NewLogStore(logger *logging.Logger) *LogStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogStore{logger: logger}
}

func (s *LogStore) UpdateStatus(_ context.Context, recordID string, u Update) error {
	s.logger.Info("outcome recorded (no database)",
		"record_id", recordID,
		"status", string(u.Status),
		"category", u.Category,
		"note", u.Note,
	)
	return nil
}
