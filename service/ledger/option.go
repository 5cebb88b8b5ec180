package ledger

import (
	"log/slog"

	"github.com/viant/taskd/model/job"
	"github.com/viant/taskd/service/dao"
)

// Option customises the ledger
type Option func(*Service)

// WithDAO sets the job storage
func WithDAO(dao dao.Service[string, job.Job]) Option {
	return func(s *Service) {
		s.dao = dao
	}
}

// WithFinishedToKeep caps terminal jobs per project; n <= 0 keeps everything
func WithFinishedToKeep(n int) Option {
	return func(s *Service) {
		s.finishedToKeep = n
	}
}

// WithObserver registers a change observer
func WithObserver(observer Observer) Option {
	return func(s *Service) {
		if observer != nil {
			s.observers = append(s.observers, observer)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
