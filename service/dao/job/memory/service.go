package memory

import (
	"github.com/viant/taskd/model/job"
	"github.com/viant/taskd/service/dao"
	"github.com/viant/taskd/service/dao/store"
)

// Service implements an in-memory job storage. All operations are
// thread-safe and return copies of the stored jobs.
type Service struct {
	*store.MemoryStore[string, job.Job]
}

// Compile-time check that Service implements the generic DAO interface.
var _ dao.Service[string, job.Job] = (*Service)(nil)

// New constructor.
func New() *Service {
	return &Service{
		MemoryStore: store.NewMemoryStore[string, job.Job](
			func(j *job.Job) string { return j.ID },
			(*job.Job).Clone,
			(*job.Job).Field,
		),
	}
}
