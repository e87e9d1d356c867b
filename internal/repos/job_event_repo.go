package repos

import (
	"gorm.io/gorm"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/store"
)

type jobEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobEventRepo(db *gorm.DB, baseLog *logger.Logger) store.JobEventStore {
	return &jobEventRepo{db: db, log: baseLog.With("repo", "JobEventRepo")}
}

func (r *jobEventRepo) Append(dbc dbctx.Context, e *domain.JobEvent) error {
	tx := dbc.Resolve(r.db)
	return tx.Create(e).Error
}

func (r *jobEventRepo) ForJob(dbc dbctx.Context, jobID int64) ([]*domain.JobEvent, error) {
	tx := dbc.Resolve(r.db)
	out := []*domain.JobEvent{}
	err := tx.Where("job_id = ?", jobID).Order("created_at ASC").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
