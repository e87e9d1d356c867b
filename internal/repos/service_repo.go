package repos

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/store"
)

type serviceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewServiceRepo(db *gorm.DB, baseLog *logger.Logger) store.ServiceStore {
	return &serviceRepo{db: db, log: baseLog.With("repo", "ServiceRepo")}
}

func (r *serviceRepo) Upsert(dbc dbctx.Context, s *domain.ServiceRegistration) (*domain.ServiceRegistration, error) {
	tx := dbc.Resolve(r.db)
	var existing domain.ServiceRegistration
	err := tx.Where("service_type = ? AND host = ?", s.ServiceType, s.Host).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.ServiceState = domain.ServiceStateNormal
		s.StateChanged = time.Now()
		s.UpdatedAt = time.Now()
		if err := tx.Create(s).Error; err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, err
	}
	s.ID = existing.ID
	s.ServiceState = existing.ServiceState
	s.StateChanged = existing.StateChanged
	s.WarningStateTrigger = existing.WarningStateTrigger
	s.ErrorStateTrigger = existing.ErrorStateTrigger
	s.Active = existing.Active
	if err := tx.Model(&domain.ServiceRegistration{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
		"path":             s.Path,
		"host_registration_id": s.HostRegistrationID,
		"is_job_producer":  s.IsJobProducer,
		"online":           true,
		"updated_at":       time.Now(),
	}).Error; err != nil {
		return nil, err
	}
	s.Online = true
	return s, nil
}

func (r *serviceRepo) Get(dbc dbctx.Context, serviceType, host string) (*domain.ServiceRegistration, error) {
	tx := dbc.Resolve(r.db)
	var s domain.ServiceRegistration
	err := tx.Where("service_type = ? AND host = ?", serviceType, host).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *serviceRepo) GetByID(dbc dbctx.Context, id int64) (*domain.ServiceRegistration, error) {
	tx := dbc.Resolve(r.db)
	var s domain.ServiceRegistration
	err := tx.Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *serviceRepo) GetAll(dbc dbctx.Context) ([]*domain.ServiceRegistration, error) {
	tx := dbc.Resolve(r.db)
	var out []*domain.ServiceRegistration
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *serviceRepo) GetAllOnline(dbc dbctx.Context) ([]*domain.ServiceRegistration, error) {
	tx := dbc.Resolve(r.db)
	var out []*domain.ServiceRegistration
	if err := tx.Where("online = ?", true).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *serviceRepo) GetByType(dbc dbctx.Context, serviceType string) ([]*domain.ServiceRegistration, error) {
	tx := dbc.Resolve(r.db)
	var out []*domain.ServiceRegistration
	if err := tx.Where("service_type = ?", serviceType).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *serviceRepo) GetByHost(dbc dbctx.Context, host string) ([]*domain.ServiceRegistration, error) {
	tx := dbc.Resolve(r.db)
	var out []*domain.ServiceRegistration
	if err := tx.Where("host = ?", host).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *serviceRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	tx := dbc.Resolve(r.db)
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return tx.Model(&domain.ServiceRegistration{}).Where("id = ?", id).Updates(updates).Error
}

// RelatedWarningOrError never returns nil (spec §9(b)): the original
// returns null on no-result, which would crash a downstream .size() call;
// this always returns a (possibly empty) slice.
func (r *serviceRepo) RelatedWarningOrError(dbc dbctx.Context, jobType string, signature int64, excludeID int64) ([]*domain.ServiceRegistration, error) {
	tx := dbc.Resolve(r.db)
	out := []*domain.ServiceRegistration{}
	err := tx.Where(
		"service_type = ? AND id <> ? AND service_state IN ? AND (warning_state_trigger = ? OR error_state_trigger = ?)",
		jobType, excludeID,
		[]domain.ServiceState{domain.ServiceStateWarning, domain.ServiceStateError},
		signature, signature,
	).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *serviceRepo) CountFailedHistory(dbc dbctx.Context, serviceType, host string) (int64, error) {
	tx := dbc.Resolve(r.db)
	var count int64
	err := tx.Table("job").
		Joins("JOIN service_registration sr ON sr.id = job.processor_service_registration_id").
		Where("sr.service_type = ? AND sr.host = ? AND job.status = ?", serviceType, host, domain.JobFailed).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
