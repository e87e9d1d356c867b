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

type hostRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHostRepo(db *gorm.DB, baseLog *logger.Logger) store.HostStore {
	return &hostRepo{db: db, log: baseLog.With("repo", "HostRepo")}
}

func (r *hostRepo) Upsert(dbc dbctx.Context, h *domain.HostRegistration) (*domain.HostRegistration, error) {
	tx := dbc.Resolve(r.db)
	var existing domain.HostRegistration
	err := tx.Where("base_url = ?", h.BaseURL).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		h.UpdatedAt = time.Now()
		if err := tx.Create(h).Error; err != nil {
			return nil, err
		}
		return h, nil
	case err != nil:
		return nil, err
	}
	h.ID = existing.ID
	h.Active = existing.Active
	h.MaintenanceMode = existing.MaintenanceMode
	if err := tx.Model(&domain.HostRegistration{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
		"ip_address": h.IPAddress,
		"memory":     h.Memory,
		"cores":      h.Cores,
		"max_load":   h.MaxLoad,
		"online":     true,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return nil, err
	}
	h.Online = true
	return h, nil
}

func (r *hostRepo) ByBaseURL(dbc dbctx.Context, baseURL string) (*domain.HostRegistration, error) {
	tx := dbc.Resolve(r.db)
	var h domain.HostRegistration
	err := tx.Where("base_url = ?", baseURL).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *hostRepo) GetAll(dbc dbctx.Context) ([]*domain.HostRegistration, error) {
	tx := dbc.Resolve(r.db)
	var out []*domain.HostRegistration
	if err := tx.Order("base_url ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hostRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	tx := dbc.Resolve(r.db)
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return tx.Model(&domain.HostRegistration{}).Where("id = ?", id).Updates(updates).Error
}
