package domain

import "time"

// HostRegistration tracks a single worker node in the cluster.
// Identity is BaseURL; rows are never hard-deleted, only marked offline.
type HostRegistration struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BaseURL         string    `gorm:"column:base_url;uniqueIndex;not null" json:"base_url"`
	IPAddress       string    `gorm:"column:ip_address" json:"ip_address"`
	Memory          int64     `gorm:"column:memory" json:"memory"`
	Cores           int       `gorm:"column:cores" json:"cores"`
	MaxLoad         float64   `gorm:"column:max_load;not null" json:"max_load"`
	Online          bool      `gorm:"column:online;not null;index" json:"online"`
	Active          bool      `gorm:"column:active;not null;default:true" json:"active"`
	MaintenanceMode bool      `gorm:"column:maintenance_mode;not null" json:"maintenance_mode"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (HostRegistration) TableName() string { return "host_registration" }
