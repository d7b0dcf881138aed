package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/utils"
)

// Client is a tenant. Every domain row carries its ClientId and the tenant
// guard scopes queries to it automatically.
type Client struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Cnpj      string    `gorm:"type:varchar(18);uniqueIndex" json:"cnpj"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	Phone     string    `gorm:"type:varchar(20)" json:"phone"` // E.164

	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func GetClientById(ctx context.Context, db *gorm.DB, clientId string) (*Client, error) {
	var client Client
	err := db.WithContext(utils.SetSkipTenantScopeInContext(ctx, true)).Where("id = ?", clientId).First(&client).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &client, nil
}
