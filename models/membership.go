package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/utils"
)

// Membership links a user to a tenant. Access checks run on every request
// and on every assistant tool call, so the result is cached in redis for a
// short window.
type Membership struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserId    string    `gorm:"type:varchar(36);index:idx_membership_user_client,unique;not null" json:"user_id"`
	ClientId  string    `gorm:"type:varchar(36);index:idx_membership_user_client,unique;not null" json:"client_id"`
	Role      UserRole  `gorm:"type:varchar(20);default:'viewer'" json:"role"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

const membershipCacheTTL = 5 * time.Minute

func membershipCacheKey(userId string, clientId string) string {
	return fmt.Sprintf("membership:%s:%s", userId, clientId)
}

// HasClientAccess reports whether userId holds an active membership in
// clientId. Membership lookups bypass the tenant guard because the caller
// has not been authorized for the tenant yet.
func HasClientAccess(ctx context.Context, db *gorm.DB, userId string, clientId string) (bool, error) {
	cacheKey := membershipCacheKey(userId, clientId)
	if cached, found, err := config.GetRedisValue(cacheKey); err == nil && found {
		return cached == "1", nil
	}

	var count int64
	err := db.WithContext(utils.SetSkipTenantScopeInContext(ctx, true)).
		Model(&Membership{}).
		Where("user_id = ? AND client_id = ? AND is_active = ?", userId, clientId, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	value := "0"
	if count > 0 {
		value = "1"
	}
	_ = config.SetRedisValue(cacheKey, value, membershipCacheTTL)

	return count > 0, nil
}

// InvalidateMembershipCache drops the cached access decision, used when a
// membership is created or deactivated.
func InvalidateMembershipCache(userId string, clientId string) {
	_ = config.RemoveRedisKey(membershipCacheKey(userId, clientId))
}
