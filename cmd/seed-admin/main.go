// seed-admin creates or updates the admin user and, when SEED_CLIENT_CNPJ
// is set, a client plus the admin's membership in it.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
//
// Env:
//   SEED_ADMIN_EMAIL    (default admin@contabilhub.com.br)
//   SEED_ADMIN_PASSWORD (required)
//   SEED_CLIENT_CNPJ    (optional; creates the client and membership)
//   SEED_CLIENT_NAME    (default "Cliente Demo")
//   SEED_CLIENT_PHONE   (optional; validated and stored in E.164)
package main

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/utils"
)

func main() {
	adminEmail := os.Getenv("SEED_ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@contabilhub.com.br"
	}
	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPassword == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	// No tenant is selected yet; user and client writes bypass the guard.
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	ctx = utils.SetIsAdminInContext(ctx, true)

	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	admin, err := upsertAdmin(ctx, db, adminEmail, string(hashed))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("admin user ready: email=%q id=%s\n", admin.Email, admin.ID)

	cnpj := os.Getenv("SEED_CLIENT_CNPJ")
	if cnpj == "" {
		return
	}
	phone := os.Getenv("SEED_CLIENT_PHONE")
	if phone != "" {
		phone, err = utils.NormalizePhoneNumber(phone, utils.DefaultPhoneRegion)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid SEED_CLIENT_PHONE: %v\n", err)
			os.Exit(1)
		}
	}
	client, err := upsertClient(ctx, db, cnpj, os.Getenv("SEED_CLIENT_NAME"), phone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed client: %v\n", err)
		os.Exit(1)
	}
	if err := ensureMembership(ctx, db, admin.ID, client.ID); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed membership: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("client ready: cnpj=%q id=%s (admin membership active)\n", client.Cnpj, client.ID)
}

func upsertAdmin(ctx context.Context, db *gorm.DB, email string, hashedPassword string) (*models.User, error) {
	var existing models.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		user := models.User{
			Name:     "ContabilHub Admin",
			Email:    email,
			Password: hashedPassword,
			Role:     models.UserRoleAdmin,
			IsActive: true,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}

	err = db.WithContext(ctx).Model(&models.User{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
		"password":  hashedPassword,
		"role":      models.UserRoleAdmin,
		"is_active": true,
	}).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func upsertClient(ctx context.Context, db *gorm.DB, cnpj string, name string, phone string) (*models.Client, error) {
	if name == "" {
		name = "Cliente Demo"
	}
	var existing models.Client
	err := db.WithContext(ctx).Where("cnpj = ?", cnpj).First(&existing).Error
	if err == nil {
		if phone != "" && existing.Phone != phone {
			if err := db.WithContext(ctx).Model(&models.Client{}).Where("id = ?", existing.ID).Update("phone", phone).Error; err != nil {
				return nil, err
			}
			existing.Phone = phone
		}
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	client := models.Client{Name: name, Cnpj: cnpj, Phone: phone, IsActive: true}
	if err := db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func ensureMembership(ctx context.Context, db *gorm.DB, userId string, clientId string) error {
	var existing models.Membership
	err := db.WithContext(ctx).Where("user_id = ? AND client_id = ?", userId, clientId).First(&existing).Error
	if err == nil {
		if existing.IsActive && existing.Role == models.UserRoleAdmin {
			return nil
		}
		err = db.WithContext(ctx).Model(&models.Membership{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"role":      models.UserRoleAdmin,
			"is_active": true,
		}).Error
		if err == nil {
			models.InvalidateMembershipCache(userId, clientId)
		}
		return err
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	membership := models.Membership{
		UserId:   userId,
		ClientId: clientId,
		Role:     models.UserRoleAdmin,
		IsActive: true,
	}
	if err := db.WithContext(ctx).Create(&membership).Error; err != nil {
		return err
	}
	models.InvalidateMembershipCache(userId, clientId)
	return nil
}
