package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/auth_service/internal/hash"
	"github.com/Skotchmaster/auth_service/internal/models"
	"github.com/Skotchmaster/auth_service/internal/validate"
)

type UserRepo struct {
	DB *gorm.DB
}

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{DB: db} }

// Create validates the email shape and password policy, hashes the password
// and inserts the user. The stored record never holds the plaintext.
func (r *UserRepo) Create(ctx context.Context, username, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if username == "" || len(username) > 100 {
		return nil, ErrBadUsername
	}
	if !validate.Email(email) {
		return nil, ErrInvalidEmail
	}
	if !validate.Password(password) {
		return nil, ErrWeakPassword
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: pwHash,
		IsActive:     true,
	}

	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return storeErr(err)
		}
		if count > 0 {
			return ErrEmailExists
		}
		if err := tx.Create(&user).Error; err != nil {
			if isDuplicate(err) {
				return ErrEmailExists
			}
			return storeErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateSuperuser is Create followed by flipping is_superuser.
func (r *UserRepo) CreateSuperuser(ctx context.Context, username, email, password string) (*models.User, error) {
	user, err := r.Create(ctx, username, email, password)
	if err != nil {
		return nil, err
	}
	if err := r.DB.WithContext(ctx).Model(user).Update("is_superuser", true).Error; err != nil {
		return nil, storeErr(err)
	}
	user.IsSuperuser = true
	return user, nil
}

func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, storeErr(err)
	}
	return count > 0, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	if err := r.DB.WithContext(ctx).Preload("Role").Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr(err)
	}
	return &user, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Preload("Role").Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr(err)
	}
	return &user, nil
}

func (r *UserRepo) ChangeUsername(ctx context.Context, userID uint, newUsername string) error {
	newUsername = strings.TrimSpace(newUsername)
	if newUsername == "" || len(newUsername) > 100 {
		return ErrBadUsername
	}
	result := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("username", newUsername)
	if result.Error != nil {
		return storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ChangeEmail reports ok=false when newEmail already belongs to another user.
// That outcome is recoverable and carries no error.
func (r *UserRepo) ChangeEmail(ctx context.Context, userID uint, newEmail string) (bool, error) {
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if !validate.Email(newEmail) {
		return false, ErrInvalidEmail
	}

	ok := true
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", newEmail, userID).Count(&count).Error; err != nil {
			return storeErr(err)
		}
		if count > 0 {
			ok = false
			return nil
		}
		result := tx.Model(&models.User{}).Where("id = ?", userID).Update("email", newEmail)
		if result.Error != nil {
			return storeErr(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *UserRepo) SetPassword(ctx context.Context, userID uint, newPassword string) error {
	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	result := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("password_hash", pwHash)
	if result.Error != nil {
		return storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) SetRole(ctx context.Context, userID uint, roleName string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.Where("name = ?", roleName).First(&role).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return storeErr(err)
		}
		result := tx.Model(&models.User{}).Where("id = ?", userID).Update("role_id", role.ID)
		if result.Error != nil {
			return storeErr(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// GetRole returns "" without error for a user that has no role assigned.
func (r *UserRepo) GetRole(ctx context.Context, userID uint) (string, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.Role == nil {
		return "", nil
	}
	return user.Role.Name, nil
}

func (r *UserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Preload("Role").Order("id").Find(&users).Error; err != nil {
		return nil, storeErr(err)
	}
	return users, nil
}

// SeedRoles creates the fixed role set if missing. Safe to run on every boot.
func (r *UserRepo) SeedRoles(ctx context.Context) error {
	for _, name := range []string{models.RoleAdmin, models.RoleModerator, models.RoleUser} {
		role := models.Role{Name: name}
		if err := r.DB.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&role).Error; err != nil {
			return storeErr(err)
		}
	}
	return nil
}

func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
