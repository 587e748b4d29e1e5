package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/auth_service/internal/models"
)

type TokenRepo struct {
	DB *gorm.DB
}

func NewTokenRepo(db *gorm.DB) *TokenRepo { return &TokenRepo{DB: db} }

func (r *TokenRepo) Save(ctx context.Context, token string, userID uint) (*models.RefreshToken, error) {
	row := models.RefreshToken{
		Token:  token,
		UserID: userID,
	}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, storeErr(err)
	}
	return &row, nil
}

func (r *TokenRepo) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var row models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("token = ?", token).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, storeErr(err)
	}
	return &row, nil
}

// FindActiveByToken treats invalidated rows as not-found: a revoked but not
// yet reaped token must not be usable for refresh.
func (r *TokenRepo) FindActiveByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var row models.RefreshToken
	err := r.DB.WithContext(ctx).
		Where("token = ? AND invalidated = ?", token, false).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, storeErr(err)
	}
	return &row, nil
}

func (r *TokenRepo) FindByUser(ctx context.Context, userID uint) ([]models.RefreshToken, error) {
	var rows []models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, storeErr(err)
	}
	return rows, nil
}

// Invalidate flips the flag for one token. The flag is monotonic: flipping an
// already invalidated row is a no-op, a missing row is ErrTokenNotFound. The
// update is a single compare-and-set statement, so a concurrent refresh either
// sees the row active or invalidated, never in between.
func (r *TokenRepo) Invalidate(ctx context.Context, token string) (uint, error) {
	var userID uint
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.RefreshToken
		if err := tx.Where("token = ?", token).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return storeErr(err)
		}
		userID = row.UserID
		result := tx.Model(&models.RefreshToken{}).
			Where("token = ? AND invalidated = ?", token, false).
			Update("invalidated", true)
		if result.Error != nil {
			return storeErr(result.Error)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (r *TokenRepo) InvalidateAll(ctx context.Context, userID uint) error {
	result := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND invalidated = ?", userID, false).
		Update("invalidated", true)
	if result.Error != nil {
		return storeErr(result.Error)
	}
	return nil
}

// DeleteInvalidated bulk-removes revoked rows and returns how many went. Rows
// with invalidated=false are never touched here, whatever their signed expiry.
func (r *TokenRepo) DeleteInvalidated(ctx context.Context) (int64, error) {
	result := r.DB.WithContext(ctx).
		Where("invalidated = ?", true).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, storeErr(result.Error)
	}
	return result.RowsAffected, nil
}
