package utils

import (
	"context"
	"errors"

	"github.com/solarclean/backoffice/config"
	"gorm.io/gorm"
)

// FetchModel loads T by primary key with the given associations preloaded.
// (may return ErrorRecordNotFound)
func FetchModel[T any](ctx context.Context, id any, associations ...string) (*T, error) {
	dbCtx := config.GetDB().WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.First(&result, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// ResourceExists reports whether a row of T matches id.
func ResourceExists[T any](tx *gorm.DB, id any) (bool, error) {
	var count int64
	var model T
	if err := tx.Model(&model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
