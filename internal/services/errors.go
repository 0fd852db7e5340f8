package services

import (
	"errors"

	"github.com/huangang/perfsentry/internal/domain"
	"gorm.io/gorm"
)

// translateNotFound maps gorm's missing-row error onto the domain taxonomy.
func translateNotFound(err error, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFound(entity, id)
	}
	return err
}
