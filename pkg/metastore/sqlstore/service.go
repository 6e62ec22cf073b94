package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marmos91/lazurite/pkg/metastore"
	"github.com/marmos91/lazurite/pkg/metastore/models"
)

// GetServiceProperties returns the account's service properties, or nil when
// the account never set any.
func (s *SQLStore) GetServiceProperties(ctx context.Context, mc metastore.Context, account string) (*models.Service, error) {
	started := time.Now()
	var service *models.Service
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var row models.Service
		if err := tx.Where("account_name = ?", account).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		service = &row
		return nil
	})
	s.observe("GetServiceProperties", started, err)
	if err != nil {
		return nil, err
	}
	return service, nil
}

// SetServiceProperties creates the account's service properties on first set
// and updates them in place afterwards. The row is never deleted.
func (s *SQLStore) SetServiceProperties(ctx context.Context, mc metastore.Context, service *models.Service) (*models.Service, error) {
	started := time.Now()
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(service).Error
	})
	s.observe("SetServiceProperties", started, err)
	if err != nil {
		return nil, err
	}
	return service, nil
}
