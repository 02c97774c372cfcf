package repo

import (
	"context"

	"github.com/AdventureDe/LinkIM/message/repo/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SysConfigRepo interface {
	// FindValue returns ok=false when the key has never been stored.
	FindValue(ctx context.Context, key string) (value string, ok bool, err error)
	SaveValue(ctx context.Context, key, value string) error
}

type sysConfigRepo struct {
	db *gorm.DB
}

func NewSysConfigRepo(db *gorm.DB) SysConfigRepo {
	return &sysConfigRepo{db: db}
}

func (r *sysConfigRepo) FindValue(ctx context.Context, key string) (string, bool, error) {
	var cfg model.SysConfig
	res := r.db.WithContext(ctx).Where("config_key = ?", key).Limit(1).Find(&cfg)
	if res.Error != nil {
		return "", false, errors.Wrap(res.Error, "sysConfigRepo.FindValue.Find")
	}
	if res.RowsAffected == 0 {
		return "", false, nil
	}
	return cfg.ConfigValue, true, nil
}

func (r *sysConfigRepo) SaveValue(ctx context.Context, key, value string) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "config_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"config_value", "updated_at"}),
		}).
		Create(&model.SysConfig{ConfigKey: key, ConfigValue: value}).Error
	if err != nil {
		return errors.Wrap(err, "sysConfigRepo.SaveValue.Create")
	}
	return nil
}
