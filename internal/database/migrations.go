package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillDefaultIdentity = "2020-01-15_backfill_default_identity"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillDefaultIdentity, apply: backfillDefaultIdentity},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Users created before default identities were recorded belong to the home realm.
func backfillDefaultIdentity(db *gorm.DB) error {
	return db.Model(&users.User{}).
		Where("default_identity = ?", "").
		Update("default_identity", users.HomeRealm).Error
}
