package store

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docSyncServer/backend/internal/entity"
)

// InitMySQL 打开 gorm 连接并迁移版本相关的表
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&entity.Version{}, &entity.VersionHead{}); err != nil {
		return nil, err
	}
	return db, nil
}
