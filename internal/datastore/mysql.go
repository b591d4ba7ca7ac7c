package datastore

import (
	"fmt"

	"github.com/leadboard/leadboard-go/internal/conf"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the MySQL database connection
func (store *MySQLStore) Open() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		store.Settings.Output.MySQL.Username, store.Settings.Output.MySQL.Password,
		store.Settings.Output.MySQL.Host, store.Settings.Output.MySQL.Port,
		store.Settings.Output.MySQL.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	store.DB = db

	connectionInfo := fmt.Sprintf("%s@%s:%s/%s",
		store.Settings.Output.MySQL.Username,
		store.Settings.Output.MySQL.Host,
		store.Settings.Output.MySQL.Port,
		store.Settings.Output.MySQL.Database)
	return performAutoMigration(db, store.Settings.Debug, "MySQL", connectionInfo)
}

func (store *MySQLStore) Close() error {
	sqlDB, err := store.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access underlying connection: %w", err)
	}
	return sqlDB.Close()
}
