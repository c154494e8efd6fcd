package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"peer-hub/pkg/auth"
	"peer-hub/pkg/config"
	"peer-hub/pkg/model"
)

// Init connects to MySQL and migrates the credential table.
// Env:
//
//	MYSQL_DSN or MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASS, MYSQL_DB
func Init() (*gorm.DB, error) {
	_ = config.Load()
	host := config.Env("MYSQL_HOST", "127.0.0.1")
	port := config.Env("MYSQL_PORT", "3306")
	user := config.Env("MYSQL_USER", "root")
	pass := config.Env("MYSQL_PASS", "")
	dbname := config.Env("MYSQL_DB", "peer_hub")

	dsn := config.Env("MYSQL_DSN", "")
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local", user, pass, host, port, dbname)
	}

	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	db, err := gorm.Open(mysql.Open(dsn), cfg)
	if err != nil {
		if !strings.Contains(err.Error(), "Unknown database") {
			return nil, err
		}
		if cerr := createDatabase(user, pass, host, port, dbname); cerr != nil {
			return nil, fmt.Errorf("create database failed: %w", cerr)
		}
		if db, err = gorm.Open(mysql.Open(dsn), cfg); err != nil {
			return nil, err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Credential{})
}

// LoadPolicy reads every credential into an auth policy. An empty table
// yields nil, which disables authentication.
func LoadPolicy(db *gorm.DB) (auth.Policy, error) {
	var creds []model.Credential
	if err := db.Order("username").Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, nil
	}
	p := make(auth.Policy, len(creds))
	for _, c := range creds {
		p[c.Username] = c.PasswordHash
	}
	return p, nil
}

// AddCredential stores user with a bcrypt hash of pass, replacing any
// previous password.
func AddCredential(db *gorm.DB, user, pass string) error {
	if user == "" || pass == "" {
		return fmt.Errorf("username and password are required")
	}
	hash, err := auth.HashPassword(pass)
	if err != nil {
		return err
	}
	var existing model.Credential
	err = db.Where("username = ?", user).First(&existing).Error
	switch {
	case err == nil:
		return db.Model(&existing).Update("password_hash", hash).Error
	case err == gorm.ErrRecordNotFound:
		return db.Create(&model.Credential{Username: user, PasswordHash: hash}).Error
	default:
		return err
	}
}

// Usernames lists the stored users without their hashes.
func Usernames(db *gorm.DB) ([]string, error) {
	var names []string
	if err := db.Model(&model.Credential{}).Order("username").Pluck("username", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

func createDatabase(user, pass, host, port, dbname string) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/", user, pass, host, port)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", dbname))
	return err
}
