package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/prasenjit/proxyboy/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const mysqlScheme = "mysql://"

// ruleRecord is the row layout of the mocks table
type ruleRecord struct {
	ID                  string `gorm:"column:id;primaryKey;size:36"`
	Name                string `gorm:"column:name"`
	IsEnable            bool   `gorm:"column:is_enable;index"`
	RequestMethod       string `gorm:"column:request_method;size:16"`
	RequestURL          string `gorm:"column:request_url"`
	ResponseFilePath    string `gorm:"column:response_file_path"`
	ResponseStatusCode  int    `gorm:"column:response_status_code"`
	ResponseDelay       int    `gorm:"column:response_delay"`
	ResponseContentType string `gorm:"column:response_content_type"`
	Position            int    `gorm:"column:position;index"`
}

func (ruleRecord) TableName() string { return "mocks" }

// auditRow is the row layout of the logs table
type auditRow struct {
	ID             string    `gorm:"column:id;primaryKey;size:36"`
	RequestMethod  string    `gorm:"column:request_method;size:16"`
	RequestHost    string    `gorm:"column:request_host"`
	RequestURL     string    `gorm:"column:request_url"`
	RequestParams  string    `gorm:"column:request_params;type:text"`
	RequestBody    string    `gorm:"column:request_body;type:text"`
	RequestHeaders string    `gorm:"column:request_headers;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
}

func (auditRow) TableName() string { return "logs" }

// SQLStorage implements Storage on top of gorm. SQLite is the default
// backend; a "mysql://" URL selects MySQL.
type SQLStorage struct {
	db *gorm.DB
}

// NewSQLStorage opens the database named by databaseURL and migrates the
// schema
func NewSQLStorage(databaseURL string) (*SQLStorage, error) {
	dialector, isSQLite := dialectorFor(databaseURL)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect database %s", redactURL(databaseURL))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get database handle")
	}
	if isSQLite {
		// A single connection serializes readers behind ReplaceAll's
		// transaction and avoids SQLITE_BUSY between pooled connections.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&ruleRecord{}, &auditRow{}); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	return &SQLStorage{db: db}, nil
}

func dialectorFor(databaseURL string) (gorm.Dialector, bool) {
	if strings.HasPrefix(databaseURL, mysqlScheme) {
		return mysql.Open(strings.TrimPrefix(databaseURL, mysqlScheme)), false
	}

	dsn := strings.TrimPrefix(databaseURL, "sqlite://")
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	return sqlite.Open(dsn), true
}

// redactURL drops credentials from a MySQL DSN for log and error output
func redactURL(databaseURL string) string {
	if !strings.HasPrefix(databaseURL, mysqlScheme) {
		return databaseURL
	}
	dsn := strings.TrimPrefix(databaseURL, mysqlScheme)
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		return mysqlScheme + "***" + dsn[at:]
	}
	return databaseURL
}

// ListEnabled reads enabled rules ordered by position
func (s *SQLStorage) ListEnabled(ctx context.Context) ([]*models.Rule, error) {
	var rows []ruleRecord
	err := s.db.WithContext(ctx).
		Where("is_enable = ?", true).
		Order("position asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list enabled rules")
	}
	return toRules(rows), nil
}

// ListAll reads every rule ordered by position
func (s *SQLStorage) ListAll(ctx context.Context) ([]*models.Rule, error) {
	var rows []ruleRecord
	if err := s.db.WithContext(ctx).Order("position asc").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list rules")
	}
	return toRules(rows), nil
}

// ReplaceAll deletes every rule and inserts the new set in one transaction.
// Any failure rolls the transaction back.
func (s *SQLStorage) ReplaceAll(ctx context.Context, rules []*models.Rule) error {
	prepared, err := prepareRules(rules, 0)
	if err != nil {
		return err
	}

	rows := make([]ruleRecord, 0, len(prepared))
	for _, r := range prepared {
		rows = append(rows, fromRule(r))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&ruleRecord{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear rules")
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return errors.Wrap(err, "failed to insert rules")
		}
		return nil
	})
}

// Insert appends a rule after the current last position
func (s *SQLStorage) Insert(ctx context.Context, rule *models.Rule) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int
		err := tx.Model(&ruleRecord{}).
			Select("COALESCE(MAX(position), -1)").
			Scan(&last).Error
		if err != nil {
			return errors.Wrap(err, "failed to read last position")
		}

		prepared, err := prepareRules([]*models.Rule{rule}, last+1)
		if err != nil {
			return err
		}

		row := fromRule(prepared[0])
		if err := tx.Create(&row).Error; err != nil {
			return errors.Wrap(err, "failed to insert rule")
		}
		return nil
	})
}

// InsertAuditRecord writes one row to the logs table
func (s *SQLStorage) InsertAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	params, err := json.Marshal(rec.Query)
	if err != nil {
		return errors.Wrap(err, "encode request params")
	}
	headers, err := json.Marshal(rec.Headers)
	if err != nil {
		return errors.Wrap(err, "encode request headers")
	}

	row := auditRow{
		ID:             rec.ID,
		RequestMethod:  rec.Method,
		RequestHost:    rec.Host,
		RequestURL:     rec.Path,
		RequestParams:  string(params),
		RequestBody:    rec.Body,
		RequestHeaders: string(headers),
		CreatedAt:      rec.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "failed to insert audit record")
	}
	return nil
}

// Close closes the underlying connection pool
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func fromRule(r *models.Rule) ruleRecord {
	return ruleRecord{
		ID:                  r.ID,
		Name:                r.Name,
		IsEnable:            r.Enabled,
		RequestMethod:       r.Method,
		RequestURL:          r.URL,
		ResponseFilePath:    r.File,
		ResponseStatusCode:  r.StatusCode,
		ResponseDelay:       r.Delay,
		ResponseContentType: r.ContentType,
		Position:            r.Position,
	}
}

func toRules(rows []ruleRecord) []*models.Rule {
	rules := make([]*models.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, &models.Rule{
			ID:          row.ID,
			Name:        row.Name,
			Enabled:     row.IsEnable,
			Method:      row.RequestMethod,
			URL:         row.RequestURL,
			File:        row.ResponseFilePath,
			StatusCode:  row.ResponseStatusCode,
			Delay:       row.ResponseDelay,
			ContentType: row.ResponseContentType,
			Position:    row.Position,
		})
	}
	return rules
}
