package model

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/walaka/erp/invoicing"
)

// Store is the gorm backed persistence of the ERP. It implements the
// storage contracts of package invoicing.
type Store struct {
	db     *gorm.DB
	Config *Config
}

// Config is read from config.toml.
type Config struct {
	Basedir      string
	Mode         string
	Port         int
	MailAPIKey   string
	MailSecret   string
	MailFrom     string
	MailFromName string
	Servers      map[string]ServerConfig
	Supabase     SupabaseConfig
	Invoice      InvoiceConfig
}

// SupabaseConfig points at the project that issues user identities.
type SupabaseConfig struct {
	URL       string
	AnonKey   string
	JWTSecret string // HS256 secret; when empty tokens are checked remotely
}

// InvoiceConfig tunes numbering and the status table.
type InvoiceConfig struct {
	MaxAllocationAttempts int
	DefaultCurrency       string
	Prefixes              map[string]string   // document type or "receipt" -> prefix
	Transitions           map[string][]string // status -> allowed targets
}

// ServerConfig holds the database settings of one mode.
type ServerConfig struct {
	Database   string
	DBName     string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     int
	DBSSLMode  string
	DBLogger   string
}

// Server returns the database settings of the active mode.
func (cfg *Config) Server() ServerConfig { return cfg.Servers[cfg.Mode] }

// Prefix returns the number prefix for a document type.
func (cfg *Config) Prefix(dt DocumentType) string {
	if p, ok := cfg.Invoice.Prefixes[string(dt)]; ok && p != "" {
		return p
	}
	return dt.DefaultPrefix()
}

// ReceiptPrefix returns the number prefix of receipts.
func (cfg *Config) ReceiptPrefix() string {
	if p := cfg.Invoice.Prefixes["receipt"]; p != "" {
		return p
	}
	return DefaultReceiptPrefix
}

// Transitions parses the configured status table.
func (cfg *Config) Transitions() (invoicing.TransitionTable, error) {
	return invoicing.ParseTransitionTable(cfg.Invoice.Transitions)
}

// Currency returns the default currency for new invoices.
func (cfg *Config) Currency() string {
	if cfg.Invoice.DefaultCurrency == "" {
		return "MZN"
	}
	return cfg.Invoice.DefaultCurrency
}

// shared helper for GORM logger
func gormLoggerFor(cfg *Config, svr ServerConfig) *gorm.Config {
	gormConfig := &gorm.Config{TranslateError: true}
	switch svr.DBLogger {
	case "info":
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	case "silent":
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	default:
		if cfg.Mode == "development" {
			gormConfig.Logger = logger.Default.LogMode(logger.Info)
		} else {
			gormConfig.Logger = logger.Default.LogMode(logger.Silent)
		}
	}
	return gormConfig
}

func postgresDSN(svr ServerConfig) string {
	port := svr.DBPort
	if port == 0 {
		port = 5432
	}
	sslmode := svr.DBSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		svr.DBHost, svr.DBUser, svr.DBPassword, svr.DBName, port, sslmode)
}

// InitDatabase opens the database configured for cfg.Mode and migrates the schema.
func InitDatabase(cfg *Config) (*Store, error) {
	svr := cfg.Server()
	var dialector gorm.Dialector
	switch svr.Database {
	case "sqlite3":
		filename := filepath.Join("db", svr.DBName)
		slog.Info("using sqlite3", "database", filename)
		dialector = sqlite.Open(filename + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	case "postgresql":
		slog.Info("using postgresql", "database", svr.DBName, "host", svr.DBHost)
		dialector = postgres.Open(postgresDSN(svr))
	default:
		return nil, fmt.Errorf("database %q not supported", svr.Database)
	}
	return Open(dialector, cfg)
}

// Open connects through an arbitrary dialector and migrates the schema.
func Open(dialector gorm.Dialector, cfg *Config) (*Store, error) {
	db, err := gorm.Open(dialector, gormLoggerFor(cfg, cfg.Server()))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db, Config: cfg}
	if err = s.autoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle for maintenance and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) autoMigrate() error {
	models := []any{
		&User{},
		&Client{},
		&Product{},
		&Invoice{},
		&InvoiceItem{},
		&Receipt{},
		&TimelineEvent{},
		&Settings{},
		&APIToken{},
	}
	for _, m := range models {
		if err := s.db.AutoMigrate(m); err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation recognises unique index violations of both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "SQLSTATE 23505") || // postgres
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// likeEscape escapes the LIKE wildcards of s.
func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ciLike returns a case insensitive LIKE expression for column.
func (s *Store) ciLike(column string) string {
	if s.db.Dialector.Name() == "postgres" {
		return column + ` ILIKE ? ESCAPE '\'`
	}
	return `LOWER(` + column + `) LIKE LOWER(?) ESCAPE '\'`
}
