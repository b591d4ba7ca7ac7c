// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"log"
	"os"
	"time"

	"github.com/leadboard/leadboard-go/internal/conf"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Interface abstracts the underlying database implementation and defines the
// operations the board service and the bulk pipeline need.
type Interface interface {
	Open() error
	Close() error

	// Field registry
	GetField(organizationID, fieldID uint) (Field, error)
	GetFieldByName(organizationID uint, moduleType ModuleType, name string) (Field, error)
	GetFieldsForModule(organizationID uint, moduleType ModuleType) ([]Field, error)
	MaxFieldOrder(organizationID uint, moduleType ModuleType) (int, error)
	CreateField(field *Field) error
	CreateFieldOption(option *FieldOption) error
	CreateFieldOptions(options []FieldOption) error
	SoftDeleteFieldOption(optionID uint) error
	GetFieldOptions(fieldID uint, page, limit int) ([]FieldOption, error)

	// Members
	GetMembers(organizationID uint) ([]Member, error)
	GetMember(memberID uint) (Member, error)

	// Records and EAV cells
	CreateRecordWithValues(record *Record, values []FieldValue, entry *HistoryEntry) error
	CreateRecordsBatch(records []Record, values []FieldValue, entries []HistoryEntry, options []FieldOption) error
	GetRecord(organizationID uint, recordID string) (Record, error)
	GetRecordsByIDs(organizationID uint, recordIDs []string) ([]Record, error)
	UpdateRecordName(organizationID uint, recordID, name string) error
	UpdateRecordAssignee(organizationID uint, recordID string, memberID *uint) error
	SetRecordDeleted(organizationID uint, recordIDs []string, deleted bool, entries []HistoryEntry) error
	GetFieldValue(recordID string, fieldID uint) (FieldValue, error)
	GetFieldValues(recordIDs []string) ([]FieldValue, error)
	UpsertFieldValues(recordID string, updates []ValueUpdate, entries []HistoryEntry) error
	ListRecords(organizationID uint, moduleType ModuleType, query RecordQuery) ([]Record, int64, error)

	// History ledger
	GetHistoryEntry(recordID string, historyID uint) (HistoryEntry, error)
	ListHistory(recordID string, page, limit int) ([]HistoryEntry, error)
	AppendHistory(entry *HistoryEntry) error

	// Notification state
	MarkUnseen(recordIDs []string) error
	MarkSeen(recordID string) error
	ListUnseen(organizationID uint) ([]string, error)

	// Activities
	CreateActivity(activity *Activity) error
	ListActivities(recordID string, page, limit int) ([]Activity, error)

	// County routing
	GetCountyFacility(organizationID uint, county string) (string, error)
}

// ValueUpdate is one EAV cell write inside a transactional update.
type ValueUpdate struct {
	FieldID uint
	Value   *string
}

// ValuePredicate is a resolved per-field filter. Exact selects equality
// semantics (DROPDOWN/STATUS/CHECKBOX fields), otherwise a case-insensitive
// substring match applies.
type ValuePredicate struct {
	FieldID uint
	Value   string
	Exact   bool
}

// RecordQuery carries the resolved listing filters down to SQL.
type RecordQuery struct {
	DateFrom   *time.Time
	DateTo     *time.Time
	Search     string // case-insensitive contains on record name
	Predicates []ValuePredicate
	Page       int // 1-based
	Limit      int
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&Field{},
		&FieldOption{},
		&Record{},
		&FieldValue{},
		&HistoryEntry{},
		&NotificationState{},
		&Activity{},
		&Member{},
		&CountyMapping{},
	); err != nil {
		return dbError(err, "auto_migrate", "", "db_type", dbType)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}

// sortAscendingString returns "ASC" or "DESC" based on the boolean input.
func sortAscendingString(asc bool) string {
	if asc {
		return "ASC"
	}
	return "DESC"
}
