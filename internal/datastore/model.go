// model.go defines the relational data model for the board module
package datastore

import "time"

// ModuleType partitions the schema and record set of an organization.
type ModuleType string

const (
	ModuleLead     ModuleType = "LEAD"
	ModuleReferral ModuleType = "REFERRAL"
)

// FieldType enumerates the typed column kinds an organization can define.
type FieldType string

const (
	FieldTypeText        FieldType = "TEXT"
	FieldTypeNumber      FieldType = "NUMBER"
	FieldTypeDropdown    FieldType = "DROPDOWN"
	FieldTypeMultiselect FieldType = "MULTISELECT"
	FieldTypeStatus      FieldType = "STATUS"
	FieldTypeLocation    FieldType = "LOCATION"
	FieldTypeAssignedTo  FieldType = "ASSIGNED_TO"
	FieldTypeTimeline    FieldType = "TIMELINE"
	FieldTypeDate        FieldType = "DATE"
	FieldTypeCheckbox    FieldType = "CHECKBOX"
	FieldTypeEmail       FieldType = "EMAIL"
	FieldTypePhone       FieldType = "PHONE"
)

// History actions recorded in the ledger.
const (
	ActionCreate           = "create"
	ActionUpdate           = "update"
	ActionDelete           = "delete"
	ActionRestore          = "restore"
	ActionMilestoneCreated = "milestone_created"
)

// Field is an organization-defined typed column applied across all records of
// a module type. Field type is treated as immutable once values exist; the
// engine does not enforce this, callers must not change it.
type Field struct {
	ID             uint          `gorm:"primaryKey"`
	OrganizationID uint          `gorm:"index:idx_fields_org_module;not null"`
	ModuleType     ModuleType    `gorm:"index:idx_fields_org_module;type:varchar(16);not null"`
	Name           string        `gorm:"not null"`
	Type           FieldType     `gorm:"type:varchar(16);not null"`
	DisplayOrder   int           `gorm:"not null"`
	Options        []FieldOption `gorm:"foreignKey:FieldID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time
}

// FieldOption is one allowed value of a DROPDOWN/MULTISELECT/STATUS field.
// Uniqueness of Value is case-insensitive within a field, enforced by the
// registry before insert. Deletion is a soft flag so historical values keep
// resolving.
type FieldOption struct {
	ID        uint   `gorm:"primaryKey"`
	FieldID   uint   `gorm:"index;uniqueIndex:uq_field_options_field_value,priority:1;not null"`
	Value     string `gorm:"uniqueIndex:uq_field_options_field_value,priority:2;not null"`
	IsDeleted bool   `gorm:"default:false"`
	CreatedAt time.Time
}

// Record is a row in the dynamic schema (a lead or referral entity). IDs are
// client-generated UUIDs so batch inserts can be mapped back to their source
// rows without re-querying insertion order.
type Record struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	OrganizationID uint       `gorm:"index:idx_records_org_module;not null"`
	ModuleType     ModuleType `gorm:"index:idx_records_org_module;type:varchar(16);not null"`
	Name           string     `gorm:"not null"`
	AssignedTo     *uint      // member id, nil when unassigned
	IsDeleted      bool       `gorm:"default:false;index"`
	CreatedAt      time.Time  `gorm:"index"`
}

// FieldValue is the EAV cell: the value of one field for one record. Values
// are stored as strings; structured types (multiselect, location fan-out) are
// serialized at this boundary. A nil Value means the cell is empty, which is
// distinct from the row being absent - rows exist eagerly for every field of
// the record's organization and module.
type FieldValue struct {
	ID        uint   `gorm:"primaryKey"`
	RecordID  string `gorm:"uniqueIndex:uq_field_values_record_field,priority:1;type:varchar(36);not null"`
	FieldID   uint   `gorm:"uniqueIndex:uq_field_values_record_field,priority:2;not null"`
	Value     *string
	UpdatedAt time.Time
}

// HistoryEntry is one append-only ledger row. A restore entry records the
// reverse delta of the entry it restores.
type HistoryEntry struct {
	ID         uint   `gorm:"primaryKey"`
	RecordID   string `gorm:"index;type:varchar(36);not null"`
	ColumnName string `gorm:"not null"`
	OldValue   *string
	NewValue   *string
	Action     string    `gorm:"type:varchar(32);not null"`
	CreatedBy  uint      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index"`
}

// NotificationState marks a record as having unseen changes. Row existence is
// the marker; marking seen deletes the row.
type NotificationState struct {
	ID        uint   `gorm:"primaryKey"`
	RecordID  string `gorm:"uniqueIndex;type:varchar(36);not null"`
	UpdatedAt time.Time
}

// Activity is a timeline entry attached to a record, such as an EMAIL sent by
// the bulk mailer.
type Activity struct {
	ID        uint   `gorm:"primaryKey"`
	RecordID  string `gorm:"index;type:varchar(36);not null"`
	Type      string `gorm:"type:varchar(32);not null"`
	Recipient string
	Subject   string
	Body      string `gorm:"type:text"`
	Sender    string // sender identity actually used for delivery
	CreatedBy uint
	CreatedAt time.Time `gorm:"index"`
}

// Activity types.
const (
	ActivityEmail = "EMAIL"
)

// Member is an organization member, used to back the ASSIGNED_TO pseudo-field
// and to render assignee names in history.
type Member struct {
	ID             uint   `gorm:"primaryKey"`
	OrganizationID uint   `gorm:"index;not null"`
	Name           string `gorm:"not null"`
	Email          string
}

// CountyMapping routes referral records to a facility based on the county
// resolved for their location.
type CountyMapping struct {
	ID             uint   `gorm:"primaryKey"`
	OrganizationID uint   `gorm:"index:idx_county_mappings_org_county;not null"`
	County         string `gorm:"index:idx_county_mappings_org_county;not null"`
	Facility       string `gorm:"not null"`
}
