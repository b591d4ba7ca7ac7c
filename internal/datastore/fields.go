// fields.go implements the field registry queries
package datastore

import (
	"fmt"

	"gorm.io/gorm/clause"
)

// GetField retrieves a field by id scoped to one organization, options included.
func (ds *DataStore) GetField(organizationID, fieldID uint) (Field, error) {
	var field Field
	err := ds.DB.Preload("Options", "is_deleted = ?", false).
		Where("organization_id = ?", organizationID).
		First(&field, fieldID).Error
	if err != nil {
		return Field{}, translateGormError(err, "field", fmt.Sprintf("%d", fieldID), "get_field")
	}
	return field, nil
}

// GetFieldByName resolves a field by its display name within one organization
// and module. Name matching is exact; display-name collisions are prevented by
// caller validation, not here.
func (ds *DataStore) GetFieldByName(organizationID uint, moduleType ModuleType, name string) (Field, error) {
	var field Field
	err := ds.DB.Preload("Options", "is_deleted = ?", false).
		Where("organization_id = ? AND module_type = ? AND name = ?", organizationID, moduleType, name).
		First(&field).Error
	if err != nil {
		return Field{}, translateGormError(err, "field", name, "get_field_by_name")
	}
	return field, nil
}

// GetFieldsForModule returns all fields of an organization and module in
// display order, live options preloaded.
func (ds *DataStore) GetFieldsForModule(organizationID uint, moduleType ModuleType) ([]Field, error) {
	var fields []Field
	err := ds.DB.Preload("Options", "is_deleted = ?", false).
		Where("organization_id = ? AND module_type = ?", organizationID, moduleType).
		Order("display_order ASC").
		Find(&fields).Error
	if err != nil {
		return nil, dbError(err, "get_fields_for_module", "", "organization_id", organizationID)
	}
	return fields, nil
}

// MaxFieldOrder returns the highest display order in use. Freed slots are
// never reused; new columns always append at max+1.
func (ds *DataStore) MaxFieldOrder(organizationID uint, moduleType ModuleType) (int, error) {
	var result struct {
		MaxOrder *int
	}
	err := ds.DB.Model(&Field{}).
		Select("MAX(display_order) as max_order").
		Where("organization_id = ? AND module_type = ?", organizationID, moduleType).
		Scan(&result).Error
	if err != nil {
		return 0, dbError(err, "max_field_order", "", "organization_id", organizationID)
	}
	if result.MaxOrder == nil {
		return 0, nil
	}
	return *result.MaxOrder, nil
}

// CreateField inserts a new field definition.
func (ds *DataStore) CreateField(field *Field) error {
	if field.Name == "" {
		return validationError("field name must not be empty", "name", field.Name)
	}
	if err := ds.DB.Create(field).Error; err != nil {
		return dbError(err, "create_field", "", "field_name", field.Name)
	}
	return nil
}

// CreateFieldOption appends a new allowed value to a field.
func (ds *DataStore) CreateFieldOption(option *FieldOption) error {
	if err := ds.DB.Create(option).Error; err != nil {
		return dbError(err, "create_field_option", "", "field_id", option.FieldID)
	}
	return nil
}

// CreateFieldOptions bulk-inserts options, silently skipping values that
// already exist for their field. Used by the CSV import pipeline where the
// same token may race in from multiple jobs.
func (ds *DataStore) CreateFieldOptions(options []FieldOption) error {
	if len(options) == 0 {
		return nil
	}
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "field_id"}, {Name: "value"}},
		DoNothing: true,
	}).Create(&options).Error
	if err != nil {
		return dbError(err, "create_field_options", "", "count", len(options))
	}
	return nil
}

// SoftDeleteFieldOption flags an option as deleted without removing it, so
// historical values referencing it keep resolving.
func (ds *DataStore) SoftDeleteFieldOption(optionID uint) error {
	result := ds.DB.Model(&FieldOption{}).
		Where("id = ?", optionID).
		Update("is_deleted", true)
	if result.Error != nil {
		return dbError(result.Error, "soft_delete_field_option", "", "option_id", optionID)
	}
	if result.RowsAffected == 0 {
		return notFoundError("field option", fmt.Sprintf("%d", optionID))
	}
	return nil
}

// GetFieldOptions lists the live options of a field with optional pagination.
// page is 1-based; limit <= 0 disables pagination.
func (ds *DataStore) GetFieldOptions(fieldID uint, page, limit int) ([]FieldOption, error) {
	query := ds.DB.Where("field_id = ? AND is_deleted = ?", fieldID, false).
		Order("id ASC")
	if limit > 0 {
		if page < 1 {
			page = 1
		}
		query = query.Limit(limit).Offset((page - 1) * limit)
	}

	var options []FieldOption
	if err := query.Find(&options).Error; err != nil {
		return nil, dbError(err, "get_field_options", "", "field_id", fieldID)
	}
	return options, nil
}

// GetMembers lists the members of an organization.
func (ds *DataStore) GetMembers(organizationID uint) ([]Member, error) {
	var members []Member
	err := ds.DB.Where("organization_id = ?", organizationID).
		Order("name ASC").
		Find(&members).Error
	if err != nil {
		return nil, dbError(err, "get_members", "", "organization_id", organizationID)
	}
	return members, nil
}

// GetMember retrieves a single member by id.
func (ds *DataStore) GetMember(memberID uint) (Member, error) {
	var member Member
	if err := ds.DB.First(&member, memberID).Error; err != nil {
		return Member{}, translateGormError(err, "member", fmt.Sprintf("%d", memberID), "get_member")
	}
	return member, nil
}

// GetCountyFacility resolves the configured facility for a county within one
// organization.
func (ds *DataStore) GetCountyFacility(organizationID uint, county string) (string, error) {
	var mapping CountyMapping
	err := ds.DB.Where("organization_id = ? AND county = ?", organizationID, county).
		First(&mapping).Error
	if err != nil {
		return "", translateGormError(err, "county mapping", county, "get_county_facility")
	}
	return mapping.Facility, nil
}
