package board

import (
	"context"
	"strings"

	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/errors"
	"github.com/leadboard/leadboard-go/internal/realtime"
)

// CreateColumn appends a new field at the end of the module's column order.
// Freed order slots are never reused.
func (s *Service) CreateColumn(ctx context.Context, organizationID uint, moduleType datastore.ModuleType, name string, fieldType datastore.FieldType) (datastore.Field, error) {
	if strings.TrimSpace(name) == "" {
		return datastore.Field{}, errors.ValidationError("column name must not be empty")
	}

	maxOrder, err := s.store.MaxFieldOrder(organizationID, moduleType)
	if err != nil {
		return datastore.Field{}, err
	}

	field := datastore.Field{
		OrganizationID: organizationID,
		ModuleType:     moduleType,
		Name:           name,
		Type:           fieldType,
		DisplayOrder:   maxOrder + 1,
	}
	if err := s.store.CreateField(&field); err != nil {
		return datastore.Field{}, err
	}

	s.purgeAndEmit(organizationID, realtime.EventColumnCreated, map[string]any{
		"field_id": field.ID,
		"name":     field.Name,
		"type":     field.Type,
	})
	return field, nil
}

// AddFieldOption appends a new allowed value to a field. Option values are
// unique case-insensitively within the field.
func (s *Service) AddFieldOption(ctx context.Context, organizationID, fieldID uint, value string) (datastore.FieldOption, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return datastore.FieldOption{}, errors.ValidationError("option value must not be empty")
	}

	if _, err := s.store.GetField(organizationID, fieldID); err != nil {
		return datastore.FieldOption{}, err
	}

	existing, err := s.store.GetFieldOptions(fieldID, 0, 0)
	if err != nil {
		return datastore.FieldOption{}, err
	}
	for i := range existing {
		if strings.EqualFold(existing[i].Value, value) {
			return datastore.FieldOption{}, errors.Newf("option %q already exists", value).
				Component("board").
				Category(errors.CategoryConflict).
				Context("field_id", fieldID).
				Build()
		}
	}

	option := datastore.FieldOption{FieldID: fieldID, Value: value}
	if err := s.store.CreateFieldOption(&option); err != nil {
		return datastore.FieldOption{}, err
	}
	return option, nil
}

// RemoveFieldOption soft-deletes an option. Historical cell values referencing
// it keep resolving.
func (s *Service) RemoveFieldOption(ctx context.Context, organizationID, fieldID, optionID uint) error {
	if _, err := s.store.GetField(organizationID, fieldID); err != nil {
		return err
	}
	return s.store.SoftDeleteFieldOption(optionID)
}

// OptionView is one selectable value of a field, either a stored option or,
// for the assignee pseudo-field, an organization member.
type OptionView struct {
	ID    uint   `json:"id"`
	Value string `json:"value"`
}

// ListFieldOptions lists a field's live options. The ASSIGNED_TO pseudo-field
// has no stored options; the organization's members are returned instead.
func (s *Service) ListFieldOptions(ctx context.Context, organizationID, fieldID uint, page, limit int) ([]OptionView, error) {
	field, err := s.store.GetField(organizationID, fieldID)
	if err != nil {
		return nil, err
	}

	if field.Type == datastore.FieldTypeAssignedTo {
		members, err := s.store.GetMembers(organizationID)
		if err != nil {
			return nil, err
		}
		views := make([]OptionView, 0, len(members))
		for i := range members {
			views = append(views, OptionView{ID: members[i].ID, Value: members[i].Name})
		}
		return views, nil
	}

	options, err := s.store.GetFieldOptions(fieldID, page, limit)
	if err != nil {
		return nil, err
	}
	views := make([]OptionView, 0, len(options))
	for i := range options {
		views = append(views, OptionView{ID: options[i].ID, Value: options[i].Value})
	}
	return views, nil
}
