package board

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/errors"
	"github.com/leadboard/leadboard-go/internal/realtime"
)

// UpdateRequest carries one field update through the engine.
type UpdateRequest struct {
	OrganizationID uint
	ModuleType     datastore.ModuleType
	RecordID       string
	FieldID        uint
	Value          any     // string, number, bool, or list for multiselect
	Reason         *string // optional, consumed by the Status composite
	ActorID        uint
}

// errValueUnchanged signals a branch that skipped its write because the
// stored value already matches the request.
var errValueUnchanged = errors.NewStd("value unchanged")

// updateTarget is the dispatch variant resolved once per update call, so the
// branch taken is explicit rather than scattered string comparisons.
type updateTarget int

const (
	targetRealField updateTarget = iota
	targetAssignedTo
	targetRecordName
	targetLocation
	targetMultiselect
	targetStatusComposite
	targetCountyComposite
)

// classifyTarget resolves the dispatch variant for a field. Pseudo-fields win
// over type dispatch, type dispatch wins over semantic-name dispatch.
func classifyTarget(field *datastore.Field, moduleType datastore.ModuleType) updateTarget {
	switch {
	case field.Type == datastore.FieldTypeAssignedTo:
		return targetAssignedTo
	case field.Name == RecordNameColumn:
		return targetRecordName
	case field.Type == datastore.FieldTypeLocation:
		return targetLocation
	case field.Type == datastore.FieldTypeMultiselect:
		return targetMultiselect
	case field.Name == CountyFieldName && moduleType == datastore.ModuleReferral:
		return targetCountyComposite
	case field.Name == StatusFieldName:
		return targetStatusComposite
	default:
		return targetRealField
	}
}

// UpdateFieldValue applies one field update. Each branch's writes share a
// single transaction; across branches there is no global lock, so concurrent
// updates to different fields of the same record may interleave. Shared
// derived fields (County and Facility) can race between writers, which is an
// accepted consistency caveat of the engine.
func (s *Service) UpdateFieldValue(ctx context.Context, req *UpdateRequest) error {
	field, err := s.store.GetField(req.OrganizationID, req.FieldID)
	if err != nil {
		return err
	}

	var stored *string
	switch classifyTarget(&field, req.ModuleType) {
	case targetAssignedTo:
		stored, err = s.updateAssignee(req, &field)
	case targetRecordName:
		stored, err = s.updateRecordName(req, &field)
	case targetLocation:
		stored, err = s.updateLocation(ctx, req, &field)
	case targetMultiselect:
		stored, err = s.updateMultiselect(req, &field)
	case targetStatusComposite:
		stored, err = s.updateStatusComposite(req, &field)
	case targetCountyComposite:
		stored, err = s.updateCountyComposite(req, &field)
	default:
		stored, err = s.updateScalar(req, &field)
	}
	if err != nil {
		// An unchanged write did nothing, so no purge, metric, or broadcast.
		if errors.Is(err, errValueUnchanged) {
			return nil
		}
		return err
	}

	s.metrics.RecordMutation(datastore.ActionUpdate)
	// Downstream observers key on the field's display name, not its id.
	s.purgeAndEmit(req.OrganizationID, realtime.EventRecordValueUpdated, map[string]any{
		"record_id": req.RecordID,
		"field":     field.Name,
		"value":     derefOrNil(stored),
	})
	return nil
}

func derefOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// updateScalar is the default path: upsert the cell and append the
// previous-to-new history delta.
func (s *Service) updateScalar(req *UpdateRequest, field *datastore.Field) (*string, error) {
	value, err := coerceScalar(req.Value)
	if err != nil {
		return nil, err
	}

	previous, err := s.store.GetFieldValue(req.RecordID, field.ID)
	if err != nil {
		return nil, err
	}

	stored := &value
	if value == "" {
		stored = nil
	}
	entry := datastore.HistoryEntry{
		ColumnName: field.Name,
		OldValue:   previous.Value,
		NewValue:   stored,
		Action:     datastore.ActionUpdate,
		CreatedBy:  req.ActorID,
	}
	err = s.store.UpsertFieldValues(req.RecordID,
		[]datastore.ValueUpdate{{FieldID: field.ID, Value: stored}},
		[]datastore.HistoryEntry{entry})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// updateMultiselect normalizes the incoming value into a deduplicated ordered
// list and stores it comma-joined. Multiselect writes carry no history entry.
func (s *Service) updateMultiselect(req *UpdateRequest, field *datastore.Field) (*string, error) {
	list, err := NormalizeMultiselect(req.Value)
	if err != nil {
		return nil, err
	}

	var stored *string
	if len(list) > 0 {
		joined := strings.Join(list, ",")
		stored = &joined
	}
	err = s.store.UpsertFieldValues(req.RecordID,
		[]datastore.ValueUpdate{{FieldID: field.ID, Value: stored}}, nil)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// updateAssignee rewrites the record's assignee and writes history using the
// member names rather than their ids.
func (s *Service) updateAssignee(req *UpdateRequest, field *datastore.Field) (*string, error) {
	record, err := s.store.GetRecord(req.OrganizationID, req.RecordID)
	if err != nil {
		return nil, err
	}

	memberID, err := parseMemberID(req.Value)
	if err != nil {
		return nil, err
	}

	var oldName, newName *string
	if record.AssignedTo != nil {
		member, err := s.store.GetMember(*record.AssignedTo)
		if err == nil {
			oldName = &member.Name
		} else if !errors.IsNotFound(err) {
			return nil, err
		}
	}
	if memberID != nil {
		member, err := s.store.GetMember(*memberID)
		if err != nil {
			return nil, err
		}
		if member.OrganizationID != req.OrganizationID {
			return nil, errors.NotFoundError("member", strconv.FormatUint(uint64(*memberID), 10))
		}
		newName = &member.Name
	}

	if err := s.store.UpdateRecordAssignee(req.OrganizationID, req.RecordID, memberID); err != nil {
		return nil, err
	}
	entry := datastore.HistoryEntry{
		RecordID:   req.RecordID,
		ColumnName: field.Name,
		OldValue:   oldName,
		NewValue:   newName,
		Action:     datastore.ActionUpdate,
		CreatedBy:  req.ActorID,
	}
	if err := s.store.AppendHistory(&entry); err != nil {
		return nil, err
	}
	if err := s.store.MarkUnseen([]string{req.RecordID}); err != nil {
		return nil, err
	}
	return newName, nil
}

// parseMemberID accepts a numeric or string member id; empty input clears the
// assignment.
func parseMemberID(raw any) (*uint, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return nil, errors.New(err).
				Component("board").
				Category(errors.CategoryValidation).
				Context("value", v).
				Build()
		}
		id := uint(parsed)
		return &id, nil
	case float64:
		id := uint(v)
		return &id, nil
	case int:
		id := uint(v)
		return &id, nil
	case uint:
		return &v, nil
	default:
		return nil, errors.Newf("unsupported assignee value type %T", raw).
			Component("board").
			Category(errors.CategoryValidation).
			Build()
	}
}

// updateRecordName renames the record through the synthetic "Record" field.
func (s *Service) updateRecordName(req *UpdateRequest, field *datastore.Field) (*string, error) {
	name, err := coerceScalar(req.Value)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.ValidationError("record name must not be empty")
	}

	record, err := s.store.GetRecord(req.OrganizationID, req.RecordID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateRecordName(req.OrganizationID, req.RecordID, name); err != nil {
		return nil, err
	}
	entry := datastore.HistoryEntry{
		RecordID:   req.RecordID,
		ColumnName: field.Name,
		OldValue:   &record.Name,
		NewValue:   &name,
		Action:     datastore.ActionUpdate,
		CreatedBy:  req.ActorID,
	}
	if err := s.store.AppendHistory(&entry); err != nil {
		return nil, err
	}
	if err := s.store.MarkUnseen([]string{req.RecordID}); err != nil {
		return nil, err
	}
	return &name, nil
}

// updateStatusComposite writes the status cell and conditionally its linked
// Reason and Action Date siblings in one transaction. Only the status write
// itself lands in history.
func (s *Service) updateStatusComposite(req *UpdateRequest, field *datastore.Field) (*string, error) {
	value, err := coerceScalar(req.Value)
	if err != nil {
		return nil, err
	}

	previous, err := s.store.GetFieldValue(req.RecordID, field.ID)
	if err != nil {
		return nil, err
	}

	stored := &value
	if value == "" {
		stored = nil
	}
	updates := []datastore.ValueUpdate{{FieldID: field.ID, Value: stored}}

	if req.Reason != nil {
		if reasonField, err := s.store.GetFieldByName(req.OrganizationID, req.ModuleType, ReasonFieldName); err == nil {
			updates = append(updates, datastore.ValueUpdate{FieldID: reasonField.ID, Value: req.Reason})
		} else if !errors.IsNotFound(err) {
			return nil, err
		}
	}
	if dateField, err := s.store.GetFieldByName(req.OrganizationID, req.ModuleType, ActionDateFieldName); err == nil {
		stamp := time.Now().Format(time.RFC3339)
		updates = append(updates, datastore.ValueUpdate{FieldID: dateField.ID, Value: &stamp})
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	entry := datastore.HistoryEntry{
		ColumnName: field.Name,
		OldValue:   previous.Value,
		NewValue:   stored,
		Action:     datastore.ActionUpdate,
		CreatedBy:  req.ActorID,
	}
	if err := s.store.UpsertFieldValues(req.RecordID, updates, []datastore.HistoryEntry{entry}); err != nil {
		return nil, err
	}
	return stored, nil
}

// updateCountyComposite writes the county cell and routes the linked Facility
// field from the organization's county mapping, committing both or neither.
func (s *Service) updateCountyComposite(req *UpdateRequest, field *datastore.Field) (*string, error) {
	value, err := coerceScalar(req.Value)
	if err != nil {
		return nil, err
	}

	previous, err := s.store.GetFieldValue(req.RecordID, field.ID)
	if err != nil {
		return nil, err
	}

	stored := &value
	if value == "" {
		stored = nil
	}
	updates := []datastore.ValueUpdate{{FieldID: field.ID, Value: stored}}

	if stored != nil {
		facility, err := s.store.GetCountyFacility(req.OrganizationID, value)
		switch {
		case err == nil:
			if facilityField, ferr := s.store.GetFieldByName(req.OrganizationID, req.ModuleType, FacilityFieldName); ferr == nil {
				updates = append(updates, datastore.ValueUpdate{FieldID: facilityField.ID, Value: &facility})
			} else if !errors.IsNotFound(ferr) {
				return nil, ferr
			}
		case errors.IsNotFound(err):
			// Unmapped county, the county cell still updates.
		default:
			return nil, err
		}
	}

	entry := datastore.HistoryEntry{
		ColumnName: field.Name,
		OldValue:   previous.Value,
		NewValue:   stored,
		Action:     datastore.ActionUpdate,
		CreatedBy:  req.ActorID,
	}
	if err := s.store.UpsertFieldValues(req.RecordID, updates, []datastore.HistoryEntry{entry}); err != nil {
		return nil, err
	}
	return stored, nil
}

// updateLocation resolves the address through the geocoder and fans the
// result out across the named destination fields. An empty address nulls the
// destinations instead. Geocoding failure aborts the whole update.
func (s *Service) updateLocation(ctx context.Context, req *UpdateRequest, field *datastore.Field) (*string, error) {
	address, err := coerceScalar(req.Value)
	if err != nil {
		return nil, err
	}
	address = strings.TrimSpace(address)

	previous, err := s.store.GetFieldValue(req.RecordID, field.ID)
	if err != nil {
		return nil, err
	}
	if previous.Value != nil && *previous.Value == address {
		return previous.Value, errValueUnchanged
	}

	fields, err := s.store.GetFieldsForModule(req.OrganizationID, req.ModuleType)
	if err != nil {
		return nil, err
	}
	destByName := make(map[string]uint, len(locationDestinations))
	for i := range fields {
		if fields[i].ID == field.ID {
			continue
		}
		for _, name := range locationDestinations {
			if fields[i].Name == name {
				destByName[name] = fields[i].ID
			}
		}
	}

	var stored *string
	updates := []datastore.ValueUpdate{{FieldID: field.ID, Value: nil}}
	if address == "" {
		for _, id := range destByName {
			updates = append(updates, datastore.ValueUpdate{FieldID: id, Value: nil})
		}
	} else {
		located, err := s.geocoder.Geocode(ctx, address)
		if err != nil {
			return nil, err
		}
		stored = &address
		updates[0].Value = stored

		county := strings.TrimSuffix(located.County, " County")
		for name, value := range map[string]string{
			"Address":  address,
			"City":     located.City,
			"State":    located.State,
			"Zip Code": located.Zip,
			"County":   county,
			"Country":  located.Country,
		} {
			id, ok := destByName[name]
			if !ok {
				continue
			}
			v := value
			updates = append(updates, datastore.ValueUpdate{FieldID: id, Value: &v})
		}
	}

	entry := datastore.HistoryEntry{
		ColumnName: field.Name,
		OldValue:   previous.Value,
		NewValue:   stored,
		Action:     datastore.ActionUpdate,
		CreatedBy:  req.ActorID,
	}
	if err := s.store.UpsertFieldValues(req.RecordID, updates, []datastore.HistoryEntry{entry}); err != nil {
		return nil, err
	}
	return stored, nil
}
