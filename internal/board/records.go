package board

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/errors"
	"github.com/leadboard/leadboard-go/internal/realtime"
)

// CreateRecord creates a record plus an eager null cell for every field of
// the organization and module, so later cell reads are total. The create
// history entry and the unseen marker commit with the record.
func (s *Service) CreateRecord(ctx context.Context, organizationID uint, moduleType datastore.ModuleType, name string, actorID uint) (datastore.Record, error) {
	if strings.TrimSpace(name) == "" {
		return datastore.Record{}, errors.ValidationError("record name must not be empty")
	}

	fields, err := s.store.GetFieldsForModule(organizationID, moduleType)
	if err != nil {
		return datastore.Record{}, err
	}

	record := datastore.Record{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		ModuleType:     moduleType,
		Name:           name,
	}
	values := make([]datastore.FieldValue, 0, len(fields))
	for i := range fields {
		values = append(values, datastore.FieldValue{
			RecordID: record.ID,
			FieldID:  fields[i].ID,
		})
	}
	entry := datastore.HistoryEntry{
		ColumnName: RecordNameColumn,
		NewValue:   &name,
		Action:     datastore.ActionCreate,
		CreatedBy:  actorID,
	}

	if err := s.store.CreateRecordWithValues(&record, values, &entry); err != nil {
		return datastore.Record{}, err
	}

	s.metrics.RecordMutation(datastore.ActionCreate)
	s.purgeAndEmit(organizationID, realtime.EventRecordCreated, map[string]any{
		"record_id": record.ID,
		"name":      name,
	})
	return record, nil
}

// CreateReferralBatch creates one referral record per row, resolving cell
// values by normalized field name. The whole batch lands in a constant number
// of bulk statements inside one transaction. Returns the new record ids in
// row order.
func (s *Service) CreateReferralBatch(ctx context.Context, organizationID uint, rows []map[string]string, actorID uint) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	fields, err := s.store.GetFieldsForModule(organizationID, datastore.ModuleReferral)
	if err != nil {
		return nil, err
	}
	fieldByKey := make(map[string]*datastore.Field, len(fields))
	for i := range fields {
		fieldByKey[NormalizeKey(fields[i].Name)] = &fields[i]
	}

	records := make([]datastore.Record, 0, len(rows))
	values := make([]datastore.FieldValue, 0, len(rows)*len(fields))
	entries := make([]datastore.HistoryEntry, 0, len(rows))
	ids := make([]string, 0, len(rows))

	for _, row := range rows {
		name := ResolveRecordName(row)
		record := datastore.Record{
			ID:             uuid.New().String(),
			OrganizationID: organizationID,
			ModuleType:     datastore.ModuleReferral,
			Name:           name,
		}
		records = append(records, record)
		ids = append(ids, record.ID)

		cellValues := make(map[uint]*string, len(row))
		for header, raw := range row {
			field, ok := fieldByKey[NormalizeKey(header)]
			if !ok {
				continue
			}
			value := strings.TrimSpace(raw)
			if value == "" {
				continue
			}
			if field.Type == datastore.FieldTypeMultiselect {
				list, err := NormalizeMultiselect(value)
				if err != nil {
					return nil, err
				}
				value = strings.Join(list, ",")
			}
			v := value
			cellValues[field.ID] = &v
		}

		// One cell per field regardless of row coverage keeps reads total.
		for i := range fields {
			values = append(values, datastore.FieldValue{
				RecordID: record.ID,
				FieldID:  fields[i].ID,
				Value:    cellValues[fields[i].ID],
			})
		}
		entries = append(entries, datastore.HistoryEntry{
			RecordID:   record.ID,
			ColumnName: RecordNameColumn,
			NewValue:   &record.Name,
			Action:     datastore.ActionCreate,
			CreatedBy:  actorID,
		})
	}

	if err := s.store.CreateRecordsBatch(records, values, entries, nil); err != nil {
		return nil, err
	}

	s.metrics.RecordMutation(datastore.ActionCreate)
	s.purgeAndEmit(organizationID, realtime.EventRecordCreated, map[string]any{
		"count": len(records),
	})
	return ids, nil
}

// DeleteRecords soft-deletes a set of records. The flag flips, the per-record
// delete history entries, and the unseen markers commit together. Cells and
// history are never removed, restore depends on them.
func (s *Service) DeleteRecords(ctx context.Context, organizationID uint, recordIDs []string, actorID uint) error {
	if len(recordIDs) == 0 {
		return nil
	}

	wasDeleted, nowDeleted := "false", "true"
	entries := make([]datastore.HistoryEntry, 0, len(recordIDs))
	for _, id := range recordIDs {
		entries = append(entries, datastore.HistoryEntry{
			RecordID:   id,
			ColumnName: RecordNameColumn,
			OldValue:   &wasDeleted,
			NewValue:   &nowDeleted,
			Action:     datastore.ActionDelete,
			CreatedBy:  actorID,
		})
	}
	if err := s.store.SetRecordDeleted(organizationID, recordIDs, true, entries); err != nil {
		return err
	}

	s.metrics.RecordMutation(datastore.ActionDelete)
	s.purgeAndEmit(organizationID, realtime.EventRecordDeleted, map[string]any{
		"record_ids": recordIDs,
	})
	return nil
}

// RestoreHistoryEntry reverses a prior update or delete. Update restores
// rewrite the field to the entry's old value and append a swapped restore
// entry; delete restores flip the soft-delete flag back. Any other action is
// a no-op.
func (s *Service) RestoreHistoryEntry(ctx context.Context, organizationID uint, recordID string, historyID, actorID uint) error {
	entry, err := s.store.GetHistoryEntry(recordID, historyID)
	if err != nil {
		return err
	}

	switch entry.Action {
	case datastore.ActionUpdate:
		return s.restoreUpdate(organizationID, recordID, &entry, actorID)
	case datastore.ActionDelete:
		return s.restoreDelete(organizationID, recordID, &entry, actorID)
	default:
		return nil
	}
}

func (s *Service) restoreUpdate(organizationID uint, recordID string, entry *datastore.HistoryEntry, actorID uint) error {
	record, err := s.store.GetRecord(organizationID, recordID)
	if err != nil {
		return err
	}
	if record.IsDeleted {
		return errors.NotFoundError("record", recordID)
	}

	field, err := s.store.GetFieldByName(organizationID, record.ModuleType, entry.ColumnName)
	if err != nil {
		return err
	}

	restore := datastore.HistoryEntry{
		ColumnName: entry.ColumnName,
		OldValue:   entry.NewValue,
		NewValue:   entry.OldValue,
		Action:     datastore.ActionRestore,
		CreatedBy:  actorID,
	}
	err = s.store.UpsertFieldValues(recordID,
		[]datastore.ValueUpdate{{FieldID: field.ID, Value: entry.OldValue}},
		[]datastore.HistoryEntry{restore})
	if err != nil {
		return err
	}

	s.metrics.RecordMutation(datastore.ActionRestore)
	s.purgeAndEmit(organizationID, realtime.EventRecordValueUpdated, map[string]any{
		"record_id": recordID,
		"field":     field.Name,
		"value":     derefOrNil(entry.OldValue),
	})
	return nil
}

func (s *Service) restoreDelete(organizationID uint, recordID string, entry *datastore.HistoryEntry, actorID uint) error {
	deleted := false
	if entry.OldValue != nil {
		parsed, err := strconv.ParseBool(*entry.OldValue)
		if err != nil {
			return errors.ValidationError("delete history entry carries a non-boolean value")
		}
		deleted = parsed
	}

	restore := datastore.HistoryEntry{
		RecordID:   recordID,
		ColumnName: entry.ColumnName,
		OldValue:   entry.NewValue,
		NewValue:   entry.OldValue,
		Action:     datastore.ActionRestore,
		CreatedBy:  actorID,
	}
	if err := s.store.SetRecordDeleted(organizationID, []string{recordID}, deleted,
		[]datastore.HistoryEntry{restore}); err != nil {
		return err
	}

	s.metrics.RecordMutation(datastore.ActionRestore)
	s.purgeAndEmit(organizationID, realtime.EventRecordRestored, map[string]any{
		"record_id": recordID,
	})
	return nil
}

// ListHistory returns the record's ledger, newest first.
func (s *Service) ListHistory(ctx context.Context, organizationID uint, recordID string, page, limit int) ([]datastore.HistoryEntry, error) {
	if _, err := s.store.GetRecord(organizationID, recordID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(recordID, page, limit)
}

// ListActivities returns the record's timeline entries, newest first.
func (s *Service) ListActivities(ctx context.Context, organizationID uint, recordID string, page, limit int) ([]datastore.Activity, error) {
	if _, err := s.store.GetRecord(organizationID, recordID); err != nil {
		return nil, err
	}
	return s.store.ListActivities(recordID, page, limit)
}

// MarkRecordSeen clears the record's unseen-change marker.
func (s *Service) MarkRecordSeen(ctx context.Context, organizationID uint, recordID string) error {
	if _, err := s.store.GetRecord(organizationID, recordID); err != nil {
		return err
	}
	return s.store.MarkSeen(recordID)
}

// ListUnseenRecords returns ids of the organization's records with unseen
// changes.
func (s *Service) ListUnseenRecords(ctx context.Context, organizationID uint) ([]string, error) {
	return s.store.ListUnseen(organizationID)
}
