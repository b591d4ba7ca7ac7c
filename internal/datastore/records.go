// records.go implements record and EAV cell operations
package datastore

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRecordWithValues creates a record, its eager null-valued cells, the
// create history entry and the unseen-change marker as one transaction. The
// history entry and notification marker must both exist after commit; a
// partial pair is never observable.
func (ds *DataStore) CreateRecordWithValues(record *Record, values []FieldValue, entry *HistoryEntry) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		if len(values) > 0 {
			if err := tx.Create(&values).Error; err != nil {
				return err
			}
		}
		if entry != nil {
			entry.RecordID = record.ID
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return upsertNotification(tx, record.ID)
	})
	if err != nil {
		return dbError(err, "create_record", "", "record_id", record.ID)
	}
	return nil
}

// CreateRecordsBatch inserts a whole referral/import batch with a constant
// number of bulk statements: one for records, one for new options, one for
// cells, one for history, one for unseen markers. This is what keeps batch
// creation from degrading to N round trips per row.
func (ds *DataStore) CreateRecordsBatch(records []Record, values []FieldValue, entries []HistoryEntry, options []FieldOption) error {
	if len(records) == 0 {
		return nil
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return err
		}
		if len(options) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "field_id"}, {Name: "value"}},
				DoNothing: true,
			}).Create(&options).Error; err != nil {
				return err
			}
		}
		if len(values) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "record_id"}, {Name: "field_id"}},
				DoNothing: true,
			}).Create(&values).Error; err != nil {
				return err
			}
		}
		if len(entries) > 0 {
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
		}
		markers := make([]NotificationState, 0, len(records))
		now := time.Now()
		for i := range records {
			markers = append(markers, NotificationState{RecordID: records[i].ID, UpdatedAt: now})
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).Create(&markers).Error
	})
	if err != nil {
		return dbError(err, "create_records_batch", "", "count", len(records))
	}
	return nil
}

// GetRecord retrieves a record by id scoped to one organization. Soft-deleted
// records are returned; callers that require a live record check IsDeleted.
func (ds *DataStore) GetRecord(organizationID uint, recordID string) (Record, error) {
	var record Record
	err := ds.DB.Where("organization_id = ?", organizationID).
		First(&record, "id = ?", recordID).Error
	if err != nil {
		return Record{}, translateGormError(err, "record", recordID, "get_record")
	}
	return record, nil
}

// GetRecordsByIDs returns the live (not soft-deleted) records among the given
// ids. Unresolvable ids are silently absent from the result.
func (ds *DataStore) GetRecordsByIDs(organizationID uint, recordIDs []string) ([]Record, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	var records []Record
	err := ds.DB.Where("organization_id = ? AND is_deleted = ? AND id IN ?", organizationID, false, recordIDs).
		Find(&records).Error
	if err != nil {
		return nil, dbError(err, "get_records_by_ids", "", "count", len(recordIDs))
	}
	return records, nil
}

// UpdateRecordName renames a record.
func (ds *DataStore) UpdateRecordName(organizationID uint, recordID, name string) error {
	result := ds.DB.Model(&Record{}).
		Where("organization_id = ? AND id = ?", organizationID, recordID).
		Update("name", name)
	if result.Error != nil {
		return dbError(result.Error, "update_record_name", "", "record_id", recordID)
	}
	if result.RowsAffected == 0 {
		return notFoundError("record", recordID)
	}
	return nil
}

// UpdateRecordAssignee rewrites the assigned_to column. A nil memberID clears
// the assignment.
func (ds *DataStore) UpdateRecordAssignee(organizationID uint, recordID string, memberID *uint) error {
	result := ds.DB.Model(&Record{}).
		Where("organization_id = ? AND id = ?", organizationID, recordID).
		Update("assigned_to", memberID)
	if result.Error != nil {
		return dbError(result.Error, "update_record_assignee", "", "record_id", recordID)
	}
	if result.RowsAffected == 0 {
		return notFoundError("record", recordID)
	}
	return nil
}

// SetRecordDeleted flips the soft-delete flag for a set of records, appends
// the caller's history entries in one bulk insert, and refreshes the unseen
// markers, all in one transaction. A record never ends up flagged without its
// ledger entry. Cells and history are retained for audit and restore.
func (ds *DataStore) SetRecordDeleted(organizationID uint, recordIDs []string, deleted bool, entries []HistoryEntry) error {
	if len(recordIDs) == 0 {
		return nil
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Record{}).
			Where("organization_id = ? AND id IN ?", organizationID, recordIDs).
			Update("is_deleted", deleted).Error; err != nil {
			return err
		}
		if len(entries) > 0 {
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
		}
		markers := make([]NotificationState, 0, len(recordIDs))
		now := time.Now()
		for _, id := range recordIDs {
			markers = append(markers, NotificationState{RecordID: id, UpdatedAt: now})
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).Create(&markers).Error
	})
	if err != nil {
		return dbError(err, "set_record_deleted", "", "count", len(recordIDs))
	}
	return nil
}

// GetFieldValue retrieves one EAV cell. Cells exist for every field of the
// record's organization, so a missing row indicates the record or field id is
// foreign to this record.
func (ds *DataStore) GetFieldValue(recordID string, fieldID uint) (FieldValue, error) {
	var value FieldValue
	err := ds.DB.Where("record_id = ? AND field_id = ?", recordID, fieldID).
		First(&value).Error
	if err != nil {
		return FieldValue{}, translateGormError(err, "field value", recordID, "get_field_value")
	}
	return value, nil
}

// GetFieldValues loads all cells for a set of records in one query.
func (ds *DataStore) GetFieldValues(recordIDs []string) ([]FieldValue, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	var values []FieldValue
	err := ds.DB.Where("record_id IN ?", recordIDs).Find(&values).Error
	if err != nil {
		return nil, dbError(err, "get_field_values", "", "count", len(recordIDs))
	}
	return values, nil
}

// UpsertFieldValues applies a set of cell writes plus their history entries
// and refreshes the record's unseen marker, all inside one transaction. Every
// composite branch of the update engine (Status fan-out, County fan-out,
// location fan-out) funnels through here so its writes commit or roll back
// together.
func (ds *DataStore) UpsertFieldValues(recordID string, updates []ValueUpdate, entries []HistoryEntry) error {
	if len(updates) == 0 && len(entries) == 0 {
		return nil
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for i := range updates {
			value := FieldValue{
				RecordID:  recordID,
				FieldID:   updates[i].FieldID,
				Value:     updates[i].Value,
				UpdatedAt: now,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "record_id"}, {Name: "field_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&value).Error; err != nil {
				return err
			}
		}
		for i := range entries {
			entries[i].RecordID = recordID
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
		}
		return upsertNotification(tx, recordID)
	})
	if err != nil {
		return dbError(err, "upsert_field_values", "", "record_id", recordID, "updates", len(updates))
	}
	return nil
}

// upsertNotification refreshes the unseen-change marker for a record.
func upsertNotification(tx *gorm.DB, recordID string) error {
	marker := NotificationState{RecordID: recordID, UpdatedAt: time.Now()}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(&marker).Error
}

// ListRecords applies the resolved filters and returns one page of live
// records plus the total match count. Per-field predicates translate to EXISTS
// subqueries against the cell table; equality or contains semantics were
// already chosen per field type by the caller.
func (ds *DataStore) ListRecords(organizationID uint, moduleType ModuleType, query RecordQuery) ([]Record, int64, error) {
	q := ds.DB.Model(&Record{}).
		Where("organization_id = ? AND module_type = ? AND is_deleted = ?", organizationID, moduleType, false)

	if query.DateFrom != nil {
		q = q.Where("created_at >= ?", *query.DateFrom)
	}
	if query.DateTo != nil {
		q = q.Where("created_at <= ?", *query.DateTo)
	}
	if query.Search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+lowerLike(query.Search)+"%")
	}

	for _, p := range query.Predicates {
		if p.Exact {
			q = q.Where(
				"EXISTS (SELECT 1 FROM field_values fv WHERE fv.record_id = records.id AND fv.field_id = ? AND fv.value = ?)",
				p.FieldID, p.Value,
			)
		} else {
			q = q.Where(
				"EXISTS (SELECT 1 FROM field_values fv WHERE fv.record_id = records.id AND fv.field_id = ? AND LOWER(fv.value) LIKE ?)",
				p.FieldID, "%"+lowerLike(p.Value)+"%",
			)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, dbError(err, "list_records_count", "", "organization_id", organizationID)
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}

	var records []Record
	err := q.Order("created_at " + sortAscendingString(false)).
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, dbError(err, "list_records", "", "organization_id", organizationID)
	}

	return records, total, nil
}
