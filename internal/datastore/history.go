// history.go implements the append-only history ledger, notification state
// and activity timeline operations
package datastore

import (
	"fmt"
	"strings"
)

// lowerLike lowercases a search term and escapes SQL LIKE metacharacters.
func lowerLike(term string) string {
	term = strings.ToLower(term)
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, "%", `\%`)
	term = strings.ReplaceAll(term, "_", `\_`)
	return term
}

// AppendHistory inserts one ledger row. The ledger is append-only; entries are
// never updated or deleted.
func (ds *DataStore) AppendHistory(entry *HistoryEntry) error {
	if err := ds.DB.Create(entry).Error; err != nil {
		return dbError(err, "append_history", "", "record_id", entry.RecordID)
	}
	return nil
}

// GetHistoryEntry retrieves one ledger row scoped to a record.
func (ds *DataStore) GetHistoryEntry(recordID string, historyID uint) (HistoryEntry, error) {
	var entry HistoryEntry
	err := ds.DB.Where("record_id = ?", recordID).
		First(&entry, historyID).Error
	if err != nil {
		return HistoryEntry{}, translateGormError(err, "history entry", fmt.Sprintf("%d", historyID), "get_history_entry")
	}
	return entry, nil
}

// ListHistory returns a record's ledger newest first. page is 1-based; a
// non-positive limit disables pagination.
func (ds *DataStore) ListHistory(recordID string, page, limit int) ([]HistoryEntry, error) {
	query := ds.DB.Where("record_id = ?", recordID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		if page < 1 {
			page = 1
		}
		query = query.Limit(limit).Offset((page - 1) * limit)
	}

	var entries []HistoryEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, dbError(err, "list_history", "", "record_id", recordID)
	}
	return entries, nil
}

// MarkUnseen creates or refreshes the unseen-change marker for each record.
func (ds *DataStore) MarkUnseen(recordIDs []string) error {
	for _, id := range recordIDs {
		if err := upsertNotification(ds.DB, id); err != nil {
			return dbError(err, "mark_unseen", "", "record_id", id)
		}
	}
	return nil
}

// MarkSeen clears the unseen-change marker; deleting the row is the "seen"
// state.
func (ds *DataStore) MarkSeen(recordID string) error {
	err := ds.DB.Where("record_id = ?", recordID).
		Delete(&NotificationState{}).Error
	if err != nil {
		return dbError(err, "mark_seen", "", "record_id", recordID)
	}
	return nil
}

// ListUnseen returns the ids of an organization's records that carry an
// unseen-change marker.
func (ds *DataStore) ListUnseen(organizationID uint) ([]string, error) {
	var recordIDs []string
	err := ds.DB.Model(&NotificationState{}).
		Joins("JOIN records ON records.id = notification_states.record_id").
		Where("records.organization_id = ?", organizationID).
		Pluck("notification_states.record_id", &recordIDs).Error
	if err != nil {
		return nil, dbError(err, "list_unseen", "", "organization_id", organizationID)
	}
	return recordIDs, nil
}

// CreateActivity appends a timeline entry to a record.
func (ds *DataStore) CreateActivity(activity *Activity) error {
	if err := ds.DB.Create(activity).Error; err != nil {
		return dbError(err, "create_activity", "", "record_id", activity.RecordID)
	}
	return nil
}

// ListActivities returns a record's timeline newest first.
func (ds *DataStore) ListActivities(recordID string, page, limit int) ([]Activity, error) {
	query := ds.DB.Where("record_id = ?", recordID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		if page < 1 {
			page = 1
		}
		query = query.Limit(limit).Offset((page - 1) * limit)
	}

	var activities []Activity
	if err := query.Find(&activities).Error; err != nil {
		return nil, dbError(err, "list_activities", "", "record_id", recordID)
	}
	return activities, nil
}
