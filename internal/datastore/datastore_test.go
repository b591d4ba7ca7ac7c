package datastore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadboard/leadboard-go/internal/conf"
	"github.com/leadboard/leadboard-go/internal/errors"
)

// createDatabase initializes a temporary database for testing purposes.
func createDatabase(t *testing.T) Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"

	store := New(settings)
	require.NoError(t, store.Open(), "Failed to open database")

	t.Cleanup(func() {
		assert.NoError(t, store.Close(), "Failed to close datastore")
	})

	return store
}

func strptr(s string) *string { return &s }

// seedFields creates a small schema for org 1 / LEAD and returns the fields
// keyed by name.
func seedFields(t *testing.T, store Interface) map[string]Field {
	t.Helper()
	defs := []Field{
		{OrganizationID: 1, ModuleType: ModuleLead, Name: "Status", Type: FieldTypeStatus, DisplayOrder: 1},
		{OrganizationID: 1, ModuleType: ModuleLead, Name: "Notes", Type: FieldTypeText, DisplayOrder: 2},
		{OrganizationID: 1, ModuleType: ModuleLead, Name: "Email", Type: FieldTypeEmail, DisplayOrder: 3},
	}
	out := make(map[string]Field, len(defs))
	for i := range defs {
		require.NoError(t, store.CreateField(&defs[i]))
		out[defs[i].Name] = defs[i]
	}
	return out
}

func createTestRecord(t *testing.T, store Interface, name string, fields map[string]Field) Record {
	t.Helper()
	record := Record{
		ID:             uuid.NewString(),
		OrganizationID: 1,
		ModuleType:     ModuleLead,
		Name:           name,
		CreatedAt:      time.Now(),
	}
	values := make([]FieldValue, 0, len(fields))
	for _, f := range fields {
		values = append(values, FieldValue{RecordID: record.ID, FieldID: f.ID})
	}
	entry := &HistoryEntry{ColumnName: "Record", NewValue: strptr(name), Action: ActionCreate, CreatedBy: 9, CreatedAt: time.Now()}
	require.NoError(t, store.CreateRecordWithValues(&record, values, entry))
	return record
}

func TestCreateRecordIsTotalOverFields(t *testing.T) {
	store := createDatabase(t)
	fields := seedFields(t, store)

	record := createTestRecord(t, store, "Acme", fields)

	values, err := store.GetFieldValues([]string{record.ID})
	require.NoError(t, err)
	require.Len(t, values, len(fields), "one cell per org field must exist")
	for _, v := range values {
		assert.Nil(t, v.Value, "eagerly created cells start null")
	}

	// The create history entry and the unseen marker exist as a pair.
	history, err := store.ListHistory(record.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ActionCreate, history[0].Action)

	unseen, err := store.ListUnseen(1)
	require.NoError(t, err)
	assert.Contains(t, unseen, record.ID)
}

func TestUpsertFieldValuesTransactional(t *testing.T) {
	store := createDatabase(t)
	fields := seedFields(t, store)
	record := createTestRecord(t, store, "Acme", fields)
	require.NoError(t, store.MarkSeen(record.ID))

	status := fields["Status"]
	notes := fields["Notes"]

	err := store.UpsertFieldValues(record.ID, []ValueUpdate{
		{FieldID: status.ID, Value: strptr("Rejected")},
		{FieldID: notes.ID, Value: strptr("budget")},
	}, []HistoryEntry{
		{ColumnName: "Status", OldValue: nil, NewValue: strptr("Rejected"), Action: ActionUpdate, CreatedBy: 9, CreatedAt: time.Now()},
	})
	require.NoError(t, err)

	got, err := store.GetFieldValue(record.ID, status.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Value)
	assert.Equal(t, "Rejected", *got.Value)

	got, err = store.GetFieldValue(record.ID, notes.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Value)
	assert.Equal(t, "budget", *got.Value)

	// Exactly one history entry for the composite write.
	history, err := store.ListHistory(record.ID, 0, 0)
	require.NoError(t, err)
	updates := 0
	for _, h := range history {
		if h.Action == ActionUpdate {
			updates++
		}
	}
	assert.Equal(t, 1, updates)

	// The write refreshed the unseen marker.
	unseen, err := store.ListUnseen(1)
	require.NoError(t, err)
	assert.Contains(t, unseen, record.ID)
}

func TestUpsertFieldValueOverwrites(t *testing.T) {
	store := createDatabase(t)
	fields := seedFields(t, store)
	record := createTestRecord(t, store, "Acme", fields)
	notes := fields["Notes"]

	require.NoError(t, store.UpsertFieldValues(record.ID, []ValueUpdate{{FieldID: notes.ID, Value: strptr("v1")}}, nil))
	require.NoError(t, store.UpsertFieldValues(record.ID, []ValueUpdate{{FieldID: notes.ID, Value: strptr("v2")}}, nil))

	values, err := store.GetFieldValues([]string{record.ID})
	require.NoError(t, err)
	assert.Len(t, values, len(fields), "upsert must not duplicate the cell")

	got, err := store.GetFieldValue(record.ID, notes.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", *got.Value)
}

func TestListRecordsPredicates(t *testing.T) {
	store := createDatabase(t)
	fields := seedFields(t, store)
	status := fields["Status"]
	notes := fields["Notes"]

	a := createTestRecord(t, store, "Acme Hospital", fields)
	b := createTestRecord(t, store, "Beta Clinic", fields)

	require.NoError(t, store.UpsertFieldValues(a.ID, []ValueUpdate{
		{FieldID: status.ID, Value: strptr("Accepted")},
		{FieldID: notes.ID, Value: strptr("Talked to front desk")},
	}, nil))
	require.NoError(t, store.UpsertFieldValues(b.ID, []ValueUpdate{
		{FieldID: status.ID, Value: strptr("Accepted Later")},
	}, nil))

	// Exact predicate only matches the precise status value.
	records, total, err := store.ListRecords(1, ModuleLead, RecordQuery{
		Predicates: []ValuePredicate{{FieldID: status.ID, Value: "Accepted", Exact: true}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, a.ID, records[0].ID)

	// Contains predicate is substring, case-insensitive.
	records, total, err = store.ListRecords(1, ModuleLead, RecordQuery{
		Predicates: []ValuePredicate{{FieldID: notes.ID, Value: "FRONT", Exact: false}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, a.ID, records[0].ID)

	// Name search is contains, case-insensitive.
	records, _, err = store.ListRecords(1, ModuleLead, RecordQuery{Search: "clinic"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, b.ID, records[0].ID)
}

func TestSoftDeleteExcludesFromListing(t *testing.T) {
	store := createDatabase(t)
	fields := seedFields(t, store)
	a := createTestRecord(t, store, "Acme", fields)
	createTestRecord(t, store, "Beta", fields)

	require.NoError(t, store.SetRecordDeleted(1, []string{a.ID}, true, nil))

	records, total, err := store.ListRecords(1, ModuleLead, RecordQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, records, 1)
	assert.NotEqual(t, a.ID, records[0].ID)

	// The deleted record is still readable directly, flag set.
	got, err := store.GetRecord(1, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	// And restorable.
	require.NoError(t, store.SetRecordDeleted(1, []string{a.ID}, false, nil))
	_, total, err = store.ListRecords(1, ModuleLead, RecordQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestCreateRecordsBatch(t *testing.T) {
	store := createDatabase(t)
	multi := Field{OrganizationID: 1, ModuleType: ModuleReferral, Name: "Type of Facility", Type: FieldTypeMultiselect, DisplayOrder: 1}
	require.NoError(t, store.CreateField(&multi))

	now := time.Now()
	records := []Record{
		{ID: uuid.NewString(), OrganizationID: 1, ModuleType: ModuleReferral, Name: "Acme", CreatedAt: now},
		{ID: uuid.NewString(), OrganizationID: 1, ModuleType: ModuleReferral, Name: "Beta", CreatedAt: now},
	}
	values := []FieldValue{
		{RecordID: records[0].ID, FieldID: multi.ID, Value: strptr("Hospital,Clinic")},
		{RecordID: records[1].ID, FieldID: multi.ID, Value: strptr("Hospital")},
	}
	entries := []HistoryEntry{
		{RecordID: records[0].ID, ColumnName: "Record", NewValue: strptr("Acme"), Action: ActionCreate, CreatedBy: 9, CreatedAt: now},
		{RecordID: records[1].ID, ColumnName: "Record", NewValue: strptr("Beta"), Action: ActionCreate, CreatedBy: 9, CreatedAt: now},
	}
	// The same token staged twice across rows must insert once.
	options := []FieldOption{
		{FieldID: multi.ID, Value: "Hospital"},
		{FieldID: multi.ID, Value: "Clinic"},
	}

	require.NoError(t, store.CreateRecordsBatch(records, values, entries, options))

	opts, err := store.GetFieldOptions(multi.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	// Re-running the option insert is duplicate-safe.
	require.NoError(t, store.CreateFieldOptions([]FieldOption{{FieldID: multi.ID, Value: "Clinic"}}))
	opts, err = store.GetFieldOptions(multi.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	// Per-row identity: each record carries its own staged value.
	got, err := store.GetFieldValue(records[0].ID, multi.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hospital,Clinic", *got.Value)

	unseen, err := store.ListUnseen(1)
	require.NoError(t, err)
	assert.Len(t, unseen, 2)
}

func TestMarkSeen(t *testing.T) {
	store := createDatabase(t)
	fields := seedFields(t, store)
	record := createTestRecord(t, store, "Acme", fields)

	require.NoError(t, store.MarkSeen(record.ID))
	unseen, err := store.ListUnseen(1)
	require.NoError(t, err)
	assert.NotContains(t, unseen, record.ID)

	// Marking seen twice is a no-op, not an error.
	require.NoError(t, store.MarkSeen(record.ID))
}

func TestFieldRegistry(t *testing.T) {
	store := createDatabase(t)
	seedFields(t, store)

	maxOrder, err := store.MaxFieldOrder(1, ModuleLead)
	require.NoError(t, err)
	assert.Equal(t, 3, maxOrder)

	// Empty module starts at zero.
	maxOrder, err = store.MaxFieldOrder(1, ModuleReferral)
	require.NoError(t, err)
	assert.Zero(t, maxOrder)

	field, err := store.GetFieldByName(1, ModuleLead, "Status")
	require.NoError(t, err)
	assert.Equal(t, FieldTypeStatus, field.Type)

	_, err = store.GetFieldByName(1, ModuleLead, "Nope")
	assert.True(t, errors.IsNotFound(err))

	_, err = store.GetField(2, field.ID)
	assert.True(t, errors.IsNotFound(err), "field lookup is organization-scoped")
}

func TestFieldOptionSoftDelete(t *testing.T) {
	store := createDatabase(t)
	field := Field{OrganizationID: 1, ModuleType: ModuleLead, Name: "Stage", Type: FieldTypeDropdown, DisplayOrder: 1}
	require.NoError(t, store.CreateField(&field))

	opt := FieldOption{FieldID: field.ID, Value: "Warm"}
	require.NoError(t, store.CreateFieldOption(&opt))
	require.NoError(t, store.SoftDeleteFieldOption(opt.ID))

	opts, err := store.GetFieldOptions(field.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, opts, "soft-deleted options are hidden from listing")

	err = store.SoftDeleteFieldOption(9999)
	assert.True(t, errors.IsNotFound(err))
}

func TestHistoryRoundTrip(t *testing.T) {
	store := createDatabase(t)
	fields := seedFields(t, store)
	record := createTestRecord(t, store, "Acme", fields)

	entry := HistoryEntry{
		RecordID:   record.ID,
		ColumnName: "Notes",
		OldValue:   strptr("a"),
		NewValue:   strptr("b"),
		Action:     ActionUpdate,
		CreatedBy:  9,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, store.AppendHistory(&entry))

	got, err := store.GetHistoryEntry(record.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", *got.NewValue)

	_, err = store.GetHistoryEntry("other-record", entry.ID)
	assert.True(t, errors.IsNotFound(err), "history lookup is record-scoped")
}

func TestActivities(t *testing.T) {
	store := createDatabase(t)
	fields := seedFields(t, store)
	record := createTestRecord(t, store, "Acme", fields)

	require.NoError(t, store.CreateActivity(&Activity{
		RecordID:  record.ID,
		Type:      ActivityEmail,
		Recipient: "a@example.com",
		Subject:   "Hello",
		Sender:    "gmail:actor-9",
		CreatedBy: 9,
		CreatedAt: time.Now(),
	}))

	activities, err := store.ListActivities(record.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, ActivityEmail, activities[0].Type)
}

func TestCountyFacility(t *testing.T) {
	store := createDatabase(t)
	ds := store.(*SQLiteStore)
	require.NoError(t, ds.DB.Create(&CountyMapping{OrganizationID: 1, County: "Kings", Facility: "Brooklyn Center"}).Error)

	facility, err := store.GetCountyFacility(1, "Kings")
	require.NoError(t, err)
	assert.Equal(t, "Brooklyn Center", facility)

	_, err = store.GetCountyFacility(1, "Queens")
	assert.True(t, errors.IsNotFound(err))
}
