package bulk

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadboard/leadboard-go/internal/conf"
	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/errors"
	"github.com/leadboard/leadboard-go/internal/jobqueue"
	"github.com/leadboard/leadboard-go/internal/mailer"
)

// fakeProvider scripts TrySend outcomes per recipient address.
type fakeProvider struct {
	name      string
	delivered map[string]bool  // address -> accept
	hardFail  map[string]error // address -> error
	sent      []string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) TrySend(ctx context.Context, msg mailer.Message) (bool, error) {
	if err := p.hardFail[msg.To]; err != nil {
		return false, err
	}
	if p.delivered[msg.To] {
		p.sent = append(p.sent, msg.To)
		return true, nil
	}
	return false, nil
}

// fakeSender is the scripted default transactional sender.
type fakeSender struct {
	fail map[string]error
	sent []string
}

func (s *fakeSender) Name() string { return "default" }

func (s *fakeSender) Send(ctx context.Context, to, subject, htmlBody, from string) error {
	if err := s.fail[to]; err != nil {
		return err
	}
	s.sent = append(s.sent, to)
	return nil
}

func noProgress(jobqueue.Progress) {}

func openStore(t *testing.T) datastore.Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"
	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func seedEmailField(t *testing.T, store datastore.Interface, module datastore.ModuleType) datastore.Field {
	t.Helper()
	field := datastore.Field{
		OrganizationID: 1, ModuleType: module,
		Name: "Email", Type: datastore.FieldTypeEmail, DisplayOrder: 1,
	}
	require.NoError(t, store.CreateField(&field))
	return field
}

func seedRecordWithEmail(t *testing.T, store datastore.Interface, emailField *datastore.Field, name, address string) datastore.Record {
	t.Helper()
	record := datastore.Record{
		ID:             fmt.Sprintf("rec-%s", name),
		OrganizationID: 1,
		ModuleType:     emailField.ModuleType,
		Name:           name,
	}
	var value *string
	if address != "" {
		value = &address
	}
	values := []datastore.FieldValue{{RecordID: record.ID, FieldID: emailField.ID, Value: value}}
	require.NoError(t, store.CreateRecordWithValues(&record, values, nil))
	return record
}

func TestBulkEmailTalliesAlwaysSumToTotal(t *testing.T) {
	store := openStore(t)
	emailField := seedEmailField(t, store, datastore.ModuleLead)

	a := seedRecordWithEmail(t, store, &emailField, "a", "a@example.com")
	b := seedRecordWithEmail(t, store, &emailField, "b", "") // no email -> skipped
	c := seedRecordWithEmail(t, store, &emailField, "c", "c@example.com")

	gmail := &fakeProvider{
		name:      "gmail",
		delivered: map[string]bool{"a@example.com": true},
		hardFail:  map[string]error{"c@example.com": errors.NewStd("mailbox on fire")},
	}
	sender := &fakeSender{}
	action := NewEmailAction(store, map[string]mailer.Provider{SendViaGmail: gmail}, sender, "crm@example.com", nil, nil)

	result, err := action.Execute(context.Background(), &EmailInput{
		OrganizationID: 1,
		ModuleType:     datastore.ModuleLead,
		RecordIDs:      []string{a.ID, b.ID, c.ID, "no-such-record"},
		Subject:        "Hello",
		Body:           "<p>Hi</p>",
		ActorID:        9,
		SendVia:        SendViaGmail,
	}, noProgress)
	require.NoError(t, err)

	tally := result.(*EmailResult)
	assert.Equal(t, 1, tally.Sent)
	assert.Equal(t, 2, tally.Skipped, "missing email and unresolvable id both skip")
	assert.Equal(t, 1, tally.Errors)
	assert.Equal(t, 4, tally.Total)
	assert.Equal(t, tally.Total, tally.Sent+tally.Skipped+tally.Errors)
}

func TestBulkEmailAutoChainFallsThroughToDefaultSender(t *testing.T) {
	store := openStore(t)
	emailField := seedEmailField(t, store, datastore.ModuleLead)
	record := seedRecordWithEmail(t, store, &emailField, "a", "a@example.com")

	// Both providers decline recoverably; the default sender must deliver.
	gmail := &fakeProvider{name: "gmail"}
	outlook := &fakeProvider{name: "outlook"}
	sender := &fakeSender{}
	action := NewEmailAction(store, map[string]mailer.Provider{
		SendViaGmail:   gmail,
		SendViaOutlook: outlook,
	}, sender, "crm@example.com", nil, nil)

	result, err := action.Execute(context.Background(), &EmailInput{
		OrganizationID: 1,
		ModuleType:     datastore.ModuleLead,
		RecordIDs:      []string{record.ID},
		Subject:        "Hello",
		Body:           "<p>Hi</p>",
		ActorID:        9,
		SendVia:        SendViaAuto,
	}, noProgress)
	require.NoError(t, err)

	tally := result.(*EmailResult)
	assert.Equal(t, 1, tally.Sent)
	assert.Equal(t, []string{"a@example.com"}, sender.sent)

	// The activity records the sender identity actually used.
	activities, err := store.ListActivities(record.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, datastore.ActivityEmail, activities[0].Type)
	assert.Equal(t, "default", activities[0].Sender)
	assert.Equal(t, "a@example.com", activities[0].Recipient)
	assert.Equal(t, "Hello", activities[0].Subject)
}

func TestBulkEmailMissingEmailFieldIsFatal(t *testing.T) {
	store := openStore(t)
	field := datastore.Field{
		OrganizationID: 1, ModuleType: datastore.ModuleLead,
		Name: "Notes", Type: datastore.FieldTypeText, DisplayOrder: 1,
	}
	require.NoError(t, store.CreateField(&field))

	action := NewEmailAction(store, nil, &fakeSender{}, "crm@example.com", nil, nil)
	_, err := action.Execute(context.Background(), &EmailInput{
		OrganizationID: 1,
		ModuleType:     datastore.ModuleLead,
		RecordIDs:      []string{"any"},
		ActorID:        9,
	}, noProgress)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMailDelivery))
}

func TestBulkEmailReportsMonotonicProgress(t *testing.T) {
	store := openStore(t)
	emailField := seedEmailField(t, store, datastore.ModuleLead)
	var ids []string
	for i := 0; i < 4; i++ {
		record := seedRecordWithEmail(t, store, &emailField, fmt.Sprintf("r%d", i), fmt.Sprintf("r%d@example.com", i))
		ids = append(ids, record.ID)
	}

	sender := &fakeSender{}
	action := NewEmailAction(store, nil, sender, "crm@example.com", nil, nil)

	var percents []int
	_, err := action.Execute(context.Background(), &EmailInput{
		OrganizationID: 1,
		ModuleType:     datastore.ModuleLead,
		RecordIDs:      ids,
		ActorID:        9,
	}, func(p jobqueue.Progress) { percents = append(percents, p.Percent) })
	require.NoError(t, err)

	require.NotEmpty(t, percents)
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}
	assert.Equal(t, 100, percents[len(percents)-1])
}

func TestCSVImportCreatesRecordsOptionsAndCells(t *testing.T) {
	store := openStore(t)
	facility := datastore.Field{
		OrganizationID: 1, ModuleType: datastore.ModuleLead,
		Name: "Type of Facility", Type: datastore.FieldTypeMultiselect, DisplayOrder: 1,
	}
	require.NoError(t, store.CreateField(&facility))
	notes := datastore.Field{
		OrganizationID: 1, ModuleType: datastore.ModuleLead,
		Name: "Notes", Type: datastore.FieldTypeText, DisplayOrder: 2,
	}
	require.NoError(t, store.CreateField(&notes))

	action := NewImportAction(store, nil, nil)
	result, err := action.Execute(context.Background(), &ImportInput{
		OrganizationID: 1,
		ModuleType:     datastore.ModuleLead,
		ActorID:        9,
		Rows: []map[string]string{
			{"Company Name": "Acme", "Type of Facility": "Hospital, Clinic"},
			{"Company Name": "Bolt", "Type of Facility": "Clinic", "Notes": "warm intro"},
			{"Contact": "no name headers here"},
		},
	}, noProgress)
	require.NoError(t, err)

	tally := result.(*ImportResult)
	assert.Equal(t, 3, tally.Imported)
	// Hospital and Clinic once each, the repeated Clinic does not re-stage.
	assert.Equal(t, 2, tally.NewOptions)

	options, err := store.GetFieldOptions(facility.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, options, 2)
	got := []string{options[0].Value, options[1].Value}
	assert.ElementsMatch(t, []string{"Hospital", "Clinic"}, got)

	// Per-row identity: each record's cells belong to its own row.
	view, _, err := store.ListRecords(1, datastore.ModuleLead, datastore.RecordQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, view, 3)
	byName := map[string]string{}
	for _, record := range view {
		byName[record.Name] = record.ID
	}
	require.Contains(t, byName, "Acme")
	require.Contains(t, byName, "Bolt")
	require.Contains(t, byName, "Untitled Lead")

	acmeValue, err := store.GetFieldValue(byName["Acme"], facility.ID)
	require.NoError(t, err)
	require.NotNil(t, acmeValue.Value)
	assert.Equal(t, "Hospital,Clinic", *acmeValue.Value)

	boltNotes, err := store.GetFieldValue(byName["Bolt"], notes.ID)
	require.NoError(t, err)
	require.NotNil(t, boltNotes.Value)
	assert.Equal(t, "warm intro", *boltNotes.Value)

	// Unmatched headers resolve to no cell, never an error.
	untitled, err := store.GetFieldValue(byName["Untitled Lead"], facility.ID)
	require.NoError(t, err)
	assert.Nil(t, untitled.Value)
}

func TestCSVImportDoesNotDuplicateExistingOptions(t *testing.T) {
	store := openStore(t)
	dropdown := datastore.Field{
		OrganizationID: 1, ModuleType: datastore.ModuleLead,
		Name: "Priority", Type: datastore.FieldTypeDropdown, DisplayOrder: 1,
	}
	require.NoError(t, store.CreateField(&dropdown))
	require.NoError(t, store.CreateFieldOption(&datastore.FieldOption{FieldID: dropdown.ID, Value: "High"}))

	action := NewImportAction(store, nil, nil)
	result, err := action.Execute(context.Background(), &ImportInput{
		OrganizationID: 1,
		ModuleType:     datastore.ModuleLead,
		ActorID:        9,
		Rows: []map[string]string{
			{"Company Name": "Acme", "Priority": "high"},
			{"Company Name": "Bolt", "Priority": "Low"},
		},
	}, noProgress)
	require.NoError(t, err)

	tally := result.(*ImportResult)
	assert.Equal(t, 1, tally.NewOptions, "case-insensitive match against existing options")

	options, err := store.GetFieldOptions(dropdown.ID, 0, 0)
	require.NoError(t, err)
	values := make([]string, 0, len(options))
	for _, o := range options {
		values = append(values, o.Value)
	}
	assert.ElementsMatch(t, []string{"High", "Low"}, values)
}

func TestCSVImportProgressStride(t *testing.T) {
	store := openStore(t)
	notes := datastore.Field{
		OrganizationID: 1, ModuleType: datastore.ModuleLead,
		Name: "Notes", Type: datastore.FieldTypeText, DisplayOrder: 1,
	}
	require.NoError(t, store.CreateField(&notes))

	rows := make([]map[string]string, 120)
	for i := range rows {
		rows[i] = map[string]string{"Company Name": fmt.Sprintf("Org %03d", i), "Notes": "x"}
	}

	action := NewImportAction(store, nil, nil)
	var percents []int
	result, err := action.Execute(context.Background(), &ImportInput{
		OrganizationID: 1,
		ModuleType:     datastore.ModuleLead,
		ActorID:        9,
		Rows:           rows,
	}, func(p jobqueue.Progress) { percents = append(percents, p.Percent) })
	require.NoError(t, err)

	assert.Equal(t, 120, result.(*ImportResult).Imported)
	// Two stride reports (rows 50 and 100) plus the final marker.
	require.Len(t, percents, 3)
	assert.Equal(t, 100, percents[len(percents)-1])
}
