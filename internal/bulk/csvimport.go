package bulk

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadboard/leadboard-go/internal/board"
	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/errors"
	"github.com/leadboard/leadboard-go/internal/jobqueue"
	"github.com/leadboard/leadboard-go/internal/logging"
	"github.com/leadboard/leadboard-go/internal/observability/metrics"
	"github.com/leadboard/leadboard-go/internal/realtime"
)

// progressStride is how often row-parse progress is reported.
const progressStride = 50

// ImportInput is the payload of one CSV import job. Rows are raw header to
// value maps; headers need not exactly match field names.
type ImportInput struct {
	OrganizationID uint
	ModuleType     datastore.ModuleType
	Rows           []map[string]string
	ActorID        uint
}

// ImportResult is the final tally of a CSV import job.
type ImportResult struct {
	Imported   int `json:"imported"`
	NewOptions int `json:"new_options"`
}

// ImportAction turns raw CSV rows into records, staging unknown dropdown and
// multiselect tokens as new field options. The whole batch commits in one
// transaction with a constant number of bulk statements.
type ImportAction struct {
	store    datastore.Interface
	notifier realtime.Notifier
	metrics  *metrics.JobMetrics
	logger   *slog.Logger
}

// NewImportAction creates the CSV import action.
func NewImportAction(store datastore.Interface, notifier realtime.Notifier, jobMetrics *metrics.JobMetrics) *ImportAction {
	if notifier == nil {
		notifier = realtime.NoopNotifier{}
	}
	return &ImportAction{
		store:    store,
		notifier: notifier,
		metrics:  jobMetrics,
		logger:   logging.ForService("bulk"),
	}
}

// Name implements jobqueue.Action.
func (a *ImportAction) Name() string { return "csv_import" }

// Execute implements jobqueue.Action.
func (a *ImportAction) Execute(ctx context.Context, data any, report jobqueue.ProgressFunc) (any, error) {
	input, ok := data.(*ImportInput)
	if !ok {
		return nil, errors.Newf("csv import job carries payload of type %T", data).
			Component("bulk").
			Category(errors.CategoryValidation).
			Build()
	}

	start := time.Now()
	result, err := a.run(input, report)
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	a.metrics.JobFinished(a.Name(), outcome, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	a.notifier.Emit(input.OrganizationID, realtime.EventJobCompleted, map[string]any{
		"job_id":   jobqueue.JobIDFromContext(ctx),
		"action":   a.Name(),
		"imported": result.Imported,
	})
	return result, nil
}

func (a *ImportAction) run(input *ImportInput, report jobqueue.ProgressFunc) (*ImportResult, error) {
	fields, err := a.store.GetFieldsForModule(input.OrganizationID, input.ModuleType)
	if err != nil {
		return nil, err
	}

	fieldByKey := make(map[string]*datastore.Field, len(fields))
	// knownOptions tracks existing plus staged option values per field,
	// lowercased, so a token repeated across rows stages only once.
	knownOptions := make(map[uint]map[string]struct{}, len(fields))
	for i := range fields {
		field := &fields[i]
		fieldByKey[board.NormalizeKey(field.Name)] = field
		if field.Type != datastore.FieldTypeDropdown && field.Type != datastore.FieldTypeMultiselect {
			continue
		}
		existing := make(map[string]struct{}, len(field.Options))
		for j := range field.Options {
			existing[strings.ToLower(field.Options[j].Value)] = struct{}{}
		}
		knownOptions[field.ID] = existing
	}

	records := make([]datastore.Record, 0, len(input.Rows))
	values := make([]datastore.FieldValue, 0, len(input.Rows)*len(fields))
	entries := make([]datastore.HistoryEntry, 0, len(input.Rows))
	var newOptions []datastore.FieldOption

	for rowIndex, row := range input.Rows {
		record := datastore.Record{
			ID:             uuid.New().String(),
			OrganizationID: input.OrganizationID,
			ModuleType:     input.ModuleType,
			Name:           board.ResolveRecordName(row),
		}
		records = append(records, record)

		cellValues := make(map[uint]*string, len(row))
		for header, raw := range row {
			field, ok := fieldByKey[board.NormalizeKey(header)]
			if !ok {
				continue
			}
			value := strings.TrimSpace(raw)
			if value == "" {
				continue
			}

			switch field.Type {
			case datastore.FieldTypeMultiselect:
				tokens, err := board.NormalizeMultiselect(value)
				if err != nil {
					return nil, err
				}
				for _, token := range tokens {
					newOptions = a.stageOption(knownOptions, newOptions, field.ID, token)
				}
				value = strings.Join(tokens, ",")
			case datastore.FieldTypeDropdown:
				newOptions = a.stageOption(knownOptions, newOptions, field.ID, value)
			}

			v := value
			cellValues[field.ID] = &v
		}

		for i := range fields {
			values = append(values, datastore.FieldValue{
				RecordID: record.ID,
				FieldID:  fields[i].ID,
				Value:    cellValues[fields[i].ID],
			})
		}
		name := record.Name
		entries = append(entries, datastore.HistoryEntry{
			RecordID:   record.ID,
			ColumnName: board.RecordNameColumn,
			NewValue:   &name,
			Action:     datastore.ActionCreate,
			CreatedBy:  input.ActorID,
		})

		if (rowIndex+1)%progressStride == 0 {
			report(jobqueue.Progress{
				Percent: (rowIndex + 1) * 100 / len(input.Rows),
				Detail:  map[string]any{"parsed": rowIndex + 1, "total": len(input.Rows)},
			})
		}
	}

	if err := a.store.CreateRecordsBatch(records, values, entries, newOptions); err != nil {
		return nil, err
	}

	report(jobqueue.Progress{
		Percent: 100,
		Detail:  map[string]any{"parsed": len(input.Rows), "total": len(input.Rows)},
	})
	return &ImportResult{Imported: len(records), NewOptions: len(newOptions)}, nil
}

// stageOption records token as a new option of field unless an existing or
// already-staged option matches case-insensitively.
func (a *ImportAction) stageOption(known map[uint]map[string]struct{}, staged []datastore.FieldOption, fieldID uint, token string) []datastore.FieldOption {
	set, tracked := known[fieldID]
	if !tracked {
		return staged
	}
	lowered := strings.ToLower(token)
	if _, exists := set[lowered]; exists {
		return staged
	}
	set[lowered] = struct{}{}
	return append(staged, datastore.FieldOption{FieldID: fieldID, Value: token})
}
