// Package bulk implements the asynchronous bulk operation pipeline: mass
// email with provider fallback and CSV import. Each operation is a job queue
// action that reports incremental progress and broadcasts a completion event.
package bulk

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/errors"
	"github.com/leadboard/leadboard-go/internal/jobqueue"
	"github.com/leadboard/leadboard-go/internal/logging"
	"github.com/leadboard/leadboard-go/internal/mailer"
	"github.com/leadboard/leadboard-go/internal/observability/metrics"
	"github.com/leadboard/leadboard-go/internal/realtime"
)

// Send routing choices for a bulk email job.
const (
	SendViaAuto    = "AUTO"
	SendViaGmail   = "GMAIL"
	SendViaOutlook = "OUTLOOK"
)

// EmailInput is the payload of one bulk email job.
type EmailInput struct {
	OrganizationID uint
	ModuleType     datastore.ModuleType
	RecordIDs      []string
	Subject        string
	Body           string // HTML
	ActorID        uint
	SendVia        string // AUTO, GMAIL or OUTLOOK; empty means AUTO
}

// EmailResult is the final tally of a bulk email job. Sent, Skipped and
// Errors always sum to Total.
type EmailResult struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
	Total   int `json:"total"`
}

// EmailAction sends one email per eligible record through a provider
// fallback chain. Delivery is at least once: a retried job re-sends to
// recipients that already succeeded in the failed attempt.
type EmailAction struct {
	store     datastore.Interface
	providers map[string]mailer.Provider
	sender    mailer.Sender
	from      string
	notifier  realtime.Notifier
	metrics   *metrics.JobMetrics
	logger    *slog.Logger
}

// NewEmailAction creates the bulk email action. providers is keyed by
// SendVia constant; missing providers are skipped in the chain. sender is
// the mandatory default transactional sender.
func NewEmailAction(store datastore.Interface, providers map[string]mailer.Provider, sender mailer.Sender, from string, notifier realtime.Notifier, jobMetrics *metrics.JobMetrics) *EmailAction {
	if notifier == nil {
		notifier = realtime.NoopNotifier{}
	}
	return &EmailAction{
		store:     store,
		providers: providers,
		sender:    sender,
		from:      from,
		notifier:  notifier,
		metrics:   jobMetrics,
		logger:    logging.ForService("bulk"),
	}
}

// Name implements jobqueue.Action.
func (a *EmailAction) Name() string { return "bulk_email" }

// Execute implements jobqueue.Action. A missing EMAIL field is fatal and
// fails the whole job; per-recipient failures are counted and never abort
// the batch.
func (a *EmailAction) Execute(ctx context.Context, data any, report jobqueue.ProgressFunc) (any, error) {
	input, ok := data.(*EmailInput)
	if !ok {
		return nil, errors.Newf("bulk email job carries payload of type %T", data).
			Component("bulk").
			Category(errors.CategoryValidation).
			Build()
	}

	start := time.Now()
	result, err := a.run(ctx, input, report)
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	a.metrics.JobFinished(a.Name(), outcome, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	a.notifier.Emit(input.OrganizationID, realtime.EventJobCompleted, map[string]any{
		"job_id":  jobqueue.JobIDFromContext(ctx),
		"action":  a.Name(),
		"sent":    result.Sent,
		"skipped": result.Skipped,
		"errors":  result.Errors,
		"total":   result.Total,
	})
	return result, nil
}

func (a *EmailAction) run(ctx context.Context, input *EmailInput, report jobqueue.ProgressFunc) (*EmailResult, error) {
	emailField, err := a.resolveEmailField(input)
	if err != nil {
		return nil, err
	}

	records, err := a.store.GetRecordsByIDs(input.OrganizationID, input.RecordIDs)
	if err != nil {
		return nil, err
	}
	recordIDs := make([]string, 0, len(records))
	for i := range records {
		recordIDs = append(recordIDs, records[i].ID)
	}
	values, err := a.store.GetFieldValues(recordIDs)
	if err != nil {
		return nil, err
	}
	emailByRecord := make(map[string]string, len(records))
	for i := range values {
		if values[i].FieldID == emailField.ID && values[i].Value != nil {
			emailByRecord[values[i].RecordID] = *values[i].Value
		}
	}

	result := &EmailResult{Total: len(input.RecordIDs)}
	for i := range records {
		record := &records[i]
		address := emailByRecord[record.ID]
		if address == "" {
			result.Skipped++
		} else if senderName, err := a.deliver(ctx, input, record, address); err != nil {
			// One record's hard failure never aborts the batch.
			result.Errors++
			a.logger.Warn("bulk email delivery failed",
				"record_id", record.ID, "error", err)
		} else {
			result.Sent++
			a.metrics.EmailSent(senderName)
			activity := datastore.Activity{
				RecordID:  record.ID,
				Type:      datastore.ActivityEmail,
				Recipient: address,
				Subject:   input.Subject,
				Body:      input.Body,
				Sender:    senderName,
				CreatedBy: input.ActorID,
			}
			if err := a.store.CreateActivity(&activity); err != nil {
				a.logger.Error("failed to record email activity",
					"record_id", record.ID, "error", err)
			}
		}

		report(jobqueue.Progress{
			Percent: (i + 1) * 100 / len(records),
			Detail: map[string]any{
				"sent": result.Sent, "skipped": result.Skipped,
				"errors": result.Errors, "total": result.Total,
			},
		})
	}

	// Requested ids that resolved to no live record count as skipped.
	result.Skipped += result.Total - len(records)

	report(jobqueue.Progress{
		Percent: 100,
		Detail: map[string]any{
			"sent": result.Sent, "skipped": result.Skipped,
			"errors": result.Errors, "total": result.Total,
		},
	})
	return result, nil
}

// resolveEmailField finds the module's EMAIL-typed field. Absence is fatal
// for the whole job, there is nothing to address mail to.
func (a *EmailAction) resolveEmailField(input *EmailInput) (*datastore.Field, error) {
	fields, err := a.store.GetFieldsForModule(input.OrganizationID, input.ModuleType)
	if err != nil {
		return nil, err
	}
	for i := range fields {
		if fields[i].Type == datastore.FieldTypeEmail {
			return &fields[i], nil
		}
	}
	return nil, errors.Newf("no EMAIL field configured for module %s", input.ModuleType).
		Component("bulk").
		Category(errors.CategoryMailDelivery).
		Context("organization_id", input.OrganizationID).
		Priority(errors.PriorityHigh).
		Build()
}

// deliver attempts the provider chain for one recipient and returns the
// sender identity that accepted the message. A provider declining recoverably
// falls through to the next link; a returned error is a hard failure for
// this recipient only.
func (a *EmailAction) deliver(ctx context.Context, input *EmailInput, record *datastore.Record, address string) (string, error) {
	msg := mailer.Message{
		ActorID:       input.ActorID,
		To:            address,
		RecipientName: record.Name,
		Subject:       input.Subject,
		Body:          input.Body,
	}

	var chain []string
	switch input.SendVia {
	case SendViaGmail:
		chain = []string{SendViaGmail}
	case SendViaOutlook:
		chain = []string{SendViaOutlook}
	default:
		chain = []string{SendViaGmail, SendViaOutlook}
	}

	for _, name := range chain {
		provider, ok := a.providers[name]
		if !ok {
			continue
		}
		delivered, err := provider.TrySend(ctx, msg)
		if err != nil {
			return "", err
		}
		if delivered {
			return provider.Name(), nil
		}
	}

	if err := a.sender.Send(ctx, address, input.Subject, input.Body, a.from); err != nil {
		return "", err
	}
	return a.sender.Name(), nil
}
