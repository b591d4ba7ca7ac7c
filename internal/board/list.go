package board

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/errors"
)

// Filter is one per-field list filter. Equality or contains semantics are
// chosen by the engine from the field's type, not by the caller.
type Filter struct {
	FieldID uint   `json:"field_id"`
	Value   string `json:"value"`
}

// ListQuery is the caller-facing list request.
type ListQuery struct {
	ModuleType datastore.ModuleType `json:"module_type"`
	DateFrom   *time.Time           `json:"date_from,omitempty"`
	DateTo     *time.Time           `json:"date_to,omitempty"`
	Search     string               `json:"search,omitempty"`
	Filters    []Filter             `json:"filters,omitempty"`
	Page       int                  `json:"page,omitempty"`
	Limit      int                  `json:"limit,omitempty"`
}

// Column describes one field in the shaped view.
type Column struct {
	ID    uint                `json:"id"`
	Name  string              `json:"name"`
	Type  datastore.FieldType `json:"type"`
	Order int                 `json:"order"`
}

// Row is one record flattened from its EAV cells, keyed by field display
// name.
type Row struct {
	RecordID   string             `json:"record_id"`
	Name       string             `json:"name"`
	AssignedTo *uint              `json:"assigned_to,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	Cells      map[string]*string `json:"cells"`
}

// View is the shaped columns-plus-rows list result.
type View struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
	Total   int64    `json:"total"`
}

// exactMatchTypes selects equality predicate semantics; all other field
// types filter by case-insensitive contains.
var exactMatchTypes = map[datastore.FieldType]bool{
	datastore.FieldTypeDropdown: true,
	datastore.FieldTypeStatus:   true,
	datastore.FieldTypeCheckbox: true,
}

// ListRecords resolves filters against the field registry, fetches one page
// of matching records and shapes them into a columns-plus-rows view. Shaped
// results are cached per organization keyed by the full filter signature.
func (s *Service) ListRecords(ctx context.Context, organizationID uint, query *ListQuery) (View, error) {
	key, err := listCacheKey(organizationID, query)
	if err != nil {
		return View{}, err
	}
	if s.cache != nil {
		if cached, found := s.cache.Get(key); found {
			if view, ok := cached.(View); ok {
				s.metrics.ListQuery("cache", 0)
				return view, nil
			}
		}
	}

	start := time.Now()

	fields, err := s.store.GetFieldsForModule(organizationID, query.ModuleType)
	if err != nil {
		return View{}, err
	}
	fieldByID := make(map[uint]*datastore.Field, len(fields))
	for i := range fields {
		fieldByID[fields[i].ID] = &fields[i]
	}

	// Resolve filter field ids to types once so each predicate picks its
	// semantics before any SQL is built.
	predicates := make([]datastore.ValuePredicate, 0, len(query.Filters))
	for _, filter := range query.Filters {
		field, ok := fieldByID[filter.FieldID]
		if !ok {
			return View{}, errors.ValidationError(
				fmt.Sprintf("filter references unknown field %d", filter.FieldID))
		}
		predicates = append(predicates, datastore.ValuePredicate{
			FieldID: filter.FieldID,
			Value:   filter.Value,
			Exact:   exactMatchTypes[field.Type],
		})
	}

	records, total, err := s.store.ListRecords(organizationID, query.ModuleType, datastore.RecordQuery{
		DateFrom:   query.DateFrom,
		DateTo:     query.DateTo,
		Search:     query.Search,
		Predicates: predicates,
		Page:       query.Page,
		Limit:      query.Limit,
	})
	if err != nil {
		return View{}, err
	}

	recordIDs := make([]string, 0, len(records))
	for i := range records {
		recordIDs = append(recordIDs, records[i].ID)
	}
	values, err := s.store.GetFieldValues(recordIDs)
	if err != nil {
		return View{}, err
	}
	cellsByRecord := make(map[string]map[string]*string, len(records))
	for i := range values {
		field, ok := fieldByID[values[i].FieldID]
		if !ok {
			continue
		}
		cells, ok := cellsByRecord[values[i].RecordID]
		if !ok {
			cells = make(map[string]*string, len(fields))
			cellsByRecord[values[i].RecordID] = cells
		}
		cells[field.Name] = values[i].Value
	}

	view := View{
		Columns: make([]Column, 0, len(fields)),
		Rows:    make([]Row, 0, len(records)),
		Total:   total,
	}
	for i := range fields {
		view.Columns = append(view.Columns, Column{
			ID:    fields[i].ID,
			Name:  fields[i].Name,
			Type:  fields[i].Type,
			Order: fields[i].DisplayOrder,
		})
	}
	for i := range records {
		cells := cellsByRecord[records[i].ID]
		if cells == nil {
			cells = map[string]*string{}
		}
		view.Rows = append(view.Rows, Row{
			RecordID:   records[i].ID,
			Name:       records[i].Name,
			AssignedTo: records[i].AssignedTo,
			CreatedAt:  records[i].CreatedAt,
			Cells:      cells,
		})
	}

	if s.cache != nil {
		s.cache.Set(key, view, s.cacheTTL)
	}
	s.metrics.ListQuery("store", time.Since(start).Seconds())
	return view, nil
}

// listCacheKey builds "<orgID>:list:<signature>" from the full query, so any
// parameter change misses and any write purges via the org prefix.
func listCacheKey(organizationID uint, query *ListQuery) (string, error) {
	signature, err := json.Marshal(query)
	if err != nil {
		return "", errors.New(err).
			Component("board").
			Category(errors.CategoryValidation).
			Context("operation", "cache_key").
			Build()
	}
	return fmt.Sprintf("%slist:%s", orgPrefix(organizationID), signature), nil
}
