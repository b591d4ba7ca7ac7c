package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/leadboard/leadboard-go/internal/board"
	"github.com/leadboard/leadboard-go/internal/bulk"
	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/errors"
)

func parseOrg(c echo.Context) (uint, error) {
	org, err := strconv.ParseUint(c.Param("org"), 10, 32)
	if err != nil {
		return 0, errors.ValidationError("organization id must be numeric")
	}
	return uint(org), nil
}

func parseUintParam(c echo.Context, name string) (uint, error) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, errors.ValidationError(name + " must be numeric")
	}
	return uint(value), nil
}

func pageLimit(c echo.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	return page, limit
}

type createRecordRequest struct {
	Name    string `json:"name"`
	ActorID uint   `json:"actor_id"`
}

func (s *Server) createRecord(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	module, err := parseModule(c)
	if err != nil {
		return s.handleError(c, err)
	}
	var req createRecordRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, errors.ValidationError("malformed request body"))
	}

	record, err := s.Board.CreateRecord(c.Request().Context(), org, module, req.Name, req.ActorID)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusCreated, record)
}

func (s *Server) listRecords(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	module, err := parseModule(c)
	if err != nil {
		return s.handleError(c, err)
	}

	query := board.ListQuery{ModuleType: module, Search: c.QueryParam("search")}
	query.Page, query.Limit = pageLimit(c)
	if raw := c.QueryParam("date_from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return s.handleError(c, errors.ValidationError("date_from must be RFC3339"))
		}
		query.DateFrom = &from
	}
	if raw := c.QueryParam("date_to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return s.handleError(c, errors.ValidationError("date_to must be RFC3339"))
		}
		query.DateTo = &to
	}
	if raw := c.QueryParam("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &query.Filters); err != nil {
			return s.handleError(c, errors.ValidationError("malformed filter JSON"))
		}
	}

	view, err := s.Board.ListRecords(c.Request().Context(), org, &query)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

type referralBatchRequest struct {
	Rows    []map[string]string `json:"rows"`
	ActorID uint                `json:"actor_id"`
}

func (s *Server) createReferralBatch(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	module, err := parseModule(c)
	if err != nil {
		return s.handleError(c, err)
	}
	if module != datastore.ModuleReferral {
		return s.handleError(c, errors.ValidationError("referral batches require the REFERRAL module"))
	}
	var req referralBatchRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, errors.ValidationError("malformed request body"))
	}

	ids, err := s.Board.CreateReferralBatch(c.Request().Context(), org, req.Rows, req.ActorID)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"record_ids": ids})
}

type updateValueRequest struct {
	Value   any     `json:"value"`
	Reason  *string `json:"reason,omitempty"`
	Module  string  `json:"module"`
	ActorID uint    `json:"actor_id"`
}

func (s *Server) updateFieldValue(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	fieldID, err := parseUintParam(c, "fieldID")
	if err != nil {
		return s.handleError(c, err)
	}
	var req updateValueRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, errors.ValidationError("malformed request body"))
	}
	module := datastore.ModuleType(req.Module)
	if module != datastore.ModuleLead && module != datastore.ModuleReferral {
		return s.handleError(c, errors.ValidationError("module must be LEAD or REFERRAL"))
	}

	err = s.Board.UpdateFieldValue(c.Request().Context(), &board.UpdateRequest{
		OrganizationID: org,
		ModuleType:     module,
		RecordID:       c.Param("id"),
		FieldID:        fieldID,
		Value:          req.Value,
		Reason:         req.Reason,
		ActorID:        req.ActorID,
	})
	if err != nil {
		return s.handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type deleteRecordsRequest struct {
	RecordIDs []string `json:"record_ids"`
	ActorID   uint     `json:"actor_id"`
}

func (s *Server) deleteRecords(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	var req deleteRecordsRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, errors.ValidationError("malformed request body"))
	}

	if err := s.Board.DeleteRecords(c.Request().Context(), org, req.RecordIDs, req.ActorID); err != nil {
		return s.handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type restoreRequest struct {
	ActorID uint `json:"actor_id"`
}

func (s *Server) restoreHistoryEntry(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	historyID, err := parseUintParam(c, "historyID")
	if err != nil {
		return s.handleError(c, err)
	}
	var req restoreRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, errors.ValidationError("malformed request body"))
	}

	err = s.Board.RestoreHistoryEntry(c.Request().Context(), org, c.Param("id"), historyID, req.ActorID)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listHistory(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	page, limit := pageLimit(c)
	entries, err := s.Board.ListHistory(c.Request().Context(), org, c.Param("id"), page, limit)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) listActivities(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	page, limit := pageLimit(c)
	activities, err := s.Board.ListActivities(c.Request().Context(), org, c.Param("id"), page, limit)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, activities)
}

func (s *Server) markSeen(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	if err := s.Board.MarkRecordSeen(c.Request().Context(), org, c.Param("id")); err != nil {
		return s.handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listUnseen(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	ids, err := s.Board.ListUnseenRecords(c.Request().Context(), org)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"record_ids": ids})
}

type createColumnRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) createColumn(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	module, err := parseModule(c)
	if err != nil {
		return s.handleError(c, err)
	}
	var req createColumnRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, errors.ValidationError("malformed request body"))
	}

	field, err := s.Board.CreateColumn(c.Request().Context(), org, module, req.Name, datastore.FieldType(req.Type))
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusCreated, field)
}

func (s *Server) listFieldOptions(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	fieldID, err := parseUintParam(c, "fieldID")
	if err != nil {
		return s.handleError(c, err)
	}
	page, limit := pageLimit(c)
	options, err := s.Board.ListFieldOptions(c.Request().Context(), org, fieldID, page, limit)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, options)
}

type addOptionRequest struct {
	Value string `json:"value"`
}

func (s *Server) addFieldOption(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	fieldID, err := parseUintParam(c, "fieldID")
	if err != nil {
		return s.handleError(c, err)
	}
	var req addOptionRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, errors.ValidationError("malformed request body"))
	}

	option, err := s.Board.AddFieldOption(c.Request().Context(), org, fieldID, req.Value)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusCreated, option)
}

func (s *Server) removeFieldOption(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	fieldID, err := parseUintParam(c, "fieldID")
	if err != nil {
		return s.handleError(c, err)
	}
	optionID, err := parseUintParam(c, "optionID")
	if err != nil {
		return s.handleError(c, err)
	}

	if err := s.Board.RemoveFieldOption(c.Request().Context(), org, fieldID, optionID); err != nil {
		return s.handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type bulkEmailRequest struct {
	RecordIDs []string `json:"record_ids"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	SendVia   string   `json:"send_via,omitempty"`
	ActorID   uint     `json:"actor_id"`
}

func (s *Server) enqueueBulkEmail(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	module, err := parseModule(c)
	if err != nil {
		return s.handleError(c, err)
	}
	var req bulkEmailRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, errors.ValidationError("malformed request body"))
	}
	if len(req.RecordIDs) == 0 {
		return s.handleError(c, errors.ValidationError("record_ids must not be empty"))
	}

	jobID, err := s.Queue.Enqueue(s.EmailAction, &bulk.EmailInput{
		OrganizationID: org,
		ModuleType:     module,
		RecordIDs:      req.RecordIDs,
		Subject:        req.Subject,
		Body:           req.Body,
		ActorID:        req.ActorID,
		SendVia:        req.SendVia,
	})
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"job_id": jobID})
}

type importRequest struct {
	Rows    []map[string]string `json:"rows"`
	ActorID uint                `json:"actor_id"`
}

func (s *Server) enqueueImport(c echo.Context) error {
	org, err := parseOrg(c)
	if err != nil {
		return s.handleError(c, err)
	}
	module, err := parseModule(c)
	if err != nil {
		return s.handleError(c, err)
	}
	var req importRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, errors.ValidationError("malformed request body"))
	}
	if len(req.Rows) == 0 {
		return s.handleError(c, errors.ValidationError("rows must not be empty"))
	}

	jobID, err := s.Queue.Enqueue(s.ImportAction, &bulk.ImportInput{
		OrganizationID: org,
		ModuleType:     module,
		Rows:           req.Rows,
		ActorID:        req.ActorID,
	})
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getJob(c echo.Context) error {
	snapshot, err := s.Queue.GetJob(c.Param("id"))
	if err != nil {
		return s.handleError(c, errors.NotFoundError("job", c.Param("id")))
	}
	return c.JSON(http.StatusOK, snapshot)
}
