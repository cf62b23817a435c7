package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// ResultReader is the guarded read surface for submissions.
type ResultReader interface {
	GetSubmissionDetail(ctx context.Context, who model.Identity, id uuid.UUID) (*model.SubmissionDetail, error)
	ListSubmissionsForTest(ctx context.Context, who model.Identity, testID uuid.UUID, order model.SortOrder) ([]model.SubmissionSummary, error)
	ListMine(ctx context.Context, who model.Identity) ([]model.SubmissionSummary, error)
}

// ResultHandler handles submission result endpoints.
type ResultHandler struct {
	results ResultReader
	log     zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(results ResultReader, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		results: results,
		log:     log.With().Str("component", "result_handler").Logger(),
	}
}

// GetResult godoc
// GET /api/v1/results/:submission_id
// Returns the caller's own graded submission, including correct answers.
func (h *ResultHandler) GetResult(c *gin.Context) {
	who, ok := requireIdentity(c)
	if !ok {
		return
	}

	// A malformed id is reported like any other unknown submission.
	id, err := uuid.Parse(c.Param("submission_id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	detail, err := h.results.GetSubmissionDetail(c.Request.Context(), who, id)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": detail})
}

// ListMyResults godoc
// GET /api/v1/results
// Lists the caller's own submissions, newest first.
func (h *ResultHandler) ListMyResults(c *gin.Context) {
	who, ok := requireIdentity(c)
	if !ok {
		return
	}

	list, err := h.results.ListMine(c.Request.Context(), who)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submissions": list})
}

// ListTestSubmissions godoc
// GET /api/v1/admin/tests/:test_id/submissions?sort=desc|asc
// Lists every submission of a test by score. Ties keep submission order.
func (h *ResultHandler) ListTestSubmissions(c *gin.Context) {
	who, ok := requireIdentity(c)
	if !ok {
		return
	}

	testID, ok := uuidParam(c, "test_id")
	if !ok {
		return
	}

	order, ok := model.ParseSortOrder(c.Query("sort"))
	if !ok {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"sort": "sort must be one of [asc desc]",
		})
		return
	}

	list, err := h.results.ListSubmissionsForTest(c.Request.Context(), who, testID, order)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submissions": list, "sort": order})
}
