package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// TestCatalog is the test authoring and reading surface.
type TestCatalog interface {
	Create(ctx context.Context, who model.Identity, req *model.CreateTestRequest) (*model.Test, error)
	List(ctx context.Context) ([]model.TestSummary, error)
	GetForTaker(ctx context.Context, id uuid.UUID) (*model.TakerTest, error)
}

// Grader is the grading boundary.
type Grader interface {
	Submit(ctx context.Context, who model.Identity, testID uuid.UUID, req *model.SubmitRequest) (*model.SubmitResult, error)
}

// TestHandler handles test listing, authoring and submission endpoints.
type TestHandler struct {
	tests  TestCatalog
	grader Grader
	log    zerolog.Logger
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(tests TestCatalog, grader Grader, log zerolog.Logger) *TestHandler {
	return &TestHandler{
		tests:  tests,
		grader: grader,
		log:    log.With().Str("component", "test_handler").Logger(),
	}
}

// ListTests godoc
// GET /api/v1/tests
// Lists every test with author email and question count, newest first.
func (h *TestHandler) ListTests(c *gin.Context) {
	tests, err := h.tests.List(c.Request.Context())
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tests": tests})
}

// GetTest godoc
// GET /api/v1/tests/:test_id
// Returns the taker-facing test. Correct answers are never included.
func (h *TestHandler) GetTest(c *gin.Context) {
	testID, ok := uuidParam(c, "test_id")
	if !ok {
		return
	}

	test, err := h.tests.GetForTaker(c.Request.Context(), testID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// CreateTest godoc
// POST /api/v1/admin/tests
// Creates a test together with its questions.
func (h *TestHandler) CreateTest(c *gin.Context) {
	who, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req model.CreateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.tests.Create(c.Request.Context(), who, &req)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"test": test})
}

// SubmitTest godoc
// POST /api/v1/tests/:test_id/submit
// Grades an answer map and stores the submission for the caller.
func (h *TestHandler) SubmitTest(c *gin.Context) {
	who, ok := requireIdentity(c)
	if !ok {
		return
	}

	testID, ok := uuidParam(c, "test_id")
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.grader.Submit(c.Request.Context(), who, testID, &req)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}
