package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

var (
	student = model.Identity{UserID: 7, Role: model.RoleStudent, Email: "s@example.com"}
	admin   = model.Identity{UserID: 1, Role: model.RoleAdmin, Email: "a@example.com"}
)

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func as(who *model.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		if who != nil {
			c.Set(middleware.ContextKeyIdentity, *who)
		}
		c.Next()
	}
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeAuth struct {
	registerErr error
	loginErr    error
}

func (f *fakeAuth) Register(_ context.Context, req *model.RegisterRequest) (*model.User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &model.User{ID: 9, Email: req.Email, Role: model.RoleStudent, PasswordHash: "hash"}, nil
}

func (f *fakeAuth) Login(_ context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &model.LoginResponse{Token: "tok", User: model.User{ID: 9, Email: req.Email}}, nil
}

func (f *fakeAuth) Me(_ context.Context, who model.Identity) (*model.User, error) {
	return &model.User{ID: who.UserID, Email: who.Email, Role: who.Role}, nil
}

type fakeCatalog struct {
	test    *model.TakerTest
	getErr  error
	created *model.CreateTestRequest
}

func (f *fakeCatalog) Create(_ context.Context, who model.Identity, req *model.CreateTestRequest) (*model.Test, error) {
	if !who.IsAuthority() {
		return nil, service.ErrForbidden
	}
	if err := service.ValidateTest(req); err != nil {
		return nil, err
	}
	f.created = req
	return &model.Test{ID: uuid.New(), Title: req.Title, DurationMinutes: req.DurationMinutes, CreatedBy: who.UserID}, nil
}

func (f *fakeCatalog) List(context.Context) ([]model.TestSummary, error) {
	return []model.TestSummary{{Title: "Capitals", QuestionCount: 2}}, nil
}

func (f *fakeCatalog) GetForTaker(context.Context, uuid.UUID) (*model.TakerTest, error) {
	return f.test, f.getErr
}

type fakeGrader struct {
	err error
	req *model.SubmitRequest
}

func (f *fakeGrader) Submit(_ context.Context, _ model.Identity, _ uuid.UUID, req *model.SubmitRequest) (*model.SubmitResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.SubmitResult{SubmissionID: uuid.New(), Score: 1, Total: 2, Status: req.Status}, nil
}

type fakeResults struct {
	detail *model.SubmissionDetail
	order  model.SortOrder
}

func (f *fakeResults) GetSubmissionDetail(_ context.Context, _ model.Identity, id uuid.UUID) (*model.SubmissionDetail, error) {
	if f.detail == nil || f.detail.ID != id {
		return nil, service.ErrSubmissionNotFound
	}
	return f.detail, nil
}

func (f *fakeResults) ListSubmissionsForTest(_ context.Context, who model.Identity, _ uuid.UUID, order model.SortOrder) ([]model.SubmissionSummary, error) {
	if !who.IsAuthority() {
		return nil, service.ErrForbidden
	}
	f.order = order
	return []model.SubmissionSummary{}, nil
}

func (f *fakeResults) ListMine(context.Context, model.Identity) ([]model.SubmissionSummary, error) {
	return []model.SubmissionSummary{{Score: 2, Status: model.SubmissionStatusCompleted}}, nil
}

type fakeFeed struct {
	mu       sync.Mutex
	recorded []model.ProctorEvent
	err      error
}

func (f *fakeFeed) Record(_ context.Context, ev *model.ProctorEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, *ev)
	return nil
}

func (f *fakeFeed) ListForTest(_ context.Context, who model.Identity, _ uuid.UUID) ([]model.ProctorEvent, error) {
	if !who.IsAuthority() {
		return nil, service.ErrForbidden
	}
	return []model.ProctorEvent{{ID: 1, Kind: model.ProctorEventVisibilityHidden, ViolationCount: 1}}, nil
}

func (f *fakeFeed) Subscribe(context.Context, uuid.UUID) *redis.PubSub { return nil }

func (f *fakeFeed) events() []model.ProctorEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ProctorEvent(nil), f.recorded...)
}

type fakeChecker map[uuid.UUID]bool

func (f fakeChecker) Exists(_ context.Context, id uuid.UUID) (bool, error) { return f[id], nil }

// ─── Auth ───────────────────────────────────────────────────────────

func TestAuthHandler(t *testing.T) {
	auth := &fakeAuth{}
	h := NewAuthHandler(auth, zerolog.Nop())

	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.GET("/me", as(&student), h.Me)
	r.GET("/anon", as(nil), h.Me)

	t.Run("register hides password hash", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, "/register", gin.H{"email": "new@example.com", "password": "secret1"})
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, string(env.Data), "new@example.com")
		assert.NotContains(t, w.Body.String(), "hash")
	})

	t.Run("register validation", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, "/register", gin.H{"email": "nope", "password": "1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, response.ErrValidation, env.Error.Code)
		assert.Contains(t, env.Error.Fields, "email")
		assert.Contains(t, env.Error.Fields, "password")
	})

	t.Run("register duplicate email", func(t *testing.T) {
		auth.registerErr = service.ErrEmailTaken
		defer func() { auth.registerErr = nil }()
		w, env := do(t, r, http.MethodPost, "/register", gin.H{"email": "dup@example.com", "password": "secret1"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, response.ErrConflict, env.Error.Code)
	})

	t.Run("login bad credentials", func(t *testing.T) {
		auth.loginErr = service.ErrInvalidCredentials
		defer func() { auth.loginErr = nil }()
		w, env := do(t, r, http.MethodPost, "/login", gin.H{"email": "a@example.com", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, response.ErrInvalidCredentials, env.Error.Code)
	})

	t.Run("login ok", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, "/login", gin.H{"email": "a@example.com", "password": "secret1"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, string(env.Data), `"token":"tok"`)
	})

	t.Run("me", func(t *testing.T) {
		w, env := do(t, r, http.MethodGet, "/me", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, string(env.Data), student.Email)
	})

	t.Run("me without identity", func(t *testing.T) {
		w, _ := do(t, r, http.MethodGet, "/anon", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

// ─── Tests ──────────────────────────────────────────────────────────

func validCreateBody() gin.H {
	return gin.H{
		"title":            "Capitals",
		"duration_minutes": 10,
		"questions": []gin.H{
			{"text": "Capital of France?", "options": []string{"Paris", "Rome"}, "correct_answer": "Paris"},
		},
	}
}

func TestTestHandler_Create(t *testing.T) {
	catalog := &fakeCatalog{}
	h := NewTestHandler(catalog, &fakeGrader{}, zerolog.Nop())

	r := gin.New()
	r.POST("/admin/tests", as(&admin), h.CreateTest)
	r.POST("/student/tests", as(&student), h.CreateTest)

	t.Run("created", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, "/admin/tests", validCreateBody())
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, string(env.Data), "Capitals")
		require.NotNil(t, catalog.created)
	})

	t.Run("correct answer not among options", func(t *testing.T) {
		body := validCreateBody()
		body["questions"].([]gin.H)[0]["correct_answer"] = "Berlin"
		w, env := do(t, r, http.MethodPost, "/admin/tests", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, response.ErrValidation, env.Error.Code)
		assert.Contains(t, env.Error.Fields, "questions[0].correct_answer")
	})

	t.Run("too few options", func(t *testing.T) {
		body := validCreateBody()
		body["questions"].([]gin.H)[0]["options"] = []string{"Paris"}
		w, env := do(t, r, http.MethodPost, "/admin/tests", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, env.Error.Fields, "questions[0].options")
	})

	t.Run("non-authority", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, "/student/tests", validCreateBody())
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, response.ErrAdminAccessOnly, env.Error.Code)
	})
}

func TestTestHandler_GetTest(t *testing.T) {
	id := uuid.New()
	catalog := &fakeCatalog{test: &model.TakerTest{ID: id, Title: "Capitals"}}
	h := NewTestHandler(catalog, &fakeGrader{}, zerolog.Nop())

	r := gin.New()
	r.GET("/tests", as(&student), h.ListTests)
	r.GET("/tests/:test_id", as(&student), h.GetTest)

	w, env := do(t, r, http.MethodGet, "/tests/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(env.Data), "correct_answer")

	w, env = do(t, r, http.MethodGet, "/tests/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrInvalidID, env.Error.Code)

	catalog.test, catalog.getErr = nil, service.ErrTestNotFound
	w, _ = do(t, r, http.MethodGet, "/tests/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = do(t, r, http.MethodGet, "/tests", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "Capitals")
}

func TestTestHandler_Submit(t *testing.T) {
	grader := &fakeGrader{}
	h := NewTestHandler(&fakeCatalog{}, grader, zerolog.Nop())

	r := gin.New()
	r.POST("/tests/:test_id/submit", as(&student), h.SubmitTest)
	path := "/tests/" + uuid.NewString() + "/submit"

	t.Run("graded", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, path, gin.H{
			"answers": gin.H{uuid.NewString(): "Paris"},
			"status":  "TIMEOUT",
		})
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, string(env.Data), `"status":"TIMEOUT"`)
		assert.Equal(t, model.SubmissionStatusTimeout, grader.req.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, path, gin.H{"answers": gin.H{}, "status": "ABANDONED"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, env.Error.Fields, "status")
	})

	t.Run("malformed json", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, path, `{"answers":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, response.ErrValidation, env.Error.Code)
	})

	t.Run("persistence failure", func(t *testing.T) {
		grader.err = errors.Join(service.ErrPersistence, errors.New("db down"))
		defer func() { grader.err = nil }()
		w, env := do(t, r, http.MethodPost, path, gin.H{"answers": gin.H{}, "status": "COMPLETED"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, response.ErrSubmissionFailed, env.Error.Code)
	})

	t.Run("unknown test", func(t *testing.T) {
		grader.err = service.ErrTestNotFound
		defer func() { grader.err = nil }()
		w, _ := do(t, r, http.MethodPost, path, gin.H{"answers": gin.H{}, "status": "COMPLETED"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// ─── Results ────────────────────────────────────────────────────────

func TestResultHandler(t *testing.T) {
	id := uuid.New()
	results := &fakeResults{detail: &model.SubmissionDetail{ID: id, Score: 1, TotalQuestions: 2}}
	h := NewResultHandler(results, zerolog.Nop())

	r := gin.New()
	r.GET("/results", as(&student), h.ListMyResults)
	r.GET("/results/:submission_id", as(&student), h.GetResult)
	r.GET("/admin/tests/:test_id/submissions", as(&admin), h.ListTestSubmissions)
	r.GET("/student/tests/:test_id/submissions", as(&student), h.ListTestSubmissions)

	w, env := do(t, r, http.MethodGet, "/results/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total_questions":2`)

	w, _ = do(t, r, http.MethodGet, "/results/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = do(t, r, http.MethodGet, "/results/garbage", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrNotFound, env.Error.Code)

	w, env = do(t, r, http.MethodGet, "/results", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "submissions")

	testPath := "/tests/" + uuid.NewString() + "/submissions"

	w, _ = do(t, r, http.MethodGet, "/admin"+testPath+"?sort=asc", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.SortAsc, results.order)

	w, _ = do(t, r, http.MethodGet, "/admin"+testPath, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.SortDesc, results.order)

	w, env = do(t, r, http.MethodGet, "/admin"+testPath+"?sort=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error.Fields, "sort")

	w, _ = do(t, r, http.MethodGet, "/student"+testPath, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// ─── Proctor ────────────────────────────────────────────────────────

func TestProctorHandler_ListEvents(t *testing.T) {
	h := NewProctorHandler(&fakeFeed{}, fakeChecker{}, zerolog.Nop(), nil)

	r := gin.New()
	r.GET("/admin/tests/:test_id/proctor-events", as(&admin), h.ListEvents)

	w, env := do(t, r, http.MethodGet, "/admin/tests/"+uuid.NewString()+"/proctor-events", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "VISIBILITY_HIDDEN")
}

func dialTaker(t *testing.T, h *ProctorHandler, testID uuid.UUID) *websocket.Conn {
	t.Helper()
	r := gin.New()
	r.GET("/ws/v1/tests/:test_id/proctor", as(&student), h.TakerStream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/tests/" + testID.String() + "/proctor"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg any) ws.ResponseEnvelope {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env ws.ResponseEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestProctorHandler_TakerStream(t *testing.T) {
	testID := uuid.New()
	feed := &fakeFeed{}
	h := NewProctorHandler(feed, fakeChecker{testID: true}, zerolog.Nop(), nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	conn := dialTaker(t, h, testID)

	env := roundTrip(t, conn, ws.ViolationRequest{
		Action: ws.ActionViolation,
		Kind:   model.ProctorEventVisibilityHidden,
		Count:  2,
		At:     fixed.Add(-time.Second),
	})
	assert.Equal(t, ws.EventRecorded, env.Event)
	assert.Equal(t, 2, env.Count)

	// A timestamp from the future is replaced by the server clock.
	env = roundTrip(t, conn, ws.ViolationRequest{
		Action: ws.ActionViolation,
		Kind:   model.ProctorEventInputBlocked,
		Count:  2,
		At:     fixed.Add(time.Hour),
	})
	assert.Equal(t, ws.EventRecorded, env.Event)

	events := feed.events()
	require.Len(t, events, 2)
	assert.Equal(t, student.UserID, events[0].StudentID)
	assert.Equal(t, testID, events[0].TestID)
	assert.Equal(t, fixed.Add(-time.Second), events[0].RecordedAt)
	assert.Equal(t, fixed, events[1].RecordedAt)

	env = roundTrip(t, conn, ws.PingRequest{Action: ws.ActionPing})
	assert.Equal(t, ws.EventPong, env.Event)

	env = roundTrip(t, conn, ws.ViolationRequest{Action: ws.ActionViolation, Kind: "SCREENSHOT"})
	assert.Equal(t, ws.EventError, env.Event)

	env = roundTrip(t, conn, ws.ViolationRequest{Action: ws.ActionViolation, Kind: model.ProctorEventInputBlocked, Count: -1})
	assert.Equal(t, ws.EventError, env.Event)

	env = roundTrip(t, conn, gin.H{"action": "answer"})
	assert.Equal(t, ws.EventError, env.Event)
	assert.Contains(t, env.Error, "unknown action")

	assert.Len(t, feed.events(), 2)
}

func TestProctorHandler_TakerStreamUnknownTest(t *testing.T) {
	h := NewProctorHandler(&fakeFeed{}, fakeChecker{}, zerolog.Nop(), nil)

	r := gin.New()
	r.GET("/ws/v1/tests/:test_id/proctor", as(&student), h.TakerStream)

	w, env := do(t, r, http.MethodGet, "/ws/v1/tests/"+uuid.NewString()+"/proctor", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrNotFound, env.Error.Code)
}

func TestBuildUpgrader_CheckOrigin(t *testing.T) {
	up := buildUpgrader([]string{"https://exam.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, up.CheckOrigin(req), "no origin header")

	req.Header.Set("Origin", "HTTPS://EXAM.EXAMPLE.COM")
	assert.True(t, up.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, up.CheckOrigin(req))

	assert.True(t, buildUpgrader(nil).CheckOrigin(req))
}
