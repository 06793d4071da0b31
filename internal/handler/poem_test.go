package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgpoetry/poetry-api/internal/repository"
)

const selectPoemBySlug = "SELECT id,title,slug,content,tags,featured,views,likes,thumbnail,created_at,updated_at FROM poems WHERE slug=? LIMIT 1"

// stubLimiter allows a fixed number of calls, then refuses.
type stubLimiter struct{ remaining int }

func (s *stubLimiter) Allow(string) bool {
	if s.remaining > 0 {
		s.remaining--
		return true
	}
	return false
}

func newPoemHandler(t *testing.T, limiter interface{ Allow(key string) bool }) (*PoemHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if limiter == nil {
		limiter = &stubLimiter{remaining: 1 << 30}
	}
	return NewPoemHandler(repository.NewPoemRepo(db), limiter, false), mock
}

func invokeWithParam(t *testing.T, h echo.HandlerFunc, method, path, name, value, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if name != "" {
		c.SetParamNames(name)
		c.SetParamValues(value)
	}
	require.NoError(t, h(c))
	return rec
}

func storedPoemRows(id uint64, slug, tags string, views, likes uint64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "title", "slug", "content", "tags", "featured", "views", "likes", "thumbnail", "created_at", "updated_at",
	}).AddRow(id, "Autumn Rain", slug, "verse", tags, false, views, likes, nil, now, now)
}

func TestGetBySlugRejectsMalformedSlug(t *testing.T) {
	h, mock := newPoemHandler(t, nil)

	// Never reaches storage, so no counter can move.
	rec := invokeWithParam(t, h.GetBySlug, http.MethodGet, "/api/poems/Bad%20Slug", "slug", "Bad Slug", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBySlugMissLeavesCountersAlone(t *testing.T) {
	h, mock := newPoemHandler(t, nil)

	mock.ExpectExec("UPDATE poems SET views=views+1 WHERE slug=?").
		WithArgs("does-not-exist").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := invokeWithParam(t, h.GetBySlug, http.MethodGet, "/api/poems/does-not-exist", "slug", "does-not-exist", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBySlugCountsViewAndReturnsPoem(t *testing.T) {
	h, mock := newPoemHandler(t, nil)

	mock.ExpectExec("UPDATE poems SET views=views+1 WHERE slug=?").
		WithArgs("autumn-rain").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Tagless poem, so no related-poems query follows.
	mock.ExpectQuery(selectPoemBySlug).
		WithArgs("autumn-rain").
		WillReturnRows(storedPoemRows(1, "autumn-rain", "[]", 6, 2))

	rec := invokeWithParam(t, h.GetBySlug, http.MethodGet, "/api/poems/autumn-rain", "slug", "autumn-rain", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp poemWithRelated
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(6), resp.Views)
	assert.Empty(t, resp.RelatedPoems)
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectLikeIncrement(mock sqlmock.Sqlmock, id, result uint64) {
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE poems SET likes = LAST_INSERT_ID(likes + 1) WHERE id=?").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT LAST_INSERT_ID()").
		WillReturnRows(sqlmock.NewRows([]string{"LAST_INSERT_ID()"}).AddRow(result))
	mock.ExpectCommit()
}

func TestLikeIncrementsAndReturnsCount(t *testing.T) {
	h, mock := newPoemHandler(t, nil)
	expectLikeIncrement(mock, 1, 3)

	rec := invokeWithParam(t, h.Like, http.MethodPost, "/api/poems/1/like", "id", "1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"likes": 3}`, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLikeBurstGetsNeutralThrottleResponse(t *testing.T) {
	h, mock := newPoemHandler(t, &stubLimiter{remaining: 10})

	for i := uint64(1); i <= 10; i++ {
		expectLikeIncrement(mock, 1, i)
	}
	// Eleventh call within the window: read-only count, no increment.
	mock.ExpectQuery("SELECT likes FROM poems WHERE id=?").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"likes"}).AddRow(10))

	for i := uint64(1); i <= 10; i++ {
		rec := invokeWithParam(t, h.Like, http.MethodPost, "/api/poems/1/like", "id", "1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"likes": %d}`, i), rec.Body.String())
	}

	rec := invokeWithParam(t, h.Like, http.MethodPost, "/api/poems/1/like", "id", "1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"likes": 10, "throttled": true}`, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLikeMissingPoemIs404(t *testing.T) {
	h, mock := newPoemHandler(t, nil)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE poems SET likes = LAST_INSERT_ID(likes + 1) WHERE id=?").
		WithArgs(uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	rec := invokeWithParam(t, h.Like, http.MethodPost, "/api/poems/99/like", "id", "99", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDerivesSlugFromTitle(t *testing.T) {
	h, mock := newPoemHandler(t, nil)

	mock.ExpectExec("INSERT INTO poems (title, slug, content, tags, featured) VALUES (?,?,?,?,?)").
		WithArgs("Wind Over Water!", "wind-over-water", "lines", `["nature"]`, false).
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectQuery("SELECT id,title,slug,content,tags,featured,views,likes,thumbnail,created_at,updated_at FROM poems WHERE id=? LIMIT 1").
		WithArgs(uint64(4)).
		WillReturnRows(storedPoemRows(4, "wind-over-water", `["nature"]`, 0, 0))

	rec := invokeWithParam(t, h.Create, http.MethodPost, "/api/poems", "", "",
		`{"title":"Wind Over Water!","content":"lines","tags":["Nature "]}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateTitleConflicts(t *testing.T) {
	h, mock := newPoemHandler(t, nil)

	mock.ExpectExec("INSERT INTO poems (title, slug, content, tags, featured) VALUES (?,?,?,?,?)").
		WithArgs("Autumn Rain", "autumn-rain", "verse", "[]", false).
		WillReturnError(fmt.Errorf("Error 1062 (23000): Duplicate entry 'autumn-rain' for key 'poems.uq_poems_slug'"))

	rec := invokeWithParam(t, h.Create, http.MethodPost, "/api/poems", "", "",
		`{"title":"Autumn Rain","content":"verse"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestCreateRequiresTitleAndContent(t *testing.T) {
	h, _ := newPoemHandler(t, nil)

	rec := invokeWithParam(t, h.Create, http.MethodPost, "/api/poems", "", "",
		`{"title":"  ","content":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
