package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgpoetry/poetry-api/internal/model"
)

const selectPoemBySlug = "SELECT id,title,slug,content,tags,featured,views,likes,thumbnail,created_at,updated_at FROM poems WHERE slug=? LIMIT 1"

func newPoemRepo(t *testing.T) (*PoemRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPoemRepo(db), mock
}

func poemRows(id uint64, slug string, views, likes uint64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "title", "slug", "content", "tags", "featured", "views", "likes", "thumbnail", "created_at", "updated_at",
	}).AddRow(id, "Autumn Rain", slug, "verse", `["nature","rain"]`, false, views, likes, nil, now, now)
}

func TestViewBySlugIncrementsBeforeRead(t *testing.T) {
	r, mock := newPoemRepo(t)

	mock.ExpectExec("UPDATE poems SET views=views+1 WHERE slug=?").
		WithArgs("autumn-rain").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectPoemBySlug).
		WithArgs("autumn-rain").
		WillReturnRows(poemRows(1, "autumn-rain", 6, 2))

	p, err := r.ViewBySlug(context.Background(), "autumn-rain")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), p.Views)
	assert.Equal(t, []string{"nature", "rain"}, p.Tags)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestViewBySlugMissDoesNotIncrement(t *testing.T) {
	r, mock := newPoemRepo(t)

	// The UPDATE matches nothing; no SELECT follows.
	mock.ExpectExec("UPDATE poems SET views=views+1 WHERE slug=?").
		WithArgs("does-not-exist").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := r.ViewBySlug(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLikeReturnsPostIncrementCount(t *testing.T) {
	r, mock := newPoemRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE poems SET likes = LAST_INSERT_ID(likes + 1) WHERE id=?").
		WithArgs(uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT LAST_INSERT_ID()").
		WillReturnRows(sqlmock.NewRows([]string{"LAST_INSERT_ID()"}).AddRow(3))
	mock.ExpectCommit()

	likes, err := r.Like(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), likes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLikeMissingPoem(t *testing.T) {
	r, mock := newPoemRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE poems SET likes = LAST_INSERT_ID(likes + 1) WHERE id=?").
		WithArgs(uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := r.Like(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDuplicateSlug(t *testing.T) {
	r, mock := newPoemRepo(t)

	mock.ExpectExec("INSERT INTO poems (title, slug, content, tags, featured) VALUES (?,?,?,?,?)").
		WithArgs("Autumn Rain", "autumn-rain", "verse", `["nature"]`, false).
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'autumn-rain' for key 'poems.uq_poems_slug'"))

	err := r.Create(context.Background(), &model.Poem{
		Title: "Autumn Rain", Slug: "autumn-rain", Content: "verse", Tags: []string{"nature"},
	})
	assert.ErrorIs(t, err, ErrDuplicateSlug)
}

func TestDeleteNotFound(t *testing.T) {
	r, mock := newPoemRepo(t)

	mock.ExpectExec("DELETE FROM poems WHERE id=?").
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, r.Delete(context.Background(), 5), ErrNotFound)
}

func TestRelatedSkipsQueryWithoutTags(t *testing.T) {
	r, mock := newPoemRepo(t)

	related, err := r.Related(context.Background(), model.Poem{ID: 1, Tags: nil}, 5)
	require.NoError(t, err)
	assert.Empty(t, related)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelatedMatchesByTagOverlap(t *testing.T) {
	r, mock := newPoemRepo(t)

	mock.ExpectQuery("SELECT id,title,slug,tags,featured,thumbnail FROM poems WHERE id<>? AND JSON_OVERLAPS(tags, CAST(? AS JSON)) ORDER BY views DESC, created_at DESC LIMIT ?").
		WithArgs(uint64(1), `["nature"]`, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "slug", "tags", "featured", "thumbnail"}).
			AddRow(2, "Winter Road", "winter-road", `["nature"]`, true, nil))

	related, err := r.Related(context.Background(), model.Poem{ID: 1, Tags: []string{"nature"}}, 5)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "winter-road", related[0].Slug)
}
