package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/crawlfleet/crawlfleet/internal/crawl"
)

func TestSavePageInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPageStoreWithPool(mock, "pages")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	store.now = func() time.Time { return now }

	page := crawl.PageResult{
		URL:        "https://example.com/article",
		Title:      "An Article",
		StatusCode: 200,
		Headers:    []string{"Content-Type: text/html"},
		Meta:       []string{"charset: utf-8"},
		Links:      []string{"https://example.com/next"},
		Body:       "<html></html>",
	}

	mock.ExpectExec("INSERT INTO pages").
		WithArgs(
			pgxmock.AnyArg(),
			page.URL,
			page.Title,
			page.StatusCode,
			[]byte(`["Content-Type: text/html"]`),
			[]byte(`["charset: utf-8"]`),
			[]byte(`["https://example.com/next"]`),
			page.Body,
			"b633a587c652d02386c4f16f8c6f6aab7352d97f16367c3c40576214372dd628",
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.SavePage(context.Background(), page)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePageEmptyListsMarshalAsArrays(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPageStoreWithPool(mock, "pages")
	require.NoError(t, err)

	page := crawl.PageResult{URL: "https://example.com", Title: "No title"}

	mock.ExpectExec("INSERT INTO pages").
		WithArgs(
			pgxmock.AnyArg(),
			page.URL,
			page.Title,
			0,
			[]byte(`[]`),
			[]byte(`[]`),
			[]byte(`[]`),
			"",
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SavePage(context.Background(), page))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePageRequiresURL(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPageStoreWithPool(mock, "pages")
	require.NoError(t, err)

	err = store.SavePage(context.Background(), crawl.PageResult{})
	require.Error(t, err)
}

func TestNewPageStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPageStoreWithPool(nil, "pages")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPageStoreWithPool(mock, "drop table; --")
	require.Error(t, err)
}
