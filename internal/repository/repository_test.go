package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vaidashi/marketplace-orders/internal/database"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{&pq.Error{Code: "40001"}, ErrConflict},
		{&pq.Error{Code: "40P01"}, ErrConflict},
		{fmt.Errorf("select: %w", &pq.Error{Code: "55P03"}), ErrConflict},
		{&pq.Error{Code: "23505"}, ErrDuplicate},
		{&pq.Error{Code: "42P01"}, ErrDatabase},
		{errors.New("connection reset"), ErrDatabase},
	}

	for _, c := range cases {
		if got := classify(c.err); !errors.Is(got, c.want) {
			t.Fatalf("classify(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func newMockDB(t *testing.T) (*database.Database, sqlmock.Sqlmock) {
	t.Helper()

	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	return &database.Database{DB: sqlx.NewDb(raw, "postgres")}, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
