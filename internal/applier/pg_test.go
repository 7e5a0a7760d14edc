package applier

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/redline-docs/redline/internal/annotation"
	"github.com/redline-docs/redline/internal/detect"
)

func TestPGApplyReplacesWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM annotations").
		WithArgs("doc-1", 1, 50).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO annotations").
		WithArgs("doc-1", 3, "clause", []byte(`{"text":"§4"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO annotations").
		WithArgs("doc-1", 17, "reference", nil).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	p := &PG{DB: db}
	summary, err := p.Apply(context.Background(), "doc-1", annotation.Window{Start: 1, End: 50}, detect.DocumentResult{
		DocumentID: "doc-1",
		PageCount:  80,
		Matches: []detect.Match{
			{Page: 3, Kind: "clause", Payload: []byte(`{"text":"§4"}`)},
			{Page: 17, Kind: "reference"},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if summary.Matches != 2 {
		t.Errorf("matches = %d, want 2", summary.Matches)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGApplyRejectsMatchOutsideWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM annotations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	p := &PG{DB: db}
	_, err = p.Apply(context.Background(), "doc-1", annotation.Window{Start: 51, End: 80}, detect.DocumentResult{
		DocumentID: "doc-1",
		Matches:    []detect.Match{{Page: 3, Kind: "clause"}},
	})
	if err == nil {
		t.Fatal("expected error for out-of-window match")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
