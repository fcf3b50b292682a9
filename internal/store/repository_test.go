package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/models"
)

var testDesc = models.ThreatDescriptor{
	ThreatType:      "MALWARE",
	PlatformType:    "ANY_PLATFORM",
	ThreatEntryType: "URL",
}

func newTestRepo(t *testing.T) (*sqlRepository, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	l := logger.Nop()
	repo := &sqlRepository{
		db:     &DB{DB: db, engine: EngineSQLite, logger: l},
		logger: l,
	}
	return repo, mock, db
}

func pgError(code string) error {
	return &pgconn.PgError{Code: code}
}

func TestListStates_Success(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.
		NewRows([]string{"threat_type", "platform_type", "threat_entry_type", "client_state", "wait_until", "last_sync"}).
		AddRow("MALWARE", "ANY_PLATFORM", "URL", "token-1", now, now).
		AddRow("SOCIAL_ENGINEERING", "ANY_PLATFORM", "URL", "", time.Time{}, time.Time{})

	mock.ExpectQuery("FROM threat_list").WillReturnRows(rows)

	states, err := repo.ListStates(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states))
	}
	if states[0].Descriptor != testDesc {
		t.Errorf("expected descriptor %v, got %v", testDesc, states[0].Descriptor)
	}
	if states[0].ClientState != "token-1" {
		t.Errorf("expected client state token-1, got %q", states[0].ClientState)
	}
	if states[1].ClientState != "" {
		t.Errorf("expected empty client state, got %q", states[1].ClientState)
	}
}

func TestListStates_QueryError(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectQuery("FROM threat_list").WillReturnError(errors.New("db network error"))

	if _, err := repo.ListStates(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestSaveListState_Success(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	state := models.ThreatListState{
		Descriptor:  testDesc,
		ClientState: "token-1",
		WaitUntil:   time.Now().Add(time.Minute),
		LastSync:    time.Now(),
	}

	mock.ExpectExec("INSERT INTO threat_list").
		WithArgs("MALWARE", "ANY_PLATFORM", "URL", "token-1", state.WaitUntil, state.LastSync).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveListState(context.Background(), state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteList_RemovesPrefixesBeforeState(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM hash_prefix").
		WithArgs("MALWARE", "ANY_PLATFORM", "URL").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM threat_list").
		WithArgs("MALWARE", "ANY_PLATFORM", "URL").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.DeleteList(context.Background(), testDesc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLoadPrefixes_Success(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"value"}).
		AddRow([]byte{0x01, 0x02, 0x03, 0x04}).
		AddRow([]byte{0xAA, 0xBB, 0xCC, 0xDD})

	mock.ExpectQuery("SELECT value FROM hash_prefix").
		WithArgs("MALWARE", "ANY_PLATFORM", "URL").
		WillReturnRows(rows)

	prefixes, err := repo.LoadPrefixes(context.Background(), testDesc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefixes) != 2 {
		t.Fatalf("expected 2 prefixes, got %d", len(prefixes))
	}
}

func TestLoadPrefixes_Empty(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectQuery("SELECT value FROM hash_prefix").
		WithArgs("MALWARE", "ANY_PLATFORM", "URL").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	prefixes, err := repo.LoadPrefixes(context.Background(), testDesc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefixes) != 0 {
		t.Fatalf("expected empty set, got %d entries", len(prefixes))
	}
}

func TestReplacePrefixes_ClearsThenInserts(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM hash_prefix").
		WithArgs("MALWARE", "ANY_PLATFORM", "URL").
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO hash_prefix")
	prep.ExpectExec().
		WithArgs([]byte{0x01, 0x02, 0x03, 0x04}, "MALWARE", "ANY_PLATFORM", "URL").
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs([]byte{0xAA, 0xBB, 0xCC, 0xDD}, "MALWARE", "ANY_PLATFORM", "URL").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := repo.ReplacePrefixes(context.Background(), testDesc, [][]byte{
		{0x01, 0x02, 0x03, 0x04},
		{0xAA, 0xBB, 0xCC, 0xDD},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplacePrefixes_SkipsDuplicateKey(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM hash_prefix").
		WithArgs("MALWARE", "ANY_PLATFORM", "URL").
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO hash_prefix")
	prep.ExpectExec().
		WithArgs([]byte{0x01, 0x02, 0x03, 0x04}, "MALWARE", "ANY_PLATFORM", "URL").
		WillReturnError(pgError(pgerrcode.UniqueViolation))
	prep.ExpectExec().
		WithArgs([]byte{0xAA, 0xBB, 0xCC, 0xDD}, "MALWARE", "ANY_PLATFORM", "URL").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ReplacePrefixes(context.Background(), testDesc, [][]byte{
		{0x01, 0x02, 0x03, 0x04},
		{0xAA, 0xBB, 0xCC, 0xDD},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReplacePrefixes_UnexpectedInsertErrorRollsBack(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM hash_prefix").
		WithArgs("MALWARE", "ANY_PLATFORM", "URL").
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO hash_prefix")
	prep.ExpectExec().
		WithArgs([]byte{0x01, 0x02, 0x03, 0x04}, "MALWARE", "ANY_PLATFORM", "URL").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.ReplacePrefixes(context.Background(), testDesc, [][]byte{
		{0x01, 0x02, 0x03, 0x04},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
