package events

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLSink_WriteUsesOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS events").WillReturnResult(sqlmock.NewResult(0, 0))
	sink, err := NewSQLSink(db, DialectPostgres)
	require.NoError(t, err)

	ev := Event{RunID: "run", Seq: 1, Day: 2, Type: TypeStatusChange, Payload: []byte(`{}`), PayloadHash: "sha256:p", Hash: "sha256:h"}
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO events \(run_id,seq,day,type,payload,payload_hash,hash\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7\)`).
		WithArgs("run", int64(1), 2, "status_change", "{}", "sha256:p", "sha256:h").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Write(context.Background(), []Event{ev}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_WriteRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	sink, err := NewSQLSink(db, DialectSQLite)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = sink.Write(context.Background(), []Event{{RunID: "run", Seq: 1}})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_Truncate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	sink, err := NewSQLSink(db, DialectSQLite)
	require.NoError(t, err)

	mock.ExpectExec(`DELETE FROM events WHERE run_id = \? AND seq > \?`).
		WithArgs("run", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	require.NoError(t, sink.Truncate(context.Background(), "run", 10))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_RoundTrip(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "events.db")
	s, err := Open(dsn)
	require.NoError(t, err)
	defer s.Close()

	l := NewLog("run", s)
	for day := 1; day <= 3; day++ {
		appendDay(t, l, day)
	}
	require.NoError(t, l.Flush(context.Background()))

	sink := s.(*SQLSink)
	evs, err := sink.Events(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, evs, 9)
	head, err := Verify(Head{}, evs)
	require.NoError(t, err)
	assert.Equal(t, l.Head(), head)

	require.NoError(t, sink.Truncate(context.Background(), "run", 6))
	evs, err = sink.Events(context.Background(), "run")
	require.NoError(t, err)
	assert.Len(t, evs, 6)
}

func TestOpen_RejectsUnknownScheme(t *testing.T) {
	_, err := Open("mysql://x")
	require.Error(t, err)

	s, err := Open("")
	require.NoError(t, err)
	assert.IsType(t, &MemorySink{}, s)
}
