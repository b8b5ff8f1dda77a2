package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func openMem(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	dbh, err := Open(context.Background(), DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	return dbh
}

func TestOpenCreatesSchemaIdempotently(t *testing.T) {
	dbh := openMem(t)
	if err := ensureSchema(context.Background(), dbh, DriverSQLite); err != nil {
		t.Fatalf("second ensureSchema: %v", err)
	}
	for _, table := range []string{"users", "scenarios", "decision_nodes", "choices", "attempts", "choice_responses", "event_log"} {
		var n int
		if err := dbh.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("table %s: %v", table, err)
		}
	}
}

func TestActiveAttemptIndexIsUnique(t *testing.T) {
	dbh := openMem(t)
	mustExec(t, dbh, `INSERT INTO scenarios (id,title,created_at) VALUES ('s1','S',1)`)
	mustExec(t, dbh, `INSERT INTO attempts (id,scenario_id,user_id,status,started_at) VALUES ('a1','s1','u1','IN_PROGRESS',1)`)

	_, err := dbh.Exec(`INSERT INTO attempts (id,scenario_id,user_id,status,started_at) VALUES ('a2','s1','u1','IN_PROGRESS',2)`)
	if !IsUniqueViolation(err) {
		t.Fatalf("want unique violation, got %v", err)
	}
	// completed attempts do not count against the active slot
	mustExec(t, dbh, `UPDATE attempts SET status='COMPLETE' WHERE id='a1'`)
	mustExec(t, dbh, `INSERT INTO attempts (id,scenario_id,user_id,status,started_at) VALUES ('a2','s1','u1','IN_PROGRESS',2)`)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	dbh := openMem(t)
	boom := errors.New("boom")
	err := WithTx(context.Background(), dbh, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO scenarios (id,title,created_at) VALUES ('s1','S',1)`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	var n int
	if err := dbh.QueryRow(`SELECT COUNT(*) FROM scenarios`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("rollback did not happen, %d rows", n)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]Driver{
		"":           DriverSQLite,
		"sqlite3":    DriverSQLite,
		"pgx":        DriverPostgres,
		"PostgreSQL": DriverPostgres,
		"mysql":      Driver("mysql"),
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q)=%q want %q", in, got, want)
		}
	}
}

func mustExec(t *testing.T, dbh *sql.DB, q string) {
	t.Helper()
	if _, err := dbh.Exec(q); err != nil {
		t.Fatalf("%s: %v", q, err)
	}
}
