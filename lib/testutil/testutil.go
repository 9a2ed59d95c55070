package testutil

import (
	"fmt"
	"testing"

	"insights-backend/internal/db"
	"insights-backend/lib/telemetry"

	"github.com/jmoiron/sqlx"
)

type DBResult struct {
	DB     *sqlx.DB
	MakeTx db.MakeTx
}

// SetupDB opens a migrated in-memory database and telemetry for the test named name.
func SetupDB(t testing.TB, name string) DBResult {
	cleanupTelemetry := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", name))

	conn, err := db.OpenAndMigrate(db.Config{File: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		cleanupTelemetry()
	})

	return DBResult{
		DB:     conn,
		MakeTx: db.NewMakeTx(conn),
	}
}
