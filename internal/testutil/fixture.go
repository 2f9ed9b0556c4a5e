package testutil

import (
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/bitmask"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// SchemaSQL is the publications/subscriptions schema used by fixtures.
//
//go:embed schema.sql
var SchemaSQL string

// Fixture is a writable SQLite database seeded for tests.
// The store under test opens Path read-only alongside it.
type Fixture struct {
	Path string
	DB   *sql.DB
}

// NewFixture creates an empty database with both tables in t.TempDir().
func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smartcampus.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(SchemaSQL); err != nil {
		t.Fatalf("create fixture schema: %v", err)
	}
	return &Fixture{Path: path, DB: db}
}

// SQLText is the structured-query text fixtures store for subscription id.
func SQLText(id int64) string {
	return fmt.Sprintf("SELECT * FROM publication WHERE floor = %d", id)
}

// NLPText is the natural-language text fixtures store for subscription id.
func NLPText(id int64) string {
	return fmt.Sprintf("readings from floor %d", id)
}

// PublicationText is the publication payload fixtures store for row id.
func PublicationText(rowID int64) string {
	return fmt.Sprintf(`{"floor":%d,"temperature":21.5}`, rowID)
}

// PublicationID is the external identifier fixtures store for row id.
func PublicationID(rowID int64) string {
	return fmt.Sprintf("pub-%04d", rowID)
}

// AddSubscription inserts one subscription row.
func (f *Fixture) AddSubscription(t testing.TB, sub model.Subscription) {
	t.Helper()
	_, err := f.DB.Exec(`
		INSERT INTO subscriptions (id, complexity, nlp_subscription, publication_match_count, sql_subscription)
		VALUES (?, ?, ?, ?, ?)
	`, sub.ID, sub.Complexity, sub.NLPSubscription, sub.PublicationMatchCount, sub.SQLSubscription)
	if err != nil {
		t.Fatalf("insert subscription %d: %v", sub.ID, err)
	}
}

// AddSubscriptions inserts subscriptions for each id using SQLText and NLPText.
func (f *Fixture) AddSubscriptions(t testing.TB, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		f.AddSubscription(t, model.Subscription{
			ID:              id,
			Complexity:      "simple",
			SQLSubscription: SQLText(id),
			NLPSubscription: NLPText(id),
		})
	}
}

// AddPublication inserts one publication row whose blob encodes matches.
func (f *Fixture) AddPublication(t testing.TB, rowID int64, matches ...int64) {
	t.Helper()
	f.AddPublicationBlob(t, rowID, bitmask.MustEncode(matches...))
}

// AddPublicationBlob inserts one publication row with a raw match blob.
func (f *Fixture) AddPublicationBlob(t testing.TB, rowID int64, blob []byte) {
	t.Helper()
	_, err := f.DB.Exec(`
		INSERT INTO publications (
			id, publication_id, timestamp, deveui, temperature, humidity, light, motion,
			co2, battery, sound_avg, sound_peak, moisture, pressure,
			acceleration_x, acceleration_y, acceleration_z,
			rssi, lsnr, chan, port, rfch, seqn, fcnt,
			sensor_type, floor, location, publication, subscription_matches, timestamp_unix
		) VALUES (?, ?, '2024-01-01T00:00:00Z', 'a81758fffe0312ab', 21.5, 40.2, 120, 0,
			450, 3.6, 35, 60, NULL, 1013.2,
			0.01, -0.02, 0.98,
			-87, 7.5, 3, 5, 0, ?, ?,
			'ERS', ?, 'library', ?, ?, ?)
	`, rowID, PublicationID(rowID), rowID, rowID, rowID%5, PublicationText(rowID), blob, 1704067200+rowID)
	if err != nil {
		t.Fatalf("insert publication %d: %v", rowID, err)
	}
}

// SetPayload overwrites one sensor column of a publication row. SQLite keeps
// the value's own storage class, whatever the declared column type.
func (f *Fixture) SetPayload(t testing.TB, rowID int64, column string, value any) {
	t.Helper()
	if _, err := f.DB.Exec(fmt.Sprintf("UPDATE publications SET %s = ? WHERE id = ?", column), value, rowID); err != nil {
		t.Fatalf("set %s on publication %d: %v", column, rowID, err)
	}
}

// AddPublications inserts rows with ids first..last (inclusive) in one
// transaction. matches maps a row id to the subscription ids it matches.
func (f *Fixture) AddPublications(t testing.TB, first, last int64, matches func(rowID int64) []int64) {
	t.Helper()
	tx, err := f.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO publications (id, publication_id, publication, subscription_matches, floor)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		t.Fatalf("prepare: %v", err)
	}
	defer stmt.Close()

	for id := first; id <= last; id++ {
		var ids []int64
		if matches != nil {
			ids = matches(id)
		}
		if _, err := stmt.Exec(id, PublicationID(id), PublicationText(id), bitmask.MustEncode(ids...), id%5); err != nil {
			tx.Rollback()
			t.Fatalf("insert publication %d: %v", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}
