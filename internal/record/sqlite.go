package record

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/remedy"
)

// queueSize bounds the background writer's backlog. A full queue drops the
// record rather than stalling a sampling worker.
const queueSize = 1024

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	at        TEXT NOT NULL,
	key       TEXT NOT NULL,
	kind      TEXT NOT NULL,
	severity  TEXT NOT NULL,
	value     REAL NOT NULL,
	threshold REAL NOT NULL,
	attempts  INTEGER NOT NULL,
	status    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id        TEXT PRIMARY KEY,
	at        TEXT NOT NULL,
	key       TEXT NOT NULL,
	kind      TEXT NOT NULL,
	severity  TEXT NOT NULL,
	value     REAL NOT NULL,
	threshold REAL NOT NULL,
	message   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS attempts (
	id      TEXT PRIMARY KEY,
	at      TEXT NOT NULL,
	key     TEXT NOT NULL,
	action  TEXT NOT NULL,
	number  INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	err     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transitions_key_at ON transitions(key, at);
CREATE INDEX IF NOT EXISTS idx_events_key_at ON events(key, at);
`

// SQLite appends history rows to a local SQLite file through a single
// writer goroutine (SQLite is single-writer anyway).
type SQLite struct {
	db     *sql.DB
	queue  chan func(*sql.DB)
	done   chan struct{}
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the history database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}

	s := &SQLite{
		db:     db,
		queue:  make(chan func(*sql.DB), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.writer()
	return s, nil
}

func (s *SQLite) writer() {
	defer close(s.done)
	for op := range s.queue {
		op(s.db)
	}
}

// enqueue hands an insert to the writer, dropping it if the queue is full.
func (s *SQLite) enqueue(op func(*sql.DB)) {
	select {
	case s.queue <- op:
	default:
		metrics.RecordDrops.Inc()
		s.logger.Warn("history: writer backlogged, dropping record")
	}
}

func (s *SQLite) exec(query string, args ...any) {
	s.enqueue(func(db *sql.DB) {
		if _, err := db.Exec(query, args...); err != nil {
			s.logger.Error("history: insert failed", "err", err)
		}
	})
}

// RecordTransition appends one alert state transition.
func (s *SQLite) RecordTransition(tr alerts.Transition) {
	a := tr.Alert
	s.exec(`INSERT INTO transitions (at, key, kind, severity, value, threshold, attempts, status)
	        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.LastObservedAt.UTC().Format("2006-01-02 15:04:05.000"),
		a.Key, string(tr.Kind), a.Severity.String(), a.Value, a.Threshold, a.Attempts, string(a.Status))
}

// RecordEvent appends one notification event.
func (s *SQLite) RecordEvent(ev alerts.Event) {
	s.exec(`INSERT INTO events (id, at, key, kind, severity, value, threshold, message)
	        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.At.UTC().Format("2006-01-02 15:04:05.000"),
		ev.Key, string(ev.Kind), ev.Severity.String(), ev.Value, ev.Threshold, ev.Message)
}

// RecordAttempt appends one remediation attempt.
func (s *SQLite) RecordAttempt(at remedy.Attempt) {
	s.exec(`INSERT INTO attempts (id, at, key, action, number, outcome, err)
	        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		at.ID, at.At.UTC().Format("2006-01-02 15:04:05.000"),
		at.Key, at.Action, at.Number, string(at.Outcome), at.Err)
}

// Close drains the writer queue and closes the database.
func (s *SQLite) Close() error {
	close(s.queue)
	<-s.done
	return s.db.Close()
}
