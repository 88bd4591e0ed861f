package results

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/saveenergy/playertester/internal/logging"
	"github.com/saveenergy/playertester/pkg/types"
)

const (
	defaultRetention = 90 * 24 * time.Hour
	cleanupInterval  = 1 * time.Hour
)

// ErrStoreRetryable marks failures caused by a busy database.
var ErrStoreRetryable = errors.New("results store busy")

// Run is the stored record of one finished scenario.
type Run struct {
	ID          string                           `json:"id"`
	ManifestURL string                           `json:"manifest_url"`
	Reason      types.FinishReason               `json:"reason"`
	LastState   types.State                      `json:"last_state"`
	LowLatency  bool                             `json:"low_latency"`
	FinishOn    string                           `json:"finish_on"`
	StartedAt   time.Time                        `json:"started_at"`
	FinishedAt  time.Time                        `json:"finished_at"`
	DurationMs  int64                            `json:"duration_ms"`
	LoadError   string                           `json:"load_error,omitempty"`
	PlayerError string                           `json:"player_error,omitempty"`
	SampleCount int                              `json:"sample_count"`
	Summary     map[types.Label]types.LabelStats `json:"summary"`
}

// RunFromResult builds the stored record for a scenario result.
func RunFromResult(res types.Result, lowLatency bool, finishOn string, summary map[types.Label]types.LabelStats, sampleCount int) Run {
	return Run{
		ID:          res.RunID,
		ManifestURL: res.ManifestURL,
		Reason:      res.Reason,
		LastState:   res.LastState,
		LowLatency:  lowLatency,
		FinishOn:    finishOn,
		StartedAt:   res.StartedAt.UTC(),
		FinishedAt:  res.FinishedAt.UTC(),
		DurationMs:  res.Duration.Milliseconds(),
		LoadError:   res.LoadError,
		PlayerError: res.PlayerError,
		SampleCount: sampleCount,
		Summary:     summary,
	}
}

type Store struct {
	db        *sql.DB
	maxRuns   int
	retention time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New opens (or creates) the SQLite database at dbPath. maxRuns <= 0 keeps
// every run younger than the retention period.
func New(dbPath string, maxRuns int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(3)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// modernc.org/sqlite requires explicit PRAGMAs (not query-string params)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &Store{
		db:        db,
		maxRuns:   maxRuns,
		retention: defaultRetention,
		stopCh:    make(chan struct{}),
	}

	s.cleanup()

	s.wg.Add(1)
	go s.cleanupLoop()

	return s, nil
}

func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		if err := s.db.Close(); err != nil {
			logging.Warn("results store: close failed", logging.F("error", err))
		}
	})
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			manifest_url TEXT NOT NULL,
			reason TEXT NOT NULL,
			last_state TEXT NOT NULL,
			low_latency INTEGER NOT NULL DEFAULT 0,
			finish_on TEXT NOT NULL DEFAULT 'timeout',
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL,
			load_error TEXT NOT NULL DEFAULT '',
			player_error TEXT NOT NULL DEFAULT '',
			sample_count INTEGER NOT NULL DEFAULT 0,
			summary TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at)`,
		`CREATE TABLE IF NOT EXISTS samples (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			label TEXT NOT NULL,
			value REAL NOT NULL,
			at_unix_nano INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save writes run and its samples in one transaction.
func (s *Store) Save(run Run, samples []types.Sample) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return classify("begin", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, manifest_url, reason, last_state, low_latency, finish_on,
			started_at, finished_at, duration_ms, load_error, player_error, sample_count, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ManifestURL, string(run.Reason), run.LastState.String(), run.LowLatency, run.FinishOn,
		run.StartedAt.UTC(), run.FinishedAt.UTC(), run.DurationMs, run.LoadError, run.PlayerError,
		len(samples), string(summary),
	)
	if err != nil {
		return classify("insert run", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO samples (run_id, seq, label, value, at_unix_nano) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return classify("prepare samples", err)
	}
	defer stmt.Close()
	for i, smp := range samples {
		if _, err := stmt.Exec(run.ID, i, string(smp.Label), smp.Value, smp.At.UnixNano()); err != nil {
			return classify("insert sample", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

func classify(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreRetryable, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

const runColumns = `id, manifest_url, reason, last_state, low_latency, finish_on,
	started_at, finished_at, duration_ms, load_error, player_error, sample_count, summary`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r       Run
		reason  string
		state   string
		summary string
	)
	if err := row.Scan(&r.ID, &r.ManifestURL, &reason, &state, &r.LowLatency, &r.FinishOn,
		&r.StartedAt, &r.FinishedAt, &r.DurationMs, &r.LoadError, &r.PlayerError,
		&r.SampleCount, &summary); err != nil {
		return nil, err
	}
	r.Reason = types.FinishReason(reason)
	st, err := types.ParseState(state)
	if err != nil {
		return nil, err
	}
	r.LastState = st
	if err := json.Unmarshal([]byte(summary), &r.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &r, nil
}

// Get returns the run with id, or nil if there is none.
func (s *Store) Get(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("query run", err)
	}
	return r, nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify("list runs", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Samples returns the samples of run id in emission order.
func (s *Store) Samples(id string) ([]types.Sample, error) {
	rows, err := s.db.Query(`SELECT label, value, at_unix_nano FROM samples WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, classify("query samples", err)
	}
	defer rows.Close()

	var out []types.Sample
	for rows.Next() {
		var (
			label string
			smp   types.Sample
			at    int64
		)
		if err := rows.Scan(&label, &smp.Value, &at); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.Label = types.Label(label)
		smp.At = time.Unix(0, at).UTC()
		out = append(out, smp)
	}
	return out, rows.Err()
}

func (s *Store) cleanup() {
	cutoff := time.Now().UTC().Add(-s.retention)
	res, err := s.db.Exec(`DELETE FROM runs WHERE finished_at < ?`, cutoff)
	if err != nil {
		logging.Warn("results cleanup (age) failed", logging.F("error", err))
	} else if n, _ := res.RowsAffected(); n > 0 {
		logging.Info("results cleanup: removed expired", logging.F("count", n))
	}

	// Trim to max count, keeping newest
	if s.maxRuns > 0 {
		res, err = s.db.Exec(
			`DELETE FROM runs WHERE id NOT IN (
				SELECT id FROM runs ORDER BY finished_at DESC LIMIT ?
			)`, s.maxRuns)
		if err != nil {
			logging.Warn("results cleanup (count) failed", logging.F("error", err))
		} else if n, _ := res.RowsAffected(); n > 0 {
			logging.Info("results cleanup: trimmed to max",
				logging.F("removed", n),
				logging.F("max", s.maxRuns))
		}
	}

	if _, err := s.db.Exec(`DELETE FROM samples WHERE run_id NOT IN (SELECT id FROM runs)`); err != nil {
		logging.Warn("results cleanup (samples) failed", logging.F("error", err))
	}
}

func (s *Store) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}
