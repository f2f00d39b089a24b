package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sitehawk/sitehawk/pkg/finding"
	"github.com/sitehawk/sitehawk/pkg/jsonutil"
)

// SQLite persists scan output in a single database file. Concurrent
// writers are safe: the database is opened in WAL mode.
type SQLite struct {
	db *sql.DB
}

var (
	_ Store  = (*SQLite)(nil)
	_ Reader = (*SQLite)(nil)
)

// OpenSQLite opens or creates the database at path and initializes the
// schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		scan_id    TEXT PRIMARY KEY,
		project_id TEXT NOT NULL DEFAULT '',
		start_url  TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'queued',
		progress   INTEGER NOT NULL DEFAULT 0,
		action     TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS pages (
		page_id        TEXT PRIMARY KEY,
		scan_id        TEXT NOT NULL,
		url            TEXT NOT NULL,
		http_status    INTEGER NOT NULL DEFAULT 0,
		title          TEXT NOT NULL DEFAULT '',
		headers        TEXT NOT NULL DEFAULT '{}',
		technologies   TEXT NOT NULL DEFAULT '[]',
		security_score INTEGER NOT NULL DEFAULT 0,
		state          TEXT NOT NULL DEFAULT 'created',
		fetched_at     TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS findings (
		finding_id  TEXT PRIMARY KEY,
		scan_id     TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		severity    TEXT NOT NULL,
		location    TEXT NOT NULL DEFAULT '',
		evidence    TEXT NOT NULL DEFAULT '',
		remediation TEXT NOT NULL DEFAULT '',
		cwe         TEXT NOT NULL DEFAULT '',
		detected_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scan_logs (
		log_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id   TEXT NOT NULL,
		level     TEXT NOT NULL,
		message   TEXT NOT NULL,
		logged_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pages_scan    ON pages(scan_id);
	CREATE INDEX IF NOT EXISTS idx_findings_scan ON findings(scan_id);
	CREATE INDEX IF NOT EXISTS idx_logs_scan     ON scan_logs(scan_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RegisterScan records the scan's identity before the engine starts
// writing. Re-registering an id refreshes the metadata and resets the
// run to queued.
func (s *SQLite) RegisterScan(ctx context.Context, scanID, projectID, startURL string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (scan_id, project_id, start_url, status, progress, action)
		VALUES (?, ?, ?, 'queued', 0, '')
		ON CONFLICT(scan_id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			start_url  = EXCLUDED.start_url,
			status     = 'queued',
			progress   = 0,
			action     = '',
			updated_at = CURRENT_TIMESTAMP
	`, scanID, projectID, startURL)
	if err != nil {
		return fmt.Errorf("register scan: %w", err)
	}
	return nil
}

// InsertPage writes the created-phase record.
func (s *SQLite) InsertPage(ctx context.Context, rec *PageRecord) error {
	if rec.State == "" {
		rec.State = PageCreated
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now().UTC()
	}

	headers, err := jsonutil.Marshal(rec.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	techs, err := jsonutil.Marshal(rec.Technologies)
	if err != nil {
		return fmt.Errorf("encode technologies: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pages (page_id, scan_id, url, http_status, title, headers, technologies, security_score, state, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ScanID, rec.URL, rec.Status, rec.Title, string(headers), string(techs), rec.SecurityScore, string(rec.State), rec.FetchedAt)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// EnrichPage attaches fingerprint data to an existing page and flips
// its state to enriched.
func (s *SQLite) EnrichPage(ctx context.Context, id string, patch PagePatch) error {
	techs, err := jsonutil.Marshal(patch.Technologies)
	if err != nil {
		return fmt.Errorf("encode technologies: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pages
		SET technologies = ?, security_score = ?, state = ?
		WHERE page_id = ?
	`, string(techs), patch.SecurityScore, string(PageEnriched), id)
	if err != nil {
		return fmt.Errorf("enrich page: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	return nil
}

func (s *SQLite) InsertFinding(ctx context.Context, f *finding.Finding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO findings (finding_id, scan_id, title, description, severity, location, evidence, remediation, cwe, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.ScanID, f.Title, f.Description, string(f.Severity), f.Location, f.Evidence, f.Remediation, f.CWE, f.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

func (s *SQLite) AppendLog(ctx context.Context, scanID, level, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_logs (scan_id, level, message) VALUES (?, ?, ?)
	`, scanID, level, message)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateProgress(ctx context.Context, scanID string, percent int, action string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (scan_id, progress, action)
		VALUES (?, ?, ?)
		ON CONFLICT(scan_id) DO UPDATE SET
			progress   = EXCLUDED.progress,
			action     = EXCLUDED.action,
			updated_at = CURRENT_TIMESTAMP
	`, scanID, percent, action)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateStatus(ctx context.Context, scanID string, status Status, action string) error {
	if !status.IsValid() {
		return fmt.Errorf("update status: invalid status %q", status)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (scan_id, status, action)
		VALUES (?, ?, ?)
		ON CONFLICT(scan_id) DO UPDATE SET
			status     = EXCLUDED.status,
			action     = EXCLUDED.action,
			updated_at = CURRENT_TIMESTAMP
	`, scanID, string(status), action)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func (s *SQLite) GetScan(ctx context.Context, scanID string) (*ScanRecord, error) {
	var rec ScanRecord
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT scan_id, project_id, start_url, status, progress, action, created_at, updated_at
		FROM scans WHERE scan_id = ?
	`, scanID).Scan(&rec.ID, &rec.ProjectID, &rec.StartURL, &status, &rec.Progress, &rec.Action, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	rec.Status = Status(status)
	return &rec, nil
}

// ListScans returns every scan record, newest first. CLI-side browsing
// only, so it sits on the concrete type like RegisterScan.
func (s *SQLite) ListScans(ctx context.Context) ([]*ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, project_id, start_url, status, progress, action, created_at, updated_at
		FROM scans ORDER BY created_at DESC, scan_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []*ScanRecord
	for rows.Next() {
		var rec ScanRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.StartURL, &status, &rec.Progress, &rec.Action, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		rec.Status = Status(status)
		scans = append(scans, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return scans, nil
}

func (s *SQLite) ListPages(ctx context.Context, scanID string) ([]*PageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_id, scan_id, url, http_status, title, headers, technologies, security_score, state, fetched_at
		FROM pages WHERE scan_id = ? ORDER BY fetched_at ASC, page_id ASC
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []*PageRecord
	for rows.Next() {
		var rec PageRecord
		var headers, techs, state string
		if err := rows.Scan(&rec.ID, &rec.ScanID, &rec.URL, &rec.Status, &rec.Title, &headers, &techs, &rec.SecurityScore, &state, &rec.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		if err := jsonutil.Unmarshal([]byte(headers), &rec.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
		if err := jsonutil.Unmarshal([]byte(techs), &rec.Technologies); err != nil {
			return nil, fmt.Errorf("decode technologies: %w", err)
		}
		rec.State = PageState(state)
		pages = append(pages, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func (s *SQLite) ListFindings(ctx context.Context, scanID string) ([]*finding.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT finding_id, scan_id, title, description, severity, location, evidence, remediation, cwe, detected_at
		FROM findings WHERE scan_id = ? ORDER BY detected_at ASC, finding_id ASC
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var findings []*finding.Finding
	for rows.Next() {
		var f finding.Finding
		var severity string
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Title, &f.Description, &severity, &f.Location, &f.Evidence, &f.Remediation, &f.CWE, &f.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan finding row: %w", err)
		}
		f.Severity = finding.Severity(severity)
		findings = append(findings, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return findings, nil
}

func (s *SQLite) ListLogs(ctx context.Context, scanID string) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, level, message, logged_at
		FROM scan_logs WHERE scan_id = ? ORDER BY log_id ASC
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var logs []*LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ScanID, &e.Level, &e.Message, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		logs = append(logs, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return logs, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
