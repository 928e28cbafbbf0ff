package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    brand_id TEXT,
    synced_at TEXT NOT NULL,
    window_days INTEGER NOT NULL DEFAULT 90,
    timezone TEXT NOT NULL DEFAULT 'UTC',
    source TEXT NOT NULL DEFAULT 'api',
    notes TEXT
);
CREATE INDEX IF NOT EXISTS idx_snapshots_brand ON snapshots(brand_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_synced ON snapshots(synced_at);

CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    post_id TEXT NOT NULL,
    status TEXT NOT NULL,
    brand_id TEXT,
    published_at TEXT NOT NULL,
    platforms TEXT NOT NULL DEFAULT '[]',
    text TEXT
);
CREATE INDEX IF NOT EXISTS idx_posts_snapshot ON posts(snapshot_id);

CREATE TABLE IF NOT EXISTS engagement (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_row_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    platform TEXT NOT NULL,
    likes INTEGER NOT NULL DEFAULT 0,
    comments INTEGER NOT NULL DEFAULT 0,
    shares INTEGER NOT NULL DEFAULT 0,
    reach INTEGER NOT NULL DEFAULT 0,
    impressions INTEGER NOT NULL DEFAULT 0,
    engagement_rate REAL NOT NULL DEFAULT 0,
    last_synced_at TEXT,
    sync_status TEXT,
    UNIQUE(post_row_id, platform)
);
CREATE INDEX IF NOT EXISTS idx_engagement_post ON engagement(post_row_id);
`

const timeLayout = time.RFC3339

type DB struct {
	*sql.DB
	path string
}

func (db *DB) Path() string {
	return db.path
}

func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath
	if strings.Contains(dbPath, "?") {
		dsn += "&_pragma=foreign_keys(1)"
	} else {
		dsn += "?_pragma=foreign_keys(1)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps the foreign_keys pragma and in-transaction reads consistent.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	database := &DB{DB: sqlDB, path: dbPath}

	if err := database.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return database, nil
}

// migrate upgrades databases written before snapshots carried a time zone.
func (db *DB) migrate() error {
	var tableName string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='snapshots'`).Scan(&tableName)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	hasTimezone, err := db.hasColumn("snapshots", "timezone")
	if err != nil {
		return err
	}
	if hasTimezone {
		return nil
	}

	if _, err := db.Exec(`ALTER TABLE snapshots ADD COLUMN timezone TEXT NOT NULL DEFAULT 'UTC'`); err != nil {
		return fmt.Errorf("add timezone column: %w", err)
	}
	return nil
}

func (db *DB) hasColumn(table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var found bool
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			found = true
		}
	}
	return found, rows.Err()
}

// Snapshot is one sync or import of a brand's published posts.
type Snapshot struct {
	ID         int64
	UUID       string
	BrandID    string
	SyncedAt   time.Time
	WindowDays int
	Timezone   string
	Source     string
	Notes      string
	PostCount  int // filled by ListSnapshots
}

// Post is a published post stored in a snapshot.
type Post struct {
	ID          int64
	SnapshotID  int64
	PostID      string
	Status      string
	BrandID     string
	PublishedAt time.Time
	Platforms   []string
	Text        string
	Engagement  []Engagement
}

// Engagement is the metrics one platform reported for a stored post.
type Engagement struct {
	ID             int64
	PostRowID      int64
	Platform       string
	Likes          int64
	Comments       int64
	Shares         int64
	Reach          int64
	Impressions    int64
	EngagementRate float64
	LastSyncedAt   string
	SyncStatus     string
}

func (db *DB) InsertSnapshot(s *Snapshot) (int64, error) {
	if s.UUID == "" {
		s.UUID = uuid.NewString()
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if s.Source == "" {
		s.Source = "api"
	}
	res, err := db.Exec(`
		INSERT INTO snapshots (uuid, brand_id, synced_at, window_days, timezone, source, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.UUID, nullable(s.BrandID), s.SyncedAt.UTC().Format(timeLayout), s.WindowDays, s.Timezone, s.Source, nullable(s.Notes))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.ID = id
	return id, nil
}

const snapshotColumns = `s.id, s.uuid, s.brand_id, s.synced_at, s.window_days, s.timezone, s.source, s.notes,
	(SELECT COUNT(*) FROM posts p WHERE p.snapshot_id = s.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var s Snapshot
	var brandID, notes sql.NullString
	var syncedAt string
	if err := row.Scan(&s.ID, &s.UUID, &brandID, &syncedAt, &s.WindowDays, &s.Timezone, &s.Source, &notes, &s.PostCount); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, syncedAt)
	if err != nil {
		return nil, fmt.Errorf("parse synced_at of snapshot %d: %w", s.ID, err)
	}
	s.SyncedAt = t
	s.BrandID = brandID.String
	s.Notes = notes.String
	return &s, nil
}

// ListSnapshots returns snapshots newest first. Empty filters match everything.
func (db *DB) ListSnapshots(limit int, brandID string, since time.Time) ([]Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots s WHERE 1=1`
	args := []any{}

	if brandID != "" {
		query += " AND s.brand_id = ?"
		args = append(args, brandID)
	}
	if !since.IsZero() {
		query += " AND s.synced_at >= ?"
		args = append(args, since.UTC().Format(timeLayout))
	}

	query += " ORDER BY s.synced_at DESC, s.id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *s)
	}
	return snapshots, rows.Err()
}

func (db *DB) GetSnapshot(id int64) (*Snapshot, error) {
	return scanSnapshot(db.QueryRow(`SELECT `+snapshotColumns+` FROM snapshots s WHERE s.id = ?`, id))
}

func (db *DB) GetSnapshotByUUID(id string) (*Snapshot, error) {
	return scanSnapshot(db.QueryRow(`SELECT `+snapshotColumns+` FROM snapshots s WHERE s.uuid = ?`, id))
}

// LatestSnapshot returns the newest snapshot, restricted to brandID when it is set.
func (db *DB) LatestSnapshot(brandID string) (*Snapshot, error) {
	if brandID == "" {
		return scanSnapshot(db.QueryRow(`SELECT ` + snapshotColumns + ` FROM snapshots s ORDER BY s.synced_at DESC, s.id DESC LIMIT 1`))
	}
	return scanSnapshot(db.QueryRow(`SELECT `+snapshotColumns+` FROM snapshots s WHERE s.brand_id = ? ORDER BY s.synced_at DESC, s.id DESC LIMIT 1`, brandID))
}

// RecentSnapshotUUIDs returns the uuids of the newest snapshots, newest first.
func (db *DB) RecentSnapshotUUIDs(limit int) ([]string, error) {
	rows, err := db.Query(`SELECT uuid FROM snapshots ORDER BY synced_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uuids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		uuids = append(uuids, id)
	}
	return uuids, rows.Err()
}

func (db *DB) DeleteSnapshot(id int64) error {
	res, err := db.Exec(`DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (db *DB) DeleteSnapshotsBefore(t time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM snapshots WHERE synced_at < ?`, t.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertPosts writes posts and their engagement into a snapshot in one transaction.
func (db *DB) InsertPosts(snapshotID int64, posts []Post) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	postStmt, err := tx.Prepare(`
		INSERT INTO posts (snapshot_id, post_id, status, brand_id, published_at, platforms, text)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare post insert: %w", err)
	}
	defer postStmt.Close()

	engagementStmt, err := tx.Prepare(`
		INSERT INTO engagement (post_row_id, platform, likes, comments, shares, reach, impressions, engagement_rate, last_synced_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare engagement insert: %w", err)
	}
	defer engagementStmt.Close()

	for i := range posts {
		p := &posts[i]
		platforms, err := json.Marshal(p.Platforms)
		if err != nil {
			return fmt.Errorf("encode platforms of post %s: %w", p.PostID, err)
		}
		if p.Platforms == nil {
			platforms = []byte("[]")
		}

		res, err := postStmt.Exec(snapshotID, p.PostID, p.Status, nullable(p.BrandID),
			p.PublishedAt.UTC().Format(timeLayout), string(platforms), nullable(p.Text))
		if err != nil {
			return fmt.Errorf("insert post %s: %w", p.PostID, err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		p.ID = rowID
		p.SnapshotID = snapshotID

		for j := range p.Engagement {
			e := &p.Engagement[j]
			res, err := engagementStmt.Exec(rowID, e.Platform, e.Likes, e.Comments, e.Shares, e.Reach, e.Impressions,
				e.EngagementRate, nullable(e.LastSyncedAt), nullable(e.SyncStatus))
			if err != nil {
				return fmt.Errorf("insert %s engagement of post %s: %w", e.Platform, p.PostID, err)
			}
			if e.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			e.PostRowID = rowID
		}
	}

	return tx.Commit()
}

// GetPostsForSnapshot returns the posts of a snapshot, oldest first, with their engagement.
func (db *DB) GetPostsForSnapshot(snapshotID int64) ([]Post, error) {
	rows, err := db.Query(`
		SELECT id, snapshot_id, post_id, status, brand_id, published_at, platforms, text
		FROM posts WHERE snapshot_id = ? ORDER BY published_at, id`, snapshotID)
	if err != nil {
		return nil, err
	}

	var posts []Post
	index := make(map[int64]int)
	for rows.Next() {
		var p Post
		var brandID, text sql.NullString
		var publishedAt, platforms string
		if err := rows.Scan(&p.ID, &p.SnapshotID, &p.PostID, &p.Status, &brandID, &publishedAt, &platforms, &text); err != nil {
			rows.Close()
			return nil, err
		}
		if p.PublishedAt, err = time.Parse(timeLayout, publishedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse published_at of post %s: %w", p.PostID, err)
		}
		if err := json.Unmarshal([]byte(platforms), &p.Platforms); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode platforms of post %s: %w", p.PostID, err)
		}
		p.BrandID = brandID.String
		p.Text = text.String
		index[p.ID] = len(posts)
		posts = append(posts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	engRows, err := db.Query(`
		SELECT e.id, e.post_row_id, e.platform, e.likes, e.comments, e.shares, e.reach, e.impressions,
		       e.engagement_rate, e.last_synced_at, e.sync_status
		FROM engagement e JOIN posts p ON p.id = e.post_row_id
		WHERE p.snapshot_id = ? ORDER BY e.post_row_id, e.platform`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer engRows.Close()

	for engRows.Next() {
		var e Engagement
		var lastSynced, status sql.NullString
		if err := engRows.Scan(&e.ID, &e.PostRowID, &e.Platform, &e.Likes, &e.Comments, &e.Shares, &e.Reach,
			&e.Impressions, &e.EngagementRate, &lastSynced, &status); err != nil {
			return nil, err
		}
		e.LastSyncedAt = lastSynced.String
		e.SyncStatus = status.String
		if i, ok := index[e.PostRowID]; ok {
			posts[i].Engagement = append(posts[i].Engagement, e)
		}
	}
	return posts, engRows.Err()
}

func (db *DB) CountPostsForSnapshot(snapshotID int64) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM posts WHERE snapshot_id = ?`, snapshotID).Scan(&count)
	return count, err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
