// Package storage persists the development backend's state: issued upload
// credentials, stored objects and compilation results.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/menta2k/webar-studio/internal/utils"
	"github.com/menta2k/webar-studio/pkg/errs"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrCredentialUsed    = fmt.Errorf("credential already used: %w", errs.ErrCredential)
	ErrCredentialExpired = fmt.Errorf("credential expired: %w", errs.ErrCredential)
)

// Store wraps SQLite-backed persistence for credentials, objects and
// compilations.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// New opens (or creates) the database at path and ensures schema. Use
// ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)
	s := &Store{DB: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS upload_credentials (
            token TEXT PRIMARY KEY,
            object_key TEXT NOT NULL,
            file_name TEXT NOT NULL,
            content_type TEXT,
            expires_at INTEGER NOT NULL,
            used INTEGER NOT NULL DEFAULT 0,
            created_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS objects (
            key TEXT PRIMARY KEY,
            file_name TEXT,
            content_type TEXT,
            size INTEGER,
            source TEXT,
            created_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS compilations (
            id TEXT PRIMARY KEY,
            project_id TEXT NOT NULL,
            image_url TEXT,
            artifact_key TEXT,
            artifact_url TEXT,
            strategy TEXT,
            points INTEGER,
            low_texture BOOLEAN DEFAULT FALSE,
            placeholder BOOLEAN DEFAULT FALSE,
            error_message TEXT,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_compilations_project ON compilations(project_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// CredentialRecord is an issued single-use upload credential
type CredentialRecord struct {
	Token       string
	ObjectKey   string
	FileName    string
	ContentType string
	ExpiresAt   time.Time
	Used        bool
	CreatedAt   time.Time
}

// ObjectRecord describes a stored object
type ObjectRecord struct {
	Key         string
	FileName    string
	ContentType string
	Size        int64
	Source      string // direct, fallback or artifact
	CreatedAt   time.Time
}

// CompilationRecord captures one compile request and its outcome
type CompilationRecord struct {
	ID          string
	ProjectID   string
	ImageURL    string
	ArtifactKey string
	ArtifactURL string
	Strategy    string
	Points      int
	LowTexture  bool
	Placeholder bool
	Error       string
	CreatedAt   time.Time
}

// NewObjectKey returns a fresh key under prefix for fileName
func NewObjectKey(prefix, fileName string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, uuid.NewString(), utils.SanitizeFilename(fileName))
}

// IssueCredential records a new credential for fileName valid for ttl.
func (s *Store) IssueCredential(ctx context.Context, fileName, contentType string, ttl time.Duration) (CredentialRecord, error) {
	now := s.now()
	rec := CredentialRecord{
		Token:       uuid.NewString(),
		ObjectKey:   NewObjectKey("uploads", fileName),
		FileName:    fileName,
		ContentType: contentType,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO upload_credentials (token, object_key, file_name, content_type, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?);`,
		rec.Token, rec.ObjectKey, rec.FileName, rec.ContentType, rec.ExpiresAt.UnixNano(), rec.CreatedAt.UnixNano())
	if err != nil {
		return CredentialRecord{}, fmt.Errorf("issue credential: %w", err)
	}
	return rec, nil
}

// Credential looks up a credential without consuming it.
func (s *Store) Credential(ctx context.Context, token string) (CredentialRecord, error) {
	var rec CredentialRecord
	var expires, created int64
	var contentType sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT token, object_key, file_name, content_type, expires_at, used, created_at FROM upload_credentials WHERE token=?;`, token).
		Scan(&rec.Token, &rec.ObjectKey, &rec.FileName, &contentType, &expires, &rec.Used, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return CredentialRecord{}, fmt.Errorf("credential %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return CredentialRecord{}, err
	}
	rec.ContentType = contentType.String
	rec.ExpiresAt = time.Unix(0, expires)
	rec.CreatedAt = time.Unix(0, created)
	return rec, nil
}

// ConsumeCredential marks the credential used and returns it. A credential
// can be consumed once and only before it expires.
func (s *Store) ConsumeCredential(ctx context.Context, token string) (CredentialRecord, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE upload_credentials SET used=1 WHERE token=? AND used=0 AND expires_at > ?;`, token, s.now().UnixNano())
	if err != nil {
		return CredentialRecord{}, fmt.Errorf("consume credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return CredentialRecord{}, err
	}

	rec, err := s.Credential(ctx, token)
	if err != nil {
		return CredentialRecord{}, err
	}
	if n == 1 {
		return rec, nil
	}
	if rec.Used {
		return CredentialRecord{}, ErrCredentialUsed
	}
	return CredentialRecord{}, ErrCredentialExpired
}

// RecordObject stores object metadata, replacing an existing entry for the key.
func (s *Store) RecordObject(ctx context.Context, rec ObjectRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT OR REPLACE INTO objects (key, file_name, content_type, size, source, created_at) VALUES (?, ?, ?, ?, ?, ?);`,
		rec.Key, rec.FileName, rec.ContentType, rec.Size, rec.Source, rec.CreatedAt.UnixNano())
	return err
}

// Object fetches object metadata by key.
func (s *Store) Object(ctx context.Context, key string) (ObjectRecord, error) {
	var rec ObjectRecord
	var created int64
	var fileName, contentType, source sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT key, file_name, content_type, size, source, created_at FROM objects WHERE key=?;`, key).
		Scan(&rec.Key, &fileName, &contentType, &rec.Size, &source, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ObjectRecord{}, fmt.Errorf("object %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return ObjectRecord{}, err
	}
	rec.FileName = fileName.String
	rec.ContentType = contentType.String
	rec.Source = source.String
	rec.CreatedAt = time.Unix(0, created)
	return rec, nil
}

// RecordCompilation persists a compile outcome. An empty ID gets a fresh one.
func (s *Store) RecordCompilation(ctx context.Context, rec CompilationRecord) (CompilationRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO compilations (id, project_id, image_url, artifact_key, artifact_url, strategy, points, low_texture, placeholder, error_message, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.ID, rec.ProjectID, rec.ImageURL, rec.ArtifactKey, rec.ArtifactURL, rec.Strategy, rec.Points, rec.LowTexture, rec.Placeholder, rec.Error, rec.CreatedAt.UnixNano())
	if err != nil {
		return CompilationRecord{}, fmt.Errorf("record compilation: %w", err)
	}
	return rec, nil
}

// Compilations returns the latest compilations of a project up to limit.
func (s *Store) Compilations(ctx context.Context, projectID string, limit int) ([]CompilationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, project_id, image_url, artifact_key, artifact_url, strategy, points, low_texture, placeholder, error_message, created_at
        FROM compilations WHERE project_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?;`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []CompilationRecord{}
	for rows.Next() {
		var rec CompilationRecord
		var created int64
		var imageURL, artifactKey, artifactURL, strategy, errorMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &imageURL, &artifactKey, &artifactURL, &strategy, &rec.Points, &rec.LowTexture, &rec.Placeholder, &errorMsg, &created); err != nil {
			return nil, err
		}
		rec.ImageURL = imageURL.String
		rec.ArtifactKey = artifactKey.String
		rec.ArtifactURL = artifactURL.String
		rec.Strategy = strategy.String
		rec.Error = errorMsg.String
		rec.CreatedAt = time.Unix(0, created)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
