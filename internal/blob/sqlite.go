package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fomcagent/datasync/internal/codec"
	"github.com/fomcagent/datasync/internal/db"
	"github.com/jmoiron/sqlx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS objects (
	bucket TEXT NOT NULL,
	key TEXT NOT NULL,
	body BLOB NOT NULL,
	size INTEGER NOT NULL,
	etag TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	last_modified TEXT NOT NULL,
	PRIMARY KEY (bucket, key)
);
`

const sqliteColumns = `key, size, etag, content_type, metadata, last_modified`

type sqliteRow struct {
	Key          string `db:"key"`
	Body         []byte `db:"body"`
	Size         int64  `db:"size"`
	ETag         string `db:"etag"`
	ContentType  string `db:"content_type"`
	Metadata     string `db:"metadata"`
	LastModified string `db:"last_modified"`
}

func (r *sqliteRow) info() (*ObjectInfo, error) {
	modified, err := time.Parse(time.RFC3339Nano, r.LastModified)
	if err != nil {
		return nil, fmt.Errorf("object %q: bad last_modified %q: %w", r.Key, r.LastModified, err)
	}

	md := map[string]string{}
	if r.Metadata != "" {
		if err := codec.Unmarshal([]byte(r.Metadata), &md); err != nil {
			return nil, fmt.Errorf("object %q: bad metadata: %w", r.Key, err)
		}
	}

	return &ObjectInfo{
		Key:          r.Key,
		Size:         r.Size,
		ETag:         r.ETag,
		ContentType:  r.ContentType,
		LastModified: modified,
		Metadata:     md,
	}, nil
}

// SQLiteStore keeps objects as rows in a sqlite database. Several buckets may
// share one database file.
type SQLiteStore struct {
	db     *sqlx.DB
	bucket string
}

func NewSQLiteStore(db *sqlx.DB, bucket string) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize object table: %w", err)
	}
	return &SQLiteStore{db: db, bucket: bucket}, nil
}

func OpenSQLiteStore(cfg *SQLiteConfig) (*SQLiteStore, error) {
	conn, err := db.NewSqliteDB(db.WithPath(cfg.Path))
	if err != nil {
		return nil, err
	}

	store, err := NewSQLiteStore(conn, cfg.BucketName)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	var row sqliteRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+sqliteColumns+` FROM objects WHERE bucket = ? AND key = ?`, s.bucket, key)
	if err != nil {
		return nil, s.wrapErr("head", key, err)
	}
	return row.info()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Object, error) {
	var row sqliteRow
	err := s.db.GetContext(ctx, &row,
		`SELECT body, `+sqliteColumns+` FROM objects WHERE bucket = ? AND key = ?`, s.bucket, key)
	if err != nil {
		return nil, s.wrapErr("get", key, err)
	}

	info, err := row.info()
	if err != nil {
		return nil, err
	}
	return &Object{ObjectInfo: *info, Body: io.NopCloser(bytes.NewReader(row.Body))}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, params *PutParams) (*ObjectInfo, error) {
	if !ValidateKey(params.Key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, params.Key)
	}

	md := normalizeMetadata(params.Metadata)
	mdJSON, err := codec.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	sum := md5.Sum(params.Body)
	body := params.Body
	if body == nil {
		body = []byte{}
	}
	info := &ObjectInfo{
		Key:          params.Key,
		Size:         int64(len(params.Body)),
		ETag:         hex.EncodeToString(sum[:]),
		ContentType:  params.ContentType,
		LastModified: time.Now().UTC(),
		Metadata:     md,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO objects (bucket, key, body, size, etag, content_type, metadata, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET
			body = excluded.body,
			size = excluded.size,
			etag = excluded.etag,
			content_type = excluded.content_type,
			metadata = excluded.metadata,
			last_modified = excluded.last_modified`,
		s.bucket, info.Key, body, info.Size, info.ETag, info.ContentType, string(mdJSON),
		info.LastModified.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, s.wrapErr("put", params.Key, err)
	}
	return info, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE bucket = ? AND key = ?`, s.bucket, key)
	if err != nil {
		return s.wrapErr("delete", key, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sqliteColumns+` FROM objects WHERE bucket = ? AND key LIKE ? ESCAPE '\' ORDER BY key`,
		s.bucket, escapeLike(prefix)+"%")
	if err != nil {
		return nil, s.wrapErr("list", prefix, err)
	}

	objects := make([]*ObjectInfo, 0, len(rows))
	for i := range rows {
		info, err := rows[i].info()
		if err != nil {
			return nil, err
		}
		objects = append(objects, info)
	}
	return objects, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) wrapErr(op, key string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite %s %s/%s: %w", op, s.bucket, key, ErrObjectNotFound)
	}
	return fmt.Errorf("sqlite %s %s/%s: %w", op, s.bucket, key, err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
