package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the pool surface the repository needs (satisfied by pgxpool.Pool
// and by pgxmock in tests).
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists users, messages and media metadata in Postgres.
type Repository struct {
	pool PgxPool
}

func NewRepository(pool PgxPool) *Repository {
	if pool == nil {
		return nil
	}
	return &Repository{pool: pool}
}

const fileColumns = `f.id, f.message_id, f.user_id, f.media_type, f.mime_type, f.size_bytes,
		f.file_name, f.description, f.storage_key, f.origin_url, m.created_at`

// GetOrCreateUser returns the user for a phone identity, creating it on
// first contact.
func (r *Repository) GetOrCreateUser(ctx context.Context, phone string) (*User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, errors.New("media: phone is required")
	}
	query := `
		INSERT INTO users (id, phone)
		VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, phone, created_at
	`
	var u User
	if err := r.pool.QueryRow(ctx, query, uuid.New(), phone).Scan(&u.ID, &u.Phone, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("media: get or create user: %w", err)
	}
	return &u, nil
}

// SaveMessage inserts one conversation message. Messages are immutable;
// there is no update path.
func (r *Repository) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO messages (id, user_id, direction, type, content, forwarded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.UserID, msg.Direction, msg.Type, msg.Content, msg.Forwarded, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("media: insert message: %w", err)
	}
	return nil
}

// SaveMediaFile records metadata for stored bytes. The blob must already be
// durable under file.StorageKey before this is called.
func (r *Repository) SaveMediaFile(ctx context.Context, file *File) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	query := `
		INSERT INTO media_files (id, message_id, user_id, media_type, mime_type, size_bytes,
			file_name, description, storage_key, origin_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query, file.ID, file.MessageID, file.UserID, file.MediaType,
		file.MIMEType, file.SizeBytes, file.FileName, file.Description, file.StorageKey, file.OriginURL)
	if err != nil {
		return fmt.Errorf("media: insert media file: %w", err)
	}
	return nil
}

// LatestMedia returns the single most recent file, optionally filtered by
// media type. Returns nil when the user has no matching files.
func (r *Repository) LatestMedia(ctx context.Context, userID uuid.UUID, mediaType string) (*File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM media_files f
		JOIN messages m ON m.id = f.message_id
		WHERE f.user_id = $1 AND ($2 = '' OR f.media_type = $2)
		ORDER BY m.created_at DESC
		LIMIT 1
	`
	rows, err := r.pool.Query(ctx, query, userID, mediaType)
	if err != nil {
		return nil, fmt.Errorf("media: latest media: %w", err)
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, fmt.Errorf("media: latest media: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}
	return &files[0], nil
}

// MediaByDateRange returns files whose parent message timestamp falls within
// [from, to], optionally filtered by media type, most recent first.
func (r *Repository) MediaByDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time, mediaType string) ([]File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM media_files f
		JOIN messages m ON m.id = f.message_id
		WHERE f.user_id = $1 AND m.created_at BETWEEN $2 AND $3
			AND ($4 = '' OR f.media_type = $4)
		ORDER BY m.created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID, from, to, mediaType)
	if err != nil {
		return nil, fmt.Errorf("media: media by date range: %w", err)
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, fmt.Errorf("media: media by date range: %w", err)
	}
	return files, nil
}

// AllMedia returns up to limit most recent files, optionally filtered by type.
func (r *Repository) AllMedia(ctx context.Context, userID uuid.UUID, mediaType string, limit int) ([]File, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT ` + fileColumns + `
		FROM media_files f
		JOIN messages m ON m.id = f.message_id
		WHERE f.user_id = $1 AND ($2 = '' OR f.media_type = $2)
		ORDER BY m.created_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, userID, mediaType, limit)
	if err != nil {
		return nil, fmt.Errorf("media: all media: %w", err)
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, fmt.Errorf("media: all media: %w", err)
	}
	return files, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE wildcards; a token like "100%" must match the
// literal text, not everything.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// SearchMedia matches files whose description or filename (with hyphens also
// tried as spaces) contains any of the given tokens, case-insensitively.
// Recall-first matching; ranking is recency only.
func (r *Repository) SearchMedia(ctx context.Context, userID uuid.UUID, tokens []string) ([]File, error) {
	cleaned := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			cleaned = append(cleaned, tok)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}

	var b strings.Builder
	args := []any{userID}
	for i, tok := range cleaned {
		if i > 0 {
			b.WriteString(" OR ")
		}
		n := len(args) + 1
		fmt.Fprintf(&b, "(f.description ILIKE $%d OR f.file_name ILIKE $%d OR replace(f.file_name, '-', ' ') ILIKE $%d)", n, n, n)
		args = append(args, "%"+escapeLike(tok)+"%")
	}

	query := `
		SELECT ` + fileColumns + `
		FROM media_files f
		JOIN messages m ON m.id = f.message_id
		WHERE f.user_id = $1 AND (` + b.String() + `)
		ORDER BY m.created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("media: search media: %w", err)
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, fmt.Errorf("media: search media: %w", err)
	}
	return files, nil
}

// GetMediaFile loads one metadata record by id. Returns nil when no record
// exists.
func (r *Repository) GetMediaFile(ctx context.Context, id uuid.UUID) (*File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM media_files f
		JOIN messages m ON m.id = f.message_id
		WHERE f.id = $1
	`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("media: get media file: %w", err)
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, fmt.Errorf("media: get media file: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}
	return &files[0], nil
}

// CountMedia reports how many files a user has, optionally by type.
func (r *Repository) CountMedia(ctx context.Context, userID uuid.UUID, mediaType string) (int64, error) {
	query := `
		SELECT count(*) FROM media_files
		WHERE user_id = $1 AND ($2 = '' OR media_type = $2)
	`
	var n int64
	if err := r.pool.QueryRow(ctx, query, userID, mediaType).Scan(&n); err != nil {
		return 0, fmt.Errorf("media: count media: %w", err)
	}
	return n, nil
}

// DeleteMediaFile removes a metadata record. Administrative operation; the
// retrieval flow never calls it.
func (r *Repository) DeleteMediaFile(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM media_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("media: delete media file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("media: delete media file: %w", pgx.ErrNoRows)
	}
	return nil
}

func scanFiles(rows pgx.Rows) ([]File, error) {
	defer rows.Close()
	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.MessageID, &f.UserID, &f.MediaType, &f.MIMEType, &f.SizeBytes,
			&f.FileName, &f.Description, &f.StorageKey, &f.OriginURL, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
