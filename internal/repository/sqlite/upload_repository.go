package sqlite

import (
	"database/sql"
	"fmt"

	"detectserver/internal/model"
)

// UploadRepository implements repository.UploadRepository for SQLite.
type UploadRepository struct {
	db *DB
}

// NewUploadRepository creates a new SQLite upload repository.
func NewUploadRepository(db *DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Insert adds a new upload record to the database.
func (r *UploadRepository) Insert(upload *model.Upload) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO uploads (filename, original_name, model, filepath, filesize, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, upload.Filename, upload.OriginalName, upload.Model, upload.FilePath, upload.FileSize, upload.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert upload: %w", err)
	}

	return result.LastInsertId()
}

// GetByFilename retrieves an upload by its stored filename.
func (r *UploadRepository) GetByFilename(filename string) (*model.Upload, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var upload model.Upload
	err := r.db.Conn().QueryRow(`
		SELECT id, filename, original_name, model, filepath, filesize, created_at
		FROM uploads WHERE filename = ?
	`, filename).Scan(&upload.ID, &upload.Filename, &upload.OriginalName, &upload.Model,
		&upload.FilePath, &upload.FileSize, &upload.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &upload, nil
}

// GetAll retrieves uploads matching the filter, newest first.
func (r *UploadRepository) GetAll(filter *model.UploadFilter) ([]model.Upload, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	query := `
		SELECT id, filename, original_name, model, filepath, filesize, created_at
		FROM uploads` + where + ` ORDER BY created_at DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []model.Upload
	for rows.Next() {
		var upload model.Upload
		if err := rows.Scan(&upload.ID, &upload.Filename, &upload.OriginalName, &upload.Model,
			&upload.FilePath, &upload.FileSize, &upload.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, upload)
	}

	return uploads, rows.Err()
}

// GetTotalCount returns the number of uploads matching the filter, ignoring paging.
func (r *UploadRepository) GetTotalCount(filter *model.UploadFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM uploads`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count uploads: %w", err)
	}
	return count, nil
}

// DeleteByFilename removes an upload and its detections. Unknown names are not an error.
func (r *UploadRepository) DeleteByFilename(filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	var uploadID int64
	err := r.db.Conn().QueryRow(`SELECT id FROM uploads WHERE filename = ?`, filename).Scan(&uploadID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get upload id: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM detections WHERE upload_id = ?`, uploadID); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM uploads WHERE id = ?`, uploadID); err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}

func buildWhere(filter *model.UploadFilter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter == nil {
		return where, args
	}

	if filter.Model != "" {
		where += " AND model = ?"
		args = append(args, filter.Model)
	}

	if !filter.Since.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	return where, args
}
