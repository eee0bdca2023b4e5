package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/status"
	"github.com/vidmill/vidmill/internal/pkg/utils"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	return res, nil
}

// InsertMedia inserts media into DB
func (db *DB) InsertMedia(ctx context.Context, m *persistence.Media) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO media(id, user_id, module_id, title, email, raw_path, status, ai_enabled, created, updated)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`, m.ID, m.UserID, m.ModuleID, m.Title, m.Email, m.RawPath, m.Status, m.AIEnabled, m.Created)
	if err != nil {
		return fmt.Errorf("can't insert media: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadMedia loads media from DB, nil if not found
func (db *DB) LoadMedia(ctx context.Context, id string) (*persistence.Media, error) {
	var res persistence.Media
	err := db.pool.QueryRow(ctx, `SELECT id, user_id, module_id, title, email, raw_path, thumbnail_path, audio_path,
	transcript_path, width, height, duration, codec, bitrate, fps, status, last_error, ai_enabled, created, updated
	FROM media WHERE id = $1`, id).Scan(&res.ID, &res.UserID, &res.ModuleID, &res.Title, &res.Email, &res.RawPath,
		&res.ThumbnailPath, &res.AudioPath, &res.TranscriptPath, &res.Width, &res.Height, &res.Duration,
		&res.Codec, &res.Bitrate, &res.FPS, &res.Status, &res.LastError, &res.AIEnabled, &res.Created, &res.Updated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load media: %w", err)
	}
	return &res, nil
}

// UpdateMediaStatus moves media to the new status.
// With expected prior states provided the update is a compare-and-set
// and a false result means the media was not in any of them.
func (db *DB) UpdateMediaStatus(ctx context.Context, id string, to status.Status, from ...status.Status) (bool, error) {
	var cmd string
	args := []interface{}{id, to.String(), time.Now()}
	if len(from) > 0 {
		exp := make([]string, 0, len(from))
		for _, f := range from {
			exp = append(exp, f.String())
		}
		cmd = `UPDATE media SET status = $2, updated = $3 WHERE id = $1 AND status = ANY($4)`
		args = append(args, exp)
	} else {
		cmd = `UPDATE media SET status = $2, updated = $3 WHERE id = $1`
	}
	rows, err := db.pool.Exec(ctx, cmd, args...)
	if err != nil {
		return false, fmt.Errorf("can't update media status: %w", err)
	}
	return rows.RowsAffected() == 1, nil
}

// SetMediaFailure moves media to a failure status and records the error message
func (db *DB) SetMediaFailure(ctx context.Context, id string, st status.Status, errMsg string) error {
	rows, err := db.pool.Exec(ctx, `UPDATE media SET status = $2, last_error = $3, updated = $4 WHERE id = $1`,
		id, st.String(), utils.ToSQLStr(errMsg), time.Now())
	if err != nil {
		return fmt.Errorf("can't update media status: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update media status, no record found")
	}
	return nil
}

// SetMediaSourceMeta records source stream info reported by the encoder
func (db *DB) SetMediaSourceMeta(ctx context.Context, id string, width, height int32, duration float64,
	codec string, bitrate int32, fps float64) error {
	_, err := db.pool.Exec(ctx, `UPDATE media SET width = $2, height = $3, duration = $4, codec = $5,
	bitrate = $6, fps = $7, updated = $8 WHERE id = $1`, id, utils.ToSQLInt32(width), utils.ToSQLInt32(height),
		utils.ToSQLFloat64(duration), utils.ToSQLStr(codec), utils.ToSQLInt32(bitrate), utils.ToSQLFloat64(fps), time.Now())
	if err != nil {
		return fmt.Errorf("can't update media meta: %w", err)
	}
	return nil
}

// SetMediaThumbnail records the thumbnail object path
func (db *DB) SetMediaThumbnail(ctx context.Context, id, path string) error {
	return db.setMediaPath(ctx, id, "thumbnail_path", path)
}

// SetMediaAudio records the extracted audio object path
func (db *DB) SetMediaAudio(ctx context.Context, id, path string) error {
	return db.setMediaPath(ctx, id, "audio_path", path)
}

// SetMediaTranscript records the transcript object path
func (db *DB) SetMediaTranscript(ctx context.Context, id, path string) error {
	return db.setMediaPath(ctx, id, "transcript_path", path)
}

func (db *DB) setMediaPath(ctx context.Context, id, column, path string) error {
	_, err := db.pool.Exec(ctx, `UPDATE media SET `+column+` = $2, updated = $3 WHERE id = $1`,
		id, utils.ToSQLStr(path), time.Now())
	if err != nil {
		return fmt.Errorf("can't update media %s: %w", column, err)
	}
	return nil
}

// SetMediaDuration records duration on completion
func (db *DB) SetMediaDuration(ctx context.Context, id string, duration float64) error {
	_, err := db.pool.Exec(ctx, `UPDATE media SET duration = $2, updated = $3 WHERE id = $1`,
		id, utils.ToSQLFloat64(duration), time.Now())
	if err != nil {
		return fmt.Errorf("can't update media duration: %w", err)
	}
	return nil
}

// InsertVariants inserts the fixed variant set for a media
func (db *DB) InsertVariants(ctx context.Context, items []*persistence.Variant) error {
	for _, v := range items {
		rows, err := db.pool.Query(ctx, `INSERT INTO media_variants(id, media_id, quality, width, height,
		bitrate, audio_bitrate, status, created, updated) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
			v.ID, v.MediaID, v.Quality, v.Width, v.Height, v.Bitrate, v.AudioBitrate, v.Status, v.Created)
		if err != nil {
			return fmt.Errorf("can't insert variant: %w", err)
		}
		rows.Close()
	}
	return nil
}

// ListVariants loads all variants of a media ordered by height desc
func (db *DB) ListVariants(ctx context.Context, mediaID string) ([]*persistence.Variant, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, media_id, quality, width, height, bitrate, audio_bitrate,
	file_size, path, status, created, updated FROM media_variants WHERE media_id = $1 ORDER BY height DESC`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("can't load variants: %w", err)
	}
	defer rows.Close()
	var res []*persistence.Variant
	for rows.Next() {
		var v persistence.Variant
		if err := rows.Scan(&v.ID, &v.MediaID, &v.Quality, &v.Width, &v.Height, &v.Bitrate, &v.AudioBitrate,
			&v.FileSize, &v.Path, &v.Status, &v.Created, &v.Updated); err != nil {
			return nil, fmt.Errorf("can't scan variant: %w", err)
		}
		res = append(res, &v)
	}
	return res, rows.Err()
}

// SetVariantReady marks the named quality done with its produced file info
func (db *DB) SetVariantReady(ctx context.Context, mediaID, quality string, width, height, bitrate int,
	fileSize int64, path string) error {
	_, err := db.pool.Exec(ctx, `UPDATE media_variants SET status = $3, width = $4, height = $5, bitrate = $6,
	file_size = $7, path = $8, updated = $9 WHERE media_id = $1 AND quality = $2`, mediaID, quality,
		status.VariantReady, width, height, bitrate, utils.ToSQLInt64(fileSize), utils.ToSQLStr(path), time.Now())
	if err != nil {
		return fmt.Errorf("can't update variant: %w", err)
	}
	return nil
}

// SetVariantStatus updates variant status
func (db *DB) SetVariantStatus(ctx context.Context, mediaID, quality, st string) error {
	_, err := db.pool.Exec(ctx, `UPDATE media_variants SET status = $3, updated = $4
	WHERE media_id = $1 AND quality = $2`, mediaID, quality, st, time.Now())
	if err != nil {
		return fmt.Errorf("can't update variant status: %w", err)
	}
	return nil
}

// ResetErrorVariants moves variants left in error back to pending for a retry
func (db *DB) ResetErrorVariants(ctx context.Context, mediaID string) error {
	_, err := db.pool.Exec(ctx, `UPDATE media_variants SET status = $2, updated = $3
	WHERE media_id = $1 AND status = $4`, mediaID, status.VariantPending, time.Now(), status.VariantError)
	if err != nil {
		return fmt.Errorf("can't reset variants: %w", err)
	}
	return nil
}

// InsertJob inserts encoding job into DB
func (db *DB) InsertJob(ctx context.Context, j *persistence.Job) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO encoding_jobs(id, media_id, job_type, status, attempt,
	max_attempts, created, updated) VALUES($1, $2, $3, $4, $5, $6, $7, $7)`,
		j.ID, j.MediaID, j.JobType, j.Status, j.Attempt, j.MaxAttempts, j.Created)
	if err != nil {
		return fmt.Errorf("can't insert job: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadJob loads job from DB, nil if not found
func (db *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	var res persistence.Job
	err := db.pool.QueryRow(ctx, `SELECT id, media_id, job_type, status, attempt, max_attempts, progress,
	message, error_code, error_message, error_details, external_id, created, updated
	FROM encoding_jobs WHERE id = $1`, id).Scan(&res.ID, &res.MediaID, &res.JobType, &res.Status, &res.Attempt,
		&res.MaxAttempts, &res.Progress, &res.Message, &res.ErrorCode, &res.ErrorMessage, &res.ErrorDetails,
		&res.ExternalID, &res.Created, &res.Updated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load job: %w", err)
	}
	return &res, nil
}

// MarkJobQueued records successful publish with the queue correlation id
func (db *DB) MarkJobQueued(ctx context.Context, id, externalID string) error {
	return db.updateJob(ctx, id, `UPDATE encoding_jobs SET status = $2, external_id = $3, updated = $4 WHERE id = $1`,
		status.JobQueued, utils.ToSQLStr(externalID), time.Now())
}

// MarkJobProcessing moves job to processing
func (db *DB) MarkJobProcessing(ctx context.Context, id string) error {
	return db.updateJob(ctx, id, `UPDATE encoding_jobs SET status = $2, updated = $3 WHERE id = $1`,
		status.JobProcessing, time.Now())
}

// UpdateJobProgress records percentage and message
func (db *DB) UpdateJobProgress(ctx context.Context, id string, progress int32, message string) error {
	return db.updateJob(ctx, id, `UPDATE encoding_jobs SET progress = $2, message = $3, updated = $4 WHERE id = $1`,
		utils.ToSQLInt32(progress), utils.ToSQLStr(message), time.Now())
}

// MarkJobCompleted moves job to completed with full progress
func (db *DB) MarkJobCompleted(ctx context.Context, id string) error {
	return db.updateJob(ctx, id, `UPDATE encoding_jobs SET status = $2, progress = $3, updated = $4 WHERE id = $1`,
		status.JobCompleted, utils.ToSQLInt32(100), time.Now())
}

// MarkMediaJobCompleted completes an auxiliary job addressed by media and type.
// Callbacks carry only the primary job id, so the thumbnail job is found this way.
func (db *DB) MarkMediaJobCompleted(ctx context.Context, mediaID, jobType string) error {
	_, err := db.pool.Exec(ctx, `UPDATE encoding_jobs SET status = $3, progress = $4, updated = $5
	WHERE media_id = $1 AND job_type = $2`, mediaID, jobType, status.JobCompleted, utils.ToSQLInt32(100), time.Now())
	if err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	return nil
}

// MarkJobFailed records failure details
func (db *DB) MarkJobFailed(ctx context.Context, id, code, message, details string) error {
	return db.updateJob(ctx, id, `UPDATE encoding_jobs SET status = $2, error_code = $3, error_message = $4,
	error_details = $5, updated = $6 WHERE id = $1`, status.JobFailed, utils.ToSQLStr(code),
		utils.ToSQLStr(message), utils.ToSQLStr(details), time.Now())
}

// PrepareJobRetry moves a failed job back to pending with an incremented attempt counter.
// Fails closed: false if the job is not failed or attempts are exhausted.
func (db *DB) PrepareJobRetry(ctx context.Context, id string) (bool, error) {
	rows, err := db.pool.Exec(ctx, `UPDATE encoding_jobs SET status = $2, attempt = attempt + 1,
	error_code = NULL, error_message = NULL, error_details = NULL, progress = NULL, message = NULL, updated = $3
	WHERE id = $1 AND status = $4 AND attempt < max_attempts`, id, status.JobPending, time.Now(), status.JobFailed)
	if err != nil {
		return false, fmt.Errorf("can't prepare job retry: %w", err)
	}
	return rows.RowsAffected() == 1, nil
}

func (db *DB) updateJob(ctx context.Context, id, cmd string, args ...interface{}) error {
	all := append([]interface{}{id}, args...)
	rows, err := db.pool.Exec(ctx, cmd, all...)
	if err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update job, no record found")
	}
	return nil
}

// InsertChunks inserts a batch of transcript chunks in one statement
func (db *DB) InsertChunks(ctx context.Context, items []*persistence.Chunk) error {
	if len(items) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO transcript_chunks(id, media_id, module_id, chunk_index, content, token_count,
	start_time, end_time, segment_ids, confidence, language, created) VALUES`)
	args := make([]interface{}, 0, len(items)*12)
	for i, c := range items {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 12
		sb.WriteString("(")
		for j := 1; j <= 12; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
		args = append(args, c.ID, c.MediaID, c.ModuleID, c.ChunkIndex, c.Content, c.TokenCount,
			c.StartTime, c.EndTime, c.SegmentIDs, c.Confidence, c.Language, c.Created)
	}
	rows, err := db.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("can't insert chunks: %w", err)
	}
	defer rows.Close()
	return nil
}

// DeleteChunks removes all chunks of a media
func (db *DB) DeleteChunks(ctx context.Context, mediaID string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM transcript_chunks WHERE media_id = $1`, mediaID)
	if err != nil {
		return fmt.Errorf("can't delete chunks: %w", err)
	}
	return nil
}

// LoadChunksByIDs loads chunks content for retrieval hydration
func (db *DB) LoadChunksByIDs(ctx context.Context, ids []string) (map[string]*persistence.Chunk, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, media_id, module_id, chunk_index, content, token_count,
	start_time, end_time, segment_ids, confidence, language, created FROM transcript_chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("can't load chunks: %w", err)
	}
	defer rows.Close()
	res := map[string]*persistence.Chunk{}
	for rows.Next() {
		var c persistence.Chunk
		if err := rows.Scan(&c.ID, &c.MediaID, &c.ModuleID, &c.ChunkIndex, &c.Content, &c.TokenCount,
			&c.StartTime, &c.EndTime, &c.SegmentIDs, &c.Confidence, &c.Language, &c.Created); err != nil {
			return nil, fmt.Errorf("can't scan chunk: %w", err)
		}
		res[c.ID] = &c
	}
	return res, rows.Err()
}

// LockEmailTable marks email sending as started for ID and type
func (db *DB) LockEmailTable(ctx context.Context, id, informType string) error {
	rows, err := db.pool.Exec(ctx, `INSERT INTO email_lock(id, inform_type, status) VALUES($1, $2, 1)
	ON CONFLICT (id, inform_type) DO UPDATE SET status = 1 WHERE email_lock.status = 0`, id, informType)
	if err != nil {
		return fmt.Errorf("can't lock email table: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't lock email table, already sending")
	}
	return nil
}

// UnLockEmailTable releases or finalizes the email lock
func (db *DB) UnLockEmailTable(ctx context.Context, id, informType string, value *int) error {
	_, err := db.pool.Exec(ctx, `UPDATE email_lock SET status = $3 WHERE id = $1 AND inform_type = $2`,
		id, informType, *value)
	if err != nil {
		return fmt.Errorf("can't unlock email table: %w", err)
	}
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
