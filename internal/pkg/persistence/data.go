package persistence

import (
	"database/sql"
	"time"
)

type (

	// Media table
	Media struct {
		ID             string
		UserID         string
		ModuleID       string
		Title          string
		Email          sql.NullString
		RawPath        sql.NullString
		ThumbnailPath  sql.NullString
		AudioPath      sql.NullString
		TranscriptPath sql.NullString
		Width          sql.NullInt32
		Height         sql.NullInt32
		Duration       sql.NullFloat64
		Codec          sql.NullString
		Bitrate        sql.NullInt32
		FPS            sql.NullFloat64
		Status         string
		LastError      sql.NullString
		AIEnabled      bool
		Created        time.Time
		Updated        time.Time
	}

	// Variant table - one row per target quality tier
	Variant struct {
		ID           string
		MediaID      string
		Quality      string
		Width        int
		Height       int
		Bitrate      int
		AudioBitrate int
		FileSize     sql.NullInt64
		Path         sql.NullString
		Status       string
		Created      time.Time
		Updated      time.Time
	}

	// Job table - one row per dispatch to the encoding worker
	Job struct {
		ID           string
		MediaID      string
		JobType      string
		Status       string
		Attempt      int
		MaxAttempts  int
		Progress     sql.NullInt32
		Message      sql.NullString
		ErrorCode    sql.NullString
		ErrorMessage sql.NullString
		ErrorDetails sql.NullString
		ExternalID   sql.NullString
		Created      time.Time
		Updated      time.Time
	}

	// Chunk table - token budgeted transcript span
	Chunk struct {
		ID         string
		MediaID    string
		ModuleID   string
		ChunkIndex int
		Content    string
		TokenCount int
		StartTime  float64
		EndTime    float64
		SegmentIDs []int32
		Confidence float64
		Language   string
		Created    time.Time
	}
)

// Job types
const (
	JobTypeEncode    = "encode"
	JobTypeThumbnail = "thumbnail"
)
