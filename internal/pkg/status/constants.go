package status

// Status represents media processing status
type Status int

const (
	// Pending - media record created, upload not started
	Pending Status = iota + 1
	// Uploading - source upload in progress
	Uploading
	// Encoding - dispatched to the encoding worker
	Encoding
	// Transcribing - audio sent to the transcription model
	Transcribing
	// Indexing - transcript chunks are being embedded and stored
	Indexing
	// Ready - final step
	Ready
	// Error - encoding failed
	Error
	// FailedTranscription - transcription stage failed
	FailedTranscription
	// FailedIndexing - indexing stage failed
	FailedIndexing
)

var (
	statusName = map[Status]string{Pending: "pending", Uploading: "uploading", Encoding: "encoding",
		Transcribing: "transcribing", Indexing: "indexing", Ready: "ready", Error: "error",
		FailedTranscription: "failed_transcription", FailedIndexing: "failed_indexing"}
	nameStatus = map[string]Status{"pending": Pending, "uploading": Uploading, "encoding": Encoding,
		"transcribing": Transcribing, "indexing": Indexing, "ready": Ready, "error": Error,
		"failed_transcription": FailedTranscription, "failed_indexing": FailedIndexing}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// IsTerminal indicates the status stops automatic progression
func IsTerminal(st Status) bool {
	return st == Ready || st == Error || st == FailedTranscription || st == FailedIndexing
}

// Variant statuses
const (
	VariantPending  = "pending"
	VariantEncoding = "encoding"
	VariantReady    = "ready"
	VariantError    = "error"
	VariantSkipped  = "skipped"
)

// Encoding job statuses
const (
	JobPending    = "pending"
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCancelled  = "cancelled"
)
