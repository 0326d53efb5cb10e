package constants

// FileStatus is the canonical per-file state as a file moves through a batch.
type FileStatus string

// Stable values (exposed verbatim over the API).
const (
	StatusUploading  FileStatus = "uploading"  // stored, not yet picked up
	StatusProcessing FileStatus = "processing" // extraction in flight
	StatusDone       FileStatus = "done"       // terminal success
	StatusError      FileStatus = "error"      // terminal failure
)

// Completeness is the model-reported coverage of required line items.
type Completeness string

const (
	CompletenessComplete Completeness = "complete"
	CompletenessPartial  Completeness = "partial"
	CompletenessNotFound Completeness = "not_found"
)
