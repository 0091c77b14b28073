package entity

import "time"

// BatchUpload binds a PayBatch upload id to the lines that were confirmed under it.
type BatchUpload struct {
	ID uint64

	UploadID  string
	LinesJSON string

	// JSON array of the transaction ids already applied to orders. Empty until a query run
	// fails partway through the results.
	AppliedJSON string

	CreatedAt time.Time
}
