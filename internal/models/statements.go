package models

import "time"

// Statement is the stored record of one extraction run. The three JSON
// sections are kept as loose maps: the upstream model owns their semantics
// and we do not validate beyond "parsed as JSON".
type Statement struct {
	ID             string         `json:"id" db:"id"`
	Filename       string         `json:"filename" db:"filename"`
	FileSize       int64          `json:"file_size" db:"file_size"`
	PageCount      int            `json:"page_count" db:"page_count"`
	S3Key          string         `json:"s3_key" db:"s3_key"`
	StatementInfo  map[string]any `json:"statement_info,omitempty"`
	AccountSummary map[string]any `json:"account_summary,omitempty"`
	Transactions   []any          `json:"transactions,omitempty"`
	UsageMetadata  map[string]any `json:"usage_metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	ExtractedAt    time.Time      `json:"extracted_at" db:"extracted_at"`
}

type UploadRequest struct {
	File     []byte
	Filename string
}

// ExtractionResponse is the success body: the recovered statement JSON plus
// record metadata for later retrieval.
type ExtractionResponse struct {
	ID             string         `json:"id"`
	Filename       string         `json:"filename"`
	PageCount      int            `json:"page_count"`
	StatementInfo  map[string]any `json:"statement_info"`
	AccountSummary map[string]any `json:"account_summary"`
	Transactions   []any          `json:"transactions"`
	ExtractedAt    time.Time      `json:"extracted_at"`
}
