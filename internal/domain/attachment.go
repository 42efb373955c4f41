package domain

import "time"

// Attachment stores metadata for a file attached to a ticket. Uploads are not supported yet;
// the shape is persisted so stored documents keep it.
type Attachment struct {
	FileName   string    `json:"fileName"`
	FilePath   string    `json:"filePath"`
	FileType   string    `json:"fileType"`
	UploadedAt time.Time `json:"uploadedAt"`
}
