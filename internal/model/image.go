package model

import "time"

// Image is metadata for an uploaded proof of payment. The bytes live in blob storage.
type Image struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	TenantName string    `json:"tenant_name"`
	ImageURL   string    `json:"image_url"`
	FileName   string    `json:"file_name"`
	FileSize   Number    `json:"file_size"`
	FileType   string    `json:"file_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}
