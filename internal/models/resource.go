package models

import (
	"time"

	"github.com/google/uuid"
)

// FileType is the coarse classification of an uploaded resource.
type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeDoc   FileType = "doc"
	FileTypeExcel FileType = "excel"
	FileTypePPT   FileType = "ppt"
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
	FileTypeAudio FileType = "audio"
	FileTypeText  FileType = "text"
	FileTypeOther FileType = "other"
)

// ResourceStatus tracks moderation of an uploaded resource.
type ResourceStatus string

const (
	ResourceStatusPending  ResourceStatus = "pending"
	ResourceStatusApproved ResourceStatus = "approved"
	ResourceStatusRejected ResourceStatus = "rejected"
)

// Resource is a file attached to a group. A row exists only for a file that
// was staged into the group's resource directory.
type Resource struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	GroupID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"group_id"`
	FilePath     string         `gorm:"not null;uniqueIndex" json:"file_path"`
	OriginalName string         `gorm:"not null" json:"original_name"`
	FileType     FileType       `gorm:"type:varchar(20);not null" json:"file_type"`
	UploaderID   uint           `gorm:"not null;index" json:"uploader_id"`
	Status       ResourceStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
