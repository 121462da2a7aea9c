// Package storage stages uploaded resource files into per-group directories.
package storage

import (
	"path/filepath"
	"strings"

	"studyhub/internal/models"
)

var extensionTypes = map[string]models.FileType{
	"pdf":  models.FileTypePDF,
	"doc":  models.FileTypeDoc,
	"docx": models.FileTypeDoc,
	"xls":  models.FileTypeExcel,
	"xlsx": models.FileTypeExcel,
	"ppt":  models.FileTypePPT,
	"pptx": models.FileTypePPT,
	"jpg":  models.FileTypeImage,
	"jpeg": models.FileTypeImage,
	"png":  models.FileTypeImage,
	"gif":  models.FileTypeImage,
	"bmp":  models.FileTypeImage,
	"webp": models.FileTypeImage,
	"svg":  models.FileTypeImage,
	"mp4":  models.FileTypeVideo,
	"avi":  models.FileTypeVideo,
	"mov":  models.FileTypeVideo,
	"wmv":  models.FileTypeVideo,
	"flv":  models.FileTypeVideo,
	"mkv":  models.FileTypeVideo,
	"webm": models.FileTypeVideo,
	"mp3":  models.FileTypeAudio,
	"wav":  models.FileTypeAudio,
	"ogg":  models.FileTypeAudio,
	"flac": models.FileTypeAudio,
	"aac":  models.FileTypeAudio,
	"m4a":  models.FileTypeAudio,
	"txt":  models.FileTypeText,
}

// ClassifyFileType maps a file name onto a FileType by its extension,
// ignoring case. Unknown or missing extensions are FileTypeOther.
func ClassifyFileType(name string) models.FileType {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return models.FileTypeOther
}
