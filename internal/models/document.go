package models

// Document is a vault file's metadata. EncryptedFileURL points into blob
// storage and is never returned to clients.
type Document struct {
	Base
	UserID           string `gorm:"type:uuid;not null;index"`
	Title            string `gorm:"not null"`
	FileType         string `gorm:"not null;default:''"`
	Category         string `gorm:"not null;index"`
	EncryptedFileURL string `gorm:"column:encrypted_file_url;not null"`
}
