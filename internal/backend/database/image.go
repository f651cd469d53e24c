package database

import "time"

// GalleryImage is one entry of the shared gallery
type GalleryImage struct {
	ID         string    `json:"id"`
	Data       string    `json:"data"` // data URL, e.g. data:image/jpeg;base64,...
	Name       string    `json:"name"`
	UploadTime time.Time `json:"uploadTime"`
	Rank       string    `json:"-"` // LexoRank, sqlite backend only
}
