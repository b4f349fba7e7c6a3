package metadata

import "time"

// Entry is one upload batch, the unit a share link addresses.
type Entry struct {
	ID         string    `json:"id"`
	Length     int       `json:"length"`
	UploadDate time.Time `json:"uploadDate"`
	DeleteDate time.Time `json:"deleteDate"`
}

// File describes one uploaded file belonging to an entry.
type File struct {
	ID      string `json:"id"`
	EntryID string `json:"entryId"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
}
