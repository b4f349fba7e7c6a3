package download

import "github.com/abduss/sharefiles/internal/metadata"

// EntryInfo is the public description of an entry and its files.
type EntryInfo struct {
	Entry metadata.Entry  `json:"entry"`
	Files []metadata.File `json:"files"`
}

// Options shapes the produced archive.
type Options struct {
	// ArchiveName is the download file name without the .zip suffix.
	ArchiveName string
	// CompressionLevel follows compress/flate: -1 default, 0 store, 1..9.
	CompressionLevel int
}
