package upload

// EntryRequest declares a new upload batch.
type EntryRequest struct {
	Length     *int   `json:"length" binding:"required,gte=0"`
	DeleteDate string `json:"deleteDate" binding:"required"`
}

// ChunkRequest carries one base64 chunk of a file. ID is absent on the first chunk.
type ChunkRequest struct {
	ID       string  `json:"id"`
	EntryID  string  `json:"entryId" binding:"required"`
	Name     string  `json:"name" binding:"required"`
	Size     *int64  `json:"size" binding:"required,gte=0"`
	Chunk    *string `json:"chunk" binding:"required"`
	ChunkInd *int    `json:"chunkInd" binding:"required,gte=0"`
}

// IDResponse is returned by both request shapes.
type IDResponse struct {
	ID string `json:"id"`
}

// Chunk is a decoded-on-demand view of a ChunkRequest.
type Chunk struct {
	FileID  string
	EntryID string
	Name    string
	Size    int64
	Payload string
	Index   int
}

func (r ChunkRequest) toChunk() Chunk {
	return Chunk{
		FileID:  r.ID,
		EntryID: r.EntryID,
		Name:    r.Name,
		Size:    *r.Size,
		Payload: *r.Chunk,
		Index:   *r.ChunkInd,
	}
}
