// Package ingestion defines the request and response types of the corpus
// ingestion service, which writes documents into the table the indexer's
// postgres corpus source reads.
package ingestion

// Document statuses reported per stored document.
const (
	StatusCreated = "created"
	StatusExists  = "exists"
)

// IngestRequest is one document.
type IngestRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// BatchRequest is the body of the batch endpoint.
type BatchRequest struct {
	Documents []IngestRequest `json:"documents"`
}

// IngestResponse reports what happened to one document.
type IngestResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// BatchResponse summarises a batch write.
type BatchResponse struct {
	Created  int              `json:"created"`
	Existing int              `json:"existing"`
	Results  []IngestResponse `json:"results"`
}
