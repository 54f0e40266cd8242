package rag

import (
	"fmt"
	"time"

	"research-agent/internal/vectorstore"
)

// Payload keys stored with every chunk vector.
const (
	MetaText           = "text"
	MetaSourceDocument = "source_document"
	MetaSourceType     = "source_type"
	MetaPageNumber     = "page_number"
	MetaSequenceIndex  = "sequence_index"
	MetaPublishedUnix  = "published_unix"
)

// Chunk is an immutable text fragment of a source document.
type Chunk struct {
	// ID is unique within the store, e.g. "report_march.pdf_page22_chunk0".
	ID string
	// Text is the normalized fragment content.
	Text string
	// SourceDocument is the report path relative to the reports directory, e.g. "report_march.pdf".
	SourceDocument string
	// PageNumber is 1-based.
	PageNumber int
	// SequenceIndex is strictly increasing within one SourceDocument.
	SequenceIndex int
	// SourceType classifies the report, e.g. "ubs_house_view" or "sec_10k".
	SourceType string
	// PublishedAt is zero when the publication date is unknown.
	PublishedAt time.Time
}

// Point converts the chunk and its embedding into a vector index point.
func (c Chunk) Point(vec []float32) vectorstore.Point {
	meta := map[string]any{
		MetaText:           c.Text,
		MetaSourceDocument: c.SourceDocument,
		MetaSourceType:     c.SourceType,
		MetaPageNumber:     c.PageNumber,
		MetaSequenceIndex:  c.SequenceIndex,
	}
	if !c.PublishedAt.IsZero() {
		meta[MetaPublishedUnix] = c.PublishedAt.Unix()
	}
	return vectorstore.Point{ID: c.ID, Vec: vec, Meta: meta}
}

// Result is one retrieved chunk. Lower Distance means more similar.
type Result struct {
	ChunkID        string  `json:"chunk_id"`
	Text           string  `json:"text"`
	SourceDocument string  `json:"source_document"`
	SourceType     string  `json:"source_type,omitempty"`
	PageNumber     int     `json:"page_number"`
	SequenceIndex  int     `json:"sequence_index"`
	Distance       float64 `json:"distance"`
}

// Relevance is 1 - Distance, the cosine similarity shown to users.
func (r Result) Relevance() float64 {
	return 1 - r.Distance
}

func resultFromHit(hit vectorstore.SearchResult, distance float64) Result {
	text, _ := hit.Meta[MetaText].(string)
	doc, _ := hit.Meta[MetaSourceDocument].(string)
	sourceType, _ := hit.Meta[MetaSourceType].(string)
	return Result{
		ChunkID:        hit.PointID,
		Text:           text,
		SourceDocument: doc,
		SourceType:     sourceType,
		PageNumber:     metaInt(hit.Meta, MetaPageNumber),
		SequenceIndex:  metaInt(hit.Meta, MetaSequenceIndex),
		Distance:       distance,
	}
}

// metaInt reads an integer payload field; backends return int, int64 or float64.
func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// DateRange bounds the publication date. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Filters narrow retrieval. They are pushed down to the vector index query.
type Filters struct {
	SourceDocument string
	SourceType     string
	Published      *DateRange
}

// Validate reports ErrInvalidFilter for filters the vector index cannot express.
func (f Filters) Validate() error {
	_, err := f.vectorFilter()
	return err
}

func (f Filters) vectorFilter() (vectorstore.Filter, error) {
	var vf vectorstore.Filter
	match := map[string]any{}
	if f.SourceDocument != "" {
		match[MetaSourceDocument] = f.SourceDocument
	}
	if f.SourceType != "" {
		match[MetaSourceType] = f.SourceType
	}
	if len(match) > 0 {
		vf.Match = match
	}

	if f.Published != nil {
		from, to := f.Published.From, f.Published.To
		if !from.IsZero() && !to.IsZero() && from.After(to) {
			return vectorstore.Filter{}, fmt.Errorf("%w: date range starts after it ends", ErrInvalidFilter)
		}
		r := vectorstore.Range{Key: MetaPublishedUnix}
		if !from.IsZero() {
			v := float64(from.Unix())
			r.Gte = &v
		}
		if !to.IsZero() {
			v := float64(to.Unix())
			r.Lte = &v
		}
		if r.Gte != nil || r.Lte != nil {
			vf.Ranges = []vectorstore.Range{r}
		}
	}
	return vf, nil
}
