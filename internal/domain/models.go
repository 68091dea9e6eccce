package domain

import (
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	// ErrorMarker fills the barcode type of records describing a failure.
	ErrorMarker = "ERROR"

	// ErrorPage is how the page of a whole-file failure is rendered.
	ErrorPage = "ERROR"

	StatusSuccess = "SUCCESS"
	StatusFailure = "PROCESSING FAILURE"

	// MaxMessageLength is the longest error text stored in a record; a
	// spreadsheet cell holds at most 32767 characters.
	MaxMessageLength = 32767

	truncatedSuffix = " ... [truncated]"
)

// Source is one PDF handed to the pipeline
type Source struct {
	Name string // Display name, e.g. the original upload file name
	Path string // Location on disk
}

// PageImage represents a single rasterized PDF page
type PageImage struct {
	PageNumber int
	ImagePath  string // Path to the JPEG inside the scratch directory
}

// Barcode is one symbol reported by the decoder
type Barcode struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// RecordKind tells what a BarcodeRecord stands for
type RecordKind string

const (
	RecordBarcode   RecordKind = "barcode"
	RecordNoBarcode RecordKind = "no_barcode"
	RecordPageError RecordKind = "page_error"
	RecordFileError RecordKind = "file_error"
)

// BarcodeRecord is one row of output
type BarcodeRecord struct {
	SourceFile string     `json:"source_file"`
	SourcePath string     `json:"source_path"`
	Page       int        `json:"page"` // 0 for whole-file errors
	Type       string     `json:"type"`
	Data       string     `json:"data"`
	Kind       RecordKind `json:"kind"`
}

// NewBarcodeRecord creates a record for a decoded barcode
func NewBarcodeRecord(src Source, page int, bc Barcode) BarcodeRecord {
	return BarcodeRecord{
		SourceFile: src.Name,
		SourcePath: src.Path,
		Page:       page,
		Type:       bc.Type,
		Data:       bc.Data,
		Kind:       RecordBarcode,
	}
}

// NewNoBarcodeRecord creates the placeholder for a page without barcodes
func NewNoBarcodeRecord(src Source, page int) BarcodeRecord {
	return BarcodeRecord{
		SourceFile: src.Name,
		SourcePath: src.Path,
		Page:       page,
		Kind:       RecordNoBarcode,
	}
}

// NewPageErrorRecord creates the record for a page that could not be decoded
func NewPageErrorRecord(src Source, page int, err error) BarcodeRecord {
	return BarcodeRecord{
		SourceFile: src.Name,
		SourcePath: src.Path,
		Page:       page,
		Type:       ErrorMarker,
		Data:       errorText(err),
		Kind:       RecordPageError,
	}
}

// NewFileErrorRecord creates the single record for a file that failed as a whole
func NewFileErrorRecord(src Source, err error) BarcodeRecord {
	return BarcodeRecord{
		SourceFile: src.Name,
		SourcePath: src.Path,
		Type:       ErrorMarker,
		Data:       errorText(err),
		Kind:       RecordFileError,
	}
}

// errorText renders err for a record, cut to MaxMessageLength characters.
func errorText(err error) string {
	msg := err.Error()
	if utf8.RuneCountInString(msg) <= MaxMessageLength {
		return msg
	}
	keep := MaxMessageLength - utf8.RuneCountInString(truncatedSuffix)
	runes := 0
	for i := range msg {
		if runes == keep {
			return msg[:i] + truncatedSuffix
		}
		runes++
	}
	return msg
}

// PageLabel renders the page column value.
func (r BarcodeRecord) PageLabel() string {
	if r.Kind == RecordFileError {
		return ErrorPage
	}
	return strconv.Itoa(r.Page)
}

// IsFailure reports whether the record describes a processing failure.
func (r BarcodeRecord) IsFailure() bool {
	return r.Type == ErrorMarker
}

// Status is SUCCESS unless the record carries the error marker.
func (r BarcodeRecord) Status() string {
	if r.IsFailure() {
		return StatusFailure
	}
	return StatusSuccess
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart          EventType = "start"
	EventFileProcessing EventType = "file_processing"
	EventPageProcessing EventType = "page_processing"
	EventFileComplete   EventType = "file_complete"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type       EventType   `json:"type"`
	FileIndex  int         `json:"file_index,omitempty"` // 1-based
	FileCount  int         `json:"file_count,omitempty"`
	FileName   string      `json:"file_name,omitempty"`
	PageNumber int         `json:"page_number,omitempty"`
	Payload    interface{} `json:"payload,omitempty"` // Status message or error
	Timestamp  time.Time   `json:"timestamp"`
}

// RunStats contains counters about one pipeline run
type RunStats struct {
	Files    int
	Pages    int
	Barcodes int
	Failures int
}

// RunResult is the ordered output of one pipeline run
type RunResult struct {
	RunID     string
	Records   []BarcodeRecord
	Stats     RunStats
	StartedAt time.Time
	Duration  time.Duration
}
