package protocol

import (
	"errors"
	"fmt"
)

// Fatal run errors.
var (
	ErrWorldNotFound = errors.New("world not found")
	ErrSaveOpen      = errors.New("save could not be opened")
)

// Warning codes. Every warning is recovered locally and counted in the report.
const (
	WarnCorruptRecord   = "W_CORRUPT_RECORD"
	WarnUnreadableChunk = "W_UNREADABLE_CHUNK"
	WarnPixelConflict   = "W_PIXEL_CONFLICT"
	WarnWriteFailure    = "W_WRITE_FAILURE"
	WarnRecordKept      = "W_RECORD_KEPT"
)

var knownCodes = map[string]struct{}{
	WarnCorruptRecord:   {},
	WarnUnreadableChunk: {},
	WarnPixelConflict:   {},
	WarnWriteFailure:    {},
	WarnRecordKept:      {},
}

func IsKnownCode(code string) bool {
	_, ok := knownCodes[code]
	return ok
}

// Warning is one non-fatal problem found during a run.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	MapID   *int   `json:"map_id,omitempty"`
	Path    string `json:"path,omitempty"`
}

func Warnf(code, path string, format string, args ...any) Warning {
	return Warning{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

func MapWarnf(code string, mapID int, path string, format string, args ...any) Warning {
	w := Warnf(code, path, format, args...)
	w.MapID = &mapID
	return w
}

func (w Warning) String() string {
	if w.Path != "" {
		return fmt.Sprintf("%s %s: %s", w.Code, w.Path, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// WarningCounts tallies warnings per code.
type WarningCounts struct {
	CorruptRecords   int `json:"corrupt_records"`
	UnreadableChunks int `json:"unreadable_chunks"`
	PixelConflicts   int `json:"pixel_conflicts"`
	WriteFailures    int `json:"write_failures"`
	RecordsKept      int `json:"records_kept"`
}

func (c *WarningCounts) Add(ws ...Warning) {
	for _, w := range ws {
		switch w.Code {
		case WarnCorruptRecord:
			c.CorruptRecords++
		case WarnUnreadableChunk:
			c.UnreadableChunks++
		case WarnPixelConflict:
			c.PixelConflicts++
		case WarnWriteFailure:
			c.WriteFailures++
		case WarnRecordKept:
			c.RecordsKept++
		}
	}
}

func (c WarningCounts) Total() int {
	return c.CorruptRecords + c.UnreadableChunks + c.PixelConflicts + c.WriteFailures + c.RecordsKept
}
