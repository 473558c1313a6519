// Package document defines the content model shared by ingestion, storage and
// retrieval: source kinds, curriculum metadata and the denormalized per-chunk
// metadata written to the vector store.
package document

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind classifies an ingestible source by how its text is extracted.
type Kind string

const (
	KindVideo Kind = "video"
	KindPDF   Kind = "pdf"
	KindDocx  Kind = "docx"
)

// String returns the wire form of the kind.
func (k Kind) String() string { return string(k) }

// Valid reports whether k is a known source kind.
func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindPDF, KindDocx:
		return true
	}
	return false
}

// KindFromFilename infers the source kind from a filename extension.
// Video container formats map to KindVideo; unknown extensions return
// false so the caller can reject the upload.
func KindFromFilename(name string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF, true
	case ".docx":
		return KindDocx, true
	case ".mp4", ".mkv", ".webm", ".mov", ".avi", ".m4v", ".mp3", ".m4a", ".wav":
		return KindVideo, true
	}
	return "", false
}

// Metadata is the curriculum context attached to a source at upload time.
// All fields are optional; absent values are stored as empty strings so every
// chunk carries the full key set.
type Metadata struct {
	FileType  string
	Filename  string
	VideoID   string
	Subject   string
	SubjectID string
	Chapter   string
	ChapterID string
	Part      string
	UserID    string
}

// Metadata keys as stored per chunk. Values are always strings and every key
// is always present, which keeps store-side filters simple.
const (
	KeyFileType    = "file_type"
	KeyFilename    = "filename"
	KeyVideoID     = "video_id"
	KeySubject     = "subject"
	KeySubjectID   = "subject_id"
	KeyChapter     = "chapter"
	KeyChapterID   = "chapter_id"
	KeyPart        = "part"
	KeyUserID      = "user_id"
	KeySourceID    = "source_id"
	KeyChunkIndex  = "chunk_index"
	KeyTotalChunks = "total_chunks"
)

// ChunkMetadata denormalizes the source metadata onto a single chunk,
// adding its position within the source. Every chunk of a source repeats
// the full metadata so retrieval never needs a join.
func ChunkMetadata(sourceID string, meta Metadata, index, total int) map[string]string {
	return map[string]string{
		KeyFileType:    meta.FileType,
		KeyFilename:    meta.Filename,
		KeyVideoID:     meta.VideoID,
		KeySubject:     meta.Subject,
		KeySubjectID:   meta.SubjectID,
		KeyChapter:     meta.Chapter,
		KeyChapterID:   meta.ChapterID,
		KeyPart:        meta.Part,
		KeyUserID:      meta.UserID,
		KeySourceID:    sourceID,
		KeyChunkIndex:  strconv.Itoa(index),
		KeyTotalChunks: strconv.Itoa(total),
	}
}

// ChunkID derives the stable chunk identifier from its source and position.
func ChunkID(sourceID string, index int) string {
	return fmt.Sprintf("%s_%d", sourceID, index)
}

// Chunk is one indexed passage with its denormalized metadata.
type Chunk struct {
	ID       string
	Text     string
	Metadata map[string]string
}
