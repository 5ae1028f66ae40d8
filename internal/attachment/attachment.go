// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package attachment owns the ordered list of report images and drives each
// image through preview, compression and upload.
package attachment

import (
	"github.com/StepanNazar/city-report/internal/imageproc"
)

// Status is the lifecycle state of a single attachment.
type Status int

const (
	// StatusPending means the file is accepted and waiting for compression.
	StatusPending Status = iota
	// StatusUploading means an upload session is in flight.
	StatusUploading
	// StatusCommitted means the backend stored the image.
	StatusCommitted
	// StatusFailed means compression or upload failed for this file.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusUploading:
		return "uploading"
	case StatusCommitted:
		return "committed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Attachment is one entry of the ordered list. RemoteID is non-empty exactly
// when Status is StatusCommitted.
type Attachment struct {
	LocalID    string
	Name       string
	MIME       string
	PreviewURL string
	RemoteID   string
	Status     Status
	Error      string

	// seeded marks an entry created from an already-stored image. Seeded
	// entries carry no local source file and take no part in duplicate
	// filtering.
	seeded bool
}

// Existing seeds the list with an already-stored image when editing a
// report. Its URL is remote and is never revoked, and its name does not count
// for duplicate filtering of newly added files.
type Existing struct {
	RemoteID string
	Name     string
	URL      string
}

// AddResult reports the outcome of one AddFiles batch.
type AddResult struct {
	Added             int
	Errors            []string
	SkippedDuplicates bool
}

// Processor is the image-processing surface the controller depends on.
// Implemented by imageproc.Processor.
type Processor interface {
	Validate(files []imageproc.File, maxCount, currentCount int) ([]imageproc.File, []string)
	FilterDuplicates(files []imageproc.File, existingNames []string) ([]imageproc.File, bool)
	Compress(file imageproc.File) (imageproc.File, error)
	CreatePreview(file imageproc.File) (string, error)
	RevokePreview(url string)
}
