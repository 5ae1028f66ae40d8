// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package imageproc validates, deduplicates and compresses candidate report
// images before upload, and manages their local preview files.
package imageproc

import (
	"fmt"
	"strings"

	"github.com/StepanNazar/city-report/internal/logger"
)

const (
	// DefaultMaxCount is the maximum number of images per report.
	DefaultMaxCount = 10
	// DefaultSizeLimitMB is the per-image size limit in mebibytes.
	DefaultSizeLimitMB = 5
	// DefaultMaxDimension is the longest allowed edge in pixels after
	// compression.
	DefaultMaxDimension = 2048

	initialJPEGQuality = 90
	minJPEGQuality     = 30
	jpegQualityStep    = 10
)

// File is an in-memory candidate image.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Processor validates and compresses image files.
type Processor struct {
	sizeLimit    int64
	maxDimension int
	previewDir   string
	logger       *logger.Logger
}

// New returns a Processor with the given per-image size limit in mebibytes,
// maximum pixel dimension and preview directory. Zero values fall back to the
// package defaults.
func New(sizeLimitMB, maxDimension int, previewDir string, log *logger.Logger) *Processor {
	if sizeLimitMB <= 0 {
		sizeLimitMB = DefaultSizeLimitMB
	}
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Processor{
		sizeLimit:    int64(sizeLimitMB) << 20,
		maxDimension: maxDimension,
		previewDir:   previewDir,
		logger:       log,
	}
}

// Validate filters files down to the ones that may be attached. A file is
// rejected when it is not an image or when accepting it would exceed the
// attachment capacity. One error string per rejected file, in input order.
func (p *Processor) Validate(files []File, maxCount, currentCount int) ([]File, []string) {
	valid := make([]File, 0, len(files))
	var errs []string
	for _, file := range files {
		switch {
		case !strings.HasPrefix(file.MIME, "image/"):
			errs = append(errs, fmt.Sprintf("%s: not an image", file.Name))
		case currentCount+len(valid) >= maxCount:
			errs = append(errs, fmt.Sprintf("%s: attachment limit of %d reached", file.Name, maxCount))
		default:
			valid = append(valid, file)
		}
	}
	return valid, errs
}

// FilterDuplicates drops files whose name exactly matches one of the existing
// names or an earlier file of the same batch. Name comparison is
// case-sensitive.
func (p *Processor) FilterDuplicates(files []File, existingNames []string) ([]File, bool) {
	seen := make(map[string]struct{}, len(existingNames)+len(files))
	for _, name := range existingNames {
		seen[name] = struct{}{}
	}

	unique := make([]File, 0, len(files))
	hadDuplicates := false
	for _, file := range files {
		if _, ok := seen[file.Name]; ok {
			hadDuplicates = true
			continue
		}
		seen[file.Name] = struct{}{}
		unique = append(unique, file)
	}
	return unique, hadDuplicates
}
