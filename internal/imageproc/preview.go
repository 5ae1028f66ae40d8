// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package imageproc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const previewScheme = "file://"

// CreatePreview writes the file's bytes into the preview directory and
// returns a file:// URL for the host UI to render.
func (p *Processor) CreatePreview(file File) (string, error) {
	if err := os.MkdirAll(p.previewDir, 0o755); err != nil {
		return "", &ProcessingError{Name: file.Name,
			Err: fmt.Errorf("failed to create preview directory: %w", err)}
	}

	preview, err := os.CreateTemp(p.previewDir, "preview-*"+filepath.Ext(file.Name))
	if err != nil {
		return "", &ProcessingError{Name: file.Name,
			Err: fmt.Errorf("failed to create preview file: %w", err)}
	}
	if _, err = preview.Write(file.Data); err != nil {
		_ = preview.Close()
		_ = os.Remove(preview.Name())
		return "", &ProcessingError{Name: file.Name,
			Err: fmt.Errorf("failed to write preview file: %w", err)}
	}
	if err = preview.Close(); err != nil {
		_ = os.Remove(preview.Name())
		return "", &ProcessingError{Name: file.Name,
			Err: fmt.Errorf("failed to close preview file: %w", err)}
	}
	return previewScheme + preview.Name(), nil
}

// RevokePreview removes the file backing a preview URL. It is idempotent and
// ignores URLs that do not point into the preview directory, so remote URLs
// of already-stored images are never touched.
func (p *Processor) RevokePreview(url string) {
	if !strings.HasPrefix(url, previewScheme) {
		return
	}
	path := filepath.Clean(strings.TrimPrefix(url, previewScheme))
	if filepath.Dir(path) != filepath.Clean(p.previewDir) {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove preview file", "path", path, "error", err)
	}
}
