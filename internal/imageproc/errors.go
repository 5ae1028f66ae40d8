// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package imageproc

import "fmt"

// ProcessingError reports that a single file could not be compressed or
// previewed. Callers surface it per file and keep the rest of the batch
// going.
type ProcessingError struct {
	Name string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing %s: %s", e.Name, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
