// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package place

import "fmt"

// NoResultError indicates that the provider returned zero features for the
// given coordinates. It is distinct from ProviderError: the caller should ask
// the user for a manual place search instead of retrying.
type NoResultError struct {
	Coords Coordinates
}

func (e *NoResultError) Error() string {
	return fmt.Sprintf("no place found at %f/%f", e.Coords.Latitude, e.Coords.Longitude)
}

// ProviderError indicates a transport or parse failure in the upstream
// provider. The operation is retryable.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %s", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
