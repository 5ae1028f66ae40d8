// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"

	"github.com/StepanNazar/city-report/internal/attachment"
	"github.com/StepanNazar/city-report/internal/place"
)

// Offer feeds a coordinate event, such as a map interaction, into the
// resolution pipeline.
func (s *Service) Offer(coords place.Coordinates) {
	s.pipeline.Offer(coords)
}

// SearchPlaces queries the place provider for settlements matching the given
// criteria.
func (s *Service) SearchPlaces(ctx context.Context, country, state, locality string) ([]place.Candidate, error) {
	return s.resolver.Search(ctx, country, state, locality)
}

// SelectPlace records a manual place choice. A manual choice always wins over
// the reverse-geocoded place and is only displaced by another selection or
// ClearSelection. The candidate's coordinates are offered to the pipeline so
// the map recenters with it.
func (s *Service) SelectPlace(candidate place.Candidate) {
	s.placeLock.Lock()
	s.manual = &candidate
	s.placeLock.Unlock()
	s.pipeline.Offer(place.Coordinates{Latitude: candidate.Latitude, Longitude: candidate.Longitude})
}

// ClearSelection drops the manual choice, falling back to the
// reverse-geocoded place.
func (s *Service) ClearSelection() {
	s.placeLock.Lock()
	s.manual = nil
	s.placeLock.Unlock()
}

// CurrentPlace returns the place a new report would be filed under: the
// manual selection when one exists, the reverse-geocoded place otherwise.
func (s *Service) CurrentPlace() (id, provider string, ok bool) {
	s.placeLock.RLock()
	defer s.placeLock.RUnlock()
	if s.manual != nil {
		return s.manual.ID, s.resolver.Name(), true
	}
	if s.resolved.Result != nil {
		return s.resolved.Result.ID, s.resolved.Provider, true
	}
	return "", "", false
}

// ResolvedState returns the pipeline's latest snapshot for UI display.
func (s *Service) ResolvedState() place.State {
	s.placeLock.RLock()
	defer s.placeLock.RUnlock()
	return s.resolved
}

// NewAttachmentList hands the host form a wired attachment controller,
// seeded with the given already-stored images.
func (s *Service) NewAttachmentList(existing []attachment.Existing) *attachment.Controller {
	return attachment.NewController(s.processor, s.uploads, s.config.Images.MaxCount,
		s.logger, existing)
}
