// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package service wires configuration, geocoding, coordinate sources, image
// processing and uploads into one running client core.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/text/language"

	"github.com/StepanNazar/city-report/internal/auth"
	"github.com/StepanNazar/city-report/internal/config"
	"github.com/StepanNazar/city-report/internal/http"
	"github.com/StepanNazar/city-report/internal/imageproc"
	"github.com/StepanNazar/city-report/internal/locate"
	"github.com/StepanNazar/city-report/internal/locate/provider/account"
	"github.com/StepanNazar/city-report/internal/locate/provider/fallback"
	"github.com/StepanNazar/city-report/internal/logger"
	"github.com/StepanNazar/city-report/internal/place"
	"github.com/StepanNazar/city-report/internal/place/provider/nominatim"
	"github.com/StepanNazar/city-report/internal/place/provider/opencage"
	"github.com/StepanNazar/city-report/internal/upload"
)

type Service struct {
	config     *config.Config
	logger     *logger.Logger
	httpClient *http.Client
	tokens     *auth.Store
	resolver   *place.CachedResolver
	pipeline   *place.Pipeline
	bus        *locate.Bus
	uploads    *upload.Client
	processor  *imageproc.Processor
	scheduler  gocron.Scheduler

	placeLock sync.RWMutex
	manual    *place.Candidate
	resolved  place.State
}

func New(conf *config.Config, log *logger.Logger) (*Service, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	tokens, err := auth.NewStore(conf.Auth.TokenFile, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load token store: %w", err)
	}

	httpClient := http.New(log)
	resolver, err := createResolver(conf, httpClient)
	if err != nil {
		return nil, err
	}
	cached := place.NewCachedResolver(resolver, conf.Place.CacheHitTTL, conf.Place.CacheMissTTL)

	service := &Service{
		config:     conf,
		logger:     log,
		httpClient: httpClient,
		tokens:     tokens,
		resolver:   cached,
		pipeline:   place.NewPipeline(cached, conf.Place.Debounce, log),
		bus:        locate.NewBus(log),
		uploads:    upload.NewClient(httpClient, conf.API.BaseURL, tokens, log),
		processor: imageproc.New(conf.Images.SizeLimitMB, conf.Images.MaxDimension,
			conf.Images.PreviewDir, log),
		scheduler: scheduler,
	}
	return service, nil
}

func createResolver(conf *config.Config, httpClient *http.Client) (place.Resolver, error) {
	lang, err := language.Parse(conf.Locale)
	if err != nil {
		lang = language.English
	}
	switch conf.Place.Provider {
	case "nominatim":
		return nominatim.New(httpClient, lang), nil
	case "opencage":
		return opencage.New(httpClient, lang, conf.Place.OpenCageAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown place provider: %s", conf.Place.Provider)
	}
}

// Run starts the scheduled jobs and coordinate sources and blocks until ctx
// is done, then tears everything down.
func (s *Service) Run(ctx context.Context) error {
	if err := s.createScheduledJob(ctx, s.config.Auth.RefreshInterval, s.refreshToken,
		"token_refresh_job"); err != nil {
		return err
	}
	if err := s.createScheduledJob(ctx, s.config.Place.SweepInterval, s.sweepPlaceCache,
		"place_cache_sweep_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	orchestrator := s.createOrchestrator()
	fixes, unsub := s.bus.Subscribe(32)
	go s.processFixes(ctx, fixes)
	go s.processPlaceUpdates(ctx)
	go orchestrator.Run(ctx)

	<-ctx.Done()
	unsub()
	s.pipeline.Close()
	return s.scheduler.Shutdown()
}

func (s *Service) createOrchestrator() *locate.Orchestrator {
	var providers []locate.Provider

	if !s.config.Location.DisableAccount {
		provider, err := account.New(s.httpClient, s.config.API.BaseURL, s.tokens,
			s.config.Location.PollInterval)
		if err != nil {
			s.logger.Error("failed to create account coordinate provider", logger.Err(err))
		} else {
			providers = append(providers, provider)
		}
	}

	if !s.config.Location.DisableFallback {
		providers = append(providers, fallback.New(place.Coordinates{
			Latitude:  s.config.Location.FallbackLat,
			Longitude: s.config.Location.FallbackLon,
		}))
	}

	return s.bus.NewOrchestrator(providers)
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration,
	task func(context.Context), jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

func (s *Service) refreshToken(ctx context.Context) {
	if err := s.tokens.Refresh(ctx, s.httpClient, s.config.API.BaseURL); err != nil {
		s.logger.Warn("failed to refresh session token", logger.Err(err))
	}
}

func (s *Service) sweepPlaceCache(context.Context) {
	if dropped := s.resolver.Sweep(); dropped > 0 {
		s.logger.Debug("swept place cache", "dropped", dropped)
	}
}

// processFixes forwards every bus fix into the resolution pipeline.
func (s *Service) processFixes(ctx context.Context, fixes <-chan locate.Fix) {
	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			s.logger.Debug("received coordinate fix", "source", fix.Source,
				"lat", fix.Coords.Latitude, "lon", fix.Coords.Longitude)
			s.pipeline.Offer(fix.Coords)
		}
	}
}

// processPlaceUpdates tracks the pipeline's latest state as the
// reverse-geocoded fallback place.
func (s *Service) processPlaceUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-s.pipeline.Updates():
			if !ok {
				return
			}
			s.placeLock.Lock()
			s.resolved = state
			s.placeLock.Unlock()
		}
	}
}
