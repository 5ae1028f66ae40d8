// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package locate

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/StepanNazar/city-report/internal/logger"
	"github.com/StepanNazar/city-report/internal/place"
)

func testBus(t *testing.T) *Bus {
	t.Helper()
	return NewBus(logger.NewLogger(slog.LevelDebug, io.Discard))
}

func kyivFix(source string, accuracy float64) Fix {
	return Fix{
		Coords:         place.Coordinates{Latitude: 50.4501, Longitude: 30.5234},
		AccuracyMeters: accuracy,
		Source:         source,
		At:             time.Now(),
		TTL:            time.Hour,
	}
}

func TestBus_Publish(t *testing.T) {
	t.Run("a published fix becomes the best fix", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(kyivFix("fallback", AccuracyFallback))

		best, ok := bus.Best()
		if !ok {
			t.Fatal("expected a best fix")
		}
		if best.Source != "fallback" {
			t.Errorf("expected source %q, got %q", "fallback", best.Source)
		}
	})
	t.Run("a more accurate fix replaces the best fix", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(kyivFix("fallback", AccuracyFallback))
		bus.Publish(kyivFix("account", AccuracyLocality))

		best, _ := bus.Best()
		if best.Source != "account" {
			t.Errorf("expected the more accurate source to win, got %q", best.Source)
		}
	})
	t.Run("a less accurate fix does not displace the best fix", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(kyivFix("account", AccuracyLocality))
		bus.Publish(kyivFix("fallback", AccuracyFallback))

		best, _ := bus.Best()
		if best.Source != "account" {
			t.Errorf("expected the more accurate source to stay, got %q", best.Source)
		}
	})
	t.Run("an expired best fix is displaced by any valid fix", func(t *testing.T) {
		bus := testBus(t)
		stale := kyivFix("account", AccuracyLocality)
		stale.At = time.Now().Add(-time.Hour * 2)
		bus.Publish(stale)
		bus.Publish(kyivFix("fallback", AccuracyFallback))

		best, ok := bus.Best()
		if !ok || best.Source != "fallback" {
			t.Errorf("expected the fresh fix to win, got %q (ok %t)", best.Source, ok)
		}
	})
	t.Run("fixes without accuracy or with invalid coordinates are dropped", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(Fix{Coords: place.Coordinates{Latitude: 50, Longitude: 30}, Source: "noacc"})
		bus.Publish(Fix{Coords: place.Coordinates{Latitude: 91, Longitude: 30},
			AccuracyMeters: AccuracyLocality, Source: "invalid"})

		if _, ok := bus.Best(); ok {
			t.Error("expected no best fix")
		}
	})
	t.Run("best reports nothing once the fix expires", func(t *testing.T) {
		bus := testBus(t)
		short := kyivFix("account", AccuracyLocality)
		short.TTL = time.Millisecond
		bus.Publish(short)

		time.Sleep(time.Millisecond * 10)
		if _, ok := bus.Best(); ok {
			t.Error("expected the best fix to be expired")
		}
	})
}

func TestBus_Subscribe(t *testing.T) {
	t.Run("the best fix is replayed to a new subscriber", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(kyivFix("account", AccuracyLocality))

		fixes, unsub := bus.Subscribe(1)
		defer unsub()
		select {
		case fix := <-fixes:
			if fix.Source != "account" {
				t.Errorf("expected the replayed fix from %q, got %q", "account", fix.Source)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for the replayed fix")
		}
	})
	t.Run("subscribers receive new best fixes", func(t *testing.T) {
		bus := testBus(t)
		fixes, unsub := bus.Subscribe(1)
		defer unsub()

		bus.Publish(kyivFix("fallback", AccuracyFallback))
		select {
		case fix := <-fixes:
			if fix.Source != "fallback" {
				t.Errorf("expected a fix from %q, got %q", "fallback", fix.Source)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for the broadcast fix")
		}
	})
	t.Run("a full subscriber buffer never blocks publishing", func(t *testing.T) {
		bus := testBus(t)
		_, unsub := bus.Subscribe(0)
		defer unsub()

		done := make(chan struct{})
		go func() {
			bus.Publish(kyivFix("fallback", AccuracyFallback))
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked on a full subscriber")
		}
	})
	t.Run("unsubscribe closes the fix channel", func(t *testing.T) {
		bus := testBus(t)
		fixes, unsub := bus.Subscribe(1)
		unsub()

		if _, ok := <-fixes; ok {
			t.Error("expected the channel to be closed")
		}
	})
}
