// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/StepanNazar/city-report/internal/imageproc"
	"github.com/StepanNazar/city-report/internal/logger"
	"github.com/StepanNazar/city-report/internal/upload"
)

// spyProcessor implements Processor with instant previews and pass-through
// compression, recording every revoked URL.
type spyProcessor struct {
	compressErr map[string]error
	previewErr  map[string]error

	mu         sync.Mutex
	previewSeq int
	revoked    []string
}

func (s *spyProcessor) Validate(files []imageproc.File, maxCount, currentCount int) ([]imageproc.File, []string) {
	valid := make([]imageproc.File, 0, len(files))
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

func (s *spyProcessor) FilterDuplicates(files []imageproc.File, existingNames []string) ([]imageproc.File, bool) {
	seen := make(map[string]struct{}, len(existingNames))
	for _, name := range existingNames {
		seen[name] = struct{}{}
	}
	unique := make([]imageproc.File, 0, len(files))
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

func (s *spyProcessor) Compress(file imageproc.File) (imageproc.File, error) {
	if err := s.compressErr[file.Name]; err != nil {
		return imageproc.File{}, err
	}
	return file, nil
}

func (s *spyProcessor) CreatePreview(file imageproc.File) (string, error) {
	if err := s.previewErr[file.Name]; err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewSeq++
	return fmt.Sprintf("file:///previews/%d-%s", s.previewSeq, file.Name), nil
}

func (s *spyProcessor) RevokePreview(url string) {
	if !strings.HasPrefix(url, "file://") {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = append(s.revoked, url)
}

func (s *spyProcessor) revokeCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, revoked := range s.revoked {
		if revoked == url {
			count++
		}
	}
	return count
}

// queueUploader parks every upload until the test settles it, in arrival
// order.
type queueUploader struct {
	calls chan uploadCall
}

type uploadCall struct {
	file    imageproc.File
	respond chan uploadOutcome
}

type uploadOutcome struct {
	result upload.Result
	err    error
}

func newQueueUploader() *queueUploader {
	return &queueUploader{calls: make(chan uploadCall, 16)}
}

func (u *queueUploader) Upload(ctx context.Context, file imageproc.File) (upload.Result, error) {
	call := uploadCall{file: file, respond: make(chan uploadOutcome, 1)}
	u.calls <- call
	select {
	case outcome := <-call.respond:
		return outcome.result, outcome.err
	case <-ctx.Done():
		return upload.Result{}, ctx.Err()
	}
}

func (u *queueUploader) nextCall(t *testing.T) uploadCall {
	t.Helper()
	select {
	case call := <-u.calls:
		return call
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an upload to start")
	}
	return uploadCall{}
}

func (u *queueUploader) commitNext(t *testing.T) {
	t.Helper()
	call := u.nextCall(t)
	call.respond <- uploadOutcome{result: upload.Result{
		ID:  "remote-" + call.file.Name,
		URL: "https://api.example.com/uploads/images/" + call.file.Name,
	}}
}

func imageFile(name string) imageproc.File {
	return imageproc.File{Name: name, MIME: "image/jpeg", Data: []byte("jpeg bytes")}
}

func testController(t *testing.T, maxCount int, existing []Existing) (*Controller, *spyProcessor, *queueUploader) {
	t.Helper()
	processor := &spyProcessor{}
	uploader := newQueueUploader()
	controller := NewController(processor, uploader, maxCount,
		logger.NewLogger(slog.LevelDebug, io.Discard), existing)
	t.Cleanup(controller.Close)
	return controller, processor, uploader
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for the controller to settle")
}

func TestController_AddFiles(t *testing.T) {
	t.Run("accepted files end up committed in input order", func(t *testing.T) {
		controller, _, uploader := testController(t, 10, nil)

		result := controller.AddFiles(t.Context(), []imageproc.File{
			imageFile("first.jpg"), imageFile("second.jpg"),
		})
		if result.Added != 2 {
			t.Fatalf("expected 2 added files, got %d", result.Added)
		}
		for _, record := range controller.Attachments() {
			if record.Status != StatusPending {
				t.Errorf("expected %s to start pending, got %s", record.Name, record.Status)
			}
			if record.PreviewURL == "" {
				t.Errorf("expected %s to have a preview", record.Name)
			}
		}

		uploader.commitNext(t)
		uploader.commitNext(t)
		waitFor(t, func() bool { return len(controller.CommittedIDs()) == 2 })

		committed := controller.CommittedIDs()
		if committed[0] != "remote-first.jpg" || committed[1] != "remote-second.jpg" {
			t.Errorf("expected committed IDs in input order, got %v", committed)
		}
	})
	t.Run("an overflowing batch is truncated with reported errors", func(t *testing.T) {
		controller, _, uploader := testController(t, 2, nil)

		result := controller.AddFiles(t.Context(), []imageproc.File{
			imageFile("a.jpg"), imageFile("b.jpg"), imageFile("c.jpg"),
		})
		if result.Added != 2 {
			t.Errorf("expected 2 added files, got %d", result.Added)
		}
		if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "c.jpg") {
			t.Errorf("expected one error naming the truncated file, got %v", result.Errors)
		}
		uploader.commitNext(t)
		uploader.commitNext(t)
	})
	t.Run("non-image files are reported and skipped", func(t *testing.T) {
		controller, _, _ := testController(t, 10, nil)

		result := controller.AddFiles(t.Context(), []imageproc.File{
			{Name: "notes.pdf", MIME: "application/pdf"},
		})
		if result.Added != 0 {
			t.Errorf("expected no added files, got %d", result.Added)
		}
		if len(result.Errors) != 1 {
			t.Errorf("expected 1 error, got %v", result.Errors)
		}
	})
	t.Run("duplicate names are skipped and flagged", func(t *testing.T) {
		controller, _, uploader := testController(t, 10, nil)

		controller.AddFiles(t.Context(), []imageproc.File{imageFile("same.jpg")})
		result := controller.AddFiles(t.Context(), []imageproc.File{imageFile("same.jpg")})
		if !result.SkippedDuplicates {
			t.Error("expected duplicates to be flagged")
		}
		if result.Added != 0 {
			t.Errorf("expected no added files, got %d", result.Added)
		}
		uploader.commitNext(t)
	})
	t.Run("a compression failure marks only that attachment failed", func(t *testing.T) {
		controller, processor, uploader := testController(t, 10, nil)
		processor.compressErr = map[string]error{"broken.jpg": errors.New("cannot compress")}

		controller.AddFiles(t.Context(), []imageproc.File{
			imageFile("broken.jpg"), imageFile("fine.jpg"),
		})
		uploader.commitNext(t)
		waitFor(t, func() bool {
			records := controller.Attachments()
			return records[0].Status == StatusFailed && records[1].Status == StatusCommitted
		})

		records := controller.Attachments()
		if records[0].Error == "" {
			t.Error("expected the failed attachment to carry an error")
		}
		if committed := controller.CommittedIDs(); len(committed) != 1 {
			t.Errorf("expected 1 committed ID, got %v", committed)
		}
	})
	t.Run("a preview failure marks the attachment failed immediately", func(t *testing.T) {
		controller, processor, _ := testController(t, 10, nil)
		processor.previewErr = map[string]error{"broken.jpg": errors.New("disk full")}

		result := controller.AddFiles(t.Context(), []imageproc.File{imageFile("broken.jpg")})
		if result.Added != 0 {
			t.Errorf("expected no added files, got %d", result.Added)
		}
		if len(result.Errors) != 1 {
			t.Errorf("expected 1 error, got %v", result.Errors)
		}
		records := controller.Attachments()
		if len(records) != 1 || records[0].Status != StatusFailed {
			t.Errorf("expected a failed record, got %+v", records)
		}
	})
	t.Run("add after close is rejected", func(t *testing.T) {
		controller, _, _ := testController(t, 10, nil)
		controller.Close()

		result := controller.AddFiles(t.Context(), []imageproc.File{imageFile("late.jpg")})
		if result.Added != 0 || len(result.Errors) != 1 {
			t.Errorf("expected the batch to be rejected, got %+v", result)
		}
	})
}

func TestController_Remove(t *testing.T) {
	t.Run("remove cancels the upload and revokes the preview", func(t *testing.T) {
		controller, processor, uploader := testController(t, 10, nil)

		controller.AddFiles(t.Context(), []imageproc.File{imageFile("gone.jpg")})
		call := uploader.nextCall(t)
		record := controller.Attachments()[0]

		controller.Remove(record.LocalID)
		if len(controller.Attachments()) != 0 {
			t.Error("expected the attachment to be removed")
		}
		if processor.revokeCount(record.PreviewURL) != 1 {
			t.Errorf("expected the preview to be revoked once, got %d",
				processor.revokeCount(record.PreviewURL))
		}

		// A late success for the removed attachment must not resurrect it.
		call.respond <- uploadOutcome{result: upload.Result{ID: "remote-gone.jpg", URL: "u"}}
		time.Sleep(time.Millisecond * 20)
		if len(controller.CommittedIDs()) != 0 {
			t.Error("expected no committed IDs after removal")
		}
	})
	t.Run("remove with an unknown ID is a no-op", func(t *testing.T) {
		controller, _, uploader := testController(t, 10, nil)
		controller.AddFiles(t.Context(), []imageproc.File{imageFile("kept.jpg")})
		uploader.commitNext(t)

		controller.Remove("no-such-id")
		waitFor(t, func() bool { return len(controller.CommittedIDs()) == 1 })
	})
}

func TestController_Move(t *testing.T) {
	controller, _, uploader := testController(t, 10, nil)
	controller.AddFiles(t.Context(), []imageproc.File{
		imageFile("a.jpg"), imageFile("b.jpg"), imageFile("c.jpg"),
	})
	for range 3 {
		uploader.commitNext(t)
	}
	waitFor(t, func() bool { return len(controller.CommittedIDs()) == 3 })
	idOf := func(name string) string {
		for _, record := range controller.Attachments() {
			if record.Name == name {
				return record.LocalID
			}
		}
		t.Fatalf("no attachment named %s", name)
		return ""
	}

	t.Run("move down swaps with the successor", func(t *testing.T) {
		controller.MoveDown(idOf("a.jpg"))
		committed := controller.CommittedIDs()
		if committed[0] != "remote-b.jpg" || committed[1] != "remote-a.jpg" {
			t.Errorf("expected b before a, got %v", committed)
		}
	})
	t.Run("move up swaps with the predecessor", func(t *testing.T) {
		controller.MoveUp(idOf("a.jpg"))
		committed := controller.CommittedIDs()
		if committed[0] != "remote-a.jpg" || committed[1] != "remote-b.jpg" {
			t.Errorf("expected a before b, got %v", committed)
		}
	})
	t.Run("moves at the boundaries are no-ops", func(t *testing.T) {
		before := controller.CommittedIDs()
		controller.MoveUp(idOf("a.jpg"))
		controller.MoveDown(idOf("c.jpg"))
		controller.MoveUp("no-such-id")
		after := controller.CommittedIDs()
		for i := range before {
			if before[i] != after[i] {
				t.Fatalf("expected order to be unchanged, got %v", after)
			}
		}
	})
}

func TestController_Existing(t *testing.T) {
	t.Run("existing images are seeded committed in order", func(t *testing.T) {
		controller, processor, _ := testController(t, 10, []Existing{
			{RemoteID: "stored-1", Name: "old1.jpg", URL: "https://api.example.com/uploads/images/1.jpg"},
			{RemoteID: "stored-2", Name: "old2.jpg", URL: "https://api.example.com/uploads/images/2.jpg"},
		})

		committed := controller.CommittedIDs()
		if len(committed) != 2 || committed[0] != "stored-1" || committed[1] != "stored-2" {
			t.Fatalf("expected the stored IDs in order, got %v", committed)
		}

		controller.Close()
		processor.mu.Lock()
		defer processor.mu.Unlock()
		if len(processor.revoked) != 0 {
			t.Errorf("expected no revoked remote URLs, got %v", processor.revoked)
		}
	})
	t.Run("a file named like a stored image is not a duplicate", func(t *testing.T) {
		// Stored images carry no local source file, only newly added files
		// count for duplicate filtering.
		controller, _, uploader := testController(t, 10, []Existing{
			{RemoteID: "stored-1", Name: "old1.jpg", URL: "https://api.example.com/uploads/images/1.jpg"},
		})

		result := controller.AddFiles(t.Context(), []imageproc.File{imageFile("old1.jpg")})
		if result.SkippedDuplicates || result.Added != 1 {
			t.Errorf("expected the file to be accepted, got %+v", result)
		}
		uploader.commitNext(t)
		waitFor(t, func() bool { return len(controller.CommittedIDs()) == 2 })

		// A second add of the same name now hits a locally sourced entry.
		result = controller.AddFiles(t.Context(), []imageproc.File{imageFile("old1.jpg")})
		if !result.SkippedDuplicates || result.Added != 0 {
			t.Errorf("expected the duplicate to be skipped, got %+v", result)
		}
	})
}

func TestController_Changes(t *testing.T) {
	t.Run("a commit signals the changes channel", func(t *testing.T) {
		controller, _, uploader := testController(t, 10, nil)

		controller.AddFiles(t.Context(), []imageproc.File{imageFile("new.jpg")})
		uploader.commitNext(t)

		select {
		case <-controller.Changes():
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for a change signal")
		}
	})
}

func TestController_Close(t *testing.T) {
	t.Run("close cancels sessions, revokes previews once and closes changes", func(t *testing.T) {
		processor := &spyProcessor{}
		uploader := newQueueUploader()
		controller := NewController(processor, uploader, 10,
			logger.NewLogger(slog.LevelDebug, io.Discard), nil)

		controller.AddFiles(t.Context(), []imageproc.File{imageFile("inflight.jpg")})
		uploader.nextCall(t)
		record := controller.Attachments()[0]

		controller.Close()
		controller.Close()

		if processor.revokeCount(record.PreviewURL) != 1 {
			t.Errorf("expected the preview to be revoked exactly once, got %d",
				processor.revokeCount(record.PreviewURL))
		}
		select {
		case _, ok := <-controller.Changes():
			if ok {
				t.Error("expected the changes channel to be closed")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for the changes channel to close")
		}
	})
	t.Run("a removed preview is not revoked again on close", func(t *testing.T) {
		controller, processor, uploader := testController(t, 10, nil)

		controller.AddFiles(t.Context(), []imageproc.File{imageFile("gone.jpg")})
		uploader.nextCall(t)
		record := controller.Attachments()[0]

		controller.Remove(record.LocalID)
		controller.Close()
		if processor.revokeCount(record.PreviewURL) != 1 {
			t.Errorf("expected the preview to be revoked exactly once, got %d",
				processor.revokeCount(record.PreviewURL))
		}
	})
}
