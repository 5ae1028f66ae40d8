// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package attachment

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/StepanNazar/city-report/internal/imageproc"
	"github.com/StepanNazar/city-report/internal/logger"
	"github.com/StepanNazar/city-report/internal/upload"
)

// DefaultMaxCount is the default attachment capacity per report.
const DefaultMaxCount = imageproc.DefaultMaxCount

// Controller exclusively owns the ordered attachment list. Every mutation
// happens under its lock; upload sessions report back through callbacks that
// re-check the attachment's liveness before touching it.
type Controller struct {
	processor Processor
	uploader  upload.Uploader
	logger    *logger.Logger
	maxCount  int

	mu          sync.Mutex
	attachments []*Attachment
	sessions    map[string]*upload.Session
	changes     chan struct{}
	closed      bool
}

// NewController returns a Controller seeded with the already-stored images of
// the report being edited, in their given order.
func NewController(processor Processor, uploader upload.Uploader, maxCount int,
	log *logger.Logger, existing []Existing) *Controller {
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	controller := &Controller{
		processor: processor,
		uploader:  uploader,
		logger:    log,
		maxCount:  maxCount,
		sessions:  make(map[string]*upload.Session),
		changes:   make(chan struct{}, 1),
	}
	for _, stored := range existing {
		controller.attachments = append(controller.attachments, &Attachment{
			LocalID:    uuid.NewString(),
			Name:       stored.Name,
			PreviewURL: stored.URL,
			RemoteID:   stored.RemoteID,
			Status:     StatusCommitted,
			seeded:     true,
		})
	}
	return controller
}

// AddFiles validates, deduplicates and accepts a batch of files. Accepted
// files get a pending record and a preview synchronously; compression and
// upload run in the background per file, so one bad file never blocks its
// siblings. A batch that would overflow the capacity is truncated with a
// reported error.
func (c *Controller) AddFiles(ctx context.Context, files []imageproc.File) AddResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return AddResult{Errors: []string{"attachment list is closed"}}
	}

	valid, errs := c.processor.Validate(files, c.maxCount, len(c.attachments))
	unique, hadDuplicates := c.processor.FilterDuplicates(valid, c.namesLocked())

	result := AddResult{Errors: errs, SkippedDuplicates: hadDuplicates}
	for _, file := range unique {
		record := &Attachment{
			LocalID: uuid.NewString(),
			Name:    file.Name,
			MIME:    file.MIME,
			Status:  StatusPending,
		}
		preview, err := c.processor.CreatePreview(file)
		if err != nil {
			record.Status = StatusFailed
			record.Error = err.Error()
			c.attachments = append(c.attachments, record)
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		record.PreviewURL = preview
		c.attachments = append(c.attachments, record)
		result.Added++
		go c.process(ctx, record.LocalID, file)
	}
	return result
}

// process compresses one accepted file and opens its upload session. Runs
// outside the lock; the attachment may be removed or the controller closed in
// the meantime, in which case the outcome is dropped.
func (c *Controller) process(ctx context.Context, localID string, file imageproc.File) {
	compressed, err := c.processor.Compress(file)

	c.mu.Lock()
	defer c.mu.Unlock()
	record := c.findLocked(localID)
	if record == nil || c.closed {
		return
	}
	if err != nil {
		c.logger.Warn("image compression failed", "name", file.Name, logger.Err(err))
		record.Status = StatusFailed
		record.Error = err.Error()
		return
	}
	record.Status = StatusUploading
	c.sessions[localID] = upload.Start(ctx, c.uploader, compressed, upload.Callbacks{
		OnCommit: func(result upload.Result) { c.commit(localID, result) },
		OnFail:   func(err error) { c.fail(localID, err) },
	})
}

func (c *Controller) commit(localID string, result upload.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record := c.findLocked(localID)
	if record == nil || c.closed {
		// The attachment was removed while the upload was in flight.
		return
	}
	record.RemoteID = result.ID
	record.Status = StatusCommitted
	record.Error = ""
	delete(c.sessions, localID)
	c.notifyLocked()
}

func (c *Controller) fail(localID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record := c.findLocked(localID)
	if record == nil || c.closed {
		return
	}
	c.logger.Warn("image upload failed", "name", record.Name, logger.Err(err))
	record.Status = StatusFailed
	record.Error = err.Error()
	delete(c.sessions, localID)
}

// Remove cancels the attachment's session, revokes its preview and drops the
// record. Unknown IDs are a no-op. A late success callback for a removed
// attachment can never resurrect it.
func (c *Controller) Remove(localID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	index := c.indexLocked(localID)
	if index < 0 {
		return
	}
	record := c.attachments[index]
	c.attachments = append(c.attachments[:index], c.attachments[index+1:]...)
	if session := c.sessions[localID]; session != nil {
		session.Cancel()
		delete(c.sessions, localID)
	}
	c.processor.RevokePreview(record.PreviewURL)
	c.notifyLocked()
}

// MoveUp swaps the attachment with its predecessor. No-op at the top and for
// unknown IDs.
func (c *Controller) MoveUp(localID string) {
	c.move(localID, -1)
}

// MoveDown swaps the attachment with its successor. No-op at the bottom and
// for unknown IDs.
func (c *Controller) MoveDown(localID string) {
	c.move(localID, 1)
}

func (c *Controller) move(localID string, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	index := c.indexLocked(localID)
	if index < 0 {
		return
	}
	neighbor := index + offset
	if neighbor < 0 || neighbor >= len(c.attachments) {
		return
	}
	c.attachments[index], c.attachments[neighbor] = c.attachments[neighbor], c.attachments[index]
	c.notifyLocked()
}

// CommittedIDs returns the remote IDs of committed attachments in current
// display order. Pending, uploading and failed entries are excluded.
func (c *Controller) CommittedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.attachments))
	for _, record := range c.attachments {
		if record.Status == StatusCommitted {
			ids = append(ids, record.RemoteID)
		}
	}
	return ids
}

// Attachments returns a snapshot of the list in display order.
func (c *Controller) Attachments() []Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]Attachment, 0, len(c.attachments))
	for _, record := range c.attachments {
		snapshot = append(snapshot, *record)
	}
	return snapshot
}

// Changes signals, coalesced, whenever the committed IDs may have changed.
// The channel is closed on Close.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// Close cancels every live session and revokes every preview exactly once.
// Idempotent; afterwards AddFiles rejects input and late callbacks are
// suppressed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for localID, session := range c.sessions {
		session.Cancel()
		delete(c.sessions, localID)
	}
	for _, record := range c.attachments {
		c.processor.RevokePreview(record.PreviewURL)
		record.PreviewURL = ""
	}
	close(c.changes)
}

func (c *Controller) notifyLocked() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Controller) findLocked(localID string) *Attachment {
	if index := c.indexLocked(localID); index >= 0 {
		return c.attachments[index]
	}
	return nil
}

func (c *Controller) indexLocked(localID string) int {
	for i, record := range c.attachments {
		if record.LocalID == localID {
			return i
		}
	}
	return -1
}

// namesLocked returns the names counting for duplicate filtering. Seeded
// entries have no local source file and are excluded.
func (c *Controller) namesLocked() []string {
	names := make([]string, 0, len(c.attachments))
	for _, record := range c.attachments {
		if record.seeded {
			continue
		}
		names = append(names, record.Name)
	}
	return names
}
