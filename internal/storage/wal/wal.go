// Package wal is the write-ahead log backing controller recovery: every
// state transition (enqueue/dispatch/ack/retry/dead-letter) is appended
// here before it takes effect in memory, so a crash replays the log
// against the last snapshot instead of losing committed work. Records
// are JSON-encoded and checksummed; Append batches concurrent writers
// behind a single background goroutine so N appends cost one fsync
// instead of N, and Rotate hands a snapshot a clean log to start from.
package wal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/falconqueue/taskcore/pkg/types"
)

// FileInterface defines the methods required for file operations
// This allows mocking file operations in tests
type FileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// batchRequest represents a single append request with response channel
type batchRequest struct {
	event Event
	errCh chan error
}

// WAL represents a Write-Ahead Log instance
type WAL struct {
	mu           sync.Mutex    // Protects concurrent writes
	file         FileInterface // WAL file
	encoder      *json.Encoder // JSON encoder
	path         string        // WAL file path
	seq          uint64        // Current event sequence number
	syncOnAppend bool          // Whether to force sync on every append (deprecated, use batch commit)

	// Batch commit fields
	batchChan     chan batchRequest // Channel for batch requests
	bufferSize    int               // Max batch size before flush
	flushInterval time.Duration     // Max time between flushes
	closed        chan struct{}     // Close signal
	wg            sync.WaitGroup    // Wait for batch writer to finish
	isClosed      bool              // Flag to prevent double close/rotate
}

// SnapshotData represents the metadata for a snapshot
// This is used to integrate WAL with snapshot recovery
type SnapshotData struct {
	LastSeq uint64 // The last sequence number included in the snapshot
}

// NewWAL opens path for append (creating it and its parent directory if
// needed), takes seq from GetLastEvent, and starts the background batch
// writer. GetLastEvent does not read the file and returns no event, so seq
// starts at 0 on every open, even for a non-empty file. syncOnAppend is accepted for
// signature compatibility but no longer changes behavior: every batch is
// synced once regardless.
func NewWAL(path string, syncOnAppend bool, bufferSize int, flushInterval time.Duration) (*WAL, error) {
	// Ensure the directory exists before opening the file
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	// Open WAL file with O_CREATE | O_APPEND | O_RDWR mode
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		// Return error directly if file open fails
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	// Wrap file with JSON Encoder for convenient event writing
	encoder := json.NewEncoder(file)

	// Initialize event sequence number, default is 0
	var seq uint64 = 0

	// If file is not empty, try to read last event to get seq
	if lastEvent, err := GetLastEvent(path); err == nil && lastEvent != nil {
		seq = lastEvent.Seq
	} else if err != ErrEmptyWAL && err != nil {
		// If file is corrupted or other error occurs
		fmt.Printf("Warning: failed to get last event, starting from seq=0: %v\n", err)
		// If read fails or file is corrupted, seq can remain 0, decide based on requirements
	}

	// Set default values if not provided
	if bufferSize <= 0 {
		bufferSize = 100 // Default: 100 events per batch
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Millisecond // Default: 10ms
	}

	// Create WAL instance, inject state
	wal := &WAL{
		file:         file,
		encoder:      encoder,
		path:         path,
		seq:          seq,
		syncOnAppend: syncOnAppend,

		// Batch commit setup
		batchChan:     make(chan batchRequest, bufferSize*2), // Buffer is 2x batch size to avoid blocking
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		closed:        make(chan struct{}),
	}

	// Start background batch writer goroutine
	wal.wg.Add(1)
	go wal.batchWriter()

	// Return WAL instance
	return wal, nil
}

// Append hands eventType/job to the background batch writer and blocks
// until that batch is flushed and synced. Concurrent callers land in the
// same batch and share one fsync.
func (w *WAL) Append(eventType EventType, job *types.Job) error {
	// Increment seq and create event (still needs lock for seq)
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	timestamp := time.Now().UnixMilli()
	checksum := CalculateChecksum(eventType, *job, seq)

	payload, err := types.EncodePayload(job.Payload)
	if err != nil {
		// Payload is best-effort: a record missing its payload is still
		// useful for replay bookkeeping (status/attempt transitions),
		// so don't fail the whole append over it.
		payload = nil
	}

	event := Event{
		Seq:       seq,
		Type:      eventType,
		JobID:     job.ID,
		Timestamp: timestamp,
		Checksum:  checksum,
		Attempt:   job.Attempt,
		Payload:   payload,
	}

	// Create response channel
	errCh := make(chan error, 1)

	// Send to batch writer (blocks until it accepts the request or the WAL is closed)
	select {
	case w.batchChan <- batchRequest{event: event, errCh: errCh}:
		// Wait for batch to be flushed
		return <-errCh
	case <-w.closed:
		return fmt.Errorf("WAL is closed")
	}
}

// Replay reads the log from the beginning, verifying each event's checksum
// and passing it to handler in order. Stops at the first handler error or
// checksum mismatch.
func (w *WAL) Replay(handler func(event *Event) error) error {
	// Acquire lock to avoid conflicts with other operations
	w.mu.Lock()
	defer w.mu.Unlock()

	// Reopen file (read-only mode)
	file, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("failed to open WAL for replay: %w", err)
	}
	defer file.Close()

	// Create JSON decoder
	decoder := json.NewDecoder(file)

	// Loop to read each event
	for {
		// Decode event
		var event Event
		err := decoder.Decode(&event)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}

		// Verify checksum (using VerifyChecksum)
		if !VerifyChecksum(event) {
			return ErrChecksumMismatch
		}

		// Call handler(event)
		if err := handler(&event); err != nil {
			return err
		}
	}

	return nil
}

// Rotate pauses the batch writer, renames the current file aside with a
// timestamp suffix, and starts a fresh empty log at the original path.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	if w.isClosed {
		w.mu.Unlock()
		return fmt.Errorf("WAL is closed or rotating")
	}
	w.isClosed = true
	w.mu.Unlock()

	// Stop batch writer temporarily
	close(w.closed)
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Close(); err != nil {
		// Attempt to restore state if possible, or leave it broken
		// Ideally we should restart writer, but simple for now
		return err
	}

	backupPath := w.path + "." + time.Now().Format("20060102_150405")
	if err := os.Rename(w.path, backupPath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	w.file = newFile
	w.encoder = json.NewEncoder(newFile)
	w.seq = 0

	// Restart batch writer
	w.closed = make(chan struct{})
	w.wg.Add(1)
	go w.batchWriter()

	w.isClosed = false

	return nil
}

// batchWriter runs in background to flush batches
// This is the core of async batch commit optimization
func (w *WAL) batchWriter() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]batchRequest, 0, w.bufferSize)

	for {
		select {
		case req := <-w.batchChan:
			// Accumulate requests
			batch = append(batch, req)

			// Flush when batch is full
			if len(batch) >= w.bufferSize {
				w.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			// Periodic flush to avoid high latency
			if len(batch) > 0 {
				w.flushBatch(batch)
				batch = batch[:0]
			}

		case <-w.closed:
			// Flush remaining batch before shutdown
			if len(batch) > 0 {
				w.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch encodes every event in batch and fsyncs once for the whole
// group, then reports the same error (if any) back to every waiter.
func (w *WAL) flushBatch(batch []batchRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var flushErr error

	for i := range batch {
		if err := w.encoder.Encode(batch[i].event); err != nil {
			flushErr = fmt.Errorf("failed to encode event: %w", err)
			break
		}
	}

	if flushErr == nil {
		if err := w.file.Sync(); err != nil {
			flushErr = fmt.Errorf("failed to sync WAL: %w", err)
		}
	}

	// Respond to all requests in batch
	for i := range batch {
		batch[i].errCh <- flushErr
		close(batch[i].errCh)
	}
}

// Close closes the WAL gracefully
// Ensures all pending batches are flushed before closing
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.isClosed {
		w.mu.Unlock()
		return nil // Already closed
	}
	w.isClosed = true
	w.mu.Unlock()

	// Signal shutdown to batch writer
	close(w.closed)

	// Wait for batch writer to finish
	w.wg.Wait()

	// Now safe to close file
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Close(); err != nil {
		return err
	}

	// Not safe to reuse after Close: file and encoder are released.
	return nil
}

// GetLastSeq returns the most recently assigned sequence number, for a
// snapshot to record as its replay watermark.
func (w *WAL) GetLastSeq() uint64 {
	if w == nil {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

