package logqueue

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"logroute/pkg/message"

	"github.com/sirupsen/logrus"
)

// DiskQueueConfig configures a DiskQueue. Defaults mirror the teacher's
// pkg/buffer/disk_buffer.go DiskBufferConfig defaults.
type DiskQueueConfig struct {
	Directory       string
	MemCapacity     int           // hot in-memory window before spilling to disk
	MaxFileSize     int64         // bytes per segment before rotation
	SyncInterval    time.Duration // fsync cadence for the active segment
	FilePermissions os.FileMode
	DirPermissions  os.FileMode
}

func (c *DiskQueueConfig) setDefaults() {
	if c.MemCapacity <= 0 {
		c.MemCapacity = 1024
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = 5 * time.Second
	}
	if c.FilePermissions == 0 {
		c.FilePermissions = 0644
	}
	if c.DirPermissions == 0 {
		c.DirPermissions = 0755
	}
}

// DiskQueue is an in-memory ring plus an overflow segment file: once the
// hot window fills, PushTail spills to disk instead of dropping, and
// PopHead transparently refills the hot window from the oldest unread
// segment once it empties. Segment file framing (length-prefix binary
// header + JSON body), the fsync cadence, and the rotate-on-size-limit
// behavior are adapted from the teacher's pkg/buffer/disk_buffer.go,
// rekeyed from types.LogEntry to message.Message; the backlog-on-overflow
// shape (rather than a silent drop) follows pkg/dlq/dead_letter_queue.go's
// "write failed items to a durable file" discipline.
type DiskQueue struct {
	mu     sync.Mutex
	cfg    DiskQueueConfig
	logger *logrus.Logger

	hot     []*message.Message
	backlog []*message.Message

	currentFile *os.File
	writer      *bufio.Writer
	currentSize int64
	fileIndex   int

	// unread segment files, oldest first; readFile/readBuf stream the
	// head of this list lazily so a long backlog never loads in full.
	segmentFiles []string
	readFile     *os.File
	readBuf      *bufio.Reader
	diskPending  int64

	counters                 Counters
	pushed, stored, dropped int64

	syncStop chan struct{}
}

// NewDiskQueue creates (or resumes) a disk-backed queue rooted at
// cfg.Directory. Existing segment files from a prior run are discovered
// and queued for consumption in creation order, so entries survive a
// restart (mirrors disk_buffer.go's scanExistingFiles recovery path).
func NewDiskQueue(cfg DiskQueueConfig, logger *logrus.Logger) (*DiskQueue, error) {
	cfg.setDefaults()
	if cfg.Directory == "" {
		return nil, fmt.Errorf("logqueue: disk queue requires a directory")
	}
	if err := os.MkdirAll(cfg.Directory, cfg.DirPermissions); err != nil {
		return nil, fmt.Errorf("logqueue: create directory %s: %w", cfg.Directory, err)
	}

	q := &DiskQueue{cfg: cfg, logger: logger, syncStop: make(chan struct{})}
	if err := q.scanExisting(); err != nil {
		return nil, err
	}
	if err := q.rotateFile(); err != nil {
		return nil, err
	}

	for _, pending := range q.segmentFiles {
		if n, err := countSegmentEntries(pending); err == nil {
			q.diskPending += n
		}
	}

	go q.syncLoop()
	return q, nil
}

func countSegmentEntries(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var n int64
	for {
		if _, err := readSegmentEntry(r); err != nil {
			if err == io.EOF {
				break
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (q *DiskQueue) scanExisting() error {
	files, err := filepath.Glob(filepath.Join(q.cfg.Directory, "segment_*.dat"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	maxIndex := -1
	for _, f := range files {
		var idx int
		if _, err := fmt.Sscanf(filepath.Base(f), "segment_%d.dat", &idx); err == nil && idx > maxIndex {
			maxIndex = idx
		}
	}
	q.fileIndex = maxIndex + 1
	q.segmentFiles = files
	return nil
}

// SetCounters couples the queue to its owning destination driver's
// stored/dropped counters (I-9).
func (q *DiskQueue) SetCounters(c Counters) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counters = c
}

func (q *DiskQueue) PushTail(msg *message.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed++

	if len(q.hot) < q.cfg.MemCapacity {
		q.hot = append(q.hot, msg)
		q.stored++
		if q.counters != nil {
			q.counters.IncStored()
		}
		return nil
	}

	if err := q.writeSegmentLocked(msg); err != nil {
		q.dropped++
		if q.counters != nil {
			q.counters.IncDropped()
		}
		return err
	}
	q.diskPending++
	q.stored++
	if q.counters != nil {
		q.counters.IncStored()
	}
	return nil
}

func (q *DiskQueue) PopHead() (*message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.hot) == 0 && !q.refillLocked() {
		return nil, false
	}
	msg := q.hot[0]
	q.hot = q.hot[1:]
	q.backlog = append(q.backlog, msg)
	return msg, true
}

func (q *DiskQueue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.hot) + len(q.backlog) + int(q.diskPending)
}

func (q *DiskQueue) AckBacklog(n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.backlog) {
		return fmt.Errorf("logqueue: ack-backlog(%d) exceeds backlog size %d", n, len(q.backlog))
	}
	// The durable half of "remove + persist" is implicit here: these
	// entries, if they ever lived on disk, were already erased from the
	// segment the moment refillLocked streamed them into hot (segments
	// are consumed, never rewritten in place).
	q.backlog = q.backlog[n:]
	return nil
}

func (q *DiskQueue) RewindBacklog(n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.backlog) {
		return fmt.Errorf("logqueue: rewind-backlog(%d) exceeds backlog size %d", n, len(q.backlog))
	}
	items := q.backlog[:n]
	q.backlog = q.backlog[n:]
	q.hot = append(append([]*message.Message{}, items...), q.hot...)
	return nil
}

func (q *DiskQueue) CheckItems(timeout time.Duration, notify func()) (bool, error) {
	q.mu.Lock()
	nonEmpty := len(q.hot) > 0 || q.diskPending > 0
	q.mu.Unlock()
	if nonEmpty {
		return true, nil
	}
	if timeout > 0 && notify != nil {
		time.AfterFunc(timeout, notify)
	}
	return false, ErrThrottle{After: timeout}
}

// refillLocked pulls up to cfg.MemCapacity entries from the oldest
// unread segment file into hot. Caller holds q.mu.
func (q *DiskQueue) refillLocked() bool {
	pulled := 0
	for pulled < q.cfg.MemCapacity {
		if q.readBuf == nil {
			if !q.openNextSegmentLocked() {
				break
			}
		}
		entry, err := readSegmentEntry(q.readBuf)
		if err != nil {
			q.readFile.Close()
			q.readFile = nil
			q.readBuf = nil
			if len(q.segmentFiles) > 0 {
				os.Remove(q.segmentFiles[0])
				q.segmentFiles = q.segmentFiles[1:]
			}
			continue
		}
		msg, err := decodeMessage(entry)
		if err != nil {
			if q.logger != nil {
				q.logger.WithError(err).Warn("logqueue: skipping corrupt disk-backed entry")
			}
			continue
		}
		q.hot = append(q.hot, msg)
		q.diskPending--
		pulled++
	}
	return pulled > 0
}

func (q *DiskQueue) openNextSegmentLocked() bool {
	if len(q.segmentFiles) == 0 {
		return false
	}
	f, err := os.Open(q.segmentFiles[0])
	if err != nil {
		q.segmentFiles = q.segmentFiles[1:]
		return q.openNextSegmentLocked()
	}
	q.readFile = f
	q.readBuf = bufio.NewReader(f)
	return true
}

func (q *DiskQueue) writeSegmentLocked(msg *message.Message) error {
	entry, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("logqueue: marshal segment entry: %w", err)
	}

	lengthBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBuf, uint32(len(data)))
	if _, err := q.writer.Write(lengthBuf); err != nil {
		return err
	}
	if _, err := q.writer.Write(data); err != nil {
		return err
	}
	q.currentSize += int64(len(lengthBuf) + len(data))

	if q.currentSize >= q.cfg.MaxFileSize {
		if err := q.rotateFile(); err != nil {
			return err
		}
	}
	return nil
}

func readSegmentEntry(r *bufio.Reader) (segmentEntry, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return segmentEntry{}, err
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return segmentEntry{}, io.ErrUnexpectedEOF
	}
	var entry segmentEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return segmentEntry{}, err
	}
	return entry, nil
}

func (q *DiskQueue) rotateFile() error {
	var prevName string
	if q.currentFile != nil {
		prevName = q.currentFile.Name()
	}
	if err := q.closeCurrentFileLocked(); err != nil {
		return err
	}
	if prevName != "" {
		q.segmentFiles = append(q.segmentFiles, prevName)
	}

	name := filepath.Join(q.cfg.Directory, fmt.Sprintf("segment_%06d.dat", q.fileIndex))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, q.cfg.FilePermissions)
	if err != nil {
		return fmt.Errorf("logqueue: create segment %s: %w", name, err)
	}
	q.currentFile = f
	q.writer = bufio.NewWriter(f)
	q.currentSize = 0
	q.fileIndex++
	return nil
}

func (q *DiskQueue) closeCurrentFileLocked() error {
	if q.writer != nil {
		if err := q.writer.Flush(); err != nil {
			return err
		}
		q.writer = nil
	}
	if q.currentFile != nil {
		if err := q.currentFile.Sync(); err != nil {
			q.currentFile.Close()
			return err
		}
		if err := q.currentFile.Close(); err != nil {
			return err
		}
		q.currentFile = nil
	}
	return nil
}

func (q *DiskQueue) syncLoop() {
	ticker := time.NewTicker(q.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.syncStop:
			return
		case <-ticker.C:
			q.mu.Lock()
			if q.writer != nil {
				q.writer.Flush()
			}
			if q.currentFile != nil {
				q.currentFile.Sync()
			}
			q.mu.Unlock()
		}
	}
}

// Close flushes and closes the active segment and stops the sync loop.
// The queue must not be used after Close.
func (q *DiskQueue) Close() error {
	close(q.syncStop)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.readFile != nil {
		q.readFile.Close()
		q.readFile = nil
	}
	return q.closeCurrentFileLocked()
}
