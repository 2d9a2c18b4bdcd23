// Package tailer follows a growing, rotating log file and feeds decoded
// records into the entry cache. It owns the file-identity tracking that
// turns rotation, truncation and disappearance into deterministic cache
// resets, and it backs off adaptively while the file is idle.
package tailer

import (
	"bufio"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/tailview/tailview/internal/engine"
	"github.com/tailview/tailview/internal/model"
)

const (
	defaultMinPoll = 100 * time.Millisecond
	defaultMaxPoll = 10 * time.Second
	backoffFactor  = 1.5

	// missingWait paces polling while the file does not exist;
	// errorWait is the cooldown after an unexpected I/O error.
	missingWait = 5 * time.Second
	errorWait   = 5 * time.Second

	stopTimeout = 5 * time.Second
)

// Tailer tracks one log file. All file state (offset, identity
// fingerprint) is owned by the poll loop; readers interact only with
// the cache.
type Tailer struct {
	path     string
	capacity int
	cache    *engine.Cache
	decoder  engine.Decoder

	offset      int64
	fingerprint os.FileInfo // identity of the file currently tracked

	minPoll time.Duration
	maxPoll time.Duration
	sleep   time.Duration

	stop chan struct{}
	done chan struct{}
}

// New creates a tailer for path feeding cache. capacity bounds the
// startup backfill to the most recent lines (0 loads the whole file).
// minPoll/maxPoll bound the adaptive poll interval; zero values take
// the defaults.
func New(path string, capacity int, cache *engine.Cache, minPoll, maxPoll time.Duration) *Tailer {
	if minPoll <= 0 {
		minPoll = defaultMinPoll
	}
	if maxPoll < minPoll {
		maxPoll = defaultMaxPoll
	}
	return &Tailer{
		path:     path,
		capacity: capacity,
		cache:    cache,
		minPoll:  minPoll,
		maxPoll:  maxPoll,
		sleep:    minPoll,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start backfills from the file's current content and launches the
// poll loop.
func (t *Tailer) Start() {
	if err := t.load(); err != nil {
		log.Printf("tailer: initial load of %s: %v", t.path, err)
	}
	go t.run()
}

// Stop asks the poll loop to exit and waits for it, bounded. A loop
// that fails to stop in time is logged, not escalated.
func (t *Tailer) Stop() {
	close(t.stop)
	select {
	case <-t.done:
	case <-time.After(stopTimeout):
		log.Printf("tailer: poll loop for %s did not stop within %v", t.path, stopTimeout)
	}
}

func (t *Tailer) run() {
	defer close(t.done)
	for {
		wait := t.scan()
		select {
		case <-t.stop:
			return
		case <-time.After(wait):
		}
	}
}

// scan performs one poll step and returns how long to wait before the
// next one. Transient errors are logged and treated as no progress.
func (t *Tailer) scan() time.Duration {
	info, err := os.Stat(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if t.fingerprint != nil {
				log.Printf("tailer: %s disappeared, clearing cache", t.path)
				t.reset()
			}
			return missingWait
		}
		log.Printf("tailer: stat %s: %v", t.path, err)
		return errorWait
	}

	// Identity change means the path now names a different file.
	if t.fingerprint == nil || !os.SameFile(t.fingerprint, info) {
		if t.fingerprint != nil {
			log.Printf("tailer: %s rotated, reloading", t.path)
			t.reset()
		}
		if err := t.load(); err != nil {
			log.Printf("tailer: reload %s: %v", t.path, err)
			return errorWait
		}
		return t.active()
	}

	size := info.Size()
	switch {
	case size < t.offset:
		log.Printf("tailer: %s truncated (%d < %d), reloading", t.path, size, t.offset)
		t.reset()
		if err := t.load(); err != nil {
			log.Printf("tailer: reload %s: %v", t.path, err)
			return errorWait
		}
		return t.active()

	case size > t.offset:
		if err := t.readNew(); err != nil {
			log.Printf("tailer: read %s: %v", t.path, err)
			return errorWait
		}
		return t.active()

	default:
		return t.idle()
	}
}

// reset clears the cache (bumping its generation) and forgets the
// tracked file.
func (t *Tailer) reset() {
	t.cache.Reset()
	t.offset = 0
	t.fingerprint = nil
}

// load reads the file's current content from the start, bounded to the
// most recent capacity lines, and admits every line. A missing file is
// not an error; the poll loop will pick it up when it appears.
func (t *Tailer) load() error {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	lines, consumed, err := readLines(f, t.capacity)
	if err != nil {
		return err
	}

	t.fingerprint = info
	t.offset = consumed
	t.admit(lines)
	return nil
}

// readNew reads from the stored offset to end of file and admits the
// complete lines found there.
func (t *Tailer) readNew() error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}

	lines, consumed, err := readLines(f, 0)
	if err != nil {
		return err
	}

	t.offset += consumed
	t.admit(lines)
	return nil
}

// admit decodes a batch of lines and appends it under one cache lock.
func (t *Tailer) admit(lines []string) {
	if len(lines) == 0 {
		return
	}
	recs := make([]model.Record, 0, len(lines))
	for _, line := range lines {
		recs = append(recs, t.decoder.Decode(line))
	}
	t.cache.Admit(recs)
}

func (t *Tailer) active() time.Duration {
	t.sleep = t.minPoll
	return t.sleep
}

func (t *Tailer) idle() time.Duration {
	t.sleep = time.Duration(float64(t.sleep) * backoffFactor)
	if t.sleep > t.maxPoll {
		t.sleep = t.maxPoll
	}
	return t.sleep
}

// readLines reads complete lines from f's current position, keeping at
// most the last keep of them (keep <= 0 keeps all), and returns the
// byte count consumed through the final complete line. A trailing
// partial line is left unconsumed so it is delivered whole once its
// newline arrives, never split across two reads.
func readLines(f *os.File, keep int) ([]string, int64, error) {
	br := bufio.NewReaderSize(f, 64*1024)

	var (
		all      []string
		ring     []string
		idx      int
		count    int
		consumed int64
	)
	if keep > 0 {
		ring = make([]string, keep)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// line, if any, has no newline yet
				return collect(all, ring, idx, count, keep), consumed, nil
			}
			return nil, consumed, err
		}
		consumed += int64(len(line))
		line = strings.TrimSpace(line)
		if keep > 0 {
			ring[idx] = line
			idx = (idx + 1) % keep
			if count < keep {
				count++
			}
		} else {
			all = append(all, line)
		}
	}
}

func collect(all, ring []string, idx, count, keep int) []string {
	if keep <= 0 {
		return all
	}
	lines := make([]string, count)
	if count == keep {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%keep]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines
}
