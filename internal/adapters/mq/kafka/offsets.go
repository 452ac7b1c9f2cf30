package kafka

import (
	"slices"
	"sync"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// windowWarnThreshold is the per-partition window length above which the
// consumer logs a warning; a message that never completes pins the window.
const windowWarnThreshold = 10_000

type windowEntry struct {
	offset ckafka.Offset
	done   bool
}

// offsetWindow is a per-partition sliding window of dispatched offsets.
// Messages complete in any order, but the commit position only advances over
// a contiguous run of completed offsets, so a stored offset never skips a
// message that is still being processed.
type offsetWindow struct {
	mu    sync.Mutex
	parts map[int32][]windowEntry
}

func newOffsetWindow() *offsetWindow {
	return &offsetWindow{parts: make(map[int32][]windowEntry)}
}

func cmpEntry(e windowEntry, off ckafka.Offset) int {
	switch {
	case e.offset < off:
		return -1
	case e.offset > off:
		return 1
	default:
		return 0
	}
}

// track registers a dispatched offset and returns the partition's window length.
func (w *offsetWindow) track(tp ckafka.TopicPartition) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	win := w.parts[tp.Partition]
	i, found := slices.BinarySearchFunc(win, tp.Offset, cmpEntry)
	if !found {
		win = slices.Insert(win, i, windowEntry{offset: tp.Offset})
		w.parts[tp.Partition] = win
	}
	return len(win)
}

// complete marks tp done. When that closes the gap at the head of the window
// it returns the new commit position (last contiguous offset + 1).
func (w *offsetWindow) complete(tp ckafka.TopicPartition) (ckafka.TopicPartition, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	win := w.parts[tp.Partition]
	i, found := slices.BinarySearchFunc(win, tp.Offset, cmpEntry)
	if !found {
		return ckafka.TopicPartition{}, false
	}
	win[i].done = true

	n := 0
	for n < len(win) && win[n].done {
		n++
	}
	if n == 0 {
		return ckafka.TopicPartition{}, false
	}
	next := win[n-1].offset + 1
	w.parts[tp.Partition] = slices.Delete(win, 0, n)
	return ckafka.TopicPartition{Topic: tp.Topic, Partition: tp.Partition, Offset: next}, true
}

// revoke forgets the given partitions; late completions for them are ignored.
func (w *offsetWindow) revoke(partitions []ckafka.TopicPartition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range partitions {
		delete(w.parts, p.Partition)
	}
}

func (w *offsetWindow) pending(partition int32) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.parts[partition])
}
