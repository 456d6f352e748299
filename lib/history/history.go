package history

import (
	"sort"
	"sync"
	"time"

	pq "github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/emirpasic/gods/utils"

	"github.com/basewatch/flashblocks-ingester/models"
)

// Store keeps the statistics of the most recently completed blocks in
// memory, bounded to a fixed capacity. When full, the block that completed
// earliest is evicted first. Safe for concurrent use: the sink goroutine
// writes while the progress reporter reads.
type Store struct {
	queue    pq.Queue // structure not thread safe
	mutex    sync.Mutex
	capacity int
}

type entry struct {
	stats       models.BlockStats
	completedAt time.Time
}

// Comparator function (oldest completion time first, so Peek/Dequeue yield
// the eviction candidate)
func byCompletedAt(a, b interface{}) int {
	return utils.TimeComparator(a.(entry).completedAt, b.(entry).completedAt)
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{queue: *pq.NewWith(byCompletedAt), capacity: capacity}
}

// Add records the stats of a block completed at the given time, evicting
// the oldest entry if the store is at capacity.
func (s *Store) Add(stats models.BlockStats, completedAt time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.queue.Enqueue(entry{stats: stats, completedAt: completedAt})
	for s.queue.Size() > s.capacity {
		s.queue.Dequeue()
	}
}

// Recent returns the stored stats ordered oldest to newest.
func (s *Store) Recent() []models.BlockStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	values := s.queue.Values()
	entries := make([]entry, len(values))
	for i, v := range values {
		entries[i] = v.(entry)
	}
	// Values returns heap order, not sorted order
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].completedAt.Before(entries[j].completedAt)
	})
	out := make([]models.BlockStats, len(entries))
	for i, e := range entries {
		out[i] = e.stats
	}
	return out
}

func (s *Store) Size() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.queue.Size()
}
