package pipeline

import (
	"container/heap"
	"sync"

	"github.com/titabash/kugutsu/internal/task"
)

// workItem is one unit queued between stages. Development items carry only
// the task; review items also carry the engineer's result and session owner.
type workItem struct {
	task       *task.Task
	result     *task.EngineerResult
	engineerID string

	weight int
	seq    uint64
}

// itemHeap is a max-heap on priority weight with FIFO tie-break by sequence
// number, so equal-priority items dequeue in arrival order.
type itemHeap []*workItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight > h[j].weight
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*workItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// workQueue is a blocking priority queue feeding one stage's worker pool.
// Pop blocks until an item arrives or the queue is closed.
type workQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  itemHeap
	seq    uint64
	closed bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues an item at its task's priority weight. Pushing onto a closed
// queue is a silent no-op so late event handlers cannot panic during
// shutdown.
func (q *workQueue) Push(item *workItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	item.weight = item.task.Priority.Weight()
	item.seq = q.seq
	q.seq++
	heap.Push(&q.items, item)
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed. The second
// return is false only when the queue is closed and drained.
func (q *workQueue) Pop() (*workItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	return heap.Pop(&q.items).(*workItem), true
}

// Close wakes every blocked Pop. Items still queued are drained before Pop
// starts returning false.
func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
