package workers

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/camden-git/eventfaces/permissions"
	"github.com/google/uuid"
)

// TagJob asks for the given photos to be tagged on behalf of Caller
type TagJob struct {
	ID       string
	Caller   permissions.Caller
	PhotoIDs []uint
}

func (j TagJob) pendingKey() string {
	ids := make([]uint, len(j.PhotoIDs))
	copy(ids, j.PhotoIDs)
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d:%t:", j.Caller.UserID, j.Caller.System)
	for _, id := range ids {
		fmt.Fprintf(&sb, "%d,", id)
	}
	return sb.String()
}

// TagFunc runs a single job. It must honour ctx cancellation.
type TagFunc func(ctx context.Context, job TagJob)

// TaggingQueue runs tagging jobs in the background on a fixed set of workers.
// An identical job already queued or running is not queued twice.
type TaggingQueue struct {
	JobQueue chan TagJob
	Wg       sync.WaitGroup
	Pending  map[string]bool
	Mutex    sync.Mutex

	process TagFunc
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewTaggingQueue(process TagFunc, queueSize, numWorkers int) *TaggingQueue {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &TaggingQueue{
		JobQueue: make(chan TagJob, queueSize),
		Pending:  make(map[string]bool),
		process:  process,
		ctx:      ctx,
		cancel:   cancel,
	}
	q.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go q.worker(i)
	}
	log.Printf("workers: started %d tagging worker(s) with queue size %d", numWorkers, queueSize)
	return q
}

func (q *TaggingQueue) worker(id int) {
	defer q.Wg.Done()
	for {
		select {
		case job := <-q.JobQueue:
			log.Printf("workers: tagging worker %d picked job %s (%d photo(s))", id, job.ID, len(job.PhotoIDs))
			q.process(q.ctx, job)

			q.Mutex.Lock()
			delete(q.Pending, job.pendingKey())
			q.Mutex.Unlock()

		case <-q.ctx.Done():
			log.Printf("workers: tagging worker %d stopping", id)
			return
		}
	}
}

// QueueJob assigns the job an id and queues it. It returns false when an
// identical job is pending or the queue is full.
func (q *TaggingQueue) QueueJob(job TagJob) (string, bool) {
	key := job.pendingKey()

	q.Mutex.Lock()
	if q.Pending[key] {
		q.Mutex.Unlock()
		return "", false
	}
	q.Pending[key] = true
	q.Mutex.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	select {
	case q.JobQueue <- job:
		log.Printf("workers: queued tagging job %s", job.ID)
		return job.ID, true
	default:
		log.Printf("workers: WARNING tagging queue full, dropping job for %d photo(s)", len(job.PhotoIDs))
		q.Mutex.Lock()
		delete(q.Pending, key)
		q.Mutex.Unlock()
		return "", false
	}
}

// Stop cancels running jobs between photos and waits for the workers to exit
func (q *TaggingQueue) Stop() {
	log.Println("workers: stopping tagging workers...")
	q.cancel()
	q.Wg.Wait()
	log.Println("workers: all tagging workers stopped")
}
