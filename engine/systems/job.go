package systems

import (
	"errors"
	"sync"

	"github.com/spaghettifunk/frameq/engine/core"
)

// JobTask is a unit of work run on one of the job system workers.
type JobTask struct {
	Name string
	// Required.
	OnStart func() error
	// Optional. Called after OnStart succeeds.
	OnComplete func()
	// Optional. Called with the error OnStart returned.
	OnFailure func(err error)
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				if err := job.OnStart(); err != nil {
					core.LogError("job %s failed: %s", job.Name, err)
					if job.OnFailure != nil {
						job.OnFailure(err)
					}
					continue
				}
				if job.OnComplete != nil {
					job.OnComplete()
				}
			}
		}()
	}
}

/**
 * @brief Shuts the job system down, waiting for queued jobs to finish.
 */
func (js *JobSystem) Shutdown() error {
	js.closeOnce.Do(func() { close(js.jobQueue) })
	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(jt JobTask) {
	js.jobQueue <- jt
}

// RunAll submits every task and waits for all of them, returning the
// errors joined together.
func (js *JobSystem) RunAll(tasks []JobTask) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	wg.Add(len(tasks))
	for _, t := range tasks {
		task := t
		onComplete := task.OnComplete
		onFailure := task.OnFailure
		task.OnComplete = func() {
			defer wg.Done()
			if onComplete != nil {
				onComplete()
			}
		}
		task.OnFailure = func(err error) {
			defer wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			if onFailure != nil {
				onFailure(err)
			}
		}
		js.Submit(task)
	}
	wg.Wait()
	return errors.Join(errs...)
}
