package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

/** @brief Configuration for the job system. */
type JobSystemConfig struct {
	/** @brief The number of worker goroutines. */
	WorkerCount int
	/** @brief The size of the job queue. Submit blocks while it is full. */
	QueueSize int
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan metadata.JobTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = fmt.Errorf("job system is shut down")

func NewJobSystem(config *JobSystemConfig) (*JobSystem, error) {
	if config.WorkerCount <= 0 {
		core.LogError(ErrNoWorkers.Error())
		return nil, ErrNoWorkers
	}
	if config.QueueSize < 0 {
		core.LogError(ErrNegativeChannelSize.Error())
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: config.WorkerCount,
		jobQueue:   make(chan metadata.JobTask, config.QueueSize),
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
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job metadata.JobTask) {
	if job.OnCompletionCallback != nil {
		defer job.OnCompletionCallback()
	}
	if job.OnStart == nil {
		core.LogWarn("job `%s` has no start function", job.Name)
		return
	}
	result, err := job.OnStart(job.InputParams)
	if err != nil {
		core.LogError("job `%s` failed: %s", job.Name, err.Error())
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete(result)
	}
}

/**
 * @brief Shuts the job system down. Queued jobs are drained before returning.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt metadata.JobTask) error {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}
