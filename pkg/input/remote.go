package input

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// DefaultHealthInterval is how often the consuming loop verifies the
// producer process is still alive.
const DefaultHealthInterval = 5 * time.Second

// ErrProducerExited indicates the hook producer process died while the
// capture loop was still live.
var ErrProducerExited = errors.New("input hook producer process exited")

// RemoteOptions configure a process-isolated input source.
type RemoteOptions struct {
	// Command builds the producer process. Its stdout must carry one JSON
	// sample per line.
	Command        func(ctx context.Context) *exec.Cmd
	QueueCapacity  int
	PollTimeout    time.Duration
	HealthInterval time.Duration
	Logger         *slog.Logger
	Clock          func() time.Time
}

// RemoteSource runs an input hook in a separate OS process and bridges its
// samples into the capture loop through a bounded queue. Isolation, not
// parallelism, is the point: the hook cannot share a process with some GUI
// toolkits, so it lives alone and its samples cross a drop-on-full channel.
type RemoteSource struct {
	command        func(ctx context.Context) *exec.Cmd
	queue          *Queue
	pollTimeout    time.Duration
	healthInterval time.Duration
	logger         *slog.Logger
	clock          func() time.Time
}

// NewRemoteSource validates options and constructs a remote source.
func NewRemoteSource(opts RemoteOptions) (*RemoteSource, error) {
	if opts.Command == nil {
		return nil, errors.New("producer command must be provided")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger must be provided")
	}
	capacity := opts.QueueCapacity
	if capacity == 0 {
		capacity = DefaultQueueCapacity
	}
	queue, err := NewQueue(capacity)
	if err != nil {
		return nil, err
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	healthInterval := opts.HealthInterval
	if healthInterval <= 0 {
		healthInterval = DefaultHealthInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &RemoteSource{
		command:        opts.Command,
		queue:          queue,
		pollTimeout:    pollTimeout,
		healthInterval: healthInterval,
		logger:         opts.Logger,
		clock:          clock,
	}, nil
}

// Dropped reports how many samples were lost to queue backpressure.
func (r *RemoteSource) Dropped() uint64 {
	return r.queue.Dropped()
}

// Stream launches the producer process and pumps its samples to emit until
// ctx is cancelled or the producer dies. A dead producer is reported as
// ErrProducerExited so the owning recorder can stop itself instead of
// polling an empty queue forever.
func (r *RemoteSource) Stream(ctx context.Context, emit func(Sample)) error {
	cmd := r.command(ctx)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("producer stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start producer process: %w", err)
	}
	r.logger.Info("input producer process started", "pid", cmd.Process.Pid)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var sample Sample
			if err := json.Unmarshal(line, &sample); err != nil {
				r.logger.Warn("discard malformed producer sample", "error", err)
				continue
			}
			r.queue.Offer(sample)
		}
	}()

	exited := make(chan error, 1)
	go func() {
		<-readerDone
		exited <- cmd.Wait()
	}()

	// The health check consumes the buffered exit status; once it has,
	// the process is already reaped and there is nothing left to kill.
	producerDead := false
	defer func() {
		if producerDead {
			return
		}
		r.reap(cmd, exited)
	}()

	lastHealth := r.clock()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sample, ok := r.queue.Poll(ctx, r.pollTimeout); ok {
			emit(sample)
		}
		if r.clock().Sub(lastHealth) >= r.healthInterval {
			lastHealth = r.clock()
			select {
			case err := <-exited:
				producerDead = true
				r.logger.Warn("input producer process died", "error", err)
				return ErrProducerExited
			default:
			}
		}
	}
}

// reap terminates the producer if it is still running and waits briefly for
// the exit status so the child is not left as a zombie.
func (r *RemoteSource) reap(cmd *exec.Cmd, exited <-chan error) {
	select {
	case <-exited:
		return
	default:
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
		r.logger.Warn("input producer process did not exit after kill")
	}
}
