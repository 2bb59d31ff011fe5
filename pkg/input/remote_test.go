package input

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

func shellProducer(script string) func(ctx context.Context) *exec.Cmd {
	return func(ctx context.Context) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("producer tests use sh")
	}
}

func TestNewRemoteSourceValidatesOptions(t *testing.T) {
	if _, err := NewRemoteSource(RemoteOptions{}); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestRemoteSourceDeliversSamplesThenReportsExit(t *testing.T) {
	requireShell(t)

	script := `printf '%s\n' '{"action":"press","key":"a"}' '{"action":"release","key":"a"}' 'not json' '{"action":"move","x":5,"y":6}'`
	source, err := NewRemoteSource(RemoteOptions{
		Command:        shellProducer(script),
		QueueCapacity:  16,
		PollTimeout:    5 * time.Millisecond,
		HealthInterval: 200 * time.Millisecond,
		Logger:         testLogger(),
	})
	if err != nil {
		t.Fatalf("NewRemoteSource: %v", err)
	}

	var samples []Sample
	started := time.Now()
	err = source.Stream(context.Background(), func(s Sample) {
		samples = append(samples, s)
	})
	if !errors.Is(err, ErrProducerExited) {
		t.Fatalf("expected ErrProducerExited, got %v", err)
	}
	// The health check already reaped the exit status, so Stream must not
	// linger waiting on a process that is gone.
	if elapsed := time.Since(started); elapsed > 1500*time.Millisecond {
		t.Fatalf("stream took %v to return after producer exit", elapsed)
	}

	if len(samples) != 3 {
		t.Fatalf("expected 3 well-formed samples, got %d: %v", len(samples), samples)
	}
	if samples[0].Key != "a" || samples[0].Action != ActionPress {
		t.Fatalf("unexpected first sample: %+v", samples[0])
	}
	if samples[2].X != 5 || samples[2].Y != 6 {
		t.Fatalf("unexpected move sample: %+v", samples[2])
	}
}

func TestRemoteSourceStopsOnCancellation(t *testing.T) {
	requireShell(t)

	source, err := NewRemoteSource(RemoteOptions{
		Command:        shellProducer("sleep 30"),
		QueueCapacity:  4,
		PollTimeout:    5 * time.Millisecond,
		HealthInterval: time.Hour,
		Logger:         testLogger(),
	})
	if err != nil {
		t.Fatalf("NewRemoteSource: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- source.Stream(ctx, func(Sample) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not return after cancellation")
	}
}
