package launcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseLaunchSpec(t *testing.T) {
	spec, err := ParseLaunchSpec([]byte(`{"executable_name":"worker","command_line_args":["--flag"],"restart":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.ExecutableName != "worker" || len(spec.CommandLineArgs) != 1 || !spec.Restart {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestRunWithoutRestartReturnsOnCleanExit(t *testing.T) {
	var calls atomic.Int64
	l := &Launcher{
		spec: LaunchSpec{ExecutableName: "noop", Restart: false},
		run: func(ctx context.Context, name string, args []string) error {
			calls.Add(1)
			return nil
		},
	}
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 launch, got %d", calls.Load())
	}
}

func TestRunWithoutRestartPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	l := &Launcher{
		spec: LaunchSpec{ExecutableName: "noop", Restart: false},
		run: func(ctx context.Context, name string, args []string) error {
			return wantErr
		},
	}
	if err := l.Run(context.Background()); err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestRunWithRestartKeepsRelaunchingUntilCanceled(t *testing.T) {
	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	l := &Launcher{
		spec: LaunchSpec{ExecutableName: "noop", Restart: true},
		run: func(ctx context.Context, name string, args []string) error {
			n := calls.Add(1)
			if n >= 3 {
				cancel()
			}
			return nil
		},
	}

	err := l.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 launches before cancellation, got %d", calls.Load())
	}
}

func TestRunWithRestartStopsOnCanceledContextEvenAfterError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := &Launcher{
		spec: LaunchSpec{ExecutableName: "noop", Restart: true},
		run: func(ctx context.Context, name string, args []string) error {
			return errors.New("boom")
		},
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context was already canceled")
	}
}
