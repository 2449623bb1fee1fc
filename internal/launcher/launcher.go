// Package launcher implements the process-launcher JSON-blob protocol
// that the CLI entry point accepts on stdin: spawn one external
// process, optionally restarting it every time it exits, until the
// launcher's context is canceled. This is scaffolding for cmd/pbsclient,
// not transaction logic — no budget-consumption business logic lives
// here.
package launcher

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"

	"github.com/privacysandbox/pbs-client-go/internal/logging"
)

// LaunchSpec is the JSON blob describing the process to launch.
type LaunchSpec struct {
	ExecutableName  string   `json:"executable_name"`
	CommandLineArgs []string `json:"command_line_args"`
	Restart         bool     `json:"restart"`
}

// ParseLaunchSpec decodes a LaunchSpec from a JSON blob.
func ParseLaunchSpec(data []byte) (LaunchSpec, error) {
	var spec LaunchSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return LaunchSpec{}, err
	}
	return spec, nil
}

// runFunc executes one instance of the target process, blocking until
// it exits. Abstracted out so Launcher.Run's restart loop is testable
// without actually spawning a process.
type runFunc func(ctx context.Context, name string, args []string) error

// Launcher drives LaunchSpec's process (and, if Restart is set,
// restarts it on every exit) until its context is canceled.
type Launcher struct {
	spec LaunchSpec
	run  runFunc
}

// New constructs a Launcher that spawns real OS processes.
func New(spec LaunchSpec) *Launcher {
	return &Launcher{spec: spec, run: runProcess}
}

func runProcess(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Run executes the launcher's target process. If Restart is false, Run
// returns after the process exits (nil on a clean exit, the process's
// error otherwise). If Restart is true, Run keeps relaunching on every
// exit until ctx is canceled.
func (l *Launcher) Run(ctx context.Context) error {
	for {
		err := l.run(ctx, l.spec.ExecutableName, l.spec.CommandLineArgs)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			logging.Op().Warn("launched process exited with error",
				"executable", l.spec.ExecutableName, "error", err, "restart", l.spec.Restart)
			if !l.spec.Restart {
				return err
			}
			continue
		}

		if !l.spec.Restart {
			return nil
		}
		logging.Op().Info("launched process exited cleanly, restarting",
			"executable", l.spec.ExecutableName)
	}
}
