package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"harmonium/internal/control"
)

// ============================================================================
// harmonium-ctl - Command-line control socket client
// ============================================================================
// Sends events to a running harmonium over its control socket.
//
// Usage:
//   harmonium-ctl press a
//   harmonium-ctl tap a 500
//   harmonium-ctl set gamma 1.5
//   harmonium-ctl gain 1.2
//   harmonium-ctl stop
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/harmonium.sock)
// ============================================================================

const defaultSocketPath = "/tmp/harmonium.sock"

// step is one event to send, followed by an optional pause.
type step struct {
	ev    control.Event
	pause time.Duration
}

func main() {
	socketPath := defaultSocketPath

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	}

	steps, err := parseCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	for _, s := range steps {
		if err := control.Send(socketPath, s.ev); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		time.Sleep(s.pause)
	}

	fmt.Println("ok")
}

func parseCommand(args []string) ([]step, error) {
	need := func(n int, what string) error {
		if len(args) < n+1 {
			return fmt.Errorf("%s requires %s", args[0], what)
		}
		return nil
	}

	switch args[0] {
	case "press", "down":
		if err := need(1, "a key"); err != nil {
			return nil, err
		}
		return []step{{ev: control.KeyDown{Key: args[1]}}}, nil

	case "release", "up":
		if err := need(1, "a key"); err != nil {
			return nil, err
		}
		return []step{{ev: control.KeyUp{Key: args[1]}}}, nil

	case "tap":
		if err := need(1, "a key"); err != nil {
			return nil, err
		}
		hold := 300 * time.Millisecond
		if len(args) > 2 {
			ms, err := strconv.Atoi(args[2])
			if err != nil || ms < 0 {
				return nil, fmt.Errorf("invalid hold time: %q", args[2])
			}
			hold = time.Duration(ms) * time.Millisecond
		}
		return []step{
			{ev: control.KeyDown{Key: args[1]}, pause: hold},
			{ev: control.KeyUp{Key: args[1]}},
		}, nil

	case "set":
		if err := need(2, "a parameter and a value"); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value: %v", err)
		}
		var ev control.SetParams
		switch args[1] {
		case "deadzone":
			ev.DeadzoneDegPerS = &v
		case "max", "max-speed":
			ev.MaxDegPerS = &v
		case "gamma":
			ev.Gamma = &v
		case "alpha", "ema-alpha":
			ev.EMAAlpha = &v
		case "attack":
			ev.AttackMS = &v
		case "release":
			ev.ReleaseMS = &v
		default:
			return nil, fmt.Errorf("unknown parameter: %s", args[1])
		}
		return []step{{ev: ev}}, nil

	case "gain":
		if err := need(1, "a value"); err != nil {
			return nil, err
		}
		g, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid gain: %v", err)
		}
		return []step{{ev: control.SetMasterGain{Gain: g}}}, nil

	case "reset":
		return []step{{ev: control.ResetBellows{}}}, nil

	case "reload":
		ev := control.ReloadKeymap{}
		if len(args) > 1 {
			ev.Path = args[1]
		}
		return []step{{ev: ev}}, nil

	case "stop", "stop-all", "panic":
		return []step{{ev: control.StopAll{}}}, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `harmonium-ctl - Control a running harmonium via its control socket

Usage:
  harmonium-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/harmonium.sock)

Commands:
  press, down <key>         Press a key
  release, up <key>         Release a key
  tap <key> [ms]            Press, hold (default 300ms) and release a key
  set <param> <value>       Set a bellows parameter:
                            deadzone, max, gamma, alpha, attack, release
  gain <value>              Set master gain (0 to 2)
  reset                     Reset bellows calibration
  reload [path]             Reload the key map (optionally from another file)
  stop, panic               Stop all notes
  help, -h, --help          Show this help message

Examples:
  harmonium-ctl tap a 1000
  harmonium-ctl set attack 120
  harmonium-ctl -socket /run/harmonium.sock stop
`)
}
