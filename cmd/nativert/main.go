package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"nativert/pkg/driver"
	"nativert/pkg/source"
	"nativert/pkg/value"
)

const historyFile = ".nativert_history"

func main() {
	exprFlag := flag.String("e", "", "Run the given expression and exit")
	configFlag := flag.String("config", "", "Load runtime tuning from a YAML file")
	decodeFlag := flag.String("decode", "", "Describe an encoded value given as hex bits and exit")
	verboseFlag := flag.Bool("v", false, "Log debug output to stderr")

	flag.Parse()

	level := slog.LevelWarn
	if *verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *decodeFlag != "" {
		os.Exit(decode(os.Stdout, *decodeFlag))
	}

	opts := driver.Options{
		ConfigPath: *configFlag,
		Logger:     logger,
		Argv:       append([]string{os.Args[0]}, flag.Args()...),
	}

	switch {
	case *exprFlag != "":
		os.Exit(runExpression(opts, *exprFlag))
	case flag.NArg() >= 1:
		os.Exit(runFile(opts, flag.Arg(0)))
	default:
		os.Exit(runRepl(opts))
	}
}

func newRuntime(opts driver.Options) (*driver.Runtime, bool) {
	rt, err := driver.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start runtime: %s\n", err)
		return nil, false
	}
	return rt, true
}

// decode prints what an encoded value stands for. Heap references are
// reported without contents since no heap is attached.
func decode(w io.Writer, bits string) int {
	n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(bits), "0x"), 16, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Usage: nativert -decode <hex bits>: %s\n", err)
		return 64 // command line usage error
	}
	v := value.FromBits(n)
	fmt.Fprintf(w, "%#016x %s %v\n", n, v.Kind(), value.Decode(v))
	return 0
}

func runExpression(opts driver.Options, expr string) int {
	rt, ok := newRuntime(opts)
	if !ok {
		return 70
	}
	defer rt.Close()

	v, err := rt.RunString(expr)
	if err == nil {
		err = drive(rt)
	}
	if !rt.DisplayResult(os.Stdout, v, err) {
		return 70 // internal software error
	}
	return 0
}

func runFile(opts driver.Options, filename string) int {
	if abs, err := filepath.Abs(filename); err == nil {
		filename = abs
	}
	rt, ok := newRuntime(opts)
	if !ok {
		return 70
	}
	defer rt.Close()

	_, err := rt.RunModule(filename)
	if err == nil {
		err = drive(rt)
	}
	if err != nil {
		rt.DisplayResult(os.Stderr, value.Undefined, err)
		return 70
	}
	return 0
}

// drive runs pending timers and async work until the program is idle or
// interrupted.
func drive(rt *driver.Runtime) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rt.Run(ctx)
}

func runRepl(opts driver.Options) int {
	fmt.Println("nativert (:quit or Ctrl+D to exit)")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	rt, ok := newRuntime(opts)
	if !ok {
		return 70
	}
	defer rt.Close()

	for {
		line, err := ln.Prompt("> ")
		if err != nil {
			if err != io.EOF && err != liner.ErrPromptAborted {
				fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			}
			fmt.Println()
			return 0
		}
		code := strings.TrimSpace(line)
		if code == "" {
			continue
		}
		ln.AppendHistory(line)

		if strings.HasPrefix(code, ":") {
			if quit := replCommand(rt, code); quit {
				return 0
			}
			continue
		}

		v, err := rt.RunSource(source.NewReplSource(line))
		rt.DisplayResult(os.Stdout, v, err)
	}
}

// replCommand handles a ":" command and reports whether the REPL should exit.
func replCommand(rt *driver.Runtime, code string) bool {
	fields := strings.Fields(code)
	switch fields[0] {
	case ":quit", ":q":
		return true
	case ":decode":
		if len(fields) != 2 {
			fmt.Println("usage: :decode <hex bits>")
			return false
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(fields[1]), "0x"), 16, 64)
		if err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Println(rt.Heap().Inspect(value.FromBits(n)))
	case ":handles":
		fmt.Printf("%d live handles, %d heap cells\n", rt.Bridge().Len(), rt.Heap().Live())
	case ":natives":
		fmt.Println(strings.Join(rt.Natives(), " "))
	case ":run":
		if err := drive(rt); err != nil {
			fmt.Println(err)
		}
	default:
		fmt.Println("commands: :decode <hex>, :handles, :natives, :run, :quit")
	}
	return false
}
