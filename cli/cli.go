// Package cli holds the flags and setup shared by the flow commands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"syscall"

	"github.com/brimdata/flow/cli/logflags"
	"go.uber.org/zap"
)

// Version is set via the Go linker.
var Version string

type Flags struct {
	LogFlags    logflags.Flags
	showVersion bool
	profile     profiler
	logger      *zap.Logger
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.BoolVar(&f.showVersion, "version", false, "print version and exit")
	fs.StringVar(&f.profile.cpuPath, "cpuprofile", "", "write a CPU profile of the run to this file")
	fs.StringVar(&f.profile.memPath, "memprofile", "", "write an allocation profile to this file on exit")
	f.LogFlags.SetFlags(fs)
}

type Initializer interface {
	Init() error
}

// Init initializes all, opens the logger, starts profiling if requested,
// and returns a context canceled by SIGINT, SIGPIPE or SIGTERM together
// with its cleanup function.
func (f *Flags) Init(all ...Initializer) (context.Context, func(), error) {
	if f.showVersion {
		fmt.Printf("Version: %s\n", version())
		os.Exit(0)
	}
	for _, flags := range all {
		if err := flags.Init(); err != nil {
			return nil, nil, err
		}
	}
	logger, err := f.LogFlags.Open()
	if err != nil {
		return nil, nil, err
	}
	f.logger = logger
	f.profile.logger = logger
	if err := f.profile.start(); err != nil {
		return nil, nil, err
	}
	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGPIPE, syscall.SIGTERM)
	cleanup := func() {
		cancel()
		f.cleanup()
	}
	return &interruptedContext{ctx}, cleanup, nil
}

// Logger returns the logger opened by Init or a no-op logger before Init.
func (f *Flags) Logger() *zap.Logger {
	if f.logger == nil {
		return zap.NewNop()
	}
	return f.logger
}

func version() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		// "(devel)" for binaries not built by "go install PACKAGE@VERSION".
		return info.Main.Version
	}
	return "unknown"
}

type interruptedContext struct{ context.Context }

func (i *interruptedContext) Err() error {
	err := i.Context.Err()
	if errors.Is(err, context.Canceled) {
		return errors.New("interrupted")
	}
	return err
}

func (f *Flags) cleanup() {
	f.profile.stop()
	if f.logger != nil {
		f.logger.Sync()
	}
}

type profiler struct {
	cpuPath string
	memPath string
	cpuFile *os.File
	logger  *zap.Logger
}

func (p *profiler) start() error {
	if p.cpuPath == "" {
		return nil
	}
	f, err := os.Create(p.cpuPath)
	if err != nil {
		return err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}
	p.cpuFile = f
	return nil
}

func (p *profiler) stop() {
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		p.cpuFile = nil
	}
	if p.memPath != "" {
		if err := writeAllocs(p.memPath); err != nil {
			p.logger.Warn("Memory profile not written", zap.String("path", p.memPath), zap.Error(err))
		}
	}
}

func writeAllocs(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	runtime.GC()
	if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FileExists reports whether path names a regular file, with "-" standing
// for stdin.
func FileExists(path string) bool {
	if path == "-" {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
