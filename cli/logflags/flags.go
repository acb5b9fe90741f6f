// Package logflags binds the logging configuration of the flow commands to
// command-line flags.
package logflags

import (
	"flag"
	"fmt"
	"strings"

	"github.com/brimdata/flow/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// LoggerNames lists the named loggers a Workspace creates.
var LoggerNames = []string{"interp", "kernels"}

type Flags struct {
	Config logger.Config
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	f.Config = logger.Config{
		Path:  "stderr",
		Mode:  logger.FileModeAppend,
		Level: zap.WarnLevel,
	}
	fs.StringVar(&f.Config.Path, "log.path", f.Config.Path, "where log entries go (stderr, stdout or a file path)")
	fs.Var(&f.Config.Mode, "log.filemode", "how a log file is written (append, truncate or rotate)")
	fs.TextVar(&f.Config.Level, "log.level", f.Config.Level, "lowest level logged")
	fs.Func("log.name", fmt.Sprintf("log only the named logger (%s)", strings.Join(LoggerNames, ", ")), func(s string) error {
		if s != "" && !slices.Contains(LoggerNames, s) {
			return fmt.Errorf("unknown logger %q", s)
		}
		f.Config.Name = s
		return nil
	})
	fs.BoolVar(&f.Config.DevMode, "log.devmode", false, "panic on DPanic level entries")
}

func (f *Flags) Open() (*zap.Logger, error) {
	return logger.New(f.Config)
}
