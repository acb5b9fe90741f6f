package ztest

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ShellResult holds what a script wrote.
type ShellResult struct {
	Stdout string
	Stderr string
}

// RunShell runs script in dir with bindir ahead of the system directories on
// its PATH.  The script's environment holds HOME, PATH and whichever of
// passenv are set in the calling process.
func RunShell(ctx context.Context, dir Dir, bindir, script string, passenv ...string) (ShellResult, error) {
	cmd := shellCommand(ctx, script)
	cmd.Dir = dir.Path()
	cmd.Env = scriptEnv(dir, bindir, passenv)
	var stdout, stderr strings.Builder
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	err := cmd.Run()
	return ShellResult{Stdout: stdout.String(), Stderr: stderr.String()}, err
}

func shellCommand(ctx context.Context, script string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd.exe", "/c", script)
	}
	// Any failing command, including one inside a pipeline, fails the script.
	return exec.CommandContext(ctx, "bash", "-e", "-o", "pipefail", "-c", script)
}

func scriptEnv(dir Dir, bindir string, passenv []string) []string {
	path := "/bin:/usr/bin"
	if bindir != "" {
		path = bindir + string(os.PathListSeparator) + path
	}
	env := []string{"HOME=" + dir.Path(), "PATH=" + path}
	for _, name := range passenv {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}
