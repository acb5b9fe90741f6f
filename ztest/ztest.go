// Package ztest runs flow programs described in YAML files and checks that
// the interpreter and the fused kernel both produce the expected output.
//
// A test file looks like
//
//	flow: |
//	  f1 = a + b
//	  f2 = f1 * f1
//	sources:
//	  a: [1, 2, 3]
//	  b: 2
//	output: f2          # optional, default is the last statement
//	shape: [3]          # optional declared output shape
//	backends: fuse      # optional, default "interp fuse"
//	expected: [9, 16, 25]
//	kernel: |           # optional, the generated kernel source
//	  ...
//
// A test may instead give an "error" that every backend must report, in
// which case "expected" is omitted.  The sources use the notation of
// "flow run -sources".
//
// A test with a "script" runs a bash script with the flow command on its
// PATH and compares the files in "outputs" after it finishes.  Script tests
// run only when the ZTEST_PATH environment variable names the directory
// holding the flow command.
//
// Run(t, dirname) runs every .yaml file in dirname as a subtest.  Tests
// whose "tag" differs from the ZTEST_TAG environment variable are skipped.
package ztest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/brimdata/flow/cli/sourceflags"
	"github.com/brimdata/flow/compiler"
	"github.com/brimdata/flow/vector"
	"github.com/brimdata/flow/workspace"
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Tolerance is the largest difference allowed between an output element
// and the expected value, relative to the magnitude of the expected value
// when it exceeds one.
const Tolerance = 1e-6

type Bundle struct {
	TestName string
	FileName string
	Test     *ZTest
	Error    error
}

// Load reads every .yaml file in dirname.
func Load(dirname string) ([]Bundle, error) {
	entries, err := os.ReadDir(dirname)
	if err != nil {
		return nil, err
	}
	var bundles []Bundle
	for _, e := range entries {
		filename := e.Name()
		testname, ok := strings.CutSuffix(filename, ".yaml")
		if !ok || e.IsDir() {
			continue
		}
		filename = filepath.Join(dirname, filename)
		zt, err := FromYAMLFile(filename)
		bundles = append(bundles, Bundle{testname, filename, zt, err})
	}
	return bundles, nil
}

// ShellPath returns the directory holding the flow command for script
// tests, or the empty string if script tests are disabled.
func ShellPath() string {
	return os.Getenv("ZTEST_PATH")
}

// Run runs the tests in dirname, each as a subtest of t.
func Run(t *testing.T, dirname string) {
	bundles, err := Load(dirname)
	if err != nil {
		t.Fatal(err)
	}
	shellPath := ShellPath()
	for _, b := range bundles {
		b := b
		t.Run(b.TestName, func(t *testing.T) {
			t.Parallel()
			if b.Error != nil {
				t.Fatalf("%s: %s", b.FileName, b.Error)
			}
			zt := b.Test
			if msg := zt.ShouldSkip(shellPath); msg != "" {
				t.Skip("skipping test:", msg)
			}
			var err error
			if zt.Script != "" {
				err = zt.RunScript(shellPath, filepath.Dir(b.FileName), t.TempDir())
			} else {
				err = zt.RunInternal(context.Background())
			}
			if err != nil {
				t.Fatalf("%s: %s", b.FileName, err)
			}
		})
	}
}

type File struct {
	// Name is the name of the file with respect to the directory in which
	// the test script runs.
	Name string `yaml:"name"`
	// If Data is nil, the contents are read from Source, a file in the
	// test's directory named Name if Source is empty.
	Data   *string `yaml:"data,omitempty"`
	Source string  `yaml:"source,omitempty"`
	// Re is a regular expression the output file must match instead of
	// Data.
	Re string `yaml:"re,omitempty"`
}

func (f *File) load(dir string) ([]byte, *regexp.Regexp, error) {
	if f.Data != nil {
		return []byte(*f.Data), nil, nil
	}
	if f.Re != "" {
		re, err := regexp.Compile(f.Re)
		return nil, re, err
	}
	source := f.Source
	if source == "" {
		source = f.Name
	}
	b, err := os.ReadFile(filepath.Join(dir, source))
	return b, nil, err
}

// Values is a list of expected output values.  NaN and the infinities are
// written .nan, .inf and -.inf.
type Values []float64

type ZTest struct {
	Flow     string                       `yaml:"flow,omitempty"`
	Sources  map[string]sourceflags.Value `yaml:"sources,omitempty"`
	Output   string                       `yaml:"output,omitempty"`
	Shape    vector.Shape                 `yaml:"shape,omitempty,flow"`
	Dedup    bool                         `yaml:"dedup,omitempty"`
	Backends string                       `yaml:"backends,omitempty"`
	Expected Values                       `yaml:"expected,omitempty,flow"`
	Kernel   string                       `yaml:"kernel,omitempty"`
	Error    string                       `yaml:"error,omitempty"`
	Skip     string                       `yaml:"skip,omitempty"`
	Tag      string                       `yaml:"tag,omitempty"`

	// For script-based tests.
	Script  string `yaml:"script,omitempty"`
	Outputs []File `yaml:"outputs,omitempty"`
}

func FromYAMLFile(filename string) (*ZTest, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	d := yaml.NewDecoder(strings.NewReader(string(b)))
	d.KnownFields(true)
	var z ZTest
	if err := d.Decode(&z); err != nil {
		return nil, err
	}
	if err := z.check(); err != nil {
		return nil, err
	}
	return &z, nil
}

func (z *ZTest) check() error {
	if z.Script != "" {
		if z.Flow != "" {
			return errors.New("test has both flow and script")
		}
		return nil
	}
	if z.Flow == "" {
		return errors.New("test has neither flow nor script")
	}
	if (z.Error == "") == (z.Expected == nil) {
		return errors.New("test must have exactly one of expected and error")
	}
	_, err := z.backends()
	return err
}

// ShouldSkip returns a non-empty reason if the test should be skipped.
func (z *ZTest) ShouldSkip(path string) string {
	switch {
	case z.Script != "" && path == "":
		return "script test on in-process run"
	case z.Skip != "":
		return z.Skip
	case z.Tag != os.Getenv("ZTEST_TAG"):
		return fmt.Sprintf("tag %q does not match ZTEST_TAG=%q", z.Tag, os.Getenv("ZTEST_TAG"))
	}
	return ""
}

func (z *ZTest) backends() ([]workspace.Backend, error) {
	names := strings.Fields(z.Backends)
	if len(names) == 0 {
		return []workspace.Backend{workspace.Interpret, workspace.Fuse}, nil
	}
	var backends []workspace.Backend
	for _, name := range names {
		b, err := workspace.ParseBackend(name)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return backends, nil
}

// RunInternal runs the test on each of its backends and returns every
// mismatch it finds.
func (z *ZTest) RunInternal(ctx context.Context) error {
	backends, err := z.backends()
	if err != nil {
		return err
	}
	ws, err := workspace.New(nil)
	if err != nil {
		return err
	}
	var errs error
	for _, backend := range backends {
		out, kernel, err := z.run(ctx, ws, backend)
		if z.Error != "" {
			multierr.AppendInto(&errs, checkError(backend, z.Error, err))
			continue
		}
		if err != nil {
			multierr.AppendInto(&errs, fmt.Errorf("%s: %w", backend, err))
			continue
		}
		if !z.matches(out.Values) {
			multierr.AppendInto(&errs, diffErr(backend.String()+" output", formatValues(z.Expected), formatValues(out.Values)))
		}
		if z.Kernel != "" && backend == workspace.Fuse && kernel != z.Kernel {
			multierr.AppendInto(&errs, diffErr("kernel", z.Kernel, kernel))
		}
	}
	return errs
}

func (z *ZTest) run(ctx context.Context, ws *workspace.Workspace, backend workspace.Backend) (*vector.Array, string, error) {
	kctx, err := ws.NewContext(backend.String(), backend)
	if err != nil {
		return nil, "", err
	}
	kctx.Start()
	bindings := sourceflags.Bindings{Sources: z.Sources}
	if err := bindings.Add(kctx); err != nil {
		return nil, "", err
	}
	var opts []compiler.Option
	if z.Output != "" {
		opts = append(opts, compiler.WithOutput(z.Output))
	}
	if z.Dedup {
		opts = append(opts, compiler.WithDedup())
	}
	res, err := compiler.Compile(z.Flow, kctx, opts...)
	if err != nil {
		return nil, "", err
	}
	if err := kctx.SetOutput(res.Output); err != nil {
		return nil, "", err
	}
	if z.Shape != nil {
		if err := kctx.SetOutputShape(z.Shape); err != nil {
			return nil, "", err
		}
	}
	kernel, err := kctx.Compile(ctx)
	if err != nil {
		return nil, "", err
	}
	out, err := kctx.Run(ctx)
	return out, kernel, err
}

func (z *ZTest) matches(values []float64) bool {
	if len(values) != len(z.Expected) {
		return false
	}
	for k, want := range z.Expected {
		got := values[k]
		switch {
		case math.IsNaN(want):
			if !math.IsNaN(got) {
				return false
			}
		case math.IsInf(want, 0):
			if got != want {
				return false
			}
		case math.Abs(got-want) > Tolerance*math.Max(1, math.Abs(want)):
			return false
		}
	}
	return true
}

func checkError(backend workspace.Backend, expected string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: expected error %q, got none", backend, expected)
	}
	expected = strings.TrimSpace(expected)
	if got := strings.TrimSpace(err.Error()); got != expected {
		return diffErr(backend.String()+" error", expected+"\n", got+"\n")
	}
	return nil
}

func formatValues(values []float64) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		b.WriteByte('\n')
	}
	return b.String()
}

func diffErr(name, expected, actual string) error {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		FromFile: "expected",
		B:        difflib.SplitLines(actual),
		ToFile:   "actual",
		Context:  5,
	})
	if err != nil {
		return err
	}
	return fmt.Errorf("%s mismatch:\n%s", name, diff)
}

// RunScript runs the test's script in a fresh directory under tempDir and
// checks its outputs.  shellPath is added to the script's PATH and testDir
// is where output files without data are read from.
func (z *ZTest) RunScript(shellPath, testDir, tempDir string) error {
	dir := Dir(tempDir)
	res, err := RunShell(context.Background(), dir, shellPath, z.Script, "ZTEST_TAG")
	if err != nil {
		return fmt.Errorf("script failed: %w\n=== stdout ===\n%s=== stderr ===\n%s", err, res.Stdout, res.Stderr)
	}
	var errs error
	for _, f := range z.Outputs {
		var actual string
		switch f.Name {
		case "stdout":
			actual = res.Stdout
		case "stderr":
			actual = res.Stderr
		default:
			b, err := dir.Read(f.Name)
			if err != nil {
				multierr.AppendInto(&errs, err)
				continue
			}
			actual = string(b)
		}
		expected, re, err := f.load(testDir)
		if err != nil {
			multierr.AppendInto(&errs, err)
			continue
		}
		if re != nil {
			if !re.MatchString(actual) {
				multierr.AppendInto(&errs, fmt.Errorf("%s: %q does not match %q", f.Name, actual, re))
			}
			continue
		}
		if actual != string(expected) {
			multierr.AppendInto(&errs, diffErr(f.Name, string(expected), actual))
		}
	}
	return errs
}
