package ztest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

func TestShouldSkip(t *testing.T) {
	assert.Equal(t, "script test on in-process run", (&ZTest{Script: "x"}).ShouldSkip(""))
	assert.Equal(t, "reason", (&ZTest{Skip: "reason"}).ShouldSkip(""))
	assert.Equal(t, `tag "x" does not match ZTEST_TAG=""`, (&ZTest{Tag: "x"}).ShouldSkip(""))
}

func TestRunScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows because RunScript uses cmd.exe instead of bash")
	}
	t.Run("outputs", func(t *testing.T) {
		testDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(testDir, "testdirfile"), []byte("testdirfile\n"), 0644))
		strptr := func(s string) *string { return &s }
		err := (&ZTest{
			Script: `
				echo stdout
				echo stderr >&2
				touch empty
				echo notempty > notempty
				echo regexp > regexp
				echo testdirfile > testdirfile
				echo testdirfile > testdirfile2
				`,
			Outputs: []File{
				{Name: "stdout", Data: strptr("stdout\n")},
				{Name: "stderr", Data: strptr("stderr\n")},
				{Name: "empty", Data: strptr("")},
				{Name: "notempty", Data: strptr("notempty\n")},
				{Name: "regexp", Re: "^re"},
				{Name: "testdirfile"},
				{Name: "testdirfile2", Source: "testdirfile"},
			},
		}).RunScript("", testDir, t.TempDir())
		assert.NoError(t, err)
	})
	t.Run("error", func(t *testing.T) {
		err := (&ZTest{
			Script:  "echo 1; echo 2 >&2; exit 3",
			Outputs: []File{},
		}).RunScript("", "", "")
		assert.EqualError(t, err, "script failed: exit status 3\n=== stdout ===\n1\n=== stderr ===\n2\n")
	})
}

func TestRunInternal(t *testing.T) {
	zt := &ZTest{
		Flow:     "f1 = a + b\nf2 = f1 * f1\n",
		Expected: Values{9, 16, 25},
	}
	d := yaml.NewDecoder(strings.NewReader("a: [1, 2, 3]\nb: 2\n"))
	require.NoError(t, d.Decode(&zt.Sources))
	assert.NoError(t, zt.RunInternal(context.Background()))

	zt.Expected = Values{9, 16, 26}
	err := zt.RunInternal(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "-26\n+25\n")

	zt.Expected = nil
	zt.Flow = "f1 = a + c\n"
	zt.Error = "unknown"
	err = zt.RunInternal(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interp error mismatch")
}

func TestFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, s string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(s), 0644))
		return path
	}
	zt, err := FromYAMLFile(write("ok.yaml", "flow: y = neg(x)\nsources: {x: [1, .nan]}\nexpected: [-1, .nan]\n"))
	require.NoError(t, err)
	assert.NoError(t, zt.RunInternal(context.Background()))

	_, err = FromYAMLFile(write("both.yaml", "flow: y = x\nscript: echo\n"))
	assert.EqualError(t, err, "test has both flow and script")
	_, err = FromYAMLFile(write("neither.yaml", "flow: y = x\n"))
	assert.EqualError(t, err, "test must have exactly one of expected and error")
	_, err = FromYAMLFile(write("backend.yaml", "flow: y = x\nexpected: [1]\nbackends: gpu\n"))
	assert.ErrorContains(t, err, `unknown backend "gpu"`)
	_, err = FromYAMLFile(write("field.yaml", "flow: y = x\nexpect: [1]\n"))
	assert.Error(t, err)
}
