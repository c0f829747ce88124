package expand

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() Context {
	return Context{
		Project: "/work/proj",
		File:    "/work/proj/src/app.py",
		Home:    "/home/dev",
		LookupEnv: func(name string) (string, bool) {
			if name == "VIRTUAL_ENV" {
				return "/venvs/proj", true
			}
			return "", false
		},
	}
}

func TestExpand_Tokens(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"project", "${project}/source/", "/work/proj/source/"},
		{"directory", "${directory}/stubs", "/work/proj/src/stubs"},
		{"file", "--target=${file}", "--target=/work/proj/src/app.py"},
		{"home", "${home}/.config/flake8", "/home/dev/.config/flake8"},
		{"env set", "${env:VIRTUAL_ENV}/bin/flake8", "/venvs/proj/bin/flake8"},
		{"env unset", "${env:MISSING}/bin", "/bin"},
		{"multiple", "${project}:${home}", "/work/proj:/home/dev"},
		{"no tokens", "plain/path", "plain/path"},
		{"unknown token", "${bogus}/x", "${bogus}/x"},
		{"empty token", "${}/x", "${}/x"},
		{"unterminated", "a/${project", "a/${project"},
		{"escaped", "$${project}", "${project}"},
		{"escape then token", "$${x} ${home}", "${x} /home/dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ctx.Expand(tt.in))
		})
	}
}

func TestExpand_MissingContext(t *testing.T) {
	// Without a lint target, project/directory/file tokens must be left
	// verbatim rather than expanding to empty paths.
	ctx := Context{Home: "/home/dev"}

	assert.Equal(t, "${project}/src", ctx.Expand("${project}/src"))
	assert.Equal(t, "${directory}/x", ctx.Expand("${directory}/x"))
	assert.Equal(t, "${file}", ctx.Expand("${file}"))
	assert.Equal(t, "/home/dev", ctx.Expand("${home}"))
}

func TestExpand_NoRecursion(t *testing.T) {
	ctx := Context{
		Home: "/home/dev",
		LookupEnv: func(string) (string, bool) {
			return "${home}", true
		},
	}

	// The value produced by one token must not be re-scanned.
	assert.Equal(t, "${home}", ctx.Expand("${env:TRICKY}"))
}

func TestExpandAll(t *testing.T) {
	ctx := testContext()

	got := ctx.ExpandAll([]string{"${project}/a", "b", "${home}/c"})
	want := []string{"/work/proj/a", "b", "/home/dev/c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExpandAll mismatch (-want +got):\n%s", diff)
	}

	assert.Nil(t, ctx.ExpandAll(nil))
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "setup.cfg"), []byte("[flake8]\n"), 0644))

	got := FindProjectRoot(filepath.Join(root, "pkg", "sub"))
	assert.Equal(t, root, got)
}

func TestFindProjectRoot_NoMarker(t *testing.T) {
	dir := t.TempDir()
	// A bare temp dir has no marker anywhere up to /tmp; the walk may
	// still hit a marker in a parent on some machines, so nest deep and
	// only assert the result is not inside our empty tree.
	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0755))

	got := FindProjectRoot(sub)
	assert.NotEqual(t, sub, got)
	assert.NotEqual(t, filepath.Join(dir, "a"), got)
}

func TestNewContext(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	file := filepath.Join(src, "app.py")
	require.NoError(t, os.WriteFile(file, []byte("x = 1\n"), 0644))

	ctx := NewContext(file)
	assert.Equal(t, file, ctx.File)
	assert.Equal(t, root, ctx.Project)
	assert.NotEmpty(t, ctx.Home)
	assert.Equal(t, src, ctx.Expand("${directory}"))
}
