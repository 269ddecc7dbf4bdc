package project

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cheribuild/internal/config"
	"cheribuild/internal/process"
	"cheribuild/internal/ui"
)

type testEnv struct {
	*Env
	out    *bytes.Buffer
	status *bytes.Buffer
}

func newEnv(t *testing.T, s config.Settings) testEnv {
	t.Helper()
	var out, status bytes.Buffer
	p := &ui.Printer{Out: &status, Err: &status, Quiet: s.Quiet, Verbose: s.Verbose}
	r := process.NewRunner(s, p)
	r.Out = &out
	r.Err = &out
	return testEnv{Env: &Env{Settings: s, Runner: r, Printer: p}, out: &out, status: &status}
}

func TestMakeCommand(t *testing.T) {
	tests := []struct {
		name     string
		settings config.Settings
		tool     string
		want     []string
	}{
		{"nice make", config.Settings{MakeJobs: 8}, "make", []string{"nice", "make", "-j8", "install"}},
		{"without nice", config.Settings{MakeJobs: 2, MakeWithoutNice: true}, "make", []string{"make", "-j2", "install"}},
		{"keep going make", config.Settings{MakeJobs: 4, PassKToMake: true, MakeWithoutNice: true}, "make", []string{"make", "-j4", "-k", "install"}},
		{"keep going ninja", config.Settings{MakeJobs: 4, PassKToMake: true}, "ninja", []string{"nice", "ninja", "-j4", "-k", "50", "install"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("x", &Env{Settings: tt.settings}, nil)
			assert.Equal(t, tt.want, makeCommand(p, tt.tool, nil, "install"))
		})
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("cmake version 3.20.1\n\nCMake suite maintained by Kitware")
	require.NoError(t, err)
	assert.Equal(t, "3.20.1", v.String())

	v, err = ParseVersion("GNU Make 4.3")
	require.NoError(t, err)
	assert.Equal(t, "4.3.0", v.String())

	_, err = ParseVersion("no digits here")
	require.Error(t, err)
}

func writeTool(t *testing.T, name, banner string) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\necho '" + banner + "'\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestRequiredTool(t *testing.T) {
	writeTool(t, "cheri-fake-cmake", "cmake version 3.10.2")
	env := newEnv(t, config.Settings{})

	err := RequiredTool{Name: "cheri-fake-cmake", MinVersion: "3.13.4", Hint: "upgrade cmake"}.Check(context.Background(), "llvm", env.Runner)
	var missing *MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "3.10.2", missing.Found)
	assert.Contains(t, err.Error(), "upgrade cmake")

	require.NoError(t, RequiredTool{Name: "cheri-fake-cmake", MinVersion: "3.4"}.Check(context.Background(), "llvm", env.Runner))

	err = RequiredTool{Name: "cheri-no-such-tool"}.Check(context.Background(), "qemu", env.Runner)
	require.ErrorAs(t, err, &missing)
	assert.Empty(t, missing.Found)
	assert.Contains(t, err.Error(), "qemu: required program cheri-no-such-tool is missing")
}

func TestMakeScriptInSourceTree(t *testing.T) {
	root := t.TempDir()
	makePy := filepath.Join(root, "src", "tools", "build", "make.py")
	m := &Make{Tool: makePy, InstallTargets: []string{"installworld"}}
	assert.Empty(t, m.Required())
	assert.Equal(t, []RequiredTool{{Name: "gmake"}}, (&Make{Tool: "gmake"}).Required())

	require.NoError(t, os.MkdirAll(filepath.Dir(makePy), 0o755))
	require.NoError(t, os.WriteFile(makePy, []byte("#!/bin/sh\necho \"make $*\"\n"), 0o755))
	env := newEnv(t, config.Settings{Quiet: true, MakeJobs: 1, MakeWithoutNice: true})
	p := New("cheribsd", env.Env, m)
	p.BuildDir = filepath.Join(root, "build")
	require.NoError(t, os.MkdirAll(p.BuildDir, 0o755))

	require.NoError(t, p.Compile(context.Background()))
	require.NoError(t, p.Install(context.Background()))
	buildLog, err := os.ReadFile(filepath.Join(p.BuildDir, "make.py.build.log"))
	require.NoError(t, err)
	assert.Contains(t, string(buildLog), "make -j1\n")
	installLog, err := os.ReadFile(filepath.Join(p.BuildDir, "make.py.install.log"))
	require.NoError(t, err)
	assert.Contains(t, string(installLog), "make -j1 installworld\n")
}

func scriptProject(t *testing.T, env *Env) (*Project, string) {
	t.Helper()
	root := t.TempDir()
	build := filepath.Join(root, "build")
	install := filepath.Join(root, "install")
	tool := &Script{
		Label: "sh",
		Setup: []Step{{Name: "configure", Argv: []string{"/bin/sh", "-c", "echo configured > state"}}},
		Build: []Step{
			{Name: "build", Argv: []string{"/bin/sh", "-c", "echo one"}},
			{Name: "build", Argv: []string{"/bin/sh", "-c", "echo two"}},
		},
		Deploy: []Step{{Name: "install", Argv: []string{"/bin/sh", "-c", "cp state " + install + "/state"}}},
		Configured: func(p *Project) bool {
			return exists(filepath.Join(p.BuildDir, "state"))
		},
	}
	p := New("script-project", env, tool)
	p.BuildDir = build
	p.InstallDir = install
	return p, root
}

func TestProjectLifecycle(t *testing.T) {
	env := newEnv(t, config.Settings{Quiet: true})
	p, root := scriptProject(t, env.Env)
	ctx := context.Background()

	assert.True(t, p.NeedsConfigure())
	require.NoError(t, p.Configure(ctx))
	assert.False(t, p.NeedsConfigure())
	require.NoError(t, p.Compile(ctx))
	require.NoError(t, p.Install(ctx))

	assert.FileExists(t, filepath.Join(root, "install", "state"))
	buildLog, err := os.ReadFile(filepath.Join(root, "build", "build.log"))
	require.NoError(t, err)
	assert.Contains(t, string(buildLog), "one\n")
	assert.Contains(t, string(buildLog), "two\n")

	require.NoError(t, p.Clean(ctx))
	entries, err := os.ReadDir(filepath.Join(root, "build"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.True(t, p.NeedsConfigure())
}

func TestProjectPretend(t *testing.T) {
	env := newEnv(t, config.Settings{Pretend: true})
	p, root := scriptProject(t, env.Env)
	ctx := context.Background()

	require.NoError(t, p.Configure(ctx))
	require.NoError(t, p.Compile(ctx))
	require.NoError(t, p.Install(ctx))
	require.NoError(t, p.Clean(ctx))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Contains(t, env.status.String(), "echo configured")
}

func TestCMakeNeedsConfigure(t *testing.T) {
	env := newEnv(t, config.Settings{})
	build := t.TempDir()
	tool := &CMake{BuildType: "Debug", Options: []string{"-DLLVM_ENABLE_PROJECTS=clang"}}
	p := New("llvm", env.Env, tool)
	p.SourceDir = "/src/llvm"
	p.BuildDir = build
	p.InstallDir = "/out/sdk"

	assert.Equal(t, []string{"cmake", "-G", "Ninja", "-DCMAKE_BUILD_TYPE=Debug", "-DCMAKE_INSTALL_PREFIX=/out/sdk",
		"-DLLVM_ENABLE_PROJECTS=clang", "/src/llvm"}, tool.ConfigureCommand(p))

	assert.True(t, p.NeedsConfigure())
	require.NoError(t, os.WriteFile(filepath.Join(build, "CMakeCache.txt"), nil, 0o644))
	assert.True(t, p.NeedsConfigure(), "no build.ninja yet")
	require.NoError(t, os.WriteFile(filepath.Join(build, "build.ninja"), nil, 0o644))
	assert.False(t, p.NeedsConfigure())

	stamp := configureFingerprint(tool.ConfigureCommand(p), nil)
	require.NoError(t, os.WriteFile(stampPath(build), []byte(stamp+"\n"), 0o644))
	assert.False(t, p.NeedsConfigure())

	tool.BuildType = "Release"
	assert.True(t, p.NeedsConfigure(), "changed configure command")
}

func TestAutotoolsCommand(t *testing.T) {
	tool := &Autotools{Options: []string{"--disable-werror"}}
	p := New("binutils", &Env{}, tool)
	p.SourceDir = "/src/binutils"
	p.BuildDir = "/build/binutils"
	p.InstallDir = "/out/sdk"
	assert.Equal(t, []string{"/src/binutils/configure", "--prefix=/out/sdk", "--disable-werror"}, tool.ConfigureCommand(p))
	assert.True(t, tool.NeedsConfigure(p))
}

func TestFingerprintStable(t *testing.T) {
	a := configureFingerprint([]string{"cmake", "x"}, map[string]string{"A": "1", "B": "2"})
	b := configureFingerprint([]string{"cmake", "x"}, map[string]string{"B": "2", "A": "1"})
	c := configureFingerprint([]string{"cmake", "x", ""}, map[string]string{"A": "1", "B": "2"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("cheri\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Now()}})
	require.NoError(t, err)
	return dir
}

func TestGitSyncPretend(t *testing.T) {
	env := newEnv(t, config.Settings{Pretend: true})
	missing := filepath.Join(t.TempDir(), "llvm")
	src := &GitSource{URL: "https://github.com/CTSRD-CHERI/llvm-project.git", Revision: "dev", Dir: missing}
	require.NoError(t, src.Sync(context.Background(), env.Env))
	assert.NoDirExists(t, missing)
	assert.Contains(t, env.status.String(), "git clone --branch dev")

	repoDir := initRepo(t)
	src = &GitSource{URL: "unused", Dir: repoDir}
	require.NoError(t, src.Sync(context.Background(), env.Env))
	assert.Contains(t, env.status.String(), "git pull --ff-only")
}

func TestGitSyncSkipsDirtyAndForeignDirs(t *testing.T) {
	env := newEnv(t, config.Settings{})
	repoDir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "README"), []byte("changed\n"), 0o644))

	src := &GitSource{URL: "unused", Dir: repoDir}
	require.NoError(t, src.Sync(context.Background(), env.Env))
	assert.Contains(t, env.status.String(), "local changes")

	plain := t.TempDir()
	src = &GitSource{Dir: plain}
	require.NoError(t, src.Sync(context.Background(), env.Env))
	assert.Contains(t, env.status.String(), "not a git repository")
}

func TestGitSyncMissingWithoutRepository(t *testing.T) {
	env := newEnv(t, config.Settings{Force: true})
	src := &GitSource{Dir: filepath.Join(t.TempDir(), "gone")}
	require.Error(t, src.Sync(context.Background(), env.Env))
}

func TestCleanGitBuildDirectory(t *testing.T) {
	env := newEnv(t, config.Settings{Pretend: true})
	repoDir := initRepo(t)
	p := New("in-source", env.Env, &Make{})
	p.BuildDir = repoDir
	require.NoError(t, p.Clean(context.Background()))
	assert.Contains(t, env.status.String(), "git clean -dfx")

	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "GNUmakefile"), nil, 0o644))
	require.NoError(t, p.Clean(context.Background()))
	assert.Contains(t, env.status.String(), "make distclean")
}

func TestOptions(t *testing.T) {
	s := config.NewStore()
	s.Warn = func(...any) {}
	s.Debugf = func(string, ...any) {}
	g := config.RegisterGlobals(s)
	DeclareOptions(s.Scope("llvm", ""), g, "llvm", "", OptionDefaults{
		Repository: "https://github.com/CTSRD-CHERI/llvm-project.git",
		Revision:   "dev",
		CMake:      true,
	})
	variant := s.Scope("cheribsd-riscv64", "cheribsd")
	DeclareOptions(s.Scope("cheribsd", ""), g, "cheribsd", "", OptionDefaults{Autotools: true})
	DeclareOptions(variant, g, "cheribsd", "riscv64", OptionDefaults{
		Autotools:  true,
		InstallDir: func(root, arch string) string { return filepath.Join(root, "rootfs-"+arch) },
	})
	require.NoError(t, s.Err())
	_, err := s.Load([]string{"--source-root", "/cheri", "--llvm/build-type", "Debug", "--cheribsd/configure-options", "-DX -DY"}, "")
	require.NoError(t, err)

	llvm, err := ResolveOptions(s.Scope("llvm", ""))
	require.NoError(t, err)
	assert.Equal(t, "/cheri/llvm", llvm.SourceDir)
	assert.Equal(t, "/cheri/build/llvm-build", llvm.BuildDir)
	assert.Equal(t, "/cheri/output/sdk", llvm.InstallDir)
	assert.Equal(t, "Debug", llvm.BuildType)
	assert.Equal(t, "dev", llvm.Revision)

	bsd, err := ResolveOptions(variant)
	require.NoError(t, err)
	assert.Equal(t, "/cheri/cheribsd", bsd.SourceDir)
	assert.Equal(t, "/cheri/build/cheribsd-riscv64-build", bsd.BuildDir)
	assert.Equal(t, "/cheri/output/rootfs-riscv64", bsd.InstallDir)
	assert.Equal(t, []string{"-DX", "-DY"}, bsd.ConfigureOptions)

	p := New("llvm", &Env{}, nil)
	llvm.Apply(p)
	require.NotNil(t, p.Source)
	assert.Equal(t, "/cheri/llvm", p.Source.Dir)
}
