package projects

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cheribuild/internal/archive"
	"cheribuild/internal/config"
	"cheribuild/internal/process"
	"cheribuild/internal/project"
	"cheribuild/internal/target"
	"cheribuild/internal/ui"
)

type fixture struct {
	graph *target.Graph
	store *config.Store
	cat   *Catalogue
	out   *bytes.Buffer
}

func newFixture(t *testing.T, argv ...string) *fixture {
	t.Helper()
	s := config.NewStore()
	s.Warn = func(...any) {}
	s.Debugf = func(string, ...any) {}
	globals := config.RegisterGlobals(s)
	g := target.NewGraph()
	cat := New(globals)
	require.NoError(t, cat.Register(g))
	require.NoError(t, g.DeclareOptions(s))

	root := t.TempDir()
	argv = append([]string{"--source-root", root}, argv...)
	_, err := s.Load(argv, "")
	require.NoError(t, err)
	settings, err := globals.Resolve(s)
	require.NoError(t, err)

	var out bytes.Buffer
	p := &ui.Printer{Out: &out, Err: &out}
	r := process.NewRunner(settings, p)
	r.Out, r.Err = &out, &out
	cat.Env = &project.Env{Settings: settings, Runner: r, Printer: p}
	return &fixture{graph: g, store: s, cat: cat, out: &out}
}

func (f *fixture) unit(t *testing.T, name string) *project.Project {
	t.Helper()
	tgt, ok := f.graph.Lookup(name)
	require.True(t, ok, name)
	u, err := tgt.NewUnit(f.store)
	require.NoError(t, err)
	p, ok := u.(*project.Project)
	require.True(t, ok)
	return p
}

func TestCatalogueNames(t *testing.T) {
	f := newFixture(t)
	names := f.graph.Names()
	for _, want := range []string{
		"llvm", "llvm-native", "qemu", "cheribsd", "cheribsd-riscv64-purecap", "cheribsd-morello-purecap",
		"newlib-riscv64-purecap", "compiler-rt-morello-purecap", "gdb-native", "sdk", "disk-image-aarch64",
		"run-riscv64", "all", "freestanding-sdk", "cheri-compressed-cap", "binutils-native",
	} {
		assert.Contains(t, names, want)
	}
}

func TestPlanAll(t *testing.T) {
	f := newFixture(t)
	plan, err := f.graph.Plan([]string{"all"}, false, f.store)
	require.NoError(t, err)
	names := plan.Names()
	index := func(name string) int {
		i := slices.Index(names, name)
		require.GreaterOrEqual(t, i, 0, name)
		return i
	}
	assert.Less(t, index("llvm-native"), index("cheribsd-riscv64-purecap"))
	assert.Less(t, index("cheribsd-riscv64-purecap"), index("sdk"))
	assert.Less(t, index("cheribsd-riscv64-purecap"), index("disk-image-riscv64-purecap"))
	index("qemu")
	assert.NotContains(t, names, "cheribsd-morello-purecap")
}

func TestVariantDependencies(t *testing.T) {
	f := newFixture(t)
	gdb, _ := f.graph.Lookup("gdb-morello-purecap")
	deps, err := f.graph.ResolveDependencies(gdb, f.store)
	require.NoError(t, err)
	assert.Equal(t, []string{"llvm-native", "cheribsd-morello-purecap"}, deps)

	native, _ := f.graph.Lookup("gdb")
	deps, err = f.graph.ResolveDependencies(native, f.store)
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestRunDependsOnConfig(t *testing.T) {
	f := newFixture(t, "--run/skip-disk-image")
	run, _ := f.graph.Lookup("run-morello-purecap")
	deps, err := f.graph.ResolveDependencies(run, f.store)
	require.NoError(t, err)
	assert.Equal(t, []string{"qemu"}, deps)

	f = newFixture(t)
	run, _ = f.graph.Lookup("run")
	deps, err = f.graph.ResolveDependencies(run, f.store)
	require.NoError(t, err)
	assert.Equal(t, []string{"qemu", "disk-image-riscv64-purecap"}, deps)
}

func TestLLVMConfigureCommand(t *testing.T) {
	f := newFixture(t, "--llvm/build-lldb", "--llvm/cmake-options=-DLLVM_PARALLEL_LINK_JOBS=2")
	p := f.unit(t, "llvm")
	argv := p.Tool.ConfigureCommand(p)
	assert.Contains(t, argv, "-DLLVM_ENABLE_PROJECTS=clang;lld;lldb")
	assert.Contains(t, argv, "-DLLVM_PARALLEL_LINK_JOBS=2")
	assert.Contains(t, argv, "-DCMAKE_BUILD_TYPE=Release")
	assert.Equal(t, filepath.Join(p.SourceDir, "llvm"), argv[len(argv)-1])
	assert.Equal(t, "llvm-project", filepath.Base(p.SourceDir))
	assert.Equal(t, "llvm-native-build", filepath.Base(p.BuildDir))
	require.NotNil(t, p.Source)
	assert.Equal(t, githubBase+"llvm-project.git", p.Source.URL)
}

func TestVariantInheritsAliasOptions(t *testing.T) {
	f := newFixture(t, "--cheribsd/kernel-config", "CHERI-QEMU-NODEBUG")
	p := f.unit(t, "cheribsd-morello-purecap")
	tool, ok := p.Tool.(*project.Make)
	require.True(t, ok)
	assert.Contains(t, tool.Args, "KERNCONF=CHERI-QEMU-NODEBUG")
	assert.Contains(t, tool.Args, "TARGET_ARCH=aarch64c")
	assert.Equal(t, "rootfs-morello-purecap", filepath.Base(p.InstallDir))
	assert.Equal(t, p.BuildDir, p.CommandEnv["MAKEOBJDIRPREFIX"])

	p = f.unit(t, "cheribsd-riscv64")
	tool = p.Tool.(*project.Make)
	assert.Contains(t, tool.Args, "KERNCONF=CHERI-QEMU-NODEBUG")
	assert.Equal(t, []string{"buildworld", "buildkernel"}, tool.CompileTargets)
}

func TestCheriBSDNeedsNoCheckoutToCheck(t *testing.T) {
	f := newFixture(t)
	p := f.unit(t, "cheribsd-riscv64-purecap")
	assert.Empty(t, p.Tool.Required())
	assert.Equal(t, []project.RequiredTool{{Name: "python3"}}, p.Required)
	assert.NoDirExists(t, p.SourceDir)
}

func TestNewlibEnvironment(t *testing.T) {
	f := newFixture(t)
	p := f.unit(t, "newlib-riscv64-purecap")
	assert.Contains(t, p.CommandEnv["CC_FOR_TARGET"], "--target=riscv64-unknown-elf")
	assert.True(t, strings.HasSuffix(p.InstallDir, filepath.Join("baremetal", "riscv64-purecap")), p.InstallDir)
	argv := p.Tool.ConfigureCommand(p)
	assert.Contains(t, argv, "--target=riscv64-unknown-elf")
}

func TestPseudoTargetsHaveNoUnit(t *testing.T) {
	f := newFixture(t)
	all, _ := f.graph.Lookup("all")
	u, err := all.NewUnit(f.store)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestFactoryWithoutEnvironment(t *testing.T) {
	f := newFixture(t)
	f.cat.Env = nil
	tgt, _ := f.graph.Lookup("qemu")
	_, err := tgt.NewUnit(f.store)
	assert.ErrorIs(t, err, errNoEnv)
}

func TestSDKArchive(t *testing.T) {
	out := t.TempDir()
	f := newFixture(t, "--output-root", out)
	sysroot := filepath.Join(out, "sdk", "sysroot")
	require.NoError(t, os.MkdirAll(filepath.Join(sysroot, "usr", "include"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sysroot, "usr", "include", "stdio.h"), []byte("int printf();\n"), 0o644))

	p := f.unit(t, "sdk")
	require.NoError(t, p.Tool.Install(context.Background(), p))

	entries, err := archive.List(filepath.Join(out, "cheri-sysroot.tar.gz"))
	require.NoError(t, err)
	assert.Contains(t, entries, "usr/include/stdio.h")
	assert.Contains(t, f.out.String(), "entries")
}

func TestSDKArchivePretend(t *testing.T) {
	out := t.TempDir()
	f := newFixture(t, "--pretend", "--output-root", out)
	p := f.unit(t, "sdk")
	require.NoError(t, p.Tool.Install(context.Background(), p))
	assert.NoFileExists(t, filepath.Join(out, "cheri-sysroot.tar.gz"))
	assert.Contains(t, f.out.String(), "cheri-sysroot.tar.gz")
}

func TestSDKRejectsUnknownArchiveFormat(t *testing.T) {
	f := newFixture(t, "--sdk/archive", "/tmp/sysroot.zip")
	tgt, _ := f.graph.Lookup("sdk")
	_, err := tgt.NewUnit(f.store)
	assert.Error(t, err)
}
