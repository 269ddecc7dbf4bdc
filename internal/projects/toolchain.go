package projects

import (
	"fmt"
	"path/filepath"
	"strings"

	"cheribuild/internal/config"
	"cheribuild/internal/project"
	"cheribuild/internal/target"
)

// scoped reads the per-target option name of t.
func scoped[T any](t *target.Target, name string) (T, error) {
	var zero T
	h, ok := t.Scope().Get(name)
	if !ok {
		return zero, fmt.Errorf("%s: no option %q", t.Name, name)
	}
	return config.Value[T](t.Scope().Store(), h)
}

func baremetalInstallDir(outputRoot, arch string) string {
	if arch == "" {
		return filepath.Join(outputRoot, "baremetal")
	}
	return filepath.Join(outputRoot, "baremetal", arch)
}

func (c *Catalogue) toolchain() []target.Descriptor {
	return []target.Descriptor{
		{
			Name:          "llvm",
			Help:          "The CHERI LLVM compiler (clang, lld and the LLVM tools)",
			Architectures: []target.Arch{target.Native},
			Options: c.options("llvm", project.OptionDefaults{
				Repository:   githubBase + "llvm-project.git",
				Revision:     "dev",
				SourceSubdir: "llvm-project",
				CMake:        true,
			}, func(sc *config.Scope, _ target.Arch) {
				sc.AddBool("build-lldb", "Also build LLDB")
				sc.AddString("targets", "AArch64;RISCV;X86", "LLVM_TARGETS_TO_BUILD")
			}),
			Factory: c.newLLVM,
		},
		{
			Name: "cheri-compressed-cap",
			Help: "Library for encoding and decoding compressed capabilities",
			Options: c.options("cheri-compressed-cap", project.OptionDefaults{
				Repository: githubBase + "cheri-compressed-cap.git",
				CMake:      true,
				BuildType:  "Debug",
			}),
			Factory: func(t *target.Target, s *config.Store) (project.Unit, error) {
				o, err := c.resolve(t)
				if err != nil {
					return nil, err
				}
				tool := &project.CMake{BuildType: o.BuildType, Options: o.CMakeOptions}
				return c.newProject(t, o, tool), nil
			},
		},
		{
			Name: "qemu",
			Help: "QEMU with CHERI support",
			Options: c.options("qemu", project.OptionDefaults{
				Repository: githubBase + "qemu.git",
				Revision:   "qemu-cheri",
				Autotools:  true,
			}),
			Factory: c.newQEMU,
		},
		{
			Name:          "binutils",
			Help:          "GNU binutils for inspecting CHERI binaries",
			Architectures: []target.Arch{target.Native},
			Options: c.options("binutils", project.OptionDefaults{
				Repository: githubBase + "binutils.git",
				Revision:   "cheribsd",
				Autotools:  true,
			}),
			Factory: func(t *target.Target, s *config.Store) (project.Unit, error) {
				o, err := c.resolve(t)
				if err != nil {
					return nil, err
				}
				opts := append([]string{"--disable-werror", "--disable-gdb", "--disable-sim", "--disable-nls"}, o.ConfigureOptions...)
				return c.newProject(t, o, &project.Autotools{Options: opts}), nil
			},
		},
		{
			Name:          "gdb",
			Help:          "GDB with CHERI support, for the host or cross-compiled",
			Architectures: []target.Arch{target.Native, target.RISCV64Purecap, target.MorelloPurecap},
			DependenciesFunc: func(t *target.Target, _ *config.Store) ([]string, error) {
				if t.Arch.IsNative() {
					return nil, nil
				}
				return []string{"llvm", "cheribsd"}, nil
			},
			Options: c.options("gdb", project.OptionDefaults{
				Repository: githubBase + "gdb.git",
				Revision:   "cheri-14",
				Autotools:  true,
				InstallDir: func(outputRoot, arch string) string {
					if arch == "" || arch == string(target.Native) {
						return filepath.Join(outputRoot, "sdk")
					}
					return filepath.Join(outputRoot, "rootfs-"+arch, "usr", "local")
				},
			}),
			Factory: c.newGDB,
		},
		{
			Name:          "newlib",
			Help:          "The newlib C library for bare-metal CHERI",
			Architectures: []target.Arch{target.RISCV64Purecap, target.MorelloPurecap},
			Dependencies:  []string{"llvm"},
			Options: c.options("newlib", project.OptionDefaults{
				Repository: githubBase + "newlib.git",
				Revision:   "main",
				Autotools:  true,
				InstallDir: baremetalInstallDir,
			}),
			Factory: c.newNewlib,
		},
		{
			Name:          "compiler-rt",
			Help:          "compiler-rt builtins for bare-metal CHERI",
			Architectures: []target.Arch{target.RISCV64Purecap, target.MorelloPurecap},
			Dependencies:  []string{"llvm", "newlib"},
			Options: c.options("compiler-rt", project.OptionDefaults{
				Repository:   githubBase + "llvm-project.git",
				Revision:     "dev",
				SourceSubdir: "llvm-project",
				CMake:        true,
				InstallDir:   baremetalInstallDir,
			}),
			Factory: c.newCompilerRT,
		},
	}
}

func (c *Catalogue) newLLVM(t *target.Target, s *config.Store) (project.Unit, error) {
	o, err := c.resolve(t)
	if err != nil {
		return nil, err
	}
	lldb, err := scoped[bool](t, "build-lldb")
	if err != nil {
		return nil, err
	}
	targets, err := scoped[string](t, "targets")
	if err != nil {
		return nil, err
	}
	projects := []string{"clang", "lld"}
	if lldb {
		projects = append(projects, "lldb")
	}
	opts := []string{
		"-DLLVM_ENABLE_PROJECTS=" + strings.Join(projects, ";"),
		"-DLLVM_TARGETS_TO_BUILD=" + targets,
		"-DLLVM_ENABLE_ASSERTIONS=ON",
		"-DLLVM_INSTALL_UTILS=ON",
	}
	tool := &project.CMake{BuildType: o.BuildType, Options: append(opts, o.CMakeOptions...), SourceSubdir: "llvm"}
	return c.newProject(t, o, tool), nil
}

func (c *Catalogue) newQEMU(t *target.Target, s *config.Store) (project.Unit, error) {
	o, err := c.resolve(t)
	if err != nil {
		return nil, err
	}
	opts := []string{
		"--target-list=riscv64cheri-softmmu,aarch64-softmmu,morello-softmmu",
		"--disable-linux-user",
		"--disable-bsd-user",
		"--disable-xen",
		"--disable-docs",
		"--extra-cflags=-g -Wno-error",
	}
	p := c.newProject(t, o, &project.Autotools{Options: append(opts, o.ConfigureOptions...)})
	p.Required = []project.RequiredTool{
		{Name: "pkg-config", Hint: "Install pkg-config and the glib2 and pixman development packages"},
		{Name: "python3"},
		{Name: "ninja", MinVersion: "1.8.0"},
	}
	return p, nil
}

func (c *Catalogue) newGDB(t *target.Target, s *config.Store) (project.Unit, error) {
	o, err := c.resolve(t)
	if err != nil {
		return nil, err
	}
	opts := []string{"--disable-werror", "--without-python", "--disable-sim", "--disable-ld",
		"--disable-gas", "--disable-gold", "--disable-binutils", "--disable-gprof"}
	var env map[string]string
	if !t.Arch.IsNative() {
		info, err := infoFor(t.Arch)
		if err != nil {
			return nil, err
		}
		bin, err := llvmBin(s)
		if err != nil {
			return nil, err
		}
		rootfs, err := c.dependency(t, s, "cheribsd")
		if err != nil {
			return nil, err
		}
		sysroot, err := installDir(s, rootfs.Name)
		if err != nil {
			return nil, err
		}
		triple := info.machineArch + "-unknown-freebsd"
		opts = append(opts, "--host="+triple, "--with-sysroot="+sysroot)
		env = map[string]string{
			"CC":     filepath.Join(bin, "clang"),
			"CXX":    filepath.Join(bin, "clang++"),
			"CFLAGS": "--target=" + triple + " --sysroot=" + sysroot,
		}
	}
	p := c.newProject(t, o, &project.Autotools{Options: append(opts, o.ConfigureOptions...)})
	p.CommandEnv = env
	return p, nil
}

// targetEnv points the *_FOR_TARGET tools at the CHERI LLVM.
func targetEnv(bin string, info archInfo) map[string]string {
	cc := filepath.Join(bin, "clang") + " --target=" + info.triple
	return map[string]string{
		"CC_FOR_TARGET":     cc,
		"CFLAGS_FOR_TARGET": info.cflags + " -mcmodel=medium -ffunction-sections -fdata-sections",
		"AS_FOR_TARGET":     cc,
		"AR_FOR_TARGET":     filepath.Join(bin, "llvm-ar"),
		"RANLIB_FOR_TARGET": filepath.Join(bin, "llvm-ranlib"),
		"NM_FOR_TARGET":     filepath.Join(bin, "llvm-nm"),
	}
}

func (c *Catalogue) newNewlib(t *target.Target, s *config.Store) (project.Unit, error) {
	o, err := c.resolve(t)
	if err != nil {
		return nil, err
	}
	info, err := infoFor(t.Arch)
	if err != nil {
		return nil, err
	}
	bin, err := llvmBin(s)
	if err != nil {
		return nil, err
	}
	opts := []string{
		"--target=" + info.triple,
		"--disable-multilib",
		"--enable-newlib-io-long-long",
		"--disable-newlib-supplied-syscalls",
	}
	p := c.newProject(t, o, &project.Autotools{Options: append(opts, o.ConfigureOptions...)})
	p.CommandEnv = targetEnv(bin, info)
	return p, nil
}

func (c *Catalogue) newCompilerRT(t *target.Target, s *config.Store) (project.Unit, error) {
	o, err := c.resolve(t)
	if err != nil {
		return nil, err
	}
	info, err := infoFor(t.Arch)
	if err != nil {
		return nil, err
	}
	bin, err := llvmBin(s)
	if err != nil {
		return nil, err
	}
	libc, err := c.dependency(t, s, "newlib")
	if err != nil {
		return nil, err
	}
	sysroot, err := installDir(s, libc.Name)
	if err != nil {
		return nil, err
	}
	opts := []string{
		"-DCMAKE_C_COMPILER=" + filepath.Join(bin, "clang"),
		"-DCMAKE_ASM_COMPILER=" + filepath.Join(bin, "clang"),
		"-DCMAKE_AR=" + filepath.Join(bin, "llvm-ar"),
		"-DCMAKE_C_COMPILER_TARGET=" + info.triple,
		"-DCMAKE_C_FLAGS=" + info.cflags,
		"-DCMAKE_SYSROOT=" + sysroot,
		"-DCOMPILER_RT_BAREMETAL_BUILD=ON",
		"-DCOMPILER_RT_BUILD_BUILTINS=ON",
		"-DCOMPILER_RT_BUILD_SANITIZERS=OFF",
		"-DCOMPILER_RT_BUILD_XRAY=OFF",
		"-DCOMPILER_RT_BUILD_LIBFUZZER=OFF",
		"-DCOMPILER_RT_BUILD_PROFILE=OFF",
		"-DCOMPILER_RT_DEFAULT_TARGET_ONLY=ON",
	}
	tool := &project.CMake{BuildType: o.BuildType, Options: append(opts, o.CMakeOptions...), SourceSubdir: "compiler-rt"}
	return c.newProject(t, o, tool), nil
}
