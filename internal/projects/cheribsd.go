package projects

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"cheribuild/internal/config"
	"cheribuild/internal/project"
	"cheribuild/internal/target"
)

var bsdArchs = []target.Arch{target.RISCV64Purecap, target.MorelloPurecap, target.AArch64, target.RISCV64}

func rootfsDir(outputRoot, arch string) string {
	if arch == "" {
		return filepath.Join(outputRoot, "rootfs")
	}
	return filepath.Join(outputRoot, "rootfs-"+arch)
}

func (c *Catalogue) cheribsd() []target.Descriptor {
	return []target.Descriptor{
		{
			Name:          "cheribsd",
			Help:          "The CheriBSD kernel and userspace",
			Architectures: bsdArchs,
			Dependencies:  []string{"llvm"},
			Options: c.options("cheribsd", project.OptionDefaults{
				Repository: githubBase + "cheribsd.git",
				Revision:   "main",
				InstallDir: rootfsDir,
			}, func(sc *config.Scope, arch target.Arch) {
				kernel := "GENERIC"
				if info, ok := archs[arch]; ok {
					kernel = info.kernel
				}
				sc.AddString("kernel-config", kernel, "The kernel configuration to build")
				sc.AddList("build-options", nil, "Additional make options for buildworld and buildkernel")
				sc.AddBool("skip-kernel", "Only build and install the world")
			}),
			Factory: c.newCheriBSD,
		},
		{
			Name:          "disk-image",
			Help:          "A bootable CheriBSD disk image",
			Architectures: bsdArchs,
			Dependencies:  []string{"cheribsd"},
			Options: c.options("disk-image", project.OptionDefaults{
				InstallDir: func(outputRoot, _ string) string { return outputRoot },
			}, func(sc *config.Scope, arch target.Arch) {
				sc.AddString("size", "8g", "The size of the disk image")
				hostname := "cheribsd"
				if arch != "" {
					hostname += "-" + string(arch)
				}
				sc.AddString("hostname", hostname, "The hostname to use for the disk image")
				sc.Add(config.Option{Key: "path", Kind: config.KindPath,
					Help: "The output path of the disk image",
					ComputeDefault: func(s *config.Store) (any, error) {
						root, err := config.Value[string](s, c.Globals.OutputRoot)
						if err != nil {
							return nil, err
						}
						name := "cheribsd.img"
						if arch != "" {
							name = "cheribsd-" + string(arch) + ".img"
						}
						return filepath.Join(root, name), nil
					}})
			}),
			Factory: c.newDiskImage,
		},
		{
			Name:          "run",
			Help:          "Boot the disk image in QEMU",
			Architectures: bsdArchs,
			DependenciesFunc: func(t *target.Target, s *config.Store) ([]string, error) {
				skip, err := scoped[bool](t, "skip-disk-image")
				if err != nil {
					return nil, err
				}
				if skip {
					return []string{"qemu"}, nil
				}
				return []string{"qemu", "disk-image"}, nil
			},
			Options: c.options("run", project.OptionDefaults{
				InstallDir: func(outputRoot, _ string) string { return outputRoot },
			}, func(sc *config.Scope, arch target.Arch) {
				sc.AddBool("skip-disk-image", "Don't rebuild the disk image before booting")
				sc.AddString("memory-size", "2048", "The amount of memory for the guest, in MiB")
				sc.Add(config.Option{Key: "ssh-forwarding-port", Kind: config.KindInt, Default: 10005,
					Help: "The host port forwarded to the guest's ssh port"})
			}),
			Factory: c.newRun,
		},
	}
}

func (c *Catalogue) newCheriBSD(t *target.Target, s *config.Store) (project.Unit, error) {
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
	kernel, err := scoped[string](t, "kernel-config")
	if err != nil {
		return nil, err
	}
	extra, err := scoped[[]string](t, "build-options")
	if err != nil {
		return nil, err
	}
	skipKernel, err := scoped[bool](t, "skip-kernel")
	if err != nil {
		return nil, err
	}
	args := []string{
		"-C", o.SourceDir,
		"--cross-bindir=" + bin,
		"TARGET=" + info.machine,
		"TARGET_ARCH=" + info.machineArch,
		"KERNCONF=" + kernel,
		"DESTDIR=" + o.InstallDir,
		"-DNO_ROOT",
		"-DDB_FROM_SRC",
		"-DWITHOUT_TESTS",
	}
	args = append(args, extra...)
	build := []string{"buildworld"}
	install := []string{"installworld", "distribution"}
	if !skipKernel {
		build = append(build, "buildkernel")
		install = append(install, "installkernel")
	}
	tool := &project.Make{
		Tool:           filepath.Join(o.SourceDir, "tools", "build", "make.py"),
		Args:           args,
		CompileTargets: build,
		InstallTargets: install,
	}
	p := c.newProject(t, o, tool)
	p.CommandEnv = map[string]string{"MAKEOBJDIRPREFIX": o.BuildDir}
	p.Required = []project.RequiredTool{{Name: "python3"}}
	return p, nil
}

func (c *Catalogue) newDiskImage(t *target.Target, s *config.Store) (project.Unit, error) {
	o, err := c.resolve(t)
	if err != nil {
		return nil, err
	}
	size, err := scoped[string](t, "size")
	if err != nil {
		return nil, err
	}
	hostname, err := scoped[string](t, "hostname")
	if err != nil {
		return nil, err
	}
	image, err := scoped[string](t, "path")
	if err != nil {
		return nil, err
	}
	bsd, err := c.dependency(t, s, "cheribsd")
	if err != nil {
		return nil, err
	}
	rootfs, err := installDir(s, bsd.Name)
	if err != nil {
		return nil, err
	}
	tool := &project.Script{
		Label: "makefs",
		Tools: []project.RequiredTool{{Name: "makefs", Hint: "Build the freebsd-tools target or install makefs"}},
		Build: []project.Step{
			{Name: "hostname", Func: func(ctx context.Context, p *project.Project) error {
				conf := fmt.Sprintf("hostname=%q\n", hostname)
				return p.Runner().WriteFile(filepath.Join(rootfs, "etc", "rc.conf.local"), []byte(conf))
			}},
			{Name: "makefs", Argv: []string{"makefs", "-t", "ffs", "-B", "le", "-o", "version=2",
				"-s", size, "-N", filepath.Join(rootfs, "etc"), image, filepath.Join(rootfs, "METALOG")}},
		},
	}
	return c.newProject(t, o, tool), nil
}

func (c *Catalogue) newRun(t *target.Target, s *config.Store) (project.Unit, error) {
	o, err := c.resolve(t)
	if err != nil {
		return nil, err
	}
	info, err := infoFor(t.Arch)
	if err != nil {
		return nil, err
	}
	memory, err := scoped[string](t, "memory-size")
	if err != nil {
		return nil, err
	}
	port, err := scoped[int](t, "ssh-forwarding-port")
	if err != nil {
		return nil, err
	}
	qemuDir, err := installDir(s, "qemu")
	if err != nil {
		return nil, err
	}
	image, err := config.ValueOf[string](s, "disk-image-"+string(t.Arch)+"/path")
	if err != nil {
		return nil, err
	}
	rootfs, err := installDir(s, "cheribsd-"+string(t.Arch))
	if err != nil {
		return nil, err
	}
	argv := []string{filepath.Join(qemuDir, "bin", info.qemu)}
	argv = append(argv, info.qemuMachine...)
	argv = append(argv,
		"-m", memory,
		"-nographic",
		"-kernel", filepath.Join(rootfs, "boot", "kernel", "kernel"),
		"-drive", "if=none,file="+image+",format=raw,id=drv",
		"-device", "virtio-blk-device,drive=drv",
		"-netdev", "user,id=net0,hostfwd=tcp::"+strconv.Itoa(port)+"-:22",
		"-device", "virtio-net-device,netdev=net0",
	)
	tool := &project.Script{Label: "qemu", Build: []project.Step{{Name: "run", Argv: argv}}}
	return c.newProject(t, o, tool), nil
}
