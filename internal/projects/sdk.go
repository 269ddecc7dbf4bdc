package projects

import (
	"context"
	"fmt"
	"path/filepath"

	"cheribuild/internal/archive"
	"cheribuild/internal/config"
	"cheribuild/internal/project"
	"cheribuild/internal/target"
)

func (c *Catalogue) sdk() []target.Descriptor {
	underOutput := func(name string) config.DefaultFunc {
		return func(s *config.Store) (any, error) {
			root, err := config.Value[string](s, c.Globals.OutputRoot)
			if err != nil {
				return nil, err
			}
			return filepath.Join(root, name), nil
		}
	}
	return []target.Descriptor{
		{
			Name:         "sdk",
			Help:         "The CHERI SDK: compiler plus a CheriBSD sysroot",
			Dependencies: []string{"llvm", "cheribsd"},
			Options: c.options("sdk", project.OptionDefaults{}, func(sc *config.Scope, _ target.Arch) {
				sc.Add(config.Option{Key: "sysroot-directory", Kind: config.KindPath,
					ComputeDefault: underOutput(filepath.Join("sdk", "sysroot")),
					Help:           "The directory the sysroot is assembled in"})
				sc.Add(config.Option{Key: "archive", Kind: config.KindPath,
					ComputeDefault: underOutput("cheri-sysroot.tar.gz"),
					Help:           "The sysroot archive to create (.tar.gz, .tar.zst or .tar.xz)"})
			}),
			Factory: c.newSDK,
		},
		{
			Name:                    "freestanding-sdk",
			Help:                    "The compiler, emulator and debugger without an OS sysroot",
			Dependencies:            []string{"llvm", "qemu", "gdb-native"},
			AlwaysBuildDependencies: true,
		},
		{
			Name:                    "all",
			Help:                    "Everything needed to boot CheriBSD and cross-compile for it",
			Dependencies:            []string{"qemu", "sdk", "disk-image"},
			AlwaysBuildDependencies: true,
		},
	}
}

func (c *Catalogue) newSDK(t *target.Target, s *config.Store) (project.Unit, error) {
	o, err := c.resolve(t)
	if err != nil {
		return nil, err
	}
	sysroot, err := scoped[string](t, "sysroot-directory")
	if err != nil {
		return nil, err
	}
	dest, err := scoped[string](t, "archive")
	if err != nil {
		return nil, err
	}
	if _, err := archive.FormatFor(dest); err != nil {
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
	// "/./" marks where rsync --relative starts the destination path
	var from []string
	for _, dir := range []string{"usr/include", "usr/lib", "usr/libcheri", "usr/lib64", "lib"} {
		from = append(from, rootfs+"/./"+dir)
	}
	tool := &project.Script{
		Label: "sysroot",
		Tools: []project.RequiredTool{{Name: "rsync"}},
		Build: []project.Step{
			{Name: "mkdir", Func: func(_ context.Context, p *project.Project) error {
				return p.Runner().MkdirAll(sysroot)
			}},
			{Name: "sysroot", Argv: append(append([]string{"rsync", "-a", "--delete", "--relative", "--ignore-missing-args"}, from...), sysroot+"/")},
		},
		Deploy: []project.Step{
			{Name: "archive", Func: func(ctx context.Context, p *project.Project) error {
				r := p.Runner()
				if r.Pretend {
					c.printer().PrintCommand([]string{"tar", "-caf", dest, "-C", sysroot, "."}, "", nil, false)
					return nil
				}
				c.printer().Status("Creating", dest)
				if err := archive.Create(ctx, sysroot, dest); err != nil {
					return err
				}
				entries, err := archive.List(dest)
				if err != nil {
					return fmt.Errorf("verifying %s: %w", dest, err)
				}
				c.printer().Status("Created", dest, "with", len(entries), "entries")
				return nil
			}},
		},
	}
	return c.newProject(t, o, tool), nil
}
