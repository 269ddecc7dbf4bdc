package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
)

// ConfigFileKey is the option that overrides the JSON path given to Load.
const ConfigFileKey = "config-file"

// cliValue is the flag.Value bound to one option. It only records the raw
// string; conversion happens at resolution time so that every layer goes
// through the same code.
type cliValue struct {
	o      *option
	negate bool
}

func (v *cliValue) String() string {
	if v == nil || v.o == nil {
		return ""
	}
	return v.o.cliRaw
}

func (v *cliValue) Set(raw string) error {
	if v.o.Kind == KindBool && v.negate {
		switch strings.ToLower(raw) {
		case "true", "1":
			raw = "false"
		case "false", "0":
			raw = "true"
		default:
			return fmt.Errorf("invalid boolean value %q", raw)
		}
	}
	if v.o.Kind == KindList && v.o.cliSet && !v.negate {
		// repeated list flags accumulate
		raw = v.o.cliRaw + " " + raw
	}
	v.o.cliRaw = raw
	v.o.cliSet = true
	return nil
}

func (v *cliValue) IsBoolFlag() bool { return v.o.Kind == KindBool }

// negatedName turns "skip-update" into "no-skip-update" and
// "llvm/skip-update" into "llvm/no-skip-update".
func negatedName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i+1] + "no-" + key[i+1:]
	}
	return "no-" + key
}

func (s *Store) flagSet() (*flag.FlagSet, *bool, *bool) {
	fs := flag.NewFlagSet("cheribuild", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	for _, key := range s.order {
		o := s.options[key]
		fs.Var(&cliValue{o: o}, o.Key, o.Help)
		if o.Short != "" {
			fs.Var(&cliValue{o: o}, o.Short, o.Help)
		}
		if o.Kind == KindBool {
			neg := negatedName(o.Key)
			if _, taken := s.options[neg]; !taken {
				fs.Var(&cliValue{o: o, negate: true}, neg, "")
			}
		}
	}
	help := fs.Bool("help", false, "show this help")
	fs.BoolVar(help, "h", false, "show this help")
	helpAll := fs.Bool("help-all", false, "show help including hidden options")
	return fs, help, helpAll
}

// Load parses argv (without the program name) and the JSON file at
// jsonPath. Positional arguments may be interleaved with flags; they are
// returned in order. A missing or broken config file is reported through
// Warn and otherwise ignored.
func (s *Store) Load(argv []string, jsonPath string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.loaded {
		return nil, errors.New("config: Load called twice")
	}
	if s.frozen {
		return nil, ErrFrozen
	}
	s.loaded = true

	fs, help, helpAll := s.flagSet()
	var positional []string
	args := argv
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("parsing command line: %w", err)
		}
		rest := fs.Args()
		consumed := len(args) - len(rest)
		if consumed > 0 && args[consumed-1] == "--" {
			positional = append(positional, rest...)
			break
		}
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
	if *help || *helpAll {
		return positional, ErrHelp
	}

	if o, ok := s.options[ConfigFileKey]; ok && o.cliSet {
		p, err := expandPath(o.cliRaw)
		if err != nil {
			return nil, &InvalidValueError{Key: ConfigFileKey, Kind: KindPath, Value: o.cliRaw, Source: SourceCommandLine}
		}
		s.loadJSON(p, true)
	} else if jsonPath != "" {
		s.loadJSON(jsonPath, false)
	}
	return positional, nil
}

// PrintUsage writes the option list. Hidden options are shown only when all
// is set.
func (s *Store) PrintUsage(w io.Writer, all bool) {
	fmt.Fprintln(w, color.Success.Sprint("Usage: cheribuild [options] [TARGET...]"))
	fmt.Fprintln(w)
	width := 0
	for _, key := range s.order {
		if n := len(usageName(s.options[key])); n > width {
			width = n
		}
	}
	for _, key := range s.order {
		o := s.options[key]
		if o.Hidden && !all {
			continue
		}
		name := usageName(o)
		fmt.Fprintf(w, "  %s%s  %s", color.Bold.Sprint(name), strings.Repeat(" ", width-len(name)), o.Help)
		switch {
		case o.DefaultHelp != "":
			fmt.Fprintf(w, " (default: %s)", o.DefaultHelp)
		case o.Default != nil && o.Kind != KindBool:
			fmt.Fprintf(w, " (default: %v)", o.Default)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -h, --help      show this help")
	fmt.Fprintln(w, "  --help-all      show help including per-target options")
}

func usageName(o *option) string {
	name := "--" + o.Key
	if o.Short != "" {
		name = "-" + o.Short + ", " + name
	}
	if o.Kind != KindBool {
		name += " " + strings.ToUpper(o.Kind.String())
	}
	return name
}
