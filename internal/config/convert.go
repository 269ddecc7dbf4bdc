package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

func (s *Store) convert(o *option, raw any, src Source) (any, error) {
	invalid := &InvalidValueError{Key: o.Key, Kind: o.Kind, Value: raw, Source: src}
	switch o.Kind {
	case KindBool:
		switch v := raw.(type) {
		case nil:
			return false, nil
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, invalid
			}
			return b, nil
		}
	case KindInt:
		switch v := raw.(type) {
		case nil:
			return 0, nil
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, invalid
			}
			return int(v), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, invalid
			}
			return n, nil
		}
	case KindString:
		switch v := raw.(type) {
		case nil:
			return "", nil
		case string:
			return v, nil
		case float64, bool, int:
			return fmt.Sprint(v), nil
		}
	case KindPath:
		switch v := raw.(type) {
		case nil:
			return "", nil
		case string:
			p, err := expandPath(v)
			if err != nil {
				return nil, invalid
			}
			return p, nil
		}
	case KindList:
		switch v := raw.(type) {
		case nil:
			return []string(nil), nil
		case []string:
			return append([]string{}, v...), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				str, ok := item.(string)
				if !ok {
					return nil, invalid
				}
				out = append(out, str)
			}
			return out, nil
		case string:
			words, err := shellquote.Split(v)
			if err != nil {
				return nil, invalid
			}
			if src == SourceJSON {
				s.Warn(fmt.Sprintf("%s should be a list in the config file, got a string; split it as %q", o.Key, words))
			}
			if words == nil {
				words = []string{}
			}
			return words, nil
		}
	}
	return nil, invalid
}

// expandPath expands a leading ~ and environment variables, then makes the
// result absolute. Empty stays empty.
func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	p = os.ExpandEnv(p)
	return filepath.Abs(p)
}

// ExpandPath is the path conversion applied to KindPath options.
func ExpandPath(p string) (string, error) { return expandPath(p) }
