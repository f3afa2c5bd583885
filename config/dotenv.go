// ABOUTME: Loads environment variables from .env files before ROUTEGRAPH_* overrides are read.
// ABOUTME: Malformed lines are reported with their line number; existing variables are never overwritten.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// EnvFileVar names a single .env file to load instead of searching for one.
const EnvFileVar = EnvPrefix + "ENV_FILE"

// EnvVar is one assignment read from a .env file.
type EnvVar struct {
	Key   string
	Value string
	Line  int
}

// DotEnvError reports a .env line that is not a KEY=VALUE assignment.
type DotEnvError struct {
	Path string
	Line int
	Msg  string
}

func (e *DotEnvError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
}

// ParseDotEnv reads assignments from r. Blank lines and lines starting with #
// are skipped, an "export " prefix is dropped, and values may be bare,
// 'single-quoted' (taken literally) or "double-quoted" (Go escapes apply).
// A " #" after a bare value starts a comment.
func ParseDotEnv(r io.Reader) ([]EnvVar, error) {
	var vars []EnvVar
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		text = strings.TrimPrefix(text, "export ")

		key, raw, ok := strings.Cut(text, "=")
		if !ok {
			return nil, &DotEnvError{Line: line, Msg: "expected KEY=VALUE"}
		}
		key = strings.TrimSpace(key)
		if !validKey(key) {
			return nil, &DotEnvError{Line: line, Msg: fmt.Sprintf("invalid variable name %q", key)}
		}
		value, err := dotEnvValue(strings.TrimSpace(raw))
		if err != nil {
			return nil, &DotEnvError{Line: line, Msg: err.Error()}
		}
		vars = append(vars, EnvVar{Key: key, Value: value, Line: line})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}

func validKey(k string) bool {
	if k == "" {
		return false
	}
	for i, c := range k {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func dotEnvValue(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	switch v[0] {
	case '\'':
		end := strings.IndexByte(v[1:], '\'')
		if end < 0 {
			return "", errors.New("unterminated single quote")
		}
		return v[1 : end+1], nil
	case '"':
		prefix, err := strconv.QuotedPrefix(v)
		if err != nil {
			return "", errors.New("unterminated or invalid double quote")
		}
		return strconv.Unquote(prefix)
	}
	if i := strings.Index(v, " #"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v, nil
}

// LoadDotEnv applies the assignments in path whose keys lookup does not
// already know. It returns how many variables were set. A missing file sets
// nothing and is not an error.
func LoadDotEnv(path string, lookup func(string) (string, bool), set func(key, value string) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	vars, err := ParseDotEnv(f)
	if err != nil {
		var de *DotEnvError
		if errors.As(err, &de) {
			de.Path = path
		}
		return 0, err
	}
	n := 0
	for _, v := range vars {
		if _, exists := lookup(v.Key); exists {
			continue
		}
		if err := set(v.Key, v.Value); err != nil {
			return n, fmt.Errorf("%s:%d: set %s: %w", path, v.Line, v.Key, err)
		}
		n++
	}
	return n, nil
}

// DotEnvPaths lists the .env files LoadDotEnvAuto tries, in order: the file
// named by ROUTEGRAPH_ENV_FILE alone when it is set, otherwise .env in dir and
// each parent, then next to the executable.
func DotEnvPaths(dir, exe string, lookup func(string) (string, bool)) []string {
	if p, ok := lookup(EnvFileVar); ok && p != "" {
		return []string{p}
	}
	var paths []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	if dir != "" {
		for {
			add(filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if exe != "" {
		add(filepath.Join(filepath.Dir(exe), ".env"))
	}
	return paths
}

// LoadDotEnvAuto loads every file from DotEnvPaths into the process
// environment. Earlier files win because nothing is overwritten. Unreadable or
// malformed files are logged and skipped.
func LoadDotEnvAuto() {
	wd, _ := os.Getwd()
	exe, _ := os.Executable()
	for _, p := range DotEnvPaths(wd, exe, os.LookupEnv) {
		if _, err := LoadDotEnv(p, os.LookupEnv, os.Setenv); err != nil {
			log.Printf("component=config action=dotenv_skipped path=%s err=%q", p, err)
		}
	}
}
