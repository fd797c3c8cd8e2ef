package dockerenv

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/stage"
)

// DefaultFileName is the env file looked up when a directory is given.
const DefaultFileName = ".env"

// Updater rewrites the port variable of a compose env file in place.
type Updater struct {
	variable string
	logger   zerolog.Logger

	// rename replaces the original with the rewritten temp file.
	rename func(oldpath, newpath string) error
}

// NewUpdater creates an Updater for variable.
func NewUpdater(variable string, logger zerolog.Logger) *Updater {
	return &Updater{
		variable: variable,
		logger:   logger,
		rename:   os.Rename,
	}
}

// ResolvePath returns path itself for a file, or path/.env for a directory.
func ResolvePath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return filepath.Join(path, DefaultFileName), nil
	}
	return path, nil
}

// Current returns the value the env file at path assigns to the variable.
func (u *Updater) Current(path string) (string, error) {
	file, err := ResolvePath(path)
	if err != nil {
		return "", &ConfigError{Path: path, Reason: "env file not accessible", Err: err}
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return "", &ConfigError{Path: file, Reason: "failed to read env file", Err: err}
	}
	line, err := findAssignment(content, u.variable)
	if err != nil {
		return "", &ConfigError{Path: file, Reason: "cannot locate " + u.variable, Err: err}
	}
	return line.value, nil
}

// Update sets the variable to port. The file is left untouched and a skipped
// result returned when it already holds port; otherwise only the value bytes
// of that one line change and the file is replaced atomically.
func (u *Updater) Update(port int, path string) (stage.Result, error) {
	res, err := u.update(port, path)
	if err != nil {
		return stage.Failed(stage.DockerEnv, err), err
	}
	return res, nil
}

func (u *Updater) update(port int, path string) (stage.Result, error) {
	file, err := ResolvePath(path)
	if err != nil {
		return stage.Result{}, &ConfigError{Path: path, Reason: "env file not accessible", Err: err}
	}

	info, err := os.Stat(file)
	if err != nil {
		return stage.Result{}, &ConfigError{Path: file, Reason: "env file not accessible", Err: err}
	}

	content, err := os.ReadFile(file)
	if err != nil {
		return stage.Result{}, &ConfigError{Path: file, Reason: "failed to read env file", Err: err}
	}

	target := strconv.Itoa(port)
	line, err := findAssignment(content, u.variable)
	if err != nil {
		return stage.Result{}, &ConfigError{Path: file, Reason: "cannot locate " + u.variable, Err: err}
	}

	if line.value == target {
		u.logger.Info().Str("file", file).Int("port", port).Msg("Env file already up to date")
		return stage.Skipped(stage.DockerEnv, fmt.Sprintf("%s already %s", u.variable, target)), nil
	}

	updated := line.replace(content, target)
	if err := u.verify(content, updated, target); err != nil {
		return stage.Result{}, &ConfigError{Path: file, Reason: "rewritten env file failed verification", Err: err}
	}

	if err := u.writeAtomic(file, updated, info.Mode().Perm()); err != nil {
		return stage.Result{}, &ConfigError{Path: file, Reason: "failed to write env file", Err: err}
	}

	u.logger.Info().Str("file", file).Str("from", line.value).Int("to", port).Msg("Docker env file updated")
	return stage.Success(stage.DockerEnv, fmt.Sprintf("%s=%s", u.variable, target)), nil
}

// verify parses the rewritten content and checks the variable. Files the
// dotenv parser already rejected before the change are not held to it.
func (u *Updater) verify(before, after []byte, want string) error {
	parsed, err := godotenv.UnmarshalBytes(after)
	if err != nil {
		if _, origErr := godotenv.UnmarshalBytes(before); origErr != nil {
			u.logger.Warn().Err(origErr).Msg("Env file is not fully dotenv compatible, skipping verification")
			return nil
		}
		return err
	}
	if got := parsed[u.variable]; got != want {
		return fmt.Errorf("%s parsed as %q, want %q", u.variable, got, want)
	}
	return nil
}

// writeAtomic writes content to a temp file in the same directory, syncs it
// and renames it over path.
func (u *Updater) writeAtomic(path string, content []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".env.tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing to disk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := u.rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// assignment locates a value inside the file content.
type assignment struct {
	// start and end are byte offsets of the value, quotes excluded
	start, end int
	value      string
}

func (a assignment) replace(content []byte, value string) []byte {
	out := make([]byte, 0, len(content)-(a.end-a.start)+len(value))
	out = append(out, content[:a.start]...)
	out = append(out, value...)
	return append(out, content[a.end:]...)
}

// findAssignment returns the single line assigning key. Comments, blank
// lines and an optional export prefix are handled; the value may be quoted
// and followed by an inline comment.
func findAssignment(content []byte, key string) (assignment, error) {
	var (
		found assignment
		count int
	)

	offset := 0
	for offset < len(content) {
		end := bytes.IndexByte(content[offset:], '\n')
		if end < 0 {
			end = len(content)
		} else {
			end += offset
		}
		line := content[offset:end]
		line = bytes.TrimSuffix(line, []byte("\r"))

		if a, ok := parseLine(line, key); ok {
			a.start += offset
			a.end += offset
			found = a
			count++
		}
		offset = end + 1
	}

	switch count {
	case 0:
		return assignment{}, ErrVariableMissing
	case 1:
		return found, nil
	default:
		return assignment{}, fmt.Errorf("%w: %d definitions", ErrVariableDuplicate, count)
	}
}

// parseLine reports the value span of line when it assigns key. Offsets are
// relative to the start of line.
func parseLine(line []byte, key string) (assignment, bool) {
	i := skipSpace(line, 0)
	if i < len(line) && line[i] == '#' {
		return assignment{}, false
	}
	if bytes.HasPrefix(line[i:], []byte("export ")) {
		i = skipSpace(line, i+len("export "))
	}
	if !bytes.HasPrefix(line[i:], []byte(key)) {
		return assignment{}, false
	}
	i = skipSpace(line, i+len(key))
	if i >= len(line) || line[i] != '=' {
		return assignment{}, false
	}
	i = skipSpace(line, i+1)

	if i < len(line) && (line[i] == '"' || line[i] == '\'') {
		if closing := bytes.IndexByte(line[i+1:], line[i]); closing >= 0 {
			start := i + 1
			end := start + closing
			return assignment{start: start, end: end, value: string(line[start:end])}, true
		}
	}

	end := len(line)
	if c := bytes.Index(line[i:], []byte(" #")); c >= 0 {
		end = i + c
	}
	for end > i && (line[end-1] == ' ' || line[end-1] == '\t') {
		end--
	}
	return assignment{start: i, end: end, value: string(line[i:end])}, true
}

func skipSpace(b []byte, i int) int {
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	return i
}
