package steps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rigup/rigup/pkg/engine"
)

// ProfileBlock is a marked fragment appended to a shell profile file. The
// marker line makes the append idempotent: a file containing the marker is
// never touched again, even if the surrounding content moved.
type ProfileBlock struct {
	Marker string   `json:"marker" yaml:"marker" validate:"required"`
	Lines  []string `json:"lines" yaml:"lines" validate:"required,min=1"`
}

// Render produces the text appended to the profile: the marker as a comment
// followed by the block lines, newline terminated.
func (b ProfileBlock) Render() string {
	var sb strings.Builder
	sb.WriteString("\n# ")
	sb.WriteString(b.Marker)
	sb.WriteString("\n")
	for _, line := range b.Lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// HasBlock reports whether the file at path already carries the block's
// marker. A missing file has no blocks.
func HasBlock(path string, block ProfileBlock) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, engine.NewIOError(fmt.Sprintf("read profile %s", path), err)
	}
	return strings.Contains(string(data), block.Marker), nil
}

// AppendBlock appends the block to the profile file unless its marker is
// already present. The file is created with mode 0644 when missing. The
// write goes through a temp file in the same directory followed by a rename,
// so a crash never leaves a half-written profile.
func AppendBlock(path string, block ProfileBlock) (changed bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, engine.NewIOError(fmt.Sprintf("read profile %s", path), err)
	}
	if strings.Contains(string(data), block.Marker) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, engine.NewIOError(fmt.Sprintf("create profile directory for %s", path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return false, engine.NewIOError(fmt.Sprintf("create temp file for %s", path), err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	content := append(data, []byte(block.Render())...)
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return false, engine.NewIOError(fmt.Sprintf("write temp file for %s", path), err)
	}
	if err := tmp.Close(); err != nil {
		return false, engine.NewIOError(fmt.Sprintf("close temp file for %s", path), err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return false, engine.NewIOError(fmt.Sprintf("chmod temp file for %s", path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return false, engine.NewIOError(fmt.Sprintf("replace profile %s", path), err)
	}
	return true, nil
}

// AppendBlocks applies every block to the file in order, reporting whether
// any write happened.
func AppendBlocks(path string, blocks []ProfileBlock) (changed bool, err error) {
	for _, block := range blocks {
		c, err := AppendBlock(path, block)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}
