package parsers

import (
	"bufio"
	"io"
	"os"
)

// scanLines reads path starting at fromOffset and invokes fn once per
// line (including a trailing partial line with no newline) together
// with the byte offset at which the line begins. It returns the file
// position after the last consumed byte and whether the file could be
// opened at all.
func scanLines(path string, fromOffset int64, fn func(line []byte, offset int64)) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	if _, err := f.Seek(fromOffset, io.SeekStart); err != nil {
		return 0, false
	}

	r := bufio.NewReader(f)
	offset := fromOffset
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			fn(line, offset)
			offset += int64(len(line))
		}
		if err != nil {
			break
		}
	}
	return offset, true
}

// fileSize returns the current size of path, or 0 if it cannot be
// stated. Whole-file parsers report this as their consumed offset.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
