package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const defaultPoll = 250 * time.Millisecond

// TailOptions controls Tail.
type TailOptions struct {
	// Lines is how many trailing lines to emit first. Zero starts at the end.
	Lines int
	// Follow keeps emitting appended lines until ctx is done.
	Follow bool
	// Poll is the follow interval.
	Poll time.Duration
}

// Tail emits the last opts.Lines lines of path and, with Follow, every line
// appended afterwards. A missing file is not an error while following; Tail
// waits for it to appear.
func Tail(ctx context.Context, path string, opts TailOptions, emit func(string)) error {
	if emit == nil {
		return errors.New("tail: emit callback required")
	}
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}

	f, err := openLog(path)
	if err != nil {
		return err
	}
	if f == nil && !opts.Follow {
		return fmt.Errorf("log file %s does not exist", path)
	}

	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	var reader *bufio.Reader
	var info os.FileInfo
	if f != nil {
		lines, err := lastLines(f, opts.Lines)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
		if !opts.Follow {
			return nil
		}
		info, _ = f.Stat()
		reader = bufio.NewReader(f)
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	var partial []byte
	for {
		if reader != nil {
			for {
				chunk, err := reader.ReadBytes('\n')
				partial = append(partial, chunk...)
				if err != nil {
					if !errors.Is(err, io.EOF) {
						return fmt.Errorf("read log file: %w", err)
					}
					break
				}
				emit(string(partial[:len(partial)-1]))
				partial = partial[:0]
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if rotated(path, f, info) {
			next, err := openLog(path)
			if err != nil {
				return err
			}
			if next == nil {
				continue
			}
			if f != nil {
				f.Close()
			}
			f = next
			info, _ = f.Stat()
			reader = bufio.NewReader(f)
			partial = partial[:0]
		}
	}
}

func openLog(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return f, nil
}

// rotated reports whether path now names a different file than f or the file
// was truncated below the current read position.
func rotated(path string, f *os.File, opened os.FileInfo) bool {
	if f == nil {
		return true
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	if opened != nil && !os.SameFile(opened, current) {
		return true
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return false
	}
	return current.Size() < pos
}

// lastLines reads f to the end and returns up to limit trailing lines,
// leaving f positioned at EOF.
func lastLines(f *os.File, limit int) ([]string, error) {
	if limit <= 0 {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return nil, fmt.Errorf("seek log file: %w", err)
		}
		return nil, nil
	}

	ring := make([]string, limit)
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[count%limit] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("seek log file: %w", err)
	}

	n := min(count, limit)
	lines := make([]string, n)
	for i := range n {
		lines[i] = ring[(count-n+i)%limit]
	}
	return lines, nil
}
