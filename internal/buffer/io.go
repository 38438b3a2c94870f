package buffer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/kobzarvs/qex/internal/logger"
	"github.com/kobzarvs/qex/internal/recno"
)

// Open reads path into store and returns a buffer over it. A missing file
// gives an empty buffer that Save will create.
func Open(path string, store recno.Store, opts ...Option) (*Buffer, error) {
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("new file", "path", path)
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		n, err := Load(store, f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		logger.Info("file loaded", "path", path, "lines", n)
	}
	b, err := New(store, opts...)
	if err != nil {
		return nil, err
	}
	b.path = path
	return b, nil
}

// Load appends the lines read from r to store. A trailing newline does
// not start another line and CRLF line ends are read as LF.
func Load(store recno.Store, r io.Reader) (int, error) {
	last, err := store.Last()
	if err != nil {
		return 0, err
	}
	br := bufio.NewReader(r)
	n := 0
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimSuffix(line, []byte("\n"))
			line = bytes.TrimSuffix(line, []byte("\r"))
			if perr := store.Put(last+n+1, line); perr != nil {
				return n, perr
			}
			n++
		}
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}

// WriteTo writes every line followed by a newline.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	if b.store == nil {
		return 0, ErrNoFile
	}
	last, err := b.Last()
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(w)
	var total int64
	for lno := 1; lno <= last; lno++ {
		text, err := b.Get(lno, GetFatal)
		if err != nil {
			return total, err
		}
		n, err := bw.Write(text)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return total, err
		}
		total++
	}
	return total, bw.Flush()
}

// Save writes the buffer to path, or to its own path when path is empty.
func (b *Buffer) Save(path string) error {
	if path == "" {
		path = b.path
	}
	if path == "" {
		return ErrNoFileName
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	n, err := b.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if path == b.path {
		b.modified = false
	}
	logger.Info("file written", "path", path, "bytes", n)
	return nil
}
