package gt3x

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/klauspost/compress/zip"
)

// Member names inside a .gt3x archive.
const (
	InfoMember = "info.txt"
	LogMember  = "log.bin"
)

// Container is an open .gt3x archive. Members are decompressed on demand, so
// the log never has to be held in memory.
type Container struct {
	zr     *zip.Reader
	closer io.Closer
	path   string
}

// OpenContainer opens the archive at path. The returned Container owns the
// file handle until Close is called.
func OpenContainer(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	c, err := newContainer(f, st.Size(), path)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

// NewContainer reads an archive from an arbitrary ReaderAt. The caller keeps
// ownership of r; Close is a no-op for the underlying source.
func NewContainer(r io.ReaderAt, size int64) (*Container, error) {
	return newContainer(r, size, "<reader>")
}

func newContainer(r io.ReaderAt, size int64, name string) (*Container, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("read %s index: %v: %w", name, err, ErrCorrupt)
	}
	return &Container{zr: zr, path: name}, nil
}

// Members lists the member names, sorted.
func (c *Container) Members() []string {
	names := make([]string, 0, len(c.zr.File))
	for _, f := range c.zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// OpenMember returns a decompressing stream over the named member.
func (c *Container) OpenMember(name string) (io.ReadCloser, error) {
	if c.zr == nil {
		return nil, fmt.Errorf("%s: container closed", c.path)
	}
	for _, f := range c.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: open member %s: %v: %w", c.path, name, err, ErrCorrupt)
		}
		return rc, nil
	}
	return nil, fmt.Errorf("%s: member %s: %w", c.path, name, ErrNotFound)
}

// Close releases the file handle. It is safe to call more than once.
func (c *Container) Close() error {
	c.zr = nil
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}
