package localfs

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

const checksumAlgorithm = "COMPOSITE-CRC32C"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Create creates a file with the given permission, creating missing parents.
func (a *LocalFS) Create(ctx context.Context, p string, permission metadata.Permission, overwrite bool,
	bufferSize int, replication int16, blockSize int64, progress metadata.Progressable) (io.WriteCloser, error) {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "create").Inc()

	logical, fullPath, err := a.resolve(p)
	if err != nil {
		return nil, err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if info, err := os.Stat(fullPath); err == nil {
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s", metadata.ErrIsDirectory, logical)
		}
		if !overwrite {
			return nil, fmt.Errorf("%w: %s", metadata.ErrAlreadyExists, logical)
		}
	} else if !overwrite {
		flags |= os.O_EXCL
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(fullPath), metadata.DefaultDirPermission.FileMode()); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	file, err := os.OpenFile(fullPath, flags, permission.FileMode())
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", metadata.ErrAlreadyExists, logical)
		}
		return nil, fmt.Errorf("failed to create file %s: %w", logical, err)
	}

	// The requested permission is absolute; the process umask does not apply.
	if err := os.Chmod(fullPath, permission.FileMode()); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to set permission on %s: %w", logical, err)
	}

	a.logger.Debug("File created", zap.String("path", logical), zap.Stringer("permission", permission))
	return newFileWriter(file, bufferSize, progress), nil
}

// Open opens a file for reading
func (a *LocalFS) Open(ctx context.Context, p string, bufferSize int) (io.ReadCloser, error) {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "open").Inc()

	logical, fullPath, err := a.resolve(p)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, notExist(logical, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", logical, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%w: %s", metadata.ErrIsDirectory, logical)
	}

	if bufferSize > 0 {
		return &bufferedReader{Reader: bufio.NewReaderSize(file, bufferSize), file: file}, nil
	}
	return file, nil
}

// Delete removes a file or directory. A missing path is reported as false.
func (a *LocalFS) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "delete").Inc()

	logical, fullPath, err := a.resolve(p)
	if err != nil {
		return false, err
	}
	if logical == "/" {
		return false, fmt.Errorf("%w: cannot delete the root", metadata.ErrForbidden)
	}

	info, err := os.Lstat(fullPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", logical, err)
	}

	if info.IsDir() && !recursive {
		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return false, fmt.Errorf("failed to read directory %s: %w", logical, err)
		}
		if len(entries) > 0 {
			return false, fmt.Errorf("%w: %s", metadata.ErrNotEmpty, logical)
		}
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", logical, err)
	}

	a.logger.Debug("Path deleted", zap.String("path", logical), zap.Bool("recursive", recursive))
	return true, nil
}

// Rename moves src to dst. An existing directory at dst receives src as a
// child.
func (a *LocalFS) Rename(ctx context.Context, src, dst string) error {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "rename").Inc()

	srcLogical, srcPath, err := a.resolve(src)
	if err != nil {
		return err
	}
	dstLogical, dstPath, err := a.resolve(dst)
	if err != nil {
		return err
	}
	if srcLogical == "/" {
		return fmt.Errorf("%w: cannot rename the root", metadata.ErrForbidden)
	}

	if _, err := os.Lstat(srcPath); err != nil {
		return notExist(srcLogical, err)
	}

	if info, err := os.Stat(dstPath); err == nil && info.IsDir() {
		dstLogical = path.Join(dstLogical, path.Base(srcLogical))
		dstPath = filepath.Join(dstPath, filepath.Base(srcPath))
	}
	if dstLogical == srcLogical {
		return nil
	}
	if isWithin(srcLogical, dstLogical) {
		return fmt.Errorf("%w: cannot move %s below itself", metadata.ErrForbidden, srcLogical)
	}
	if _, err := os.Lstat(dstPath); err == nil {
		return fmt.Errorf("%w: %s", metadata.ErrAlreadyExists, dstLogical)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), metadata.DefaultDirPermission.FileMode()); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", srcLogical, dstLogical, err)
	}

	a.logger.Debug("Path renamed", zap.String("src", srcLogical), zap.String("dst", dstLogical))
	return nil
}

// SetReplication is not applicable to a single local disk.
func (a *LocalFS) SetReplication(ctx context.Context, p string, replication int16) (bool, error) {
	if _, _, err := a.resolve(p); err != nil {
		return false, err
	}
	return false, nil
}

// GetFileChecksum returns the CRC32C of a file's content, or nil for a
// directory.
func (a *LocalFS) GetFileChecksum(ctx context.Context, p string) (*metadata.FileChecksum, error) {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "checksum").Inc()

	logical, fullPath, err := a.resolve(p)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, notExist(logical, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", logical, err)
	}
	if info.IsDir() {
		return nil, nil
	}

	hash := crc32.New(castagnoli)
	if _, err := io.Copy(hash, file); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", logical, err)
	}

	sum := make([]byte, 4)
	binary.BigEndian.PutUint32(sum, hash.Sum32())
	return &metadata.FileChecksum{Algorithm: checksumAlgorithm, Bytes: sum}, nil
}

// GetFileBlockLocations reports the whole file as a single block on this
// host.
func (a *LocalFS) GetFileBlockLocations(ctx context.Context, p string, start, length int64) ([]metadata.BlockLocation, error) {
	if start < 0 || length < 0 {
		return nil, fmt.Errorf("invalid block range start=%d len=%d", start, length)
	}

	status, err := a.GetFileStatus(ctx, p)
	if err != nil {
		return nil, err
	}
	if status.IsDir || status.Length <= start {
		return []metadata.BlockLocation{}, nil
	}

	return []metadata.BlockLocation{{
		Names:  []string{"localhost:9866"},
		Hosts:  []string{"localhost"},
		Offset: 0,
		Length: status.Length,
	}}, nil
}

func isWithin(root, p string) bool {
	return strings.HasPrefix(p, strings.TrimSuffix(root, "/")+"/")
}

type fileWriter struct {
	file     *os.File
	buf      *bufio.Writer
	progress metadata.Progressable
}

func newFileWriter(file *os.File, bufferSize int, progress metadata.Progressable) *fileWriter {
	w := &fileWriter{file: file, progress: progress}
	if bufferSize > 0 {
		w.buf = bufio.NewWriterSize(file, bufferSize)
	}
	return w
}

func (w *fileWriter) Write(p []byte) (int, error) {
	var (
		n   int
		err error
	)
	if w.buf != nil {
		n, err = w.buf.Write(p)
	} else {
		n, err = w.file.Write(p)
	}
	if w.progress != nil && n > 0 {
		w.progress.Progress()
	}
	return n, err
}

func (w *fileWriter) Close() error {
	var flushErr error
	if w.buf != nil {
		flushErr = w.buf.Flush()
	}
	return errors.Join(flushErr, w.file.Close())
}

type bufferedReader struct {
	*bufio.Reader
	file *os.File
}

func (r *bufferedReader) Close() error {
	return r.file.Close()
}
