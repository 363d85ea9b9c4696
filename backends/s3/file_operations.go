package s3

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/locks"
	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

const (
	checksumMD5 = "MD5"

	// DeleteObjects accepts at most this many keys per request.
	deleteBatchSize = 1000
)

// Create streams a new object to S3. Parents are implicit in the key, so
// none need creating. The upload completes when the writer is closed.
func (a *S3FS) Create(ctx context.Context, p string, permission metadata.Permission, overwrite bool,
	bufferSize int, replication int16, blockSize int64, progress metadata.Progressable) (io.WriteCloser, error) {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "create").Inc()

	logical, err := logicalPath(p)
	if err != nil {
		return nil, err
	}
	if logical == "/" {
		return nil, fmt.Errorf("%w: %s", metadata.ErrIsDirectory, logical)
	}

	existing, err := a.stat(ctx, logical)
	switch {
	case err == nil && existing.IsDir:
		return nil, fmt.Errorf("%w: %s", metadata.ErrIsDirectory, logical)
	case err == nil && !overwrite:
		return nil, fmt.Errorf("%w: %s", metadata.ErrAlreadyExists, logical)
	case err != nil && !isNotFound(err):
		return nil, err
	}

	if err := a.checkAncestorsAreDirectories(ctx, logical); err != nil {
		return nil, err
	}

	input := &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(pathToKey(logical)),
		ContentType: aws.String(getContentType(logical)),
	}
	a.applyUploadOptions(input)

	partSize := a.opts.BlockSize
	if blockSize > 0 {
		partSize = blockSize
	}

	pr, pw := io.Pipe()
	input.Body = pr
	w := &objectWriter{pw: pw, done: make(chan error, 1), progress: progress}
	if bufferSize > 0 {
		w.buf = bufio.NewWriterSize(pw, bufferSize)
	}
	w.commit = func() error {
		return a.putAttributes(ctx, &metadata.Attributes{Path: logical, Permission: permission})
	}

	go func() {
		_, err := a.uploader.UploadWithContext(ctx, input, func(u *s3manager.Uploader) {
			if partSize >= s3manager.MinUploadPartSize {
				u.PartSize = partSize
			}
		})
		// Unblock a writer still waiting on the pipe.
		pr.CloseWithError(err)
		w.done <- err
	}()

	a.logger.Debug("Object upload started",
		zap.String("bucket", a.bucket),
		zap.String("path", logical),
		zap.Stringer("permission", permission))
	return w, nil
}

// Open opens an object for reading. With checksum verification enabled, the
// content of single-part uploads is checked against the ETag at EOF.
func (a *S3FS) Open(ctx context.Context, p string, bufferSize int) (io.ReadCloser, error) {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "open").Inc()

	logical, err := logicalPath(p)
	if err != nil {
		return nil, err
	}

	result, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(pathToKey(logical)),
	})
	if err != nil {
		if !isS3NotFound(err) {
			return nil, fmt.Errorf("failed to get object from S3: %w", err)
		}
		if status, statErr := a.stat(ctx, logical); statErr == nil && status.IsDir {
			return nil, fmt.Errorf("%w: %s", metadata.ErrIsDirectory, logical)
		}
		return nil, fmt.Errorf("%w: %s", metadata.ErrNotFound, logical)
	}

	var body io.ReadCloser = result.Body
	if etag := strings.Trim(aws.StringValue(result.ETag), `"`); a.verifyChecksum.Load() && isSinglePartETag(etag) {
		body = &verifyingReader{body: body, hash: md5.New(), want: etag, path: logical}
	}
	if bufferSize > 0 {
		body = &bufferedReader{Reader: bufio.NewReaderSize(body, bufferSize), body: body}
	}
	return body, nil
}

// Delete removes an object or a directory subtree. A missing path is
// reported as false.
func (a *S3FS) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "delete").Inc()

	logical, err := logicalPath(p)
	if err != nil {
		return false, err
	}
	if logical == "/" {
		return false, fmt.Errorf("%w: cannot delete the root", metadata.ErrForbidden)
	}

	status, err := a.stat(ctx, logical)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var keys []string
	if status.IsDir {
		keys, err = a.listKeys(ctx, dirKey(logical))
		if err != nil {
			return false, err
		}
		if !recursive && containsChild(keys, dirKey(logical)) {
			return false, fmt.Errorf("%w: %s", metadata.ErrNotEmpty, logical)
		}
	} else {
		keys = []string{pathToKey(logical)}
	}

	if err := a.deleteKeys(ctx, keys); err != nil {
		return false, err
	}
	if a.store != nil {
		if err := a.store.Delete(ctx, logical); err != nil {
			return false, fmt.Errorf("failed to delete attributes of %s: %w", logical, err)
		}
	}

	a.logger.Debug("Path deleted",
		zap.String("bucket", a.bucket),
		zap.String("path", logical),
		zap.Int("objects", len(keys)))
	return true, nil
}

// Rename copies src to dst and deletes the source. S3 has no atomic rename,
// so the move holds a lock on the source path. An existing directory at dst
// receives src as a child.
func (a *S3FS) Rename(ctx context.Context, src, dst string) error {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "rename").Inc()

	srcLogical, err := logicalPath(src)
	if err != nil {
		return err
	}
	dstLogical, err := logicalPath(dst)
	if err != nil {
		return err
	}
	if srcLogical == "/" {
		return fmt.Errorf("%w: cannot rename the root", metadata.ErrForbidden)
	}

	rename := func() error {
		srcStatus, err := a.stat(ctx, srcLogical)
		if err != nil {
			return err
		}

		if dstStatus, err := a.stat(ctx, dstLogical); err == nil && dstStatus.IsDir {
			dstLogical = path.Join(dstLogical, path.Base(srcLogical))
		}
		if dstLogical == srcLogical {
			return nil
		}
		if strings.HasPrefix(dstLogical, srcLogical+"/") {
			return fmt.Errorf("%w: cannot move %s below itself", metadata.ErrForbidden, srcLogical)
		}
		if _, err := a.stat(ctx, dstLogical); err == nil {
			return fmt.Errorf("%w: %s", metadata.ErrAlreadyExists, dstLogical)
		} else if !isNotFound(err) {
			return err
		}

		var keys []string
		if srcStatus.IsDir {
			if keys, err = a.listKeys(ctx, dirKey(srcLogical)); err != nil {
				return err
			}
		} else {
			keys = []string{pathToKey(srcLogical)}
		}

		srcPrefix, dstPrefix := pathToKey(srcLogical), pathToKey(dstLogical)
		for _, key := range keys {
			if err := a.copyObject(ctx, key, dstPrefix+strings.TrimPrefix(key, srcPrefix)); err != nil {
				return err
			}
		}
		if err := a.deleteKeys(ctx, keys); err != nil {
			return err
		}

		if a.store != nil {
			if err := a.store.Rename(ctx, srcLogical, dstLogical); err != nil {
				return fmt.Errorf("failed to rename attributes of %s: %w", srcLogical, err)
			}
		}

		a.logger.Debug("Path renamed",
			zap.String("bucket", a.bucket),
			zap.String("src", srcLogical),
			zap.String("dst", dstLogical),
			zap.Int("objects", len(keys)))
		return nil
	}

	if a.locker == nil {
		return rename()
	}
	return locks.With(ctx, a.locker, "rename:"+a.bucket+srcLogical, rename)
}

// SetReplication is accepted and ignored; S3 manages its own redundancy.
func (a *S3FS) SetReplication(ctx context.Context, p string, replication int16) (bool, error) {
	logical, err := logicalPath(p)
	if err != nil {
		return false, err
	}
	if _, err := a.stat(ctx, logical); err != nil {
		return false, err
	}
	return true, nil
}

// GetFileChecksum derives the checksum from the object's ETag, or returns
// nil for a directory. Multipart ETags are an MD5 of part MD5s and are
// labelled with the part count.
func (a *S3FS) GetFileChecksum(ctx context.Context, p string) (*metadata.FileChecksum, error) {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "checksum").Inc()

	logical, err := logicalPath(p)
	if err != nil {
		return nil, err
	}

	head, err := a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(pathToKey(logical)),
	})
	if err != nil {
		if !isS3NotFound(err) {
			return nil, fmt.Errorf("failed to stat object in S3: %w", err)
		}
		if _, statErr := a.stat(ctx, logical); statErr != nil {
			return nil, statErr
		}
		return nil, nil
	}

	etag := strings.Trim(aws.StringValue(head.ETag), `"`)
	algorithm := checksumMD5
	digest := etag
	if i := strings.IndexByte(etag, '-'); i >= 0 {
		digest = etag[:i]
		algorithm = fmt.Sprintf("MD5-OF-%sMD5", etag[i+1:])
	}
	sum, err := hex.DecodeString(digest)
	if err != nil {
		// Some S3-compatible stores return opaque ETags.
		return nil, nil
	}
	return &metadata.FileChecksum{Algorithm: algorithm, Bytes: sum}, nil
}

// GetFileBlockLocations reports one location per block of the configured
// block size overlapping [start, start+length).
func (a *S3FS) GetFileBlockLocations(ctx context.Context, p string, start, length int64) ([]metadata.BlockLocation, error) {
	if start < 0 || length < 0 {
		return nil, fmt.Errorf("invalid block range start=%d len=%d", start, length)
	}

	logical, err := logicalPath(p)
	if err != nil {
		return nil, err
	}
	status, err := a.stat(ctx, logical)
	if err != nil {
		return nil, err
	}

	locations := []metadata.BlockLocation{}
	if status.IsDir || status.Length <= start {
		return locations, nil
	}

	end := start + length
	if end > status.Length || end < start {
		end = status.Length
	}
	blockSize := a.opts.BlockSize
	for offset := (start / blockSize) * blockSize; offset < end; offset += blockSize {
		n := blockSize
		if offset+n > status.Length {
			n = status.Length - offset
		}
		locations = append(locations, metadata.BlockLocation{
			Names:  []string{"localhost:9866"},
			Hosts:  []string{"localhost"},
			Offset: offset,
			Length: n,
		})
	}
	return locations, nil
}

// checkAncestorsAreDirectories fails when any ancestor of logical is an
// existing object.
func (a *S3FS) checkAncestorsAreDirectories(ctx context.Context, logical string) error {
	for parent := path.Dir(logical); parent != "/"; parent = path.Dir(parent) {
		_, err := a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(pathToKey(parent)),
		})
		if err == nil {
			return fmt.Errorf("%w: parent %s is a file", metadata.ErrAlreadyExists, parent)
		}
		if !isS3NotFound(err) {
			return fmt.Errorf("failed to stat object in S3: %w", err)
		}
	}
	return nil
}

func (a *S3FS) applyUploadOptions(input *s3manager.UploadInput) {
	// Set server-side encryption if configured
	if a.opts.ServerSideEncryption != "" {
		input.ServerSideEncryption = aws.String(a.opts.ServerSideEncryption)
		if a.opts.ServerSideEncryption == s3.ServerSideEncryptionAwsKms && a.opts.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(a.opts.KMSKeyID)
		}
	}
	if a.opts.ACL != "" {
		input.ACL = aws.String(a.opts.ACL)
	}
}

func (a *S3FS) copyObject(ctx context.Context, srcKey, dstKey string) error {
	input := &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(a.bucket, srcKey)),
	}
	if a.opts.ServerSideEncryption != "" {
		input.ServerSideEncryption = aws.String(a.opts.ServerSideEncryption)
		if a.opts.ServerSideEncryption == s3.ServerSideEncryptionAwsKms && a.opts.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(a.opts.KMSKeyID)
		}
	}
	if a.opts.ACL != "" {
		input.ACL = aws.String(a.opts.ACL)
	}

	if _, err := a.client.CopyObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to copy object %s to %s: %w", srcKey, dstKey, err)
	}
	return nil
}

// listKeys returns every key starting with prefix.
func (a *S3FS) listKeys(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	}

	var keys []string
	for {
		result, err := a.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in S3: %w", err)
		}
		for _, object := range result.Contents {
			if object.Key != nil {
				keys = append(keys, *object.Key)
			}
		}
		if result.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = result.NextContinuationToken
	}
	return keys, nil
}

func (a *S3FS) deleteKeys(ctx context.Context, keys []string) error {
	for len(keys) > 0 {
		n := len(keys)
		if n > deleteBatchSize {
			n = deleteBatchSize
		}
		batch := keys[:n]
		keys = keys[n:]

		objects := make([]*s3.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(key)})
		}

		result, err := a.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects from S3: %w", err)
		}
		if len(result.Errors) > 0 {
			first := result.Errors[0]
			return fmt.Errorf("failed to delete %d objects from S3, first %s: %s",
				len(result.Errors), aws.StringValue(first.Key), aws.StringValue(first.Message))
		}
	}
	return nil
}

func containsChild(keys []string, marker string) bool {
	for _, key := range keys {
		if key != marker {
			return true
		}
	}
	return false
}

func copySource(bucket, key string) string {
	segments := strings.Split(bucket+"/"+key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func isSinglePartETag(etag string) bool {
	if len(etag) != md5.Size*2 {
		return false
	}
	_, err := hex.DecodeString(etag)
	return err == nil
}

type objectWriter struct {
	pw       *io.PipeWriter
	buf      *bufio.Writer
	done     chan error
	progress metadata.Progressable
	commit   func() error
	closed   bool
}

func (w *objectWriter) Write(p []byte) (int, error) {
	var (
		n   int
		err error
	)
	if w.buf != nil {
		n, err = w.buf.Write(p)
	} else {
		n, err = w.pw.Write(p)
	}
	if w.progress != nil && n > 0 {
		w.progress.Progress()
	}
	return n, err
}

// Close flushes buffered data and waits for the upload to finish.
func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.buf != nil {
		if err := w.buf.Flush(); err != nil {
			w.pw.CloseWithError(err)
			<-w.done
			return fmt.Errorf("failed to flush upload: %w", err)
		}
	}
	w.pw.Close()
	if err := <-w.done; err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return w.commit()
}

type verifyingReader struct {
	body io.ReadCloser
	hash hash.Hash
	want string
	path string
}

func (r *verifyingReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	r.hash.Write(p[:n])
	if err == io.EOF {
		if got := hex.EncodeToString(r.hash.Sum(nil)); got != r.want {
			return n, fmt.Errorf("checksum mismatch for %s: got %s, want %s", r.path, got, r.want)
		}
	}
	return n, err
}

func (r *verifyingReader) Close() error {
	return r.body.Close()
}

type bufferedReader struct {
	*bufio.Reader
	body io.Closer
}

func (r *bufferedReader) Close() error {
	return r.body.Close()
}

// getContentType returns the MIME type based on file extension
func getContentType(p string) string {
	ext := filepath.Ext(p)
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		return "text/html"
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".csv":
		return "text/csv"
	case ".txt", ".log":
		return "text/plain"
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".avro":
		return "application/avro"
	case ".gz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}
