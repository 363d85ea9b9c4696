package s3

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/internal/pathutil"
	"github.com/ebogdum/fsbridge/locks"
	"github.com/ebogdum/fsbridge/metadata"
)

const (
	// Scheme is the URI scheme served by the object-store delegate.
	Scheme = "s3"

	backendType = "s3"
	maxKeyLen   = 1024
)

// Options configures the S3 delegate.
type Options struct {
	Region               string
	Endpoint             string // custom endpoint, e.g. MinIO
	AccessKey            string
	SecretKey            string
	DisableSSL           bool
	ServerSideEncryption string
	ACL                  string
	KMSKeyID             string

	// BlockSize is the multipart part size and the reported block size
	BlockSize int64

	// Reported for paths without stored attributes
	DefaultOwner string
	DefaultGroup string
}

// S3FS implements backends.FileSystem on an S3 bucket. Directories are
// either implicit key prefixes or empty "dir/" marker objects. Permission,
// owner and times live in a metadata.Store because S3 cannot keep them.
type S3FS struct {
	opts           Options
	client         s3iface.S3API
	uploader       s3manageriface.UploaderAPI
	bucket         string
	uri            *url.URL
	store          metadata.Store
	locker         locks.Manager
	verifyChecksum atomic.Bool
	logger         *zap.Logger
}

// NewS3FS creates an uninitialized S3 delegate. The client is built from
// opts at initialization. store and locker may be nil, in which case
// attribute changes are unsupported and renames are not serialized.
func NewS3FS(opts Options, store metadata.Store, locker locks.Manager, logger *zap.Logger) *S3FS {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 64 << 20
	}
	if opts.DefaultOwner == "" {
		opts.DefaultOwner = "root"
	}
	if opts.DefaultGroup == "" {
		opts.DefaultGroup = opts.DefaultOwner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fs := &S3FS{opts: opts, store: store, locker: locker, logger: logger}
	fs.verifyChecksum.Store(true)
	return fs
}

// NewS3FSWithClient creates a delegate that uses an existing client and
// uploader.
func NewS3FSWithClient(client s3iface.S3API, uploader s3manageriface.UploaderAPI, opts Options,
	store metadata.Store, locker locks.Manager, logger *zap.Logger) *S3FS {
	fs := NewS3FS(opts, store, locker, logger)
	fs.client = client
	fs.uploader = uploader
	return fs
}

func (a *S3FS) Scheme() string        { return Scheme }
func (a *S3FS) DefaultPort() int      { return -1 }
func (a *S3FS) AuthorityNeeded() bool { return true }
func (a *S3FS) URI() *url.URL         { return a.uri }

// Initialize binds the delegate to the bucket named by the URI authority.
func (a *S3FS) Initialize(ctx context.Context, uri *url.URL) error {
	if uri.Host == "" {
		return fmt.Errorf("S3 bucket name is required in %s", uri)
	}
	a.bucket = uri.Host

	if a.client == nil {
		sess, err := a.newSession()
		if err != nil {
			return err
		}
		client := s3.New(sess)
		a.client = client
		a.uploader = s3manager.NewUploaderWithClient(client)
	}

	// Verify bucket access
	_, err := a.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to access S3 bucket %s: %w", a.bucket, err)
	}

	a.uri = &url.URL{Scheme: Scheme, Host: a.bucket}
	a.logger.Info("S3 delegate initialized", zap.String("bucket", a.bucket))
	return nil
}

func (a *S3FS) newSession() (*session.Session, error) {
	awsConfig := &aws.Config{
		Region:     aws.String(a.opts.Region),
		DisableSSL: aws.Bool(a.opts.DisableSSL),
	}
	if a.opts.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(a.opts.AccessKey, a.opts.SecretKey, "")
	}

	// Set custom endpoint if provided (for MinIO compatibility)
	if a.opts.Endpoint != "" {
		awsConfig.Endpoint = aws.String(a.opts.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return sess, nil
}

// CheckPath rejects paths whose key is not valid UTF-8 or too long for S3.
func (a *S3FS) CheckPath(path string) error {
	logical, err := logicalPath(path)
	if err != nil {
		return err
	}
	key := pathToKey(logical)
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: key is not valid UTF-8", metadata.ErrInvalidPath)
	}
	// Room for the directory marker suffix.
	if len(key)+1 > maxKeyLen {
		return fmt.Errorf("%w: key exceeds %d bytes", metadata.ErrInvalidPath, maxKeyLen)
	}
	return nil
}

func (a *S3FS) SetVerifyChecksum(verify bool) {
	a.verifyChecksum.Store(verify)
}

// GetServerDefaults returns the defaults applied to new objects.
func (a *S3FS) GetServerDefaults(ctx context.Context) (*metadata.ServerDefaults, error) {
	return &metadata.ServerDefaults{
		BlockSize:           a.opts.BlockSize,
		BytesPerChecksum:    512,
		WritePacketSize:     64 << 10,
		Replication:         1,
		FileBufferSize:      4096,
		EncryptDataTransfer: !a.opts.DisableSSL,
		ChecksumType:        checksumMD5,
	}, nil
}

// GetStatus reports an unbounded capacity; buckets have no fixed size.
func (a *S3FS) GetStatus(ctx context.Context) (*metadata.FsStatus, error) {
	return &metadata.FsStatus{
		Capacity:  math.MaxInt64,
		Used:      0,
		Remaining: math.MaxInt64,
	}, nil
}

// Close closes any resources used by the S3 delegate. The attribute store
// and lock manager are owned by the caller.
func (a *S3FS) Close() error {
	return nil
}

// logicalPath strips scheme and bucket from p and cleans it.
func logicalPath(p string) (string, error) {
	if !strings.HasPrefix(p, pathutil.Separator) {
		u, err := url.Parse(p)
		if err != nil {
			return "", fmt.Errorf("%w: %v", metadata.ErrInvalidPath, err)
		}
		p = u.Path
		if p == "" {
			p = pathutil.Separator
		}
	}

	clean, err := pathutil.Clean(p)
	if err != nil {
		return "", fmt.Errorf("%w: %s escapes the bucket root", metadata.ErrInvalidPath, p)
	}
	return clean, nil
}

// pathToKey converts a logical path to an S3 key
func pathToKey(logical string) string {
	return strings.TrimPrefix(logical, "/")
}

// keyToPath converts an S3 key to a logical path
func keyToPath(key string) string {
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return "/"
	}
	return "/" + key
}

// dirKey returns the marker key of a directory.
func dirKey(logical string) string {
	key := pathToKey(logical)
	if key == "" {
		return ""
	}
	return key + "/"
}

// isS3NotFound checks if an error indicates the object was not found
func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
