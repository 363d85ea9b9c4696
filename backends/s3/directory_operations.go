package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

// Mkdirs writes a directory marker for p. Parents are implicit in the
// marker key; an existing object anywhere along the path is an error.
func (a *S3FS) Mkdirs(ctx context.Context, p string, permission metadata.Permission) error {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "mkdir").Inc()

	logical, err := logicalPath(p)
	if err != nil {
		return err
	}
	if logical == "/" {
		return nil
	}

	status, err := a.stat(ctx, logical)
	if err == nil {
		if !status.IsDir {
			return fmt.Errorf("%w: %s exists as a file", metadata.ErrAlreadyExists, logical)
		}
		// Directory already exists - this is not an error for Mkdirs
		return nil
	}
	if !isNotFound(err) {
		return err
	}
	if err := a.checkAncestorsAreDirectories(ctx, logical); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(dirKey(logical)),
		Body:   bytes.NewReader(nil), // Empty object as directory marker
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

	if _, err := a.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to create directory marker in S3: %w", err)
	}
	if err := a.putAttributes(ctx, &metadata.Attributes{Path: logical, Permission: permission}); err != nil {
		return err
	}

	a.logger.Debug("Directory created in S3",
		zap.String("bucket", a.bucket),
		zap.String("path", logical),
		zap.Stringer("permission", permission))
	return nil
}

// GetFileStatus returns the status of an object or directory with stored
// attributes applied.
func (a *S3FS) GetFileStatus(ctx context.Context, p string) (*metadata.FileStatus, error) {
	logical, err := logicalPath(p)
	if err != nil {
		return nil, err
	}

	status, err := a.stat(ctx, logical)
	if err != nil {
		return nil, err
	}
	if err := a.withAttributes(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}

// ListStatus returns the status of every child of a directory, sorted by
// name, or the status of the object itself.
func (a *S3FS) ListStatus(ctx context.Context, p string) ([]*metadata.FileStatus, error) {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "list").Inc()

	logical, err := logicalPath(p)
	if err != nil {
		return nil, err
	}

	status, err := a.stat(ctx, logical)
	if err != nil {
		return nil, err
	}
	if !status.IsDir {
		if err := a.withAttributes(ctx, status); err != nil {
			return nil, err
		}
		return []*metadata.FileStatus{status}, nil
	}

	prefix := dirKey(logical)
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}

	var children []*metadata.FileStatus
	for {
		result, err := a.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in S3: %w", err)
		}

		// Common prefixes are subdirectories
		for _, commonPrefix := range result.CommonPrefixes {
			if commonPrefix.Prefix == nil || *commonPrefix.Prefix == prefix {
				continue
			}
			children = append(children, a.dirStatus(keyToPath(*commonPrefix.Prefix), time.Time{}))
		}

		for _, object := range result.Contents {
			// Skip the directory marker itself
			if object.Key == nil || *object.Key == prefix || strings.HasSuffix(*object.Key, "/") {
				continue
			}
			children = append(children, a.fileStatus(keyToPath(*object.Key),
				aws.Int64Value(object.Size), aws.TimeValue(object.LastModified)))
		}

		if result.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = result.NextContinuationToken
	}

	for _, child := range children {
		if err := a.withAttributes(ctx, child); err != nil {
			return nil, err
		}
	}

	sort.Slice(children, func(i, j int) bool {
		return children[i].Path < children[j].Path
	})
	return children, nil
}

// stat resolves logical to an object, a directory marker or an implicit
// directory, in that order.
func (a *S3FS) stat(ctx context.Context, logical string) (*metadata.FileStatus, error) {
	if logical == "/" {
		return a.dirStatus(logical, time.Time{}), nil
	}

	head, err := a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(pathToKey(logical)),
	})
	if err == nil {
		return a.fileStatus(logical, aws.Int64Value(head.ContentLength), aws.TimeValue(head.LastModified)), nil
	}
	if !isS3NotFound(err) {
		return nil, fmt.Errorf("failed to stat object in S3: %w", err)
	}

	marker, err := a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(dirKey(logical)),
	})
	if err == nil {
		return a.dirStatus(logical, aws.TimeValue(marker.LastModified)), nil
	}
	if !isS3NotFound(err) {
		return nil, fmt.Errorf("failed to stat directory marker in S3: %w", err)
	}

	result, err := a.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(dirKey(logical)),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in S3: %w", err)
	}
	if len(result.Contents) > 0 {
		return a.dirStatus(logical, time.Time{}), nil
	}

	return nil, fmt.Errorf("%w: %s", metadata.ErrNotFound, logical)
}

func (a *S3FS) fileStatus(logical string, size int64, modified time.Time) *metadata.FileStatus {
	return &metadata.FileStatus{
		Path:             logical,
		Length:           size,
		Replication:      1,
		BlockSize:        a.opts.BlockSize,
		ModificationTime: modified,
		AccessTime:       modified,
		Permission:       metadata.DefaultFilePermission,
		Owner:            a.opts.DefaultOwner,
		Group:            a.opts.DefaultGroup,
	}
}

func (a *S3FS) dirStatus(logical string, modified time.Time) *metadata.FileStatus {
	return &metadata.FileStatus{
		Path:             path.Clean(logical),
		IsDir:            true,
		BlockSize:        a.opts.BlockSize,
		ModificationTime: modified,
		AccessTime:       modified,
		Permission:       metadata.DefaultDirPermission,
		Owner:            a.opts.DefaultOwner,
		Group:            a.opts.DefaultGroup,
	}
}

// withAttributes overlays stored attributes on status. Unset fields keep
// the values derived from the object.
func (a *S3FS) withAttributes(ctx context.Context, status *metadata.FileStatus) error {
	if a.store == nil {
		return nil
	}

	attrs, err := a.store.Get(ctx, status.Path)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get attributes of %s: %w", status.Path, err)
	}

	if attrs.Permission != 0 {
		status.Permission = attrs.Permission
	}
	if attrs.Owner != "" {
		status.Owner = attrs.Owner
	}
	if attrs.Group != "" {
		status.Group = attrs.Group
	}
	if !attrs.MTime.IsZero() {
		status.ModificationTime = attrs.MTime
	}
	if !attrs.ATime.IsZero() {
		status.AccessTime = attrs.ATime
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, metadata.ErrNotFound)
}
