// Package core exposes a delegate file system through the hierarchical file
// system contract. Every call is logged with the caller's invocation id and
// its arguments, validated, and forwarded to the delegate unchanged.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ebogdum/fsbridge/backends"
	"github.com/ebogdum/fsbridge/core/log"
	"github.com/ebogdum/fsbridge/invocation"
	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

// Policy controls the behaviors in which the adapter deliberately departs
// from what the caller asked for.
type Policy struct {
	// LenientParentCreation makes Create and Mkdir create missing parents
	// even when the caller passes createParent=false.
	LenientParentCreation bool
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{LenientParentCreation: true}
}

func (p Policy) String() string {
	if p.LenientParentCreation {
		return "lenient parent creation (createParent=false is ignored)"
	}
	return "strict parent creation"
}

// Adapter forwards file system operations to a delegate.
type Adapter struct {
	delegate backends.FileSystem
	uri      *url.URL
	policy   Policy
	logger   *log.Logger
}

// NewAdapter validates uri against the delegate, initializes the delegate
// with it and returns an adapter bound to both.
func NewAdapter(ctx context.Context, delegate backends.FileSystem, uri *url.URL, logger *log.Logger, policy Policy) (*Adapter, error) {
	if delegate == nil {
		return nil, errors.New("delegate file system is required")
	}
	if uri == nil {
		return nil, errors.New("file system uri is required")
	}
	if !strings.EqualFold(uri.Scheme, delegate.Scheme()) {
		return nil, fmt.Errorf("uri %s does not match scheme %q", uri, delegate.Scheme())
	}
	if delegate.AuthorityNeeded() && uri.Host == "" {
		return nil, fmt.Errorf("uri %s has no authority", uri)
	}
	if logger == nil {
		logger = log.New("adapter", nil, nil)
	}

	if err := delegate.Initialize(ctx, uri); err != nil {
		return nil, fmt.Errorf("failed to initialize %s delegate: %w", delegate.Scheme(), err)
	}

	a := &Adapter{
		delegate: delegate,
		uri:      uri,
		policy:   policy,
		logger:   logger,
	}

	a.logger.Config(ctx, "%s: initialized adapter for %s with %s", invocation.Current(ctx), uri, policy)
	return a, nil
}

// Policy returns the policy the adapter was constructed with.
func (a *Adapter) Policy() Policy {
	return a.policy
}

// URI returns the delegate's identity URI. The adapter never rebuilds it, so
// no default port is appended to the authority.
func (a *Adapter) URI() *url.URL {
	return a.delegate.URI()
}

// GetURIDefaultPort returns the delegate's default port.
func (a *Adapter) GetURIDefaultPort(ctx context.Context) int {
	port := a.delegate.DefaultPort()
	a.logger.Finest(ctx, "%s: getUriDefaultPort(): %d", invocation.Current(ctx), port)
	return port
}

// GetFsStatus returns capacity and usage of the delegate.
func (a *Adapter) GetFsStatus(ctx context.Context) (status *metadata.FsStatus, err error) {
	defer a.observe("get_fs_status", time.Now(), &err)
	a.logger.Finest(ctx, "%s: getFsStatus()", invocation.Current(ctx))
	return a.delegate.GetStatus(ctx)
}

// GetServerDefaults returns the defaults the delegate applies to new files.
func (a *Adapter) GetServerDefaults(ctx context.Context) (defaults *metadata.ServerDefaults, err error) {
	defer a.observe("get_server_defaults", time.Now(), &err)
	a.logger.Finest(ctx, "%s: getServerDefaults()", invocation.Current(ctx))
	return a.delegate.GetServerDefaults(ctx)
}

// SetVerifyChecksum toggles checksum verification on the delegate.
func (a *Adapter) SetVerifyChecksum(ctx context.Context, verify bool) {
	var err error
	defer a.observe("set_verify_checksum", time.Now(), &err)
	a.logger.Finest(ctx, "%s: setVerifyChecksum(verifyChecksum: %t)", invocation.Current(ctx), verify)
	a.delegate.SetVerifyChecksum(verify)
}

// Close releases the delegate.
func (a *Adapter) Close(ctx context.Context) error {
	a.logger.Config(ctx, "%s: close()", invocation.Current(ctx))
	if err := a.delegate.Close(); err != nil {
		return fmt.Errorf("failed to close %s delegate: %w", a.delegate.Scheme(), err)
	}
	return nil
}

func (a *Adapter) observe(operation string, start time.Time, err *error) {
	status := "success"
	switch {
	case *err == nil:
	case errors.Is(*err, metadata.ErrInvalidPath):
		status = "invalid_path"
	default:
		status = "error"
	}
	metrics.AdapterOpsTotal.WithLabelValues(operation, status).Inc()
	metrics.AdapterOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
