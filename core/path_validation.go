package core

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/ebogdum/fsbridge/internal/pathutil"
	"github.com/ebogdum/fsbridge/metadata"
)

// IsValidName reports whether no segment of p is "." or "..". It never
// consults a delegate.
func IsValidName(p string) bool {
	return !pathutil.HasDotSegment(p)
}

// IsValidName reports whether p is a valid path name.
func (a *Adapter) IsValidName(p string) bool {
	return IsValidName(p)
}

// CheckPath accepts p only if both the structural rules and the delegate
// accept it. Rejections wrap metadata.ErrInvalidPath.
func (a *Adapter) CheckPath(p string) error {
	if err := a.checkStructure(p); err != nil {
		return err
	}

	if err := a.delegate.CheckPath(p); err != nil {
		if errors.Is(err, metadata.ErrInvalidPath) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", metadata.ErrInvalidPath, p, err)
	}
	return nil
}

func (a *Adapter) checkStructure(p string) error {
	if err := pathutil.ValidateChars(p); err != nil {
		return err
	}

	name := p
	if !strings.HasPrefix(p, pathutil.Separator) {
		u, err := url.Parse(p)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", metadata.ErrInvalidPath, p, err)
		}
		if u.Scheme == "" || u.Opaque != "" {
			return fmt.Errorf("%w: %s: path is not absolute", metadata.ErrInvalidPath, p)
		}
		if !strings.EqualFold(u.Scheme, a.uri.Scheme) {
			return fmt.Errorf("%w: %s: wrong scheme, expected %s", metadata.ErrInvalidPath, p, a.uri.Scheme)
		}
		if !a.sameAuthority(u) {
			return fmt.Errorf("%w: %s: wrong authority, expected %s", metadata.ErrInvalidPath, p, a.uri.Host)
		}
		name = u.Path
	}

	if !IsValidName(name) {
		return fmt.Errorf("%w: %s: path contains a '.' or '..' segment", metadata.ErrInvalidPath, p)
	}
	return nil
}

// sameAuthority compares authorities case-insensitively, filling in the
// delegate's default port where a side omits it.
func (a *Adapter) sameAuthority(u *url.URL) bool {
	return a.authority(u) == a.authority(a.uri)
}

func (a *Adapter) effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	if defaultPort := a.delegate.DefaultPort(); defaultPort > 0 {
		return strconv.Itoa(defaultPort)
	}
	return ""
}

// authority renders host and port the way CheckPath compares them.
func (a *Adapter) authority(u *url.URL) string {
	port := a.effectivePort(u)
	if port == "" {
		return strings.ToLower(u.Hostname())
	}
	return net.JoinHostPort(strings.ToLower(u.Hostname()), port)
}
