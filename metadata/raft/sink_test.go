package raft

import (
	"bytes"
	"io"
)

// memorySink is a raft.SnapshotSink that keeps the snapshot in memory.
type memorySink struct {
	bytes.Buffer
	canceled bool
}

func (s *memorySink) ID() string    { return "memory" }
func (s *memorySink) Close() error  { return nil }
func (s *memorySink) Cancel() error { s.canceled = true; return nil }

var _ io.ReadCloser = (*memorySink)(nil)
