// Package raft provides an attribute store replicated across fsbridge
// instances with hashicorp/raft. Reads are served from the local replica;
// writes must be made on the leader.
package raft

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
	hashiraft "github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

const storeName = "raft"

// ErrNotLeader is returned for writes on a follower.
var ErrNotLeader = errors.New("raft node is not the leader")

// Config configures a raft node.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// Bootstrap forms a new cluster from this node and Peers. It is ignored
	// when the data directory already holds cluster state.
	Bootstrap bool
	// Peers maps node ids to raft addresses of the other voters
	Peers map[string]string

	ApplyTimeout        time.Duration
	SnapshotInterval    time.Duration
	SnapshotThreshold   uint64
	RetainSnapshotCount int
	// HeartbeatTimeout also sets the election and leader lease timeouts
	HeartbeatTimeout time.Duration
}

const (
	opPut    = "put"
	opDelete = "delete"
	opRename = "rename"
)

// Command is one replicated mutation.
type Command struct {
	Op    string               `json:"op"`
	Path  string               `json:"path,omitempty"`
	Dst   string               `json:"dst,omitempty"`
	Attrs *metadata.Attributes `json:"attrs,omitempty"`
}

// CommandResult is what the state machine returns for a Command.
type CommandResult struct {
	Err string `json:"err,omitempty"`
}

// Store implements metadata.Store on a raft replicated map.
type Store struct {
	raft         *hashiraft.Raft
	fsm          *fsm
	closers      []io.Closer
	nodeID       string
	applyTimeout time.Duration
	logger       *zap.Logger
}

type fsm struct {
	mu    sync.RWMutex
	attrs map[string]metadata.Attributes
}

type stateSnapshot struct {
	attrs map[string]metadata.Attributes
}

// NewRaftStore starts a raft node backed by BoltDB log and stable stores in
// DataDir.
func NewRaftStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("raft node id is required")
	}
	if cfg.BindAddr == "" {
		return nil, fmt.Errorf("raft bind address is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("raft data_dir is required")
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = 10 * time.Second
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 60 * time.Second
	}
	if cfg.SnapshotThreshold == 0 {
		cfg.SnapshotThreshold = 256
	}
	if cfg.RetainSnapshotCount <= 0 {
		cfg.RetainSnapshotCount = 2
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create raft data dir: %w", err)
	}

	logOutput := zap.NewStdLog(logger.Named("raft")).Writer()

	raftCfg := hashiraft.DefaultConfig()
	raftCfg.LocalID = hashiraft.ServerID(cfg.NodeID)
	raftCfg.SnapshotInterval = cfg.SnapshotInterval
	raftCfg.SnapshotThreshold = cfg.SnapshotThreshold
	raftCfg.Logger = hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.Warn,
		Output: logOutput,
	})
	if cfg.HeartbeatTimeout > 0 {
		raftCfg.HeartbeatTimeout = cfg.HeartbeatTimeout
		raftCfg.ElectionTimeout = cfg.HeartbeatTimeout
		raftCfg.LeaderLeaseTimeout = cfg.HeartbeatTimeout
	}

	store := &Store{
		fsm:          &fsm{attrs: make(map[string]metadata.Attributes)},
		nodeID:       cfg.NodeID,
		applyTimeout: cfg.ApplyTimeout,
		logger:       logger,
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create raft log store: %w", err)
	}
	store.closers = append(store.closers, logStore)

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		store.closeStores()
		return nil, fmt.Errorf("failed to create raft stable store: %w", err)
	}
	store.closers = append(store.closers, stableStore)

	snapshotStore, err := hashiraft.NewFileSnapshotStore(cfg.DataDir, cfg.RetainSnapshotCount, logOutput)
	if err != nil {
		store.closeStores()
		return nil, fmt.Errorf("failed to create raft snapshot store: %w", err)
	}
	transport, err := hashiraft.NewTCPTransport(cfg.BindAddr, nil, 3, 10*time.Second, logOutput)
	if err != nil {
		store.closeStores()
		return nil, fmt.Errorf("failed to create raft transport: %w", err)
	}
	store.closers = append(store.closers, transport)

	store.raft, err = hashiraft.NewRaft(raftCfg, store.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		store.closeStores()
		return nil, fmt.Errorf("failed to create raft node: %w", err)
	}

	if cfg.Bootstrap {
		// The transport address is the bound one, which differs from
		// BindAddr when port 0 was requested.
		servers := []hashiraft.Server{{
			ID:       raftCfg.LocalID,
			Address:  transport.LocalAddr(),
			Suffrage: hashiraft.Voter,
		}}
		for id, addr := range cfg.Peers {
			if id == cfg.NodeID {
				continue
			}
			servers = append(servers, hashiraft.Server{
				ID:       hashiraft.ServerID(id),
				Address:  hashiraft.ServerAddress(addr),
				Suffrage: hashiraft.Voter,
			})
		}
		future := store.raft.BootstrapCluster(hashiraft.Configuration{Servers: servers})
		if err := future.Error(); err != nil && !errors.Is(err, hashiraft.ErrCantBootstrap) {
			_ = store.Close()
			return nil, fmt.Errorf("failed to bootstrap raft cluster: %w", err)
		}
	}

	logger.Info("Raft attribute store started",
		zap.String("node_id", cfg.NodeID),
		zap.String("addr", string(transport.LocalAddr())),
		zap.Bool("bootstrap", cfg.Bootstrap))
	return store, nil
}

// IsLeader reports whether this node accepts writes.
func (s *Store) IsLeader() bool {
	return s.raft.State() == hashiraft.Leader
}

// LeaderID returns the id of the current leader, or "" when there is none.
func (s *Store) LeaderID() string {
	_, leaderID := s.raft.LeaderWithID()
	return string(leaderID)
}

func (s *Store) Get(ctx context.Context, path string) (*metadata.Attributes, error) {
	defer metrics.ObserveAttributeStore(storeName, "get", time.Now())

	s.fsm.mu.RLock()
	defer s.fsm.mu.RUnlock()
	attrs, ok := s.fsm.attrs[path]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return &attrs, nil
}

func (s *Store) Put(ctx context.Context, attrs *metadata.Attributes) error {
	defer metrics.ObserveAttributeStore(storeName, "put", time.Now())

	// Timestamped here so every replica stores the same value
	stored := *attrs
	stored.UpdatedAt = time.Now().UTC()
	if err := s.apply(ctx, Command{Op: opPut, Attrs: &stored}); err != nil {
		return err
	}
	attrs.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	defer metrics.ObserveAttributeStore(storeName, "delete", time.Now())
	return s.apply(ctx, Command{Op: opDelete, Path: path})
}

func (s *Store) Rename(ctx context.Context, src, dst string) error {
	defer metrics.ObserveAttributeStore(storeName, "rename", time.Now())

	if src == "/" {
		return metadata.ErrForbidden
	}
	return s.apply(ctx, Command{Op: opRename, Path: src, Dst: dst})
}

// Close shuts the raft node down and closes its stores.
func (s *Store) Close() error {
	var err error
	if s.raft != nil {
		if shutdownErr := s.raft.Shutdown().Error(); shutdownErr != nil {
			err = fmt.Errorf("failed to shutdown raft: %w", shutdownErr)
		}
	}
	return errors.Join(err, s.closeStores())
}

func (s *Store) closeStores() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Store) apply(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.IsLeader() {
		return fmt.Errorf("%w: leader is %q", ErrNotLeader, s.LeaderID())
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	timeout := s.applyTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	f := s.raft.Apply(data, timeout)
	if err := f.Error(); err != nil {
		if errors.Is(err, hashiraft.ErrNotLeader) {
			return fmt.Errorf("%w: %v", ErrNotLeader, err)
		}
		return fmt.Errorf("raft apply failed: %w", err)
	}

	res, ok := f.Response().(CommandResult)
	if !ok {
		return fmt.Errorf("unexpected raft response type: %T", f.Response())
	}
	switch res.Err {
	case "":
		return nil
	case "forbidden":
		return metadata.ErrForbidden
	default:
		return fmt.Errorf("%s", res.Err)
	}
}

func (f *fsm) Apply(log *hashiraft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return CommandResult{Err: fmt.Sprintf("invalid_command:%v", err)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opPut:
		if cmd.Attrs == nil {
			return CommandResult{Err: "attrs_required"}
		}
		f.attrs[cmd.Attrs.Path] = *cmd.Attrs
	case opDelete:
		for p := range f.attrs {
			if metadata.IsDescendant(cmd.Path, p) {
				delete(f.attrs, p)
			}
		}
	case opRename:
		if cmd.Path == "/" {
			return CommandResult{Err: "forbidden"}
		}
		for p := range f.attrs {
			if metadata.IsDescendant(cmd.Dst, p) && !metadata.IsDescendant(cmd.Path, p) {
				delete(f.attrs, p)
			}
		}
		moved := make(map[string]metadata.Attributes)
		for p, attrs := range f.attrs {
			if metadata.IsDescendant(cmd.Path, p) {
				attrs.Path = cmd.Dst + p[len(cmd.Path):]
				moved[attrs.Path] = attrs
				delete(f.attrs, p)
			}
		}
		for p, attrs := range moved {
			f.attrs[p] = attrs
		}
	default:
		return CommandResult{Err: "unknown_operation"}
	}
	return CommandResult{}
}

func (f *fsm) Snapshot() (hashiraft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	clone := make(map[string]metadata.Attributes, len(f.attrs))
	for p, attrs := range f.attrs {
		clone[p] = attrs
	}
	return &stateSnapshot{attrs: clone}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var restored []metadata.Attributes
	if err := json.NewDecoder(rc).Decode(&restored); err != nil {
		return fmt.Errorf("failed to decode raft snapshot: %w", err)
	}

	attrs := make(map[string]metadata.Attributes, len(restored))
	for _, a := range restored {
		attrs[a.Path] = a
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attrs = attrs
	return nil
}

// Persist writes the snapshot as a path-sorted list so equal states produce
// equal snapshots.
func (s *stateSnapshot) Persist(sink hashiraft.SnapshotSink) error {
	list := make([]metadata.Attributes, 0, len(s.attrs))
	for _, attrs := range s.attrs {
		list = append(list, attrs)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })

	if err := json.NewEncoder(sink).Encode(list); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *stateSnapshot) Release() {}
