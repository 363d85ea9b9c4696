package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/config"
	"github.com/ebogdum/fsbridge/core"
	"github.com/ebogdum/fsbridge/internal/app"
	"github.com/ebogdum/fsbridge/invocation"
	"github.com/ebogdum/fsbridge/metadata"
)

// fsRun builds the adapter from configuration, runs fn inside a fresh
// invocation and closes everything afterwards.
func fsRun(cmd *cobra.Command, fn func(ctx context.Context, adapter *core.Adapter) error) error {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := invocation.Begin(cmd.Context())
	a, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("Failed to close components", zap.Error(err))
		}
	}()

	return fn(ctx, a.Adapter)
}

func newFsCmd() *cobra.Command {
	fsCmd := &cobra.Command{
		Use:   "fs",
		Short: "Run file system operations against the configured backend",
	}
	fsCmd.AddCommand(
		newLsCmd(), newStatCmd(), newMkdirCmd(), newRmCmd(), newMvCmd(),
		newCatCmd(), newPutCmd(), newChmodCmd(), newChownCmd(), newChecksumCmd(), newDfCmd(),
	)
	return fsCmd
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := "/"
			if len(args) == 1 {
				p = args[0]
			}
			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				entries, err := adapter.ListStatus(ctx, p)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, e := range entries {
					kind := "-"
					if e.IsDir {
						kind = "d"
					}
					fmt.Fprintf(tw, "%s%s\t%s\t%s\t%d\t%s\t%s\n", kind, e.Permission, e.Owner, e.Group,
						e.Length, e.ModificationTime.Format(time.RFC3339), e.Path)
				}
				return tw.Flush()
			})
		},
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show the status of a file or directory as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				status, err := adapter.GetFileStatus(ctx, args[0])
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			})
		},
	}
}

func newMkdirCmd() *cobra.Command {
	var mode string
	var parents bool
	c := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			permission, err := metadata.ParsePermission(mode)
			if err != nil {
				return err
			}
			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				return adapter.Mkdir(ctx, args[0], permission, parents)
			})
		},
	}
	c.Flags().StringVarP(&mode, "mode", "m", metadata.DefaultDirPermission.Octal(), "Permission in octal")
	c.Flags().BoolVarP(&parents, "parents", "p", true, "Create missing parents")
	return c
}

func newRmCmd() *cobra.Command {
	var recursive bool
	c := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				deleted, err := adapter.Delete(ctx, args[0], recursive)
				if err != nil {
					return err
				}
				if !deleted {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: nothing to delete\n", args[0])
				}
				return nil
			})
		},
	}
	c.Flags().BoolVarP(&recursive, "recursive", "r", false, "Delete directories and their contents")
	return c
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Rename a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				return adapter.Rename(ctx, args[0], args[1])
			})
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file to standard output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				r, err := adapter.Open(ctx, args[0], 64<<10)
				if err != nil {
					return err
				}
				defer r.Close()
				_, err = io.Copy(cmd.OutOrStdout(), r)
				return err
			})
		},
	}
}

func newPutCmd() *cobra.Command {
	var mode string
	c := &cobra.Command{
		Use:   "put <local-file> <path>",
		Short: "Upload a local file, replacing any existing content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			permission, err := metadata.ParsePermission(mode)
			if err != nil {
				return err
			}
			src, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				w, err := adapter.Create(ctx, args[1], metadata.CreateFlagCreate|metadata.CreateFlagOverwrite,
					permission, 64<<10, 1, 0, nil, nil, true)
				if err != nil {
					return err
				}
				if _, err := io.Copy(w, src); err != nil {
					w.Close()
					return err
				}
				return w.Close()
			})
		},
	}
	c.Flags().StringVarP(&mode, "mode", "m", metadata.DefaultFilePermission.Octal(), "Permission in octal")
	return c
}

func newChmodCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chmod <mode> <path>",
		Short: "Change the permission of a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			permission, err := metadata.ParsePermission(args[0])
			if err != nil {
				return err
			}
			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				return adapter.SetPermission(ctx, args[1], permission)
			})
		},
	}
}

func newChownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chown <owner>[:group] <path>",
		Short: "Change the owner and group of a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, group, _ := strings.Cut(args[0], ":")
			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				return adapter.SetOwner(ctx, args[1], owner, group)
			})
		},
	}
}

func newChecksumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checksum <path>",
		Short: "Print the checksum of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				checksum, err := adapter.GetFileChecksum(ctx, args[0])
				if err != nil {
					return err
				}
				if checksum == nil {
					return fmt.Errorf("%s has no checksum", args[0])
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", args[0], checksum.Algorithm, hex.EncodeToString(checksum.Bytes))
				return err
			})
		},
	}
}

func newDfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "df",
		Short: "Show capacity and usage of the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fsRun(cmd, func(ctx context.Context, adapter *core.Adapter) error {
				status, err := adapter.GetFsStatus(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "URI\tCAPACITY\tUSED\tREMAINING")
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", adapter.URI(), status.Capacity, status.Used, status.Remaining)
				return tw.Flush()
			})
		},
	}
}
