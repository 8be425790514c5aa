// cmd/drift/commands.go
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"drift/internal/config"
	"drift/internal/diff"
	derr "drift/internal/errors"
	"drift/internal/index"
	"drift/internal/remote"
	"drift/internal/remote/factory"
	"drift/internal/repo"
	"drift/internal/revert"
	"drift/internal/transfer"
	"drift/internal/workspace"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty repository",
		Long:  `Creates the .drift directory holding the object store, history and configuration.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			remoteURL := a.v.GetString("remote.url")
			if remoteURL != "" {
				if _, err := remote.ParseURL(remoteURL); err != nil {
					return derr.ValidationError("%v", err)
				}
			}

			root, err := a.pathArg(".")
			if err != nil {
				return err
			}
			err = repo.Init(root, repo.InitOptions{
				RemoteURL: remoteURL,
				Logger:    a.log.ForCommand(cmd.Name()),
			})
			if err != nil {
				return err
			}

			a.printf("Initialized empty drift repository in %s\n", repo.MetaPath(root))
			return nil
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>...",
		Short: "Stage files for the next commit",
		Long:  `Records the current content of each file. Directories are staged recursively, skipping hidden entries.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repository) error {
				total := 0
				for _, arg := range args {
					p, err := a.pathArg(arg)
					if err != nil {
						return err
					}
					entries, err := r.Index.Stage(p)
					if err != nil {
						return err
					}
					total += len(entries)
				}
				a.printf("Staged %d file(s)\n", total)
				return nil
			})
		},
	}
}

func (a *app) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <path>...",
		Short: "Remove files from the staging area",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repository) error {
				for _, arg := range args {
					p, err := a.pathArg(arg)
					if err != nil {
						return err
					}
					if err := r.Index.Unstage(p); err != nil {
						return err
					}
				}
				a.printf("Unstaged %d path(s)\n", len(args))
				return nil
			})
		},
	}
}

func (a *app) commitCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "commit [message]",
		Short: "Record the staged files as a new commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if message != "" {
					return derr.ValidationError("give the message either as an argument or with -m, not both")
				}
				message = args[0]
			}
			if message == "" {
				return derr.ValidationError("a commit message is required")
			}

			return a.withRepo(cmd, func(r *repo.Repository) error {
				c, err := r.Graph.Create(message)
				if err != nil {
					return err
				}
				a.printf("[%s] %s\n", color.YellowString(c.ShortID()), c.Message)
				a.printf(" %d file(s) in snapshot\n", len(c.Snapshot))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}

// openBucket builds the configured remote. The returned release func closes
// adapters that hold clients.
func openBucket(ctx context.Context, r *repo.Repository) (remote.Bucket, func(), error) {
	if r.Config.Remote.URL == "" {
		return nil, nil, derr.ValidationError("no remote configured (use \"drift remote set <url>\" or --remote)")
	}
	bucket, err := factory.BuildBucket(ctx, r.Config.Remote.URL, r.Config, r.Logger)
	if err != nil {
		return nil, nil, derr.RemoteUnreachable("connect", err)
	}
	release := func() {
		if c, ok := bucket.(io.Closer); ok {
			c.Close()
		}
	}
	return bucket, release, nil
}

func (a *app) pushCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload local history to the remote",
		Long: `Uploads every commit and blob the remote lacks, then moves the remote HEAD.
The remote HEAD is only written after all uploads succeeded; an interrupted
push can simply be repeated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repository) error {
				bucket, release, err := openBucket(cmd.Context(), r)
				if err != nil {
					return err
				}
				defer release()

				s := transfer.New(r, bucket, transfer.OptionsFromConfig(r.Config, r.Logger))
				res, err := s.Push(cmd.Context(), force)
				if err != nil {
					return err
				}

				switch {
				case res.Head == "":
					a.printf("Nothing to push\n")
				case res.Uploaded() == 0 && !res.HeadAdvanced:
					a.printf("Everything up to date\n")
				default:
					a.printf("Uploaded %d blob(s) and %d commit(s)\n", res.BlobsUploaded, res.CommitsUploaded)
					a.printf("Remote HEAD is now %s\n", color.YellowString(shortID(res.Head)))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite a remote HEAD that is not in local history")
	return cmd
}

func (a *app) pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Download remote history and fast-forward HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repository) error {
				bucket, release, err := openBucket(cmd.Context(), r)
				if err != nil {
					return err
				}
				defer release()

				s := transfer.New(r, bucket, transfer.OptionsFromConfig(r.Config, r.Logger))
				res, err := s.Pull(cmd.Context())
				if err != nil {
					return err
				}

				if !res.HeadAdvanced {
					a.printf("Already up to date\n")
					return nil
				}
				a.printf("Fetched %d commit(s) and %d blob(s)\n", res.CommitsFetched, res.BlobsDownloaded)
				a.printf("HEAD is now %s\n", color.YellowString(shortID(res.Head)))
				return nil
			})
		},
	}
}

func (a *app) revertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <commit>",
		Short: "Restore the working copy files of a commit",
		Long: `Writes every file of the commit's snapshot back to the working copy.
Files not in the snapshot are kept, and neither HEAD nor the staging area change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repository) error {
				res, err := revert.Revert(r, args[0])
				if err != nil {
					return err
				}
				for _, p := range res.Written {
					a.printf("restored %s\n", p)
				}
				a.printf("Working copy matches %s (%d restored, %d unchanged)\n",
					color.YellowString(res.Commit.ShortID()), len(res.Written), len(res.Unchanged))
				return nil
			})
		},
	}
}

func (a *app) logCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commit history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repository) error {
				head, err := r.Head()
				if err != nil {
					return err
				}
				if head == "" {
					a.printf("No commits yet\n")
					return nil
				}

				shown := 0
				for c, err := range r.Graph.Walk(head) {
					if err != nil {
						return err
					}
					if limit > 0 && shown == limit {
						break
					}
					a.printf("%s %s\n", color.YellowString("commit"), color.YellowString(c.ID))
					a.printf("Date:   %s\n\n", c.Timestamp.Local().Format(time.RFC1123Z))
					a.printf("    %s\n\n", strings.ReplaceAll(c.Message, "\n", "\n    "))
					shown++
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "show at most this many commits")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show staged, modified, deleted and untracked files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repository) error {
				ws := workspace.New(r)
				if err := a.printStatus(ws); err != nil {
					return err
				}
				if !watch {
					return nil
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				a.printf("\nWatching for changes, press Ctrl-C to stop\n")
				return ws.Watch(ctx, workspace.DefaultDebounce, func(paths []string) {
					a.printf("\n%s %s\n", color.CyanString("changed:"), strings.Join(paths, ", "))
					if err := a.printStatus(ws); err != nil {
						a.printf("%s %v\n", color.RedString("status failed:"), err)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and print status whenever files change")
	return cmd
}

func (a *app) printStatus(ws *workspace.Workspace) error {
	changes, err := ws.Status()
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		a.printf("Nothing to commit, working copy clean\n")
		return nil
	}

	for _, c := range changes {
		var label string
		switch c.State {
		case workspace.StateStaged:
			label = color.GreenString("%-10s", c.State)
		case workspace.StateModified, workspace.StateDeleted:
			label = color.RedString("%-10s", c.State)
		default:
			label = color.New(color.Faint).Sprintf("%-10s", c.State)
		}
		a.printf("  %s %s\n", label, c.Path)
	}
	return nil
}

func (a *app) diffCmd() *cobra.Command {
	var staged bool
	var contextLines int

	cmd := &cobra.Command{
		Use:   "diff [path]...",
		Short: "Show line changes of tracked files",
		Long: `Compares the working copy with the staging index, falling back to HEAD for
paths that are not staged. With --staged, compares HEAD with the staging index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepo(cmd, func(r *repo.Repository) error {
				var filter []string
				for _, arg := range args {
					p, err := a.pathArg(arg)
					if err != nil {
						return err
					}
					rel, err := index.RelPath(r.Root, p)
					if err != nil {
						return err
					}
					filter = append(filter, rel)
				}

				diffs, err := workspace.New(r).Diff(diff.NewEngine(contextLines), staged, filter...)
				if err != nil {
					return err
				}
				for _, d := range diffs {
					a.printFileDiff(d)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&staged, "staged", false, "compare HEAD with the staging index")
	cmd.Flags().IntVarP(&contextLines, "unified", "U", 3, "lines of context around each change")
	return cmd
}

func (a *app) printFileDiff(d workspace.FileDiff) {
	oldName, newName := "a/"+d.Path, "b/"+d.Path
	if d.OldID == "" {
		oldName = "/dev/null"
	}
	if d.NewID == "" {
		newName = "/dev/null"
	}
	bold := color.New(color.Bold)
	a.printf("%s\n", bold.Sprintf("diff a/%s b/%s", d.Path, d.Path))
	a.printf("%s\n%s\n", bold.Sprintf("--- %s", oldName), bold.Sprintf("+++ %s", newName))

	if d.Result.Binary {
		a.printf("Binary files differ\n")
		return
	}
	for _, h := range d.Result.Hunks {
		a.printf("%s\n", color.CyanString("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines))
		for _, l := range h.Lines {
			line := string(l.Type.Prefix()) + l.Content
			switch l.Type {
			case diff.Addition:
				line = color.GreenString("%s", line)
			case diff.Deletion:
				line = color.RedString("%s", line)
			}
			a.printf("%s\n", line)
		}
	}
}

func (a *app) remoteCmd() *cobra.Command {
	remoteCmd := &cobra.Command{
		Use:   "remote",
		Short: "Show or change the configured remote",
	}

	setCmd := &cobra.Command{
		Use:   "set <url>",
		Short: "Set the remote URL (s3://bucket/prefix, gs://bucket/prefix, file:///dir or mem://name)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := remote.ParseURL(args[0]); err != nil {
				return derr.ValidationError("%v", err)
			}
			root, err := repo.FindRoot(a.dir)
			if err != nil {
				return err
			}
			if err := config.Set(a.configPath(root), "remote.url", args[0]); err != nil {
				return err
			}
			a.printf("Remote set to %s\n", args[0])
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the remote URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := repo.FindRoot(a.dir)
			if err != nil {
				return err
			}
			cfg, err := config.Load(a.v, a.configPath(root))
			if err != nil {
				return derr.ValidationError("%v", err)
			}
			if cfg.Remote.URL == "" {
				a.printf("No remote configured\n")
				return nil
			}
			a.printf("%s\n", cfg.Remote.URL)
			return nil
		},
	}

	remoteCmd.AddCommand(setCmd, showCmd)
	return remoteCmd
}

func (a *app) configPath(root string) string {
	if a.cfgFile != "" {
		return a.cfgFile
	}
	return repo.ConfigPath(root)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
