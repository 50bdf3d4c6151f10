package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/radio-curator/internal/bootstrap"
	"github.com/maauso/radio-curator/internal/config"
	"github.com/maauso/radio-curator/internal/playlist"
	"github.com/maauso/radio-curator/internal/run"
	"github.com/maauso/radio-curator/internal/schedule"
	"github.com/maauso/radio-curator/internal/server"
)

// errPlaylistFileRequired guards standalone builds: without a playlist file
// the queue they build dies with the process while the ledger keeps the marks.
var errPlaylistFileRequired = errors.New("standalone builds require PLAYLIST_FILE")

var (
	triggerStandalone bool
	triggerServer     string
	triggerWait       bool
	triggerPoll       time.Duration
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Queue a playlist build on the running server",
}

var updateBackendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Build from the backend feed, topped up from the local pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return trigger(cmd, schedule.KindBackendUpdate)
	},
}

var updateLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "Build from unplayed local tracks only",
	RunE: func(cmd *cobra.Command, args []string) error {
		return trigger(cmd, schedule.KindLocalUpdate)
	},
}

var resetPlayedCmd = &cobra.Command{
	Use:   "reset-played",
	Short: "Clear the played ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return trigger(cmd, schedule.KindResetPlayed)
	},
}

func init() {
	for _, c := range []*cobra.Command{updateCmd, resetPlayedCmd} {
		f := c.PersistentFlags()
		f.BoolVar(&triggerStandalone, "standalone", false, "run in this process instead of the running server")
		f.StringVar(&triggerServer, "server", "", "control URL of the running server (default http://localhost:$PORT)")
		f.BoolVar(&triggerWait, "wait", true, "wait for the run to finish")
		f.DurationVar(&triggerPoll, "poll", 2*time.Second, "status poll interval while waiting")
	}
	updateCmd.AddCommand(updateBackendCmd, updateLocalCmd)
	rootCmd.AddCommand(updateCmd, resetPlayedCmd)
}

// trigger hands kind to the running server's worker, or runs it in-process
// with --standalone.
func trigger(cmd *cobra.Command, kind schedule.Kind) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if !triggerStandalone {
		return submit(cmd, cfg, kind)
	}
	if err := checkStandalone(cfg, kind); err != nil {
		return err
	}
	return once(cmd, cfg, logger, kind)
}

// checkStandalone refuses in-process builds whose queue nothing would play.
func checkStandalone(cfg *config.Config, kind schedule.Kind) error {
	switch kind {
	case schedule.KindBackendUpdate, schedule.KindLocalUpdate:
		if cfg.PlaylistFile == "" {
			return fmt.Errorf("%w: %s", errPlaylistFileRequired, kind)
		}
	}
	return nil
}

func controlURL(cfg *config.Config) string {
	if triggerServer != "" {
		return triggerServer
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Port)
}

// submit queues kind on the running server and optionally waits for it.
func submit(cmd *cobra.Command, cfg *config.Config, kind schedule.Kind) error {
	var opts []server.ClientOption
	if cfg.CommandJWTSecret != "" {
		token, err := server.IssueToken([]byte(cfg.CommandJWTSecret), "radiod-cli", 10*time.Minute)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithToken(token))
	}
	client, err := server.NewClient(controlURL(cfg), opts...)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	created, err := client.CreateRun(ctx, string(kind))
	if err != nil {
		return fmt.Errorf("queue %s: %w", kind, err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s queued (run %s)\n", kind, created.ID)
	if !triggerWait {
		return nil
	}

	r, err := client.WaitRun(ctx, created.ID, triggerPoll)
	if err != nil {
		return err
	}
	if r.Status != string(run.StatusCompleted) {
		return fmt.Errorf("%s failed: %s", kind, r.Error)
	}
	fmt.Fprintf(out, "%s completed (run %s)\n", kind, r.ID)
	if rep := r.Report; rep != nil {
		fmt.Fprintf(out, "total %s, accepted %d, rejected %d, skipped %d, local %d\n",
			rep.Total, rep.Accepted, rep.Rejected, rep.Skipped, rep.LocalTracks)
	}
	return nil
}

// once executes a single trigger in-process, without the scheduler or server.
func once(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, kind schedule.Kind) error {
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() { _ = deps.Close() }()

	r := deps.Worker.Execute(cmd.Context(), kind, schedule.OriginManual)
	if r.Status != run.StatusCompleted {
		return fmt.Errorf("%s failed: %s", kind, r.Error)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s completed (run %s)\n", kind, r.ID)
	if rep := r.Report; rep != nil {
		fmt.Fprintf(out, "total %s, accepted %d, rejected %d, skipped %d, local %d\n",
			playlist.FormatClock(rep.Total), rep.Accepted, rep.Rejected, rep.Skipped, rep.LocalTracks)
	}
	return nil
}
