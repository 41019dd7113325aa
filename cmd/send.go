package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"firestige.xyz/mediatx/internal/config"
	"firestige.xyz/mediatx/internal/log"
	"firestige.xyz/mediatx/internal/metrics"
	"firestige.xyz/mediatx/internal/sender"
	"firestige.xyz/mediatx/internal/session"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Transmit frames to the media proxy",
		Long: `Connect to the media proxy and transmit frames at the payload rate until
the frame count is reached, the input ends, the transport refuses more
buffers or the process receives SIGINT/SIGTERM.

Audio (st30) ignores --number and runs until the input or the transport ends.

Examples:
  mediatx send -b video.yuv -w 1920 -h 1080 -f 60 -l
  mediatx send -t st30 -j pcm24 -g 96k -e 125us -c 8 -o tcp -s 10.0.0.5 -p 9002
  mediatx send -t st40 -o pcap --path anc.pcap -n 100
  mediatx send --config sender.yaml`,
		Args: cobra.NoArgs,
		RunE: runSend,
	}
	addStreamFlags(cmd.Flags(), cmd.Name())
	return cmd
}

func runSend(cmd *cobra.Command, _ []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	s := session.New(cfg, session.Options{
		Observer: metrics.NewRecorder(string(cfg.Payload.Type), string(cfg.Transport.Protocol)),
	})
	res, err := s.Run(ctx)
	if s.State() == session.StateClosed {
		printSummary(cmd.OutOrStdout(), s.ID, res, err)
	}
	return err
}

func printSummary(w io.Writer, id string, res sender.Result, err error) {
	label := color.New(color.Faint).SprintFunc()
	status := color.New(color.FgGreen, color.Bold).Sprint("DONE")
	if err != nil {
		status = color.New(color.FgRed, color.Bold).Sprint("FAILED")
	}

	fmt.Fprintf(w, "%s session %s stopped: %s\n", status, color.CyanString(id), res.Reason)
	fmt.Fprintf(w, "  %s %d\n", label("frames:  "), res.Frames)
	fmt.Fprintf(w, "  %s %d\n", label("bytes:   "), res.Bytes)
	fmt.Fprintf(w, "  %s %d\n", label("replays: "), res.Replays)
	fmt.Fprintf(w, "  %s %.2f\n", label("last fps:"), res.LastFPS)
	if res.Overruns > 0 {
		fmt.Fprintf(w, "  %s %d (worst %v)\n", label("overruns:"), res.Overruns, res.WorstOverrun)
	}
	fmt.Fprintf(w, "  %s %v\n", label("elapsed: "), res.Elapsed)
	if err != nil {
		fmt.Fprintf(w, "  %s %s\n", label("error:   "), color.RedString(err.Error()))
	}
}
