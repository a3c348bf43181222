package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/app"
	"github.com/nhdinh03/Download-Video/internal/domain"
	"github.com/nhdinh03/Download-Video/pkg/logger"
)

var (
	serverURL    string
	serverConfig string
	platform     string
	noAutoStart  bool
	verbose      bool
	log          *zap.Logger
	rootCmd      = &cobra.Command{
		Use:   "dlvideo",
		Short: "Download-Video CLI - preview and download TikTok, Instagram and Facebook videos",
		Long:  `A command-line client for the Download-Video server.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = logger.NewCLI(verbose)
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().StringVarP(&platform, "platform", "p", "", "Platform (tiktok, instagram, facebook); detected from the URL when empty")
	rootCmd.PersistentFlags().StringVar(&serverConfig, "config", "", "Config file passed to an auto-started server")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(newClient()); err != nil {
		log.Warn("Server auto-start failed", zap.Error(err))
	}
}

func newClient() *Client {
	return NewClient(serverURL, &http.Client{})
}

// resolvePlatform returns the --platform flag or the platform owning videoURL's host
func resolvePlatform(videoURL string) (string, error) {
	if platform != "" {
		return strings.ToLower(platform), nil
	}
	registry, err := domain.NewPlatformRegistry(nil)
	if err != nil {
		return "", err
	}
	profile, ok := registry.Detect(videoURL)
	if !ok {
		var names []string
		for _, p := range registry.Platforms() {
			names = append(names, string(p))
		}
		return "", fmt.Errorf("cannot detect platform for %q, pass --platform (%s)", videoURL, strings.Join(names, ", "))
	}
	return string(profile.Platform), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var previewCmd = &cobra.Command{
	Use:   "preview [url]",
	Short: "Show title, thumbnail and media URL of a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		name, err := resolvePlatform(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		result, err := newClient().Preview(ctx, name, args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Title:\t%s\n", result.Title)
		fmt.Fprintf(w, "Thumbnail:\t%s\n", result.ThumbnailURL)
		if result.DirectVideoURL != "" {
			fmt.Fprintf(w, "Video:\t%s\n", result.DirectVideoURL)
		}
		return w.Flush()
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Download a video with live progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		name, err := resolvePlatform(args[0])
		if err != nil {
			return err
		}
		outDir, _ := cmd.Flags().GetString("output")

		ctx, cancel := signalContext()
		defer cancel()

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionClearOnFinish(),
		)

		client := newClient()
		final, err := client.Stream(ctx, name, args[0], func(event domain.ProgressEvent) {
			if event.Kind == domain.EventProgress {
				_ = bar.Set(event.Percent)
			}
		})
		_ = bar.Finish()
		if err != nil {
			return err
		}

		switch final.Kind {
		case domain.EventDone:
			path, err := client.Fetch(ctx, final.FileName, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			return nil
		case domain.EventFallback:
			fmt.Fprintf(cmd.OutOrStdout(), "Server could not download the video, open it directly:\n%s\n", final.OriginalURL)
			return nil
		default:
			return fmt.Errorf("download failed: %s", final.Message)
		}
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [filename]",
	Short: "Retrieve a finished download by file name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("output")

		ctx, cancel := signalContext()
		defer cancel()

		path, err := newClient().Fetch(ctx, args[0], outDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		health, err := newClient().Health(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Status:\t%s\n", health.Status)
		fmt.Fprintf(w, "Version:\t%s\n", health.Version)
		fmt.Fprintf(w, "Uptime:\t%s\n", health.Uptime)
		fmt.Fprintf(w, "Workers:\t%d active / %d\n", health.Pool.Active, health.Pool.Size)
		fmt.Fprintf(w, "Queued:\t%d / %d\n", health.Pool.Queued, health.Pool.QueueSize)
		fmt.Fprintf(w, "Extractor:\t%s\n", availability(health.Tools["extractor"]))
		fmt.Fprintf(w, "Re-encoder:\t%s\n", availability(health.Tools["reencoder"]))
		fmt.Fprintf(w, "Reclaimer:\t%s\n", map[bool]string{true: "running", false: "stopped"}[health.Reclaimer.Running])
		return w.Flush()
	},
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage server configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "configs/config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		if err := app.SaveConfig(domain.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringP("output", "o", ".", "Directory to save the video in")
	fetchCmd.Flags().StringP("output", "o", ".", "Directory to save the video in")
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
