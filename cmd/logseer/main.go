package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/logseer/internal/buildinfo"
	"github.com/modoterra/logseer/pkg/config"
	"github.com/modoterra/logseer/pkg/core"
	"github.com/modoterra/logseer/pkg/daemon/service"
	"github.com/modoterra/logseer/pkg/transport/uds"
	tuimodel "github.com/modoterra/logseer/pkg/tui/model"
)

var socketPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "logseer",
	Short: "Ask questions about your Docker container logs",
	Long:  "Logseer is a TUI + daemon that indexes container logs into a vector store and answers natural-language questions about them with cited sources.",
	RunE:  runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/logseer.sock", "daemon socket path")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(containersCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serviceCmd)
}

// --- Root: TUI ---

func runTUI(_ *cobra.Command, _ []string) error {
	ensureDaemon()
	app := tuimodel.New(socketPath)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func ensureDaemon() {
	if _, err := os.Stat(socketPath); err == nil {
		return
	}
	cmd := exec.Command("logseerd")
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Start()
	for i := 0; i < 30; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "warning: could not start daemon, continuing anyway")
}

func dialDaemon() (*uds.Client, error) {
	client, err := uds.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", socketPath, err)
	}
	return client, nil
}

// --- Ask ---

var (
	askK          int
	askCollection string
	askJSON       bool
)

var askCmd = &cobra.Command{
	Use:   "ask <container> <question>",
	Short: "Ask a question about one container's logs",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		containerID, err := resolveContainer(client, args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodQuery, uds.QueryRequest{
			ContainerID: containerID,
			Question:    args[1],
			K:           askK,
			Collection:  askCollection,
		})
		if err != nil {
			return err
		}

		var qr uds.QueryResponse
		if err := resp.UnmarshalData(&qr); err != nil {
			return err
		}

		if askJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(qr)
		}

		fmt.Println(qr.Answer)
		if len(qr.Sources) > 0 {
			fmt.Println("\nSources:")
			for i, s := range qr.Sources {
				fmt.Printf("  [%d] %s to %s  score=%.2f\n      %s\n",
					i+1,
					s.FirstTS.Local().Format(time.RFC3339),
					s.LastTS.Local().Format(time.RFC3339),
					s.Score, s.Snippet)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().IntVar(&askK, "k", 0, "max sources to use (0 = configured default)")
	askCmd.Flags().StringVar(&askCollection, "collection", "", "collection to search: exact, approximate, or errors")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
}

// resolveContainer accepts either a container ID or a name known to the
// daemon.
func resolveContainer(client *uds.Client, ref string) (string, error) {
	handles, err := listContainers(client)
	if err != nil {
		return "", err
	}
	for _, h := range handles {
		if h.ID == ref || h.Name == ref {
			return h.ID, nil
		}
	}
	// Unknown refs pass through; the daemon may still have retained
	// chunks for a destroyed container.
	return ref, nil
}

func listContainers(client *uds.Client) ([]core.ContainerHandle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Request(ctx, uds.MethodListContainers, nil)
	if err != nil {
		return nil, err
	}

	var handles []core.ContainerHandle
	if err := resp.UnmarshalData(&handles); err != nil {
		return nil, err
	}
	return handles, nil
}

// --- Containers ---

var containersJSON bool

var containersCmd = &cobra.Command{
	Use:   "containers",
	Short: "List tracked containers",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		handles, err := listContainers(client)
		if err != nil {
			return err
		}

		if containersJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(handles)
		}

		if len(handles) == 0 {
			fmt.Println("no containers")
			return nil
		}

		fmt.Printf("%-20s %-12s %-8s %s\n", "NAME", "STATE", "CHUNKS", "ID")
		for _, h := range handles {
			fmt.Printf("%-20s %-12s %-8d %s\n", h.Name, h.State, h.Chunks, h.ID)
		}
		return nil
	},
}

func init() {
	containersCmd.Flags().BoolVar(&containersJSON, "json", false, "output as JSON")
}

// --- Stats ---

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ingestion and index counters",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodStats, nil)
		if err != nil {
			return err
		}

		var stats uds.StatsResponse
		if err := resp.UnmarshalData(&stats); err != nil {
			return err
		}

		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Printf("containers:     %d (%d streaming)\n", stats.Containers, stats.Streaming)
		fmt.Printf("chunks indexed: %d (%d error chunks)\n", stats.ChunksIndexed, stats.ErrorChunks)
		fmt.Printf("chunks dropped: %d\n", stats.Dropped)
		fmt.Printf("searches:       %d\n", stats.Searches)
		fmt.Printf("purged:         %d\n", stats.Purged)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if daemon is running",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodPing, nil)
		if err != nil {
			return err
		}

		var pong uds.PingResponse
		if err := resp.UnmarshalData(&pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Printf("pong ✓ (logseerd %s)\n", pong.Version)
		}
		return nil
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("logseer %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

// --- Daemon ---

var daemonConfigFlag string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start daemon in foreground (for debugging)",
	Long:  "Normally the TUI auto-spawns the daemon. Use this to run it manually.",
	RunE: func(_ *cobra.Command, _ []string) error {
		args := []string{}
		if daemonConfigFlag != "" {
			args = append(args, "--config", daemonConfigFlag)
		}
		cmd := exec.Command("logseerd", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	},
}

func init() {
	daemonCmd.Flags().StringVar(&daemonConfigFlag, "config", "", "path to logseer.yaml")
}

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage logseer.yaml configuration",
}

var configInitOutput string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a logseer.yaml with default settings",
	RunE: func(_ *cobra.Command, _ []string) error {
		if _, err := os.Stat(configInitOutput); err == nil {
			return fmt.Errorf("%s already exists", configInitOutput)
		}
		if err := config.Save(config.Default(), configInitOutput); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configInitOutput)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a logseer.yaml file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		path := "logseer.yaml"
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Printf("%s: valid\n", path)
			return nil
		}

		fmt.Fprintf(os.Stderr, "%s: %d error(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  • %s\n", e)
		}
		os.Exit(1)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output", "logseer.yaml", "output file path")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}

// --- Service ---

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the logseerd systemd user service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start logseerd as a systemd user service",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := service.Install(); err != nil {
			return err
		}
		fmt.Println("logseerd service installed and started")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the logseerd systemd user service",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := service.Uninstall(); err != nil {
			return err
		}
		fmt.Println("logseerd service removed")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon socket and service status",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(service.Status(socketPath))
	},
}

func init() {
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}
