package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/scraperd/pkg/retry"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of all supervised workers",
	Long:  `Queries the running daemon's API and displays each worker's phase, PID, restart count, log activity and resource usage.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type workerInfo struct {
	Name         string    `json:"name"`
	Phase        string    `json:"phase"`
	PID          int       `json:"pid,omitempty"`
	Restarts     int       `json:"restarts"`
	LogPath      string    `json:"log_path"`
	LogSize      int64     `json:"log_size"`
	LastActivity time.Time `json:"last_activity"`
	CPUPercent   float64   `json:"cpu_percent,omitempty"`
	RSSBytes     uint64    `json:"rss_bytes,omitempty"`
}

type workersResponse struct {
	Workers []workerInfo `json:"workers"`
	Count   int          `json:"count"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	body, err := fetch(fmt.Sprintf("%s/workers", GetDaemonAddr()))
	if err != nil {
		return err
	}

	var result workersResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if len(result.Workers) == 0 {
		fmt.Println("No workers configured")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Worker", "Phase", "PID", "Restarts", "Log size", "Last activity", "CPU", "RSS")

	for _, w := range result.Workers {
		pid := "-"
		if w.PID > 0 {
			pid = fmt.Sprintf("%d", w.PID)
		}

		activity := "-"
		if !w.LastActivity.IsZero() {
			activity = fmt.Sprintf("%s ago", time.Since(w.LastActivity).Round(time.Second))
		}

		cpuCol := "-"
		rssCol := "-"
		if w.PID > 0 {
			cpuCol = fmt.Sprintf("%.1f%%", w.CPUPercent)
			rssCol = formatBytes(int64(w.RSSBytes))
		}

		table.Append(
			w.Name,
			w.Phase,
			pid,
			fmt.Sprintf("%d", w.Restarts),
			formatBytes(w.LogSize),
			activity,
			cpuCol,
			rssCol,
		)
	}

	table.Render()
	fmt.Printf("\nTotal workers: %d\n", result.Count)
	return nil
}

// fetch GETs a daemon API endpoint, retrying while the daemon is coming up
func fetch(url string) ([]byte, error) {
	var body []byte

	cfg := retry.DefaultConfig()
	err := retry.Do(context.Background(), cfg, func() error {
		resp, err := http.Get(url)
		if err != nil {
			if retry.IsRetryable(err) {
				return err
			}
			return fmt.Errorf("failed to connect to daemon API: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(data))
		}

		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func formatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
