package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	eventsLimit  int
	eventsWorker string
)

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent worker restart events",
	Long:  `Queries the running daemon's API and displays the restart history, newest first.`,
	RunE:  runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "maximum number of events to show")
	eventsCmd.Flags().StringVarP(&eventsWorker, "worker", "w", "", "only show events for this worker")
}

type restartEvent struct {
	ID           string    `json:"id"`
	Worker       string    `json:"worker"`
	Reason       string    `json:"reason"`
	PID          int       `json:"pid"`
	RestartCount int       `json:"restart_count"`
	At           time.Time `json:"at"`
}

type eventsResponse struct {
	Events []restartEvent `json:"events"`
	Count  int            `json:"count"`
}

func runEvents(cmd *cobra.Command, args []string) error {
	body, err := fetch(eventsURL(GetDaemonAddr(), eventsLimit, eventsWorker))
	if err != nil {
		return err
	}

	var result eventsResponse
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

	if len(result.Events) == 0 {
		fmt.Println("No restart events recorded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Worker", "Reason", "Old PID", "Restart #")

	for _, e := range result.Events {
		pid := "-"
		if e.PID > 0 {
			pid = fmt.Sprintf("%d", e.PID)
		}
		table.Append(
			e.At.Format("2006-01-02 15:04:05"),
			e.Worker,
			e.Reason,
			pid,
			fmt.Sprintf("%d", e.RestartCount),
		)
	}

	table.Render()
	fmt.Printf("\nTotal events: %d\n", result.Count)
	return nil
}

// eventsURL builds the events query; the worker name is operator input and
// must be escaped.
func eventsURL(addr string, limit int, worker string) string {
	u := fmt.Sprintf("%s/events?limit=%d", addr, limit)
	if worker != "" {
		u += "&worker=" + url.QueryEscape(worker)
	}
	return u
}
