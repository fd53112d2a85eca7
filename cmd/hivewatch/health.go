// ABOUTME: The health command: queries a running server's /health endpoint
// ABOUTME: Prints event and client counts or a connection failure

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health of a running hivewatch server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4567", "server address")

	return cmd
}

func runHealth(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		return fmt.Errorf("reaching server: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Events  int    `json:"events"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	if body.Status != "ok" {
		return fmt.Errorf("server unhealthy: %s", body.Status)
	}

	fmt.Printf("ok: %d events stored, %d consumers connected\n", body.Events, body.Clients)
	return nil
}
