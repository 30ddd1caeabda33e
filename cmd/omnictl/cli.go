package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// buildRootCmd constructs the omnictl command tree. Every subcommand talks to
// a running omnitensord over its HTTP API.
func buildRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:           "omnictl",
		Short:         "Client for the omnitensord HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultAddr := os.Getenv("OMNICTL_ADDR")
	if defaultAddr == "" {
		defaultAddr = "http://127.0.0.1:8080"
	}
	root.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "Base URL of omnitensord (defaults OMNICTL_ADDR)")

	var (
		modelID   string
		inputFile string
		inputText string
		priority  int
		maxDurMS  int64
	)
	submit := &cobra.Command{
		Use:     "submit",
		Short:   "Submit a compute task",
		Example: "  omnictl submit --model tinyllama-q4.gguf --input 'write a haiku'",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := []byte(inputText)
			if inputFile != "" {
				b, err := os.ReadFile(inputFile)
				if err != nil {
					return fmt.Errorf("read input file: %w", err)
				}
				input = b
			}
			req := types.SubmitTaskRequest{
				Model:         modelID,
				Input:         input,
				Priority:      priority,
				MaxDurationMS: maxDurMS,
			}
			var resp types.SubmitTaskResponse
			if err := postJSON(addr+"/tasks", req, &resp); err != nil {
				return err
			}
			fmt.Println(resp.TaskID)
			return nil
		},
	}
	submit.Flags().StringVar(&modelID, "model", "", "Target model id (required)")
	submit.Flags().StringVar(&inputText, "input", "", "Inline input payload")
	submit.Flags().StringVar(&inputFile, "input-file", "", "Read input payload from file")
	submit.Flags().IntVar(&priority, "priority", 0, "Informational priority")
	submit.Flags().Int64Var(&maxDurMS, "max-duration-ms", 0, "Execution budget in ms (0 = unchecked)")
	_ = submit.MarkFlagRequired("model")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getPretty(addr + "/status")
		},
	}
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Show device memory stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getPretty(addr + "/devices")
		},
	}
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getPretty(addr + "/models")
		},
	}
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Show current queue length",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getPretty(addr + "/queue")
		},
	}

	root.AddCommand(submit, status, devicesCmd, modelsCmd, queueCmd)
	return root
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func postJSON(url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getPretty(url string) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return apiError(resp)
	}
	var v any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr types.ErrorResponse
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(b))
}
