package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/scribepatch/scribepatch/internal/agent"
	"github.com/scribepatch/scribepatch/internal/repo"
	"github.com/scribepatch/scribepatch/internal/rpc"
	agentrpc "github.com/scribepatch/scribepatch/internal/rpc/agent"
	"github.com/scribepatch/scribepatch/internal/rpc/connectjson"
)

// NewGenerateCmd wires the generate command to stream patches from the daemon.
func NewGenerateCmd(opts *Options) *cobra.Command {
	var (
		transcriptPath string
		branch         string
		modelOverride  string
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:   "generate <repository-url>",
		Short: "Generate patches for a repository from a recorded conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			transcript, err := readTranscript(transcriptPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sessionID := uuid.NewString()
			reqBody := rpc.GenerateRequest{
				SessionID:     sessionID,
				CorrelationID: sessionID + "-corr",
				Model:         modelOverride,
				Repo:          repo.Ref{URL: args[0], Branch: branch},
				Transcript:    transcript,
			}

			baseURL := daemonURL(cfg.Server.Addr)
			switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
			case "ndjson":
				return generateNDJSON(ctx, cmd, baseURL+"/v1/generate", reqBody, verbose)
			default:
				return generateConnect(ctx, cmd, baseURL+agentrpc.ConnectGenerateProcedure, reqBody, verbose)
			}
		},
	}

	cmd.Flags().StringVarP(&transcriptPath, "transcript", "t", "", "Path to transcript JSON file (\"-\" or empty reads stdin)")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch to check out (default: remote default branch)")
	cmd.Flags().StringVar(&modelOverride, "model", "", "Override model id for this run")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print progress events while the daemon works")
	return cmd
}

// readTranscript loads the transcript entries from a JSON file or stdin.
func readTranscript(path string, stdin io.Reader) ([]agent.TranscriptEntry, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var transcript []agent.TranscriptEntry
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return transcript, nil
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func generateNDJSON(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.GenerateRequest, verbose bool) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var evt rpc.GenerateEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := renderEvent(cmd, evt, verbose); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func generateConnect(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.GenerateRequest, verbose bool) error {
	client := connect.NewClient[rpc.GenerateStreamRequest, rpc.GenerateEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.GenerateStreamRequest{Run: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.GenerateStreamRequest{Cancel: true, SessionID: reqBody.SessionID, CorrelationID: reqBody.CorrelationID})
		_ = stream.CloseRequest()
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := renderEvent(cmd, *evt, verbose); err != nil {
			return err
		}
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

func renderEvent(cmd *cobra.Command, evt rpc.GenerateEvent, verbose bool) error {
	out := cmd.OutOrStdout()
	switch evt.Type {
	case "message":
		if verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "[progress] %s\n", evt.Message)
		}
	case "tool":
		if verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "[tool %s] round %d\n", evt.ToolName, evt.Iteration)
		}
	case "summary":
		fmt.Fprintf(out, "Summary: %s\n", evt.Summary)
		if evt.Degraded {
			fmt.Fprintln(cmd.ErrOrStderr(), "[warn] model answer was not fully structured; patches may be incomplete")
		}
	case "patch":
		fmt.Fprintf(out, "\n=== %s ===\n", evt.Filename)
		if strings.TrimSpace(evt.Patch) == "" {
			fmt.Fprintln(out, "(no changes)")
		} else {
			fmt.Fprintln(out, evt.Patch)
		}
	case "done":
		if verbose {
			fmt.Fprintln(cmd.ErrOrStderr(), "[done]")
		}
	case "error":
		return fmt.Errorf("daemon error: %s", evt.Error)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
