package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"faultline/internal/app"
	"faultline/internal/ingest"
	"faultline/internal/notifier"
	"faultline/internal/pipeline"
)

type reportOptions struct {
	kind     string
	headline string
	fields   []string
	httpURL  string
	token    string
	async    bool
	timeout  time.Duration
}

func newReportCommand(opts *rootOptions) *cobra.Command {
	ro := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report [payload|-]",
		Short: "Submit an error report through NATS or the HTTP API",
		Long: `Submit one error report. The payload is the first argument, or standard
input when the argument is "-" or missing. Reports go through NATS unless
--http names a faultline server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			fields, err := parseFields(ro.fields)
			if err != nil {
				return err
			}
			req := app.ReportRequest{
				Kind:     ro.kind,
				Payload:  payload,
				Headline: ro.headline,
				Fields:   fields,
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), ro.timeout)
			defer cancel()

			var out any
			if ro.httpURL != "" {
				out, err = reportHTTP(ctx, ro, req)
			} else {
				out, err = reportNATS(ctx, opts, ro, req)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&ro.kind, "kind", "", "event kind shown in the Event field")
	cmd.Flags().StringVar(&ro.headline, "headline", "", "title override; defaults to the first payload line")
	cmd.Flags().StringArrayVar(&ro.fields, "field", nil, "extra field as name=value, repeatable")
	cmd.Flags().StringVar(&ro.httpURL, "http", "", "base URL of a faultline server to report to over HTTP")
	cmd.Flags().StringVar(&ro.token, "token", "", "bearer token for --http")
	cmd.Flags().BoolVar(&ro.async, "async", false, "publish to NATS without waiting for the outcome")
	cmd.Flags().DurationVar(&ro.timeout, "timeout", 30*time.Second, "how long to wait for the outcome")
	return cmd
}

func readPayload(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("payload is empty")
	}
	return string(data), nil
}

func parseFields(raw []string) ([]notifier.Field, error) {
	fields := make([]notifier.Field, 0, len(raw))
	for _, item := range raw {
		name, value, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("field %q must be name=value", item)
		}
		fields = append(fields, notifier.InlineField(strings.TrimSpace(name), value))
	}
	return fields, nil
}

func reportNATS(ctx context.Context, opts *rootOptions, ro *reportOptions, req app.ReportRequest) (any, error) {
	if opts.cfg.NATSURL == "" {
		return nil, fmt.Errorf("nats_url is not configured; use --http to report over HTTP")
	}
	nc, err := ingest.Connect(opts.cfg.NATSURL, opts.logger)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	rep := pipeline.Report{
		Kind:     req.Kind,
		Payload:  req.Payload,
		Headline: req.Headline,
		Fields:   req.Fields,
	}
	publisher := ingest.NewPublisher(nc)
	if ro.async {
		id, err := publisher.PublishReport(rep)
		if err != nil {
			return nil, err
		}
		if err := nc.FlushWithContext(ctx); err != nil {
			return nil, fmt.Errorf("flush: %w", err)
		}
		return map[string]string{"id": id}, nil
	}
	ack, err := publisher.RequestReport(ctx, rep)
	if err != nil {
		return nil, err
	}
	if !ack.OK {
		return ack, fmt.Errorf("report %s failed: %s", ack.ID, ack.Error)
	}
	return ack, nil
}

func reportHTTP(ctx context.Context, ro *reportOptions, req app.ReportRequest) (any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	endpoint := strings.TrimRight(ro.httpURL, "/") + "/api/reports"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if ro.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ro.token)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		return decoded, fmt.Errorf("report rejected with status %d: %v", resp.StatusCode, decoded["error"])
	}
	return decoded, nil
}
