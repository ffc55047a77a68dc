package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	relaymq "github.com/relaymq/client-go"
)

// IOTuple holds reader and writer for commands, allowing for testing.
type IOTuple struct {
	Reader io.Reader
	Writer io.Writer
}

// DefaultIO returns an IOTuple with os.Stdin and os.Stdout.
func DefaultIO() IOTuple {
	return IOTuple{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}
}

// environment is what every command runs against.
type environment struct {
	cfg    *relaymq.Config
	client *relaymq.Client
	logger *slog.Logger
}

func withClient(ctx context.Context, cmd *cli.Command, fn func(env *environment) error) error {
	cfg, err := relaymq.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	client, err := relaymq.NewFromConfig(ctx, cfg, relaymq.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close client", slog.Any("error", err))
		}
	}()

	return fn(&environment{cfg: cfg, client: client, logger: logger})
}

func runSeal(env *environment, stdio IOTuple) error {
	plaintext, err := readAll(stdio.Reader)
	if err != nil {
		return err
	}

	envelope, err := env.client.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	_, err = fmt.Fprintln(stdio.Writer, base64.StdEncoding.EncodeToString(envelope))
	return err
}

func runOpen(env *environment, stdio IOTuple) error {
	encoded, err := readAll(stdio.Reader)
	if err != nil {
		return err
	}

	envelope, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return fmt.Errorf("envelope is not base64: %w", err)
	}

	plaintext, err := env.client.Open(envelope)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	_, err = stdio.Writer.Write(plaintext)
	return err
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func runCreateKey(ctx context.Context, env *environment, w io.Writer, alias string) error {
	pub, err := env.client.CreateKeyPair(ctx, alias)
	if err != nil {
		return err
	}
	fp, err := env.client.Fingerprint(ctx, alias)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, color.GreenString("✓")+" Key pair "+color.YellowString(alias)+" ready")
	fmt.Fprintln(w, color.CyanString("→")+" Fingerprint: SHA256:"+fp)
	fmt.Fprintln(w, color.CyanString("→")+" Public key: "+base64.StdEncoding.EncodeToString(pub))
	return nil
}

func runListKeys(ctx context.Context, env *environment, w io.Writer) error {
	aliases, err := env.client.KeyAliases(ctx)
	if err != nil {
		return err
	}
	if len(aliases) == 0 {
		fmt.Fprintln(w, color.YellowString("!")+" No key pairs in "+env.cfg.Keystore.BucketURL)
		return nil
	}
	for _, alias := range aliases {
		fmt.Fprintln(w, alias)
	}
	return nil
}

func runDeleteKey(ctx context.Context, env *environment, w io.Writer, alias string) error {
	if err := env.client.DeleteKeyPair(ctx, alias); err != nil {
		if errors.Is(err, relaymq.ErrAliasNotFound) {
			return fmt.Errorf("no key pair named %q", alias)
		}
		return err
	}
	fmt.Fprintln(w, color.GreenString("✓")+" Deleted key pair "+color.YellowString(alias))
	return nil
}

func runFingerprint(ctx context.Context, env *environment, w io.Writer, alias string) error {
	fp, err := env.client.Fingerprint(ctx, alias)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, "SHA256:"+fp)
	return err
}

// provisionOutput is the JSON form of a provisioning result. Secret values
// are never printed.
type provisionOutput struct {
	FlowID      string         `json:"flow_id"`
	Alias       string         `json:"alias"`
	Fingerprint string         `json:"fingerprint"`
	Secrets     []secretOutput `json:"secrets"`
	Skipped     int            `json:"skipped"`
}

type secretOutput struct {
	ID     string `json:"id"`
	Target string `json:"target"`
	Bytes  int    `json:"bytes"`
}

func runProvision(ctx context.Context, env *environment, w io.Writer, interval time.Duration, format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: must be 'text' or 'json'", format)
	}

	if handler := env.client.MetricsHandler(); handler != nil && env.cfg.Metrics.Addr != "" {
		stop := serveMetrics(env.cfg.Metrics.Addr, handler, env.logger)
		defer stop()
	}

	for {
		res, err := env.client.Provision(ctx)
		if err != nil {
			return err
		}
		if err := printProvision(w, res, format); err != nil {
			return err
		}

		if interval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func printProvision(w io.Writer, res *relaymq.ProvisionResult, format string) error {
	out := provisionOutput{
		FlowID:      res.FlowID,
		Alias:       res.Alias,
		Fingerprint: res.Fingerprint,
		Secrets:     make([]secretOutput, 0, len(res.Secrets)),
		Skipped:     res.Skipped,
	}
	for _, s := range res.Secrets {
		out.Secrets = append(out.Secrets, secretOutput{ID: s.ID, Target: s.Target, Bytes: len(s.Value)})
	}

	if format == "json" {
		return json.NewEncoder(w).Encode(out)
	}

	var b bytes.Buffer
	b.WriteString(color.GreenString("✓") + " Provisioned " + fmt.Sprint(len(out.Secrets)) + " secret(s) for " + color.YellowString(out.Alias) + "\n")
	for _, s := range out.Secrets {
		b.WriteString(color.CyanString("→") + " " + s.ID + " (" + s.Target + ")\n")
	}
	if out.Skipped > 0 {
		b.WriteString(color.YellowString("!") + " Skipped " + fmt.Sprint(out.Skipped) + " batch descriptor(s)\n")
	}
	_, err := w.Write(b.Bytes())
	return err
}

// serveMetrics exposes handler on addr until the returned stop is called.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
