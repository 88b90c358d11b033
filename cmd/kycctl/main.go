// Command kycctl is an operator tool for the KYC API: it runs the face
// extractor against a single image and probes the gRPC health service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/kyc-voice/internal/grpchealth"
	"github.com/example/kyc-voice/internal/imageprocessor"
	"github.com/example/kyc-voice/internal/imageprocessor/opencv"
	"github.com/example/kyc-voice/internal/logging"
)

const maxDownloadBytes = 20 << 20

func main() {
	logger, err := logging.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(context.Background(), os.Args[1:], os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *zap.Logger) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "extract-face":
		return runExtractFace(ctx, args[1:], stdout, logger)
	case "healthcheck":
		return runHealthcheck(ctx, args[1:], stdout)
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: kycctl <subcommand> [flags]

Subcommands:
  extract-face   Crop the first detected face from an Aadhaar image
  healthcheck    Query the gRPC health service

Run 'kycctl <subcommand> --help' for subcommand flags.
`)
}

// cascadeEnv is the variable the server reads its cascade path from.
const cascadeEnv = "OPENCV_CASCADE_PATH"

type extractOptions struct {
	filePath    string
	imageURL    string
	outPath     string
	cascadePath string
}

func extractFaceFlags(opts *extractOptions) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("extract-face", pflag.ContinueOnError)
	flagSet.StringVar(&opts.filePath, "file", "", "path to the source image")
	flagSet.StringVar(&opts.imageURL, "url", "", "download the source image from this URL")
	flagSet.StringVar(&opts.outPath, "out", "extracted_face.png", "where to write the cropped face")
	flagSet.StringVar(&opts.cascadePath, "cascade", os.Getenv(cascadeEnv), "Haar cascade XML file, defaults to $"+cascadeEnv)
	return flagSet
}

func runExtractFace(ctx context.Context, args []string, stdout io.Writer, logger *zap.Logger) error {
	var opts extractOptions
	if err := extractFaceFlags(&opts).Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if (opts.filePath == "") == (opts.imageURL == "") {
		return fmt.Errorf("exactly one of --file or --url is required")
	}

	var (
		source []byte
		err    error
	)
	if opts.filePath != "" {
		source, err = os.ReadFile(opts.filePath)
	} else {
		source, err = download(ctx, opts.imageURL)
	}
	if err != nil {
		return fmt.Errorf("loading image: %w", err)
	}

	extractor, err := opencv.NewExtractor(opts.cascadePath, logger)
	if err != nil {
		return fmt.Errorf("loading cascade: %w", err)
	}
	defer extractor.Close()

	return writeFace(extractor, source, opts.outPath, stdout)
}

func writeFace(extractor imageprocessor.FaceExtractor, source []byte, outPath string, stdout io.Writer) error {
	face, err := extractor.ExtractFace(source)
	if err != nil {
		return fmt.Errorf("extracting face: %w", err)
	}
	if err := os.WriteFile(outPath, face, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", outPath, len(face))
	return nil
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func runHealthcheck(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		addr    string
		service string
		timeout time.Duration
	)

	flagSet := pflag.NewFlagSet("healthcheck", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "localhost:9090", "health service address")
	flagSet.StringVar(&service, "service", "", "component to query (empty for overall status)")
	flagSet.DurationVar(&timeout, "timeout", 3*time.Second, "dial and request timeout")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	conn, err := grpchealth.Dial(ctx, addr, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	status, err := grpchealth.Status(checkCtx, conn, service)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, status.String())
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("service %q is %s", service, status)
	}
	return nil
}
