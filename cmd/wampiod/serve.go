package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/wampio/wampio/pkg/auth"
	"github.com/wampio/wampio/pkg/router"
)

func serveCmd() *cobra.Command {
	var (
		host            string
		port            int
		protocols       string
		httpAddr        string
		realm           string
		shutdownTimeout time.Duration

		s3Bucket       string
		s3Key          string
		s3Region       string
		s3Endpoint     string
		s3ProviderName string
		s3AccessKeyID  string
		s3SecretKey    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WAMP router",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			var provider auth.Provider
			if s3Bucket != "" {
				client := newS3Client(s3Region, s3Endpoint, s3AccessKeyID, s3SecretKey)
				p, err := auth.NewS3PolicyProvider(cmd.Context(), client, s3Bucket, s3Key, s3ProviderName)
				if err != nil {
					return fmt.Errorf("load s3 auth policy: %w", err)
				}
				provider = p
			} else {
				sp := auth.NewStaticProvider("wampiod")
				sp.SetUser(realm, "", auth.UserConfig{Policy: auth.Policy{Mode: auth.ModeOpen}})
				provider = sp
			}

			r := router.New(router.Config{Logger: logger})

			opts := router.ListenOptions{Protocols: parseProtocols(protocols)}
			if err := r.Listen(host, port, provider, opts); err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			logger.Info("wamp listener bound", "host", host, "port", port, "protocols", protocols)

			if httpAddr != "" && opts.Protocols == router.ProtocolsRawSocket {
				if err := r.ListenHTTP(httpAddr); err != nil {
					return fmt.Errorf("listen http: %w", err)
				}
				logger.Info("http listener bound (metrics/healthz)", "addr", httpAddr)
			}

			return r.Run(shutdownTimeout)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "bind host")
	cmd.Flags().IntVar(&port, "port", 8080, "bind port")
	cmd.Flags().StringVar(&protocols, "protocols", "both", "rawsocket, websocket, or both")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "separate host:port for /metrics and /healthz when protocols=rawsocket")
	cmd.Flags().StringVar(&realm, "realm", "default", "default realm advertised for anonymous open access (ignored with --s3-bucket)")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight sessions on SIGINT/SIGTERM")

	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket holding the realm auth policy document (enables S3PolicyProvider)")
	cmd.Flags().StringVar(&s3Key, "s3-key", "wampiod/policy.json", "S3 object key for the policy document")
	cmd.Flags().StringVar(&s3Region, "s3-region", "us-east-1", "S3 region")
	cmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint override (e.g. for MinIO)")
	cmd.Flags().StringVar(&s3ProviderName, "s3-provider-name", "s3", "authprovider name advertised in CHALLENGE")
	cmd.Flags().StringVar(&s3AccessKeyID, "s3-access-key-id", "", "static access key id (falls back to anonymous if unset)")
	cmd.Flags().StringVar(&s3SecretKey, "s3-secret-access-key", "", "static secret access key")

	return cmd
}

func parseProtocols(s string) router.Protocols {
	switch s {
	case "rawsocket":
		return router.ProtocolsRawSocket
	case "websocket":
		return router.ProtocolsWebSocket
	default:
		return router.ProtocolsBoth
	}
}

// newS3Client builds an s3.Client from plain flags rather than the
// aws-sdk-go-v2/config module's environment-discovery chain, keeping this
// CLI's AWS surface to the aws-sdk-go-v2 core + service/s3 packages this
// module already depends on.
func newS3Client(region, endpoint, accessKeyID, secretKey string) *s3.Client {
	creds := aws.AnonymousCredentials{}
	var credProvider aws.CredentialsProvider = creds
	if accessKeyID != "" {
		credProvider = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: accessKeyID, SecretAccessKey: secretKey}, nil
		})
	}
	cfg := aws.Config{Region: region, Credentials: credProvider}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}
