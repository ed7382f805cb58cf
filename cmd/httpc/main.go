// Command httpc fetches URLs with the httpc engine.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/nczempin/httpc-engine/client"
	"github.com/nczempin/httpc-engine/errors"
	"github.com/nczempin/httpc-engine/pool"
	"github.com/nczempin/httpc-engine/protocol"
	"github.com/nczempin/httpc-engine/transport"
)

func main() {
	if err := newCommand(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "httpc:", err)
		os.Exit(1)
	}
}

func newCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "httpc",
		Usage:     "fetch URLs over HTTP/1.1",
		ArgsUsage: "URL [URL...]",
		// header values and form fields may contain commas
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "method",
				Aliases: []string{"X"},
				Usage:   "request method",
				Sources: cli.EnvVars("HTTPC_METHOD"),
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "request body; implies POST",
			},
			&cli.StringSliceFlag{
				Name:    "form",
				Aliases: []string{"F"},
				Usage:   "form field `name=value`; implies POST",
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "extra header `Name: value`",
			},
			&cli.StringFlag{
				Name:    "unix-socket",
				Usage:   "connect to this Unix socket; URLs are then request paths",
				Sources: cli.EnvVars("HTTPC_UNIX_SOCKET"),
			},
			&cli.StringFlag{
				Name:    "transport",
				Usage:   "socket implementation: net, uring or uring-v2",
				Value:   string(transport.KindNet),
				Sources: cli.EnvVars("HTTPC_TRANSPORT"),
			},
			&cli.StringFlag{
				Name:    "client-hello",
				Usage:   "TLS fingerprint: golang, chrome, firefox, safari, ios, edge, randomized",
				Sources: cli.EnvVars("HTTPC_CLIENT_HELLO"),
			},
			&cli.BoolFlag{
				Name:    "insecure",
				Aliases: []string{"k"},
				Usage:   "skip TLS certificate verification",
				Sources: cli.EnvVars("HTTPC_INSECURE"),
			},
			&cli.StringFlag{
				Name:    "user-agent",
				Aliases: []string{"A"},
				Value:   pool.DefaultUserAgent,
				Sources: cli.EnvVars("HTTPC_USER_AGENT"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "give up on a request after this long (0 waits forever)",
				Sources: cli.EnvVars("HTTPC_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "include",
				Aliases: []string{"i"},
				Usage:   "print the status line and header fields",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log engine activity to stderr",
				Sources: cli.EnvVars("HTTPC_VERBOSE"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd, out)
		},
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func run(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	if cmd.NArg() == 0 {
		return cli.Exit("at least one URL is required", 2)
	}

	logger, err := newLogger(cmd.Bool("verbose"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := pool.DefaultConfig()
	cfg.Logger = logger
	cfg.UserAgent = cmd.String("user-agent")
	if cfg.Transport.Kind, err = transport.ParseKind(cmd.String("transport")); err != nil {
		return err
	}
	if cfg.Transport.ClientHello, err = transport.ParseClientHello(cmd.String("client-hello")); err != nil {
		return err
	}
	cfg.Transport.InsecureSkipVerify = cmd.Bool("insecure")

	p := pool.New(cfg)
	defer p.Close()
	c := client.NewHttpClient(p)

	headers, err := parseHeaders(cmd.StringSlice("header"))
	if err != nil {
		return err
	}
	body, contentType, err := requestBody(cmd)
	if err != nil {
		return err
	}
	method := protocol.HttpMethod(strings.ToUpper(cmd.String("method")))
	if method == "" {
		method = protocol.MethodGet
		if body != nil {
			method = protocol.MethodPost
		}
	}

	for _, target := range cmd.Args().Slice() {
		req, err := buildRequest(cmd.String("unix-socket"), method, target, body, contentType)
		if err != nil {
			return err
		}
		req.Headers = headers

		resp, err := fetch(ctx, c, req, cmd.Duration("timeout"))
		if err != nil {
			logger.Debug("request failed", zap.String("target", target), zap.Error(err))
			return fmt.Errorf("%s: %w", target, err)
		}
		if cmd.Bool("include") {
			writeHead(out, resp)
		}
		out.Write(resp.Body)
	}
	return nil
}

func fetch(ctx context.Context, c *client.HttpClient, req *protocol.HttpRequest, timeout time.Duration) (*protocol.HttpResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.Do(ctx, req)
}

func buildRequest(socket string, method protocol.HttpMethod, target string, body []byte, contentType string) (*protocol.HttpRequest, error) {
	if socket == "" {
		return client.NewRequest(method, target, body, contentType)
	}
	req, err := client.NewUnixRequest(socket, method, target)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Body = strings.NewReader(string(body))
		req.ContentLength = int64(len(body))
		req.ContentType = contentType
	}
	return req, nil
}

func requestBody(cmd *cli.Command) ([]byte, string, error) {
	fields := cmd.StringSlice("form")
	data := cmd.String("data")
	switch {
	case len(fields) > 0 && data != "":
		return nil, "", errors.NewInvalidArgumentError("--data and --form are mutually exclusive")
	case len(fields) > 0:
		var form client.Form
		for _, field := range fields {
			name, value, ok := strings.Cut(field, "=")
			if !ok {
				return nil, "", errors.NewInvalidArgumentError(fmt.Sprintf("form field %q is not name=value", field))
			}
			form.Add(name, value)
		}
		return []byte(form.Encode()), client.FormContentType, nil
	case cmd.IsSet("data"):
		return []byte(data), "application/octet-stream", nil
	}
	return nil, "", nil
}

func parseHeaders(values []string) ([]protocol.HttpHeader, error) {
	var headers []protocol.HttpHeader
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		if !ok {
			return nil, errors.NewInvalidArgumentError(fmt.Sprintf("header %q is not Name: value", v))
		}
		headers = append(headers, protocol.HttpHeader{Key: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return headers, nil
}

func writeHead(w io.Writer, resp *protocol.HttpResponse) {
	fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", resp.StatusCode, resp.StatusMessage)
	names := make([]string, 0, len(resp.Headers))
	for name := range resp.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %s\r\n", name, resp.Headers[name])
	}
	fmt.Fprint(w, "\r\n")
}
