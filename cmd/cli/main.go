// Command nv is a CLI client for the NoteVault service. Notes are encrypted
// before they leave this process.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"
	"google.golang.org/grpc/status"

	"github.com/and161185/notevault/internal/client"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type stateFile struct {
	WorkspaceID string `json:"workspace_id"`
}

func cfgDir(getenv func(string) string) string {
	if v := getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "notevault")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "notevault")
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (c *cli) tokenPath() string { return filepath.Join(c.dir, "token.json") }
func (c *cli) statePath() string { return filepath.Join(c.dir, "state.json") }
func (c *cli) keyCachePath(ws string) string {
	return filepath.Join(c.dir, "keys", ws+".json")
}

func (c *cli) saveToken(tok string, exp time.Time) error {
	return writeJSON(c.tokenPath(), tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func (c *cli) loadToken() (string, error) {
	var tf tokenFile
	if err := readJSON(c.tokenPath(), &tf); err != nil {
		return "", errors.New("no token; run `nv token set` first")
	}
	if tf.AccessToken == "" || c.now().After(tf.ExpiresAt) {
		return "", errors.New("token expired; run `nv token set` again")
	}
	return tf.AccessToken, nil
}

func (c *cli) saveWorkspace(id string) error {
	return writeJSON(c.statePath(), stateFile{WorkspaceID: id})
}

func (c *cli) loadWorkspace() (string, error) {
	var sf stateFile
	if err := readJSON(c.statePath(), &sf); err != nil || sf.WorkspaceID == "" {
		return "", errors.New("no workspace selected; run `nv workspace create` or `nv workspace use`")
	}
	return sf.WorkspaceID, nil
}

// tokenExpiry reads exp from a JWT without verifying it; the server verifies.
func tokenExpiry(raw string, fallback time.Time) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil || claims.ExpiresAt == nil {
		return fallback
	}
	return claims.ExpiresAt.Time
}

// ---- cli ----

// cli carries everything a command touches so tests can swap it.
type cli struct {
	out    io.Writer
	errOut io.Writer
	in     io.Reader
	dir    string
	getenv func(string) string
	now    func() time.Time

	// password prompts for a secret; NV_PASSWORD short-circuits it.
	password func(prompt string) (string, error)
	// dial connects with the given bearer token ("" for anonymous).
	dial func(token string) (*client.Client, error)

	baseURL string
	log     *zap.Logger
}

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func (c *cli) promptPassword(prompt string) (string, error) {
	if v := c.getenv("NV_PASSWORD"); v != "" {
		return v, nil
	}
	if _, err := fmt.Fprint(c.errOut, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(c.errOut)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func usage(w io.Writer) {
	fmt.Fprint(w, `nv - NoteVault CLI
Usage:
  nv [--addr HOST:PORT] [--cacert file | --insecure | --plaintext] <cmd> [args]

Commands:
  version
  token set <jwt>                               store an access token
  token mint --key <secret> --sub <user> [--ttl 1h]   dev only: sign and store a token
  workspace create --identifier <email> [--name n]
  workspace use <id>
  workspace list
  put --file <path|-> [--id <uuid> --base <ver>] [--meta <json>]
  get --id <uuid>
  rm --id <uuid> --base <ver>
  sync [--since <ver>]
  share --id <uuid> [--ttl 24h] [--edit] [--no-view] [--passphrase]
  open <link> [--passphrase]
  edit-shared <link> --base <ver> --file <path|-> [--passphrase]
  revoke <token>
  extend <token> --by <duration>
  perms <token> [--view] [--edit]
`)
}

// main configures transport, then dispatches the subcommand.
func main() {
	fs := pflag.NewFlagSet("nv", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	addr := fs.String("addr", "localhost:8443", "server addr")
	caPath := fs.String("cacert", "", "CA cert (PEM)")
	skipVerify := fs.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := fs.Bool("plaintext", false, "no TLS (dev)")
	baseURL := fs.String("base-url", "https://notevault.local", "base URL for share links")
	verbose := fs.Bool("verbose", false, "debug logging to stderr")
	fs.Usage = func() { usage(os.Stderr) }
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	c := &cli{
		out:     os.Stdout,
		errOut:  os.Stderr,
		in:      os.Stdin,
		dir:     cfgDir(os.Getenv),
		getenv:  os.Getenv,
		now:     time.Now,
		baseURL: *baseURL,
		log:     zap.NewNop(),
	}
	if *verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			c.log = l
			defer func() { _ = l.Sync() }()
		}
	}
	c.password = c.promptPassword
	c.dial = func(token string) (*client.Client, error) {
		return client.Dial(*addr, client.Options{
			CACert:             *caPath,
			InsecureSkipVerify: *skipVerify,
			Plaintext:          *plaintext,
			Token:              token,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	code := c.run(ctx, fs.Args())
	cancel()
	if code != 0 {
		os.Exit(code)
	}
}

// run executes one command and returns the process exit code.
func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		usage(c.errOut)
		return 2
	}
	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "version":
		fmt.Fprintf(c.out, "nv %s (%s)\n", version, buildDate)
	case "token":
		err = c.cmdToken(ctx, rest)
	case "workspace":
		err = c.cmdWorkspace(ctx, rest)
	case "put":
		err = c.cmdPut(ctx, rest)
	case "get":
		err = c.cmdGet(ctx, rest)
	case "rm":
		err = c.cmdRm(ctx, rest)
	case "sync":
		err = c.cmdSync(ctx, rest)
	case "share":
		err = c.cmdShare(ctx, rest)
	case "open":
		err = c.cmdOpen(ctx, rest)
	case "edit-shared":
		err = c.cmdEditShared(ctx, rest)
	case "revoke":
		err = c.cmdRevoke(ctx, rest)
	case "extend":
		err = c.cmdExtend(ctx, rest)
	case "perms":
		err = c.cmdPerms(ctx, rest)
	default:
		usage(c.errOut)
		return 2
	}
	if err != nil {
		c.fail(err)
		return 1
	}
	return 0
}

// ---- helpers ----

func (c *cli) readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(c.in)
	}
	return os.ReadFile(p)
}

func (c *cli) printJSON(v any) {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (c *cli) fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(c.errOut, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		return
	}
	fmt.Fprintln(c.errOut, strings.TrimSpace(err.Error()))
}
