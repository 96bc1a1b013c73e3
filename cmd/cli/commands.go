package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/and161185/notevault/internal/api"
	"github.com/and161185/notevault/internal/client"
	"github.com/and161185/notevault/internal/keymanager"
	"github.com/and161185/notevault/internal/service"
)

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func pretty(b []byte) string {
	var out any
	if json.Unmarshal(b, &out) == nil {
		j, _ := json.MarshalIndent(out, "", "  ")
		return string(j)
	}
	return string(b)
}

// authed dials with the stored token.
func (c *cli) authed() (*client.Client, error) {
	tok, err := c.loadToken()
	if err != nil {
		return nil, err
	}
	return c.dial(tok)
}

// session unlocks the current workspace, prompting for the password.
func (c *cli) session(ctx context.Context) (*client.Session, func(), error) {
	ws, err := c.loadWorkspace()
	if err != nil {
		return nil, nil, err
	}
	cl, err := c.authed()
	if err != nil {
		return nil, nil, err
	}
	pw, err := c.password("Workspace password: ")
	if err != nil {
		_ = cl.Close()
		return nil, nil, err
	}
	s, err := client.Open(ctx, cl, ws, pw,
		client.WithLocalKeyCache(keymanager.NewFileStore(c.keyCachePath(ws))),
		client.WithSessionLogger(c.log))
	if err != nil {
		_ = cl.Close()
		return nil, nil, err
	}
	return s, func() { s.Close(); _ = cl.Close() }, nil
}

// ---- token ----

func (c *cli) cmdToken(_ context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: nv token set|mint")
	}
	var raw string
	switch args[0] {
	case "set":
		if len(args) != 2 {
			return errors.New("usage: nv token set <jwt>")
		}
		raw = args[1]
	case "mint":
		fs := newFlagSet("token mint")
		key := fs.String("key", "", "server JWT signing key")
		sub := fs.String("sub", "", "user id")
		ttl := fs.Duration("ttl", time.Hour, "token lifetime")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *key == "" || *sub == "" {
			return errors.New("need --key and --sub")
		}
		tok, _, err := service.NewTokens([]byte(*key)).Issue(*sub, *ttl)
		if err != nil {
			return err
		}
		raw = tok
	default:
		return fmt.Errorf("unknown token command %q", args[0])
	}
	exp := tokenExpiry(raw, c.now().Add(15*time.Minute))
	if err := c.saveToken(raw, exp); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "token saved, expires %s\n", exp.UTC().Format(time.RFC3339))
	return nil
}

// ---- workspaces ----

func (c *cli) cmdWorkspace(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: nv workspace create|use|list")
	}
	switch args[0] {
	case "create":
		fs := newFlagSet("workspace create")
		identifier := fs.String("identifier", "", "KDF identifier, e.g. your email")
		name := fs.String("name", "", "display name")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *identifier == "" {
			return errors.New("need --identifier")
		}
		pw, err := c.password("New workspace password: ")
		if err != nil {
			return err
		}
		cl, err := c.authed()
		if err != nil {
			return err
		}
		defer cl.Close()
		tmpCache := keymanager.NewMemoryStore(nil)
		s, err := client.CreateWorkspace(ctx, cl, *name, *identifier, pw,
			client.WithLocalKeyCache(tmpCache), client.WithSessionLogger(c.log))
		if err != nil {
			return err
		}
		defer s.Close()
		if w, err := tmpCache.Load(ctx); err == nil {
			_ = keymanager.NewFileStore(c.keyCachePath(s.WorkspaceID())).Save(ctx, w)
		}
		if err := c.saveWorkspace(s.WorkspaceID()); err != nil {
			return err
		}
		fmt.Fprintln(c.out, s.WorkspaceID())
		return nil

	case "use":
		if len(args) != 2 {
			return errors.New("usage: nv workspace use <id>")
		}
		return c.saveWorkspace(args[1])

	case "list":
		cl, err := c.authed()
		if err != nil {
			return err
		}
		defer cl.Close()
		ws, err := cl.ListWorkspaces(ctx)
		if err != nil {
			return err
		}
		type row struct {
			ID, Name, Identifier string
			Initialized          bool
		}
		rows := []row{}
		for _, w := range ws {
			rows = append(rows, row{ID: w.ID, Name: w.Name, Identifier: w.KDFSalt, Initialized: len(w.WrappedMasterKey) > 0})
		}
		c.printJSON(rows)
		return nil
	}
	return fmt.Errorf("unknown workspace command %q", args[0])
}

// ---- documents ----

func (c *cli) cmdPut(ctx context.Context, args []string) error {
	fs := newFlagSet("put")
	id := fs.String("id", "", "document id (update when set)")
	base := fs.Int64("base", -1, "base version (update)")
	file := fs.String("file", "", "content file ('-'=stdin)")
	meta := fs.String("meta", "", "metadata JSON (stored unencrypted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("need --file")
	}
	if *id != "" && *base < 0 {
		return errors.New("update needs --base")
	}
	content, err := c.readAll(*file)
	if err != nil {
		return err
	}
	var metadata []byte
	if *meta != "" {
		metadata = []byte(*meta)
	}

	s, done, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer done()

	var v api.DocumentVersion
	if *id == "" {
		v, err = s.Create(ctx, content, metadata)
	} else {
		v, err = s.Update(ctx, *id, *base, content, metadata)
	}
	if err != nil {
		return err
	}
	c.printJSON(v)
	return nil
}

func (c *cli) cmdGet(ctx context.Context, args []string) error {
	fs := newFlagSet("get")
	id := fs.String("id", "", "document id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("need --id")
	}
	s, done, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer done()
	n, err := s.Get(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.errOut, "id=%s ver=%d at=%s\n", n.ID, n.Ver, n.UpdatedAt.UTC().Format(time.RFC3339))
	if len(n.Metadata) > 0 {
		fmt.Fprintf(c.errOut, "meta=%s\n", pretty(n.Metadata))
	}
	_, err = c.out.Write(n.Content)
	return err
}

func (c *cli) cmdRm(ctx context.Context, args []string) error {
	fs := newFlagSet("rm")
	id := fs.String("id", "", "document id")
	base := fs.Int64("base", -1, "base version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *base < 0 {
		return errors.New("need --id and --base")
	}
	s, done, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer done()
	v, err := s.Delete(ctx, *id, *base)
	if err != nil {
		return err
	}
	c.printJSON(v)
	return nil
}

func (c *cli) cmdSync(ctx context.Context, args []string) error {
	fs := newFlagSet("sync")
	since := fs.Int64("since", 0, "since version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, done, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer done()
	notes, head, err := s.Sync(ctx, *since)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.errOut, "head=%d\n", head)
	type row struct {
		ID      string `json:"id"`
		Ver     int64  `json:"ver"`
		Deleted bool   `json:"deleted,omitempty"`
		Bytes   int    `json:"bytes"`
	}
	rows := []row{}
	for _, n := range notes {
		rows = append(rows, row{ID: n.ID, Ver: n.Ver, Deleted: n.Deleted, Bytes: len(n.Content)})
	}
	c.printJSON(rows)
	return nil
}

// ---- shares ----

func (c *cli) cmdShare(ctx context.Context, args []string) error {
	fs := newFlagSet("share")
	id := fs.String("id", "", "document id")
	ttl := fs.Duration("ttl", 0, "link lifetime (server default when 0)")
	edit := fs.Bool("edit", false, "allow editing")
	noView := fs.Bool("no-view", false, "withhold content")
	withPass := fs.Bool("passphrase", false, "protect the link with a passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("need --id")
	}
	o := client.ShareOptions{BaseURL: c.baseURL, TTL: *ttl}
	if *edit || *noView {
		o.Permissions = &api.Permissions{CanView: !*noView, CanEdit: *edit}
	}
	if *withPass {
		p, err := c.password("Link passphrase: ")
		if err != nil {
			return err
		}
		o.Passphrase = p
	}
	s, done, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer done()
	link, sh, err := s.Share(ctx, *id, o)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.errOut, "token=%s expires=%s view=%t edit=%t\n",
		sh.Token, sh.ExpiresAt.UTC().Format(time.RFC3339), sh.Permissions.CanView, sh.Permissions.CanEdit)
	fmt.Fprintln(c.out, link)
	return nil
}

func linkFlags(name string) (*pflag.FlagSet, *bool) {
	fs := newFlagSet(name)
	return fs, fs.Bool("passphrase", false, "prompt for the link passphrase")
}

func (c *cli) linkPassphrase(ask bool) (string, error) {
	if !ask {
		return "", nil
	}
	return c.password("Link passphrase: ")
}

func (c *cli) cmdOpen(ctx context.Context, args []string) error {
	fs, withPass := linkFlags("open")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: nv open <link>")
	}
	pass, err := c.linkPassphrase(*withPass)
	if err != nil {
		return err
	}
	cl, err := c.dial("")
	if err != nil {
		return err
	}
	defer cl.Close()
	n, err := client.OpenShare(ctx, cl, fs.Arg(0), pass)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.errOut, "document=%s ver=%d ttl=%s edit=%t\n",
		n.Share.DocumentID, n.Ver, time.Duration(n.Share.TTLSeconds)*time.Second, n.Share.Permissions.CanEdit)
	if n.Content == nil {
		fmt.Fprintln(c.errOut, "link does not grant view access")
		return nil
	}
	_, err = c.out.Write(n.Content)
	return err
}

func (c *cli) cmdEditShared(ctx context.Context, args []string) error {
	fs, withPass := linkFlags("edit-shared")
	base := fs.Int64("base", -1, "base version")
	file := fs.String("file", "", "content file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *base < 0 || *file == "" {
		return errors.New("usage: nv edit-shared <link> --base <ver> --file <path>")
	}
	content, err := c.readAll(*file)
	if err != nil {
		return err
	}
	pass, err := c.linkPassphrase(*withPass)
	if err != nil {
		return err
	}
	cl, err := c.dial("")
	if err != nil {
		return err
	}
	defer cl.Close()
	v, err := client.EditShared(ctx, cl, fs.Arg(0), pass, *base, content)
	if err != nil {
		return err
	}
	c.printJSON(v)
	return nil
}

func (c *cli) cmdRevoke(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: nv revoke <token>")
	}
	cl, err := c.authed()
	if err != nil {
		return err
	}
	defer cl.Close()
	if err := cl.RevokeShare(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "revoked")
	return nil
}

func (c *cli) cmdExtend(ctx context.Context, args []string) error {
	fs := newFlagSet("extend")
	by := fs.Duration("by", 0, "additional lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *by <= 0 {
		return errors.New("usage: nv extend <token> --by <duration>")
	}
	cl, err := c.authed()
	if err != nil {
		return err
	}
	defer cl.Close()
	exp, err := cl.ExtendShare(ctx, fs.Arg(0), *by)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, exp.UTC().Format(time.RFC3339))
	return nil
}

func (c *cli) cmdPerms(ctx context.Context, args []string) error {
	fs := newFlagSet("perms")
	view := fs.Bool("view", false, "grant view")
	edit := fs.Bool("edit", false, "grant edit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: nv perms <token> [--view] [--edit]")
	}
	cl, err := c.authed()
	if err != nil {
		return err
	}
	defer cl.Close()
	if err := cl.UpdateSharePermissions(ctx, fs.Arg(0), api.Permissions{CanView: *view, CanEdit: *edit}); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "updated")
	return nil
}
