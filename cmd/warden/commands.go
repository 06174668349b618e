package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warden-sh/warden/internal/record"
	"github.com/warden-sh/warden/pkg/client"
	"github.com/warden-sh/warden/pkg/template"
)

// command runs CLI operations against a daemon through the API client.
type command struct {
	client *client.Client
}

func newCommand(flags *GlobalFlags) command {
	cfg := client.DefaultConfig()
	if flags.APIUrl != "" {
		cfg.BaseURL = flags.APIUrl
	}
	cfg.Token = flags.Token
	if flags.APITimeout > 0 {
		cfg.Timeout = flags.APITimeout
	}
	return command{client: client.New(cfg)}
}

func (c command) List(fragment string) error {
	snaps, err := c.client.Servers(context.Background(), fragment)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("no servers")
		return nil
	}
	w := newTabWriter()
	fmt.Fprintln(w, "ID\tNAME\tENDPOINT\tSTATUS")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Addr(), s.Status)
	}
	return w.Flush()
}

func (c command) Status(id string) error {
	snap, err := c.client.Server(context.Background(), id)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func (c command) Action(action, id string) error {
	ctx := context.Background()
	var (
		snap record.Snapshot
		err  error
	)
	switch action {
	case record.ActionStart:
		snap, err = c.client.Start(ctx, id)
	case record.ActionStop:
		snap, err = c.client.Stop(ctx, id)
	case record.ActionRestart:
		snap, err = c.client.Restart(ctx, id)
	default:
		return fmt.Errorf("unknown action: %s", action)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", snap.Name, snap.Status)
	return nil
}

func (c command) Create(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read record file: %w", err)
	}
	var rec record.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("parse record file: %w", err)
	}
	snap, err := c.client.Create(context.Background(), rec)
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s)\n", snap.Name, snap.ID)
	return nil
}

func (c command) Delete(id string, purge bool) error {
	if err := c.client.Delete(context.Background(), id, purge); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", id)
	return nil
}

func (c command) Console(id, line string) error {
	return c.client.Console(context.Background(), id, line)
}

func (c command) Ping() error {
	if !c.client.IsReachable(context.Background()) {
		return fmt.Errorf("daemon unreachable")
	}
	fmt.Println("Pong!")
	return nil
}

func runTemplate(flags TemplateFlags) error {
	name := flags.Name
	if name == "" {
		name = flags.Type + "-sample"
	}
	gen := template.NewGenerator()
	data, err := gen.GenerateJSON(template.TemplateType(flags.Type), name)
	if err != nil {
		return err
	}
	output := flags.Output
	if output == "" {
		output = sanitizeFileName(name) + ".json"
	}
	if !flags.Force {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", output)
		}
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(output, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	fmt.Printf("wrote %s\n", output)
	return nil
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
