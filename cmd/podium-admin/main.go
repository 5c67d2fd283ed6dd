// ABOUTME: Operator CLI for podium working directly against the database
// ABOUTME: Lists conferences, questions and polls; ends, deletes, promotes

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/podium/internal/config"
	"github.com/2389/podium/internal/store"
)

const banner = `
                    _ _                            _           _
  _ __   ___   __| (_)_   _ _ __ ___      __ _  __| |_ __ ___ (_)_ __
 | '_ \ / _ \ / _' | | | | | '_ ' _ \ ____/ _' |/ _' | '_ ' _ \| | '_ \
 | |_) | (_) | (_| | | |_| | | | | | |____| (_| | (_| | | | | | | | | | |
 | .__/ \___/ \__,_|_|\__,_|_| |_| |_|     \__,_|\__,_|_| |_| |_|_|_| |_|
 |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "conferences":
		err = withStore(func(s store.Store) error { return cmdConferences(ctx, s) })
	case "questions":
		err = withStore(func(s store.Store) error { return cmdQuestions(ctx, s, args) })
	case "polls":
		err = withStore(func(s store.Store) error { return cmdPolls(ctx, s, args) })
	case "end":
		err = withStore(func(s store.Store) error { return cmdEnd(ctx, s, args) })
	case "delete":
		err = withStore(func(s store.Store) error { return cmdDelete(ctx, s, args) })
	case "promote":
		err = withStore(func(s store.Store) error { return cmdPromote(ctx, s, args) })
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: podium-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  conferences               List all conferences")
	fmt.Println("  questions <code> [status] List a conference's questions (default: pending)")
	fmt.Println("  polls <code>              List a conference's polls with tallies")
	fmt.Println("  end <code>                End a conference permanently")
	fmt.Println("  delete <code>             Delete a conference and all its data")
	fmt.Println("  promote <external-id>     Grant an account the right to create conferences")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  PODIUM_CONFIG   Path to the gateway config file")
	fmt.Println()
}

// getConfigPath mirrors the gateway's config resolution.
func getConfigPath() string {
	if envPath := os.Getenv("PODIUM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "podium", "gateway.yaml")
}

func withStore(fn func(s store.Store) error) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()
	return fn(s)
}

func cmdConferences(ctx context.Context, s store.Store) error {
	confs, err := s.ListConferences(ctx, 100)
	if err != nil {
		return fmt.Errorf("listing conferences: %w", err)
	}
	if len(confs) == 0 {
		fmt.Println("No conferences.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tTITLE\tSTATE\tADMINS\tCREATED")
	for _, c := range confs {
		state := "idle"
		switch {
		case c.Ended:
			state = "ended"
		case c.Active:
			state = "active"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			c.Code, c.Title, state, len(c.Admins), c.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func cmdQuestions(ctx context.Context, s store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: podium-admin questions <code> [pending|approved|rejected]")
	}
	status := store.QuestionPending
	if len(args) > 1 {
		status = args[1]
	}

	conf, err := s.GetConferenceByCode(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading conference %q: %w", args[0], err)
	}
	questions, err := s.ListQuestions(ctx, conf.ID, status)
	if err != nil {
		return fmt.Errorf("listing questions: %w", err)
	}
	if len(questions) == 0 {
		fmt.Printf("No %s questions in %q.\n", status, conf.Title)
		return nil
	}

	cyan := color.New(color.FgCyan)
	for i, q := range questions {
		cyan.Printf("%d. ", i+1)
		fmt.Println(q.Text)
		if q.Answered && q.Answer != nil {
			fmt.Printf("   answered: %s\n", *q.Answer)
		}
	}
	return nil
}

func cmdPolls(ctx context.Context, s store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: podium-admin polls <code>")
	}

	conf, err := s.GetConferenceByCode(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading conference %q: %w", args[0], err)
	}
	polls, err := s.ListPolls(ctx, conf.ID, false)
	if err != nil {
		return fmt.Errorf("listing polls: %w", err)
	}
	if len(polls) == 0 {
		fmt.Printf("No polls in %q.\n", conf.Title)
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, p := range polls {
		cyan.Print(p.Question)
		if !p.Active {
			gray.Print(" (closed)")
		}
		fmt.Println()
		for _, opt := range p.Options {
			fmt.Printf("  %s: %d\n", opt.Text, len(opt.Voters))
		}
	}
	return nil
}

func cmdEnd(ctx context.Context, s store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: podium-admin end <code>")
	}

	conf, err := s.GetConferenceByCode(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading conference %q: %w", args[0], err)
	}
	if conf.Ended {
		fmt.Printf("Conference %q is already ended.\n", conf.Title)
		return nil
	}

	now := time.Now().UTC()
	conf.Ended = true
	conf.Active = false
	conf.EndsAt = &now
	if err := s.UpdateConference(ctx, conf); err != nil {
		return fmt.Errorf("ending conference: %w", err)
	}

	color.Green("Conference %q ended.\n", conf.Title)
	return nil
}

func cmdDelete(ctx context.Context, s store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: podium-admin delete <code>")
	}

	conf, err := s.GetConferenceByCode(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading conference %q: %w", args[0], err)
	}

	fmt.Printf("Delete %q and all its profiles, questions and polls? [y/N]: ", conf.Title)
	var confirm string
	fmt.Scanln(&confirm)
	if c := strings.ToLower(strings.TrimSpace(confirm)); c != "y" && c != "yes" {
		fmt.Println("Aborted.")
		return nil
	}

	if err := s.DeleteConference(ctx, conf.ID); err != nil {
		return fmt.Errorf("deleting conference: %w", err)
	}
	color.Green("Conference %q deleted.\n", conf.Title)
	return nil
}

func cmdPromote(ctx context.Context, s store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: podium-admin promote <external-id>")
	}

	account, err := s.GetAccountByExternalID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading account %q: %w", args[0], err)
	}
	if account.Role == store.RoleMainAdmin {
		fmt.Printf("%s is a main admin already.\n", account.DisplayName)
		return nil
	}
	if err := s.SetAccountRole(ctx, account.ID, store.RoleAdminCapable); err != nil {
		return fmt.Errorf("setting role: %w", err)
	}
	color.Green("%s can now create conferences.\n", account.DisplayName)
	return nil
}
