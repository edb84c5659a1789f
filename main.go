// pagemark assistant - a per-document conversation engine for local reading.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/pagemark/internal/backend"
	"github.com/jeranaias/pagemark/internal/config"
	"github.com/jeranaias/pagemark/internal/engine"
	"github.com/jeranaias/pagemark/internal/export"
	"github.com/jeranaias/pagemark/internal/logging"
	"github.com/jeranaias/pagemark/internal/model"
	"github.com/jeranaias/pagemark/internal/prefs"
	"github.com/jeranaias/pagemark/internal/store"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Printf("pagemark %s (%s, built %s)\n", Version, GitCommit, BuildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("pagemark - per-document assistant conversations")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pagemark            start an interactive session")
	fmt.Println("  pagemark version    print version information")
	fmt.Println()
	fmt.Println("Session commands:")
	fmt.Println("  /doc <id>           switch to the conversation for document <id>")
	fmt.Println("  /model <name>       set the preferred model")
	fmt.Println("  /cancel             cancel the in-flight request")
	fmt.Println("  /clear              clear the current conversation")
	fmt.Println("  /export md|json     export the current conversation")
	fmt.Println("  /quit               exit")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	storePath := cfg.Storage.Path
	if storePath == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		storePath = filepath.Join(dir, "messages.db")
	}
	messageStore, err := store.NewSQLiteStore(storePath)
	if err != nil {
		return err
	}
	defer messageStore.Close()

	prefsPath, err := config.ConfigDir()
	if err != nil {
		return err
	}
	prefStore, err := prefs.NewStore(filepath.Join(prefsPath, "prefs.json"))
	if err != nil {
		return err
	}

	client := backend.NewClientWithConfig(&backend.ClientConfig{
		BaseURL:           cfg.Backend.Endpoint,
		Timeout:           time.Duration(cfg.Backend.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
	})

	repl := newRepl(cfg, log)
	session := engine.NewSession(engine.Options{
		Config:         cfg,
		Store:          messageStore,
		Streamer:       client,
		Prefs:          prefStore,
		Logger:         log,
		OnRender:       repl.render,
		OnInputEnabled: repl.setInputEnabled,
	})
	repl.session = session
	repl.prefs = prefStore

	// Pick the config file up again when it changes on disk.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if tomlPath, err := config.ConfigPathTOML(); err == nil {
		go func() {
			err := config.Watch(watchCtx, tomlPath, func(updated *config.Config) {
				log.Info("configuration reloaded", zap.String("path", tomlPath))
				repl.updateConfig(updated)
			}, func(err error) {
				log.Warn("configuration reload failed", zap.Error(err))
			})
			if err != nil && watchCtx.Err() == nil {
				log.Warn("configuration watch stopped", zap.Error(err))
			}
		}()
	}

	// Ctrl+C cancels the in-flight request; a second Ctrl+C exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if session.Cancel() == 0 {
				fmt.Println("\nexiting")
				os.Exit(0)
			}
		}
	}()

	if err := client.Ping(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: generation service not reachable at %s: %v\n",
			cfg.Backend.Endpoint, err)
	}

	return repl.loop()
}

// =============================================================================
// REPL
// =============================================================================

// repl is a minimal line-oriented front end over the session engine. The
// production embedding drives the engine from a document reader UI; this
// surface exists for local use and smoke testing.
type repl struct {
	cfg     *config.Config
	log     *zap.Logger
	session *engine.Session
	prefs   *prefs.Store

	itemID int64

	mu      sync.Mutex
	printed int // runes of the streaming reply already echoed
}

func newRepl(cfg *config.Config, log *zap.Logger) *repl {
	return &repl{cfg: cfg, log: log, itemID: 1}
}

func (r *repl) updateConfig(cfg *config.Config) {
	r.cfg = cfg
}

// render echoes the not-yet-printed suffix of the streaming reply. Called
// through the engine's refresh scheduler, so delta bursts arrive coalesced.
func (r *repl) render() {
	history := r.session.History(r.itemID, 0)
	if len(history) == 0 {
		return
	}
	last := history[len(history)-1]
	if last.Role != model.RoleAssistant || !last.IsStreaming() {
		return
	}
	text := []rune(last.DisplayText())
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(text) > r.printed {
		fmt.Print(string(text[r.printed:]))
		r.printed = len(text)
	}
}

func (r *repl) setInputEnabled(enabled bool) {
	// The line-oriented loop blocks on Send, so there is no input surface to
	// disable; the engine still reports the transitions for embedders.
	_ = enabled
}

func (r *repl) loop() error {
	fmt.Printf("pagemark %s - document %d (type /help for commands)\n", Version, r.itemID)
	r.session.EnsureConversationLoaded(context.Background(), r.itemID, 0)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := r.handleCommand(line); done {
				return nil
			}
			continue
		}

		r.ask(line)
	}
}

func (r *repl) ask(question string) {
	r.mu.Lock()
	r.printed = 0
	r.mu.Unlock()

	result := r.session.Send(context.Background(), engine.SendParams{
		ItemID:   r.itemID,
		Question: question,
	})

	// Echo whatever the coalesced renders did not get to, then the marker
	// text for non-success outcomes.
	if result.Message != nil {
		text := []rune(result.Message.DisplayText())
		r.mu.Lock()
		if len(text) > r.printed {
			fmt.Print(string(text[r.printed:]))
		}
		r.mu.Unlock()
	}
	fmt.Println()
	if result.Status == engine.StatusError && result.Err != nil {
		r.log.Warn("send failed", zap.Error(result.Err))
	}
}

// handleCommand runs one slash command; returns true when the loop should
// exit.
func (r *repl) handleCommand(line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		printUsage()

	case "/doc":
		if len(args) != 1 {
			fmt.Println("usage: /doc <id>")
			return false
		}
		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil || id <= 0 {
			fmt.Println("document id must be a positive number")
			return false
		}
		r.itemID = id
		r.session.EnsureConversationLoaded(context.Background(), r.itemID, 0)
		fmt.Printf("switched to document %d (%d messages)\n",
			id, len(r.session.History(r.itemID, 0)))

	case "/model":
		if len(args) != 1 {
			fmt.Println("usage: /model <name>")
			return false
		}
		if err := r.prefs.SetString(prefs.KeyPreferredModel, args[0]); err != nil {
			fmt.Printf("could not save preference: %v\n", err)
			return false
		}
		fmt.Printf("preferred model set to %s\n", args[0])

	case "/cancel":
		if id := r.session.Cancel(); id == 0 {
			fmt.Println("nothing in flight")
		}

	case "/clear":
		r.session.Clear(r.itemID, 0)
		fmt.Println("conversation cleared")

	case "/export":
		format := "md"
		if len(args) > 0 {
			format = args[0]
		}
		var sink engine.NoteSink
		var ext string
		switch format {
		case "md", "markdown":
			sink = export.NewMarkdownExporter(export.DefaultOptions())
			ext = ".md"
		case "json":
			sink = export.NewJSONExporter(export.DefaultOptions())
			ext = ".json"
		default:
			fmt.Println("usage: /export md|json")
			return false
		}
		data, err := r.session.ExportConversation(r.itemID, 0, sink)
		if err != nil {
			fmt.Printf("export failed: %v\n", err)
			return false
		}
		name := fmt.Sprintf("conversation_%d_%s%s",
			r.itemID, time.Now().Format("20060102_150405"), ext)
		if err := os.WriteFile(name, data, 0o644); err != nil {
			fmt.Printf("write failed: %v\n", err)
			return false
		}
		fmt.Printf("exported to %s\n", name)

	default:
		fmt.Printf("unknown command %s (try /help)\n", cmd)
	}
	return false
}
