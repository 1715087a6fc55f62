package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/suitenumerique/messages-sub000/internal/config"
	"github.com/suitenumerique/messages-sub000/internal/db"
	"github.com/suitenumerique/messages-sub000/internal/logger"
	"github.com/suitenumerique/messages-sub000/internal/services"
	"github.com/suitenumerique/messages-sub000/internal/version"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file")
		showVersion = flag.Bool("version", false, "show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetDetailedVersionString())
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "mailsyncd: %v\n", err)
		os.Exit(1)
	}
}

// run wires the engine against the scripted in-process transport and drives a
// short session through it, logging every derived state along the way
func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	var searches *db.SearchStore
	if cfg.DatabasePath != "" {
		store, err := db.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		searches = db.NewSearchStore(store)
	}

	client := newScriptedClient()
	nav := &loggingNavigator{log: log}

	// Short windows so the scripted session settles quickly
	cfg.Debounce.ReadMarkMs = 50
	cfg.Debounce.SearchMs = 50

	engine := services.NewEngine(client, nav, cfg, log)
	engine.SetLogoutCallback(func() {
		log.Warn("forced logout")
	})
	if searches != nil {
		engine.SetHistoryStore(searches, "demo")
	}
	engine.Start()
	defer engine.Close()

	// Resolve from nothing: the engine falls back to the first mailbox
	if err := engine.Navigate(ctx, "", ""); err != nil {
		return err
	}
	logThreads(log, engine)

	// Open the newest thread
	view := engine.Threads()
	if len(view.Threads) > 0 {
		threadID := view.Threads[0].ID
		if err := engine.Navigate(ctx, engine.Selection().MailboxID, threadID); err != nil {
			return err
		}
		msgs := engine.Messages()
		log.Info("thread opened",
			zap.String("thread", threadID),
			zap.Int("messages", msgs.Count))

		// Scroll the messages into view; the read marks settle into one batch
		for _, m := range msgs.Messages {
			if m.IsUnread() {
				engine.Viewport().Report(m.ID, true)
			}
		}
	}

	// Page through the rest of the mailbox
	for engine.Threads().HasMore {
		if err := engine.LoadMore(ctx); err != nil {
			return err
		}
	}
	logThreads(log, engine)

	// Search, then clear it again
	engine.Search().SetQuery("is:unread")
	engine.Search().ApplyNow()
	if err := engine.Navigate(ctx, engine.Selection().MailboxID, ""); err != nil {
		return err
	}
	logThreads(log, engine)
	if searches != nil {
		if _, err := searches.SaveSearch(ctx, "demo", "unread", "is:unread"); err != nil {
			log.Warn("save search failed", zap.Error(err))
		}
	}
	engine.Search().SetQuery("")
	engine.Search().ApplyNow()
	if err := engine.Navigate(ctx, engine.Selection().MailboxID, ""); err != nil {
		return err
	}
	logThreads(log, engine)

	// Compose, autosave, move sender, send
	drafts := engine.Drafts()
	sid := drafts.NewSession("mb-work", "")
	form := services.DraftForm{
		SenderMailboxID: "mb-work",
		To:              []string{"counsel@example.org"},
		Subject:         "quarterly numbers",
		DraftBody:       "<p>Draft attached.</p>",
	}
	if _, err := drafts.SaveDraft(ctx, sid, form); err != nil {
		return err
	}
	form.SenderMailboxID = "mb-personal"
	if _, err := drafts.SaveDraft(ctx, sid, form); err != nil {
		return err
	}
	task, err := engine.SendDraft(ctx, sid, form)
	if err != nil {
		return err
	}
	log.Info("send settled", zap.String("state", string(task.State)))

	// Let the read-mark window close before shutdown
	time.Sleep(200 * time.Millisecond)
	return nil
}

func logThreads(log *zap.Logger, engine *services.Engine) {
	view := engine.Threads()
	log.Info("thread collection",
		zap.String("mailbox", engine.Selection().MailboxID),
		zap.Int("fetched", len(view.Threads)),
		zap.Int("total", view.Count),
		zap.Bool("has_more", view.HasMore))
}

// loggingNavigator stands in for the address-state collaborator
type loggingNavigator struct {
	log *zap.Logger
}

func (n *loggingNavigator) Replace(mailboxID, threadID string) {
	n.log.Info("navigation replace",
		zap.String("mailbox", mailboxID),
		zap.String("thread", threadID))
}

func (n *loggingNavigator) QueryChanged(query string) {
	n.log.Debug("query changed", zap.String("query", query))
}
