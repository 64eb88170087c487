// Package pipeline runs one collect, generate and deliver pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"lettercast/internal/model"
	"lettercast/internal/storage"
)

// Collector discovers candidate items from one source.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]model.CollectedItem, error)
}

// Generator turns a URL into a local audio file within one browser session.
type Generator interface {
	Start(ctx context.Context) error
	Process(ctx context.Context, url, title string) (string, error)
	Close() error
}

// Sender publishes audio and notices.
type Sender interface {
	SendAudio(ctx context.Context, path, title, sourceURL string) error
	SendMessage(ctx context.Context, text string) error
}

// ReadMarker marks source messages as handled. ScannedMessages lists every
// message the last collection read, including ones that yielded no links.
type ReadMarker interface {
	ScannedMessages() []string
	MarkAsRead(ctx context.Context, messageID string) error
}

// Options selects the run mode.
type Options struct {
	// CollectOnly stops after new items are saved.
	CollectOnly bool
	// DryRun collects and reports new items without writing anything.
	DryRun      bool
	SendSummary bool
	MaxAgeHours int
}

// Report counts what a run did.
type Report struct {
	RunID          string
	Collected      int
	New            int
	Generated      int
	GenerateFailed int
	Delivered      int
	DeliveryFailed int
}

// Pipeline wires the collectors, the store, the generator and the sender.
type Pipeline struct {
	store      storage.Storage
	collectors []Collector
	gen        Generator
	sender     Sender
	marker     ReadMarker
	opts       Options
	log        *slog.Logger
}

// New creates a Pipeline. gen and sender may be nil in collect-only and
// dry-run modes. marker may be nil to leave source messages unread.
func New(store storage.Storage, collectors []Collector, gen Generator, sender Sender, marker ReadMarker, opts Options, log *slog.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		collectors: collectors,
		gen:        gen,
		sender:     sender,
		marker:     marker,
		opts:       opts,
		log:        log,
	}
}

// Run executes one pass. Per-item failures are recorded and logged; the
// returned error reports conditions that stopped a phase.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	rep := &Report{RunID: uuid.NewString()}
	log := p.log.With("run_id", rep.RunID)
	log.Info("pipeline started", "collect_only", p.opts.CollectOnly, "dry_run", p.opts.DryRun)

	items, err := p.collect(ctx, log)
	if err != nil {
		return rep, err
	}
	rep.Collected = len(items)

	rep.New, err = p.filterAndSave(ctx, log, items)
	if err != nil {
		return rep, err
	}

	if p.opts.DryRun {
		log.Info("[dry-run] skipping generation and delivery", "new", rep.New)
		return rep, nil
	}
	if p.opts.CollectOnly {
		log.Info("collect-only run finished", "new", rep.New)
		return rep, nil
	}

	var errs []error
	if err := p.generate(ctx, log, rep); err != nil {
		if ctx.Err() != nil {
			return rep, err
		}
		errs = append(errs, err)
	}
	if err := p.deliver(ctx, log, rep); err != nil {
		if ctx.Err() != nil {
			return rep, err
		}
		errs = append(errs, err)
	}
	p.summarize(ctx, log, rep)

	if recent, err := p.store.GetRecentCount(ctx, p.opts.MaxAgeHours); err != nil {
		log.Warn("count recent items", "error", err)
	} else {
		log.Info("recent items", "hours", p.opts.MaxAgeHours, "count", recent)
	}

	log.Info("pipeline finished",
		"collected", rep.Collected,
		"new", rep.New,
		"generated", rep.Generated,
		"generate_failed", rep.GenerateFailed,
		"delivered", rep.Delivered,
		"delivery_failed", rep.DeliveryFailed,
	)
	return rep, errors.Join(errs...)
}

func (p *Pipeline) collect(ctx context.Context, log *slog.Logger) ([]model.CollectedItem, error) {
	log.Info("phase 1: collect")
	var all []model.CollectedItem
	for _, c := range p.collectors {
		items, err := c.Collect(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			log.Error("collect", "collector", c.Name(), "error", err)
		}
		all = append(all, items...)
	}
	log.Info("collection done", "total", len(all))
	return all, nil
}

// filterAndSave persists items not seen before and returns how many were new.
func (p *Pipeline) filterAndSave(ctx context.Context, log *slog.Logger, items []model.CollectedItem) (int, error) {
	if len(items) == 0 {
		log.Info("nothing collected")
		p.markRead(ctx, log, nil)
		return 0, nil
	}
	log.Info("phase 2: filter")

	seen := make(map[string]bool, len(items))
	// message id -> every url from it was handled; false keeps the message unread
	handled := make(map[string]bool)
	var fresh int

	for i := range items {
		item := &items[i]
		if ctx.Err() != nil {
			return fresh, ctx.Err()
		}
		if item.MessageID != "" {
			if _, ok := handled[item.MessageID]; !ok {
				handled[item.MessageID] = true
			}
		}
		if seen[item.URL] {
			log.Debug("duplicate in batch", "url", item.URL)
			continue
		}
		seen[item.URL] = true

		dup, err := p.store.IsDuplicate(ctx, item.URL)
		if err != nil {
			log.Error("check duplicate", "url", item.URL, "error", err)
			handled[item.MessageID] = false
			continue
		}
		if dup {
			log.Debug("duplicate", "url", item.URL)
			continue
		}

		if p.opts.DryRun {
			log.Info("[dry-run] new url", "url", item.URL, "title", item.Title, "source", item.SourceName)
			fresh++
			continue
		}

		id, err := p.store.Save(ctx, item)
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			log.Warn("url saved concurrently, skipping", "url", item.URL)
			continue
		case err != nil:
			log.Error("save item", "url", item.URL, "error", err)
			handled[item.MessageID] = false
			continue
		}
		log.Info("saved new url", "id", id, "url", item.URL, "source", item.SourceName)
		fresh++
	}

	log.Info("filter done", "new", fresh, "total", len(items))
	p.markRead(ctx, log, handled)
	return fresh, nil
}

func (p *Pipeline) markRead(ctx context.Context, log *slog.Logger, handled map[string]bool) {
	if p.marker == nil || p.opts.DryRun {
		return
	}
	for _, id := range p.marker.ScannedMessages() {
		if ok, found := handled[id]; id == "" || (found && !ok) {
			continue
		}
		if err := p.marker.MarkAsRead(ctx, id); err != nil {
			log.Warn("mark message read", "message_id", id, "error", err)
		}
	}
}

// generate processes every pending item, including ones left by earlier runs.
func (p *Pipeline) generate(ctx context.Context, log *slog.Logger, rep *Report) error {
	pending, err := p.store.GetPending(ctx)
	if err != nil {
		return fmt.Errorf("get pending: %w", err)
	}
	if len(pending) == 0 {
		log.Info("nothing to generate")
		return nil
	}
	if p.gen == nil {
		return errors.New("no generator configured")
	}
	log.Info("phase 3: generate", "count", len(pending))

	if err := p.gen.Start(ctx); err != nil {
		log.Error("start generator, items stay pending", "error", err)
		return err
	}
	defer func() {
		if err := p.gen.Close(); err != nil {
			log.Warn("close generator", "error", err)
		}
	}()

	for i, item := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Info("generating audio", "n", i+1, "of", len(pending), "id", item.ID, "title", item.Title)

		if err := p.store.UpdateStatus(ctx, item.ID, model.StatusProcessing, storage.StatusUpdate{}); err != nil {
			log.Error("mark processing", "id", item.ID, "error", err)
			continue
		}

		path, genErr := p.gen.Process(ctx, item.URL, item.Title)
		if genErr != nil && ctx.Err() != nil {
			// Interrupted, not failed: the next run picks the item up again.
			log.Warn("generation interrupted, item back to pending", "id", item.ID, "error", genErr)
			if err := p.store.UpdateStatus(context.WithoutCancel(ctx), item.ID, model.StatusPending, storage.StatusUpdate{}); err != nil {
				log.Error("mark pending", "id", item.ID, "error", err)
			}
			return ctx.Err()
		}
		if genErr != nil {
			rep.GenerateFailed++
			msg := genErr.Error()
			log.Error("generate audio", "id", item.ID, "url", item.URL, "error", genErr)
			if err := p.store.UpdateStatus(ctx, item.ID, model.StatusFailed, storage.StatusUpdate{ErrorMsg: &msg}); err != nil {
				log.Error("mark failed", "id", item.ID, "error", err)
			}
			continue
		}

		if err := p.store.UpdateStatus(ctx, item.ID, model.StatusCompleted, storage.StatusUpdate{AudioPath: &path}); err != nil {
			log.Error("mark completed", "id", item.ID, "error", err)
			continue
		}
		rep.Generated++
	}

	log.Info("generation done", "completed", rep.Generated, "of", len(pending))
	return nil
}

// deliver sends every completed item that still holds an audio file.
func (p *Pipeline) deliver(ctx context.Context, log *slog.Logger, rep *Report) error {
	ready, err := p.store.GetCompletedWithoutDelivery(ctx)
	if err != nil {
		return fmt.Errorf("get undelivered: %w", err)
	}
	if len(ready) == 0 {
		log.Info("nothing to deliver")
		return nil
	}
	if p.sender == nil {
		return errors.New("no sender configured")
	}
	log.Info("phase 4: deliver", "count", len(ready))

	for _, item := range ready {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if item.AudioPath == nil {
			continue
		}
		path := *item.AudioPath

		if err := p.sender.SendAudio(ctx, path, item.Title, item.URL); err != nil {
			rep.DeliveryFailed++
			log.Error("deliver", "id", item.ID, "path", path, "error", err)
			continue
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove delivered audio", "path", path, "error", err)
		}
		if err := p.store.MarkDelivered(ctx, item.ID); err != nil {
			log.Error("mark delivered", "id", item.ID, "error", err)
			continue
		}
		rep.Delivered++
	}

	log.Info("delivery done", "delivered", rep.Delivered, "of", len(ready))
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, log *slog.Logger, rep *Report) {
	if !p.opts.SendSummary || p.sender == nil {
		return
	}
	if rep.New == 0 && rep.Generated == 0 && rep.GenerateFailed == 0 && rep.Delivered == 0 && rep.DeliveryFailed == 0 {
		return
	}
	if err := p.sender.SendMessage(ctx, FormatSummary(rep)); err != nil {
		log.Warn("send summary", "error", err)
	}
}

// FormatSummary renders a run report as an HTML message.
func FormatSummary(rep *Report) string {
	return fmt.Sprintf(
		"<b>LetterCast run</b>\n\nNew URLs: %d\nAudio generated: %d (failed %d)\nDelivered: %d (failed %d)",
		rep.New, rep.Generated, rep.GenerateFailed, rep.Delivered, rep.DeliveryFailed,
	)
}
