package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"evcal/internal/caldate"
	"evcal/internal/config"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/sanitize"
)

// OwnerPrefix marks events created by a feed import.
const OwnerPrefix = "ics:"

const untitled = "(без названия)"

// Owner returns the CreatedBy value of events imported from feed id.
func Owner(id string) string { return OwnerPrefix + id }

// Feed is a subscription plus the classification its events receive.
type Feed struct {
	Source
	Name     string
	Category model.Category
	Industry model.Industry
	Country  model.Country
}

// FeedsFromConfig validates the configured subscriptions.
func FeedsFromConfig(cfgs []config.ICSConfig) ([]Feed, error) {
	feeds := make([]Feed, 0, len(cfgs))
	seen := make(map[string]bool)
	for i, c := range cfgs {
		if c.URL == "" {
			return nil, fmt.Errorf("ics[%d]: url is empty", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("ics[%d]: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = true

		cat, err := model.ParseCategory(c.Category)
		if err != nil {
			return nil, fmt.Errorf("ics[%d] %q: %w", i, c.ID, err)
		}
		ind := model.Industry(c.Industry)
		if ind == "" {
			ind = model.DefaultIndustry
		}
		if !ind.Valid() {
			return nil, fmt.Errorf("ics[%d] %q: unknown industry %q", i, c.ID, c.Industry)
		}
		country := model.Country(c.Country)
		if !country.Valid() {
			return nil, fmt.Errorf("ics[%d] %q: unknown country %q", i, c.ID, c.Country)
		}
		feeds = append(feeds, Feed{
			Source:   Source{ID: c.ID, URL: c.URL},
			Name:     c.Name,
			Category: cat,
			Industry: ind,
			Country:  country,
		})
	}
	return feeds, nil
}

// Replacer swaps all events owned by one import source.
type Replacer interface {
	ReplaceSource(ctx context.Context, owner string, events []model.Event) error
}

// Importer pulls feeds into the event store.
type Importer struct {
	fetcher *Fetcher
	store   Replacer
	feeds   []Feed
	loc     *time.Location
	horizon int

	now func() time.Time
}

// NewImporter imports feeds into store. Occurrences are kept within horizon
// days either side of today in loc.
func NewImporter(fetcher *Fetcher, store Replacer, feeds []Feed, loc *time.Location, horizon int) *Importer {
	if loc == nil {
		loc = time.Local
	}
	if horizon <= 0 {
		horizon = 365
	}
	return &Importer{
		fetcher: fetcher,
		store:   store,
		feeds:   feeds,
		loc:     loc,
		horizon: horizon,
		now:     time.Now,
	}
}

// Feeds returns the configured feeds.
func (im *Importer) Feeds() []Feed { return im.feeds }

// ImportAll imports every feed. A failing feed keeps its previous events
// and does not stop the others; the joined error lists all failures.
func (im *Importer) ImportAll(ctx context.Context) error {
	var errs []error
	for _, f := range im.feeds {
		n, err := im.Import(ctx, f)
		if err != nil {
			appLog.Error("ics import failed", err, "id", f.ID, "url", redactURL(f.URL))
			errs = append(errs, fmt.Errorf("%s: %w", f.ID, err))
			continue
		}
		appLog.Info("ics import done", "id", f.ID, "events", n)
	}
	return errors.Join(errs...)
}

// Import fetches, parses and flattens one feed and replaces its events.
// It returns the number of events stored.
func (im *Importer) Import(ctx context.Context, f Feed) (int, error) {
	res, err := im.fetcher.Fetch(ctx, f.Source)
	if err != nil {
		return 0, err
	}
	parsed, err := Parse(f.Source, res.Body)
	if err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}

	today := caldate.FromTime(im.now().In(im.loc))
	flat, err := Flatten(parsed, FlattenConfig{
		Location: im.loc,
		From:     today.AddDays(-im.horizon),
		To:       today.AddDays(im.horizon),
	})
	if err != nil {
		return 0, err
	}

	// A feed may repeat a UID for the same instance. The highest SEQUENCE
	// wins; on a tie the later VEVENT does.
	events := make([]model.Event, 0, len(flat.Occurrences))
	seqs := make([]int, 0, len(flat.Occurrences))
	index := make(map[string]int, len(flat.Occurrences))
	dropped := 0
	for _, occ := range flat.Occurrences {
		e := toEvent(f, occ)
		if err := e.Validate(); err != nil {
			appLog.Warn("ics occurrence skipped", "id", f.ID, "uid", occ.UID, "err", err)
			continue
		}
		if i, ok := index[e.ID]; ok {
			dropped++
			if occ.Sequence >= seqs[i] {
				events[i], seqs[i] = e, occ.Sequence
			}
			continue
		}
		index[e.ID] = len(events)
		events = append(events, e)
		seqs = append(seqs, occ.Sequence)
	}
	if dropped > 0 {
		appLog.Warn("ics duplicate occurrences dropped", "id", f.ID, "count", dropped)
	}

	if err := im.store.ReplaceSource(ctx, Owner(f.ID), events); err != nil {
		return 0, err
	}
	return len(events), nil
}

func toEvent(f Feed, occ Occurrence) model.Event {
	title := occ.Summary
	if title == "" {
		title = untitled
	}
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		title = string([]rune(title)[:model.MaxTitleLength])
	}

	var desc []string
	if occ.Location != "" {
		desc = append(desc, "<p><b>"+html.EscapeString(occ.Location)+"</b></p>")
	}
	if occ.Description != "" {
		text := strings.ReplaceAll(html.EscapeString(occ.Description), "\n", "<br>")
		desc = append(desc, "<p>"+text+"</p>")
	}

	return model.Event{
		ID:          eventID(f.ID, occ),
		Title:       title,
		Description: sanitize.Description(strings.Join(desc, "")),
		StartDate:   occ.StartDate,
		EndDate:     occ.EndDate,
		Category:    f.Category,
		Industry:    f.Industry,
		Country:     f.Country,
		CreatedBy:   Owner(f.ID),
	}
}

// eventID is stable across refreshes so links to imported events survive.
func eventID(feedID string, occ Occurrence) string {
	sum := sha256.Sum256([]byte(feedID + "\x00" + occ.UID + "\x00" + occ.InstanceKey))
	return "ics-" + hex.EncodeToString(sum[:12])
}
