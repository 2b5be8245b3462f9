package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/contentloop/crossposter/app/community"
	"github.com/contentloop/crossposter/app/database"
	"github.com/contentloop/crossposter/app/decision"
	"github.com/contentloop/crossposter/app/filter"
	"github.com/contentloop/crossposter/app/identity"
	"github.com/contentloop/crossposter/app/ingest"
	"github.com/contentloop/crossposter/app/limiter"
	"github.com/contentloop/crossposter/app/publisher"
)

const contentSource = "reddit.com"

// Processor decides, exactly once per observation, whether a piece of
// content is created, updated, or published. All mutations go through the
// record store's conditional writes; the processor itself keeps no state
// between observations.
type Processor struct {
	records  database.RecordRepository
	filterer *filter.Filterer
	engine   *decision.Engine
	gate     BudgetGate
	assets   AssetManager
	pub      Publisher
}

func NewProcessor(records database.RecordRepository, filterer *filter.Filterer,
	engine *decision.Engine, gate BudgetGate, assets AssetManager, pub Publisher) *Processor {
	return &Processor{
		records:  records,
		filterer: filterer,
		engine:   engine,
		gate:     gate,
		assets:   assets,
		pub:      pub,
	}
}

// Run processes one community's batch sequentially. A failing observation is
// logged and skipped; it never aborts the remainder of the batch. Returns
// the summary and the ids observed in this run, in input order, for the
// snapshot rewrite.
func (p *Processor) Run(ctx context.Context, comm *community.Config,
	observations []ingest.Observation, seen SeenSet) (Summary, []string) {

	summary := Summary{Total: len(observations)}
	var observedIDs []string

	for _, obs := range observations {
		outcome, id, err := p.Process(ctx, comm, obs, seen)
		if id != "" {
			observedIDs = append(observedIDs, id)
		}
		if err != nil {
			slog.Error("Observation processing failed", "community", comm.Name,
				"locator", obs.Locator, "error", err)
			summary.Failed++
			continue
		}

		switch outcome {
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeCreated:
			summary.Created++
		case OutcomeUpdated:
			summary.Updated++
		case OutcomePublished:
			summary.Published++
		case OutcomeDeferred:
			summary.Deferred++
		}
	}

	return summary, observedIDs
}

// Process runs the full decision sequence for one observation:
// identity, snapshot pre-filter, store create-or-append, eligibility filter,
// decision engine, rate limiter, publication.
func (p *Processor) Process(ctx context.Context, comm *community.Config,
	obs ingest.Observation, seen SeenSet) (Outcome, string, error) {

	id, err := identity.Resolve(obs.Locator)
	if err != nil {
		return OutcomeSkipped, "", fmt.Errorf("failed to resolve identity: %w", err)
	}

	// Coarse pre-filter: ids from the previous run are done without a store
	// round trip. The store remains authoritative for everything else.
	if seen != nil && seen.Contains(id) {
		return OutcomeSkipped, id, nil
	}

	status, err := p.records.Lookup(ctx, id)
	if err != nil {
		return OutcomeSkipped, id, err
	}

	observation := database.Observation{
		ObservedAt:   obs.ObservedAt,
		Score:        obs.Score,
		CommentCount: obs.CommentCount,
	}

	var position int
	var posted bool
	created := false

	if status == nil {
		// First observation: capture the asset, then a conditional insert.
		// Capture failures are not fatal; the availability check below
		// defers eligibility until the asset lands.
		if err := p.assets.Capture(ctx, comm.Name, id, obs.Locator, contentSource); err != nil {
			slog.Warn("Asset capture failed", "community", comm.Name, "id", id, "error", err)
		}

		err = p.records.Create(ctx, p.buildRecord(id, comm, obs), observation)
		switch {
		case err == nil:
			position = 1
			created = true
		case errors.Is(err, database.ErrConflict):
			// Lost the first-observation race; the record exists now.
			position, err = p.records.Append(ctx, id, observation)
			if err != nil {
				return OutcomeSkipped, id, err
			}
		default:
			return OutcomeSkipped, id, err
		}
	} else {
		posted = status.Posted
		position, err = p.records.Append(ctx, id, observation)
		if err != nil {
			return OutcomeSkipped, id, err
		}
	}

	filterResult, err := p.filterer.Run(ctx, comm.Name, id, obs.Title, comm.Decision.BannedTerms)
	if err != nil {
		return OutcomeSkipped, id, err
	}

	verdict := p.engine.Run(decision.Input{
		Posted:          posted,
		FilterRejected:  filterResult.Rejected,
		FilterPermanent: filterResult.Permanent,
		CreatedAt:       obs.CreatedAt,
		Now:             obs.ObservedAt,
		Score:           obs.Score,
		Position:        position,
		Thresholds:      comm.Decision.Thresholds,
	})

	slog.Debug("Observation evaluated", "community", comm.Name, "id", id,
		"position", position, "verdict", verdict.String())

	if verdict != decision.VerdictEligible {
		if created {
			return OutcomeCreated, id, nil
		}
		return OutcomeUpdated, id, nil
	}

	return p.publish(ctx, comm, id, obs)
}

// publish confirms the advisory eligible verdict with the rate limiter and
// performs the publication. Approved content goes to the primary channel;
// over-budget content goes to the community's secondary channel when one is
// configured, and is dropped otherwise.
func (p *Processor) publish(ctx context.Context, comm *community.Config,
	id string, obs ingest.Observation) (Outcome, string, error) {

	gateDecision, err := p.gate.Acquire(ctx, comm.Account.Name)
	if err != nil {
		return OutcomeSkipped, id, err
	}

	channel := publisher.ChannelPrimary
	outcome := OutcomePublished

	if gateDecision == limiter.DecisionDeferred {
		if comm.Account.SecondaryChannel == "" {
			slog.Info("Publication deferred, no secondary channel configured",
				"community", comm.Name, "id", id)
			return OutcomeDeferred, id, nil
		}
		channel = publisher.Channel(comm.Account.SecondaryChannel)
		outcome = OutcomeDeferred
	}

	assetPath, err := p.assets.Ensure(ctx, comm.Name, id)
	if err != nil {
		return OutcomeSkipped, id, err
	}

	err = p.pub.Publish(ctx, publisher.Request{
		AssetPath:       assetPath,
		Caption:         buildCaption(obs.Title, comm.Caption.Hashtags),
		AccountName:     comm.Account.Name,
		AccountPassword: comm.Account.Password,
		Channel:         channel,
	})
	if err != nil {
		return OutcomeSkipped, id, err
	}

	// Posted is monotonic: set only after the publication succeeded, on
	// either channel, so the record is never re-published.
	if err := p.records.MarkPosted(ctx, id); err != nil {
		return OutcomeSkipped, id, err
	}

	slog.Info("Content published", "community", comm.Name, "id", id,
		"account", comm.Account.Name, "channel", string(channel))

	return outcome, id, nil
}

func (p *Processor) buildRecord(id string, comm *community.Config, obs ingest.Observation) database.ContentRecord {
	return database.ContentRecord{
		ID:                  id,
		Community:           comm.Name,
		CommunitySize:       obs.CommunitySize,
		ContentSource:       contentSource,
		Title:               obs.Title,
		Locator:             obs.Locator,
		AssetKey:            comm.Name + "/" + id,
		AssetBucket:         p.assets.Bucket(),
		CurrentScore:        obs.Score,
		CurrentCommentCount: obs.CommentCount,
		CreatedAt:           obs.CreatedAt,
	}
}

func buildCaption(title, hashtags string) string {
	if hashtags == "" {
		return title
	}
	return title + "\n.\n.\n" + hashtags
}
