// Package pipeline turns fetched mailbox messages into complaint records.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/core/service/casekey"
	"complaint_server/core/service/filter"
	"complaint_server/core/service/origin"
	"complaint_server/core/service/pattern"
	"complaint_server/core/service/record"
	"complaint_server/pkg/apperr"
	"complaint_server/pkg/logger"
	"complaint_server/pkg/metrics"
)

// Settings are the per-run knobs.
type Settings struct {
	Mailbox           string
	StartDate         time.Time
	ClassifyTimeout   time.Duration
	MaxRetries        int
	BackoffMultiplier float64
}

// Deps are the collaborators. Cursor, Locker, Audit and Archive are optional.
type Deps struct {
	Source     out.MessageSource
	Store      out.ComplaintStore
	Classifier out.Classifier
	Cursor     out.SyncCursorStore
	Locker     out.CaseLocker
	Audit      out.AuditPublisher
	Archive    out.ComplaintArchive
	Metrics    *metrics.Pipeline
}

type Service struct {
	lib      *pattern.Library
	filter   *filter.NoiseFilter
	origins  *origin.Extractor
	keys     *casekey.Generator
	parts    *casekey.PartResolver
	deps     Deps
	settings Settings
	executor Executor
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Service)

// WithExecutor replaces sequential processing, e.g. with a worker pool.
func WithExecutor(e Executor) Option {
	return func(s *Service) { s.executor = e }
}

// WithClock overrides time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(lib *pattern.Library, extractor *origin.Extractor, deps Deps, settings Settings, opts ...Option) *Service {
	if settings.Mailbox == "" {
		settings.Mailbox = "me"
	}
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = 3
	}
	if settings.BackoffMultiplier < 1 {
		settings.BackoffMultiplier = 1.8
	}
	s := &Service{
		lib:      lib,
		filter:   filter.New(lib),
		origins:  extractor,
		keys:     casekey.New(lib),
		parts:    casekey.NewPartResolver(lib),
		deps:     deps,
		settings: settings,
		executor: sequential{},
		now:      time.Now,
		log:      logger.Component("pipeline"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Run - one batch over everything received since the cursor
// =============================================================================

// Run fetches, processes and tallies one batch. Per-message failures are
// counted, never returned; the error is reserved for a failed fetch or a
// cancelled run. The cursor only advances when nothing failed.
func (s *Service) Run(ctx context.Context) (*domain.BatchSummary, error) {
	summary := &domain.BatchSummary{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
	}
	log := s.log.With().Str("run_id", summary.RunID).Logger()

	// 1. Cursor
	since, err := s.since(ctx)
	if err != nil {
		return s.finish(summary), err
	}

	// 2. Fetch
	msgs, err := s.deps.Source.FetchSince(ctx, since)
	if err != nil {
		log.Error().Err(err).Time("since", since).Msg("fetch failed")
		return s.finish(summary), apperr.SourceUnavailable(s.settings.Mailbox, err)
	}
	summary.Checked = len(msgs)

	latest, first := LatestPerConversation(msgs)
	log.Info().Int("checked", len(msgs)).Int("threads", len(latest)).Time("since", since).Msg("batch fetched")

	// 3. Process
	outcomes := s.executor.Execute(ctx, latest, func(ctx context.Context, msg *domain.RawMessage) Outcome {
		return s.Process(ctx, summary.RunID, msg, first[msg.ConversationID])
	})
	Tally(summary, outcomes)
	s.finish(summary)

	// 4. Cursor
	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("batch interrupted; cursor not advanced")
		return summary, err
	}
	if summary.Failed == 0 && len(latest) > 0 && s.deps.Cursor != nil {
		newest := latest[len(latest)-1].ReceivedAt.UTC()
		if newest.After(since) {
			if err := s.deps.Cursor.SetCursor(ctx, s.settings.Mailbox, newest); err != nil {
				log.Error().Err(err).Msg("failed to advance cursor")
			}
		}
	}

	log.Info().
		Int("new", summary.New).
		Int("updated", summary.Updated).
		Int("merged", summary.Merged).
		Int("filtered", summary.FilteredOut).
		Int("unchanged", summary.Unchanged).
		Int("failed", summary.Failed).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("batch complete")
	return summary, nil
}

func (s *Service) since(ctx context.Context) (time.Time, error) {
	if s.deps.Cursor == nil {
		return s.settings.StartDate, nil
	}
	at, ok, err := s.deps.Cursor.GetCursor(ctx, s.settings.Mailbox)
	if err != nil {
		return time.Time{}, apperr.DatabaseError("read sync cursor", err)
	}
	if !ok || at.Before(s.settings.StartDate) {
		return s.settings.StartDate, nil
	}
	return at, nil
}

func (s *Service) finish(summary *domain.BatchSummary) *domain.BatchSummary {
	summary.FinishedAt = s.now().UTC()
	s.deps.Metrics.ObserveBatch(summary.FinishedAt.Sub(summary.StartedAt))
	return summary
}

// =============================================================================
// Process - one message
// =============================================================================

// Process runs one message through filter, classification and merge.
// firstFetched, when known, is the oldest fetched message of the same
// conversation.
func (s *Service) Process(ctx context.Context, runID string, msg, firstFetched *domain.RawMessage) Outcome {
	o := s.process(ctx, runID, msg, firstFetched)
	s.deps.Metrics.Outcome(string(o.Kind))

	ev := s.log.Info()
	if o.Kind == OutcomeFailed {
		ev = s.log.Warn().Err(o.Err)
	}
	ev.Str("run_id", runID).
		Str("conversation_id", o.ConversationID).
		Str("case_key", string(o.CaseKey)).
		Str("action", string(o.Kind)).
		Msg("message processed")
	return o
}

func (s *Service) process(ctx context.Context, runID string, msg, firstFetched *domain.RawMessage) Outcome {
	subject := s.lib.CleanSubject(msg.Subject)
	o := Outcome{ConversationID: msg.ConversationID, Subject: subject}
	fail := func(err error) Outcome {
		o.Kind = OutcomeFailed
		o.Err = err
		return o
	}

	existing, err := s.deps.Store.GetByConversation(ctx, msg.ConversationID)
	if err != nil {
		return fail(err)
	}
	received := msg.ReceivedAt.UTC().Truncate(time.Microsecond)
	if existing != nil && !existing.ReceivedAt.Before(received) {
		o.Kind = OutcomeUnchanged
		o.CaseKey = existing.CaseKey
		return o
	}

	// 1. Noise filter
	verdict := s.filter.Evaluate(msg)
	if !verdict.Accepted {
		s.deps.Metrics.FilterRejected(verdict.Terminal)
		return s.skip(ctx, o, existing, received)
	}

	// 2. Classification
	latestReply := s.lib.LatestReply(msg.Body)
	tail := s.lib.QuotedTail(msg.Body)
	result, err := s.deps.Classifier.Classify(ctx, out.ClassifyRequest{
		Subject:           subject,
		Sender:            msg.From,
		Body:              latestReply,
		Timeout:           s.settings.ClassifyTimeout,
		MaxRetries:        s.settings.MaxRetries,
		BackoffMultiplier: s.settings.BackoffMultiplier,
	})
	if err != nil {
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		s.log.Warn().Err(err).Str("conversation_id", msg.ConversationID).Msg("building unclassified record")
	}
	if result.Usable() && !result.IsComplaint {
		s.deps.Metrics.FilterRejected("not_complaint")
		return s.skip(ctx, o, existing, received)
	}

	// 3. Part number, origin, case key
	part := s.parts.Resolve(subject, latestReply, tail, result.PartNumber)
	originRec := s.origins.Extract(msg.Body)
	searchable := strings.Join([]string{subject, latestReply, result.Summary}, "\n")
	key := s.keys.Generate(msg.SenderDomain(), part.Normalized, searchable)
	o.CaseKey = key
	o.PartNumber = part.Display

	in := record.Input{
		Message:        msg,
		Verdict:        verdict,
		Origin:         originRec,
		CaseKey:        key,
		Classification: result,
		PartNumber:     part.Display,
		Subject:        subject,
	}
	if existing == nil {
		in.FirstSeenAt, in.Initiator = s.conversationStart(ctx, msg, firstFetched)
	}

	// 4. Build and persist under the case lock
	rec, action, err := s.persist(ctx, in)
	if err != nil {
		return fail(err)
	}

	switch action {
	case domain.MergeCreated:
		o.Kind = OutcomeCreated
	case domain.MergeUpdated:
		o.Kind = OutcomeUpdated
		o.PartCaptured = existing != nil && existing.PartNumber == domain.MissingPartNumber && rec.PartNumber != domain.MissingPartNumber
	case domain.MergeDuplicate:
		o.Kind = OutcomeMerged
	}
	o.CaseKey = rec.CaseKey
	o.PartNumber = rec.PartNumber
	s.deps.Metrics.MergeAction(string(action))

	s.record(ctx, runID, verdict, rec, action)
	return o
}

// skip handles rejected messages: an existing record only has its received
// time moved forward.
func (s *Service) skip(ctx context.Context, o Outcome, existing *domain.ComplaintRecord, received time.Time) Outcome {
	if existing != nil {
		if err := s.deps.Store.Touch(ctx, existing.ConversationID, received); err != nil {
			o.Kind = OutcomeFailed
			o.Err = err
			return o
		}
		o.CaseKey = existing.CaseKey
	}
	o.Kind = OutcomeFiltered
	return o
}

func (s *Service) persist(ctx context.Context, in record.Input) (*domain.ComplaintRecord, domain.MergeAction, error) {
	if s.deps.Locker != nil {
		release, err := s.deps.Locker.LockCase(ctx, in.CaseKey)
		if err != nil {
			return nil, "", err
		}
		defer release()
	}

	// Re-read under the lock so concurrent writers see each other.
	byConv := map[string]*domain.ComplaintRecord{}
	existing, err := s.deps.Store.GetByConversation(ctx, in.Message.ConversationID)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		byConv[existing.ConversationID] = existing
	}
	sameKey, err := s.deps.Store.FindByCaseKey(ctx, in.CaseKey)
	if err != nil {
		return nil, "", err
	}

	rec, action := record.Build(in, byConv, map[domain.CaseKey][]*domain.ComplaintRecord{in.CaseKey: sameKey})

	if err := s.deps.Store.Upsert(ctx, rec); err != nil {
		if apperr.IsCode(err, apperr.CodePersistenceConflict) {
			s.deps.Metrics.PersistenceConflict()
		}
		return nil, "", err
	}
	return rec, action, nil
}

// conversationStart returns the first-seen time and initiator from the
// oldest message known for the conversation.
func (s *Service) conversationStart(ctx context.Context, msg, firstFetched *domain.RawMessage) (time.Time, string) {
	var at time.Time
	var initiator string
	if firstFetched != nil && firstFetched.ReceivedAt.Before(msg.ReceivedAt) {
		at, initiator = firstFetched.ReceivedAt, firstFetched.From
	}

	history, ok := s.deps.Source.(out.ConversationHistory)
	if !ok {
		return at, initiator
	}
	earliest, err := history.EarliestInConversation(ctx, msg.ConversationID)
	if err != nil {
		s.log.Debug().Err(err).Str("conversation_id", msg.ConversationID).Msg("earliest message lookup failed")
		return at, initiator
	}
	if earliest != nil && !earliest.ReceivedAt.IsZero() && (at.IsZero() || earliest.ReceivedAt.Before(at)) {
		at, initiator = earliest.ReceivedAt, earliest.From
	}
	return at, initiator
}

// record publishes the build event. Failures here never fail the message.
func (s *Service) record(ctx context.Context, runID string, verdict domain.FilterVerdict, rec *domain.ComplaintRecord, action domain.MergeAction) {
	if s.deps.Audit == nil && s.deps.Archive == nil {
		return
	}
	event := &domain.BuildEvent{
		ID:             uuid.NewString(),
		RunID:          runID,
		ConversationID: rec.ConversationID,
		CaseKey:        rec.CaseKey,
		Action:         action,
		MatchedRules:   verdict.MatchedRules,
		Record:         rec,
		OccurredAt:     s.now().UTC(),
	}
	if s.deps.Audit != nil {
		if err := s.deps.Audit.PublishBuild(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", rec.ConversationID).Msg("audit publish failed")
		}
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.AppendEvent(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Str("conversation_id", rec.ConversationID).Msg("archive append failed")
		}
	}
}
