// Package turn runs one conversational turn end to end: load memory,
// extract preferences, select and pack candidates, rank, stream the
// reply, persist.
package turn

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/logger"
	"github.com/kailas-cloud/tripmatch/internal/metrics"
	"github.com/kailas-cloud/tripmatch/internal/repository/catalog"
	"github.com/kailas-cloud/tripmatch/internal/usecase/compose"
	"github.com/kailas-cloud/tripmatch/internal/usecase/conversation"
	"github.com/kailas-cloud/tripmatch/internal/usecase/pack"
)

// Request is one user turn.
type Request struct {
	ConversationID string
	UserID         string
	Message        string
}

// OfferView is one presented offer: catalog fields the client renders
// plus the ranking verdict.
type OfferView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Destinations []string `json:"destinations,omitempty"`
	DurationDays int      `json:"duration_days,omitempty"`
	PriceTier    string   `json:"price_tier,omitempty"`
	URL          string   `json:"url,omitempty"`
	Score        float64  `json:"score"`
	Confidence   string   `json:"confidence"`
	Source       string   `json:"source"`
}

// Sink receives the turn's output as it is produced. Offers is called
// once, before the reply text starts streaming, so structured results
// reach the client even when the reply stream is later interrupted.
type Sink interface {
	Offers(offers []OfferView) error
	Content(fragment string) error
}

// Result summarizes a completed turn.
type Result struct {
	ConversationID string
	Preferences    domain.PreferenceSet
	Ranking        domain.RankingResult
	Reply          string
}

// Extractor updates the preference set from an utterance.
type Extractor interface {
	Extract(ctx context.Context, utterance string, prior domain.PreferenceSet, history []domain.Turn) domain.PreferenceSet
}

// Selector produces the candidate shortlist for a preference set.
type Selector interface {
	Select(ctx context.Context, prefs domain.PreferenceSet) (domain.CandidateSet, error)
}

// Packer fits candidates into the ranking token budget.
type Packer interface {
	Pack(candidates domain.CandidateSet, offers pack.OfferSource) pack.Batch
}

// Ranker picks the final shortlist from a packed batch.
type Ranker interface {
	Rank(ctx context.Context, batch pack.Batch, candidates domain.CandidateSet, prefs domain.PreferenceSet) domain.RankingResult
}

// Composer streams the conversational reply.
type Composer interface {
	Compose(ctx context.Context, prefs domain.PreferenceSet, ranking domain.RankingResult, offers compose.OfferSource, emit func(fragment string) error) (string, error)
}

// Catalog provides the current offer snapshot.
type Catalog interface {
	Snapshot() *catalog.Snapshot
}

// Service orchestrates the turn pipeline.
type Service struct {
	memory    *conversation.Service
	extractor Extractor
	selector  Selector
	packer    Packer
	ranker    Ranker
	composer  Composer
	catalog   Catalog
}

// New wires the turn pipeline.
func New(
	memory *conversation.Service,
	extractor Extractor,
	selector Selector,
	packer Packer,
	ranker Ranker,
	composer Composer,
	cat Catalog,
) *Service {
	return &Service{
		memory:    memory,
		extractor: extractor,
		selector:  selector,
		packer:    packer,
		ranker:    ranker,
		composer:  composer,
		catalog:   cat,
	}
}

// Run executes one turn. Concurrent turns for the same conversation
// serialize on a per-conversation lock. The returned error signals an
// interrupted reply stream; preferences and ranking are persisted even
// then, on a context detached from the client connection.
func (s *Service) Run(ctx context.Context, req Request, sink Sink) (Result, error) {
	log := logger.FromContext(ctx)

	id := req.ConversationID
	if id == "" {
		id = uuid.NewString()
	}

	unlock := s.memory.Lock(id)
	defer unlock()

	state, err := s.memory.Get(ctx, id)
	if err != nil {
		// Degraded memory store: run the turn statelessly rather than
		// refuse the user.
		log.Warn("Conversation load failed, running stateless turn",
			zap.String("conversation_id", id), zap.Error(err))
		state = domain.NewConversationState(id)
	}

	prefs := s.extractor.Extract(ctx, req.Message, state.Preferences, state.History)

	candidates, err := s.selector.Select(ctx, prefs)
	if err != nil {
		log.Warn("Candidate selection failed", zap.String("conversation_id", id), zap.Error(err))
		candidates = nil
	}

	snap := s.catalog.Snapshot()
	batch := s.packer.Pack(candidates, snap)
	ranking := s.ranker.Rank(ctx, batch, candidates, prefs)

	if err := sink.Offers(s.offerViews(snap, ranking)); err != nil {
		// Client is gone. Persist what the turn computed and stop.
		s.persist(ctx, state, req.Message, "", prefs, ranking)
		metrics.TurnsTotal.WithLabelValues("disconnected").Inc()
		return Result{ConversationID: id}, err
	}

	reply, composeErr := s.composer.Compose(ctx, prefs, ranking, snap, sink.Content)

	s.persist(ctx, state, req.Message, reply, prefs, ranking)

	outcome := "success"
	if composeErr != nil {
		outcome = "interrupted"
	}
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()

	return Result{
		ConversationID: id,
		Preferences:    prefs,
		Ranking:        ranking,
		Reply:          reply,
	}, composeErr
}

// persist writes the turn outcome back to conversation memory on a
// context detached from the request, so a client disconnect does not
// lose state the turn already computed. Persistence failure degrades to
// a warning.
func (s *Service) persist(ctx context.Context, state *domain.ConversationState, userMsg, reply string, prefs domain.PreferenceSet, ranking domain.RankingResult) {
	log := logger.FromContext(ctx)
	maxHistory := s.memory.MaxHistory()

	state.Preferences = prefs
	state.AppendTurn(domain.RoleUser, userMsg, maxHistory)
	if reply != "" {
		state.AppendTurn(domain.RoleAssistant, reply, maxHistory)
	}
	if len(ranking) > 0 {
		state.LastRanked = ranking.IDs()
	}
	state.UpdatedAt = time.Now().UTC()

	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.memory.Put(putCtx, state); err != nil {
		log.Warn("Conversation persistence failed",
			zap.String("conversation_id", state.ID), zap.Error(err))
	}
}

// offerViews joins the ranking with catalog details for the client.
func (s *Service) offerViews(snap *catalog.Snapshot, ranking domain.RankingResult) []OfferView {
	views := make([]OfferView, 0, len(ranking))
	for _, r := range ranking {
		view := OfferView{
			ID:         r.OfferID,
			Score:      r.Score,
			Confidence: string(r.Confidence),
			Source:     string(r.Source),
		}
		if snap != nil {
			if o, ok := snap.Get(r.OfferID); ok {
				view.Name = o.Name
				view.Description = o.Description
				view.Destinations = o.Destinations
				view.DurationDays = o.DurationDays
				view.PriceTier = string(o.PriceTier)
				view.URL = o.URL
			}
		}
		views = append(views, view)
	}
	return views
}
