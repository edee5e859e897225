// Package scout is the application facade: the operations a UI or operator
// calls on the discovery and analysis pipeline.
package scout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bsc-token-scout/internal/discovery"
	"bsc-token-scout/internal/domain"
	"bsc-token-scout/internal/events"
	"bsc-token-scout/internal/ingestion"
	"bsc-token-scout/internal/metadata"
	"bsc-token-scout/internal/queue"
	"bsc-token-scout/internal/scoring"
	"bsc-token-scout/internal/storage"
)

// Poller fetches one batch of recent pair-creation events.
// Satisfied by *ingestion.PollingPairSource.
type Poller interface {
	Poll(ctx context.Context) ([]*domain.PairCreatedEvent, error)
}

// Analyzer produces a full analysis. Satisfied by *analysis.Analyzer.
type Analyzer interface {
	Analyze(ctx context.Context, address string) (*domain.Analysis, error)
	IsTradeable(ctx context.Context, address string) bool
}

// MetadataSource resolves token metadata. Satisfied by *metadata.Fetcher.
type MetadataSource interface {
	Fetch(ctx context.Context, address string) (*domain.TokenMetadata, error)
}

// ConnectionSource reports and controls the push feed connection.
// Satisfied by *evm.WSClient.
type ConnectionSource interface {
	State() domain.ConnectionState
	Attempts() int
	MaxAttempts() int
	Reconnect()
}

// FeedStats reports feed counters. Satisfied by *ingestion.Runner.
type FeedStats interface {
	Stats() ingestion.Stats
}

// Status summarizes the pipeline.
type Status struct {
	FeedMode       string                 `json:"feedMode"`
	Dedup          discovery.DedupStats   `json:"dedup"`
	Connection     domain.ConnectionState `json:"connection,omitempty"`
	Reconnects     int                    `json:"reconnectAttempts"`
	MaxReconnects  int                    `json:"maxReconnectAttempts,omitempty"`
	Feed           ingestion.Stats        `json:"feed"`
	QueueDepth     int                    `json:"queueDepth"`
	InProgress     int                    `json:"inProgress"`
	CachedAnalyses int                    `json:"cachedAnalyses"`
	Tokens         int                    `json:"tokens"`
	Subscribers    int                    `json:"subscribers"`
}

// Options wires optional collaborators.
type Options struct {
	Chain      string
	FeedMode   string
	Poller     Poller // required by GetNewTokens
	Resolver   *discovery.Resolver
	History    storage.ScoreHistoryStore
	Progress   storage.FeedProgressStore // records transactions GetNewTokens consumed
	Bus        *events.Bus
	Connection ConnectionSource
	Feed       FeedStats
	Now        func() time.Time
	Logger     zerolog.Logger
}

// Service implements the facade operations.
type Service struct {
	analyzer Analyzer
	metadata MetadataSource
	queue    *queue.Queue
	tokens   storage.TokenStore

	chain      string
	feedMode   string
	poller     Poller
	resolver   *discovery.Resolver
	history    storage.ScoreHistoryStore
	progress   storage.FeedProgressStore
	bus        *events.Bus
	connection ConnectionSource
	feed       FeedStats
	now        func() time.Time
	log        zerolog.Logger
}

// NewService creates the facade.
func NewService(analyzer Analyzer, md MetadataSource, q *queue.Queue, tokens storage.TokenStore, opts Options) *Service {
	if opts.Chain == "" {
		opts.Chain = domain.ChainBSC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		analyzer:   analyzer,
		metadata:   md,
		queue:      q,
		tokens:     tokens,
		chain:      opts.Chain,
		feedMode:   opts.FeedMode,
		poller:     opts.Poller,
		resolver:   opts.Resolver,
		history:    opts.History,
		progress:   opts.Progress,
		bus:        opts.Bus,
		connection: opts.Connection,
		feed:       opts.Feed,
		now:        opts.Now,
		log:        opts.Logger.With().Str("component", "scout").Logger(),
	}
}

// GetNewTokens polls the feed once and returns the valid, tradeable tokens it
// discovered. Each is stored with metadata only and queued for analysis.
func (s *Service) GetNewTokens(ctx context.Context) ([]*domain.Token, error) {
	if s.poller == nil || s.resolver == nil {
		return nil, &Error{Kind: KindUnavailable, Err: errors.New("poll feed not configured")}
	}
	evs, err := s.poller.Poll(ctx)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Err: fmt.Errorf("poll pair events: %w", err)}
	}

	tokens := make([]*domain.Token, 0, len(evs))
	for _, ev := range evs {
		d := s.resolver.Decide(ev)
		if d.Candidate == "" {
			if d.Reason == discovery.SkipEstablished {
				s.markSeen(ctx, ev.TxHash)
			}
			continue
		}
		s.markSeen(ctx, ev.TxHash)
		candidate := d.Candidate

		if !s.analyzer.IsTradeable(ctx, candidate) {
			s.log.Debug().Str("address", candidate).Msg("skipping untradeable token")
			continue
		}
		t, _, err := s.register(ctx, candidate)
		if err != nil {
			if ctx.Err() != nil {
				return tokens, &Error{Kind: KindUnavailable, Err: ctx.Err()}
			}
			s.log.Debug().Err(err).Str("kind", string(KindOf(err))).Str("address", candidate).Msg("dropping candidate")
			continue
		}
		s.queue.Enqueue(candidate)
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// AddToken registers a token by address outside the feed and queues it for
// analysis. A token already stored is returned as is.
func (s *Service) AddToken(ctx context.Context, address string) (*domain.Token, bool, error) {
	addr, err := s.canonical(address)
	if err != nil {
		return nil, false, err
	}
	t, err := s.tokens.GetByAddress(ctx, s.chain, addr)
	switch {
	case err == nil:
		return t, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, false, &Error{Kind: KindUnavailable, Address: addr, Err: err}
	}

	t, created, err := s.register(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	s.queue.Enqueue(addr)
	s.log.Info().Str("address", addr).Str("symbol", t.Symbol).Msg("token added")
	return t, created, nil
}

// register stores a metadata-only record for a new candidate. It reports
// whether the record was created.
func (s *Service) register(ctx context.Context, addr string) (*domain.Token, bool, error) {
	meta, err := s.metadata.Fetch(ctx, addr)
	if errors.Is(err, metadata.ErrNotAToken) || (err == nil && !meta.IsValid()) {
		return nil, false, &Error{Kind: KindNotAToken, Address: addr, Err: metadata.ErrNotAToken}
	}
	if err != nil {
		return nil, false, &Error{Kind: KindUnavailable, Address: addr, Err: err}
	}

	created, err := s.tokens.Upsert(ctx, meta.NewToken(s.chain, s.now().UnixMilli()))
	if err != nil {
		return nil, false, &Error{Kind: KindUnavailable, Address: addr, Err: fmt.Errorf("store token: %w", err)}
	}
	t, err := s.tokens.GetByAddress(ctx, s.chain, addr)
	if err != nil {
		return nil, false, &Error{Kind: KindUnavailable, Address: addr, Err: fmt.Errorf("reload token: %w", err)}
	}
	if created && s.bus != nil {
		s.bus.NewToken.Publish(t.Clone())
	}
	return t, created, nil
}

func (s *Service) markSeen(ctx context.Context, txHash string) {
	if s.progress == nil || txHash == "" {
		return
	}
	if err := s.progress.MarkTxSeen(ctx, txHash); err != nil {
		s.log.Warn().Err(err).Str("tx", txHash).Msg("persist seen tx")
	}
}

// AnalyzeToken returns a fresh cached analysis or runs one now. Sub-analyzer
// failures degrade to zero values; only an invalid address or a cancelled
// context fail.
func (s *Service) AnalyzeToken(ctx context.Context, address string) (*domain.Analysis, error) {
	addr, err := s.canonical(address)
	if err != nil {
		return nil, err
	}

	cache := s.queue.Cache()
	if a, ok := cache.Fresh(addr, s.now()); ok {
		return a, nil
	}

	a, err := s.analyzer.Analyze(ctx, addr)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Address: addr, Err: err}
	}
	cache.Put(ctx, addr, a, s.now())
	return a.Clone(), nil
}

// CalculateScore scores an analysis. It is pure.
func (s *Service) CalculateScore(a *domain.Analysis) domain.Score {
	return scoring.Score(a)
}

// QueueTokenAnalysis schedules a background analysis. It reports false when
// the address is already queued, in progress or freshly cached.
func (s *Service) QueueTokenAnalysis(address string) (bool, error) {
	addr, err := s.canonical(address)
	if err != nil {
		return false, err
	}
	return s.queue.Enqueue(addr), nil
}

// GetSavedTokens returns every stored token, most recent first.
func (s *Service) GetSavedTokens(ctx context.Context) ([]*domain.Token, error) {
	tokens, err := s.tokens.LoadAll(ctx)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Err: err}
	}
	return tokens, nil
}

// GetToken returns one stored token.
func (s *Service) GetToken(ctx context.Context, address string) (*domain.Token, error) {
	addr, err := s.canonical(address)
	if err != nil {
		return nil, err
	}
	t, err := s.tokens.GetByAddress(ctx, s.chain, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &Error{Kind: KindNotFound, Address: addr}
	}
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Address: addr, Err: err}
	}
	return t, nil
}

// ScoreHistory returns a token's score snapshots, oldest first.
func (s *Service) ScoreHistory(ctx context.Context, address string) ([]domain.ScoreSnapshot, error) {
	addr, err := s.canonical(address)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.ScoreSnapshot{}, nil
	}
	snaps, err := s.history.GetByAddress(ctx, s.chain, addr)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Address: addr, Err: err}
	}
	return snaps, nil
}

// Status reports feed, queue and store state.
func (s *Service) Status(ctx context.Context) (Status, error) {
	st := Status{
		FeedMode:       s.feedMode,
		QueueDepth:     s.queue.Len(),
		InProgress:     s.queue.InProgress(),
		CachedAnalyses: s.queue.Cache().Len(),
	}
	if s.connection != nil {
		st.Connection = s.connection.State()
		st.Reconnects = s.connection.Attempts()
		st.MaxReconnects = s.connection.MaxAttempts()
	}
	if s.resolver != nil {
		st.Dedup = s.resolver.DedupStats()
	}
	if s.feed != nil {
		st.Feed = s.feed.Stats()
	}
	if s.bus != nil {
		st.Subscribers = s.bus.TokenUpdated.Subscribers()
	}
	n, err := s.tokens.Count(ctx)
	if err != nil {
		return st, &Error{Kind: KindUnavailable, Err: err}
	}
	st.Tokens = n
	return st, nil
}

// ReconnectFeed forces the push feed to dial again, resetting its attempt
// counter. It is the way back after reconnect attempts are exhausted.
func (s *Service) ReconnectFeed() error {
	if s.connection == nil {
		return &Error{Kind: KindUnavailable, Err: ErrNoPushFeed}
	}
	s.log.Info().
		Str("state", string(s.connection.State())).
		Int("attempts", s.connection.Attempts()).
		Msg("manual feed reconnect")
	s.connection.Reconnect()
	return nil
}

func (s *Service) canonical(address string) (string, error) {
	addr := domain.CanonicalAddress(address)
	if !domain.IsValidAddress(addr) {
		return "", &Error{Kind: KindInvalidAddress, Address: address}
	}
	return addr, nil
}
