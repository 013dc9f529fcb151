package authcore

import (
	"errors"

	"github.com/go-logr/logr"

	"github.com/flowforward/authcore/events"
	internalaudit "github.com/flowforward/authcore/internal/audit"
	"github.com/flowforward/authcore/jwt"
	"github.com/flowforward/authcore/password"
	"github.com/flowforward/authcore/token"
)

// Builder assembles an [Engine]. A Builder is single-use: Build succeeds
// at most once.
type Builder struct {
	config Config

	tokenStore   token.Store
	userProvider UserProvider
	auditSink    AuditSink
	publisher    events.Publisher
	logger       logr.Logger
	loggerSet    bool

	built bool
}

// New starts a Builder with default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	if cfg.Clock == nil {
		cfg.Clock = defaultConfig().Clock
	}
	b.config = cloneConfig(cfg)
	return b
}

// WithTokenStore sets the refresh token persistence backend. Required.
func (b *Builder) WithTokenStore(store token.Store) *Builder {
	b.tokenStore = store
	return b
}

// WithUserProvider sets the credential source. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the destination for audit events. Events are
// delivered asynchronously; see [AuditConfig].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithEventPublisher sets the domain event transport. Defaults to a
// no-op publisher.
func (b *Builder) WithEventPublisher(pub events.Publisher) *Builder {
	b.publisher = pub
	return b
}

// WithLogger sets the structured logger. Defaults to logr.Discard.
func (b *Builder) WithLogger(logger logr.Logger) *Builder {
	b.logger = logger
	b.loggerSet = true
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.tokenStore == nil {
		return nil, errors.New("token store required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	hasher, err := password.NewHasher(password.Params{
		MemoryKB:    cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}

	publisher := b.publisher
	if publisher == nil {
		publisher = events.NoOpPublisher{}
	}

	logger := b.logger
	if !b.loggerSet {
		logger = logr.Discard()
	}

	engine := &Engine{
		config:       cfg,
		tokenStore:   b.tokenStore,
		userProvider: b.userProvider,
		passwordHash: hasher,
		jwtManager:   jm,
		publisher:    publisher,
		logger:       logger,
		metrics:      NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}

	// Unknown identifiers verify against this hash so the failure path
	// costs the same as a real mismatch.
	engine.dummyHash, err = hasher.Hash("authcore-timing-equalizer")
	if err != nil {
		return nil, err
	}

	b.built = true

	return engine, nil
}
