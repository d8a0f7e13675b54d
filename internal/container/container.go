// Package container provides dependency injection for the ebics-mt940 application.
// It centralizes the creation and wiring of all application dependencies,
// making them explicit and testable.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fjacquet/ebics-mt940/internal/bpd"
	"fjacquet/ebics-mt940/internal/config"
	"fjacquet/ebics-mt940/internal/ebics"
	"fjacquet/ebics-mt940/internal/factory"
	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/parser"
	"fjacquet/ebics-mt940/internal/publisher"
	"fjacquet/ebics-mt940/internal/secrets"
	"fjacquet/ebics-mt940/internal/store"
)

// Container holds all application dependencies and provides methods to access them.
//
// Container is immutable after creation, except for the EBICS client which is
// built on first use: user keys may not exist yet when the container is made
// (keygen runs through it too).
type Container struct {
	logger    logging.Logger
	config    *config.Config
	parsers   map[factory.ParserType]parser.FullParser
	bpd       bpd.Store
	publisher publisher.Publisher
	bankKeys  store.KeyStore
	keySource secrets.Source

	mu        sync.Mutex
	client    *ebics.Client
	transport ebics.Transport
}

// Option customizes a Container.
type Option func(*Container)

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger logging.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// WithTransport makes the EBICS client use transport instead of HTTP.
func WithTransport(t ebics.Transport) Option {
	return func(c *Container) { c.transport = t }
}

// WithKeySource replaces the configured private key source.
func WithKeySource(src secrets.Source) Option {
	return func(c *Container) { c.keySource = src }
}

// WithPublisher replaces the configured statement publisher.
func WithPublisher(p publisher.Publisher) Option {
	return func(c *Container) { c.publisher = p }
}

// NewContainer creates and wires all application dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	c := &Container{config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = config.ConfigureLoggingFromConfig(cfg)
	}

	c.parsers = make(map[factory.ParserType]parser.FullParser)
	for _, pt := range []factory.ParserType{factory.MT940, factory.MT942} {
		p, err := factory.GetParserWithLogger(pt, c.logger)
		if err != nil {
			return nil, err
		}
		c.parsers[pt] = p
	}

	bpdStore, err := bpd.NewStore(ctx, bpd.Options{
		Backend:   cfg.BPD.Backend,
		Directory: cfg.BPD.Directory,
		DSN:       cfg.BPD.DSN,
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create BPD store: %w", err)
	}
	c.bpd = bpdStore

	c.bankKeys = store.NewBankKeyStore(cfg.EBICS.BankKeysFile, c.logger)

	if c.keySource == nil {
		if c.keySource, err = newKeySource(ctx, cfg, c.logger); err != nil {
			c.closeBPD()
			return nil, err
		}
	}

	if c.publisher == nil {
		if c.publisher, err = newPublisher(cfg, c.logger); err != nil {
			c.closeBPD()
			return nil, err
		}
	}

	c.logger.Info("Container initialized successfully",
		logging.Field{Key: "parsers_count", Value: len(c.parsers)},
		logging.Field{Key: logging.FieldBackend, Value: cfg.BPD.Backend},
		logging.Field{Key: "publisher_enabled", Value: cfg.Publisher.Enabled})

	return c, nil
}

func newKeySource(ctx context.Context, cfg *config.Config, logger logging.Logger) (secrets.Source, error) {
	if cfg.EBICS.KeySource == "gcp" {
		src, err := secrets.NewGCPSource(ctx, cfg.EBICS.GCPProject, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create key source: %w", err)
		}
		return src, nil
	}
	return secrets.NewFileSource(cfg.EBICS.KeysDir), nil
}

func newPublisher(cfg *config.Config, logger logging.Logger) (publisher.Publisher, error) {
	if !cfg.Publisher.Enabled {
		return publisher.NopPublisher{}, nil
	}
	p, err := publisher.NewAMQPPublisher(publisher.Config{
		URL:        cfg.Publisher.URL,
		Exchange:   cfg.Publisher.Exchange,
		RoutingKey: cfg.Publisher.RoutingKeyPrefix,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}
	return p, nil
}

// GetParser returns a parser for the given type.
func (c *Container) GetParser(pt factory.ParserType) (parser.FullParser, error) {
	p, ok := c.parsers[pt]
	if !ok {
		return nil, fmt.Errorf("unknown parser type: %s", pt)
	}
	return p, nil
}

// GetLogger returns the container's logger instance.
func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

// GetConfig returns the container's configuration instance.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetBPDStore returns the bank parameter data store.
func (c *Container) GetBPDStore() bpd.Store {
	return c.bpd
}

// GetPublisher returns the statement publisher. It is a no-op when
// publishing is disabled.
func (c *Container) GetPublisher() publisher.Publisher {
	return c.publisher
}

// GetBankKeyStore returns the store of bank public keys.
func (c *Container) GetBankKeyStore() store.KeyStore {
	return c.bankKeys
}

// GetKeySource returns the private key source.
func (c *Container) GetKeySource() secrets.Source {
	return c.keySource
}

// KeyPrefix is the name under which the subscriber's private keys are stored.
func (c *Container) KeyPrefix() string {
	return c.config.EBICS.PartnerID + "-" + c.config.EBICS.UserID
}

// EBICSConfig builds the protocol configuration from the application config,
// loading the user keys and any bank keys already received.
func (c *Container) EBICSConfig(ctx context.Context) (*ebics.Config, error) {
	e := c.config.EBICS
	userKeys, err := secrets.LoadUserKeys(ctx, c.keySource, c.KeyPrefix(), e.SignatureVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load user keys (run keygen first): %w", err)
	}

	bankKeys, err := c.bankKeys.LoadBankKeys(e.HostID)
	if errors.Is(err, store.ErrUnknownHost) {
		c.logger.Debug("No bank keys stored yet", logging.Field{Key: logging.FieldHostID, Value: e.HostID})
		bankKeys, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bank keys: %w", err)
	}

	return &ebics.Config{
		URL:            e.URL,
		HostID:         e.HostID,
		PartnerID:      e.PartnerID,
		UserID:         e.UserID,
		Product:        e.Product,
		Language:       e.Language,
		SecurityMedium: e.SecurityMedium,
		Timeout:        c.config.Timeout(),
		UserKeys:       userKeys,
		BankKeys:       bankKeys,
	}, nil
}

// GetEBICSClient returns the EBICS client, creating it on first use.
func (c *Container) GetEBICSClient(ctx context.Context) (*ebics.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	cfg, err := c.EBICSConfig(ctx)
	if err != nil {
		return nil, err
	}
	c.client = ebics.NewClient(cfg, c.transport, c.logger)
	return c.client, nil
}

func (c *Container) closeBPD() {
	if pg, ok := c.bpd.(*bpd.PostgresStore); ok {
		pg.Close()
	}
}

// Close releases the publisher, the BPD store and the key source.
func (c *Container) Close() error {
	var errs []error
	if c.publisher != nil {
		errs = append(errs, c.publisher.Close())
	}
	c.closeBPD()
	if closer, ok := c.keySource.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	c.logger.Info("Container closed")
	return errors.Join(errs...)
}
