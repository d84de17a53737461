package schema

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dyntab/dyntab/schema/cache"
)

// Config configures a Service.
type Config struct {
	// Dir is the root directory schema documents are resolved from.
	Dir string

	// SharedStore is the optional shared cache tier. Nil keeps
	// caching process-local.
	SharedStore cache.Store

	// SharedTTL governs shared-tier entries. Zero means no expiry.
	SharedTTL time.Duration

	// Singleflight serializes concurrent cache population per key.
	Singleflight bool

	// Translate resolves translation keys in schema strings. Nil
	// leaves keys unresolved.
	Translate TranslateFunc

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Service is the public entry point of the schema pipeline. It
// composes the loader, validator, normalizer, action manager, filter
// and translator, and owns the canonical cache of normalized
// definitions. Callers interact only with the Service.
type Service struct {
	loader     *Loader
	validator  *Validator
	normalizer *Normalizer
	actions    *ActionManager
	filter     *Filter
	translator *Translator
	cache      *cache.Tiered
	log        *slog.Logger
}

// New returns a Service configured by cfg.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	opts := []cache.Option{cache.WithLogger(log)}
	if cfg.SharedStore != nil {
		opts = append(opts, cache.WithShared(cfg.SharedStore, defCodec{}, cfg.SharedTTL))
	}
	if cfg.Singleflight {
		opts = append(opts, cache.WithSingleflight())
	}
	actions := NewActionManager()
	return &Service{
		loader:     NewLoader(cfg.Dir),
		validator:  NewValidator(),
		normalizer: NewNormalizer(),
		actions:    actions,
		filter:     NewFilter(actions),
		translator: NewTranslator(cfg.Translate),
		cache:      cache.NewTiered(opts...),
		log:        log,
	}
}

// Option scopes a single schema resolution.
type Option func(*options)

type options struct {
	connection string
}

// WithConnection resolves the schema under a named connection:
// connection-specific documents shadow the default ones.
func WithConnection(conn string) Option {
	return func(o *options) { o.connection = conn }
}

// GetSchema resolves the normalized definition for model. Cache hits
// skip the load→validate→normalize pipeline entirely; full misses run
// it and populate both cache tiers. Validation always precedes
// caching, so malformed documents are never cached.
func (s *Service) GetSchema(ctx context.Context, model string, opts ...Option) (*Definition, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	v, err := s.cache.GetOrCompute(ctx, cacheKey(model, o.connection), func() (any, error) {
		return s.resolve(model, o.connection)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Definition), nil
}

// resolve runs the uncached pipeline: load, validate, normalize,
// default actions.
func (s *Service) resolve(model, connection string) (*Definition, error) {
	def, err := s.loader.Load(model, connection)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(def, model); err != nil {
		return nil, err
	}
	s.normalizer.Normalize(def)
	s.actions.Defaults(def)
	s.log.Debug("schema resolved", "model", model, "connection", connection)
	return def, nil
}

// ClearCache invalidates the cache entry for model (and connection) in
// both tiers. Absent entries are not an error.
func (s *Service) ClearCache(ctx context.Context, model string, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	s.cache.Delete(ctx, cacheKey(model, o.connection))
}

// ClearAllCache invalidates every cache entry in both tiers.
func (s *Service) ClearAllCache(ctx context.Context) {
	s.cache.Clear(ctx)
}

// CacheStats returns the cache hit/miss counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// FilterForContext projects def into the named display context.
func (s *Service) FilterForContext(def *Definition, context string) (*View, error) {
	return s.filter.ForContext(def, context)
}

// FilterWithRelated projects def and resolves the filtered schemas of
// every model the context references (relationship targets and lookup
// sources), so one call serves everything a page load needs. Related
// schemas are projected into the list context.
func (s *Service) FilterWithRelated(ctx context.Context, def *Definition, fctx, connection string) (*View, map[string]*View, error) {
	view, err := s.filter.ForContext(def, fctx)
	if err != nil {
		return nil, nil, err
	}
	related := make(map[string]*View)
	for _, model := range s.filter.RelatedModels(def, fctx) {
		rdef, err := s.GetSchema(ctx, model, WithConnection(connection))
		if err != nil {
			return nil, nil, fmt.Errorf("schema: related %q: %w", model, err)
		}
		rview, err := s.filter.ForContext(rdef, ContextList)
		if err != nil {
			return nil, nil, err
		}
		related[model] = rview
	}
	return view, related, nil
}

// Translated returns a deep copy of def with every translation key
// resolved. The cached definition is never mutated.
func (s *Service) Translated(def *Definition) *Definition {
	c := def.Clone()
	s.translator.Apply(c)
	return c
}

// FieldRules is the per-field projection handed to an external request
// validation component.
type FieldRules struct {
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Rules    []string `json:"rules,omitempty"`
}

// ValidationRules projects the editable fields of def into the shape
// the external validator consumes.
func (s *Service) ValidationRules(def *Definition) map[string]FieldRules {
	out := make(map[string]FieldRules)
	for _, f := range def.Fields {
		if !f.IsEditable() {
			continue
		}
		out[f.Name] = FieldRules{
			Type:     f.Type,
			Required: f.Required,
			Rules:    append([]string(nil), f.Validation...),
		}
	}
	return out
}

// EndRequest drops the process-local cache layer. Deployments that
// scope local caching to one logical request call this from request
// teardown; the shared tier is unaffected.
func (s *Service) EndRequest() {
	s.cache.ResetLocal()
}

func cacheKey(model, connection string) string {
	if connection == "" {
		return model
	}
	return connection + "/" + model
}

// defCodec encodes definitions for the shared cache tier.
type defCodec struct{}

func (defCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v.(*Definition))
}

func (defCodec) Unmarshal(data []byte) (any, error) {
	def := &Definition{}
	if err := msgpack.Unmarshal(data, def); err != nil {
		return nil, err
	}
	return def, nil
}
