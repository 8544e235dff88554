// Package secrets resolves secret:// references against Google Secret
// Manager. Resolved values are cached for the process lifetime, and outside
// production a dotenv-style fallback file covers local development without
// cloud credentials.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	metricNamespace     = "github.com/Adrien490/synclune-sub011/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references. Stripe API keys and webhook secrets
// are the primary consumers, via the config loader's secret resolver hook.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool

	logger  *zap.Logger
	env     string
	project string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string

	duration        metric.Float64Histogram
	durationEnabled bool
}

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	project      string
	fallbackPath string
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithEnvironment labels the deployment environment. Production environments
// never serve secrets from the fallback file.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) {
		cfg.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject sets the Secret Manager project used when a reference
// carries no project override.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.project = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithSecretManagerClient injects a preconfigured Secret Manager client
// (primarily for tests).
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the
// Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not fatal:
// the fetcher then operates on the fallback file alone, which keeps the API
// bootable against the Firestore emulator without cloud credentials.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		fallbackPath: defaultFallbackPath,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.env == "" {
		cfg.env = defaultEnvironment
	}

	meter := otel.GetMeterProvider().Meter(metricNamespace)
	duration, metricErr := meter.Float64Histogram(
		"secrets.resolve.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of secret resolution attempts"),
	)
	if metricErr != nil {
		cfg.logger.Warn("secrets: unable to register duration metric", zap.Error(metricErr))
	}

	f := &Fetcher{
		logger:          cfg.logger,
		env:             cfg.env,
		project:         cfg.project,
		fallbackPath:    cfg.fallbackPath,
		cache:           make(map[string]string),
		duration:        duration,
		durationEnabled: metricErr == nil,
	}

	if cfg.client != nil {
		f.client = cfg.client
	} else {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager client unavailable, using fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}

	return f, nil
}

// Close releases the Secret Manager client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the secret value for a secret://<name>[?version=v&project=p]
// reference. Remote values are fetched once and cached; auth and availability
// failures fall through to the fallback file outside production.
func (f *Fetcher) Resolve(ctx context.Context, reference string) (string, error) {
	start := time.Now()
	ref, err := parseReference(reference)
	if err != nil {
		return "", err
	}

	if value, ok := f.cached(ref.cacheKey()); ok {
		f.recordDuration(ctx, time.Since(start), "cache")
		return value, nil
	}

	project := ref.Project
	if project == "" {
		project = f.project
	}

	if project != "" && f.client != nil {
		value, err := f.access(ctx, project, ref)
		if err == nil {
			f.store(ref.cacheKey(), value)
			f.recordDuration(ctx, time.Since(start), "remote")
			return value, nil
		}
		if !reachabilityError(err) {
			f.recordDuration(ctx, time.Since(start), "error")
			return "", fmt.Errorf("secrets: resolving %s: %w", ref.Name, err)
		}
		f.logger.Debug("secrets: secret manager unreachable, trying fallback file",
			zap.String("secret", ref.Name), zap.Error(err))
	}

	value, ok := f.fallback(ref.Name)
	if !ok {
		err := fmt.Errorf("secrets: no value for %s", ref.Name)
		f.recordDuration(ctx, time.Since(start), "error")
		return "", err
	}

	f.store(ref.cacheKey(), value)
	f.recordDuration(ctx, time.Since(start), "fallback")
	return value, nil
}

func (f *Fetcher) access(ctx context.Context, project string, ref secretRef) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.Name, ref.Version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.Payload.GetData()), nil
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.cache[key]
	return value, ok
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) fallback(name string) (string, bool) {
	if f.isProduction() {
		return "", false
	}

	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback file unusable", zap.Error(f.fallbackErr))
		return "", false
	}
	value, ok := f.fallbackVals[name]
	return value, ok
}

func (f *Fetcher) loadFallback() {
	f.fallbackVals = map[string]string{}

	path := strings.TrimSpace(f.fallbackPath)
	if path == "" {
		return
	}

	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.fallbackErr = fmt.Errorf("secrets: opening fallback file %s: %w", path, err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		name := fallbackKeyName(key)
		if name == "" {
			continue
		}
		f.fallbackVals[name] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		f.fallbackErr = fmt.Errorf("secrets: reading %s: %w", path, err)
	}
}

func (f *Fetcher) isProduction() bool {
	return f.env == "production" || f.env == "prod"
}

func (f *Fetcher) recordDuration(ctx context.Context, d time.Duration, source string) {
	if !f.durationEnabled {
		return
	}
	f.duration.Record(ctx, float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

type secretRef struct {
	Name    string
	Version string
	Project string
}

func (r secretRef) cacheKey() string {
	return r.Name + "#" + r.Version
}

func parseReference(reference string) (secretRef, error) {
	if strings.TrimSpace(reference) == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(reference)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", reference, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: missing secret name in %q", reference)
	}

	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}

	return secretRef{
		Name:    name,
		Version: version,
		Project: strings.TrimSpace(query.Get("project")),
	}, nil
}

// fallbackKeyName reduces a fallback file key to the bare secret name, so
// `stripe_api_key=...`, `secret://stripe_api_key=...` and the legacy
// `sm://stripe_api_key=...` form all address the same secret.
func fallbackKeyName(key string) string {
	trimmed := strings.TrimSpace(key)
	for _, scheme := range []string{"secret://", "sm://"} {
		if strings.HasPrefix(trimmed, scheme) {
			trimmed = strings.TrimPrefix(trimmed, scheme)
			break
		}
	}
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.Trim(trimmed, "/")
}

func reachabilityError(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
