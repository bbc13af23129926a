// Package secrets resolves secret:// references in configuration values
// through Google Secret Manager, with an in-process cache and a local
// fallback file for development.
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
	defaultFallbackPath = ".secrets.local"
	meterNamespace      = "github.com/lojafacil/engine/internal/platform/secrets"
)

var clientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against one GCP project.
type Fetcher struct {
	client     accessClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string

	mu    sync.RWMutex
	cache map[string]string

	latency        metric.Float64Histogram
	latencyEnabled bool
}

// Option customises Fetcher construction.
type Option func(*Fetcher)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithProject selects the GCP project holding the secrets.
func WithProject(projectID string) Option {
	return func(f *Fetcher) {
		f.projectID = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile overrides the local fallback secrets file path.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) {
		f.fallbackPath = strings.TrimSpace(path)
	}
}

// WithClient injects a preconfigured Secret Manager client, used by tests.
func WithClient(client accessClient) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not
// fatal; resolution then relies on the fallback file alone.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}

	meter := otel.GetMeterProvider().Meter(meterNamespace)
	latency, err := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		f.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	}
	f.latency = latency
	f.latencyEnabled = err == nil

	if f.client == nil {
		client, err := clientFactory(ctx)
		if err != nil {
			f.logger.Warn("secrets: secret manager client unavailable; using fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}

	return f, nil
}

// Close releases the Secret Manager client when owned by the fetcher.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// IsReference reports whether the value is a secret:// reference.
func IsReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), "secret://")
}

// Resolve returns the secret value behind the reference. Plain values
// pass through untouched so configuration loading can call it blindly.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	if !IsReference(ref) {
		return ref, nil
	}

	start := time.Now()
	name, version, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	key := name + "#" + version
	f.mu.RLock()
	cached, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		f.record(ctx, time.Since(start), "cache")
		return cached, nil
	}

	if f.client != nil && f.projectID != "" {
		resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version)
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
		if err == nil && resp != nil && resp.Payload != nil {
			value := string(resp.Payload.GetData())
			f.store(key, value)
			f.record(ctx, time.Since(start), "remote")
			return value, nil
		}
		if err != nil && !fallbackEligible(err) {
			f.record(ctx, time.Since(start), "error")
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", name, err)
		}
		f.logger.Debug("secrets: falling back to local file", zap.String("secret", name), zap.Error(err))
	}

	value, ok := f.lookupFallback(name)
	if !ok {
		f.record(ctx, time.Since(start), "error")
		return "", fmt.Errorf("secrets: no value for %s", name)
	}
	f.store(key, value)
	f.record(ctx, time.Since(start), "fallback")
	return value, nil
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) record(ctx context.Context, d time.Duration, source string) {
	if !f.latencyEnabled {
		return
	}
	f.latency.Record(ctx, float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

func (f *Fetcher) lookupFallback(name string) (string, bool) {
	f.fallbackOnce.Do(func() {
		f.fallbackVals = map[string]string{}
		if f.fallbackPath == "" {
			return
		}
		file, err := os.Open(f.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.logger.Warn("secrets: unable to open fallback file", zap.Error(err))
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
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimPrefix(strings.TrimSpace(parts[0]), "secret://")
			if key != "" {
				f.fallbackVals[key] = strings.TrimSpace(parts[1])
			}
		}
		if err := scanner.Err(); err != nil {
			f.logger.Warn("secrets: failed reading fallback file", zap.Error(err))
		}
	})

	value, ok := f.fallbackVals[name]
	return value, ok
}

func parseReference(ref string) (name, version string, err error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", "", fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return "", "", fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name = strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return "", "", fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	version = strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return name, version, nil
}

func fallbackEligible(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded, codes.NotFound:
		return true
	default:
		return false
	}
}
