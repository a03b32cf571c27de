package submit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kinecosystem/agora-common/config/env"
	"github.com/kinecosystem/agora-common/config/wrapper"

	"github.com/CrumpLab/vertical/pkg/submit/payload"
)

const (
	configNamespace = "submit"

	pathConfigKey        = "path"
	filenameConfigKey    = "filename"
	maxAttemptsConfigKey = "max_attempts"

	defaultMaxAttempts = 1
	defaultMinDelay    = 100 * time.Millisecond
	defaultMaxDelay    = 2 * time.Second
)

type submitterOpts struct {
	httpClient *http.Client

	path     string
	filename string

	maxAttempts int64
	minDelay    time.Duration
	maxDelay    time.Duration
}

// Option configures a Submitter.
type Option func(*submitterOpts)

// WithHTTPClient specifies the http.Client used to send submissions.
//
// If none is provided, http.DefaultClient is used.
func WithHTTPClient(c *http.Client) Option {
	return func(o *submitterOpts) {
		o.httpClient = c
	}
}

// WithPath specifies the route submissions are posted to. Relative paths
// are resolved against the base URL, the same way a browser resolves them
// against the document.
func WithPath(path string) Option {
	return func(o *submitterOpts) {
		o.path = path
	}
}

// WithFilename specifies the destination name sent with every submission.
func WithFilename(filename string) Option {
	return func(o *submitterOpts) {
		o.filename = filename
	}
}

// WithMaxAttempts specifies how many times a submission is attempted.
//
// The default of 1 sends exactly one request per submission. Larger values
// retry transport failures and 5xx/429 responses with backoff.
func WithMaxAttempts(attempts int) Option {
	return func(o *submitterOpts) {
		o.maxAttempts = int64(attempts)
	}
}

// WithRetryDelay specifies the backoff bounds used between attempts.
func WithRetryDelay(minDelay, maxDelay time.Duration) Option {
	return func(o *submitterOpts) {
		o.minDelay = minDelay
		o.maxDelay = maxDelay
	}
}

// WithEnvConfig loads the path, filename and attempt limit from the
// SUBMIT_PATH, SUBMIT_FILENAME and SUBMIT_MAX_ATTEMPTS environment
// variables, falling back to the values configured so far.
func WithEnvConfig() Option {
	return func(o *submitterOpts) {
		ctx := context.Background()
		o.path = wrapper.NewStringConfig(env.NewConfig(envKey(pathConfigKey)), o.path).Get(ctx)
		o.filename = wrapper.NewStringConfig(env.NewConfig(envKey(filenameConfigKey)), o.filename).Get(ctx)
		o.maxAttempts = wrapper.NewInt64Config(env.NewConfig(envKey(maxAttemptsConfigKey)), o.maxAttempts).Get(ctx)
	}
}

func envKey(key string) string {
	return fmt.Sprintf("%s_%s", configNamespace, key)
}

func defaultOpts() submitterOpts {
	return submitterOpts{
		httpClient:  http.DefaultClient,
		path:        payload.DefaultPath,
		filename:    payload.DefaultFilename,
		maxAttempts: defaultMaxAttempts,
		minDelay:    defaultMinDelay,
		maxDelay:    defaultMaxDelay,
	}
}
