package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/external"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-redis/redis/v7"
	"github.com/go-redis/redis_rate/v8"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	xrate "golang.org/x/time/rate"

	"github.com/CrumpLab/vertical/pkg/rate"
	"github.com/CrumpLab/vertical/pkg/receiver"
	"github.com/CrumpLab/vertical/pkg/submission"
	submissiondb "github.com/CrumpLab/vertical/pkg/submission/dynamodb"
	submissionfs "github.com/CrumpLab/vertical/pkg/submission/fs"
	submissionmemory "github.com/CrumpLab/vertical/pkg/submission/memory"
	submissionredis "github.com/CrumpLab/vertical/pkg/submission/redis"
	"github.com/CrumpLab/vertical/pkg/submit/payload"
)

const shutdownTimeout = 10 * time.Second

var (
	listenAddr        string
	metricsListenAddr string
	servePath         string
	storeType         string
	dataDir           string
	memorySize        int
	redisAddr         string
	rateLimit         float64
	maxBodyBytes      int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the submission receiver",
	RunE:  serveRun,
	Args:  cobra.NoArgs,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8000", "address to receive submissions on")
	serveCmd.Flags().StringVar(&metricsListenAddr, "metrics-listen", ":8085", "address to serve /metrics on (empty disables)")
	serveCmd.Flags().StringVar(&servePath, "path", payload.DefaultPath, "route submissions are posted to")
	serveCmd.Flags().StringVar(&storeType, "store", "fs", "submission store: memory, fs, redis or dynamodb")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory used by the fs store")
	serveCmd.Flags().IntVar(&memorySize, "memory-size", submissionmemory.DefaultSize, "records retained by the memory store")
	serveCmd.Flags().StringVar(&redisAddr, "redis-addr", "", "redis address used by the redis store and rate limiter")
	serveCmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "submissions per second allowed per remote host (0 disables)")
	serveCmd.Flags().Int64Var(&maxBodyBytes, "max-body-bytes", receiver.DefaultMaxBodyBytes, "largest accepted submission body")

	rootCmd.AddCommand(serveCmd)
}

func serveRun(_ *cobra.Command, _ []string) error {
	logger := log.StandardLogger().WithField("type", "cmd/serve")

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
	}

	store, err := createStore(rdb)
	if err != nil {
		return err
	}

	var limiter rate.Limiter = &rate.NoLimiter{}
	switch {
	case rateLimit <= 0:
	case rdb != nil:
		perSecond := int(rateLimit)
		if perSecond < 1 {
			perSecond = 1
		}
		limiter = rate.NewRedisRateLimiter(redis_rate.NewLimiter(rdb), redis_rate.PerSecond(perSecond))
	default:
		limiter = rate.NewLocalRateLimiter(xrate.Limit(rateLimit))
	}

	mux := http.NewServeMux()
	mux.Handle("/"+strings.TrimPrefix(servePath, "/"), receiver.New(
		store,
		receiver.WithLimiter(limiter),
		receiver.WithMaxBodyBytes(maxBodyBytes),
	))

	servers := []*http.Server{{Addr: listenAddr, Handler: mux}}
	if metricsListenAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: metricsListenAddr, Handler: metricsMux})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logger.WithField("addr", srv.Addr).Info("listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrapf(err, "failed to serve on %s", srv.Addr)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).WithField("addr", srv.Addr).Warn("failed to shut down cleanly")
			}
		}
		return nil
	})

	return g.Wait()
}

func createStore(rdb *redis.Client) (submission.Store, error) {
	switch storeType {
	case "memory":
		return submissionmemory.New(memorySize)
	case "fs":
		return submissionfs.New(dataDir)
	case "redis":
		if rdb == nil {
			return nil, errors.New("--redis-addr is required for the redis store")
		}
		return submissionredis.New(rdb), nil
	case "dynamodb":
		cfg, err := external.LoadDefaultAWSConfig()
		if err != nil {
			return nil, errors.Wrap(err, "failed to init v2 aws sdk")
		}
		return submissiondb.New(dynamodb.New(cfg)), nil
	default:
		return nil, errors.Errorf("unknown store type: %s", storeType)
	}
}
