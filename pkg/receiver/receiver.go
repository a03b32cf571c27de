package receiver

import (
	"bytes"
	"encoding/json"
	"io"
	"io/ioutil"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kinecosystem/agora-common/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/CrumpLab/vertical/pkg/rate"
	"github.com/CrumpLab/vertical/pkg/submission"
	"github.com/CrumpLab/vertical/pkg/submit/payload"
)

// DefaultMaxBodyBytes bounds the size of an accepted submission body.
const DefaultMaxBodyBytes = 32 << 20

var (
	receivedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xprmntr",
		Name:      "received_submissions_total",
		Help:      "Number of submissions handled by the receiver, by response status",
	}, []string{"status"})
	receivedBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "xprmntr",
		Name:      "received_filedata_bytes",
		Help:      "Size of accepted submission exports",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
	})
)

func init() {
	receivedCounter = metrics.Register(receivedCounter).(*prometheus.CounterVec)
	receivedBytes = metrics.Register(receivedBytes).(prometheus.Histogram)
}

type serverOpts struct {
	limiter      rate.Limiter
	maxBodyBytes int64
}

// Option configures a Server.
type Option func(*serverOpts)

// WithLimiter specifies the limiter applied per remote host.
//
// If none is provided, submissions are not limited.
func WithLimiter(l rate.Limiter) Option {
	return func(o *serverOpts) {
		o.limiter = l
	}
}

// WithMaxBodyBytes specifies the largest accepted request body.
func WithMaxBodyBytes(n int64) Option {
	return func(o *serverOpts) {
		o.maxBodyBytes = n
	}
}

// Server is the http.Handler for the submit route. It validates incoming
// submissions and persists them to a submission.Store.
type Server struct {
	log   *logrus.Entry
	store submission.Store
	opts  serverOpts
}

// New returns a Server that persists submissions to store.
func New(store submission.Store, opts ...Option) *Server {
	s := &Server{
		log:   logrus.StandardLogger().WithField("type", "receiver/Server"),
		store: store,
		opts: serverOpts{
			limiter:      &rate.NoLimiter{},
			maxBodyBytes: DefaultMaxBodyBytes,
		},
	}
	for _, o := range opts {
		o(&s.opts)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithFields(logrus.Fields{
		"method": "ServeHTTP",
		"remote": r.RemoteAddr,
	})

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		s.writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}

	allowed, err := s.opts.limiter.Allow(remoteHost(r))
	if err != nil {
		log.WithError(err).Warn("failed to check rate limit, allowing")
	} else if !allowed {
		s.writeError(w, http.StatusTooManyRequests, "too many submissions")
		return
	}

	body, err := ioutil.ReadAll(io.LimitReader(r.Body, s.opts.maxBodyBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	defer r.Body.Close()

	if int64(len(body)) > s.opts.maxBodyBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "submission too large")
		return
	}

	req := &payload.Request{}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record := &submission.Record{
		ID:         uuid.New().String(),
		Filename:   req.Filename,
		Data:       req.Filedata,
		ReceivedAt: time.Now(),
	}
	if err := s.store.Put(r.Context(), record); err != nil {
		log.WithError(err).WithField("filename", req.Filename).Warn("failed to store submission")
		s.writeError(w, http.StatusInternalServerError, "failed to store submission")
		return
	}

	log.WithFields(logrus.Fields{
		"id":       record.ID,
		"filename": record.Filename,
		"bytes":    len(record.Data),
	}).Info("stored submission")
	receivedBytes.Observe(float64(len(record.Data)))

	s.writeJSON(w, http.StatusOK, &payload.Receipt{
		ID:       record.ID,
		Filename: record.Filename,
		Bytes:    len(record.Data),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, &payload.ErrorResponse{Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	receivedCounter.WithLabelValues(http.StatusText(status)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Debug("failed to write response")
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
