package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/kinecosystem/agora-common/metrics"
	"github.com/kinecosystem/agora-common/retry"
	"github.com/kinecosystem/agora-common/retry/backoff"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/CrumpLab/vertical/pkg/submit/payload"
	"github.com/CrumpLab/vertical/pkg/trial"
)

const maxResponseBytes = 64 * 1024

var (
	submissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xprmntr",
		Name:      "submissions_total",
		Help:      "Number of submissions by outcome",
	}, []string{"result"})
	submitHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "xprmntr",
		Name:      "submit_duration_seconds",
		Help:      "Time taken to deliver a submission, including retries",
	})
)

func init() {
	submissionCounter = metrics.Register(submissionCounter).(*prometheus.CounterVec)
	submitHistogram = metrics.Register(submitHistogram).(prometheus.Histogram)
}

// Submitter posts experiment data exports to a receiving endpoint.
type Submitter struct {
	log    *logrus.Entry
	target *url.URL
	opts   submitterOpts
}

// New returns a Submitter that posts to the configured path, resolved
// against baseURL (typically the origin the experiment was served from).
func New(baseURL string, opts ...Option) (*Submitter, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base url")
	}
	if !base.IsAbs() {
		return nil, errors.Errorf("base url must be absolute: %s", baseURL)
	}

	s := &Submitter{
		log:  logrus.StandardLogger().WithField("type", "submit/Submitter"),
		opts: defaultOpts(),
	}
	for _, o := range opts {
		o(&s.opts)
	}

	if s.opts.httpClient == nil {
		s.opts.httpClient = http.DefaultClient
	}
	if s.opts.maxAttempts < 1 {
		return nil, errors.Errorf("max attempts must be at least 1, got %d", s.opts.maxAttempts)
	}

	ref, err := url.Parse(s.opts.path)
	if err != nil {
		return nil, errors.Wrap(err, "invalid submit path")
	}
	s.target = base.ResolveReference(ref)

	return s, nil
}

// Target returns the URL submissions are posted to.
func (s *Submitter) Target() string {
	return s.target.String()
}

// SaveLocally exports the current data of src and posts it to the
// receiving endpoint without waiting for delivery.
//
// The export is taken before SaveLocally returns, so the submitted data is
// the data present at the time of the call. Delivery happens in the
// background; its outcome is available from the returned Pending, which
// callers are free to ignore. An export failure completes the Pending
// immediately with an *ExportError and nothing is sent.
func (s *Submitter) SaveLocally(ctx context.Context, src trial.Exporter) *Pending {
	p := newPending()

	req, err := s.export(src)
	if err != nil {
		submissionCounter.WithLabelValues("export_error").Inc()
		p.complete(nil, err)
		return p
	}

	go func() {
		receipt, err := s.send(ctx, req)
		if err != nil {
			s.log.WithError(err).WithField("filename", req.Filename).Warn("failed to deliver submission")
		}
		p.complete(receipt, err)
	}()

	return p
}

// Submit exports the current data of src and posts it to the receiving
// endpoint, blocking until delivery completes.
func (s *Submitter) Submit(ctx context.Context, src trial.Exporter) (*payload.Receipt, error) {
	req, err := s.export(src)
	if err != nil {
		submissionCounter.WithLabelValues("export_error").Inc()
		return nil, err
	}

	return s.send(ctx, req)
}

func (s *Submitter) export(src trial.Exporter) (*payload.Request, error) {
	if src == nil {
		return nil, &ExportError{Err: ErrNilSource}
	}

	req, err := payload.NewRequest(s.opts.filename, src)
	if err != nil {
		return nil, &ExportError{Err: err}
	}

	return req, nil
}

func (s *Submitter) send(ctx context.Context, req *payload.Request) (receipt *payload.Receipt, err error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal submission body")
	}

	log := s.log.WithFields(logrus.Fields{
		"method":   "send",
		"target":   s.target.String(),
		"filename": req.Filename,
	})

	start := time.Now()
	defer func() {
		submitHistogram.Observe(time.Since(start).Seconds())
		if err != nil {
			submissionCounter.WithLabelValues("transmit_error").Inc()
		} else {
			submissionCounter.WithLabelValues("ok").Inc()
		}
	}()

	if s.opts.maxAttempts == 1 {
		return s.attempt(ctx, body, req)
	}

	var lastErr error
	attempts, _ := retry.Retry(
		func() error {
			receipt, lastErr = s.attempt(ctx, body, req)
			if lastErr == nil {
				return nil
			}

			if ctx.Err() != nil {
				return errPermanent
			}
			if te, ok := lastErr.(*TransmitError); ok && te.Temporary() {
				log.WithError(lastErr).Debug("retrying submission")
				return lastErr
			}
			return errPermanent
		},
		retry.Limit(uint(s.opts.maxAttempts)),
		retry.BackoffWithJitter(backoff.BinaryExponential(s.opts.minDelay), s.opts.maxDelay, 0.1),
		retry.NonRetriableErrors(errPermanent),
	)
	if lastErr != nil {
		log.WithField("attempts", attempts).Debug("submission failed")
		return nil, lastErr
	}

	return receipt, nil
}

func (s *Submitter) attempt(ctx context.Context, body []byte, req *payload.Request) (*payload.Receipt, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create submission http request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.opts.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransmitError{Message: "failed to send submission", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransmitError{Message: "failed to read submission response", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := "submission rejected"
		decoded := &payload.ErrorResponse{}
		if err := json.Unmarshal(respBody, decoded); err == nil && decoded.Message != "" {
			msg = decoded.Message
		}
		return nil, &TransmitError{Message: msg, StatusCode: resp.StatusCode}
	}

	// Endpoints are not required to answer with a receipt; anything
	// undecodable is treated as a bare acknowledgement.
	receipt := &payload.Receipt{}
	if err := json.Unmarshal(respBody, receipt); err != nil || receipt.Filename == "" {
		receipt = &payload.Receipt{
			Filename: req.Filename,
			Bytes:    len(req.Filedata),
		}
	}

	return receipt, nil
}
