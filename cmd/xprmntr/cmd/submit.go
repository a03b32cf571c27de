package cmd

import (
	"context"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/CrumpLab/vertical/pkg/submit"
	"github.com/CrumpLab/vertical/pkg/submit/payload"
	"github.com/CrumpLab/vertical/pkg/trial"
)

var (
	baseURL        string
	submitFilename string
	submitPath     string
	maxAttempts    int
	wait           bool
	timeout        time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit <trials.json>",
	Short: "Submit a JSON data export as a flat CSV export",
	RunE:  submitRun,
	Args:  cobra.ExactArgs(1),
}

func init() {
	submitCmd.Flags().StringVar(&baseURL, "url", "http://localhost:8000/", "origin the experiment is served from")
	submitCmd.Flags().StringVar(&submitFilename, "filename", payload.DefaultFilename, "destination name of the export")
	submitCmd.Flags().StringVar(&submitPath, "path", payload.DefaultPath, "route to post the submission to, relative to --url")
	submitCmd.Flags().IntVar(&maxAttempts, "attempts", 1, "maximum delivery attempts")
	submitCmd.Flags().BoolVar(&wait, "wait", true, "report the delivery outcome and fail on error (delivery is always awaited)")
	submitCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "http timeout per attempt")

	rootCmd.AddCommand(submitCmd)
}

func submitRun(cmd *cobra.Command, args []string) error {
	logger := log.StandardLogger().WithField("type", "cmd/submit")

	b, err := ioutil.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}

	trials, err := trial.ParseJSON(b)
	if err != nil {
		return errors.Wrapf(err, "failed to parse %s", args[0])
	}
	collector := trial.NewCollector(trials...)

	opts := []submit.Option{
		submit.WithHTTPClient(&http.Client{Timeout: timeout}),
		submit.WithEnvConfig(),
	}
	// Explicit flags take precedence over the environment.
	if cmd.Flags().Changed("filename") {
		opts = append(opts, submit.WithFilename(submitFilename))
	}
	if cmd.Flags().Changed("path") {
		opts = append(opts, submit.WithPath(submitPath))
	}
	if cmd.Flags().Changed("attempts") {
		opts = append(opts, submit.WithMaxAttempts(maxAttempts))
	}

	s, err := submit.New(baseURL, opts...)
	if err != nil {
		return err
	}

	logger = logger.WithFields(log.Fields{
		"target": s.Target(),
		"trials": collector.Len(),
	})

	pending := s.SaveLocally(context.Background(), collector)
	if !wait {
		// Exiting would abort the request, so delivery is still awaited.
		<-pending.Done()
		logger.Info("submission finished")
		return nil
	}

	receipt, err := pending.Wait(context.Background())
	if err != nil {
		logger.WithError(err).Error("submission failed")
		return err
	}

	logger.WithFields(log.Fields{
		"id":       receipt.ID,
		"filename": receipt.Filename,
		"bytes":    receipt.Bytes,
	}).Info("submission delivered")

	return nil
}
