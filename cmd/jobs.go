package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-paygate/app/repository"
	"github.com/vibast-solutions/ms-go-paygate/app/service"
	"github.com/vibast-solutions/ms-go-paygate/config"
)

const dateLayout = "2006-01-02"

var (
	workerMode bool
	submitDate string
)

var paybatchCmd = &cobra.Command{
	Use:   "paybatch",
	Short: "Run PayBatch recurring charge commands",
}

var paybatchSubmitCmd = &cobra.Command{
	Use:   "submit [date=YYYY-MM-DD]",
	Short: "Upload recurring charges that are due to PayBatch",
	Args:  cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		override, err := parseDateOverride(submitDate, args)
		if err != nil {
			fmt.Println(err.Error())
			os.Exit(1)
		}

		runCommand(
			"paybatch_submit",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.SubmitInterval },
			func(ctx context.Context, s *services) (string, error) {
				today := time.Now().UTC()
				if override != nil {
					today = *override
				}
				result, err := s.batch.Submit(ctx, today)
				if err != nil {
					return "", err
				}
				return result.Summary(), nil
			},
		)
	},
}

var paybatchQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query stored PayBatch uploads and apply their results to orders",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"paybatch_query",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.QueryInterval },
			func(ctx context.Context, s *services) (string, error) {
				result, err := s.batch.Reconcile(ctx)
				if err != nil {
					return "", err
				}
				return result.Summary(), nil
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(paybatchCmd)
	paybatchCmd.AddCommand(paybatchSubmitCmd)
	paybatchCmd.AddCommand(paybatchQueryCmd)

	paybatchSubmitCmd.Flags().StringVar(&submitDate, "date", "", "Treat this day (YYYY-MM-DD) as today when selecting due charges")
	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

type jobFunc func(ctx context.Context, s *services) (string, error)

// runCommand prints exactly one line to stdout per one-shot run: the summary, or the failure
// message followed by exit status 1.
func runCommand(name string, intervalResolver func(cfg *config.Config) time.Duration, fn jobFunc) {
	svc, cleanup := mustCreateServices()

	if workerMode {
		defer cleanup()
		runWorker(name, intervalResolver(svc.cfg), svc, fn)
		return
	}

	var summary string
	err := runJob(name, func() error {
		var err error
		summary, err = runLocked(context.Background(), name, svc, fn)
		return err
	})
	cleanup()

	if err != nil {
		fmt.Println(failureMessage(err))
		os.Exit(1)
	}
	fmt.Println(summary)
}

func runWorker(name string, interval time.Duration, svc *services, fn jobFunc) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick := func() {
		_ = runJob(name, func() error {
			summary, err := runLocked(ctx, name, svc, fn)
			if err == nil {
				logrus.WithField("job", name).Info(summary)
			}
			return err
		})
	}

	tick()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			tick()
		}
	}
}

// runLocked holds a database lock named after the job so only one instance runs at a time.
func runLocked(ctx context.Context, name string, svc *services, fn jobFunc) (string, error) {
	release, err := svc.lock.Acquire(ctx, name)
	if err != nil {
		return "", err
	}
	defer release()

	return fn(ctx, svc)
}

func runJob(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return err
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
	return nil
}

// parseDateOverride accepts the --date flag or a single "date=YYYY-MM-DD" argument.
// The flag wins when both are given.
func parseDateOverride(flagValue string, args []string) (*time.Time, error) {
	raw := strings.TrimSpace(flagValue)
	if raw == "" && len(args) > 0 {
		arg := strings.TrimSpace(args[0])
		value, ok := strings.CutPrefix(arg, "date=")
		if !ok {
			return nil, fmt.Errorf("unexpected argument %q, want date=YYYY-MM-DD", arg)
		}
		raw = strings.TrimSpace(value)
	}
	if raw == "" {
		return nil, nil
	}

	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	return &day, nil
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrBatchDisabled):
		return "Recurring and / or vaulting not enabled for the Gateway"
	case errors.Is(err, repository.ErrLockNotAcquired):
		return "Another PayBatch job is already running"
	default:
		return err.Error()
	}
}
