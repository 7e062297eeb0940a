/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jjudge-oj/judgeserver/internal/events"
	"github.com/jjudge-oj/judgeserver/internal/mq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var eventsChannel string

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect judging events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log events published on the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}

		queue, err := mq.Open(cmd.Context(), cfg.MQ)
		if errors.Is(err, mq.ErrDisabled) {
			return errors.New("no broker configured; set MQ_BACKEND")
		}
		if err != nil {
			return err
		}
		defer queue.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.WithFields(logrus.Fields{"backend": queue.Name(), "channel": eventsChannel}).Info("tailing events")
		err = queue.Subscribe(ctx, eventsChannel, func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg.Data)
			if err != nil {
				log.WithError(err).WithField("message_id", msg.ID).Warn("skipping undecodable message")
				return nil
			}
			entry := log.WithFields(logrus.Fields{
				"event_id":   event.ID,
				"event_type": string(event.Type),
			})
			switch {
			case event.Submission != nil:
				entry = entry.WithFields(logrus.Fields{
					"submission_id": event.Submission.SubmissionID,
					"user_id":       event.Submission.UserID,
					"problem_id":    event.Submission.ProblemID,
					"contest_id":    event.Submission.ContestID,
					"verdict":       event.Submission.Verdict.String(),
				})
			case event.Board != nil:
				entry = entry.WithField("contest_id", event.Board.ContestID)
			}
			entry.Info("event")
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringVar(&eventsChannel, "channel", events.DefaultChannel, "broker channel to subscribe to")
}
