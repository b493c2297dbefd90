package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kbukum/eventstream/bootstrap"
	"github.com/kbukum/eventstream/codec"
	"github.com/kbukum/eventstream/consumer"
	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/logger"
)

type tailOptions struct {
	lastEventID string
	limit       int
	maxFailures int
}

func newTailCmd(root *rootOptions) *cobra.Command {
	opts := tailOptions{}

	cmd := &cobra.Command{
		Use:   "tail <url>",
		Short: "Follow an event stream and print its events",
		Long: `Connect to an event stream and print each event as a JSON line. Dropped
connections are resumed from the last event received.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			app, err := bootstrap.NewApp(cfg)
			if err != nil {
				return err
			}
			return app.RunTask(cmd.Context(), func(ctx context.Context) error {
				return tail(ctx, app.Logger, cfg.Consumer, args[0], opts, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVar(&opts.lastEventID, "last-event-id", "", "Resume after this event id")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Stop after this many events (0 = follow forever)")
	cmd.Flags().IntVar(&opts.maxFailures, "max-failures", 0, "Give up after this many consecutive failed connection attempts (0 = never)")
	return cmd
}

type tailLine struct {
	ID    string `json:"id,omitempty"`
	Event Event  `json:"event"`
}

// tail prints data items from url until ctx ends, the limit is reached or
// the connection keeps failing.
func tail(ctx context.Context, log *logger.Logger, cfg consumer.Config, url string, o tailOptions, out io.Writer) error {
	cfg.ApplyDefaults()
	log = log.WithComponent("tail")

	sub := consumer.Subscribe(ctx, consumer.StaticURL(url), consumer.NewHTTPConnector(cfg, nil), codec.JSON[Event](),
		consumer.WithLastEventID(o.lastEventID),
		consumer.WithLogger(log),
	)
	defer sub.Close()

	enc := json.NewEncoder(out)
	printed := 0
	for item, err := range sub.All(ctx) {
		if err != nil {
			return err
		}
		switch item.Kind {
		case consumer.ItemConnecting:
			ev := item.Connecting
			fields := logger.Fields(
				logger.FieldAttempt, ev.Attempt,
				logger.FieldLastEventID, ev.LastEventID,
				logger.FieldURL, ev.URL,
			)
			if ev.Cause == nil {
				log.Info("connecting", fields)
				continue
			}
			fields[logger.FieldError] = ev.Cause.Error()
			log.Warn("reconnecting", fields)
			if o.maxFailures > 0 && ev.Consecutive > o.maxFailures {
				return errors.ConnectionFailed(url).
					WithDetail("attempts", ev.Consecutive-1).
					WithCause(ev.Cause)
			}
		case consumer.ItemData:
			if err := enc.Encode(tailLine{ID: item.ID, Event: item.Data}); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
			printed++
			if o.limit > 0 && printed >= o.limit {
				return nil
			}
		case consumer.ItemSerializedError:
			log.Error("stream reported an error", logger.Fields(
				"code", string(item.Err.Code),
				logger.FieldError, item.Err.Message,
			))
		case consumer.ItemMalformed:
			log.Warn("skipping malformed event", logger.Fields(
				logger.FieldEventID, item.ID,
				logger.FieldError, item.Err.Error(),
			))
		}
	}
	return nil
}
