package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/server"
	"github.com/spf13/cobra"
)

var replyTimeout time.Duration

var replyCmd = &cobra.Command{
	Use:   "reply <conversation-id> <text>",
	Short: "Send a reply to a conversation",
	Long: `Send one operator message to a conversation and wait until it is stored.
Selecting the conversation also marks it read.

Examples:
  shopdesk reply order-1001 "Your parcel left the warehouse this morning."
  shopdesk reply order-1001 Thanks for waiting`,
	Args: cobra.MinimumNArgs(2),
	RunE: runReply,
}

func init() {
	replyCmd.Flags().DurationVar(&replyTimeout, "timeout", 15*time.Second, "how long to wait for the write")
}

func runReply(cmd *cobra.Command, args []string) error {
	conversationID := args[0]
	text := strings.Join(args[1:], " ")

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	con, first, err := openConsole(ctx)
	if err != nil {
		return err
	}
	defer con.Close()

	// The session auto-selects the newest conversation; the send must not
	// go out until our selection has taken effect.
	if first.Selected != conversationID {
		if err := con.Select(conversationID); err != nil {
			return err
		}
		if err := awaitSelected(ctx, con.Frames(), conversationID); err != nil {
			return err
		}
	}
	if err := con.Send(text); err != nil {
		return err
	}

	result, err := awaitSendResult(ctx, con.Frames())
	if err != nil {
		return err
	}

	if verbose && result.Message != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s at %s\n",
			result.Message.ID, conversationID, result.Message.Timestamp.Local().Format(time.RFC3339))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s\n", conversationID)
	}
	return nil
}

// awaitSelected waits until the session has switched to conversationID.
func awaitSelected(ctx context.Context, frames <-chan server.OutboundFrame, conversationID string) error {
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return fmt.Errorf("connection closed before the selection completed")
			}
			switch {
			case f.Type == server.FrameMessages && f.ConversationID == conversationID:
				return nil
			case f.Type == server.FrameError && f.Source == "select":
				return fmt.Errorf("select %s: %s", conversationID, f.Error)
			}
		case <-ctx.Done():
			return fmt.Errorf("wait for selection: %w", ctx.Err())
		}
	}
}

// errSummaryFailed marks a send whose message was stored but whose
// conversation summary was not updated.
var errSummaryFailed = errors.New("message stored but conversation summary not updated")

// awaitSendResult waits for the outcome of a send.
func awaitSendResult(ctx context.Context, frames <-chan server.OutboundFrame) (server.OutboundFrame, error) {
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return server.OutboundFrame{}, fmt.Errorf("connection closed before the send completed")
			}
			switch f.Type {
			case server.FrameSendResult:
				if f.OK {
					return f, nil
				}
				if f.Step == "summary" {
					return f, fmt.Errorf("%w: %s", errSummaryFailed, f.Error)
				}
				return f, fmt.Errorf("send failed: %s", f.Error)
			case server.FrameDropped:
				return f, fmt.Errorf("send rejected: %s", f.Reason)
			case server.FrameError:
				return f, fmt.Errorf("server error: %s", f.Error)
			}
		case <-ctx.Done():
			return server.OutboundFrame{}, fmt.Errorf("wait for send: %w", ctx.Err())
		}
	}
}
