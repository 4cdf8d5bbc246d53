package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/client"
	"github.com/raphaelgruber/shopdesk/internal/server"
	"github.com/spf13/cobra"
)

var conversationsTimeout time.Duration

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations",
	Long: `Print the current conversation list, most recently updated first.
Conversations with unread customer messages are marked with *.

Examples:
  shopdesk conversations
  shopdesk ls --timeout 5s`,
	RunE: runConversations,
}

func init() {
	conversationsCmd.Flags().DurationVar(&conversationsTimeout, "timeout", 10*time.Second, "how long to wait for the list")
}

func runConversations(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), conversationsTimeout)
	defer cancel()

	con, first, err := openConsole(ctx)
	if err != nil {
		return err
	}
	defer con.Close()

	printConversations(cmd.OutOrStdout(), first.Conversations)
	return nil
}

// openConsole dials the server and waits for the first conversation list.
func openConsole(ctx context.Context) (*client.Console, server.OutboundFrame, error) {
	con, err := apiClient.Dial(ctx, operator())
	if err != nil {
		return nil, server.OutboundFrame{}, fmt.Errorf("connect: %w", err)
	}

	first, err := firstList(ctx, con.Frames())
	if err != nil {
		con.Close()
		return nil, server.OutboundFrame{}, err
	}
	return con, first, nil
}

// firstList returns the first conversations frame. A conversation
// subscription error before it arrives is returned as an error.
func firstList(ctx context.Context, frames <-chan server.OutboundFrame) (server.OutboundFrame, error) {
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return server.OutboundFrame{}, fmt.Errorf("connection closed before conversation list arrived")
			}
			switch f.Type {
			case server.FrameConversations:
				return f, nil
			case server.FrameSubscriptionError:
				if f.Source == "conversations" {
					return server.OutboundFrame{}, fmt.Errorf("conversation list: %s", f.Error)
				}
			}
		case <-ctx.Done():
			return server.OutboundFrame{}, fmt.Errorf("wait for conversation list: %w", ctx.Err())
		}
	}
}

func printConversations(w io.Writer, convs []server.ConversationView) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations.")
		return
	}

	fmt.Fprintf(w, "Conversations (%d):\n\n", len(convs))
	for _, c := range convs {
		marker := " "
		if c.UnreadByAdmin {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-24s %-20s %s  %s\n",
			marker, c.ID, truncate(c.Customer, 20), c.UpdatedAt.Local().Format("2006-01-02 15:04"),
			truncate(c.LastMessage, 50))
	}
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
