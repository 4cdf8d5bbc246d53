package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/shopdesk/internal/client"
	"github.com/raphaelgruber/shopdesk/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the interactive operator console",
	Long: `Open the live operator console: the conversation list on the left, the
selected conversation on the right and the composer below.

Keys:
  up/down, ctrl+p/ctrl+n   select conversation
  enter                    send
  ctrl+c, esc              quit

Examples:
  shopdesk console
  shopdesk console --operator alice --name "Alice (Support)"`,
	RunE: runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("console needs an interactive terminal; use 'shopdesk conversations' or 'shopdesk reply' instead")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := apiClient.Health(ctx); err != nil {
		return fmt.Errorf("server not reachable at %s: %w", serverURL, err)
	}

	con, err := apiClient.Dial(ctx, operator())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer con.Close()

	return RunConsole(con)
}

// frameMsg carries one server frame into the UI.
type frameMsg server.OutboundFrame

// closedMsg reports that the connection ended.
type closedMsg struct {
	err error
}

// cmdErrMsg reports a failed command write.
type cmdErrMsg struct {
	err error
}

// consoleModel is the bubbletea model for the operator console.
type consoleModel struct {
	con   *client.Console
	theme Theme

	conversations []server.ConversationView
	selected      string
	messages      []server.MessageView

	input     textinput.Model
	sending   bool
	submitted string

	status    string
	statusErr bool

	width  int
	height int

	quitting bool
	err      error
}

func newConsoleModel(con *client.Console) consoleModel {
	input := textinput.New()
	input.Placeholder = "Type a reply…"
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	return consoleModel{
		con:    con,
		theme:  defaultTheme,
		input:  input,
		status: "connecting…",
		width:  100,
		height: 30,
	}
}

// Init starts listening for frames.
func (m consoleModel) Init() tea.Cmd {
	return m.waitForFrame()
}

// Update handles messages and returns the updated model.
func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up", "ctrl+p":
			return m, m.moveSelection(-1)
		case "down", "ctrl+n":
			return m, m.moveSelection(1)
		case "enter":
			return m.submit()
		}

	case frameMsg:
		m.applyFrame(server.OutboundFrame(msg))
		return m, m.waitForFrame()

	case closedMsg:
		m.err = msg.err
		if m.err == nil {
			m.err = fmt.Errorf("connection closed by server")
		}
		return m, tea.Quit

	case cmdErrMsg:
		m.setStatus(msg.err.Error(), true)
		m.sending = false
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) applyFrame(f server.OutboundFrame) {
	switch f.Type {
	case server.FrameHello:
		m.setStatus("connected, session "+f.SessionID, false)

	case server.FrameConversations:
		m.conversations = f.Conversations
		if f.Selected != m.selected {
			m.selected = f.Selected
			m.messages = nil
		}

	case server.FrameMessages:
		m.selected = f.ConversationID
		m.messages = f.Messages

	case server.FrameSendResult:
		m.sending = false
		if f.OK {
			m.clearSubmitted()
			m.setStatus("sent", false)
			return
		}
		m.setStatus(f.Error, true)
		// A stored message whose summary failed is already visible, so its
		// text leaves the input; otherwise the text stays for a retry.
		if f.Message != nil {
			m.clearSubmitted()
		} else if m.input.Value() == "" {
			m.input.SetValue(f.Draft)
		}

	case server.FrameDropped:
		if f.Reason == "in_flight" {
			m.setStatus("still sending the previous message", true)
			return
		}
		m.sending = false
		if f.Reason != "empty" {
			m.setStatus(f.Error, true)
		}

	case server.FrameSubscriptionError:
		m.setStatus(fmt.Sprintf("%s feed: %s", f.Source, f.Error), true)

	case server.FrameReconcileError:
		m.setStatus("could not mark read: "+f.Error, true)

	case server.FrameError:
		m.setStatus(f.Error, true)
	}
}

// clearSubmitted empties the input unless the operator has edited it since
// the submit.
func (m *consoleModel) clearSubmitted() {
	if m.input.Value() == m.submitted {
		m.input.Reset()
	}
	m.submitted = ""
}

func (m *consoleModel) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

// moveSelection asks the server to select the neighbouring conversation.
func (m consoleModel) moveSelection(delta int) tea.Cmd {
	if len(m.conversations) == 0 {
		return nil
	}
	idx := 0
	for i, c := range m.conversations {
		if c.ID == m.selected {
			idx = i + delta
			break
		}
	}
	idx = max(0, min(idx, len(m.conversations)-1))
	id := m.conversations[idx].ID
	if id == m.selected {
		return nil
	}

	con := m.con
	return func() tea.Msg {
		if err := con.Select(id); err != nil {
			return cmdErrMsg{err: err}
		}
		return nil
	}
}

func (m consoleModel) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	if m.sending {
		m.setStatus("still sending the previous message", true)
		return m, nil
	}
	// The input keeps the text until the server acknowledges the send.
	m.submitted = text
	m.sending = true
	m.setStatus("sending…", false)

	con := m.con
	return m, func() tea.Msg {
		if err := con.Send(text); err != nil {
			return cmdErrMsg{err: err}
		}
		return nil
	}
}

// waitForFrame blocks on the next server frame.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m consoleModel) waitForFrame() tea.Cmd {
	con := m.con
	return func() tea.Msg {
		f, ok := <-con.Frames()
		if !ok {
			return closedMsg{err: con.Err()}
		}
		return frameMsg(f)
	}
}

// View renders the console.
func (m consoleModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m consoleModel) renderContent() string {
	if m.quitting {
		return m.theme.hintStyle().Render("Bye.") + "\n"
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ %s", m.err)) + "\n"
	}

	listWidth := max(24, m.width/3)
	chatWidth := max(30, m.width-listWidth-4)
	paneHeight := max(5, m.height-6)

	list := m.theme.paneStyle(listWidth, paneHeight).Render(m.renderList(listWidth, paneHeight))
	chat := m.theme.paneStyle(chatWidth, paneHeight).Render(m.renderMessages(chatWidth, paneHeight))

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, list, chat))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	return b.String()
}

func (m consoleModel) renderList(width, height int) string {
	if len(m.conversations) == 0 {
		return m.theme.hintStyle().Render("No conversations yet")
	}

	var lines []string
	for _, c := range m.conversations {
		marker := "  "
		if c.UnreadByAdmin {
			marker = m.theme.unreadStyle().Render("● ")
		}
		line := marker + truncate(c.Customer, width-2)
		preview := "  " + truncate(c.LastMessage, width-2)
		if c.ID == m.selected {
			line = m.theme.selectedStyle().Render(line)
		}
		lines = append(lines, line, m.theme.hintStyle().Render(preview))
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m consoleModel) renderMessages(width, height int) string {
	if m.selected == "" {
		return m.theme.hintStyle().Render("Select a conversation")
	}
	if len(m.messages) == 0 {
		return m.theme.hintStyle().Render("No messages")
	}

	var lines []string
	for _, msg := range m.messages {
		name := msg.SenderName
		if name == "" {
			name = msg.Sender
		}
		header := fmt.Sprintf("%s %s",
			m.theme.hintStyle().Render(msg.Timestamp.Local().Format("15:04")),
			m.theme.senderStyle(msg.Sender).Render(name))
		lines = append(lines, header, truncate(msg.Text, width))
	}
	// Newest messages stay visible.
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return strings.Join(lines, "\n")
}

func (m consoleModel) renderStatus() string {
	hint := m.theme.hintStyle().Render("↑/↓ select • enter send • esc quit")
	switch {
	case m.statusErr:
		return m.theme.errorStyle().Render(m.status) + "  " + hint
	case m.status == "sent":
		return m.theme.successStyle().Render("✓ sent") + "  " + hint
	default:
		return m.theme.statusStyle().Render(m.status) + "  " + hint
	}
}

// RunConsole runs the interactive console until the operator quits or the
// connection ends.
func RunConsole(con *client.Console) error {
	p := tea.NewProgram(newConsoleModel(con))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("console UI error: %w", err)
	}

	if m, ok := finalModel.(consoleModel); ok && !m.quitting && m.err != nil {
		return m.err
	}
	return nil
}
