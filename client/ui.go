package main

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/puyokura/foodfortalk/model"
)

type connectionMsg struct {
	host string
}

var (
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#505050"))
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Italic(true)
	privateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C678DD"))
	selfStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))
)

const helpText = `Commands:
/login <host> <email> <password>  sign in and connect
/connect <host> <token>           connect with an existing chat token
/msg <userId> <text>              private message
/who                              who is online
/disconnect                       leave the chat
/quit                             exit`

type modelState struct {
	network   *Network
	viewport  viewport.Model
	textInput textinput.Model
	messages  []string
	self      model.Session
	online    map[uint]string
	err       error
	ready     bool
}

func initialModel(net *Network) modelState {
	ti := textinput.New()
	ti.Placeholder = "Type a message or /help..."
	ti.Focus()
	ti.CharLimit = 5000
	ti.Width = 20

	return modelState{
		network:   net,
		textInput: ti,
		messages:  []string{helpText},
		online:    make(map[uint]string),
	}
}

func (m modelState) Init() tea.Cmd {
	return textinput.Blink
}

func (m *modelState) println(line string) {
	m.messages = append(m.messages, line)
	m.viewport.SetContent(strings.Join(m.messages, "\n"))
	m.viewport.GotoBottom()
}

func (m modelState) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in Update: %v", r)
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			log.Printf("Stack trace:\n%s", buf[:n])
		}
	}()

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.network.Disconnect()
			return m, tea.Quit
		case tea.KeyEnter:
			content := strings.TrimSpace(m.textInput.Value())
			if content == "" {
				break
			}
			m.textInput.SetValue("")
			return m.handleInput(content)
		}

	case connectionMsg:
		m.println(systemStyle.Render("Connected to " + msg.host))
		return m, m.network.WaitForMessage

	case frameMsg:
		m.handleFrame(msg.frame)
		return m, m.network.WaitForMessage

	case disconnectedMsg:
		m.online = make(map[uint]string)
		m.println(systemStyle.Render("Disconnected."))
		return m, nil

	case tea.WindowSizeMsg:
		headerHeight := 0
		footerHeight := 3
		verticalMarginHeight := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMarginHeight)
			m.viewport.YPosition = headerHeight
			m.viewport.SetContent(strings.Join(m.messages, "\n"))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMarginHeight
		}
		m.textInput.Width = msg.Width

	case errMsg:
		m.err = msg
		m.println(errorStyle.Render("Error: " + msg.Error()))
		return m, nil
	}

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m modelState) handleInput(content string) (tea.Model, tea.Cmd) {
	if !strings.HasPrefix(content, "/") {
		return m, m.network.Send(model.PublicRequest{Content: content})
	}

	parts := strings.Fields(content)
	switch parts[0] {
	case "/help":
		m.println(helpText)
	case "/quit":
		m.network.Disconnect()
		return m, tea.Quit
	case "/disconnect":
		m.network.Disconnect()
	case "/who":
		m.println(m.whoLine())
	case "/connect":
		if len(parts) != 3 {
			m.println("Usage: /connect <host> <token>")
			return m, nil
		}
		host, token := parts[1], parts[2]
		return m, func() tea.Msg {
			if err := m.network.Connect(host, token); err != nil {
				return errMsg(err)
			}
			return connectionMsg{host: host}
		}
	case "/login":
		if len(parts) != 4 {
			m.println("Usage: /login <host> <email> <password>")
			return m, nil
		}
		host, email, password := parts[1], parts[2], parts[3]
		return m, func() tea.Msg {
			token, err := m.network.Login(host, email, password)
			if err != nil {
				return errMsg(err)
			}
			if err := m.network.Connect(host, token); err != nil {
				return errMsg(err)
			}
			return connectionMsg{host: host}
		}
	case "/msg":
		if len(parts) < 3 {
			m.println("Usage: /msg <userId> <text>")
			return m, nil
		}
		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			m.println("Invalid user id: " + parts[1])
			return m, nil
		}
		text := strings.Join(parts[2:], " ")
		return m, m.network.Send(model.PrivateRequest{RecipientID: uint(id), Content: text})
	default:
		m.println("Unknown command: " + parts[0])
	}
	return m, nil
}

func (m *modelState) handleFrame(frame model.Outbound) {
	switch f := frame.(type) {
	case model.Welcome:
		m.println(systemStyle.Render(f.Message))
	case model.Session:
		m.self = f
		m.println(systemStyle.Render(fmt.Sprintf("Signed in as %s (#%d)", f.DisplayName, f.UserID)))
	case model.PresenceList:
		m.online = make(map[uint]string, len(f.Users))
		for _, u := range f.Users {
			m.online[u.UserID] = u.DisplayName
		}
		m.println(systemStyle.Render(m.whoLine()))
	case model.PresenceJoined:
		m.online[f.UserID] = f.DisplayName
		m.println(systemStyle.Render(fmt.Sprintf("→ %s joined", f.DisplayName)))
	case model.PresenceLeft:
		name, ok := m.online[f.UserID]
		if !ok {
			name = "#" + strconv.FormatUint(uint64(f.UserID), 10)
		}
		delete(m.online, f.UserID)
		m.println(systemStyle.Render(fmt.Sprintf("← %s left", name)))
	case model.History:
		for _, v := range f.Messages {
			m.println(formatMessage(v, m.viewport.Width, m.self.UserID, m.online))
		}
	case model.ChatFrame:
		m.println(formatMessage(f.MessageView, m.viewport.Width, m.self.UserID, m.online))
	}
}

func (m modelState) whoLine() string {
	if len(m.online) == 0 {
		return "Nobody online."
	}
	names := make([]string, 0, len(m.online))
	for id, name := range m.online {
		names = append(names, fmt.Sprintf("%s (#%d)", name, id))
	}
	sort.Strings(names)
	return fmt.Sprintf("%d online: %s", len(names), strings.Join(names, ", "))
}

func (m modelState) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s",
		m.viewport.View(),
		strings.Repeat("─", m.viewport.Width),
		m.textInput.View(),
	)
}

// formatMessage renders one chat line as │ time │ sender │ message, wrapping the
// message to width.
func formatMessage(msg model.MessageView, width int, selfID uint, online map[uint]string) string {
	if width < 50 {
		width = 80
	}

	timeStr := msg.CreatedAt.Local().Format("15:04")

	sender := msg.DisplayName
	if sender == "" {
		sender = "Guest"
	}
	switch {
	case msg.MessageType == model.MessageSystem:
		sender = systemStyle.Render(sender)
	case msg.SenderID == selfID:
		sender = selfStyle.Render(sender)
	}
	senderWidth := lipgloss.Width(sender)
	if padding := 15 - senderWidth; padding > 0 {
		sender += strings.Repeat(" ", padding)
	}

	content := parseColorTags(msg.Content)
	switch msg.MessageType {
	case model.MessageSystem:
		content = systemStyle.Render(msg.Content)
	case model.MessagePrivate:
		content = privateStyle.Render("[private"+peerLabel(msg, selfID, online)+"] ") + content
	}

	vLine := borderStyle.Render("│")
	prefix := fmt.Sprintf("%s %s %s %s %s ", vLine, timeStr, vLine, sender, vLine)
	prefixWidth := lipgloss.Width(prefix)
	if prefixWidth <= 0 || prefixWidth > width {
		prefixWidth = 30
	}

	msgWidth := width - prefixWidth
	if msgWidth < 10 {
		msgWidth = 10
	}
	wrapped := lipgloss.NewStyle().Width(msgWidth).Render(content)
	lines := strings.Split(wrapped, "\n")

	senderSpace := senderWidth
	if senderSpace < 15 {
		senderSpace = 15
	}
	emptyPrefix := fmt.Sprintf("%s %s %s %s %s ",
		vLine, strings.Repeat(" ", 5),
		vLine, strings.Repeat(" ", senderSpace),
		vLine)

	var result strings.Builder
	result.WriteString(prefix)
	result.WriteString(lines[0])
	for i := 1; i < len(lines); i++ {
		result.WriteString("\n")
		result.WriteString(emptyPrefix)
		result.WriteString(lines[i])
	}
	return result.String()
}

// peerLabel names the other side of a private message sent by the local user.
func peerLabel(msg model.MessageView, selfID uint, online map[uint]string) string {
	if msg.SenderID != selfID || msg.RecipientID == nil {
		return ""
	}
	name, ok := online[*msg.RecipientID]
	if !ok {
		name = "#" + strconv.FormatUint(uint64(*msg.RecipientID), 10)
	}
	return " to " + name
}

// parseColorTags renders <#RRGGBB>text</> spans in the given colour.
func parseColorTags(input string) string {
	var output strings.Builder
	remaining := input

	for {
		start := strings.Index(remaining, "<#")
		if start == -1 {
			output.WriteString(remaining)
			break
		}

		output.WriteString(remaining[:start])
		remaining = remaining[start:]

		endTagStart := strings.Index(remaining, ">")
		if endTagStart == -1 {
			output.WriteString(remaining)
			break
		}

		colorCode := remaining[1:endTagStart]
		remaining = remaining[endTagStart+1:]

		endTag := strings.Index(remaining, "</>")
		if endTag == -1 {
			output.WriteString("<" + colorCode + ">" + remaining)
			break
		}

		content := remaining[:endTag]
		remaining = remaining[endTag+3:]
		output.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(colorCode)).Render(content))
	}
	return output.String()
}
