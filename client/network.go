package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/puyokura/foodfortalk/model"
)

const (
	defaultPort     = "8999"
	defaultChatPath = "/food-for-talk-chat"
	tokenPath       = "/food-for-talk/token"
)

// chatPath must match the server's chat_path setting.
var chatPath = defaultChatPath

// frameMsg carries one server frame into the bubbletea loop.
type frameMsg struct {
	frame model.Outbound
}

type disconnectedMsg struct {
	err error
}

type errMsg error

type Network struct {
	mu         sync.Mutex
	conn       *websocket.Conn
	httpClient *http.Client
}

func NewNetwork() *Network {
	return &Network{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func withPort(host string) string {
	if !strings.Contains(host, ":") {
		return host + ":" + defaultPort
	}
	return host
}

func chatURL(host, token string) string {
	u := url.URL{Scheme: "ws", Host: withPort(host), Path: chatPath}
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

type loginResult struct {
	Token       string `json:"token"`
	UserID      uint   `json:"userId"`
	DisplayName string `json:"displayName"`
	Message     string `json:"message"`
}

// Login exchanges credentials for a chat token.
func (n *Network) Login(host, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "http", Host: withPort(host), Path: tokenPath}
	resp, err := n.httpClient.Post(u.String(), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result loginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("login: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: %s", result.Message)
	}
	return result.Token, nil
}

func (n *Network) Connect(host, token string) error {
	n.Disconnect()

	c, resp, err := websocket.DefaultDialer.Dial(chatURL(host, token), nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return fmt.Errorf("server refused connection: %s", resp.Status)
		}
		return err
	}

	n.mu.Lock()
	n.conn = c
	n.mu.Unlock()
	return nil
}

func (n *Network) Disconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		n.conn.Close()
		n.conn = nil
	}
}

func (n *Network) current() *websocket.Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn
}

// WaitForMessage is a tea.Cmd that waits for the next frame from the websocket.
func (n *Network) WaitForMessage() tea.Msg {
	conn := n.current()
	if conn == nil {
		return nil
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if n.current() == conn {
				n.Disconnect()
			}
			return disconnectedMsg{err: err}
		}
		frame, err := model.DecodeOutbound(data)
		if err != nil {
			// Frames from newer servers are skipped.
			continue
		}
		return frameMsg{frame: frame}
	}
}

func (n *Network) Send(in model.Inbound) tea.Cmd {
	return func() tea.Msg {
		conn := n.current()
		if conn == nil {
			return errMsg(errors.New("not connected"))
		}

		data, err := model.EncodeInbound(in)
		if err != nil {
			return errMsg(err)
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return errMsg(err)
		}
		return nil
	}
}
