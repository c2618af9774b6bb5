// Command chatcli signs in and sends one chat message, printing the relay events.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event mirrors the relay events written by the server
type Event struct {
	Type    string `json:"type"`
	ChatID  string `json:"chatId,omitempty"`
	Content any    `json:"content"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	ID       string        `json:"id"`
	Messages []chatMessage `json:"messages"`
	ModelID  string        `json:"modelId,omitempty"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Backend base URL")
	email := flag.String("email", os.Getenv("CHAT_EMAIL"), "Account email")
	password := flag.String("password", os.Getenv("CHAT_PASSWORD"), "Account password")
	message := flag.String("message", "", "Message to send")
	chatID := flag.String("chat", "", "Existing chat id (a new chat is created when empty)")
	model := flag.String("model", "", "Model id")
	useWS := flag.Bool("ws", false, "Use the websocket transport instead of server-sent events")
	flag.Parse()

	if *email == "" || *password == "" || *message == "" {
		fmt.Println("Chat CLI Usage:")
		flag.PrintDefaults()
		os.Exit(2)
	}

	token, err := login(*baseURL, *email, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	if *chatID == "" {
		*chatID = uuid.NewString()
	}
	req := chatRequest{
		ID:       *chatID,
		Messages: []chatMessage{{Role: "user", Content: *message}},
		ModelID:  *model,
	}

	if *useWS {
		err = chatOverWebsocket(*baseURL, token, req, printEvent)
	} else {
		err = chatOverSSE(*baseURL, token, req, printEvent)
	}
	if err != nil {
		log.Fatalf("Chat failed: %v", err)
	}
}

func printEvent(e Event) {
	switch e.Type {
	case "text":
		fmt.Println(e.Content)
	case "error":
		fmt.Fprintf(os.Stderr, "error: %v\n", e.Content)
	default:
		log.Printf("%s %v", e.Type, e.Content)
	}
}

func login(baseURL, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(baseURL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		Token  string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, result.Status)
	}
	return result.Token, nil
}

func chatOverSSE(baseURL, token string, req chatRequest, onEvent func(Event)) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/chat/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("error response: %s, status: %d", strings.TrimSpace(string(text)), resp.StatusCode)
	}

	return readSSE(resp.Body, onEvent)
}

// readSSE decodes "data:" lines until the stream ends or a terminal event arrives
func readSSE(r io.Reader, onEvent func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		var e Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &e); err != nil {
			return fmt.Errorf("malformed event %q: %w", line, err)
		}
		onEvent(e)
		if e.Type == "done" || e.Type == "error" {
			return nil
		}
	}
	return scanner.Err()
}

func chatOverWebsocket(baseURL, token string, req chatRequest, onEvent func(Event)) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/chat/api/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return fmt.Errorf("error connecting to websocket: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"type": "chat", "content": req}); err != nil {
		return fmt.Errorf("error writing chat frame: %w", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	events := make(chan Event)
	readErr := make(chan error, 1)
	go func() {
		for {
			var e Event
			if err := conn.ReadJSON(&e); err != nil {
				readErr <- err
				return
			}
			events <- e
		}
	}()

	for {
		select {
		case e := <-events:
			onEvent(e)
			if e.Type == "done" || e.Type == "error" {
				return closeGracefully(conn)
			}
		case err := <-readErr:
			return fmt.Errorf("websocket read error: %w", err)
		case <-interrupt:
			log.Println("Interrupt received, shutting down...")
			return closeGracefully(conn)
		}
	}
}

func closeGracefully(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
