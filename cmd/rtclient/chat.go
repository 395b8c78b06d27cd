package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/voicerag/internal/domain"
	"github.com/xiaot623/voicerag/internal/protocol"
)

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type userMessage struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type userItemCreate struct {
	Type string      `json:"type"`
	Item userMessage `json:"item"`
}

type responseOptions struct {
	Modalities []string `json:"modalities"`
}

type responseCreate struct {
	Type     string           `json:"type"`
	Response *responseOptions `json:"response,omitempty"`
}

func textMessage(text string) userItemCreate {
	return userItemCreate{
		Type: protocol.TypeConversationItemCreate,
		Item: userMessage{
			Type:    protocol.ItemTypeMessage,
			Role:    "user",
			Content: []contentPart{{Type: "input_text", Text: text}},
		},
	}
}

func requestResponse(audio bool) responseCreate {
	modalities := []string{"text"}
	if audio {
		modalities = append(modalities, "audio")
	}
	return responseCreate{
		Type:     protocol.TypeResponseCreate,
		Response: &responseOptions{Modalities: modalities},
	}
}

type chatClient struct {
	conn *websocket.Conn
	out  io.Writer
	raw  bool

	writeMu sync.Mutex
	outMu   sync.Mutex
}

func (c *chatClient) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *chatClient) print(line string) {
	if line == "" {
		return
	}
	c.outMu.Lock()
	fmt.Fprintln(c.out, line)
	c.outMu.Unlock()
}

// readEvents prints server events until the connection closes.
func (c *chatClient) readEvents(done chan<- error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			done <- err
			return
		}
		if c.raw {
			c.print(dimStyle.Render(string(data)))
			continue
		}
		c.print(renderEvent(data))
	}
}

func runChat(ctx context.Context, flags chatFlags, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, flags.addr, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", flags.addr, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", flags.addr, err)
	}
	defer conn.Close()

	client := &chatClient{conn: conn, out: out, raw: flags.raw}
	client.print(headerStyle.Render("connected to " + flags.addr))
	client.print(dimStyle.Render("type a message and press Enter, /quit to exit"))

	done := make(chan error, 1)
	go client.readEvents(done)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return closeChat(client)
		case err := <-done:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				client.print(dimStyle.Render("session closed: " + err.Error()))
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return closeChat(client)
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/quit":
				return closeChat(client)
			}
			if err := client.sendText(line, flags.audio); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}

func (c *chatClient) sendText(text string, audio bool) error {
	if err := c.send(textMessage(text)); err != nil {
		return err
	}
	return c.send(requestResponse(audio))
}

func closeChat(c *chatClient) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	return c.conn.WriteMessage(websocket.CloseMessage, msg)
}

type sourcesPayload struct {
	Sources []domain.Document `json:"sources"`
}

// renderEvent formats the events worth showing in a chat transcript. Others render as "".
func renderEvent(data []byte) string {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		return errorStyle.Render("malformed event: ") + string(data)
	}

	switch ev.String("type") {
	case protocol.TypeAudioTranscriptDone:
		return assistantStyle.Render("assistant: ") + ev.String("transcript")
	case protocol.TypeTextDone:
		return assistantStyle.Render("assistant: ") + ev.String("text")
	case protocol.TypeToolResponse:
		return renderToolResponse(ev.String("tool_name"), ev.String("tool_result"))
	case protocol.TypeError:
		detail, err := ev.Object("error")
		if err != nil {
			return errorStyle.Render("error")
		}
		msg := detail.String("message")
		if code := detail.String("code"); code != "" {
			msg = code + ": " + msg
		}
		return errorStyle.Render("error: ") + msg
	case protocol.TypeSessionCreated:
		session, err := ev.Object("session")
		if err != nil {
			return dimStyle.Render("session created")
		}
		return dimStyle.Render("session created " + session.String("id"))
	}
	return ""
}

func renderToolResponse(tool, result string) string {
	var payload sourcesPayload
	if err := json.Unmarshal([]byte(result), &payload); err != nil || len(payload.Sources) == 0 {
		return toolStyle.Render(tool+": ") + result
	}
	var b strings.Builder
	b.WriteString(toolStyle.Render("sources:"))
	for _, src := range payload.Sources {
		b.WriteString("\n  ")
		b.WriteString(sourceStyle.Render("[" + src.ID + "]"))
		if src.Title != "" {
			b.WriteString(" " + src.Title)
		}
	}
	return b.String()
}
