// Package livereload pushes rebuild notifications to connected browsers
// over a websocket. Pages served by the dev server load a small client
// script that swaps stylesheets in place for CSS-only changes and reloads
// the page for everything else.
package livereload

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"tools.zach/dev/assetpipe/internal/paths"
)

// URL paths served next to the output directory.
const (
	SocketPath = "/__livereload"
	ScriptPath = "/__livereload.js"
)

// ScriptTag is inserted into served HTML pages.
const ScriptTag = `<script src="` + ScriptPath + `"></script>`

const (
	sendBuffer = 8
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

//go:embed client.js
var clientJS []byte

// Message is the JSON payload sent to browsers after a category rebuilds.
type Message struct {
	Category string   `json:"category"`
	Files    []string `json:"files"`
	// CSS is set when every changed file is a stylesheet, so the page can
	// swap them without reloading.
	CSS bool `json:"css"`
}

// NewMessage converts project-relative output paths into URL paths under
// the served output directory.
func NewMessage(category paths.Category, files []string) Message {
	msg := Message{Category: string(category), Files: make([]string, 0, len(files))}
	css := len(files) > 0
	for _, f := range files {
		u := "/" + strings.TrimPrefix(f, paths.BuildDir+"/")
		msg.Files = append(msg.Files, u)
		if path.Ext(u) != ".css" {
			css = false
		}
	}
	msg.CSS = css
	return msg
}

// ///////////////////////////////////////////////
// Hub
// ///////////////////////////////////////////////

// Hub tracks connected browsers and broadcasts messages to them. It is an
// http.Handler for SocketPath.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection until the
// browser goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("livereload upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	slog.Debug("livereload client connected", "remote", r.RemoteAddr)

	go h.writeLoop(c)

	// Browsers never send anything meaningful; reading only detects
	// disconnects and processes control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
	slog.Debug("livereload client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every connected browser. A browser whose buffer
// is full misses the message; it will pick up the next one.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("livereload encode failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Debug("livereload client lagging, message dropped")
		}
	}
}

// Notify implements task.Notifier.
func (h *Hub) Notify(category paths.Category, files []string) {
	h.Broadcast(NewMessage(category, files))
}

// Close disconnects every browser and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
}

// ///////////////////////////////////////////////
// Client Script
// ///////////////////////////////////////////////

// ScriptHandler serves the browser client.
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(clientJS)
	})
}

// Inject inserts ScriptTag before the last closing body tag, or appends it
// when the page has none.
func Inject(html []byte) []byte {
	i := lastIndexFold(html, "</body>")
	if i < 0 {
		out := make([]byte, 0, len(html)+len(ScriptTag))
		out = append(out, html...)
		return append(out, ScriptTag...)
	}
	out := make([]byte, 0, len(html)+len(ScriptTag))
	out = append(out, html[:i]...)
	out = append(out, ScriptTag...)
	return append(out, html[i:]...)
}

func lastIndexFold(s []byte, sub string) int {
	for i := len(s) - len(sub); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sub)], []byte(sub)) {
			return i
		}
	}
	return -1
}
