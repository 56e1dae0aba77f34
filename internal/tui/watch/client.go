package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/texgate/internal/auth"
	"github.com/mattjoyce/texgate/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg struct {
	Status           string    `json:"status"`
	Service          string    `json:"service"`
	Timestamp        time.Time `json:"timestamp"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	ActiveWorkspaces int       `json:"active_workspaces"`
	Engine           struct {
		Available bool   `json:"available"`
		Version   string `json:"version"`
		Error     string `json:"error"`
	} `json:"engine"`
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{ err error }
type reconnectMsg struct{}

// --- Commands ---

// subscribeToEvents connects to GET /events, resuming after lastID, and feeds
// events into ch until the connection drops.
func subscribeToEvents(apiURL, apiKey string, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		req.Header.Set(auth.HeaderName, apiKey)
		req.Header.Set("Accept", "text/event-stream")
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return sseDisconnectedMsg{err: fmt.Errorf("GET /events: %s", resp.Status)}
		}

		return sseDisconnectedMsg{err: readSSE(resp.Body, ch)}
	}
}

// readSSE parses an event stream until EOF. Comment lines are ignored.
func readSSE(r io.Reader, ch chan<- events.Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		id   int64
		typ  string
		data string
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data != "" {
				ch <- events.Event{ID: id, Type: typ, At: time.Now(), Data: json.RawMessage(data)}
			}
			id, typ, data = 0, "", ""
		case strings.HasPrefix(line, ":"):
			// keep-alive
		case strings.HasPrefix(line, "id: "):
			if n, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				id = n
			}
		case strings.HasPrefix(line, "event: "):
			typ = line[7:]
		case strings.HasPrefix(line, "data: "):
			data = line[6:]
		}
	}
	return scanner.Err()
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries GET /health.
func fetchHealth(apiURL, apiKey string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodGet, apiURL+"/health", nil)
	if err != nil {
		return errMsg(err)
	}
	req.Header.Set(auth.HeaderName, apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errMsg(fmt.Errorf("GET /health: %s", resp.Status))
	}

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}
