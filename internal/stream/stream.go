// Package stream implements the change-notification stream: each
// subscriber gets its own polling loop that diffs task/epic collection
// snapshots against a private baseline and pushes created/updated/
// deleted events as Server-Sent Events frames.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/store"
)

// ConnProvider resolves a project id to its datastore handle. Satisfied
// by *pool.Manager.
type ConnProvider interface {
	Get(projectID string) (*store.DB, error)
}

// entityState is the last observed state of one entity in a baseline.
type entityState struct {
	Status    string
	Title     string
	UpdatedAt time.Time
}

// baseline is a subscriber's private view of the watched collections.
// It is replaced wholesale after every tick and discarded on disconnect.
type baseline struct {
	tasks map[string]entityState
	epics map[string]entityState
}

// Streamer creates per-subscriber polling subscriptions. Baselines are
// never shared: concurrent subscribers independently re-fetch and
// re-diff the same collections.
type Streamer struct {
	provider       ConnProvider
	interval       time.Duration
	defaultProject func() string
	logger         *slog.Logger
}

// New creates a Streamer polling at the given interval. defaultProject
// supplies the project id used when a subscriber names none.
func New(provider ConnProvider, interval time.Duration, defaultProject func() string, logger *slog.Logger) *Streamer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Streamer{
		provider:       provider,
		interval:       interval,
		defaultProject: defaultProject,
		logger:         logger,
	}
}

// Subscription is one connected client. Frames arrive on C until the
// subscription is cancelled, after which C is closed and no further
// fetches occur.
type Subscription struct {
	C      <-chan []byte
	cancel context.CancelFunc
}

// Unsubscribe stops the polling loop. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.cancel()
}

// Subscribe performs the initial full fetch (stored as the baseline,
// with no events emitted: pre-existing state is never replayed as
// "created") and starts the polling loop. The loop stops when ctx is
// cancelled or Unsubscribe is called.
func (s *Streamer) Subscribe(ctx context.Context, projectID string) (*Subscription, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	base, err := fetchBaseline(db)
	if err != nil {
		return nil, fmt.Errorf("stream: initial fetch: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan []byte, 64)
	go s.poll(ctx, projectID, base, ch)

	return &Subscription{C: ch, cancel: cancel}, nil
}

// poll is the per-subscriber loop. A failed tick is skipped and retried
// on the next interval; it never terminates the subscription. Quiet
// ticks emit a heartbeat frame.
func (s *Streamer) poll(ctx context.Context, projectID string, base *baseline, ch chan []byte) {
	defer close(ch)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		db, err := s.provider.Get(projectID)
		if err != nil {
			s.logger.Debug("stream: tick skipped", slog.String("project", projectID), slog.String("error", err.Error()))
			continue
		}
		current, err := fetchBaseline(db)
		if err != nil {
			s.logger.Debug("stream: tick skipped", slog.String("project", projectID), slog.String("error", err.Error()))
			continue
		}

		frames := diff(base, current)
		if len(frames) == 0 {
			frames = [][]byte{frame("ping", time.Now().UnixMilli())}
		}
		for _, f := range frames {
			select {
			case ch <- f:
			default:
				// Subscriber buffer full; drop to keep the loop live.
			}
		}

		// Replace the baseline even when nothing fired, to track the
		// status quo.
		base = current
	}
}

func fetchBaseline(db *store.DB) (*baseline, error) {
	tasks, err := db.ListTasks()
	if err != nil {
		return nil, err
	}
	epics, err := db.ListEpics()
	if err != nil {
		return nil, err
	}

	b := &baseline{
		tasks: make(map[string]entityState, len(tasks)),
		epics: make(map[string]entityState, len(epics)),
	}
	for _, t := range tasks {
		b.tasks[t.ID] = entityState{Status: t.Status, Title: t.Title, UpdatedAt: t.UpdatedAt}
	}
	for _, e := range epics {
		b.epics[e.ID] = entityState{Status: e.Status, Title: e.Title, UpdatedAt: e.UpdatedAt}
	}
	return b, nil
}

// diff compares the current fetch against the previous baseline:
// unknown ids are created, known ids with a different UpdatedAt are
// updated, ids missing from the current fetch are deleted.
func diff(prev, current *baseline) [][]byte {
	var frames [][]byte
	frames = append(frames, diffCollection(models.EntityTask, prev.tasks, current.tasks)...)
	frames = append(frames, diffCollection(models.EntityEpic, prev.epics, current.epics)...)
	return frames
}

type changePayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

func diffCollection(entity string, prev, current map[string]entityState) [][]byte {
	var frames [][]byte
	now := time.Now().UTC().Format(time.RFC3339)

	for id, state := range current {
		old, known := prev[id]
		switch {
		case !known:
			frames = append(frames, frame(entity+".created", changePayload{
				ID: id, Title: state.Title, Status: state.Status, Timestamp: now,
			}))
		case !old.UpdatedAt.Equal(state.UpdatedAt):
			frames = append(frames, frame(entity+".updated", changePayload{
				ID: id, Title: state.Title, Status: state.Status, Timestamp: now,
			}))
		}
	}
	for id, state := range prev {
		if _, still := current[id]; !still {
			frames = append(frames, frame(entity+".deleted", changePayload{
				ID: id, Title: state.Title, Timestamp: now,
			}))
		}
	}
	return frames
}

// frame renders one SSE frame: "event: <type>\ndata: <json>\n\n".
func frame(event string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload))
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The project
// is taken from ?projectId= or X-Project-Id, else the default project.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		projectID = r.Header.Get("X-Project-Id")
	}
	if projectID == "" {
		projectID = s.defaultProject()
	}

	sub, err := s.Subscribe(r.Context(), projectID)
	if err != nil {
		http.Error(w, "subscribe failed", http.StatusBadGateway)
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(frame("connected", map[string]string{"projectId": projectID}))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
