package chat

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"aichatgo/internal/config"
	"aichatgo/internal/models"
	"aichatgo/internal/moderation"
	"aichatgo/internal/storage"
	"aichatgo/internal/store"

	"github.com/cloudwego/eino/schema"
)

type fakeGate struct {
	result moderation.Result
	err    error
	gotIn  string
}

func (g *fakeGate) Check(_ context.Context, text string) (moderation.Result, error) {
	g.gotIn = text
	return g.result, g.err
}

type fakeGenerator struct {
	fragments  []string
	streamErr  error // sent after the fragments, mid-stream
	startErr   error // returned before any stream exists
	gotHistory []*models.Message
}

func (g *fakeGenerator) Stream(_ context.Context, history []*models.Message) (*schema.StreamReader[*schema.Message], error) {
	g.gotHistory = history
	if g.startErr != nil {
		return nil, g.startErr
	}
	reader, writer := schema.Pipe[*schema.Message](len(g.fragments) + 1)
	go func() {
		defer writer.Close()
		for _, fragment := range g.fragments {
			writer.Send(&schema.Message{Role: schema.Assistant, Content: fragment}, nil)
		}
		if g.streamErr != nil {
			writer.Send(nil, g.streamErr)
		}
	}()
	return reader, nil
}

func newTestPipeline(t *testing.T, gate *fakeGate, gen *fakeGenerator) (*Service, *store.Store, *sql.DB, *models.User) {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	st := store.New(db)
	user, err := st.CreateUser(context.Background(), "a@x.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return NewService(st, gate, gen), st, db, user
}

func collect(events *[]Event) func(Event) error {
	return func(evt Event) error {
		*events = append(*events, evt)
		return nil
	}
}

func TestStreamHappyPath(t *testing.T) {
	gate := &fakeGate{}
	gen := &fakeGenerator{fragments: []string{"Hel", "lo"}}
	svc, st, db, user := newTestPipeline(t, gate, gen)
	defer db.Close()

	var events []Event
	svc.Stream(context.Background(), user, "hi there", collect(&events))

	want := []Event{{Delta: "Hel"}, {Delta: "lo"}, {Done: true}}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d mismatch: %+v", i, events[i])
		}
	}
	if gate.gotIn != "hi there" {
		t.Fatalf("gate saw %q", gate.gotIn)
	}

	messages, err := st.ListMessages(context.Background(), SessionIDFor(user.ID))
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(messages))
	}
	if messages[0].Role != models.RoleUser || messages[0].Content != "hi there" {
		t.Fatalf("user turn mismatch: %+v", messages[0])
	}
	if messages[1].Role != models.RoleAssistant || messages[1].Content != "Hello" {
		t.Fatalf("assistant turn mismatch: %+v", messages[1])
	}
}

func TestStreamBlockedMessage(t *testing.T) {
	gate := &fakeGate{result: moderation.Result{Flagged: true, Categories: []string{"HARM_CATEGORY_HARASSMENT"}}}
	gen := &fakeGenerator{fragments: []string{"never"}}
	svc, st, db, user := newTestPipeline(t, gate, gen)
	defer db.Close()

	var events []Event
	svc.Stream(context.Background(), user, "blocked input", collect(&events))

	if len(events) != 1 || events[0].Error == "" {
		t.Fatalf("expected exactly one error event, got %+v", events)
	}
	if gen.gotHistory != nil {
		t.Fatalf("generation must not run for a blocked message")
	}
	messages, err := st.ListMessages(context.Background(), SessionIDFor(user.ID))
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("blocked message must not be persisted, got %d", len(messages))
	}
}

func TestStreamGateFailsClosed(t *testing.T) {
	gate := &fakeGate{err: errors.New("classifier timeout")}
	gen := &fakeGenerator{fragments: []string{"never"}}
	svc, st, db, user := newTestPipeline(t, gate, gen)
	defer db.Close()

	var events []Event
	svc.Stream(context.Background(), user, "anything", collect(&events))

	if len(events) != 1 || events[0].Error == "" {
		t.Fatalf("classifier outage must block, got %+v", events)
	}
	messages, _ := st.ListMessages(context.Background(), SessionIDFor(user.ID))
	if len(messages) != 0 {
		t.Fatalf("expected no persistence on fail-closed gate")
	}
}

func TestStreamProviderErrorMidStream(t *testing.T) {
	gate := &fakeGate{}
	gen := &fakeGenerator{fragments: []string{"partial"}, streamErr: errors.New("provider exploded")}
	svc, st, db, user := newTestPipeline(t, gate, gen)
	defer db.Close()

	var events []Event
	svc.Stream(context.Background(), user, "hi", collect(&events))

	if len(events) != 2 {
		t.Fatalf("expected delta then error, got %+v", events)
	}
	if events[0].Delta != "partial" || events[1].Error == "" {
		t.Fatalf("unexpected events: %+v", events)
	}

	// The user turn is durable, the partial assistant turn is not.
	messages, err := st.ListMessages(context.Background(), SessionIDFor(user.ID))
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != models.RoleUser {
		t.Fatalf("expected only the user turn, got %+v", messages)
	}
}

func TestStreamProviderStartError(t *testing.T) {
	gate := &fakeGate{}
	gen := &fakeGenerator{startErr: errors.New("connection refused")}
	svc, st, db, user := newTestPipeline(t, gate, gen)
	defer db.Close()

	var events []Event
	svc.Stream(context.Background(), user, "hi", collect(&events))

	if len(events) != 1 || events[0].Error == "" {
		t.Fatalf("expected single error event, got %+v", events)
	}
	messages, _ := st.ListMessages(context.Background(), SessionIDFor(user.ID))
	if len(messages) != 1 || messages[0].Role != models.RoleUser {
		t.Fatalf("expected only the user turn, got %+v", messages)
	}
}

func TestStreamTwoTurnsKeepOrder(t *testing.T) {
	gate := &fakeGate{}
	gen := &fakeGenerator{fragments: []string{"first reply"}}
	svc, st, db, user := newTestPipeline(t, gate, gen)
	defer db.Close()

	var events []Event
	svc.Stream(context.Background(), user, "turn one", collect(&events))

	gen.fragments = []string{"second reply"}
	events = nil
	svc.Stream(context.Background(), user, "turn two", collect(&events))

	// The second generation call must replay both prior turns plus the
	// new user message, in order.
	if len(gen.gotHistory) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(gen.gotHistory))
	}
	if gen.gotHistory[0].Content != "turn one" ||
		gen.gotHistory[1].Content != "first reply" ||
		gen.gotHistory[2].Content != "turn two" {
		t.Fatalf("history out of order: %+v", gen.gotHistory)
	}

	messages, err := st.ListMessages(context.Background(), SessionIDFor(user.ID))
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	wantContents := []string{"turn one", "first reply", "turn two", "second reply"}
	if len(messages) != len(wantContents) {
		t.Fatalf("expected %d messages, got %d", len(wantContents), len(messages))
	}
	for i, want := range wantContents {
		if messages[i].Content != want {
			t.Fatalf("message %d mismatch: want %q got %q", i, want, messages[i].Content)
		}
	}
}

func TestStreamClientGoneStillPersists(t *testing.T) {
	gate := &fakeGate{}
	gen := &fakeGenerator{fragments: []string{"Hel", "lo"}}
	svc, st, db, user := newTestPipeline(t, gate, gen)
	defer db.Close()

	var delivered []Event
	emit := func(evt Event) error {
		if len(delivered) >= 1 {
			return errors.New("client disconnected")
		}
		delivered = append(delivered, evt)
		return nil
	}
	svc.Stream(context.Background(), user, "hi", emit)

	if len(delivered) != 1 || delivered[0].Delta != "Hel" {
		t.Fatalf("expected one delivered delta, got %+v", delivered)
	}

	// The full assistant turn is persisted even though the caller vanished.
	messages, err := st.ListMessages(context.Background(), SessionIDFor(user.ID))
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 2 || messages[1].Content != "Hello" {
		t.Fatalf("expected complete assistant turn, got %+v", messages)
	}
}

func TestSessionIDDerivation(t *testing.T) {
	if SessionIDFor(7) == SessionIDFor(8) {
		t.Fatalf("distinct users must map to distinct sessions")
	}
	if SessionIDFor(7) != SessionIDFor(7) {
		t.Fatalf("session derivation must be deterministic")
	}
}
