package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"aichatgo/internal/models"
	"aichatgo/internal/moderation"
	"aichatgo/internal/store"

	"github.com/cloudwego/eino/schema"
)

// Generator is the external generation capability: it consumes the full
// ordered history and yields a lazy, finite, non-restartable fragment
// stream.
type Generator interface {
	Stream(ctx context.Context, history []*models.Message) (*schema.StreamReader[*schema.Message], error)
}

// Gate is the content-safety pre-check. An error return is treated as
// flagged: the pipeline fails closed when the classifier is unreachable.
type Gate interface {
	Check(ctx context.Context, text string) (moderation.Result, error)
}

// Event is one frame of the chat output stream. Exactly one of the fields
// is set; Error and Done are terminal.
type Event struct {
	Delta string `json:"delta,omitempty"`
	Error string `json:"error,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// generationTimeout bounds one provider call end to end.
const generationTimeout = 2 * time.Minute

// Service runs the chat pipeline: gate, session resolve, history assembly,
// persist user turn, stream generation, persist assistant turn, done.
type Service struct {
	store *store.Store
	gate  Gate
	gen   Generator
}

func NewService(st *store.Store, gate Gate, gen Generator) *Service {
	return &Service{store: st, gate: gate, gen: gen}
}

// SessionIDFor derives the session identifier deterministically from the
// authenticated identity, so concurrent users never share one history.
func SessionIDFor(userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

// Stream executes one chat turn for user, emitting events through emit.
// The sequence is either a single error event, or zero or more delta
// events followed by exactly one done event. An emit failure means the
// caller is gone; the pipeline stops forwarding but still drains the
// fragment stream and persists the assistant turn, since the generation
// cost is already incurred.
func (s *Service) Stream(ctx context.Context, user *models.User, message string, emit func(Event) error) {
	// Generation and persistence outlive a client disconnect; only the
	// timeout below cancels them.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), generationTimeout)
	defer cancel()

	// Step 1: moderation gate. Nothing is persisted for a blocked message.
	verdict, err := s.gate.Check(opCtx, message)
	if err != nil {
		log.Printf("moderation gate error, failing closed: %v", err)
		verdict.Flagged = true
	}
	if verdict.Flagged {
		_ = emit(Event{Error: "message blocked for safety reasons"})
		return
	}

	// Step 2: resolve the session, creating it on the first turn.
	sessionID := SessionIDFor(user.ID)
	if _, err := s.store.GetSession(opCtx, sessionID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			_ = emit(Event{Error: "storage unavailable"})
			return
		}
		if _, err := s.store.CreateSession(opCtx, sessionID, user.ID); err != nil {
			_ = emit(Event{Error: "storage unavailable"})
			return
		}
	}

	// Step 3: assemble the ordered history with the new turn last; this
	// exact sequence is the generation input.
	history, err := s.store.ListMessages(opCtx, sessionID)
	if err != nil {
		_ = emit(Event{Error: "storage unavailable"})
		return
	}
	history = append(history, &models.Message{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   message,
	})

	// Step 4: persist the user turn before generation so it is durable
	// even if the provider call fails.
	if _, err := s.store.AddMessage(opCtx, sessionID, models.RoleUser, message); err != nil {
		_ = emit(Event{Error: "storage unavailable"})
		return
	}

	// Step 5: stream generation, forwarding each fragment immediately.
	streamReader, err := s.gen.Stream(opCtx, history)
	if err != nil {
		_ = emit(Event{Error: fmt.Sprintf("generation failed: %v", err)})
		return
	}
	defer streamReader.Close()

	var (
		fragments  strings.Builder
		clientGone bool
	)
	for {
		chunk, err := streamReader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Provider error mid-stream: terminal error event, and the
			// partial assistant turn is never persisted.
			if !clientGone {
				_ = emit(Event{Error: fmt.Sprintf("generation failed: %v", err)})
			}
			return
		}
		if chunk.Content == "" {
			continue
		}
		fragments.WriteString(chunk.Content)
		if !clientGone {
			if err := emit(Event{Delta: chunk.Content}); err != nil {
				clientGone = true
			}
		}
	}

	// Step 6: persist the assistant turn only after the fragment stream
	// fully drained, never incrementally; either the whole turn is stored
	// or none of it.
	if fragments.Len() > 0 {
		if _, err := s.store.AddMessage(opCtx, sessionID, models.RoleAssistant, fragments.String()); err != nil {
			if !clientGone {
				_ = emit(Event{Error: "storage unavailable"})
			}
			return
		}
	}

	// Step 7: terminal done event, exactly once per successful invocation.
	if !clientGone {
		_ = emit(Event{Done: true})
	}
}
