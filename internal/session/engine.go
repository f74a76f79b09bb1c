// Package session orchestrates one inbound message end to end: the
// addressing decision, directive parsing, prompt composition, the
// backend call, the context update, and chunked emission.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmbot-io/llmbot/internal/chunk"
	"github.com/llmbot-io/llmbot/internal/directive"
	"github.com/llmbot-io/llmbot/internal/history"
	"github.com/llmbot-io/llmbot/internal/llm"
	"github.com/llmbot-io/llmbot/internal/prompt"
	"github.com/llmbot-io/llmbot/internal/tools"
)

// Event is one inbound platform message, decoupled from any SDK type.
type Event struct {
	ChannelID string
	Author    string // sender display name
	Content   string // raw text, with the bot mention already stripped
	Direct    bool   // direct/private channel
	Mentioned bool   // the bot identity was explicitly mentioned
}

// Sender delivers output back to the platform.
type Sender interface {
	// SendMessage posts one text fragment to a channel.
	SendMessage(ctx context.Context, channelID, content string) error
	// TriggerTyping shows a typing indicator. Best-effort.
	TriggerTyping(ctx context.Context, channelID string) error
}

// User-visible failure notices. Categories only, never backend detail.
const (
	timeoutNotice = "Sorry, the request to the model timed out. Please try again."
	backendNotice = "Sorry, something went wrong talking to the model. Please try again."
	emptyNotice   = "No response received from the model."
)

// defaultToolRounds bounds how many tool-call rounds a single query
// may spend before the model is forced to answer.
const defaultToolRounds = 4

// Config holds the collaborators for an Engine.
type Config struct {
	Store    *history.Store
	Client   llm.Client
	Sender   Sender
	Composer *prompt.Composer
	Splitter *chunk.Splitter
	Tools    *tools.Registry // nil disables tool calling
	Logger   *slog.Logger

	DefaultModel   string
	RequestTimeout time.Duration
	ToolRounds     int // 0 = defaultToolRounds
}

// Engine runs the per-event state machine. Events on the same channel
// are serialized; events on different channels proceed in parallel.
type Engine struct {
	store    *history.Store
	client   llm.Client
	sender   Sender
	composer *prompt.Composer
	splitter *chunk.Splitter
	tools    *tools.Registry
	logger   *slog.Logger

	defaultModel   string
	requestTimeout time.Duration
	toolRounds     int

	mu       sync.Mutex
	channels map[string]*sync.Mutex
	queues   map[string]*eventQueue
	wg       sync.WaitGroup
}

// eventQueue is one channel's pending events in arrival order. A
// single drain goroutine owns processing while busy is set, so events
// enqueued for the same channel can never overtake each other.
type eventQueue struct {
	pending []queuedEvent
	busy    bool
}

type queuedEvent struct {
	ctx context.Context
	ev  Event
}

// New creates a session engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rounds := cfg.ToolRounds
	if rounds <= 0 {
		rounds = defaultToolRounds
	}
	return &Engine{
		store:          cfg.Store,
		client:         cfg.Client,
		sender:         cfg.Sender,
		composer:       cfg.Composer,
		splitter:       cfg.Splitter,
		tools:          cfg.Tools,
		logger:         logger,
		defaultModel:   cfg.DefaultModel,
		requestTimeout: cfg.RequestTimeout,
		toolRounds:     rounds,
		channels:       make(map[string]*sync.Mutex),
		queues:         make(map[string]*eventQueue),
	}
}

// Dispatch enqueues an event for asynchronous processing. Events for
// the same channel are handled in the order Dispatch was called;
// different channels proceed in parallel and never block each other.
// Use Wait to drain in-flight events at shutdown.
func (e *Engine) Dispatch(ctx context.Context, ev Event) {
	e.mu.Lock()
	q, ok := e.queues[ev.ChannelID]
	if !ok {
		q = &eventQueue{}
		e.queues[ev.ChannelID] = q
	}
	q.pending = append(q.pending, queuedEvent{ctx: ctx, ev: ev})
	if !q.busy {
		q.busy = true
		e.wg.Add(1)
		go e.drain(q)
	}
	e.mu.Unlock()
}

// drain processes one channel's queue until it is empty, then exits.
// Exactly one drain goroutine runs per channel at a time.
func (e *Engine) drain(q *eventQueue) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		if len(q.pending) == 0 {
			q.busy = false
			e.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		e.mu.Unlock()

		e.Handle(next.ctx, next.ev)
	}
}

// Wait blocks until all dispatched events have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// channelLock returns the mutex serializing one channel's events.
func (e *Engine) channelLock(channelID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	mu, ok := e.channels[channelID]
	if !ok {
		mu = &sync.Mutex{}
		e.channels[channelID] = mu
	}
	return mu
}

// Handle processes one inbound event synchronously.
func (e *Engine) Handle(ctx context.Context, ev Event) {
	// Addressing: DMs always respond; group channels only when the
	// bot is mentioned. Everything else is normal traffic, not worth
	// more than a debug line.
	if !ev.Direct && !ev.Mentioned {
		e.logger.Debug("ignoring unaddressed message", "channel", ev.ChannelID)
		return
	}

	mu := e.channelLock(ev.ChannelID)
	mu.Lock()
	defer mu.Unlock()

	requestID := uuid.NewString()
	logger := e.logger.With("request_id", requestID, "channel", ev.ChannelID)

	// Parsing: a model override takes effect immediately, even when
	// nothing is left to ask.
	dirs, cleaned := directive.Parse(ev.Content)
	for _, d := range dirs {
		if d.Kind == directive.KindModelOverride {
			e.store.SetModel(ev.ChannelID, d.Value)
			logger.Info("model override set", "model", d.Value)
		}
	}

	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return
	}

	model := e.store.ActiveModel(ev.ChannelID)
	if model == "" {
		model = e.defaultModel
	}

	logger.Info("query received",
		"author", ev.Author,
		"model", model,
		"content_len", len(cleaned),
	)

	// Composing: pure transformation over an immutable snapshot.
	messages := e.composer.Compose(e.store.Snapshot(ev.ChannelID), ev.Author, cleaned)

	if err := e.sender.TriggerTyping(ctx, ev.ChannelID); err != nil {
		logger.Debug("typing indicator failed", "error", err)
	}

	// AwaitingBackend: the only blocking state.
	callCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()

	reply, err := e.complete(callCtx, logger, model, messages)
	if err != nil {
		// The context store is left untouched so a retry sees the
		// exact pre-failure conversation.
		notice := backendNotice
		if errors.Is(err, llm.ErrTimeout) {
			notice = timeoutNotice
			logger.Warn("backend timeout", "model", model)
		} else {
			logger.Error("backend call failed", "model", model, "error", err)
		}
		if sendErr := e.sender.SendMessage(ctx, ev.ChannelID, notice); sendErr != nil {
			logger.Error("error notice send failed", "error", sendErr)
		}
		return
	}

	if reply == "" {
		reply = emptyNotice
	}

	// Updating: the human turn and the reply land together.
	e.store.AppendExchange(ev.ChannelID,
		history.Turn{Author: ev.Author, Content: cleaned},
		history.Turn{Assistant: true, Content: reply},
	)

	logger.Info("query successful", "reply_len", len(reply))

	// Emitting: fragments go out in order; a failed send aborts the
	// rest rather than delivering them out of sequence.
	for _, frag := range e.splitter.Split(reply) {
		if err := e.sender.SendMessage(ctx, ev.ChannelID, frag.Content); err != nil {
			logger.Error("fragment send failed",
				"fragment", frag.Index,
				"total", frag.Total,
				"error", err,
			)
			return
		}
	}
}

// complete drives the backend call, resolving tool-call rounds until
// the model produces text. After toolRounds rounds the tools are
// withdrawn to force an answer.
func (e *Engine) complete(ctx context.Context, logger *slog.Logger, model string, messages []llm.Message) (string, error) {
	var specs []map[string]any
	if e.tools != nil {
		specs = e.tools.Specs()
	}

	for round := 0; ; round++ {
		offered := specs
		if round >= e.toolRounds {
			offered = nil
		}

		resp, err := e.client.Chat(ctx, model, messages, offered)
		if err != nil {
			return "", err
		}

		calls := resp.Message.ToolCalls
		if len(calls) == 0 || offered == nil {
			return resp.Message.Content, nil
		}

		messages = append(messages, resp.Message)
		for _, call := range calls {
			result := e.tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
			logger.Info("tool executed",
				"tool", call.Function.Name,
				"round", round,
				"result_len", len(result),
			)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}
}
