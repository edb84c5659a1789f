// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/pagemark/internal/backend"
	"github.com/jeranaias/pagemark/internal/config"
	"github.com/jeranaias/pagemark/internal/convcache"
	"github.com/jeranaias/pagemark/internal/model"
	"github.com/jeranaias/pagemark/internal/prefs"
	"github.com/jeranaias/pagemark/internal/provider"
	"github.com/jeranaias/pagemark/internal/refresh"
	"github.com/jeranaias/pagemark/internal/request"
	"github.com/jeranaias/pagemark/internal/store"
	"github.com/jeranaias/pagemark/internal/util"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is the streaming session engine. It owns the conversation cache
// and request tracker for its process and drives each send from Preparing
// through Sending to a terminal state.
//
// A Session is safe for concurrent use; Send blocks until its request
// resolves, so callers that want fire-and-forget behavior run it in a
// goroutine.
type Session struct {
	cfg      *config.Config
	store    store.MessageStore
	cache    *convcache.Cache
	tracker  *request.Tracker
	streamer backend.Streamer
	refresh  *refresh.Scheduler
	prefs    *prefs.Store
	selector *provider.Selector
	log      *zap.Logger

	contextBuilder ContextBuilder
	docCache       DocumentTextCache

	onRender       func()
	onInputEnabled func(enabled bool)
}

// Options configures a Session. Store, Streamer, and Config are required;
// everything else gets a working default.
type Options struct {
	Config   *config.Config
	Store    store.MessageStore
	Streamer backend.Streamer

	Cache    *convcache.Cache
	Tracker  *request.Tracker
	Refresh  *refresh.Scheduler
	Prefs    *prefs.Store
	Selector *provider.Selector
	Logger   *zap.Logger

	ContextBuilder ContextBuilder
	DocumentCache  DocumentTextCache

	// OnRender repaints the conversation view; called through the refresh
	// scheduler so bursts coalesce.
	OnRender func()

	// OnInputEnabled toggles the input surface while a send is in flight.
	OnInputEnabled func(enabled bool)
}

// NewSession builds a session engine from options.
func NewSession(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	cache := opts.Cache
	if cache == nil {
		cache = convcache.New(opts.Store, cfg.History.PersistLimit, log)
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = request.NewTracker()
	}
	sched := opts.Refresh
	if sched == nil {
		sched = refresh.NewScheduler(refresh.DefaultWindow)
	}
	selector := opts.Selector
	if selector == nil {
		selector = provider.NewSelector()
	}

	return &Session{
		cfg:            cfg,
		store:          opts.Store,
		cache:          cache,
		tracker:        tracker,
		streamer:       opts.Streamer,
		refresh:        sched,
		prefs:          opts.Prefs,
		selector:       selector,
		log:            log,
		contextBuilder: opts.ContextBuilder,
		docCache:       opts.DocumentCache,
		onRender:       opts.OnRender,
		onInputEnabled: opts.OnInputEnabled,
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send drives one complete send: it mints a request id, appends the user
// message and a streaming assistant placeholder, opens a cancellable stream,
// accumulates deltas, and resolves to exactly one terminal state. The
// assistant message is persisted exactly once regardless of outcome.
func (s *Session) Send(ctx context.Context, params SendParams) SendResult {
	requestID := s.tracker.NextRequestID()
	s.setInputEnabled(false)

	key := model.CanonicalKey(params.ItemID, params.ParentID)
	s.cache.EnsureLoaded(ctx, key)

	modelName, err := s.resolveModel(params)
	if err != nil {
		// Configuration gap: fail fast before any message is constructed
		// or a stream is opened.
		s.log.Error("send aborted: no model resolved",
			zap.Uint64("request_id", requestID),
			zap.Int64("item_id", params.ItemID))
		s.finishSend(requestID)
		return SendResult{RequestID: requestID, Status: StatusError, Err: err}
	}

	// History window is captured before this turn's messages are appended,
	// so the backend sees only prior turns.
	history := s.cache.HistoryWindow(key, s.cfg.History.WindowSize)

	userMsg := model.NewUserMessage(annotateAttachments(params.Question, len(params.Attachments)), params.SelectedText)
	s.cache.Append(key, userMsg)
	s.persist(ctx, key, userMsg)

	assistant := model.NewAssistantMessage(modelName)
	s.cache.Append(key, assistant)
	s.requestRefresh()

	streamCtx, cancel := context.WithCancel(ctx)
	// ClearHandle only fires the handle while this request still owns it;
	// a superseded send must release its own stream context on the way out.
	defer cancel()
	s.tracker.SetHandle(requestID, cancel)

	req := backend.Request{
		Model:       modelName,
		Prompt:      params.Question,
		Context:     s.buildContextBlock(streamCtx, params),
		History:     history,
		Attachments: params.Attachments,
		Endpoint:    s.cfg.Backend.Endpoint,
		APIKey:      s.cfg.Backend.APIKey,
		Reasoning:   s.resolveReasoning(params.ItemID, modelName),
	}

	// Delta handlers are advisory writes; the resolution step below is the
	// one authoritative decision. Late deltas for a cancelled request must
	// not touch the placeholder.
	onText := func(delta string) {
		if s.tracker.IsCancelled(requestID) {
			return
		}
		assistant.AppendText(delta)
		s.requestRefresh()
	}
	onReasoning := func(summary, detail string) {
		if s.tracker.IsCancelled(requestID) {
			return
		}
		assistant.AppendReasoning(summary, detail)
		s.requestRefresh()
	}

	finalText, streamErr := s.streamer.StreamCompletion(streamCtx, req, onText, onReasoning)

	result := s.resolve(ctx, key, requestID, assistant, finalText, streamErr)

	s.tracker.ClearHandle(requestID)
	s.finishSend(requestID)
	s.requestRefresh()

	return result
}

// resolve reconciles the three "this request no longer matters" signals
// (watermark, transport abort, supersession) into one terminal state.
// Cancellation takes precedence over a simultaneously-arriving success,
// and the assistant message is persisted exactly once.
func (s *Session) resolve(ctx context.Context, key model.ConversationKey, requestID uint64, assistant *model.Message, finalText string, streamErr error) SendResult {
	var persistOnce sync.Once
	persist := func() {
		persistOnce.Do(func() {
			s.persist(ctx, key, assistant)
		})
	}

	cancelled := s.tracker.IsCancelled(requestID) || backend.IsCancellation(streamErr)

	switch {
	case cancelled:
		assistant.FinalizeCancelled(CancelledMarker)
		persist()
		return SendResult{RequestID: requestID, Status: StatusCancelled, Message: assistant}

	case streamErr == nil:
		text := finalText
		if text == "" {
			text = assistant.AccumulatedText()
		}
		if text == "" {
			text = NoResponseMarker
		}
		assistant.FinalizeText(text)
		persist()
		return SendResult{RequestID: requestID, Status: StatusReady, Message: assistant}

	default:
		reason := util.TruncateRunesNoEllipsis(streamErr.Error(), errorReasonMaxRunes)
		assistant.FinalizeError(ErrorMarkerPrefix + reason)
		persist()
		s.log.Warn("generation failed",
			zap.Uint64("request_id", requestID),
			zap.Int64("conversation_key", int64(key)),
			zap.Error(streamErr))
		return SendResult{RequestID: requestID, Status: StatusError, Message: assistant, Err: streamErr}
	}
}

// finishSend re-enables the input surface unless a newer request has
// superseded this one.
func (s *Session) finishSend(requestID uint64) {
	if !s.tracker.IsCancelled(requestID) && requestID == s.tracker.LatestIssued() {
		s.setInputEnabled(true)
	}
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel cancels the currently active request, raising the watermark and
// firing the transport abort. Returns the cancelled request id, zero when
// nothing was in flight.
func (s *Session) Cancel() uint64 {
	id := s.tracker.CancelActive()
	if id != 0 {
		s.requestRefresh()
	}
	return id
}

// CancelRequest cancels a specific request id and everything older.
func (s *Session) CancelRequest(id uint64) {
	s.tracker.CancelRequest(id)
	s.requestRefresh()
}

// ActiveRequest returns the id owning the live cancellation handle, zero
// when idle.
func (s *Session) ActiveRequest() uint64 {
	return s.tracker.ActiveRequest()
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// EnsureConversationLoaded warms the cache for a document's conversation.
func (s *Session) EnsureConversationLoaded(ctx context.Context, itemID, parentID int64) {
	s.cache.EnsureLoaded(ctx, model.CanonicalKey(itemID, parentID))
}

// History returns the in-memory conversation for a document, oldest first.
func (s *Session) History(itemID, parentID int64) []*model.Message {
	return s.cache.Get(model.CanonicalKey(itemID, parentID))
}

// Clear removes a conversation from the cache immediately and deletes its
// durable log in the background.
func (s *Session) Clear(itemID, parentID int64) {
	key := model.CanonicalKey(itemID, parentID)
	s.cache.Clear(key)
	go func() {
		if err := s.store.Clear(context.Background(), key); err != nil {
			s.log.Warn("conversation clear failed",
				zap.Int64("conversation_key", int64(key)),
				zap.Error(err))
		}
	}()
	s.requestRefresh()
}

// ExportConversation renders a conversation through a note sink and returns
// the produced content.
func (s *Session) ExportConversation(itemID, parentID int64, sink NoteSink) ([]byte, error) {
	key := model.CanonicalKey(itemID, parentID)
	conv := &model.Conversation{Key: key, Messages: s.cache.Get(key)}
	return sink.Export(conv)
}

// =============================================================================
// RESOLUTION HELPERS
// =============================================================================

// resolveModel applies the layered model fallback: explicit argument,
// per-document preference, global preference, configured default.
func (s *Session) resolveModel(params SendParams) (string, error) {
	if params.Model != "" {
		return params.Model, nil
	}
	if s.prefs != nil {
		if m, err := s.prefs.GetString(prefs.ItemKey(params.ItemID, prefs.KeyItemModel)); err == nil && m != "" {
			return m, nil
		}
		if m, err := s.prefs.GetString(prefs.KeyPreferredModel); err == nil && m != "" {
			return m, nil
		}
	}
	if s.cfg.DefaultModel != "" {
		return s.cfg.DefaultModel, nil
	}
	return "", ErrNoModel
}

// resolveReasoning picks the reasoning level for the document and model,
// empty when the model family has no reasoning support.
func (s *Session) resolveReasoning(itemID int64, modelName string) string {
	profile := provider.ProfileFor(modelName)
	if lvl := s.selector.SelectReasoningLevel(itemID, profile); lvl != nil {
		return lvl.Level
	}
	return ""
}

// buildContextBlock asks the collaborators for the document context block.
// Both collaborators are optional and failures degrade to an empty block.
func (s *Session) buildContextBlock(ctx context.Context, params SendParams) string {
	if s.contextBuilder == nil {
		return ""
	}

	docText := ""
	if s.docCache != nil {
		text, err := s.docCache.EnsureCached(ctx, params.ItemID)
		if err != nil {
			s.log.Warn("document text cache miss",
				zap.Int64("item_id", params.ItemID),
				zap.Error(err))
		} else {
			docText = text
		}
	}

	block, err := s.contextBuilder.BuildContext(ctx, docText, params.Question, len(params.Attachments) > 0, s.cfg.Backend.APIKey)
	if err != nil {
		s.log.Warn("context build failed",
			zap.Int64("item_id", params.ItemID),
			zap.Error(err))
		return ""
	}
	return block
}

// persist appends a message to the durable log and prunes it, logging and
// swallowing failures: persistence is best-effort and never blocks the
// in-memory conversation flow.
func (s *Session) persist(ctx context.Context, key model.ConversationKey, msg *model.Message) {
	if s.store == nil {
		return
	}
	if err := s.store.Append(ctx, key, msg); err != nil {
		s.log.Warn("message persist failed",
			zap.Int64("conversation_key", int64(key)),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return
	}
	if err := s.store.Prune(ctx, key, s.cfg.History.PersistLimit); err != nil {
		s.log.Warn("history prune failed",
			zap.Int64("conversation_key", int64(key)),
			zap.Error(err))
	}
}

// =============================================================================
// SIDE-EFFECT CALLBACKS
// =============================================================================

func (s *Session) requestRefresh() {
	if s.onRender == nil {
		return
	}
	s.refresh.Request(s.onRender)
}

func (s *Session) setInputEnabled(enabled bool) {
	if s.onInputEnabled != nil {
		s.onInputEnabled(enabled)
	}
}

// annotateAttachments appends an attachment count marker to the question.
func annotateAttachments(question string, count int) string {
	if count <= 0 {
		return question
	}
	if count == 1 {
		return question + " [1 attachment]"
	}
	return question + " [" + util.IntToString(count) + " attachments]"
}
