// Package pipeline composes the per-request flow: tenant resolution,
// instruction assembly, capability exposure, engine execution, cost
// attribution, and durable recording. One Handle call serves one inbound
// message end to end.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/billing"
	"github.com/averbach/colloquy/pkg/config"
	"github.com/averbach/colloquy/pkg/engine"
	"github.com/averbach/colloquy/pkg/observability"
	"github.com/averbach/colloquy/pkg/prompt"
	"github.com/averbach/colloquy/pkg/record"
	"github.com/averbach/colloquy/pkg/tools"
	"github.com/averbach/colloquy/pkg/tools/directory"
	"github.com/averbach/colloquy/pkg/tools/semantic"
	"github.com/averbach/colloquy/pkg/transport"
)

const historyLimit = 20

// Pipeline holds the process-wide collaborators. Everything per-tenant
// is constructed fresh inside Handle; no tenant-derived state survives a
// request, so configuration edits take effect on the next message.
type Pipeline struct {
	resolver   *config.Resolver
	assembler  *prompt.Assembler
	engine     *engine.Engine
	attributor *billing.Attributor
	recorder   record.Recorder

	// Structured search collaborators; both nil disables the capability.
	dirStore directory.Store
	catalog  *directory.Catalog
	dirMax   int

	// Semantic search collaborators; nil embedder or backend disables it.
	embedder      semantic.Embedder
	vectors       semantic.VectorBackend
	semCollection string
	semMax        int
}

// Options wires a Pipeline.
type Options struct {
	Resolver   *config.Resolver
	Assembler  *prompt.Assembler
	Engine     *engine.Engine
	Attributor *billing.Attributor
	Recorder   record.Recorder

	DirectoryStore      directory.Store
	Catalog             *directory.Catalog
	DirectoryMaxResults int

	Embedder           semantic.Embedder
	VectorBackend      semantic.VectorBackend
	SemanticCollection string
	SemanticMaxResults int
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		resolver:      opts.Resolver,
		assembler:     opts.Assembler,
		engine:        opts.Engine,
		attributor:    opts.Attributor,
		recorder:      opts.Recorder,
		dirStore:      opts.DirectoryStore,
		catalog:       opts.Catalog,
		dirMax:        opts.DirectoryMaxResults,
		embedder:      opts.Embedder,
		vectors:       opts.VectorBackend,
		semCollection: opts.SemanticCollection,
		semMax:        opts.SemanticMaxResults,
	}
}

// Handle serves one message for one tenant. All outcomes are delivered
// through the writer; the returned error is reserved for transport-level
// write failures.
func (p *Pipeline) Handle(ctx context.Context, tenant config.Tenant, req *api.MessageRequest, w transport.ResponseWriter) error {
	requestID := transport.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = api.NewRequestID()
	}
	log := slog.With("request_id", requestID, "tenant", tenant.ID(), "session_id", req.SessionID)

	ac, err := p.resolver.Resolve(tenant)
	if err != nil {
		log.Warn("tenant resolution failed", "error", err.Error())
		return w.WriteError(ctx, transport.AsAPIError(err))
	}

	history, err := p.recorder.History(ctx, tenant.ID(), req.SessionID, historyLimit)
	if err != nil {
		// A history gap degrades the conversation, it does not fail it.
		log.Warn("loading session history failed", "error", err.Error())
		history = nil
	}

	executors, dirSearcher := p.buildExecutors(ac)

	assembled, err := p.assemble(ctx, ac, dirSearcher)
	if err != nil {
		log.Warn("instruction assembly failed", "error", err.Error())
		return w.WriteError(ctx, transport.AsAPIError(err))
	}
	log.Debug("instructions assembled", "breakdown", prompt.Describe(assembled.Fragments))

	engReq := &engine.Request{
		Model:        ac.Model,
		Instructions: assembled.Text,
		History:      history,
		Message:      req.Message,
		Executors:    executors,
		Temperature:  ac.Temperature,
		MaxTokens:    ac.MaxTokens,
	}

	var result *engine.Result
	if req.Stream {
		result, err = p.engine.RunStream(ctx, engReq, deltaSink{w: w})
	} else {
		result, err = p.engine.Run(ctx, engReq)
	}
	if err != nil {
		log.Error("engine run failed", "error", err.Error())
		p.persist(ctx, log, &record.RequestRecord{
			RequestID:    requestID,
			Tenant:       tenant.ID(),
			SessionID:    req.SessionID,
			Provider:     ac.Provider,
			Model:        ac.Model,
			Streamed:     req.Stream,
			Status:       record.StatusFailed,
			UserMessage:  req.Message,
			Instructions: assembled.Text,
			Fragments:    assembled.Fragments,
			Cost:         billing.CostBreakdown{Method: billing.MethodComputed, Failed: true},
			CreatedAt:    time.Now().UTC(),
		})
		return w.WriteError(ctx, transport.AsAPIError(err))
	}

	// Cost derivation happens exactly once, immediately before persistence.
	cost := p.attributor.Attribute(result.Usage, result.Streamed, ac.Provider, ac.Model)

	rec := &record.RequestRecord{
		RequestID:     requestID,
		Tenant:        tenant.ID(),
		SessionID:     req.SessionID,
		Provider:      ac.Provider,
		Model:         ac.Model,
		Streamed:      result.Streamed,
		Status:        recordStatus(result, cost),
		UserMessage:   req.Message,
		AssistantText: result.Text,
		Instructions:  assembled.Text,
		Fragments:     assembled.Fragments,
		ToolTraces:    result.Turn.ToolTraces,
		Usage:         result.Usage,
		Cost:          cost,
		CreatedAt:     time.Now().UTC(),
	}
	p.persist(ctx, log, rec)

	if result.Status == engine.StatusCancelled {
		// The client is gone; nothing left to write.
		log.Info("run cancelled by client", "rounds", result.Rounds)
		return nil
	}

	if req.Stream {
		return w.WriteDone(ctx)
	}
	return w.WriteReply(ctx, &api.Reply{
		RequestID: requestID,
		SessionID: req.SessionID,
		Text:      result.Text,
		Usage:     &result.Usage,
	})
}

// buildExecutors constructs the tenant-scoped capability executors for
// one request.
func (p *Pipeline) buildExecutors(ac *config.AgentConfig) ([]tools.Executor, *directory.Searcher) {
	var executors []tools.Executor
	var dirSearcher *directory.Searcher

	if p.dirStore != nil && p.catalog != nil && len(ac.Collections) > 0 {
		dirSearcher = directory.NewSearcher(p.dirStore, p.catalog, ac.Collections, p.dirMax)
		if dirSearcher.Enabled() {
			executors = append(executors, dirSearcher)
		} else {
			dirSearcher = nil
		}
	}

	if ac.SemanticSearch && p.embedder != nil && p.vectors != nil {
		executors = append(executors, semantic.NewSearcher(p.embedder, p.vectors, p.semCollection, p.semMax))
	}

	return executors, dirSearcher
}

// assemble renders the live capability documentation and concatenates the
// instruction fragments. Documentation failures degrade to an assembly
// without the docs fragment.
func (p *Pipeline) assemble(ctx context.Context, ac *config.AgentConfig, dirSearcher *directory.Searcher) (*api.Prompt, error) {
	var docs string
	if dirSearcher != nil {
		rendered, err := dirSearcher.RenderDocs(ctx)
		if err != nil {
			slog.Warn("rendering directory docs failed", "tenant", ac.Tenant.ID(), "error", err.Error())
		} else {
			docs = rendered
		}
	}
	return p.assembler.Assemble(ac, docs)
}

// persist writes the audit record. Persistence failures are logged and
// counted, never propagated: the answer has already been delivered and
// must not be retracted over a billing gap.
func (p *Pipeline) persist(ctx context.Context, log *slog.Logger, rec *record.RequestRecord) {
	// The request context may already be cancelled (client disconnect);
	// the record is written regardless, on a short deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.recorder.Record(writeCtx, rec); err != nil {
		observability.RecordWritesTotal.WithLabelValues("error").Inc()
		log.Error("persisting request record failed, billing gap",
			"status", string(rec.Status),
			"cost_total", rec.Cost.Total.String(),
			"error", err.Error(),
		)
		return
	}
	observability.RecordWritesTotal.WithLabelValues("ok").Inc()
}

// recordStatus maps an engine outcome and its cost derivation to the
// audit status.
func recordStatus(result *engine.Result, cost billing.CostBreakdown) record.Status {
	if result.Status == engine.StatusCancelled {
		return record.StatusClientCancelled
	}
	if cost.Method == billing.MethodComputed {
		return record.StatusFallbackCost
	}
	return record.StatusCompleted
}

// deltaSink adapts the transport writer to the engine's sink interface.
type deltaSink struct {
	w transport.ResponseWriter
}

func (s deltaSink) WriteDelta(ctx context.Context, delta string) error {
	return s.w.WriteDelta(ctx, delta)
}
