package server

import (
	"context"

	"ycrdt/common"
	"ycrdt/crdt"
	"ycrdt/hooks"
	"ycrdt/persistence"

	"go.uber.org/zap"
)

// NewLoadFunc builds a LoadFunc that runs the load pipeline: hook chain,
// then persistence fetch, then construct Doc and apply stored state. The
// returned Doc is fresh with a random ClientID; the server is itself one
// replica among the document's editors.
func NewLoadFunc(store persistence.Store, hookPipeline *hooks.Pipeline) LoadFunc {
	return func(ctx context.Context, name string) (*crdt.Doc, error) {
		hc := &hooks.Context{Context: ctx, DocumentName: name}
		if res := hookPipeline.Fire("onLoadDocument", hc); res.Err != nil {
			return nil, res.Err
		}

		doc := crdt.NewDoc(common.NewClientID())
		data, ok, err := store.Fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := doc.ApplyUpdate(data); err != nil {
				return nil, err
			}
		}
		return doc, nil
	}
}

// NewUnloadFunc builds the unload callback passed to NewRegistry: it
// fires the "onUnloadDocument" hook, stops the entry's debouncer (which
// synchronously flushes any dirty state), and reports failures via
// logger rather than blocking shutdown on them.
func NewUnloadFunc(hookPipeline *hooks.Pipeline, logger *zap.Logger) func(ctx context.Context, e *DocumentEntry) {
	return func(ctx context.Context, e *DocumentEntry) {
		hc := &hooks.Context{Context: ctx, DocumentName: e.Name}
		hookPipeline.Fire("onUnloadDocument", hc)

		if e.Debouncer != nil {
			e.Debouncer.Stop(ctx)
		}
		e.Doc.Destroy()
		if logger != nil {
			logger.Info("document unloaded", zap.String("name", e.Name))
		}
	}
}

// AttachDebouncer wires a Store-backed Debouncer into entry, flushing
// entry.Doc.EncodeStateAsUpdate() on quiescence. Registry.Open calls
// this once, right after constructing a freshly loaded entry, when the
// Registry was built with a non-nil store.
func AttachDebouncer(e *DocumentEntry, store persistence.Store, cfg Config, logger *zap.Logger) {
	e.Debouncer = persistence.NewDebouncer(cfg.Debounce, cfg.MaxDebounce, func(ctx context.Context) {
		if err := store.StoreFull(ctx, e.Name, e.Doc.EncodeStateAsUpdate()); err != nil && logger != nil {
			logger.Error("debounced flush failed", zap.String("name", e.Name), zap.Error(err))
		}
	}, logger)
}
