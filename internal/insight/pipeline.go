// Package insight runs the per-file insight pipeline: fund the ledger,
// pick a provider, ask it for a category and summary, and persist the
// answer to storage and the vault.
package insight

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/inference"
	"github.com/concierge-labs/concierge/internal/ledger"
	"github.com/concierge-labs/concierge/internal/model"
	"github.com/concierge-labs/concierge/internal/persist"
	"github.com/concierge-labs/concierge/internal/provider"
	"github.com/concierge-labs/concierge/internal/store"
)

// ErrMissingParameters is returned when rootHash, fileName or content is empty.
var ErrMissingParameters = eris.New("insight: missing parameters")

// Funder keeps the prepaid ledger able to pay for a request.
type Funder interface {
	EnsureFunded(ctx context.Context, requiredUnits int64, opts ...ledger.FundOption) (ledger.Balance, error)
}

// Selector picks a provider.
type Selector interface {
	Select(ctx context.Context, c provider.Criteria) (provider.Selection, error)
}

// Invoker calls a provider.
type Invoker interface {
	Invoke(ctx context.Context, sel provider.Selection, fileName, content string) (inference.Answer, error)
}

// Settler reports a finished exchange back to the broker.
type Settler interface {
	ProcessResponse(ctx context.Context, provider, content, chatID string) (bool, error)
}

// Persister stores insights.
type Persister interface {
	Persist(ctx context.Context, rootHash, fileName, category, summary string) (persist.CIDs, error)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Funder    Funder
	Selector  Selector
	Invoker   Invoker
	Settler   Settler
	Persister Persister
	Store     store.Store
}

// Options tune a Pipeline.
type Options struct {
	RequiredUnits int64
	Criteria      provider.Criteria
}

// Pipeline runs insight requests. Each run is strictly sequential and is
// recorded in the store as it moves through its states.
type Pipeline struct {
	deps Deps
	opts Options
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	return &Pipeline{deps: deps, opts: opts}
}

// Validate checks that a request has everything the pipeline needs.
func Validate(req model.InsightRequest) error {
	var missing []string
	if strings.TrimSpace(req.RootHash) == "" {
		missing = append(missing, "rootHash")
	}
	if strings.TrimSpace(req.FileName) == "" {
		missing = append(missing, "fileName")
	}
	if req.Content == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrMissingParameters, "%s", strings.Join(missing, ", "))
	}
	return nil
}

// Run computes and persists insights for one file. On failure the vault is
// left untouched unless the failure happened after the vault write was
// attempted. Billing settlement problems become warnings on the result.
func (p *Pipeline) Run(ctx context.Context, req model.InsightRequest) (*model.InsightResult, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("root_hash", req.RootHash), zap.String("file", req.FileName))
	start := time.Now()

	run, err := p.deps.Store.CreateRun(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "insight: create run")
	}
	log = log.With(zap.String("run_id", run.ID))

	status := model.RunStatusIdle
	setStatus := func(s model.RunStatus) {
		status = s
		if err := p.deps.Store.UpdateRunStatus(ctx, run.ID, s); err != nil {
			log.Warn("insight: failed to update status", zap.String("status", string(s)), zap.Error(err))
		}
	}
	fail := func(err error) (*model.InsightResult, error) {
		log.Error("insight: run failed", zap.String("stage", string(status)), zap.Error(err))
		if ferr := p.deps.Store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); ferr != nil {
			log.Warn("insight: failed to record failure", zap.Error(ferr))
		}
		return nil, err
	}

	setStatus(model.RunStatusCheckingBalance)
	bal, err := p.deps.Funder.EnsureFunded(ctx, p.opts.RequiredUnits, ledger.OnTopUp(func() {
		setStatus(model.RunStatusToppingUp)
	}))
	if err != nil {
		return fail(err)
	}
	log.Info("insight: ledger funded",
		zap.String("available_units", bal.AvailableUnits.String()),
		zap.Bool("topped_up", bal.ToppedUp),
		zap.Bool("created", bal.Created),
	)

	setStatus(model.RunStatusSelectingProvider)
	sel, err := p.deps.Selector.Select(ctx, p.opts.Criteria)
	if err != nil {
		return fail(err)
	}

	setStatus(model.RunStatusInvoking)
	answer, err := p.deps.Invoker.Invoke(ctx, sel, req.FileName, req.Content)
	if err != nil {
		return fail(err)
	}

	result := &model.InsightResult{
		RunID:    run.ID,
		RootHash: req.RootHash,
		Category: answer.Category,
		Summary:  answer.Summary,
		AIRaw:    answer.Raw,
		Provider: sel.Provider,
		Model:    sel.Model,
	}
	if !answer.Structured {
		result.Warnings = append(result.Warnings, "model answer was not structured JSON; used fallback category")
	}
	result.Warnings = append(result.Warnings, p.settle(ctx, log, sel.Provider, answer)...)

	setStatus(model.RunStatusPersisting)
	cids, err := p.deps.Persister.Persist(ctx, req.RootHash, req.FileName, answer.Category, answer.Summary)
	if err != nil {
		return fail(err)
	}
	result.CategoryCID = cids.CategoryCID
	result.InsightsCID = cids.InsightsCID
	result.TxHash = cids.TxHash

	if err := p.deps.Store.CompleteRun(ctx, run.ID, result); err != nil {
		log.Warn("insight: failed to record result", zap.Error(err))
	}
	log.Info("insight: run complete",
		zap.String("category", result.Category),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// settle reports the exchange to the broker. It never fails the run.
func (p *Pipeline) settle(ctx context.Context, log *zap.Logger, providerID string, answer inference.Answer) []string {
	if p.deps.Settler == nil {
		return nil
	}
	verified, err := p.deps.Settler.ProcessResponse(ctx, providerID, answer.Raw, answer.ChatID)
	if err != nil {
		log.Warn("insight: process response failed", zap.Error(err))
		return []string{"process response: " + err.Error()}
	}
	if !verified {
		return []string{"provider response signature could not be verified"}
	}
	return nil
}
