package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/orderpilot/orderpilot/pkg/profile"
	"github.com/orderpilot/orderpilot/pkg/remote"
	"github.com/orderpilot/orderpilot/pkg/telemetry"
)

// Catalog resolves article codes to variants and validates quantities
// against packaging rules.
type Catalog interface {
	// SelectVariant returns the variant for code at the given quantity,
	// or nil when the code is unknown.
	SelectVariant(ctx context.Context, code string, quantity int) (*VariantDescriptor, error)

	// ValidateQuantity checks quantity against the variant's rules.
	ValidateQuantity(ctx context.Context, variant *VariantDescriptor, quantity int) (*QuantityValidation, error)
}

// CredentialCache persists reusable authentication state between runs.
// The engine consumes it only at run start; the blob is opaque here.
type CredentialCache interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, state []byte) error
	Clear(ctx context.Context) error
}

// Selectors addresses the remote order-entry view. Defaults match the
// vendor grid's rendering contract; deployments override per theme.
type Selectors struct {
	ItemsGrid     string
	SearchBox     string
	SearchQuery   string
	QuantityField string
	DiscountField string
	ErrorSummary  string
	CustomerField string
}

// DefaultSelectors returns the selector set for the stock view.
func DefaultSelectors() Selectors {
	return Selectors{
		ItemsGrid:     "#gvOrderLines",
		SearchBox:     "#btnArticleLookup",
		SearchQuery:   "#txtArticleSearch",
		QuantityField: "#txtQuantity",
		DiscountField: "#txtDiscount",
		ErrorSummary:  ".dxgvError, #lblOrderError",
		CustomerField: "#txtCustomer",
	}
}

// BuilderConfig tunes the state machine.
type BuilderConfig struct {
	// OrdersURL is the order-entry view the run navigates to first.
	OrdersURL string

	// StepTimeout bounds every remote-affecting step.
	StepTimeout time.Duration

	// StablePolls is the consecutive-clean-poll requirement passed to the
	// quiescence detector.
	StablePolls int

	// MaxSearchPages bounds variant-search pagination.
	MaxSearchPages int

	// QuantityAttempts bounds the type-and-verify cycle for quantities.
	QuantityAttempts int

	// DiscountAttempts bounds the type-and-verify cycle for discounts.
	DiscountAttempts int

	// ReportDir receives the performance report artifacts of every run.
	ReportDir string

	// Selectors addresses the remote view.
	Selectors Selectors
}

func (c *BuilderConfig) applyDefaults() {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 30 * time.Second
	}
	if c.StablePolls <= 0 {
		c.StablePolls = remote.DefaultStablePolls
	}
	if c.MaxSearchPages <= 0 {
		c.MaxSearchPages = 10
	}
	if c.QuantityAttempts <= 0 {
		c.QuantityAttempts = 2
	}
	if c.DiscountAttempts <= 0 {
		c.DiscountAttempts = 3
	}
	if c.ReportDir == "" {
		c.ReportDir = "reports"
	}
	if c.Selectors == (Selectors{}) {
		c.Selectors = DefaultSelectors()
	}
}

// Builder constructs orders against the remote surface. One Builder may
// serve concurrent BuildOrder calls; each call owns its own session,
// recorder, and counters.
type Builder struct {
	pool    *remote.Pool
	catalog Catalog
	creds   CredentialCache
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	cfg     BuilderConfig
}

// NewBuilder creates an order builder.
func NewBuilder(
	pool *remote.Pool,
	catalog Catalog,
	creds CredentialCache,
	logger *telemetry.Logger,
	metrics *telemetry.Metrics,
	tracer *telemetry.Tracer,
	cfg BuilderConfig,
) *Builder {
	cfg.applyDefaults()
	return &Builder{
		pool:    pool,
		catalog: catalog,
		creds:   creds,
		logger:  logger.NewComponentLogger("builder"),
		metrics: metrics,
		tracer:  tracer,
		cfg:     cfg,
	}
}

// run is the state of one order-construction run. All mutable counters
// live here, never on the Builder, so concurrent runs cannot interfere.
type run struct {
	b        *Builder
	id       string
	order    *OrderData
	session  *remote.Session
	surface  remote.Surface
	detector *remote.Detector
	dispatch *remote.Dispatcher
	recorder *profile.Recorder
	logger   *telemetry.Logger
	result   *OrderResult

	// retriedItems tracks which items already consumed their one retry.
	retriedItems map[string]bool
}

// BuildOrder drives the full order onto the remote surface. Line items
// are processed strictly in input order; rows already saved remotely
// survive a failed run, so partial completion is a documented outcome
// rather than a silent rollback. The performance report is written on
// every outcome.
func (b *Builder) BuildOrder(ctx context.Context, order *OrderData) (result *OrderResult, err error) {
	runID := uuid.New().String()
	r := &run{
		b:        b,
		id:       runID,
		order:    order,
		recorder: profile.NewRecorder(runID),
		logger:   b.logger.WithRunID(runID),
		result: &OrderResult{
			StartedAt: time.Now(),
		},
		retriedItems: make(map[string]bool),
	}

	b.metrics.RecordRunStarted()
	ctx, span := b.tracer.StartRunSpan(ctx, runID, order.CustomerName)
	defer span.End()

	defer func() {
		r.result.CompletedAt = time.Now()
		status := string(RunStatusSucceeded)
		if err != nil {
			status = string(RunStatusFailed)
			if r.result.RowsSaved > 0 {
				status = string(RunStatusPartial)
			}
			telemetry.RecordError(span, err)
			r.recordErrorMetrics(err)
		} else {
			telemetry.RecordSuccess(span)
		}
		b.metrics.RecordRunCompleted(status, r.result.CompletedAt.Sub(r.result.StartedAt))

		if r.session != nil {
			b.pool.Release(runID, r.session, err == nil)
		}

		// Always written, success or failure, so the failing step is
		// inspectable after the fact.
		if werr := profile.WriteArtifacts(b.cfg.ReportDir, r.recorder.Summarize(), r.recorder.Records()); werr != nil {
			r.logger.WithError(werr).Warn("failed to write report artifacts")
		}
	}()

	if err = r.start(ctx); err != nil {
		return r.result, err
	}

	for i := range order.Items {
		if err = r.buildItem(ctx, i); err != nil {
			r.abortDiagnostics(ctx, err)
			return r.result, err
		}
	}

	if err = r.commitOrder(ctx); err != nil {
		r.abortDiagnostics(ctx, err)
		return r.result, err
	}

	r.logger.WithField("order_id", r.result.OrderID).
		WithField("rows_saved", r.result.RowsSaved).
		Info("order constructed")
	return r.result, nil
}

// start acquires a session, consumes cached credentials, and navigates to
// the order-entry view.
func (r *run) start(ctx context.Context) error {
	err := r.recorder.Run(ctx, "session.acquire", profile.CategorySession, nil, func(ctx context.Context) error {
		session, err := r.b.pool.Acquire(ctx, r.id)
		if err != nil {
			return NewTimeoutError("failed to acquire session", err).
				WithCode(ErrCodeSessionLost)
		}
		r.session = session
		r.surface = session.Surface
		return nil
	})
	if err != nil {
		return err
	}

	r.detector = remote.NewDetector(r.logger, []remote.BusyProber{
		remote.LoadingPanelProber{Surface: r.surface},
		remote.CallbackProber{
			Surface:  r.surface,
			Controls: []string{"gvOrderLines", "lookupArticle", "lookupArticle_grid"},
		},
	}, remote.WithDetectorMetrics(r.b.metrics))
	r.dispatch = remote.NewDispatcher(r.surface, r.detector, r.logger,
		remote.WithDispatcherMetrics(r.b.metrics))

	err = r.recorder.Run(ctx, "session.auth", profile.CategorySession, nil, func(ctx context.Context) error {
		if r.b.creds == nil {
			return nil
		}
		state, err := r.b.creds.Load(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("credential cache unreadable, continuing without")
			return nil
		}
		if len(state) == 0 {
			r.logger.Debug("no cached authentication state")
		}
		return nil
	})
	if err != nil {
		return err
	}

	return r.step(ctx, "", StepAdvance, "navigate.orders", profile.CategoryNavigation, nil, func(ctx context.Context) error {
		if err := r.surface.Navigate(ctx, r.b.cfg.OrdersURL); err != nil {
			return err
		}
		r.waitIdle(ctx)
		return r.surface.Fill(ctx, r.b.cfg.Selectors.CustomerField, r.order.CustomerName)
	})
}

// buildItem drives one line item through the step sequence, entering the
// bounded retry/resume policy on a timeout.
func (r *run) buildItem(ctx context.Context, index int) error {
	item := &r.order.Items[index]
	ctx, span := r.b.tracer.StartItemSpan(ctx, item.ArticleCode, index)
	defer span.End()

	err := r.processItem(ctx, index, 0)
	if err == nil {
		return nil
	}
	if !IsRecoverable(err) || r.retriedItems[item.ArticleCode] {
		return err
	}

	// Timeout-class failure with the retry budget unspent.
	r.retriedItems[item.ArticleCode] = true
	r.result.ItemsRetried = append(r.result.ItemsRetried, item.ArticleCode)
	r.b.metrics.RecordItemRetried()
	r.logger.WithItem(item.ArticleCode).WithError(err).Warn("timeout, entering retry/resume")

	recovered, rerr := r.resume(ctx, index)
	if rerr != nil {
		return rerr
	}
	if recovered {
		// The row was committed before the timeout fired; re-submitting
		// would duplicate it.
		return nil
	}
	return r.processItem(ctx, index, 1)
}

// processItem runs the per-item step sequence once.
func (r *run) processItem(ctx context.Context, index, attempt int) error {
	item := &r.order.Items[index]
	code := item.ArticleCode
	sel := r.b.cfg.Selectors

	// SelectVariant: resolve the article against the catalog before
	// touching the remote surface.
	var variant *VariantDescriptor
	err := r.stepAttempt(ctx, code, StepSelectVariant, "catalog.select_variant", profile.CategorySearch, attempt,
		profile.Meta("item", code), func(ctx context.Context) error {
			v, err := r.b.catalog.SelectVariant(ctx, code, item.RequestedQuantity)
			if err != nil {
				return err
			}
			if v == nil {
				return NewNotFoundError(
					fmt.Sprintf("article %q not found in catalog", code), nil).
					WithCode(ErrCodeArticleUnknown).WithItem(code)
			}
			check, err := r.b.catalog.ValidateQuantity(ctx, v, item.RequestedQuantity)
			if err != nil {
				return err
			}
			if !check.Valid {
				return NewValidationError(
					fmt.Sprintf("quantity %d rejected for variant %s: %v",
						item.RequestedQuantity, v.ID, check.Errors), nil).
					WithCode(ErrCodeQuantityInvalid).WithItem(code).
					WithDetail("suggestions", check.Suggestions)
			}
			variant = v
			return nil
		})
	if err != nil {
		return err
	}

	// OpenSearch: add a fresh row and open the article lookup.
	err = r.stepAttempt(ctx, code, StepOpenSearch, "item.open_search", profile.CategorySearch, attempt,
		profile.Meta("item", code), func(ctx context.Context) error {
			if _, err := r.dispatch.IssueCommand(ctx, remote.CommandAddRow, "gvOrderLines", r.b.cfg.StepTimeout); err != nil {
				return r.mapDispatchErr(err, code, StepOpenSearch)
			}
			if err := r.surface.Click(ctx, sel.SearchBox); err != nil {
				return err
			}
			r.waitIdle(ctx)
			return nil
		})
	if err != nil {
		return err
	}

	// TypeQuery: type the article code into the lookup filter.
	err = r.stepAttempt(ctx, code, StepTypeQuery, "item.type_query", profile.CategorySearch, attempt,
		profile.Meta("item", code), func(ctx context.Context) error {
			if err := r.surface.Fill(ctx, sel.SearchQuery, code); err != nil {
				return err
			}
			r.waitIdle(ctx)
			return nil
		})
	if err != nil {
		return err
	}

	// MatchAndSelect: disambiguate the variant from paginated snapshots.
	if err := r.matchAndSelect(ctx, item, variant, attempt); err != nil {
		return err
	}

	// CommitQuantity and CommitDiscount share one field-commit policy:
	// read first and skip the write when the remote side already holds
	// the wanted value, otherwise type-and-verify a bounded number of
	// times.
	wanted := strconv.Itoa(item.RequestedQuantity)
	err = r.stepAttempt(ctx, code, StepCommitQuantity, "item.commit_quantity", profile.CategoryCommit, attempt,
		profile.Meta("item", code).And("field", "quantity"), func(ctx context.Context) error {
			committed, err := r.commitField(ctx, sel.QuantityField, wanted, r.b.cfg.QuantityAttempts)
			if err != nil {
				return err
			}
			if !committed {
				return NewRemoteRejectionError(
					fmt.Sprintf("quantity %s not accepted after %d attempts", wanted, r.b.cfg.QuantityAttempts), nil).
					WithCode(ErrCodeCommitRejected).WithItem(code)
			}
			return nil
		})
	if err != nil {
		return err
	}

	if discount, ok := r.itemDiscount(item); ok {
		err = r.stepAttempt(ctx, code, StepCommitDiscount, "item.commit_discount", profile.CategoryCommit, attempt,
			profile.Meta("item", code).And("field", "discount"), func(ctx context.Context) error {
				committed, err := r.commitField(ctx, sel.DiscountField, formatDiscount(discount), r.b.cfg.DiscountAttempts)
				if err != nil {
					return err
				}
				if !committed {
					// A missing discount degrades the order but does not
					// block it.
					warning := fmt.Sprintf("discount %s not set on item %s after %d attempts",
						formatDiscount(discount), code, r.b.cfg.DiscountAttempts)
					r.result.Warnings = append(r.result.Warnings, warning)
					r.logger.WithItem(code).Warn(warning)
				}
				return nil
			})
		if err != nil {
			return err
		}
	}

	// SaveRow: persist the row and verify the remote side accepted it.
	err = r.stepAttempt(ctx, code, StepSaveRow, "item.save_row", profile.CategoryCommit, attempt,
		profile.Meta("item", code), func(ctx context.Context) error {
			if _, err := r.dispatch.IssueCommand(ctx, remote.CommandSaveRow, "gvOrderLines", r.b.cfg.StepTimeout); err != nil {
				return r.mapDispatchErr(err, code, StepSaveRow)
			}
			if msg := r.remoteErrorText(ctx); msg != "" {
				return NewRemoteRejectionError(
					fmt.Sprintf("remote rejected row: %s", msg), nil).
					WithCode(ErrCodeCommitRejected).WithItem(code)
			}
			r.result.RowsSaved++
			r.b.metrics.RecordRowSaved()
			return nil
		})
	if err != nil {
		return err
	}

	r.logger.WithItem(code).WithField("variant", item.ArticleID).Debug("line item saved")
	return nil
}

// matchAndSelect pages through the lookup grid until a candidate row
// satisfies the matcher, bounded by MaxSearchPages.
func (r *run) matchAndSelect(ctx context.Context, item *OrderLineItem, variant *VariantDescriptor, attempt int) error {
	code := item.ArticleCode
	expected := ExpectedFromVariant(variant)

	return r.stepAttempt(ctx, code, StepMatchAndSelect, "item.match_select", profile.CategorySearch, attempt,
		profile.Meta("item", code).And("variant", variant.ID), func(ctx context.Context) error {
			for page := 0; page < r.b.cfg.MaxSearchPages; page++ {
				html, err := r.surface.HTML(ctx, r.b.cfg.Selectors.ItemsGrid+"_lookup")
				if err != nil {
					return err
				}
				snap, err := remote.ParseTableSnapshot(html)
				if err != nil {
					return err
				}

				match, ok := ChooseBestCandidate(snap.Captions, snap.Rows, expected)
				if ok {
					if match.LowConfidence {
						r.logger.WithItem(code).
							WithField("reason", string(match.Reason)).
							Warn("variant selected with low confidence")
					}
					rowSel := fmt.Sprintf("%s_lookup tr.dxgvDataRow:nth-of-type(%d)",
						r.b.cfg.Selectors.ItemsGrid, match.RowIndex+1)
					if err := r.surface.Click(ctx, rowSel); err != nil {
						return err
					}
					r.waitIdle(ctx)

					item.ArticleID = variant.ID
					item.PackageContent = variant.PackageContent
					return nil
				}

				if !snap.HasNextPage {
					break
				}
				if _, err := r.dispatch.IssueCommand(ctx, remote.CommandNextPage, "lookupArticle_grid", r.b.cfg.StepTimeout); err != nil {
					return r.mapDispatchErr(err, code, StepMatchAndSelect)
				}
			}

			return NewNotFoundError(
				fmt.Sprintf("no candidate row matched variant %s", variant.ID), nil).
				WithCode(ErrCodeVariantNotFound).
				WithItem(code).
				WithStep(string(StepMatchAndSelect)).
				WithDetail("expected_id", expected.ID).
				WithDetail("expected_suffix", expected.Suffix).
				WithDetail("expected_package", expected.PackageContent).
				WithDetail("pages_searched", r.b.cfg.MaxSearchPages)
		})
}

// commitField applies the unified field-commit policy: skip the write if
// the remote side already holds the wanted value, otherwise select-all,
// type, wait for quiescence, re-read, and repeat up to maxAttempts.
// Returns false when the value never verified.
func (r *run) commitField(ctx context.Context, selector, wanted string, maxAttempts int) (bool, error) {
	current, err := r.surface.ReadValue(ctx, selector)
	if err != nil {
		return false, err
	}
	if valuesEqual(current, wanted) {
		// Idempotent no-op; rewriting an already-correct value only
		// triggers needless remote validation churn.
		return true, nil
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := r.surface.Fill(ctx, selector, wanted); err != nil {
			return false, err
		}
		r.waitIdle(ctx)
		current, err = r.surface.ReadValue(ctx, selector)
		if err != nil {
			return false, err
		}
		if valuesEqual(current, wanted) {
			return true, nil
		}
	}
	return false, nil
}

// resume implements the reload half of the retry/resume policy: capture a
// diagnostic snapshot, reload the session, re-resolve the grid, and count
// durably saved rows. recovered=true means this item's row was committed
// before the timeout fired and must not be re-submitted.
func (r *run) resume(ctx context.Context, index int) (recovered bool, err error) {
	item := r.order.Items[index]
	code := item.ArticleCode

	r.captureSnapshot(ctx, "retry-"+code)

	err = r.recorder.RunAttempt(ctx, "recover.reload", profile.CategoryRecovery, 1,
		profile.Meta("item", code), func(ctx context.Context) error {
			if err := r.surface.Reload(ctx); err != nil {
				return NewTimeoutError("reload failed during recovery", err).
					WithCode(ErrCodeSessionLost).WithItem(code)
			}
			r.waitIdle(ctx)

			// Re-resolve the structural handle to the line-items grid; a
			// reload regenerates every element id.
			els, err := r.surface.Query(ctx, r.b.cfg.Selectors.ItemsGrid)
			if err != nil {
				return err
			}
			if len(els) == 0 {
				return NewNotFoundError("line-items grid missing after reload", nil).
					WithItem(code).WithStep(string(StepRetrying))
			}
			return nil
		})
	if err != nil {
		return false, err
	}

	saved, err := r.countSavedRows(ctx)
	if err != nil {
		return false, err
	}
	if saved >= index+1 {
		// The commit won the race against its own acknowledgment.
		r.logger.WithItem(code).
			WithField("rows", saved).
			Info("row already persisted, skipping re-submit")
		r.result.RowsSaved = saved
		return true, nil
	}

	// Not persisted: position at the end of the grid and re-enter the
	// normal flow with a fresh row.
	err = r.recorder.RunAttempt(ctx, "recover.reposition", profile.CategoryRecovery, 1,
		profile.Meta("item", code).And("rows", strconv.Itoa(saved)), func(ctx context.Context) error {
			if _, err := r.dispatch.IssueCommand(ctx, remote.CommandLastPage, "gvOrderLines", r.b.cfg.StepTimeout); err != nil {
				return r.mapDispatchErr(err, code, StepRetrying)
			}
			return nil
		})
	if err != nil {
		return false, err
	}
	return false, nil
}

// commitOrder saves the order header and extracts the order identifier.
func (r *run) commitOrder(ctx context.Context) error {
	return r.step(ctx, "", StepAdvance, "order.commit", profile.CategoryCommit, nil, func(ctx context.Context) error {
		if _, err := r.dispatch.IssueCommand(ctx, remote.CommandSave, "btnSaveOrder", r.b.cfg.StepTimeout); err != nil {
			return r.mapDispatchErr(err, "", StepAdvance)
		}
		if msg := r.remoteErrorText(ctx); msg != "" {
			return NewRemoteRejectionError(
				fmt.Sprintf("remote rejected order: %s", msg), nil).
				WithCode(ErrCodeCommitRejected)
		}

		html, err := r.surface.HTML(ctx, "")
		if err == nil {
			if id := remote.ExtractOrderNumber(html); id != "" {
				r.result.OrderID = id
				return nil
			}
		}

		// Degraded mode: the order is committed but its identifier is not
		// extractable; synthesize one so downstream bookkeeping can
		// proceed and flag the result.
		r.result.OrderID = fmt.Sprintf("ORDER-%d", time.Now().Unix())
		r.result.Synthesized = true
		warning := "order id not extractable, synthesized " + r.result.OrderID
		r.result.Warnings = append(r.result.Warnings, warning)
		r.logger.Warn(warning)
		return nil
	})
}

// countSavedRows counts durably saved rows in the line-items grid.
func (r *run) countSavedRows(ctx context.Context) (int, error) {
	html, err := r.surface.HTML(ctx, r.b.cfg.Selectors.ItemsGrid)
	if err != nil {
		return 0, err
	}
	snap, err := remote.ParseTableSnapshot(html)
	if err != nil {
		return 0, err
	}
	return len(snap.Rows), nil
}

// remoteErrorText returns the visible validation/error text, "" when none.
func (r *run) remoteErrorText(ctx context.Context) string {
	els, err := r.surface.Query(ctx, r.b.cfg.Selectors.ErrorSummary)
	if err != nil {
		return ""
	}
	for _, el := range els {
		if el.Visible && el.Text != "" {
			return el.Text
		}
	}
	return ""
}

// abortDiagnostics captures a best-effort snapshot before a propagated
// failure. Snapshot failures are swallowed and never mask the original
// error.
func (r *run) abortDiagnostics(ctx context.Context, cause error) {
	var e *Error
	if errors.As(cause, &e) {
		r.b.metrics.RecordError(string(e.Class), e.Code)
	}
	r.captureSnapshot(ctx, "abort")
}

func (r *run) captureSnapshot(ctx context.Context, label string) {
	if r.surface == nil {
		return
	}
	png, err := r.surface.Screenshot(ctx)
	if err != nil {
		r.logger.WithError(err).Debug("diagnostic snapshot failed")
		return
	}
	path := filepath.Join(r.b.cfg.ReportDir, fmt.Sprintf("run-%s-%s.png", r.id, label))
	if err := os.MkdirAll(r.b.cfg.ReportDir, 0755); err != nil {
		return
	}
	if err := os.WriteFile(path, png, 0644); err != nil {
		r.logger.WithError(err).Debug("diagnostic snapshot not written")
	}
}

// step wraps one remote-affecting transition: recorder bracket, tracer
// span, step metrics, and a quiescence guard before the body runs.
func (r *run) step(ctx context.Context, item string, step ItemStep, name, category string, meta profile.Metadata, body func(context.Context) error) error {
	return r.stepAttempt(ctx, item, step, name, category, 0, meta, body)
}

func (r *run) stepAttempt(ctx context.Context, item string, step ItemStep, name, category string, attempt int, meta profile.Metadata, body func(context.Context) error) error {
	ctx, span := r.b.tracer.StartStepSpan(ctx, string(step))
	defer span.End()

	stepCtx, cancel := context.WithTimeout(ctx, r.b.cfg.StepTimeout)
	defer cancel()

	start := time.Now()
	meta = append(meta, profile.MetaKV{Key: "step", Value: string(step)})
	err := r.recorder.RunAttempt(stepCtx, name, category, attempt, meta, func(ctx context.Context) error {
		r.waitIdle(ctx)
		err := body(ctx)
		if err == nil && stepCtx.Err() != nil {
			err = NewTimeoutError("step deadline expired", stepCtx.Err()).
				WithCode(ErrCodeStepTimeout).WithItem(item).WithStep(string(step))
		}
		return err
	})

	status := "ok"
	if err != nil {
		status = "error"
		telemetry.RecordError(span, err)
	}
	r.b.metrics.RecordStep(string(step), status, time.Since(start))
	return err
}

func (r *run) waitIdle(ctx context.Context) {
	r.detector.WaitIdle(ctx, r.b.cfg.StepTimeout, r.b.cfg.StablePolls)
}

// mapDispatchErr folds dispatcher errors into the engine taxonomy.
func (r *run) mapDispatchErr(err error, item string, step ItemStep) error {
	var nf *remote.CommandNotFoundError
	if errors.As(err, &nf) {
		return NewNotFoundError(nf.Error(), nil).
			WithCode(ErrCodeCommandNotFound).
			WithItem(item).
			WithStep(string(step))
	}
	return err
}

func (r *run) recordErrorMetrics(err error) {
	var e *Error
	if errors.As(err, &e) {
		r.b.metrics.RecordError(string(e.Class), e.Code)
	}
}

// itemDiscount resolves the effective discount for an item: the item's
// own override, else the order-level discount, else none.
func (r *run) itemDiscount(item *OrderLineItem) (float64, bool) {
	if item.DiscountPercent != nil {
		return *item.DiscountPercent, *item.DiscountPercent > 0
	}
	return r.order.DiscountPercent, r.order.DiscountPercent > 0
}

func formatDiscount(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

// valuesEqual compares remote field values tolerating the grid's numeric
// rendering.
func valuesEqual(a, b string) bool {
	return numericEqual(a, b)
}
