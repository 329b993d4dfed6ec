package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/kilang-desa-murni/crm/internal/crmsync/bitrix"
	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/internal/crmsync/ingest"
	"github.com/kilang-desa-murni/crm/internal/crmsync/lock"
	"github.com/kilang-desa-murni/crm/internal/crmsync/reconcile"
	"github.com/kilang-desa-murni/crm/internal/crmsync/repository"
	"github.com/kilang-desa-murni/crm/internal/crmsync/reqctx"
	"github.com/kilang-desa-murni/crm/pkg/errors"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

// EntityConfigs maps the webhook event prefix Bitrix24 uses per entity kind
// to its verification config. Real portals name events ONCRMDEALADD,
// ONCRMDEALUPDATE, ONCRMDEALDELETE and the analogous LEAD/COMPANY/CONTACT
// triad; deletes always route through the tombstone path regardless of
// which create/update event accompanies them.
var EntityConfigs = map[domain.Kind]EntityConfig{
	domain.KindDeal:    {AllowedEvents: []string{"ONCRMDEALADD", "ONCRMDEALUPDATE", "ONCRMDEALDELETE"}},
	domain.KindLead:    {AllowedEvents: []string{"ONCRMLEADADD", "ONCRMLEADUPDATE", "ONCRMLEADDELETE"}},
	domain.KindCompany: {AllowedEvents: []string{"ONCRMCOMPANYADD", "ONCRMCOMPANYUPDATE", "ONCRMCOMPANYDELETE"}},
	domain.KindContact: {AllowedEvents: []string{"ONCRMCONTACTADD", "ONCRMCONTACTUPDATE", "ONCRMCONTACTDELETE"}},
}

var kindByEventPrefix = map[string]domain.Kind{
	"ONCRMDEAL":    domain.KindDeal,
	"ONCRMLEAD":    domain.KindLead,
	"ONCRMCOMPANY": domain.KindCompany,
	"ONCRMCONTACT": domain.KindContact,
}

func kindForEvent(event string) (domain.Kind, bool) {
	for prefix, kind := range kindByEventPrefix {
		if len(event) >= len(prefix) && event[:len(prefix)] == prefix {
			return kind, true
		}
	}
	return "", false
}

func isDeleteEvent(event string) bool {
	return len(event) >= 6 && event[len(event)-6:] == "DELETE"
}

// Handler implements the webhook intake pipeline (component I, §4.6):
// parse, verify, lock, dispatch to ingest + reconcile, respond.
type Handler struct {
	db       *sqlx.DB
	verifier *Verifier
	locks    *lock.Service
	log      *logger.Logger

	dealAdapter *bitrix.EntityAdapter[domain.Deal]
	deals       *repository.DealRepository
	engine      *reconcile.Engine
	timeline    *ingest.TimelineSyncer

	leadPipeline    *ingest.Pipeline[domain.Lead]
	companyPipeline *ingest.Pipeline[domain.Company]
	contactPipeline *ingest.Pipeline[domain.Contact]

	leads     *repository.LeadRepository
	companies *repository.CompanyRepository
	contacts  *repository.ContactRepository
}

func NewHandler(
	db *sqlx.DB,
	verifier *Verifier,
	locks *lock.Service,
	log *logger.Logger,
	dealAdapter *bitrix.EntityAdapter[domain.Deal],
	deals *repository.DealRepository,
	engine *reconcile.Engine,
	timeline *ingest.TimelineSyncer,
	leadPipeline *ingest.Pipeline[domain.Lead],
	companyPipeline *ingest.Pipeline[domain.Company],
	contactPipeline *ingest.Pipeline[domain.Contact],
	leads *repository.LeadRepository,
	companies *repository.CompanyRepository,
	contacts *repository.ContactRepository,
) *Handler {
	return &Handler{
		db: db, verifier: verifier, locks: locks, log: log,
		dealAdapter: dealAdapter, deals: deals, engine: engine, timeline: timeline,
		leadPipeline: leadPipeline, companyPipeline: companyPipeline, contactPipeline: contactPipeline,
		leads: leads, companies: companies, contacts: contacts,
	}
}

type successResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
}

type skippedResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Event      string `json:"event"`
	Timestamp  int64  `json:"timestamp"`
	Suggestion string `json:"suggestion"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// ServeHTTP implements the full §4.6 intake pipeline.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Detail: "could not parse form body"})
		return
	}

	tree, warnings := ParseForm(r.PostForm)
	for _, warn := range warnings {
		h.log.Warn().Str("warning", warn).Msg("webhook: form parse warning")
	}

	event := StringAt(tree, "event")
	ts, _ := Int64At(tree, "ts")

	kind, ok := kindForEvent(event)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Detail: "unrecognized event " + event})
		return
	}

	cfg := EntityConfigs[kind]
	if err := h.verifier.Verify(tree, cfg); err != nil {
		h.respondError(w, event, ts, err)
		return
	}

	entityID, ok := Int64At(tree, "data", "FIELDS", "ID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Detail: "data[FIELDS][ID] missing or not numeric"})
		return
	}
	id := domain.NewIntID(entityID)

	handle, err := h.locks.Acquire(ctx, id.String(), lock.Options{})
	if err != nil {
		writeJSON(w, http.StatusConflict, skippedResponse{
			Status: "skipped", Message: "entity is still processing", Event: event, Timestamp: ts,
			Suggestion: "retry after the lock's lease expires",
		})
		return
	}
	defer handle.Release(ctx)

	if isDeleteEvent(event) {
		if err := h.handleDelete(ctx, kind, id); err != nil {
			h.respondError(w, event, ts, err)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Status: "ok", Message: "entity tombstoned", Event: event, Timestamp: ts})
		return
	}

	skipped, err := h.handleUpsert(ctx, kind, id)
	if err != nil {
		h.respondError(w, event, ts, err)
		return
	}
	if skipped {
		writeJSON(w, http.StatusOK, successResponse{Status: "ok", Message: "deal not in main funnel", Event: event, Timestamp: ts})
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Status: "ok", Message: "entity synced", Event: event, Timestamp: ts})
}

func (h *Handler) handleDelete(ctx context.Context, kind domain.Kind, id domain.ExternalID) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "begin tx")
	}
	defer tx.Rollback()

	var tombErr error
	switch kind {
	case domain.KindDeal:
		tombErr = h.deals.SetDeletedInBitrix(ctx, tx, id, true)
	case domain.KindLead:
		tombErr = h.leads.SetDeletedInBitrix(ctx, tx, id, true)
	case domain.KindCompany:
		tombErr = h.companies.SetDeletedInBitrix(ctx, tx, id, true)
	case domain.KindContact:
		tombErr = h.contacts.SetDeletedInBitrix(ctx, tx, id, true)
	default:
		tombErr = errors.Newf(errors.ErrCodeValidation, "delete not supported for kind %s", kind)
	}
	if tombErr != nil {
		return tombErr
	}
	return tx.Commit()
}

// handleUpsert runs the ingest + (for deals) reconcile half of the
// pipeline. DB write happens before the CRM write; the timeline sync for
// deals runs fire-and-forget afterward.
func (h *Handler) handleUpsert(ctx context.Context, kind domain.Kind, id domain.ExternalID) (skipped bool, err error) {
	if kind != domain.KindDeal {
		return false, h.upsertPeripheral(ctx, kind, id)
	}

	crmDeal, err := h.fetchDeal(ctx, id)
	if err != nil {
		return false, err
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "begin tx")
	}
	defer tx.Rollback()

	rc := reqctx.New(tx)
	if crmDeal.CompanyExternalID != nil {
		ctx = repository.WithDependencyValue(ctx, "company", domain.NewIntID(*crmDeal.CompanyExternalID))
	}
	if crmDeal.ContactExternalID != nil {
		ctx = repository.WithDependencyValue(ctx, "contact", domain.NewIntID(*crmDeal.ContactExternalID))
	}
	ctx = repository.WithDependencyValue(ctx, "assigned_by", domain.NewIntID(crmDeal.AssignedByID))
	if err := h.deals.RelatedChecks(ctx, rc); err != nil {
		return false, err
	}

	dbDeal, err := h.deals.Get(ctx, id)
	if err != nil && errors.GetCode(err) != errors.ErrCodeNotFound {
		return false, err
	}
	if errors.GetCode(err) == errors.ErrCodeNotFound {
		dbDeal = nil
	}

	outcome, recErr := h.engine.Reconcile(ctx, crmDeal, dbDeal)
	if recErr != nil {
		if errors.GetCode(recErr) == errors.ErrCodeInvalidDealState {
			if len(outcome.CRMUpdate) > 0 {
				_ = h.dealAdapter.Update(ctx, id, outcome.CRMUpdate)
			}
			return false, recErr
		}
		return false, recErr
	}
	if outcome.Skipped {
		return true, tx.Commit()
	}
	if dbDeal != nil && crmDeal.StageSemanticID != domain.SemanticFail &&
		dbDeal.StatusDeal != domain.StatusNew && dbDeal.StatusDeal != domain.StatusAccepted {
		h.log.Info().Str("deal_id", id.String()).Str("status_deal", string(dbDeal.StatusDeal)).
			Msg("webhook: deal status has no stage rule, no clamp applied")
	}

	if outcome.FirstImport {
		outcome.DBUpdate.ApplyTo(crmDeal)
		if err := h.deals.Create(ctx, tx, crmDeal); err != nil {
			return false, err
		}
	} else if !outcome.DBUpdate.IsEmpty() {
		if err := h.deals.Update(ctx, tx, id, outcome.DBUpdate); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "commit")
	}

	if len(outcome.CRMUpdate) > 0 {
		if err := h.dealAdapter.Update(ctx, id, outcome.CRMUpdate); err != nil {
			h.log.Warn().Err(err).Str("deal_id", id.String()).Msg("webhook: CRM write-back failed")
		}
	}

	go h.timeline.Sync(context.Background(), "deal", id.Int)

	return false, nil
}

func (h *Handler) upsertPeripheral(ctx context.Context, kind domain.Kind, id domain.ExternalID) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "begin tx")
	}
	defer tx.Rollback()

	rc := reqctx.New(tx)
	var opErr error
	switch kind {
	case domain.KindLead:
		_, opErr = h.upsertVia(ctx, rc, h.leadPipeline, id)
	case domain.KindCompany:
		_, opErr = h.upsertVia(ctx, rc, h.companyPipeline, id)
	case domain.KindContact:
		_, opErr = h.upsertVia(ctx, rc, h.contactPipeline, id)
	default:
		return errors.Newf(errors.ErrCodeValidation, "unsupported entity kind %s", kind)
	}
	if opErr != nil {
		return opErr
	}
	return tx.Commit()
}

func (h *Handler) upsertVia(ctx context.Context, rc *reqctx.Context, p interface {
	Exists(ctx context.Context, rc *reqctx.Context, id domain.ExternalID) (bool, error)
	Import(ctx context.Context, rc *reqctx.Context, id domain.ExternalID) error
	Refresh(ctx context.Context, rc *reqctx.Context, id domain.ExternalID) error
}, id domain.ExternalID) (bool, error) {
	exists, err := p.Exists(ctx, rc, id)
	if err != nil {
		return false, err
	}
	if exists {
		return false, p.Refresh(ctx, rc, id)
	}
	return false, p.Import(ctx, rc, id)
}

func (h *Handler) fetchDeal(ctx context.Context, id domain.ExternalID) (*domain.Deal, error) {
	deal, err := h.dealAdapter.Get(ctx, id)
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeNotFound {
			return h.dealAdapter.GetDefault(id), nil
		}
		return nil, err
	}
	return deal, nil
}

func (h *Handler) respondError(w http.ResponseWriter, event string, ts int64, err error) {
	code := errors.GetCode(err)
	status := errors.GetHTTPStatus(err)

	switch code {
	case errors.ErrCodeLockAcquisition, errors.ErrCodeMaxRetries, errors.ErrCodeCyclicCall:
		writeJSON(w, http.StatusConflict, skippedResponse{
			Status: "skipped", Message: err.Error(), Event: event, Timestamp: ts,
			Suggestion: "retry shortly",
		})
		return
	case errors.ErrCodeDealNotInMainFunnel:
		writeJSON(w, http.StatusOK, successResponse{Status: "ok", Message: "deal not in main funnel", Event: event, Timestamp: ts})
		return
	}

	writeJSON(w, status, errorResponse{Error: string(code), Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
