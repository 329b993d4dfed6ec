// Package siterequest implements the site-request handler (component M,
// §4.9): given a phone number and a product of interest, resolve an owning
// contact or company, assign it (or a freshly created contact) to a
// manager, create a deal, attach the requested product, and post a
// timeline note. A failed owner, product or timeline step does not stop the
// others; a failed deal creation ends the run.
package siterequest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kilang-desa-murni/crm/internal/crmsync/bitrix"
	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/pkg/logger"
	"github.com/kilang-desa-murni/crm/pkg/validator"
)

// Request is the inbound site-request payload.
type Request struct {
	Phone       string `validate:"required,phone"`
	ProductID   string // catalog XML_ID
	ProductName string
	Name        string
	Comment     string
	MessageID   string
}

// Result reports a success flag per step. A failed owner, product or
// timeline step does not abort the others; a failed deal creation ends the
// run and leaves the later flags false.
type Result struct {
	OwnerResolved   bool
	OwnerCreated    bool
	DealCreated     bool
	DealExternalID  domain.ExternalID
	ProductAttached bool
	TimelinePosted  bool
}

// Handler runs the site-request pipeline against CRM and the configured
// manager pool.
type Handler struct {
	client    *bitrix.Client
	deals     *bitrix.EntityAdapter[domain.Deal]
	contacts  *bitrix.EntityAdapter[domain.Contact]
	companies *bitrix.EntityAdapter[domain.Company]
	products  *bitrix.ProductAdapter
	timeline  *bitrix.TimelineAdapter
	managers  []int64 // configured manager pool, in tie-break order
	validate  *validator.Validator
	log       *logger.Logger
}

func NewHandler(
	client *bitrix.Client,
	deals *bitrix.EntityAdapter[domain.Deal],
	contacts *bitrix.EntityAdapter[domain.Contact],
	companies *bitrix.EntityAdapter[domain.Company],
	products *bitrix.ProductAdapter,
	timeline *bitrix.TimelineAdapter,
	managers []int64,
	log *logger.Logger,
) *Handler {
	return &Handler{
		client: client, deals: deals, contacts: contacts, companies: companies, products: products,
		timeline: timeline, managers: managers, validate: validator.New(), log: log,
	}
}

// Handle runs the full §4.9 pipeline for one site request.
func (h *Handler) Handle(ctx context.Context, req Request) Result {
	var result Result

	if err := h.validate.Validate(req); err != nil {
		h.log.Warn().Err(err).Msg("siterequest: rejected invalid request")
		return result
	}

	ownerType, ownerID, managerID := h.resolveOwner(ctx, req, &result)

	dealID, err := h.createDeal(ctx, req, ownerType, ownerID, managerID)
	if err != nil {
		h.log.Warn().Err(err).Str("phone", req.Phone).Msg("siterequest: deal creation failed")
		return result
	}
	result.DealCreated = true
	result.DealExternalID = dealID

	productName := h.attachProduct(ctx, req, dealID, &result)

	h.postTimelineNote(ctx, dealID, req.Comment, productName, &result)

	return result
}

// resolveOwner implements §4.9 step 1: duplicate-by-comm, falling back to
// the least-loaded manager and a freshly created contact.
func (h *Handler) resolveOwner(ctx context.Context, req Request, result *Result) (ownerType string, ownerID int64, managerID int64) {
	match, err := bitrix.FindDuplicateByComm(ctx, h.client, domain.ChannelPhone, []string{req.Phone})
	if err != nil {
		h.log.Warn().Err(err).Msg("siterequest: duplicate search failed")
	} else {
		if len(match.ContactIDs) > 0 {
			id := domain.NewIntID(match.ContactIDs[0])
			if contact, err := h.contacts.Get(ctx, id); err == nil {
				result.OwnerResolved = true
				return "CONTACT", id.Int, contact.AssignedByID
			}
		}
		if len(match.CompanyIDs) > 0 {
			companyID := match.CompanyIDs[0]
			result.OwnerResolved = true
			if company, err := h.companies.Get(ctx, domain.NewIntID(companyID)); err == nil {
				return "COMPANY", companyID, company.AssignedByID
			}
			h.log.Warn().Msg("siterequest: matched company load failed, falling back to least-loaded manager")
			return "COMPANY", companyID, h.leastLoadedManager(ctx)
		}
	}

	managerID = h.leastLoadedManager(ctx)
	contact := &domain.Contact{Name: req.Name, AssignedByID: managerID}
	id, err := h.contacts.Add(ctx, contact)
	if err != nil {
		h.log.Warn().Err(err).Msg("siterequest: fallback contact creation failed")
		return "", 0, managerID
	}
	result.OwnerResolved = true
	result.OwnerCreated = true
	return "CONTACT", id.Int, managerID
}

// leastLoadedManager implements §4.9 step 2: tally prospective deals per
// configured manager, pick the smallest, ties broken by configured order.
func (h *Handler) leastLoadedManager(ctx context.Context) int64 {
	if len(h.managers) == 0 {
		return 0
	}

	page, err := h.deals.List(ctx, []string{"ID", "ASSIGNED_BY_ID", "STAGE_SEMANTIC_ID"},
		map[string]interface{}{"STAGE_SEMANTIC_ID": string(domain.SemanticProspective)}, nil, 0)
	if err != nil {
		h.log.Warn().Err(err).Msg("siterequest: load tally failed, using first configured manager")
		return h.managers[0]
	}

	var rows []struct {
		AssignedByID string `json:"ASSIGNED_BY_ID"`
	}
	if err := json.Unmarshal(page.Result, &rows); err != nil {
		h.log.Warn().Err(err).Msg("siterequest: decode tally failed, using first configured manager")
		return h.managers[0]
	}

	tally := make(map[int64]int, len(h.managers))
	for _, m := range h.managers {
		tally[m] = 0
	}
	for _, row := range rows {
		id, err := strconv.ParseInt(row.AssignedByID, 10, 64)
		if err != nil {
			continue
		}
		if _, tracked := tally[id]; tracked {
			tally[id]++
		}
	}

	return pickLeastLoaded(h.managers, tally)
}

// pickLeastLoaded picks the manager with the smallest tally, ties broken by
// position in managers.
func pickLeastLoaded(managers []int64, tally map[int64]int) int64 {
	best := managers[0]
	bestCount := tally[best]
	for _, m := range managers[1:] {
		if tally[m] < bestCount {
			best, bestCount = m, tally[m]
		}
	}
	return best
}

// createDeal implements §4.9 step 3.
func (h *Handler) createDeal(ctx context.Context, req Request, ownerType string, ownerID, managerID int64) (domain.ExternalID, error) {
	title := "Запрос цены с сайта"
	if req.MessageID != "" {
		title = fmt.Sprintf("%s #%s", title, req.MessageID)
	}

	deal := &domain.Deal{
		Title:        title,
		AssignedByID: managerID,
		CreatedByID:  managerID,
		Comments:     req.Comment,
	}
	switch ownerType {
	case "CONTACT":
		deal.ContactExternalID = &ownerID
	case "COMPANY":
		deal.CompanyExternalID = &ownerID
	}

	return h.deals.Add(ctx, deal)
}

// attachProduct implements §4.9 step 4: on any failure, it appends a
// "Товар: {name}" note to the deal's comments instead of aborting.
func (h *Handler) attachProduct(ctx context.Context, req Request, dealID domain.ExternalID, result *Result) string {
	if req.ProductID == "" {
		return req.ProductName
	}

	product, err := h.products.GetByXMLID(ctx, req.ProductID)
	if err != nil {
		h.noteProductFailure(ctx, dealID, req.Comment, req.ProductName)
		return req.ProductName
	}

	row := bitrix.ProductRowWire{ProductID: product.ExternalID.Int, Price: product.Price.Amount, Quantity: 0}
	if err := bitrix.SetProductRows(ctx, h.client, dealID, []bitrix.ProductRowWire{row}); err != nil {
		h.noteProductFailure(ctx, dealID, req.Comment, product.Name)
		return product.Name
	}

	result.ProductAttached = true
	return product.Name
}

// noteProductFailure appends the product note to comment, the text the deal
// was created with, and writes the result back as the deal's comments.
func (h *Handler) noteProductFailure(ctx context.Context, dealID domain.ExternalID, comment, name string) {
	note := fmt.Sprintf("Товар: %s", name)
	if comment != "" {
		note = comment + "\n" + note
	}
	if err := h.deals.Update(ctx, dealID, map[string]interface{}{
		"COMMENTS": note,
	}); err != nil {
		h.log.Warn().Err(err).Str("deal_id", dealID.String()).Msg("siterequest: product-failure note write failed")
	}
}

// postTimelineNote implements §4.9 step 5.
func (h *Handler) postTimelineNote(ctx context.Context, dealID domain.ExternalID, comment, productName string, result *Result) {
	note := comment
	if productName != "" {
		if note != "" {
			note = fmt.Sprintf("%s\nТовар: %s", note, productName)
		} else {
			note = fmt.Sprintf("Товар: %s", productName)
		}
	}
	if note == "" {
		return
	}
	if _, err := h.timeline.Add(ctx, "deal", dealID.Int, note); err != nil {
		h.log.Warn().Err(err).Str("deal_id", dealID.String()).Msg("siterequest: timeline note failed")
		return
	}
	result.TimelinePosted = true
}
