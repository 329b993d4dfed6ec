package bitrix

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/pkg/errors"
)

// ListPageSize is the fixed page size every crm.*.list / crm.item.list call
// paginates by.
const ListPageSize = 50

func crmMethod(entity, action string) string { return fmt.Sprintf("crm.%s.%s", entity, action) }
func itemMethod(action string) string        { return fmt.Sprintf("crm.item.%s", action) }
func catalogMethod(action string) string     { return fmt.Sprintf("catalog.product.%s", action) }

// EntitySchema converts a domain record to and from its CRM wire shape, and
// manufactures the tombstone-default substituted when CRM reports the
// record not found.
type EntitySchema[T any] struct {
	ToWire     func(*T) map[string]interface{}
	FromWire   func(raw json.RawMessage) (*T, error)
	GetDefault func(id domain.ExternalID) *T
}

// EntityAdapter is a per-entity-kind CRM adapter (component C). It derives
// method names from (kind, action) and exposes the create/get/update/delete
// /list surface the ingest pipeline (L) drives, translating records through
// its EntitySchema at the boundary.
type EntityAdapter[T any] struct {
	client *Client
	kind   domain.Kind
	schema EntitySchema[T]

	entityName   string // crm.<entityName>.<action>, when useItemAPI is false
	useItemAPI   bool   // crm.item.<action> with entityTypeId, for SPA entities
	entityTypeID int

	// methodOverride names a concrete method for an action, bypassing the
	// crm.<entity>.<action> / crm.item.<action> derivation entirely. Used
	// for kinds Bitrix24 exposes outside the crm.* namespace (users).
	methodOverride map[string]string
}

func (a *EntityAdapter[T]) Kind() domain.Kind { return a.kind }

func (a *EntityAdapter[T]) method(action string) (string, map[string]interface{}) {
	params := map[string]interface{}{}
	if override, ok := a.methodOverride[action]; ok {
		return override, params
	}
	if a.useItemAPI {
		params["entityTypeId"] = a.entityTypeID
		return itemMethod(action), params
	}
	return crmMethod(a.entityName, action), params
}

// Get fetches one record by external id.
func (a *EntityAdapter[T]) Get(ctx context.Context, id domain.ExternalID) (*T, error) {
	method, params := a.method("get")
	params["id"] = id.String()
	raw, err := a.client.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return a.schema.FromWire(raw)
}

// GetDefault yields the tombstone-default record for id, used by the
// ingest pipeline when CRM reports not-found.
func (a *EntityAdapter[T]) GetDefault(id domain.ExternalID) *T {
	return a.schema.GetDefault(id)
}

// Add creates entity in CRM and returns its assigned external id.
func (a *EntityAdapter[T]) Add(ctx context.Context, entity *T) (domain.ExternalID, error) {
	method, params := a.method("add")
	params["fields"] = a.schema.ToWire(entity)
	raw, err := a.client.Call(ctx, method, params)
	if err != nil {
		return domain.ExternalID{}, err
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.ExternalID{}, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode created id")
	}
	return domain.NewIntID(id), nil
}

// Update writes a sparse field map to the CRM record at id.
func (a *EntityAdapter[T]) Update(ctx context.Context, id domain.ExternalID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	method, params := a.method("update")
	params["id"] = id.String()
	params["fields"] = fields
	_, err := a.client.Call(ctx, method, params)
	return err
}

// Delete removes the CRM record at id. Most flows instead tombstone via the
// repository's SetDeletedInBitrix; this exists for completeness (§4.4).
func (a *EntityAdapter[T]) Delete(ctx context.Context, id domain.ExternalID) error {
	method, params := a.method("delete")
	params["id"] = id.String()
	_, err := a.client.Call(ctx, method, params)
	return err
}

// List fetches one fixed-size page. Callers follow pagination by calling
// again with start = previous start + ListPageSize while Page.Next != nil.
func (a *EntityAdapter[T]) List(ctx context.Context, sel []string, filter map[string]interface{}, order map[string]string, start int) (Page, error) {
	method, params := a.method("list")
	params["select"] = sel
	params["filter"] = filter
	params["order"] = order
	params["start"] = start
	return a.client.CallPage(ctx, method, params)
}

// --- Deal -------------------------------------------------------------

func dealToWire(d *domain.Deal) map[string]interface{} {
	fields := map[string]interface{}{
		"TITLE":             d.Title,
		"CATEGORY_ID":       d.CategoryID,
		"STAGE_ID":          d.StageID,
		"OPPORTUNITY":       EncodeMoney(d.Opportunity.Amount, d.Opportunity.Currency),
		"CURRENCY_ID":       d.Opportunity.Currency,
		"ASSIGNED_BY_ID":    d.AssignedByID,
		"CREATED_BY_ID":     d.CreatedByID,
		"COMMENTS":          d.Comments,
	}
	if d.Probability != nil {
		fields["PROBABILITY"] = *d.Probability
	}
	if d.CompanyExternalID != nil {
		fields["COMPANY_ID"] = *d.CompanyExternalID
	}
	if d.ContactExternalID != nil {
		fields["CONTACT_ID"] = *d.ContactExternalID
	}
	if d.LeadExternalID != nil {
		fields["LEAD_ID"] = *d.LeadExternalID
	}
	if d.MovedDate != nil {
		fields["MOVED_TIME"] = EncodeDateTime(*d.MovedDate, false)
	}
	if d.BeginDate != nil {
		fields["BEGINDATE"] = EncodeDateTime(*d.BeginDate, false)
	}
	if d.CloseDate != nil {
		fields["CLOSEDATE"] = EncodeDateTime(*d.CloseDate, false)
	}
	return fields
}

type dealWire struct {
	ID              string `json:"ID"`
	Title           string `json:"TITLE"`
	CategoryID      string `json:"CATEGORY_ID"`
	StageID         string `json:"STAGE_ID"`
	StageSemanticID string `json:"STAGE_SEMANTIC_ID"`
	StatusDeal      string `json:"UF_CRM_STATUS_DEAL"`
	Opportunity     string `json:"OPPORTUNITY"`
	CurrencyID      string `json:"CURRENCY_ID"`
	Probability     string `json:"PROBABILITY"`
	CompanyID       string `json:"COMPANY_ID"`
	ContactID       string `json:"CONTACT_ID"`
	LeadID          string `json:"LEAD_ID"`
	AssignedByID    string `json:"ASSIGNED_BY_ID"`
	CreatedByID     string `json:"CREATED_BY_ID"`
	BeginDate       string `json:"BEGINDATE"`
	CloseDate       string `json:"CLOSEDATE"`
	MovedTime       string `json:"MOVED_TIME"`
	Comments        string `json:"COMMENTS"`
}

func dealFromWire(raw json.RawMessage) (*domain.Deal, error) {
	var w dealWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode deal")
	}
	extID, err := parseIntField(w.ID)
	if err != nil {
		return nil, err
	}
	amount := 0.0
	if w.Opportunity != "" {
		if a, err := DecodeMoney(w.Opportunity); err == nil {
			amount = a
		}
	}
	d := &domain.Deal{
		Common:          domain.Common{ExternalID: domain.NewIntID(extID)},
		Title:           w.Title,
		StageID:         w.StageID,
		StageSemanticID: domain.SemanticStage(w.StageSemanticID),
		StatusDeal:      domain.StatusDeal(w.StatusDeal),
		Opportunity:     domain.Money{Amount: amount, Currency: w.CurrencyID},
		Comments:        w.Comments,
	}
	if w.CategoryID != "" {
		if cid, err := parseIntField(w.CategoryID); err == nil {
			d.CategoryID = int(cid)
		}
	}
	if w.Probability != "" {
		if p, err := parseIntField(w.Probability); err == nil {
			pi := int(p)
			d.Probability = &pi
		}
	}
	if id, ok := optionalID(w.CompanyID); ok {
		d.CompanyExternalID = &id
	}
	if id, ok := optionalID(w.ContactID); ok {
		d.ContactExternalID = &id
	}
	if id, ok := optionalID(w.LeadID); ok {
		d.LeadExternalID = &id
	}
	if id, err := parseIntField(w.AssignedByID); err == nil {
		d.AssignedByID = id
	}
	if id, err := parseIntField(w.CreatedByID); err == nil {
		d.CreatedByID = id
	}
	if w.BeginDate != "" {
		if t, err := DecodeDateTime(w.BeginDate); err == nil {
			d.BeginDate = &t
		}
	}
	if w.CloseDate != "" {
		if t, err := DecodeDateTime(w.CloseDate); err == nil {
			d.CloseDate = &t
		}
	}
	if w.MovedTime != "" {
		if t, err := DecodeDateTime(w.MovedTime); err == nil {
			d.MovedDate = &t
		}
	}
	return d, nil
}

func dealGetDefault(id domain.ExternalID) *domain.Deal {
	return &domain.Deal{
		Common:          domain.Common{ExternalID: id, IsDeletedInBitrix: true},
		StageSemanticID: domain.SemanticProspective,
		StatusDeal:      domain.StatusNew,
	}
}

// NewDealAdapter builds the crm.deal.* adapter.
func NewDealAdapter(client *Client) *EntityAdapter[domain.Deal] {
	return &EntityAdapter[domain.Deal]{
		client:     client,
		kind:       domain.KindDeal,
		entityName: "deal",
		schema: EntitySchema[domain.Deal]{
			ToWire:     dealToWire,
			FromWire:   dealFromWire,
			GetDefault: dealGetDefault,
		},
	}
}

// --- Lead / Company / Contact / User -----------------------------------

func leadToWire(l *domain.Lead) map[string]interface{} {
	return map[string]interface{}{
		"TITLE":          l.Title,
		"NAME":           l.Name,
		"ASSIGNED_BY_ID": l.AssignedByID,
		"CREATED_BY_ID":  l.CreatedByID,
	}
}

func leadFromWire(raw json.RawMessage) (*domain.Lead, error) {
	var w struct {
		ID           string `json:"ID"`
		Title        string `json:"TITLE"`
		Name         string `json:"NAME"`
		AssignedByID string `json:"ASSIGNED_BY_ID"`
		CreatedByID  string `json:"CREATED_BY_ID"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode lead")
	}
	extID, err := parseIntField(w.ID)
	if err != nil {
		return nil, err
	}
	l := &domain.Lead{
		Common: domain.Common{ExternalID: domain.NewIntID(extID)},
		Title:  w.Title,
		Name:   w.Name,
	}
	l.AssignedByID, _ = parseIntField(w.AssignedByID)
	l.CreatedByID, _ = parseIntField(w.CreatedByID)
	return l, nil
}

// NewLeadAdapter builds the crm.lead.* adapter.
func NewLeadAdapter(client *Client) *EntityAdapter[domain.Lead] {
	return &EntityAdapter[domain.Lead]{
		client:     client,
		kind:       domain.KindLead,
		entityName: "lead",
		schema: EntitySchema[domain.Lead]{
			ToWire:   leadToWire,
			FromWire: leadFromWire,
			GetDefault: func(id domain.ExternalID) *domain.Lead {
				return &domain.Lead{Common: domain.Common{ExternalID: id, IsDeletedInBitrix: true}}
			},
		},
	}
}

func companyToWire(c *domain.Company) map[string]interface{} {
	return map[string]interface{}{
		"TITLE":          c.Title,
		"ASSIGNED_BY_ID": c.AssignedByID,
		"CREATED_BY_ID":  c.CreatedByID,
	}
}

func companyFromWire(raw json.RawMessage) (*domain.Company, error) {
	var w struct {
		ID           string `json:"ID"`
		Title        string `json:"TITLE"`
		AssignedByID string `json:"ASSIGNED_BY_ID"`
		CreatedByID  string `json:"CREATED_BY_ID"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode company")
	}
	extID, err := parseIntField(w.ID)
	if err != nil {
		return nil, err
	}
	c := &domain.Company{Common: domain.Common{ExternalID: domain.NewIntID(extID)}, Title: w.Title}
	c.AssignedByID, _ = parseIntField(w.AssignedByID)
	c.CreatedByID, _ = parseIntField(w.CreatedByID)
	return c, nil
}

// NewCompanyAdapter builds the crm.company.* adapter.
func NewCompanyAdapter(client *Client) *EntityAdapter[domain.Company] {
	return &EntityAdapter[domain.Company]{
		client:     client,
		kind:       domain.KindCompany,
		entityName: "company",
		schema: EntitySchema[domain.Company]{
			ToWire:   companyToWire,
			FromWire: companyFromWire,
			GetDefault: func(id domain.ExternalID) *domain.Company {
				return &domain.Company{Common: domain.Common{ExternalID: id, IsDeletedInBitrix: true}}
			},
		},
	}
}

func contactToWire(c *domain.Contact) map[string]interface{} {
	return map[string]interface{}{
		"NAME":           c.Name,
		"LAST_NAME":      c.LastName,
		"ASSIGNED_BY_ID": c.AssignedByID,
		"CREATED_BY_ID":  c.CreatedByID,
	}
}

func contactFromWire(raw json.RawMessage) (*domain.Contact, error) {
	var w struct {
		ID           string `json:"ID"`
		Name         string `json:"NAME"`
		LastName     string `json:"LAST_NAME"`
		AssignedByID string `json:"ASSIGNED_BY_ID"`
		CreatedByID  string `json:"CREATED_BY_ID"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode contact")
	}
	extID, err := parseIntField(w.ID)
	if err != nil {
		return nil, err
	}
	c := &domain.Contact{Common: domain.Common{ExternalID: domain.NewIntID(extID)}, Name: w.Name, LastName: w.LastName}
	c.AssignedByID, _ = parseIntField(w.AssignedByID)
	c.CreatedByID, _ = parseIntField(w.CreatedByID)
	return c, nil
}

// NewContactAdapter builds the crm.contact.* adapter.
func NewContactAdapter(client *Client) *EntityAdapter[domain.Contact] {
	return &EntityAdapter[domain.Contact]{
		client:     client,
		kind:       domain.KindContact,
		entityName: "contact",
		schema: EntitySchema[domain.Contact]{
			ToWire:   contactToWire,
			FromWire: contactFromWire,
			GetDefault: func(id domain.ExternalID) *domain.Contact {
				return &domain.Contact{Common: domain.Common{ExternalID: id, IsDeletedInBitrix: true}}
			},
		},
	}
}

func userFromWire(raw json.RawMessage) (*domain.User, error) {
	var w struct {
		ID           string `json:"ID"`
		Name         string `json:"NAME"`
		LastName     string `json:"LAST_NAME"`
		Active       bool   `json:"ACTIVE"`
		DepartmentID []int  `json:"UF_DEPARTMENT"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode user")
	}
	extID, err := parseIntField(w.ID)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Common:   domain.Common{ExternalID: domain.NewIntID(extID)},
		Name:     w.Name,
		LastName: w.LastName,
		Active:   w.Active,
	}
	if len(w.DepartmentID) > 0 {
		dep := int64(w.DepartmentID[0])
		u.DepartmentID = &dep
	}
	return u, nil
}

// NewUserAdapter builds the user.* adapter. Bitrix24 exposes users outside
// the crm.* namespace entirely (user.get/.add/.update/.delete), so every
// action is pinned via methodOverride rather than derived; the kind is
// still tracked as domain.KindUser for the coordination cache and cycle
// detection, since every owned record requires one.
func NewUserAdapter(client *Client) *EntityAdapter[domain.User] {
	return &EntityAdapter[domain.User]{
		client: client,
		kind:   domain.KindUser,
		methodOverride: map[string]string{
			"get":    "user.get",
			"add":    "user.add",
			"update": "user.update",
			"delete": "user.delete",
			"list":   "user.get",
		},
		schema: EntitySchema[domain.User]{
			FromWire: userFromWire,
			ToWire: func(u *domain.User) map[string]interface{} {
				return map[string]interface{}{"NAME": u.Name, "LAST_NAME": u.LastName, "ACTIVE": EncodeBool(u.Active, BoolNormal)}
			},
			GetDefault: func(id domain.ExternalID) *domain.User {
				return &domain.User{Common: domain.Common{ExternalID: id, IsDeletedInBitrix: true}}
			},
		},
	}
}

// --- Product catalog -----------------------------------------------------

func productToWire(p *domain.Product) map[string]interface{} {
	return map[string]interface{}{
		"NAME":        p.Name,
		"XML_ID":      p.XMLID,
		"PRICE":       p.Price.Amount,
		"CURRENCY_ID": p.Price.Currency,
	}
}

func productFromWire(raw json.RawMessage) (*domain.Product, error) {
	var w struct {
		ID         string  `json:"ID"`
		Name       string  `json:"NAME"`
		XMLID      string  `json:"XML_ID"`
		Price      float64 `json:"PRICE"`
		CurrencyID string  `json:"CURRENCY_ID"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode product")
	}
	extID, err := parseIntField(w.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Product{
		Common: domain.Common{ExternalID: domain.NewIntID(extID)},
		Name:   w.Name,
		XMLID:  w.XMLID,
		Price:  domain.Money{Amount: w.Price, Currency: w.CurrencyID},
	}, nil
}

// ProductAdapter wraps the catalog.product.* namespace plus the XML_ID
// lookup the site-request pipeline (M) needs to attach a product by its
// storefront identifier.
type ProductAdapter struct {
	client *Client
}

func NewProductAdapter(client *Client) *ProductAdapter { return &ProductAdapter{client: client} }

func (p *ProductAdapter) Get(ctx context.Context, id domain.ExternalID) (*domain.Product, error) {
	raw, err := p.client.Call(ctx, catalogMethod("get"), map[string]interface{}{"id": id.String()})
	if err != nil {
		return nil, err
	}
	return productFromWire(raw)
}

// GetByXMLID finds a catalog product by its storefront identifier.
func (p *ProductAdapter) GetByXMLID(ctx context.Context, xmlID string) (*domain.Product, error) {
	page, err := p.client.CallPage(ctx, catalogMethod("list"), map[string]interface{}{
		"filter": map[string]interface{}{"XML_ID": xmlID},
		"select": []string{"ID", "NAME", "XML_ID", "PRICE", "CURRENCY_ID"},
	})
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(page.Result, &items); err != nil {
		var wrapped struct {
			Products []json.RawMessage `json:"products"`
		}
		if err2 := json.Unmarshal(page.Result, &wrapped); err2 != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode product list")
		}
		items = wrapped.Products
	}
	if len(items) == 0 {
		return nil, errors.Newf(errors.ErrCodeNotFound, "product with XML_ID %q not found", xmlID)
	}
	return productFromWire(items[0])
}

// Add creates a new catalog product. Nothing in this repository calls it,
// the site-request path included; kept for completeness of the catalog
// namespace.
func (p *ProductAdapter) Add(ctx context.Context, product *domain.Product) (domain.ExternalID, error) {
	raw, err := p.client.Call(ctx, catalogMethod("add"), map[string]interface{}{"fields": productToWire(product)})
	if err != nil {
		return domain.ExternalID{}, err
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.ExternalID{}, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode created product id")
	}
	return domain.NewIntID(id), nil
}

// --- Department ------------------------------------------------------

// DepartmentAdapter wraps Bitrix24's department.* namespace, which sits
// outside crm.* entirely.
type DepartmentAdapter struct {
	client *Client
}

func NewDepartmentAdapter(client *Client) *DepartmentAdapter { return &DepartmentAdapter{client: client} }

type departmentWire struct {
	ID       string `json:"ID"`
	Name     string `json:"NAME"`
	ParentID string `json:"PARENT"`
}

// List pulls every department in one call; §4.11 treats the import as a
// pull-all with no pagination gate since forward self-references are
// expected and the import operates on the whole set.
func (d *DepartmentAdapter) List(ctx context.Context) ([]*domain.Department, error) {
	raw, err := d.client.Call(ctx, "department.get", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var wires []departmentWire
	if err := json.Unmarshal(raw, &wires); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode department list")
	}
	out := make([]*domain.Department, 0, len(wires))
	for _, w := range wires {
		extID, err := parseIntField(w.ID)
		if err != nil {
			continue
		}
		dep := &domain.Department{Common: domain.Common{ExternalID: domain.NewIntID(extID)}, Name: w.Name}
		if pid, ok := optionalID(w.ParentID); ok {
			dep.ParentID = &pid
		}
		out = append(out, dep)
	}
	return out, nil
}

// --- Timeline comments --------------------------------------------------

// TimelineCommentWire is the decoded crm.timeline.comment.* shape.
type TimelineCommentWire struct {
	ID         int64  `json:"ID,string"`
	EntityType string `json:"ENTITY_TYPE"`
	EntityID   int64  `json:"ENTITY_ID,string"`
	AuthorID   int64  `json:"AUTHOR_ID,string"`
	Comment    string `json:"COMMENT"`
}

// TimelineAdapter wraps crm.timeline.comment.add / .list, used by the
// fire-and-forget deal timeline sync (§4.8.1) and the site-request note
// (§4.9 step 5).
type TimelineAdapter struct {
	client *Client
}

func NewTimelineAdapter(client *Client) *TimelineAdapter { return &TimelineAdapter{client: client} }

// Add posts a new comment to entityType's timeline for entityID.
func (t *TimelineAdapter) Add(ctx context.Context, entityType string, entityID int64, comment string) (int64, error) {
	raw, err := t.client.Call(ctx, crmMethod("timeline.comment", "add"), map[string]interface{}{
		"fields": map[string]interface{}{
			"ENTITY_ID":   entityID,
			"ENTITY_TYPE": entityType,
			"COMMENT":     comment,
		},
	})
	if err != nil {
		return 0, err
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode created comment id")
	}
	return id, nil
}

// List returns every timeline comment for (entityType, entityID), used to
// upsert local rows and tombstone ones CRM no longer lists (§4.8.1).
func (t *TimelineAdapter) List(ctx context.Context, entityType string, entityID int64) ([]TimelineCommentWire, error) {
	raw, err := t.client.Call(ctx, crmMethod("timeline.comment", "list"), map[string]interface{}{
		"filter": map[string]interface{}{"ENTITY_ID": entityID, "ENTITY_TYPE": entityType},
	})
	if err != nil {
		return nil, err
	}
	var comments []TimelineCommentWire
	if err := json.Unmarshal(raw, &comments); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode timeline comments")
	}
	return comments, nil
}

// --- Duplicate search & product rows -------------------------------------

// DuplicateMatch is the id set crm.duplicate.findbycomm returns per kind.
type DuplicateMatch struct {
	ContactIDs []int64
	CompanyIDs []int64
	LeadIDs    []int64
}

// FindDuplicateByComm resolves existing contacts/companies/leads sharing a
// communication value, used by the site-request owner-resolution step
// (§4.9 step 1).
func FindDuplicateByComm(ctx context.Context, client *Client, chType domain.ChannelType, values []string) (DuplicateMatch, error) {
	raw, err := client.Call(ctx, "crm.duplicate.findbycomm", map[string]interface{}{
		"entity_type": "ALL",
		"type":        string(chType),
		"values":      values,
	})
	if err != nil {
		return DuplicateMatch{}, err
	}
	var decoded struct {
		Contact []string `json:"CONTACT"`
		Company []string `json:"COMPANY"`
		Lead    []string `json:"LEAD"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return DuplicateMatch{}, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode duplicate search result")
	}
	match := DuplicateMatch{}
	match.ContactIDs = parseIntList(decoded.Contact)
	match.CompanyIDs = parseIntList(decoded.Company)
	match.LeadIDs = parseIntList(decoded.Lead)
	return match, nil
}

// ProductRowWire is the crm.item.productrow.* wire shape for a single line.
type ProductRowWire struct {
	ProductID int64   `json:"productId"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Discount  float64 `json:"discountRate,omitempty"`
}

// ListProductRows fetches a deal's attached product rows.
func ListProductRows(ctx context.Context, client *Client, dealID domain.ExternalID) ([]ProductRowWire, error) {
	raw, err := client.Call(ctx, itemMethod("productrow.list"), map[string]interface{}{
		"filter": map[string]interface{}{"ownerType": "D", "ownerId": dealID.String()},
	})
	if err != nil {
		return nil, err
	}
	var decoded struct {
		ProductRows []ProductRowWire `json:"productRows"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCRMAPI, "decode product rows")
	}
	return decoded.ProductRows, nil
}

// SetProductRows replaces a deal's attached product rows wholesale, used by
// the site-request product-attach step (§4.9 step 4).
func SetProductRows(ctx context.Context, client *Client, dealID domain.ExternalID, rows []ProductRowWire) error {
	_, err := client.Call(ctx, itemMethod("productrow.set"), map[string]interface{}{
		"ownerType":   "D",
		"ownerId":     dealID.String(),
		"productRows": rows,
	})
	return err
}

// --- shared decoding helpers ---------------------------------------------

func parseIntField(raw string) (int64, error) {
	v := NormalizeInbound(raw, true)
	n, ok := v.(int64)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeValidation, "expected numeric field, got %q", raw)
	}
	return n, nil
}

// optionalID converts a possibly-empty numeric id field to a pointer form,
// the shape every optional FK in the domain package uses.
func optionalID(raw string) (int64, bool) {
	if raw == "" || raw == "0" {
		return 0, false
	}
	n, err := parseIntField(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseIntList(raw []string) []int64 {
	out := make([]int64, 0, len(raw))
	for _, s := range raw {
		if n, ok := optionalID(s); ok {
			out = append(out, n)
		}
	}
	return out
}
