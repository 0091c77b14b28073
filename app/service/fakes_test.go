package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-paygate/app/entity"
	"github.com/vibast-solutions/ms-go-paygate/app/provider"
	"github.com/vibast-solutions/ms-go-paygate/app/repository"
	"github.com/vibast-solutions/ms-go-paygate/config"
)

const (
	testGatewayID  = "payhostpaybatch"
	testPayGateID  = "10011072130"
	testPayGateKey = "secret"
	testVaultID    = "0a1b2c3d-0a1b-0a1b-0a1b-0a1b2c3d4e5f"
	otherVaultID   = "9f8e7d6c-1a2b-3c4d-5e6f-a1b2c3d4e5f6"
)

type statusUpdate struct {
	OrderID uint64
	Status  entity.OrderStatus
}

type fakeOrderRepo struct {
	orders  map[uint64]*entity.Order
	meta    map[uint64]map[string]string
	updates []statusUpdate
	listErr error

	// returned by the next UpdateStatus call only
	updateErr error
}

func newFakeOrderRepo(orders ...*entity.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{
		orders: map[uint64]*entity.Order{},
		meta:   map[uint64]map[string]string{},
	}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uint64) (*entity.Order, error) {
	item, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeOrderRepo) FindByMeta(_ context.Context, key, value string) (*entity.Order, error) {
	for id, meta := range r.meta {
		if meta[key] == value {
			return r.FindByID(context.Background(), id)
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) GetMeta(_ context.Context, orderID uint64, key string) (string, error) {
	return r.meta[orderID][key], nil
}

func (r *fakeOrderRepo) SetMeta(_ context.Context, orderID uint64, key, value string) error {
	if r.meta[orderID] == nil {
		r.meta[orderID] = map[string]string{}
	}
	r.meta[orderID][key] = value
	return nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, orderID uint64, status entity.OrderStatus, from ...entity.OrderStatus) (bool, error) {
	if err := r.updateErr; err != nil {
		r.updateErr = nil
		return false, err
	}
	item, ok := r.orders[orderID]
	if !ok || item.Status == status {
		return false, nil
	}
	if len(from) > 0 {
		allowed := false
		for _, f := range from {
			allowed = allowed || item.Status == f
		}
		if !allowed {
			return false, nil
		}
	}
	item.Status = status
	r.updates = append(r.updates, statusUpdate{OrderID: orderID, Status: status})
	return true, nil
}

func (r *fakeOrderRepo) ListByPaymentMethod(_ context.Context, method string, offset, limit int) ([]*entity.Order, int, error) {
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	items := make([]*entity.Order, 0)
	for _, o := range r.orders {
		if o.PaymentMethod == method {
			copyItem := *o
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	total := len(items)
	if offset >= total {
		return []*entity.Order{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}

func (r *fakeOrderRepo) CancelURL(order *entity.Order) string {
	return fmt.Sprintf("https://shop.example/cart/?cancel_order=true&order_id=%d", order.ID)
}

func (r *fakeOrderRepo) ReturnURL(order *entity.Order) string {
	return fmt.Sprintf("https://shop.example/checkout/order-received/%d/", order.ID)
}

type fakeNoteRepo struct {
	notes []entity.OrderNote
}

func (r *fakeNoteRepo) Create(_ context.Context, note *entity.OrderNote) error {
	r.notes = append(r.notes, *note)
	return nil
}

func (r *fakeNoteRepo) forOrder(orderID uint64) []string {
	out := make([]string, 0)
	for _, n := range r.notes {
		if n.OrderID == orderID {
			out = append(out, n.Note)
		}
	}
	return out
}

type fakeCallbackRepo struct {
	items []entity.RedirectCallback
}

func (r *fakeCallbackRepo) Create(_ context.Context, callback *entity.RedirectCallback) error {
	r.items = append(r.items, *callback)
	return nil
}

type fakeCartRepo struct {
	emptied []uint64
}

func (r *fakeCartRepo) EmptyForCustomer(_ context.Context, customerID uint64) error {
	r.emptied = append(r.emptied, customerID)
	return nil
}

type fakeVaultRepo struct {
	tokens map[uint64]*entity.VaultToken
	nextID uint64
}

func newFakeVaultRepo() *fakeVaultRepo {
	return &fakeVaultRepo{tokens: map[uint64]*entity.VaultToken{}, nextID: 1}
}

func (r *fakeVaultRepo) seed(customerID uint64, values ...string) {
	for _, v := range values {
		_ = r.Create(context.Background(), &entity.VaultToken{
			GatewayID:  testGatewayID,
			CustomerID: customerID,
			Token:      v,
			Type:       entity.VaultTokenTypeCard,
		})
	}
}

func (r *fakeVaultRepo) List(_ context.Context, customerID uint64, gatewayID string) ([]*entity.VaultToken, error) {
	items := make([]*entity.VaultToken, 0)
	for _, t := range r.tokens {
		if t.CustomerID == customerID && t.GatewayID == gatewayID {
			copyItem := *t
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *fakeVaultRepo) Create(_ context.Context, token *entity.VaultToken) error {
	token.ID = r.nextID
	r.nextID++
	copyItem := *token
	r.tokens[token.ID] = &copyItem
	return nil
}

func (r *fakeVaultRepo) Update(_ context.Context, token *entity.VaultToken) error {
	if _, ok := r.tokens[token.ID]; !ok {
		return repository.ErrVaultTokenNotFound
	}
	copyItem := *token
	r.tokens[token.ID] = &copyItem
	return nil
}

func (r *fakeVaultRepo) Delete(_ context.Context, id uint64) error {
	delete(r.tokens, id)
	return nil
}

type fakeSubscriptionRepo struct {
	byOrder map[uint64][]*entity.Subscription
}

func (r *fakeSubscriptionRepo) ListActiveByOrder(_ context.Context, orderID uint64) ([]*entity.Subscription, error) {
	return r.byOrder[orderID], nil
}

type fakeUploadRepo struct {
	items  map[uint64]*entity.BatchUpload
	nextID uint64
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{items: map[uint64]*entity.BatchUpload{}, nextID: 1}
}

func (r *fakeUploadRepo) Create(_ context.Context, upload *entity.BatchUpload) error {
	upload.ID = r.nextID
	r.nextID++
	copyItem := *upload
	r.items[upload.ID] = &copyItem
	return nil
}

func (r *fakeUploadRepo) List(_ context.Context) ([]*entity.BatchUpload, error) {
	items := make([]*entity.BatchUpload, 0, len(r.items))
	for _, item := range r.items {
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *fakeUploadRepo) SetApplied(_ context.Context, id uint64, appliedJSON string) error {
	if item, ok := r.items[id]; ok {
		item.AppliedJSON = appliedJSON
	}
	return nil
}

func (r *fakeUploadRepo) Delete(_ context.Context, id uint64) error {
	delete(r.items, id)
	return nil
}

type fakePayHost struct {
	singlePayment func(input *provider.SinglePaymentInput) (*provider.SinglePaymentOutput, error)
	vaultID       string
	queryErr      error
	queries       []string
}

func (g *fakePayHost) SinglePayment(_ context.Context, input *provider.SinglePaymentInput) (*provider.SinglePaymentOutput, error) {
	return g.singlePayment(input)
}

func (g *fakePayHost) Query(_ context.Context, payRequestID string) (*provider.PayHostQueryOutput, error) {
	g.queries = append(g.queries, payRequestID)
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	return &provider.PayHostQueryOutput{TransactionID: "tx-1", TransactionStatusCode: "1", VaultID: g.vaultID}, nil
}

type fakePayBatch struct {
	authResponses []*provider.AuthOutput
	authErr       error
	authCalls     [][][]string
	confirmOut    *provider.ConfirmOutput
	confirmed     []string
	queryOut      map[string]*provider.PayBatchQueryOutput
	queryErr      map[string]error
	queried       []string
}

func (p *fakePayBatch) Auth(_ context.Context, _ string, lines [][]string) (*provider.AuthOutput, error) {
	p.authCalls = append(p.authCalls, lines)
	if p.authErr != nil {
		return nil, p.authErr
	}
	idx := len(p.authCalls) - 1
	if idx >= len(p.authResponses) {
		return p.authResponses[len(p.authResponses)-1], nil
	}
	return p.authResponses[idx], nil
}

func (p *fakePayBatch) Confirm(_ context.Context, uploadID string) (*provider.ConfirmOutput, error) {
	p.confirmed = append(p.confirmed, uploadID)
	if p.confirmOut != nil {
		return p.confirmOut, nil
	}
	return &provider.ConfirmOutput{}, nil
}

func (p *fakePayBatch) Query(_ context.Context, uploadID string) (*provider.PayBatchQueryOutput, error) {
	p.queried = append(p.queried, uploadID)
	if err := p.queryErr[uploadID]; err != nil {
		return nil, err
	}
	if out, ok := p.queryOut[uploadID]; ok {
		return out, nil
	}
	return &provider.PayBatchQueryOutput{}, nil
}

type fakeRates struct {
	rates map[string]decimal.Decimal
	calls int
}

func (r *fakeRates) Convert(_ context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	r.calls++
	currency = strings.ToUpper(currency)
	if currency == "ZAR" {
		return amount, nil
	}
	rate, ok := r.rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", provider.ErrUnsupportedCurrency, currency)
	}
	return amount.Mul(rate), nil
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		ID:            testGatewayID,
		Vaulting:      true,
		EnableIframe:  true,
		Locale:        "en-us",
		Country:       "ZAF",
		CustomerTitle: "Mr",
		RedirectURL:   "https://shop.example/payhost/redirect",
		CheckoutURL:   "/index.php/checkout",
	}
}

func testPayHostConfig() config.PayHostConfig {
	return config.PayHostConfig{
		ID:         testPayGateID,
		Key:        testPayGateKey,
		ProcessURL: "https://secure.paygate.co.za/payhost/process.trans",
	}
}

var errBoom = errors.New("boom")
