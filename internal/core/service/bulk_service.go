package service

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/metrics"
	"github.com/rl1809/pos-backoffice/internal/port"
)

const (
	defaultMaxRows = 5000

	// maxDeltaMagnitude bounds a merged delta so adding it to a stored
	// quantity cannot overflow. Anything this large clamps anyway.
	maxDeltaMagnitude = math.MaxInt32

	bulkKindInventory = "inventory"
	bulkKindProduct   = "product"
)

// BulkService applies uploaded batches with one result per input row. A bad
// row never aborts the batch; only store failures do.
type BulkService struct {
	tx          port.TransactionScope
	maxQuantity int
	maxRows     int
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewBulkService(tx port.TransactionScope, maxQuantity, maxRows int, m *metrics.Metrics, logger *zap.Logger) *BulkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &BulkService{
		tx:          tx,
		maxQuantity: maxQuantity,
		maxRows:     maxRows,
		metrics:     m,
		logger:      logger.Named("bulk"),
	}
}

// deltaGroup is every row sharing one barcode, with their deltas summed.
type deltaGroup struct {
	barcode string
	rows    []int
	sum     int
}

// UpdateInventory merges deltas per barcode and applies each merged delta,
// clamping into [0, max]. Clamped keys are still written but all their rows
// are reported as ERROR.
func (s *BulkService) UpdateInventory(ctx context.Context, rows []domain.InventoryDeltaRow) ([]domain.RowResult, error) {
	if len(rows) > s.maxRows {
		return nil, domain.Validation("upload has %d rows, limit is %d", len(rows), s.maxRows)
	}

	results := make([]domain.RowResult, len(rows))
	var groups []*deltaGroup
	byKey := make(map[string]*deltaGroup)

	for i, row := range rows {
		results[i] = domain.RowResult{Line: row.Line, Key: row.Barcode}
		switch {
		case row.ParseError != "":
			results[i].Status, results[i].Comment = domain.RowStatusError, row.ParseError
			continue
		case row.Barcode == "":
			results[i].Status, results[i].Comment = domain.RowStatusError, "barcode is required"
			continue
		}

		g, ok := byKey[row.Barcode]
		if !ok {
			g = &deltaGroup{barcode: row.Barcode}
			byKey[row.Barcode] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, i)
		g.sum = saturatingAdd(g.sum, row.Delta)
	}

	if len(groups) > 0 {
		err := s.tx.Execute(ctx, func(repos port.Repositories) error {
			return s.applyDeltas(ctx, repos, groups, results)
		})
		if err != nil {
			return nil, err
		}
	}

	s.record(bulkKindInventory, results)
	return results, nil
}

func (s *BulkService) applyDeltas(ctx context.Context, repos port.Repositories, groups []*deltaGroup, results []domain.RowResult) error {
	barcodes := make([]string, len(groups))
	for i, g := range groups {
		barcodes[i] = g.barcode
	}

	products, err := repos.Products().GetProductsByBarcodes(ctx, barcodes)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}

	ledger := NewLedger(repos.Inventory(), s.maxQuantity)
	current, err := ledger.GetBatch(ctx, ids)
	if err != nil {
		return err
	}

	ceiling := ledger.Max()
	var writes []domain.Inventory
	for _, g := range groups {
		p, ok := products[g.barcode]
		if !ok {
			markGroup(results, g, domain.RowStatusError, fmt.Sprintf("product with barcode %s not found", g.barcode))
			continue
		}
		inv, ok := current[p.ID]
		if !ok {
			markGroup(results, g, domain.RowStatusError, fmt.Sprintf("no inventory record for barcode %s", g.barcode))
			continue
		}

		next := inv.Quantity + g.sum
		switch {
		case next < 0:
			markGroup(results, g, domain.RowStatusError,
				fmt.Sprintf("resulting quantity %d is below zero; quantity clamped below zero to 0", next))
			s.metrics.BulkClamped("floor")
			s.logger.Warn("Bulk delta clamped", zap.String("barcode", g.barcode), zap.Int("computed", next), zap.Int("stored", 0))
			next = 0
		case next > ceiling:
			markGroup(results, g, domain.RowStatusError,
				fmt.Sprintf("resulting quantity %d would exceed maximum of %d; quantity clamped to %d", next, ceiling, ceiling))
			s.metrics.BulkClamped("cap")
			s.logger.Warn("Bulk delta clamped", zap.String("barcode", g.barcode), zap.Int("computed", next), zap.Int("stored", ceiling))
			next = ceiling
		default:
			markGroup(results, g, domain.RowStatusSuccess, "")
		}

		writes = append(writes, domain.Inventory{ProductID: p.ID, Quantity: next})
	}

	return ledger.SaveBatch(ctx, writes)
}

// saturatingAdd adds b to a, holding the result within
// [-maxDeltaMagnitude, maxDeltaMagnitude].
func saturatingAdd(a, b int) int {
	b = max(min(b, maxDeltaMagnitude), -maxDeltaMagnitude)
	return max(min(a+b, maxDeltaMagnitude), -maxDeltaMagnitude)
}

func markGroup(results []domain.RowResult, g *deltaGroup, status domain.RowStatus, comment string) {
	for _, i := range g.rows {
		results[i].Status = status
		results[i].Comment = comment
	}
}

// CreateProducts inserts the accepted rows as one batch, each with a zero
// quantity inventory record. Rows are rejected individually for bad payloads,
// unknown clients, barcodes already stored, or barcodes repeated in the batch.
func (s *BulkService) CreateProducts(ctx context.Context, rows []domain.ProductRow) ([]domain.RowResult, error) {
	if len(rows) > s.maxRows {
		return nil, domain.Validation("upload has %d rows, limit is %d", len(rows), s.maxRows)
	}

	results := make([]domain.RowResult, len(rows))
	mrps := make([]decimal.Decimal, len(rows))
	counts := make(map[string]int, len(rows))

	for i, row := range rows {
		results[i] = domain.RowResult{Line: row.Line, Key: row.Barcode}
		if row.ParseError != "" {
			reject(results, i, row.ParseError)
			continue
		}
		if err := validate.Struct(row); err != nil {
			reject(results, i, describeValidation(err))
			continue
		}
		mrp, err := decimal.NewFromString(row.MRP)
		if err != nil {
			reject(results, i, "mrp: must be numeric")
			continue
		}
		if mrp.IsNegative() {
			reject(results, i, "mrp: cannot be negative")
			continue
		}
		mrps[i] = mrp
		counts[row.Barcode]++
	}

	var candidates []int
	for i, row := range rows {
		if results[i].Failed() {
			continue
		}
		if counts[row.Barcode] > 1 {
			reject(results, i, fmt.Sprintf("barcode %s appears more than once in the upload", row.Barcode))
			continue
		}
		candidates = append(candidates, i)
	}

	if len(candidates) > 0 {
		err := s.tx.Execute(ctx, func(repos port.Repositories) error {
			return s.insertProducts(ctx, repos, rows, mrps, candidates, results)
		})
		if err != nil {
			return nil, err
		}
	}

	s.record(bulkKindProduct, results)
	return results, nil
}

func (s *BulkService) insertProducts(ctx context.Context, repos port.Repositories, rows []domain.ProductRow, mrps []decimal.Decimal, candidates []int, results []domain.RowResult) error {
	emails := make([]string, 0, len(candidates))
	barcodes := make([]string, 0, len(candidates))
	for _, i := range candidates {
		emails = append(emails, rows[i].ClientEmail)
		barcodes = append(barcodes, rows[i].Barcode)
	}

	clients, err := repos.Clients().GetClientsByEmails(ctx, emails)
	if err != nil {
		return err
	}
	existing, err := repos.Products().GetProductsByBarcodes(ctx, barcodes)
	if err != nil {
		return err
	}

	var accepted []int
	var products []domain.Product
	for _, i := range candidates {
		row := rows[i]
		client, ok := clients[row.ClientEmail]
		if !ok {
			reject(results, i, fmt.Sprintf("client %s not found", row.ClientEmail))
			continue
		}
		if _, exists := existing[row.Barcode]; exists {
			reject(results, i, fmt.Sprintf("product with barcode %s already exists", row.Barcode))
			continue
		}
		accepted = append(accepted, i)
		products = append(products, domain.Product{
			Barcode:  row.Barcode,
			ClientID: client.ID,
			Name:     row.Name,
			MRP:      mrps[i],
		})
	}
	if len(products) == 0 {
		return nil
	}

	if err := repos.Products().CreateProducts(ctx, products); err != nil {
		return err
	}

	stock := make([]domain.Inventory, len(products))
	for j, p := range products {
		stock[j] = domain.Inventory{ProductID: p.ID, Quantity: 0}
	}
	if err := NewLedger(repos.Inventory(), s.maxQuantity).SaveBatch(ctx, stock); err != nil {
		return err
	}

	for _, i := range accepted {
		results[i].Status = domain.RowStatusSuccess
	}
	return nil
}

func reject(results []domain.RowResult, i int, comment string) {
	results[i].Status = domain.RowStatusError
	results[i].Comment = comment
}

func (s *BulkService) record(kind string, results []domain.RowResult) {
	var failed int
	for _, r := range results {
		s.metrics.BulkRow(kind, string(r.Status))
		if r.Failed() {
			failed++
		}
	}
	s.logger.Info("Bulk batch applied",
		zap.String("kind", kind),
		zap.Int("rows", len(results)),
		zap.Int("failed", failed),
	)
}
