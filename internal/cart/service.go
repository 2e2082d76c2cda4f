// Package cart keeps one persisted cart per scope and reconciles it with the
// live catalog whenever it is read.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/fjod/go_pharmacy/internal/cart/storage"
	"github.com/fjod/go_pharmacy/internal/catalog"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/metrics"
	"github.com/fjod/go_pharmacy/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const lockStripes = 64

type Service struct {
	storage storage.Storage
	catalog catalog.Directory
	log     *zap.Logger
	metrics *metrics.Metrics

	// serializes read-modify-write per scope within this process
	locks [lockStripes]sync.Mutex
}

func NewService(s storage.Storage, dir catalog.Directory, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		storage: s,
		catalog: dir,
		log:     log,
		metrics: m,
	}
}

// Load returns the cart for scope joined with the current catalog. Lines
// whose medicine is gone are left out, and quantities are shown clamped to
// stock. Stored data is never changed here.
func (s *Service) Load(ctx context.Context, scope domain.Scope) (views []domain.CartView, err error) {
	defer func() { s.metrics.CartOperation("load", err) }()

	lines, err := s.read(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	views = make([]domain.CartView, 0, len(lines))
	if len(lines) == 0 {
		return views, nil
	}

	meds, err := s.catalog.All(ctx)
	if err != nil {
		logger.Warn(ctx, s.log, "catalog unavailable, showing empty cart",
			zap.String("scope", scope.String()), zap.Error(err))
		return views, nil
	}
	idx := catalog.Index(meds)

	for _, line := range lines {
		med, ok := idx[line.MedicineID]
		if !ok {
			logger.Debug(ctx, s.log, "dropping cart line for unknown medicine",
				zap.String("scope", scope.String()), zap.Int64("medicine_id", line.MedicineID))
			continue
		}
		views = append(views, domain.CartView{
			MedicineID: med.ID,
			Name:       med.Name,
			UnitPrice:  med.Price,
			ImageURL:   med.ImageURL,
			Stock:      med.Stock,
			Quantity:   clamp(line.Quantity, med.Stock),
		})
	}
	return views, nil
}

// Add increments the line for medicineID or appends a new one. A
// non-positive quantity counts as one.
func (s *Service) Add(ctx context.Context, scope domain.Scope, medicineID int64, quantity int) (err error) {
	if medicineID <= 0 {
		return nil
	}
	defer func() { s.metrics.CartOperation("add", err) }()

	if quantity <= 0 {
		quantity = 1
	}

	// stock < 0 means unknown, the increment is then stored as is
	stock := -1
	meds, catErr := s.catalog.All(ctx)
	if catErr != nil {
		logger.Warn(ctx, s.log, "catalog unavailable, adding without stock bound",
			zap.Int64("medicine_id", medicineID), zap.Error(catErr))
	} else if med, ok := catalog.Index(meds)[medicineID]; ok {
		stock = med.Stock
	}

	mu := s.lockFor(scope)
	mu.Lock()
	defer mu.Unlock()

	lines, err := s.read(ctx, scope)
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}

	found := false
	for i := range lines {
		if lines[i].MedicineID == medicineID {
			lines[i].Quantity = bound(lines[i].Quantity+quantity, stock)
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, domain.CartLine{MedicineID: medicineID, Quantity: bound(quantity, stock)})
	}

	if err := s.write(ctx, scope, lines); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	return nil
}

// SetQuantity replaces the quantity of an existing line, clamped to the
// stock reported by the catalog right now. Missing lines and unknown
// medicines are ignored.
func (s *Service) SetQuantity(ctx context.Context, scope domain.Scope, medicineID int64, quantity int) (err error) {
	defer func() { s.metrics.CartOperation("set_quantity", err) }()

	meds, err := s.catalog.All(ctx)
	if err != nil {
		return fmt.Errorf("set quantity: %w", err)
	}
	med, ok := catalog.Index(meds)[medicineID]
	if !ok {
		return nil
	}
	target := clamp(quantity, med.Stock)

	mu := s.lockFor(scope)
	mu.Lock()
	defer mu.Unlock()

	lines, err := s.read(ctx, scope)
	if err != nil {
		return fmt.Errorf("set quantity: %w", err)
	}
	for i := range lines {
		if lines[i].MedicineID != medicineID {
			continue
		}
		if lines[i].Quantity == target {
			return nil
		}
		lines[i].Quantity = target
		if err := s.write(ctx, scope, lines); err != nil {
			return fmt.Errorf("set quantity: %w", err)
		}
		return nil
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, scope domain.Scope, medicineID int64) (err error) {
	defer func() { s.metrics.CartOperation("remove", err) }()

	mu := s.lockFor(scope)
	mu.Lock()
	defer mu.Unlock()

	lines, err := s.read(ctx, scope)
	if err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	kept := lines[:0]
	for _, line := range lines {
		if line.MedicineID != medicineID {
			kept = append(kept, line)
		}
	}
	if len(kept) == len(lines) {
		return nil
	}
	if err := s.write(ctx, scope, kept); err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, scope domain.Scope) (err error) {
	defer func() { s.metrics.CartOperation("clear", err) }()

	mu := s.lockFor(scope)
	mu.Lock()
	defer mu.Unlock()

	if err := s.storage.Delete(ctx, scope); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Total sums quantity times unit price over a loaded view.
func Total(views []domain.CartView) decimal.Decimal {
	total := decimal.Zero
	for _, v := range views {
		total = total.Add(v.Subtotal())
	}
	return total
}

// ParseMedicineID accepts the raw id a transport hands over. Anything that
// is not a positive integer does not resolve.
func ParseMedicineID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Service) read(ctx context.Context, scope domain.Scope) ([]domain.CartLine, error) {
	raw, err := s.storage.Get(ctx, scope)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lines, err := decodeLines(raw)
	if err != nil {
		logger.Warn(ctx, s.log, "unreadable cart entry, treating as empty",
			zap.String("scope", scope.String()), zap.Error(err))
		return nil, nil
	}
	return lines, nil
}

func (s *Service) write(ctx context.Context, scope domain.Scope, lines []domain.CartLine) error {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return s.storage.Set(ctx, scope, raw)
}

func (s *Service) lockFor(scope domain.Scope) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope))
	return &s.locks[h.Sum32()%lockStripes]
}

// decodeLines parses the stored form and restores the line invariants:
// positive ids, quantity at least one, one line per id.
func decodeLines(raw []byte) ([]domain.CartLine, error) {
	var stored []domain.CartLine
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	lines := make([]domain.CartLine, 0, len(stored))
	pos := make(map[int64]int, len(stored))
	for _, l := range stored {
		if l.MedicineID <= 0 {
			continue
		}
		if l.Quantity < 1 {
			l.Quantity = 1
		}
		if i, ok := pos[l.MedicineID]; ok {
			lines[i].Quantity += l.Quantity
			continue
		}
		pos[l.MedicineID] = len(lines)
		lines = append(lines, l)
	}
	return lines, nil
}

// clamp bounds q to [1, stock]. Out of stock items keep the line minimum.
func clamp(q, stock int) int {
	if stock >= 1 && q > stock {
		q = stock
	}
	if q < 1 {
		q = 1
	}
	return q
}

func bound(q, stock int) int {
	if stock < 0 {
		return q
	}
	return clamp(q, stock)
}
