// Package catalog reads the medicine catalog the cart is reconciled against.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/pkg/circuitbreaker"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	allMedicinesPath = "/medicines/all"
	noImage          = "/images/no-image.png"
)

var ErrUnavailable = errors.New("catalog unavailable")

type Directory interface {
	All(ctx context.Context) ([]domain.Medicine, error)
}

// Index returns the snapshot keyed by medicine id.
func Index(meds []domain.Medicine) map[int64]domain.Medicine {
	idx := make(map[int64]domain.Medicine, len(meds))
	for _, m := range meds {
		idx[m.ID] = m
	}
	return idx
}

type medicineDTO struct {
	ID            *int64          `json:"id"`
	MedicineID    *int64          `json:"medicineId"`
	Name          string          `json:"name"`
	MedicineName  string          `json:"medicineName"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	ImageURL      string          `json:"imageUrl"`
}

type HTTPDirectory struct {
	baseURL     string
	imagePrefix string
	client      *http.Client
	cb          *gobreaker.CircuitBreaker
}

func NewHTTPDirectory(baseURL, imagePrefix string, timeout time.Duration, log *zap.Logger) *HTTPDirectory {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPDirectory{
		baseURL:     strings.TrimRight(baseURL, "/"),
		imagePrefix: imagePrefix,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb: circuitbreaker.New(circuitbreaker.DefaultSettings("medicine-catalog"), log),
	}
}

// All fetches the catalog through the breaker; while it is open calls fail
// fast with ErrUnavailable.
func (d *HTTPDirectory) All(ctx context.Context) ([]domain.Medicine, error) {
	meds, err := circuitbreaker.Execute(d.cb, func() ([]domain.Medicine, error) {
		return d.fetch(ctx)
	})
	if circuitbreaker.IsOpen(err) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return meds, err
}

func (d *HTTPDirectory) fetch(ctx context.Context) ([]domain.Medicine, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+allMedicinesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var dtos []medicineDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	meds := make([]domain.Medicine, 0, len(dtos))
	for _, dto := range dtos {
		id := dto.ID
		if id == nil {
			id = dto.MedicineID
		}
		if id == nil {
			continue
		}
		name := dto.Name
		if name == "" {
			name = dto.MedicineName
		}
		meds = append(meds, domain.Medicine{
			ID:       *id,
			Name:     name,
			Price:    dto.Price,
			Stock:    dto.StockQuantity,
			ImageURL: ResolveImageURL(d.imagePrefix, dto.ImageURL),
		})
	}
	return meds, nil
}

// ResolveImageURL turns the stored image reference into a browser URL.
// Absolute URLs pass through, file:/// references keep only the file name.
func ResolveImageURL(prefix, imageURL string) string {
	switch {
	case imageURL == "":
		return noImage
	case strings.HasPrefix(imageURL, "http://"), strings.HasPrefix(imageURL, "https://"):
		return imageURL
	case strings.HasPrefix(imageURL, "file:///"):
		name := path.Base(imageURL)
		if name == "" || name == "/" || name == "." {
			return noImage
		}
		return prefix + name
	default:
		return prefix + imageURL
	}
}
