package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/shopspring/decimal"
)

// Seed is the bootstrap data a fresh backend is loaded with.
type Seed struct {
	Users []struct {
		Email    string `json:"email"`
		FullName string `json:"fullName"`
	} `json:"users"`
	Medicines []struct {
		Name          string          `json:"name"`
		Price         decimal.Decimal `json:"price"`
		StockQuantity int             `json:"stockQuantity"`
		ImageURL      string          `json:"imageUrl"`
	} `json:"medicines"`
}

func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var s Seed
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	for i, m := range s.Medicines {
		if m.Name == "" || m.Price.IsNegative() || m.StockQuantity < 0 {
			return nil, fmt.Errorf("seed medicine %d is invalid", i)
		}
	}
	return &s, nil
}

// ApplySeed upserts every user and loads the medicines only into an empty
// catalog, so it can run on every start.
func (r *Repository) ApplySeed(ctx context.Context, s *Seed) (users, medicines int, err error) {
	for _, u := range s.Users {
		if _, err := r.UpsertUser(ctx, u.Email, u.FullName); err != nil {
			return users, medicines, err
		}
		users++
	}

	existing, err := r.ListMedicines(ctx)
	if err != nil {
		return users, medicines, err
	}
	if len(existing) > 0 {
		return users, 0, nil
	}
	for _, m := range s.Medicines {
		if _, err := r.AddMedicine(ctx, domain.Medicine{
			Name:     m.Name,
			Price:    m.Price,
			Stock:    m.StockQuantity,
			ImageURL: m.ImageURL,
		}); err != nil {
			return users, medicines, err
		}
		medicines++
	}
	return users, medicines, nil
}
