package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-paygate/app/entity"
)

var vaultPattern = regexp.MustCompile(`^[0-9a-z]{8}-[0-9a-z]{4}-[0-9a-z]{4}-[0-9a-z]{4}-[0-9a-z]{12}$`)

// ValidVaultToken reports whether token has the shape PayGate uses for vault ids.
func ValidVaultToken(token string) bool {
	return vaultPattern.MatchString(token)
}

type TokenAction int

const (
	TokenUnchanged TokenAction = iota
	TokenCreated
	TokenUpdated
	TokenReplaced
)

func (a TokenAction) String() string {
	switch a {
	case TokenCreated:
		return "created"
	case TokenUpdated:
		return "updated"
	case TokenReplaced:
		return "replaced"
	default:
		return "unchanged"
	}
}

type vaultTokenRepository interface {
	List(ctx context.Context, customerID uint64, gatewayID string) ([]*entity.VaultToken, error)
	Create(ctx context.Context, token *entity.VaultToken) error
	Update(ctx context.Context, token *entity.VaultToken) error
	Delete(ctx context.Context, id uint64) error
}

// VaultService keeps at most one card token per customer and gateway.
//
// List and write are not atomic. Two callbacks for the same customer can both see zero tokens
// and create one each; the next ReconcileToken collapses them back to one.
type VaultService struct {
	repo vaultTokenRepository
}

func NewVaultService(repo vaultTokenRepository) *VaultService {
	return &VaultService{repo: repo}
}

// Lookup returns the stored token or nil. More than one stored token yields ErrInconsistentTokens.
func (s *VaultService) Lookup(ctx context.Context, customerID uint64, gatewayID string) (*entity.VaultToken, error) {
	items, err := s.repo.List(ctx, customerID, gatewayID)
	if err != nil {
		return nil, err
	}

	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return items[0], nil
	default:
		return nil, ErrInconsistentTokens
	}
}

func (s *VaultService) ReconcileToken(ctx context.Context, customerID uint64, gatewayID, candidate string) (TokenAction, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || !ValidVaultToken(candidate) {
		return TokenUnchanged, nil
	}

	items, err := s.repo.List(ctx, customerID, gatewayID)
	if err != nil {
		return TokenUnchanged, err
	}

	now := time.Now().UTC()
	switch len(items) {
	case 0:
		if err := s.create(ctx, customerID, gatewayID, candidate, now); err != nil {
			return TokenUnchanged, err
		}
		return TokenCreated, nil
	case 1:
		existing := items[0]
		if existing.Token == candidate {
			return TokenUnchanged, nil
		}
		existing.Token = candidate
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing); err != nil {
			return TokenUnchanged, err
		}
		return TokenUpdated, nil
	default:
		if err := s.deleteAll(ctx, items); err != nil {
			return TokenUnchanged, err
		}
		if err := s.create(ctx, customerID, gatewayID, candidate, now); err != nil {
			return TokenUnchanged, err
		}
		return TokenReplaced, nil
	}
}

func (s *VaultService) PurgeAll(ctx context.Context, customerID uint64, gatewayID string) error {
	items, err := s.repo.List(ctx, customerID, gatewayID)
	if err != nil {
		return err
	}
	return s.deleteAll(ctx, items)
}

func (s *VaultService) deleteAll(ctx context.Context, items []*entity.VaultToken) error {
	for _, item := range items {
		if err := s.repo.Delete(ctx, item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *VaultService) create(ctx context.Context, customerID uint64, gatewayID, token string, now time.Time) error {
	return s.repo.Create(ctx, &entity.VaultToken{
		GatewayID:  gatewayID,
		CustomerID: customerID,
		Token:      token,
		Type:       entity.VaultTokenTypeCard,
		IsDefault:  false,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}
