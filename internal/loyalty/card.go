package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/obs"
)

// ErrScanCooldown is returned when a card is scanned again inside the
// cooldown window. Nothing is mutated in that case.
var ErrScanCooldown = errors.New("card scanned too recently")

// Card is a physical loyalty card. The activation invariant is enforced at
// the assignment call sites: active exactly when a user is assigned.
type Card struct {
	ID         uuid.UUID  `json:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	QRCode     string     `json:"qr_code"`
	Active     bool       `json:"is_active"`
	LastScanAt *time.Time `json:"last_scan_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CardQuerier extends the ledger with card persistence.
type CardQuerier interface {
	Querier
	GetCardByQRForUpdate(ctx context.Context, qrCode string) (Card, error)
	GetCardByUser(ctx context.Context, userID uuid.UUID) (Card, error)
	UpdateCardScan(ctx context.Context, cardID uuid.UUID, at time.Time) error
	AssignCard(ctx context.Context, cardID, userID uuid.UUID) error
	ReleaseCard(ctx context.Context, cardID uuid.UUID) error
}

// CardRunner executes fn inside a transaction scoped to a CardQuerier.
type CardRunner interface {
	RunCardTx(ctx context.Context, fn func(q CardQuerier) error) error
}

// ScanResult reports a successful card scan.
type ScanResult struct {
	CardID        uuid.UUID `json:"card_id"`
	UserID        uuid.UUID `json:"user_id"`
	PointsAwarded int64     `json:"points_awarded"`
	ScannedAt     time.Time `json:"scanned_at"`
}

// Cards implements card scanning and assignment.
type Cards struct {
	Runner        CardRunner
	Cooldown      time.Duration
	VisitPoints   int64
	PointsPerUnit int
	Now           func() time.Time
}

func (c *Cards) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Scan awards physical-visit points for an active card. The cooldown check
// and the scan stamp happen under the card's row lock so two near-simultaneous
// scans cannot both pass.
func (c *Cards) Scan(ctx context.Context, qrCode string, visitAmount *decimal.Decimal) (ScanResult, error) {
	var result ScanResult
	err := c.Runner.RunCardTx(ctx, func(q CardQuerier) error {
		card, err := q.GetCardByQRForUpdate(ctx, qrCode)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("loyalty card not found")
			}
			return err
		}
		if !card.Active || card.UserID == nil {
			return common.ValidationError("loyalty card is not active", nil)
		}
		now := c.now()
		if card.LastScanAt != nil && now.Sub(*card.LastScanAt) < c.Cooldown {
			return ErrScanCooldown
		}

		points := c.VisitPoints
		if visitAmount != nil && visitAmount.IsPositive() {
			points += visitAmount.Mul(decimal.NewFromInt(int64(c.PointsPerUnit))).Floor().IntPart()
		}
		if points > 0 {
			reason := fmt.Sprintf("Physical visit - card %s", card.QRCode)
			if _, err := EarnTx(ctx, q, *card.UserID, points, KindPhysicalVisit, reason, nil); err != nil {
				return err
			}
		}
		if err := q.UpdateCardScan(ctx, card.ID, now); err != nil {
			return err
		}
		result = ScanResult{CardID: card.ID, UserID: *card.UserID, PointsAwarded: points, ScannedAt: now}
		return nil
	})
	if err != nil {
		if obs.CardScanTotal != nil {
			obs.CardScanTotal.WithLabelValues(scanOutcome(err)).Inc()
		}
		return ScanResult{}, err
	}
	if obs.CardScanTotal != nil {
		obs.CardScanTotal.WithLabelValues("ok").Inc()
	}
	return result, nil
}

func scanOutcome(err error) string {
	if errors.Is(err, ErrScanCooldown) {
		return "cooldown"
	}
	return "error"
}

// Link assigns an unassigned card to the user and activates it.
func (c *Cards) Link(ctx context.Context, userID uuid.UUID, qrCode string) (Card, error) {
	var linked Card
	err := c.Runner.RunCardTx(ctx, func(q CardQuerier) error {
		if _, err := q.GetCardByUser(ctx, userID); err == nil {
			return common.ConflictError("user already has a loyalty card")
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		card, err := q.GetCardByQRForUpdate(ctx, qrCode)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("loyalty card not found")
			}
			return err
		}
		if card.UserID != nil {
			return common.ConflictError("loyalty card already assigned")
		}
		if err := q.AssignCard(ctx, card.ID, userID); err != nil {
			return err
		}
		card.UserID = &userID
		card.Active = true
		linked = card
		return nil
	})
	return linked, err
}

// Unlink releases the user's card and deactivates it.
func (c *Cards) Unlink(ctx context.Context, userID uuid.UUID) error {
	return c.Runner.RunCardTx(ctx, func(q CardQuerier) error {
		card, err := q.GetCardByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("user has no loyalty card")
			}
			return err
		}
		return q.ReleaseCard(ctx, card.ID)
	})
}
