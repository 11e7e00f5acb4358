package services

import (
	"context"
	"errors"
	"fmt"
	"html"

	"imobot/models"
	"imobot/storage"
	"imobot/utils"
)

// Sender delivers one notification. Delivery is best-effort; failures are
// handled and logged by the implementation.
type Sender interface {
	Send(ctx context.Context, text string)
}

// Pipeline is the filter, dedup and notify stage that every successful fetch
// feeds into. It is safe for concurrent use by fetch workers.
type Pipeline struct {
	store    storage.Store
	sender   Sender
	minPrice int64
	seen     *utils.KeySet
	logger   *utils.Logger
}

// NewPipeline creates a Pipeline keeping listings priced at or above
// minPrice.
func NewPipeline(store storage.Store, sender Sender, minPrice int64, logger *utils.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		sender:   sender,
		minPrice: minPrice,
		seen:     utils.NewKeySet(),
		logger:   logger,
	}
}

// Reset forgets the ids handled in the previous cycle.
func (p *Pipeline) Reset() {
	p.seen.Reset()
}

// Seen returns how many distinct listing ids passed the price filter since
// the last Reset.
func (p *Pipeline) Seen() int {
	return p.seen.Size()
}

// Accept filters records by price, persists the unseen ones and notifies
// for each listing whose insert succeeded. It returns how many records
// passed the price filter and how many were new.
func (p *Pipeline) Accept(ctx context.Context, target models.Target, records []*models.Listing) (kept, fresh int) {
	for _, l := range records {
		if NormalizePrice(l.Price) < p.minPrice {
			continue
		}
		kept++

		// The same listing may be reached through two targets in one cycle.
		if !p.seen.Add(l.ID) {
			p.logger.Debug("[pipeline] Already handled this cycle: %s", l.ID)
			continue
		}

		isNew, err := p.isNew(ctx, l)
		if err != nil {
			p.logger.Error("[pipeline] %s: %v", target.URL, err)
			continue
		}
		if !isNew {
			continue
		}

		p.logger.Info("[pipeline] NEW PROPERTY: %s - %s", l.Title, l.Price)
		p.sender.Send(ctx, FormatMessage(l))
		fresh++
	}
	return kept, fresh
}

// isNew checks the store and inserts the listing. A conflicting insert
// means another worker got there first and is not an error.
func (p *Pipeline) isNew(ctx context.Context, l *models.Listing) (bool, error) {
	exists, err := p.store.Exists(ctx, l.ID)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", l.ID, err)
	}
	if exists {
		return false, nil
	}

	err = p.store.Insert(ctx, l)
	switch {
	case errors.Is(err, storage.ErrConflict):
		p.logger.Debug("[pipeline] Insert conflict on %s, skipping notification", l.ID)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("insert %s: %w", l.ID, err)
	}
	return true, nil
}

// FormatMessage renders the notification for a new listing. Fields coming
// from the page are HTML-escaped.
func FormatMessage(l *models.Listing) string {
	return fmt.Sprintf(
		"🏠 <b>Nova Casa Encontrada!</b>\n\n"+
			"<b>Título:</b> %s\n"+
			"<b>Preço:</b> %s\n"+
			"<b>Site:</b> %s\n\n"+
			"<a href='%s'>Ver no site</a>",
		html.EscapeString(l.Title),
		html.EscapeString(l.Price),
		html.EscapeString(l.Site),
		html.EscapeString(l.URL),
	)
}
