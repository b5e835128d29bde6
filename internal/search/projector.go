package search

import (
	"context"

	"github.com/CzarCx/qr-brain/internal/models"
)

// LoteIndex stores lote summaries
type LoteIndex interface {
	IndexLote(ctx context.Context, lote models.LoteSummary) error
	DeleteLote(ctx context.Context, lote string) error
}

// LoteProjector keeps the lote index in step with programmed production
type LoteProjector struct {
	Source func(ctx context.Context) ([]models.LoteSummary, error)
	Index  LoteIndex
}

// Handle re-projects the lote named by event. A lote that no longer has rows is removed.
func (p *LoteProjector) Handle(ctx context.Context, event models.ChangeEvent) error {
	if event.Lote == "" || event.Op == models.ChangeCheckin {
		return nil
	}

	lotes, err := p.Source(ctx)
	if err != nil {
		return err
	}
	for _, lote := range lotes {
		if lote.LoteP == event.Lote {
			return p.Index.IndexLote(ctx, lote)
		}
	}
	return p.Index.DeleteLote(ctx, event.Lote)
}
