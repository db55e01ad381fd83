package sync

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
	"github.com/nhle/workera/internal/value"
)

// healColumn corrects an inconsistent type and options pairing: option
// columns without options get the defaults, other types drop stray options
// and unknown types fall back to text.
func healColumn(col model.Column) (model.Column, bool) {
	changed := false
	if !col.Type.Valid() {
		col.Type = model.ColumnText
		changed = true
	}
	switch {
	case col.Type == model.ColumnStatus && len(col.Options) == 0:
		col.Options = value.DefaultStatusOptions()
		changed = true
	case col.Type == model.ColumnDropdown && len(col.Options) == 0:
		col.Options = value.DefaultDropdownOptions()
		changed = true
	case !col.Type.HasOptions() && len(col.Options) > 0:
		col.Options = nil
		changed = true
	}
	return col, changed
}

// healValues rewrites legacy label-based option values of it to option ids
// and returns the columns that changed. Values that cannot be resolved are
// left untouched.
func (e *Engine) healValues(cols []model.Column, it *model.Item) []string {
	var changed []string
	for _, col := range cols {
		if !col.Type.HasOptions() {
			continue
		}
		raw, ok := it.Values[col.ID]
		if !ok {
			continue
		}
		out, diff, err := value.NormalizeLegacy(col, raw)
		if err != nil {
			e.logger.WithError(err).WithFields(log.Fields{"item": it.ID, "column": col.ID}).Debug("leaving unresolvable legacy value")
			continue
		}
		if diff {
			it.Values[col.ID] = out
			changed = append(changed, col.ID)
		}
	}
	return changed
}

// heal corrects a freshly loaded board in place before it is exposed and
// patches the corrections to the remote out of band.
func (e *Engine) heal(b *model.Board) {
	for i := range b.Columns {
		healed, changed := healColumn(b.Columns[i])
		if !changed {
			continue
		}
		e.logger.WithFields(log.Fields{"board": b.ID, "column": healed.ID, "type": healed.Type}).Info("healing column options")
		b.Columns[i] = healed
		e.enqueueColumnHeal(healed)
	}
	for i := range b.Items {
		it := &b.Items[i]
		if it.Values == nil {
			continue
		}
		for _, colID := range e.healValues(b.Columns, it) {
			e.logger.WithFields(log.Fields{"board": b.ID, "item": it.ID, "column": colID}).Info("normalizing legacy option value")
			e.enqueueValueHeal(b.ID, it.ID, colID, it.Values[colID])
		}
	}
}

func (e *Engine) enqueueColumnHeal(col model.Column) {
	patch := remote.Patch{
		model.FieldType:    string(col.Type),
		model.FieldOptions: optionsOrEmpty(col.Options),
	}
	e.enqueue(write{
		op:         "heal_column",
		boardID:    col.BoardID,
		bestEffort: true,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.UpdateColumn(ctx, col.ID, patch)
		},
	})
}

func (e *Engine) enqueueValueHeal(boardID, itemID, columnID string, raw json.RawMessage) {
	e.enqueue(write{
		op:         "heal_value",
		boardID:    boardID,
		bestEffort: true,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.SetItemValue(ctx, itemID, columnID, raw)
		},
	})
}

func optionsOrEmpty(opts []model.Option) []model.Option {
	if opts == nil {
		return []model.Option{}
	}
	return opts
}
