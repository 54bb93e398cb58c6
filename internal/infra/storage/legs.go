package storage

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hedge_go/internal/domain"
)

// PersistLegs inserts imported legs, silently skipping ids already seen.
// Returns the number of legs that were actually new.
func (s *Store) PersistLegs(tx *gorm.DB, legs []domain.RawLeg) (int64, error) {
	if len(legs) == 0 {
		return 0, nil
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&legs)
	if res.Error != nil {
		return 0, TranslateError(res.Error)
	}
	return res.RowsAffected, nil
}

// OldestUnpairedCursor returns the cursor of the oldest leg still
// unpaired, or ("", nil) when everything is paired.
func (s *Store) OldestUnpairedCursor() (string, error) {
	var leg domain.RawLeg
	err := s.db.
		Where("paired = ?", false).
		Order("created_at asc, seq asc").
		First(&leg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", TranslateError(err)
	}
	return leg.Cursor, nil
}

// ListUnpaired returns every unpaired leg in arrival order. Arrival
// order is what makes pairing deterministic.
func (s *Store) ListUnpaired(tx *gorm.DB) ([]domain.RawLeg, error) {
	var legs []domain.RawLeg
	err := tx.
		Where("paired = ?", false).
		Order("seq asc").
		Find(&legs).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return legs, nil
}

// MarkLegsPaired flips the paired flag on the given leg ids.
func (s *Store) MarkLegsPaired(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := tx.Model(&domain.RawLeg{}).
		Where("id IN ?", ids).
		Update("paired", true).Error
	return TranslateError(err)
}
