package jobs

import (
	"fmt"

	gormlib "gorm.io/gorm"
)

// withSavepoint runs fn under a savepoint of tx. When fn fails the savepoint
// is rolled back and fn's error returned; the transaction stays usable. A
// savepoint that cannot be opened or rolled back is returned as fatal.
func withSavepoint(tx *gormlib.DB, name string, fn func() error) (recordErr error, fatal error) {
	if err := tx.SavePoint(name).Error; err != nil {
		return nil, fmt.Errorf("failed to open savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if rerr := tx.RollbackTo(name).Error; rerr != nil {
			return err, fmt.Errorf("failed to roll back to %s: %w", name, rerr)
		}
		return err, nil
	}
	return nil, nil
}
