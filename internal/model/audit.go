package model

import "time"

// Audit holds the bookkeeping columns shared by every audited table.
// The *_by_id columns are weak back-references into security_users:
// they are plain ids resolved by lookup, never loaded as nested users.
type Audit struct {
	CreatedAt   time.Time  // created_at
	CreatedByID *string    // created_by_id (nullable)
	UpdatedAt   *time.Time // updated_at (nullable until first modification)
	UpdatedByID *string    // updated_by_id (nullable)
	DeletedAt   *time.Time // deleted_at (nullable)
	DeletedByID *string    // deleted_by_id (nullable)
	IsDeleted   bool       // is_deleted
}

// MasterData adds the active flag carried by reference entities.
type MasterData struct {
	Audit
	IsActive bool // is_active
}
