package domain

// InventoryItem is one rentable item type held at a storage location.
// 0 <= UnitsInStorage <= TotalUnits holds for every persisted row.
type InventoryItem struct {
	ID             string `json:"id"`
	OrgID          string `json:"org_id"`
	LocationID     string `json:"location_id"`
	TotalUnits     int    `json:"items_number_total"`
	UnitsInStorage int    `json:"items_number_currently_in_storage"`
	IsActive       bool   `json:"is_active"`
	IsDeleted      bool   `json:"is_deleted"`
}

// Bookable reports whether new reservations may be taken against the item.
func (i *InventoryItem) Bookable() bool {
	return i.IsActive && !i.IsDeleted
}

// Availability is the virtual stock picture of an item for a date range.
type Availability struct {
	ItemID                string `json:"item_id"`
	AvailableQuantity     int    `json:"availableQuantity"`
	AlreadyBookedQuantity int    `json:"alreadyBookedQuantity"`
	TotalQuantity         int    `json:"totalQuantity"`
}
