package service

import (
	"context"
	"sort"

	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"
)

// lockInventory row-locks every distinct item in ascending id order so that
// concurrent transactions touching overlapping item sets cannot deadlock.
func lockInventory(ctx context.Context, repos repository.Repositories, itemIDs []string) (map[string]*domain.InventoryItem, error) {
	ids := distinct(itemIDs)
	sort.Strings(ids)

	locked := make(map[string]*domain.InventoryItem, len(ids))
	for _, id := range ids {
		it, err := repos.Inventory.LockByID(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = it
	}
	return locked, nil
}

// demandByItem sums line quantities per inventory item.
func demandByItem(items []domain.BookingItem) map[string]int {
	demand := make(map[string]int)
	for _, it := range items {
		demand[it.ItemID] += it.Quantity
	}
	return demand
}

// peakDemand returns, per inventory item, the largest quantity the lines
// need on any single day.
func peakDemand(lines []domain.BookingItem) map[string]int {
	byItem := make(map[string][]domain.BookingItem)
	for _, l := range lines {
		byItem[l.ItemID] = append(byItem[l.ItemID], l)
	}
	peak := make(map[string]int, len(byItem))
	for id, group := range byItem {
		start, end := group[0].StartDate, group[0].EndDate
		for _, l := range group[1:] {
			if l.StartDate.Before(start) {
				start = l.StartDate
			}
			if l.EndDate.After(end) {
				end = l.EndDate
			}
		}
		peak[id] = domain.PeakLoad(group, start, end)
	}
	return peak
}

// checkPhysical fails when the demand for any item exceeds the
// units currently on the shelf.
func checkPhysical(inventory map[string]*domain.InventoryItem, demand map[string]int) error {
	for _, id := range sortedKeys(demand) {
		if demand[id] > inventory[id].UnitsInStorage {
			return domain.InsufficientStock(id, "insufficient physical stock")
		}
	}
	return nil
}

// withdraw moves units out of storage for pickup.
func withdraw(ctx context.Context, repos repository.Repositories, inventory map[string]*domain.InventoryItem, demand map[string]int) error {
	if err := checkPhysical(inventory, demand); err != nil {
		return err
	}
	for _, id := range sortedKeys(demand) {
		if err := repos.Inventory.AdjustStorage(ctx, id, -demand[id]); err != nil {
			return err
		}
	}
	return nil
}

// restock moves returned units back into storage. Exceeding total units is an
// Integrity error raised by the repository.
func restock(ctx context.Context, repos repository.Repositories, demand map[string]int) error {
	for _, id := range sortedKeys(demand) {
		if err := repos.Inventory.AdjustStorage(ctx, id, demand[id]); err != nil {
			return err
		}
	}
	return nil
}

func unitsOf(demand map[string]int) int {
	n := 0
	for _, q := range demand {
		n += q
	}
	return n
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
