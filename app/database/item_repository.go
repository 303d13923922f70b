package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

var _ FeedItemRepository = (*FeedItemRepo)(nil)

// FeedItemRepo handles database operations for discovered feed items
type FeedItemRepo struct {
	db *DB
}

func NewFeedItemRepo(db *DB) *FeedItemRepo {
	return &FeedItemRepo{db: db}
}

const feedItemColumns = `id, feed_id, guid, title, description, link, image_url,
	published_at, status, reason, job_id, created_at`

// InsertIfAbsent inserts a discovered item unless its (feed, GUID) pair
// already exists. Existing rows are left untouched so upstream edits
// never destabilize already-scheduled content.
func (r *FeedItemRepo) InsertIfAbsent(item *FeedItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	result, err := r.db.Exec(`
		INSERT INTO feed_items (id, feed_id, guid, title, description, link, image_url, published_at, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (feed_id, guid) DO NOTHING
	`, item.ID, item.FeedID, item.GUID, item.Title, item.Description, item.Link,
		item.ImageURL, item.PublishedAt, item.Status, item.Reason)

	if err != nil {
		return false, fmt.Errorf("failed to insert item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return affected > 0, nil
}

func (r *FeedItemRepo) scanItem(row interface{ Scan(...any) error }) (*FeedItem, error) {
	var item FeedItem
	err := row.Scan(
		&item.ID, &item.FeedID, &item.GUID, &item.Title, &item.Description,
		&item.Link, &item.ImageURL, &item.PublishedAt, &item.Status,
		&item.Reason, &item.JobID, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *FeedItemRepo) GetItem(feedID, itemID string) (*FeedItem, error) {
	item, err := r.scanItem(r.db.QueryRow(
		`SELECT `+feedItemColumns+` FROM feed_items WHERE feed_id = ? AND id = ?`, feedID, itemID))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

// GetItemsByGUIDs returns the feed's items matching the given GUIDs,
// preserving the caller's order.
func (r *FeedItemRepo) GetItemsByGUIDs(feedID string, guids []string) ([]FeedItem, error) {
	byGUID := make(map[string]FeedItem, len(guids))

	for _, guid := range guids {
		item, err := r.scanItem(r.db.QueryRow(
			`SELECT `+feedItemColumns+` FROM feed_items WHERE feed_id = ? AND guid = ?`, feedID, guid))
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get item by GUID: %w", err)
		}
		byGUID[guid] = *item
	}

	items := make([]FeedItem, 0, len(byGUID))
	for _, guid := range guids {
		if item, ok := byGUID[guid]; ok {
			items = append(items, item)
		}
	}

	return items, nil
}

func (r *FeedItemRepo) ListItems(feedID string) ([]FeedItem, error) {
	rows, err := r.db.Query(`
		SELECT `+feedItemColumns+`
		FROM feed_items
		WHERE feed_id = ?
		ORDER BY COALESCE(published_at, created_at) DESC
	`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []FeedItem
	for rows.Next() {
		item, err := r.scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func (r *FeedItemRepo) CountItems(feedID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feed_items WHERE feed_id = ?", feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

func (r *FeedItemRepo) CountItemsByStatus(feedID string, status FeedItemStatus) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM feed_items WHERE feed_id = ? AND status = ?", feedID, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items by status: %w", err)
	}
	return count, nil
}

func (r *FeedItemRepo) UpdateItemStatus(itemID string, status FeedItemStatus, reason string) error {
	_, err := r.db.Exec(`
		UPDATE feed_items SET status = ?, reason = ? WHERE id = ?
	`, status, reason, itemID)

	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	return nil
}

func (r *FeedItemRepo) MarkItemScheduled(itemID, jobID string) error {
	_, err := r.db.Exec(`
		UPDATE feed_items SET status = ?, reason = '', job_id = ? WHERE id = ?
	`, FeedItemStatusScheduled, jobID, itemID)

	if err != nil {
		return fmt.Errorf("failed to mark item scheduled: %w", err)
	}

	return nil
}

// RevertItemSchedule returns an unscheduled item to a schedulable status
// and drops its job back-reference.
func (r *FeedItemRepo) RevertItemSchedule(itemID string, status FeedItemStatus) error {
	_, err := r.db.Exec(`
		UPDATE feed_items SET status = ?, reason = '', job_id = NULL WHERE id = ?
	`, status, itemID)

	if err != nil {
		return fmt.Errorf("failed to revert item schedule: %w", err)
	}

	return nil
}

// ResetItems reverts every item of the feed to initial_sync and clears
// job back-references.
func (r *FeedItemRepo) ResetItems(feedID string) (int, error) {
	result, err := r.db.Exec(`
		UPDATE feed_items SET status = ?, reason = '', job_id = NULL WHERE feed_id = ?
	`, FeedItemStatusInitialSync, feedID)

	if err != nil {
		return 0, fmt.Errorf("failed to reset items: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reset result: %w", err)
	}

	return int(affected), nil
}

func (r *FeedItemRepo) DeleteFailedItems(feedID string) (int, error) {
	result, err := r.db.Exec(`
		DELETE FROM feed_items WHERE feed_id = ? AND status = ?
	`, feedID, FeedItemStatusFailed)

	if err != nil {
		return 0, fmt.Errorf("failed to delete failed items: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}

	return int(affected), nil
}
