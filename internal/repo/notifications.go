package repo

import (
	"context"
	"database/sql"

	"taskdesk/internal/domain"
)

const notificationColumns = `id,recipient_id,sender_id,task_id,type,title,message,priority,is_read,created_at,read_at`

func scanNotification(scan func(dest ...any) error) (domain.Notification, error) {
	var n domain.Notification
	var senderID, taskID, readAt sql.NullString
	var isRead int
	err := scan(&n.ID, &n.RecipientID, &senderID, &taskID, &n.Type, &n.Title, &n.Message,
		&n.Priority, &isRead, &n.CreatedAt, &readAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	n.IsRead = isRead != 0
	if senderID.Valid {
		n.SenderID = &senderID.String
	}
	if taskID.Valid {
		n.TaskID = &taskID.String
	}
	if readAt.Valid {
		n.ReadAt = &readAt.String
	}
	return n, nil
}

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(`+notificationColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.RecipientID, nullableStringPtr(n.SenderID), nullableStringPtr(n.TaskID),
		n.Type, n.Title, n.Message, n.Priority, boolInt(n.IsRead), n.CreatedAt,
		nullableStringPtr(n.ReadAt))
	return err
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id)
	return scanNotification(row.Scan)
}

func (r Repo) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id=?`
	if unreadOnly {
		query += ` AND is_read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead flips is_read and stamps read_at. Marking an
// already-read notification again leaves the original read_at.
func (r Repo) MarkNotificationRead(ctx context.Context, id, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1, read_at=COALESCE(read_at, ?) WHERE id=?`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasUnreadNotification reports whether an unread notification of the
// given type already exists for a task and recipient. The due-date sweep
// uses this to avoid piling up duplicates.
func (r Repo) HasUnreadNotification(ctx context.Context, recipientID, taskID, notifType string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM notifications
WHERE recipient_id=? AND task_id=? AND type=? AND is_read=0 LIMIT 1`, recipientID, taskID, notifType)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// NotificationsAfter returns notifications with rowids greater than the
// cursor in ascending order, for the webhook forwarder.
func (r Repo) NotificationsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Notification, int64, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT rowid,`+notificationColumns+` FROM notifications
WHERE rowid > ? ORDER BY rowid ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, cursor, err
	}
	defer rows.Close()
	var res []domain.Notification
	last := cursor
	for rows.Next() {
		var rowid int64
		var n domain.Notification
		var senderID, taskID, readAt sql.NullString
		var isRead int
		if err := rows.Scan(&rowid, &n.ID, &n.RecipientID, &senderID, &taskID, &n.Type, &n.Title,
			&n.Message, &n.Priority, &isRead, &n.CreatedAt, &readAt); err != nil {
			return nil, cursor, err
		}
		n.IsRead = isRead != 0
		if senderID.Valid {
			n.SenderID = &senderID.String
		}
		if taskID.Valid {
			n.TaskID = &taskID.String
		}
		if readAt.Valid {
			n.ReadAt = &readAt.String
		}
		res = append(res, n)
		last = rowid
	}
	return res, last, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
