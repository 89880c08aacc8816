package notify

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"

	"cafehub/internal/apperr"
	"cafehub/internal/database"
	"cafehub/internal/models"
)

// Directory resolves recipients from the users table: staff members and the
// event's customer as selected by its audience, minus the actor.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Recipients(ctx context.Context, event Event) ([]uint, error) {
	var staff []models.User
	if event.Audience != AudienceCustomer {
		err := d.db.Where("role IN (?)", []models.Role{models.RoleStaff, models.RoleAdmin}).
			Order("id").Find(&staff).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load staff: %w", err)
		}
	}

	seen := make(map[uint]struct{}, len(staff)+1)
	var ids []uint
	add := func(id uint) {
		if id == 0 || id == event.ActorID {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if event.CustomerID != nil && event.Audience != AudienceStaff {
		add(*event.CustomerID)
	}
	for _, u := range staff {
		add(u.ID)
	}
	return ids, nil
}

// Store persists notifications and serves the recipient API.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Name() string { return "store" }

// Deliver writes one row per recipient in a single transaction.
func (s *Store) Deliver(ctx context.Context, event Event, recipients []uint) error {
	return database.WithTx(s.db, func(tx *gorm.DB) error {
		for _, userID := range recipients {
			n := models.Notification{
				UserID:    userID,
				Type:      event.Type,
				Title:     event.Title,
				Message:   event.Message,
				BookingID: event.BookingID,
				CreatedAt: event.OccurredAt,
			}
			if err := tx.Create(&n).Error; err != nil {
				return fmt.Errorf("failed to store notification for user %d: %w", userID, err)
			}
		}
		return nil
	})
}

// List returns a user's notifications, newest first.
func (s *Store) List(userID uint, unreadOnly bool) ([]models.Notification, error) {
	q := s.db.Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var out []models.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list notifications")
	}
	return out, nil
}

// UnreadCount returns how many notifications the user has not read.
func (s *Store) UnreadCount(userID uint) (int, error) {
	var count int
	err := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).Count(&count).Error
	if err != nil {
		return 0, apperr.Internal(err, "failed to count notifications")
	}
	return count, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *Store) MarkRead(userID, id uint) error {
	res := s.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if res.Error != nil {
		return apperr.Internal(res.Error, "failed to mark notification read")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("notification %d not found", id)
	}
	return nil
}

// MarkAllRead flags every notification of the user as read.
func (s *Store) MarkAllRead(userID uint) error {
	err := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error
	if err != nil {
		return apperr.Internal(err, "failed to mark notifications read")
	}
	return nil
}

// Delete removes one of the user's notifications.
func (s *Store) Delete(userID, id uint) error {
	res := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return apperr.Internal(res.Error, "failed to delete notification")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("notification %d not found", id)
	}
	return nil
}
