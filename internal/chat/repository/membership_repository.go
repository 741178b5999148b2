package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"group_chat_service/internal/chat/domain"

	"gorm.io/gorm"
)

// User users table, identity is read through UserRepository (pgx)
type User struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:128"`
	Email     string `gorm:"size:255;uniqueIndex"`
	CreatedAt time.Time
}

// Group 群組, owner 同時是 admin 與 member
type Group struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:128"`
	OwnerID   int64  `gorm:"index;not null"`
	CreatedAt time.Time
}

// GroupAdmin group_admins table
type GroupAdmin struct {
	GroupID int64 `gorm:"primaryKey"`
	UserID  int64 `gorm:"primaryKey"`
}

// GroupMember group_members table
type GroupMember struct {
	GroupID  int64 `gorm:"primaryKey"`
	UserID   int64 `gorm:"primaryKey"`
	JoinedAt time.Time
}

// MembershipRepository 查詢使用者在群組內的身份
type MembershipRepository interface {
	AutoMigrate() error
	Role(ctx context.Context, groupID, userID int64) (domain.Role, error)
	CreateGroup(ctx context.Context, name string, ownerID int64) (*Group, error)
	AddMember(ctx context.Context, groupID, userID int64) error
	AddAdmin(ctx context.Context, groupID, userID int64) error
	CreateUser(ctx context.Context, user *User) error
}

type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository create MembershipRepository
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&User{}, &Group{}, &GroupAdmin{}, &GroupMember{})
}

// Role 每次即時查詢, 不做快取
func (r *membershipRepository) Role(ctx context.Context, groupID, userID int64) (domain.Role, error) {
	db := r.db.WithContext(ctx)

	var group Group
	err := db.Select("id", "owner_id").First(&group, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.RoleNone, nil
	}
	if err != nil {
		return domain.RoleNone, fmt.Errorf("find group %d: %w", groupID, err)
	}
	if group.OwnerID == userID {
		return domain.RoleOwner, nil
	}

	var count int64
	if err := db.Model(&GroupAdmin{}).Where("group_id = ? AND user_id = ?", groupID, userID).Count(&count).Error; err != nil {
		return domain.RoleNone, fmt.Errorf("find admin: %w", err)
	}
	if count > 0 {
		return domain.RoleAdmin, nil
	}

	if err := db.Model(&GroupMember{}).Where("group_id = ? AND user_id = ?", groupID, userID).Count(&count).Error; err != nil {
		return domain.RoleNone, fmt.Errorf("find member: %w", err)
	}
	if count > 0 {
		return domain.RoleMember, nil
	}
	return domain.RoleNone, nil
}

func (r *membershipRepository) CreateGroup(ctx context.Context, name string, ownerID int64) (*Group, error) {
	group := &Group{Name: name, OwnerID: ownerID}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		if err := tx.Create(&GroupAdmin{GroupID: group.ID, UserID: ownerID}).Error; err != nil {
			return err
		}
		return tx.Create(&GroupMember{GroupID: group.ID, UserID: ownerID, JoinedAt: time.Now()}).Error
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (r *membershipRepository) AddMember(ctx context.Context, groupID, userID int64) error {
	return r.db.WithContext(ctx).Create(&GroupMember{GroupID: groupID, UserID: userID, JoinedAt: time.Now()}).Error
}

func (r *membershipRepository) AddAdmin(ctx context.Context, groupID, userID int64) error {
	return r.db.WithContext(ctx).Create(&GroupAdmin{GroupID: groupID, UserID: userID}).Error
}

func (r *membershipRepository) CreateUser(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Create(user).Error
}
