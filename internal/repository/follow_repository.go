package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/socialgraph/internal/apperr"
	"github.com/d60-Lab/socialgraph/internal/model"
)

type gormFollowIndex struct {
	db *gorm.DB
}

func NewGormFollowIndex(db *gorm.DB) FollowIndex { return &gormFollowIndex{db: db} }

func (r *gormFollowIndex) AddFollow(ctx context.Context, follower, followee string) error {
	f := &model.Follow{FollowerID: follower, FolloweeID: followee, CreatedAt: time.Now()}
	// 幂等：重复关注不报错
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f).Error
	return apperr.Unavailable("follows.add", err)
}

func (r *gormFollowIndex) RemoveFollow(ctx context.Context, follower, followee string) error {
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", follower, followee).
		Delete(&model.Follow{}).Error
	return apperr.Unavailable("follows.remove", err)
}

func (r *gormFollowIndex) Followers(ctx context.Context, user string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Follow{}).
		Where("followee_id = ?", user).
		Pluck("follower_id", &ids).Error
	return ids, apperr.Unavailable("follows.followers", err)
}

func (r *gormFollowIndex) Following(ctx context.Context, user string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Follow{}).
		Where("follower_id = ?", user).
		Pluck("followee_id", &ids).Error
	return ids, apperr.Unavailable("follows.following", err)
}

func (r *gormFollowIndex) DeleteUser(ctx context.Context, user string) error {
	err := r.db.WithContext(ctx).
		Where("follower_id = ? OR followee_id = ?", user, user).
		Delete(&model.Follow{}).Error
	return apperr.Unavailable("follows.delete_user", err)
}
