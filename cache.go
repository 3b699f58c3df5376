package lms

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// getCacheKey generates a Redis cache key for a permission check.
func (l *LMS) getCacheKey(userID uint, permName string) string {
	return fmt.Sprintf("%s:perm:%d:%s", l.appName, userID, permName)
}

// checkCache returns the cached verdict and whether one was found.
func (l *LMS) checkCache(ctx context.Context, userID uint, permName string) (allowed, hit bool, err error) {
	if l.redis == nil {
		return false, false, nil
	}

	val, err := l.redis.Get(ctx, l.getCacheKey(userID, permName)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

// setCache caches a permission check result.
func (l *LMS) setCache(ctx context.Context, userID uint, permName string, allowed bool) error {
	if l.redis == nil {
		return nil
	}

	val := "0"
	if allowed {
		val = "1"
	}
	return l.redis.Set(ctx, l.getCacheKey(userID, permName), val, l.cacheTTL).Err()
}

// invalidateCache drops every cached verdict of a user, or of everyone when userID is 0.
func (l *LMS) invalidateCache(ctx context.Context, userID uint) error {
	if l.redis == nil {
		return nil
	}

	pattern := l.appName + ":perm:*"
	if userID != 0 {
		pattern = fmt.Sprintf("%s:perm:%d:*", l.appName, userID)
	}
	keys, err := l.redis.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return l.redis.Del(ctx, keys...).Err()
	}
	return nil
}

// GetCacheStats returns cache statistics
func (l *LMS) GetCacheStats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"app_name":      l.appName,
		"redis_enabled": l.redis != nil,
	}

	if l.redis != nil {
		keys, err := l.redis.Keys(ctx, l.appName+":perm:*").Result()
		if err == nil {
			stats["cache_keys_count"] = len(keys)
		}
	}
	return stats
}

// ClearAllCache clears all permission cache entries
func (l *LMS) ClearAllCache(ctx context.Context) error {
	return l.invalidateCache(ctx, 0)
}

// WarmCache preloads the materialized permissions of the given users as positive verdicts.
func (l *LMS) WarmCache(ctx context.Context, userIDs []uint) error {
	if l.redis == nil || len(userIDs) == 0 {
		return nil
	}

	type row struct {
		UserID uint
		Name   string
	}
	var rows []row
	err := l.db.WithContext(ctx).Model(&UserPermission{}).
		Select("user_permissions.user_id, permissions.name").
		Joins("JOIN permissions ON permissions.id = user_permissions.permission_id AND permissions.deleted_at IS NULL").
		Where("user_permissions.user_id IN ?", userIDs).
		Scan(&rows).Error
	if err != nil {
		return err
	}

	pipe := l.redis.Pipeline()
	for _, r := range rows {
		pipe.Set(ctx, l.getCacheKey(r.UserID, r.Name), "1", l.cacheTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}
