package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/phd-portal-api/internal/models"
)

// CachedRoster wraps the roster repository with a Redis read-through cache.
// The roster changes rarely relative to form traffic, so relationship checks
// and recipient lookups are cached with a short TTL instead of invalidated.
type CachedRoster struct {
	inner  *RosterRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRoster constructs the decorator.
func NewCachedRoster(inner *RosterRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedRoster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRoster{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *CachedRoster) cachedBool(ctx context.Context, key string, load func() (bool, error)) (bool, error) {
	if cached, err := c.client.Get(ctx, key).Result(); err == nil {
		return cached == "1", nil
	} else if err != redis.Nil {
		c.logger.Sugar().Warnw("roster cache read failed", "key", key, "error", err)
	}

	value, err := load()
	if err != nil {
		return false, err
	}
	stored := "0"
	if value {
		stored = "1"
	}
	if err := c.client.Set(ctx, key, stored, c.ttl).Err(); err != nil {
		c.logger.Sugar().Warnw("roster cache write failed", "key", key, "error", err)
	}
	return value, nil
}

func (c *CachedRoster) cachedList(ctx context.Context, key string, load func() ([]string, error)) ([]string, error) {
	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var out []string
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	} else if err != redis.Nil {
		c.logger.Sugar().Warnw("roster cache read failed", "key", key, "error", err)
	}

	value, err := load()
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(value); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Sugar().Warnw("roster cache write failed", "key", key, "error", err)
		}
	}
	return value, nil
}

// IsSupervisorOf caches the supervisor link check.
func (c *CachedRoster) IsSupervisorOf(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	key := fmt.Sprintf("roster:sup:%s:%s", facultyCode, rollNo)
	return c.cachedBool(ctx, key, func() (bool, error) {
		return c.inner.IsSupervisorOf(ctx, facultyCode, rollNo)
	})
}

// IsOnDoctoralCommittee caches the committee link check.
func (c *CachedRoster) IsOnDoctoralCommittee(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	key := fmt.Sprintf("roster:dcm:%s:%s", facultyCode, rollNo)
	return c.cachedBool(ctx, key, func() (bool, error) {
		return c.inner.IsOnDoctoralCommittee(ctx, facultyCode, rollNo)
	})
}

// IsHodOf caches the HOD link check.
func (c *CachedRoster) IsHodOf(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	key := fmt.Sprintf("roster:hod:%s:%s", facultyCode, rollNo)
	return c.cachedBool(ctx, key, func() (bool, error) {
		return c.inner.IsHodOf(ctx, facultyCode, rollNo)
	})
}

// CoordinatesDepartment caches the coordinator link check.
func (c *CachedRoster) CoordinatesDepartment(ctx context.Context, facultyCode, rollNo string) (bool, error) {
	key := fmt.Sprintf("roster:coord:%s:%s", facultyCode, rollNo)
	return c.cachedBool(ctx, key, func() (bool, error) {
		return c.inner.CoordinatesDepartment(ctx, facultyCode, rollNo)
	})
}

// AdordcDepartments caches the ADORDC department list.
func (c *CachedRoster) AdordcDepartments(ctx context.Context, facultyCode string) ([]string, error) {
	key := fmt.Sprintf("roster:adordc:%s", facultyCode)
	return c.cachedList(ctx, key, func() ([]string, error) {
		return c.inner.AdordcDepartments(ctx, facultyCode)
	})
}

// CoordinatedDepartments caches the coordinator department list.
func (c *CachedRoster) CoordinatedDepartments(ctx context.Context, facultyCode string) ([]string, error) {
	key := fmt.Sprintf("roster:coorddep:%s", facultyCode)
	return c.cachedList(ctx, key, func() ([]string, error) {
		return c.inner.CoordinatedDepartments(ctx, facultyCode)
	})
}

// HeadedDepartments caches the HOD department list.
func (c *CachedRoster) HeadedDepartments(ctx context.Context, facultyCode string) ([]string, error) {
	key := fmt.Sprintf("roster:hoddep:%s", facultyCode)
	return c.cachedList(ctx, key, func() ([]string, error) {
		return c.inner.HeadedDepartments(ctx, facultyCode)
	})
}

// RecipientUserIDs caches notification recipient resolution.
func (c *CachedRoster) RecipientUserIDs(ctx context.Context, role models.Role, rollNo string) ([]string, error) {
	key := fmt.Sprintf("roster:rcpt:%s:%s", role, rollNo)
	return c.cachedList(ctx, key, func() ([]string, error) {
		return c.inner.RecipientUserIDs(ctx, role, rollNo)
	})
}

// Pass-throughs. Entity reads are cheap single-row lookups; only the
// relationship fan-outs are worth caching.

func (c *CachedRoster) GetStudent(ctx context.Context, rollNo string) (*models.Student, error) {
	return c.inner.GetStudent(ctx, rollNo)
}

func (c *CachedRoster) GetStudentByUserID(ctx context.Context, userID string) (*models.Student, error) {
	return c.inner.GetStudentByUserID(ctx, userID)
}

func (c *CachedRoster) GetStudentDetail(ctx context.Context, rollNo string) (*models.StudentDetail, error) {
	return c.inner.GetStudentDetail(ctx, rollNo)
}

func (c *CachedRoster) GetFacultyByUserID(ctx context.Context, userID string) (*models.Faculty, error) {
	return c.inner.GetFacultyByUserID(ctx, userID)
}
