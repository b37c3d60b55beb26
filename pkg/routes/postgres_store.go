package routes

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBStore 基于关系型数据库（PostgreSQL）的路由存储。
type DBStore struct {
	db *gorm.DB
}

// NewDBStore 使用给定 gorm.DB 初始化存储。
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

// AutoMigrate 执行路由表结构迁移。
func (s *DBStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&routeRecord{})
}

// List 查询所有路由，按前缀长度降序排列。
func (s *DBStore) List(ctx context.Context) ([]Route, error) {
	var records []routeRecord
	if err := s.db.WithContext(ctx).
		Order("length(prefix) DESC, prefix ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	result := make([]Route, 0, len(records))
	for _, rec := range records {
		route, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, route)
	}
	return result, nil
}

// Get 根据前缀查询路由。
func (s *DBStore) Get(ctx context.Context, prefix string) (Route, error) {
	var rec routeRecord
	err := s.db.WithContext(ctx).First(&rec, "prefix = ?", prefix).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Route{}, ErrRouteNotFound
	}
	if err != nil {
		return Route{}, err
	}
	return rec.toDomain()
}

// Save 插入或更新路由。
func (s *DBStore) Save(ctx context.Context, route Route) error {
	if err := route.Validate(); err != nil {
		return err
	}
	rec, err := newRouteRecord(route)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "prefix"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

// Delete 删除指定路由。
func (s *DBStore) Delete(ctx context.Context, prefix string) error {
	result := s.db.WithContext(ctx).Delete(&routeRecord{}, "prefix = ?", prefix)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRouteNotFound
	}
	return nil
}

type routeRecord struct {
	Prefix    string         `gorm:"primaryKey;type:varchar(255)"`
	Comment   string         `gorm:"type:text"`
	Enabled   bool           `gorm:"index"`
	Meta      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (routeRecord) TableName() string {
	return "routes"
}

func newRouteRecord(route Route) (routeRecord, error) {
	var meta datatypes.JSON
	if len(route.Meta) > 0 {
		raw, err := json.Marshal(route.Meta)
		if err != nil {
			return routeRecord{}, err
		}
		meta = datatypes.JSON(raw)
	}
	return routeRecord{
		Prefix:  route.Prefix,
		Comment: route.Comment,
		Enabled: route.Enabled,
		Meta:    meta,
	}, nil
}

func (r routeRecord) toDomain() (Route, error) {
	route := Route{
		Prefix:    r.Prefix,
		Comment:   r.Comment,
		Enabled:   r.Enabled,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if len(r.Meta) > 0 {
		if err := json.Unmarshal(r.Meta, &route.Meta); err != nil {
			return Route{}, err
		}
	}
	return route, nil
}
