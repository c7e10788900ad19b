// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paiban/visitsched/pkg/model"
)

// DB 数据库接口，*sql.DB、*sql.Tx 与 database.DB 均满足
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Scanner 行扫描接口
type Scanner interface {
	Scan(dest ...interface{}) error
}

// marshalPoint 将位置序列化为 JSONB，nil 存为 NULL
func marshalPoint(p *model.GeoPoint) (interface{}, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("序列化位置失败: %w", err)
	}
	return data, nil
}

// unmarshalPoint 从 JSONB 反序列化位置
func unmarshalPoint(data []byte) (*model.GeoPoint, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p model.GeoPoint
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("解析位置失败: %w", err)
	}
	return &p, nil
}

// formatDate DATE 列转为 YYYY-MM-DD
func formatDate(t time.Time) string {
	return t.Format(model.DateLayout)
}
