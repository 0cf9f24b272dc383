package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"fetchbridge/internal/logger"
	"fetchbridge/pkg/traffic"
)

// Outcome 拦截事件的最终结果
type Outcome string

const (
	OutcomeResolved   Outcome = "resolved"
	OutcomeForwarded  Outcome = "forwarded"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeFailed     Outcome = "failed"
)

// Exchange 一次拦截事件的记录
type Exchange struct {
	ID              string `gorm:"primaryKey;size:36"`
	TraceID         string `gorm:"index;size:36"`
	Session         string `gorm:"index"`
	Target          string
	Rule            string
	Method          string
	URL             string
	RequestHeaders  string
	StatusCode      int
	StatusText      string
	ResponseHeaders string
	BodySize        int
	Outcome         Outcome `gorm:"index"`
	Error           string
	DurationMS      float64
	CreatedAt       time.Time
}

// Journal 基于 SQLite 的拦截记录
type Journal struct {
	db *gorm.DB
}

// Open 打开（必要时创建）记录库
func Open(dsn, prefix string, l logger.Logger) (*Journal, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&Exchange{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record 写入一条记录
func (j *Journal) Record(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}
	return j.db.WithContext(ctx).Create(ex).Error
}

// Recent 按时间倒序返回最近的记录
func (j *Journal) Recent(ctx context.Context, limit int) ([]Exchange, error) {
	var out []Exchange
	err := j.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// ByTrace 查询某次事件的记录
func (j *Journal) ByTrace(ctx context.Context, traceID string) ([]Exchange, error) {
	var out []Exchange
	err := j.db.WithContext(ctx).Where("trace_id = ?", traceID).Find(&out).Error
	return out, err
}

// Close 关闭底层连接
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HeadersJSON 把头部渲染为 JSON 对象文本
func HeadersJSON(h traffic.Header) string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)

	doc := "{}"
	for _, name := range names {
		if name == "" {
			continue
		}
		out, err := sjson.Set(doc, escapePath(name), h[name])
		if err != nil {
			continue
		}
		doc = out
	}
	return doc
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`)

// escapePath 转义 sjson 路径中的特殊字符，纯数字名称强制作为对象键
func escapePath(name string) string {
	escaped := pathEscaper.Replace(name)
	if strings.Trim(name, "0123456789") == "" {
		return ":" + escaped
	}
	return escaped
}
