// Package repo ignore_security_alert_file SQL_INJECTION
package repo

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"outreach/config"
	"outreach/pkg/goutil"
)

type txKey struct{}

type TxService interface {
	RunTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type BaseRepo interface {
	TxService

	Create(ctx context.Context, model interface{}) error
	CreateMany(ctx context.Context, model interface{}, data interface{}) error
	Get(ctx context.Context, model interface{}, f *Filter) error
	GetMany(ctx context.Context, model interface{}, f *Filter) ([]interface{}, *Pagination, error)
	Find(ctx context.Context, dest interface{}, f *Filter) error
	Count(ctx context.Context, model interface{}, f *Filter) (uint64, error)
	GroupBy(ctx context.Context, model, dest interface{}, groupByFields []string, aggregateFields map[string]string, f *Filter, orderBy string, limit int) error
	Update(ctx context.Context, model interface{}) error
	UpdateSelected(ctx context.Context, model interface{}, f *Filter, values map[string]interface{}) (uint64, error)
	Increment(ctx context.Context, model interface{}, field string, delta uint64, f *Filter) error
	Close(ctx context.Context) error
}

type baseRepo struct {
	db *gorm.DB
}

func NewBaseRepo(_ context.Context, mysqlCfg config.MySQL) (BaseRepo, error) {
	db, err := gorm.Open(mysql.Open(mysqlCfg.ToDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return NewBaseRepoWithDB(db), nil
}

func NewBaseRepoWithDB(db *gorm.DB) BaseRepo {
	return &baseRepo{
		db: db,
	}
}

func (r *baseRepo) Create(ctx context.Context, data interface{}) error {
	return r.getDb(ctx).Create(data).Error
}

func (r *baseRepo) CreateMany(ctx context.Context, model interface{}, data interface{}) error {
	return r.getDb(ctx).Model(model).Create(data).Error
}

func (r *baseRepo) Get(ctx context.Context, model interface{}, f *Filter) error {
	return where(r.getDb(ctx).Model(model), f).First(model).Error
}

func (r *baseRepo) Find(ctx context.Context, dest interface{}, f *Filter) error {
	return where(r.getDb(ctx), f).Order("id ASC").Find(dest).Error
}

func (r *baseRepo) Count(ctx context.Context, model interface{}, f *Filter) (uint64, error) {
	var count int64
	if err := where(r.getDb(ctx).Model(model), f).Count(&count).Error; err != nil {
		return 0, err
	}
	return uint64(count), nil
}

func (r *baseRepo) GetMany(ctx context.Context, model interface{}, f *Filter) ([]interface{}, *Pagination, error) {
	query := where(r.getDb(ctx).Model(model), f)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, nil, err
	}

	var pagination *Pagination
	if f != nil {
		pagination = f.Pagination
	}

	var (
		limit = pagination.GetLimit()
		page  = pagination.GetPage()
	)
	if page == 0 {
		page = 1
	}

	query = query.Offset(int((page - 1) * limit)).Order("id DESC")
	if limit > 0 {
		query = query.Limit(int(limit + 1))
	}

	var (
		modelElem = reflect.TypeOf(model).Elem()
		queryRes  = reflect.New(reflect.SliceOf(modelElem)).Interface()
	)
	if err := query.Find(queryRes).Error; err != nil {
		return nil, nil, err
	}

	var (
		resElem = reflect.ValueOf(queryRes).Elem()
		res     = make([]interface{}, resElem.Len())
	)
	for i := 0; i < resElem.Len(); i++ {
		res[i] = resElem.Index(i).Addr().Interface() // return addr
	}

	var hasNext bool
	if limit > 0 && len(res) > int(limit) {
		hasNext = true
		res = res[:limit]
	}

	return res, &Pagination{
		Page:    goutil.Uint32(page),
		Limit:   goutil.Uint32(limit),
		HasNext: goutil.Bool(hasNext),
		Total:   goutil.Uint32(uint32(count)),
	}, nil
}

// GroupBy scans aggregated rows into dest, which must be a pointer to a slice.
// A group field may be an expression written as "expr AS alias"; rows are then grouped by alias.
func (r *baseRepo) GroupBy(ctx context.Context, model, dest interface{}, groupByFields []string, aggregateFields map[string]string, f *Filter, orderBy string, limit int) error {
	aliases := make([]string, 0, len(aggregateFields))
	for alias := range aggregateFields {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	selectFields := make([]string, 0, len(groupByFields)+len(aliases))
	selectFields = append(selectFields, groupByFields...)
	for _, alias := range aliases {
		selectFields = append(selectFields, fmt.Sprintf("%s AS %s", aggregateFields[alias], alias))
	}

	query := where(r.getDb(ctx).Model(model), f).Select(strings.Join(selectFields, ", "))
	if len(groupByFields) > 0 {
		query = query.Group(strings.Join(groupByKeys(groupByFields), ", "))
	}
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	return query.Scan(dest).Error
}

func groupByKeys(groupByFields []string) []string {
	keys := make([]string, len(groupByFields))
	for i, field := range groupByFields {
		keys[i] = field
		if idx := strings.LastIndex(strings.ToUpper(field), " AS "); idx >= 0 {
			keys[i] = strings.TrimSpace(field[idx+len(" AS "):])
		}
	}
	return keys
}

func (r *baseRepo) Update(ctx context.Context, model interface{}) error {
	return r.getDb(ctx).Updates(model).Error
}

// UpdateSelected applies values to rows matching f and returns the number of affected rows.
func (r *baseRepo) UpdateSelected(ctx context.Context, model interface{}, f *Filter, values map[string]interface{}) (uint64, error) {
	res := where(r.getDb(ctx).Model(model), f).Updates(values)
	if res.Error != nil {
		return 0, res.Error
	}
	return uint64(res.RowsAffected), nil
}

func (r *baseRepo) Increment(ctx context.Context, model interface{}, field string, delta uint64, f *Filter) error {
	return where(r.getDb(ctx).Model(model), f).
		UpdateColumn(field, gorm.Expr(fmt.Sprintf("%s + ?", field), delta)).Error
}

func (r *baseRepo) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.hasTx(ctx) {
		return fn(ctx)
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		ctxWithTx := context.WithValue(ctx, txKey{}, tx)
		if err := fn(ctxWithTx); err != nil {
			return err
		}
		return nil
	})
}

func (r *baseRepo) Close(_ context.Context) error {
	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil {
			return err
		}

		err = sqlDB.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepo) getDb(ctx context.Context) *gorm.DB {
	db, ok := ctx.Value(txKey{}).(*gorm.DB)
	if !ok {
		db = r.db
	}
	return db.WithContext(ctx)
}

func (r *baseRepo) hasTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok
}

func where(db *gorm.DB, f *Filter) *gorm.DB {
	sqlQuery, args := ToSqlWithArgs(f)
	if sqlQuery == "" {
		return db
	}
	return db.Where(sqlQuery, args...)
}
