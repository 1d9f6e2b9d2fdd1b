package order

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/topup/internal/database"
	"github.com/Additional-Code/topup/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/topup/repository/order")

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicate is returned when an order id or reference id already exists.
	ErrDuplicate = errors.New("order already exists")
	// ErrVersionConflict is returned when the stored version moved since the order was loaded.
	ErrVersionConflict = errors.New("order version conflict")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status   string
	Target   string
	Page     int
	PageSize int
}

// Normalize clamps paging values into range.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	f.Target = strings.TrimSpace(f.Target)
	return f
}

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists a new order using the write connection. The stored version starts at 1.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.id", order.ID)))
	defer span.End()

	if order.Version == 0 {
		order.Version = 1
	}
	_, err := r.writer.NewInsert().Model(order).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		if isDuplicate(err) {
			return ErrDuplicate
		}
	}
	return err
}

// GetByID fetches an order by primary key. Reads go to the writer so a
// reconcile never acts on a lagging replica.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	return r.get(ctx, r.writer, id)
}

// Find fetches an order for display using the read replica when available.
func (r *Repository) Find(ctx context.Context, id string) (*entity.Order, error) {
	return r.get(ctx, r.reader, id)
}

func (r *Repository) get(ctx context.Context, db *bun.DB, id string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := db.NewSelect().Model(order).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// Update writes the full record when the stored version still equals
// expectedVersion, then bumps order.Version.
func (r *Repository) Update(ctx context.Context, order *entity.Order, expectedVersion int64) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Update", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.Int64("order.version", expectedVersion),
	))
	defer span.End()

	order.Version = expectedVersion + 1
	res, err := r.writer.NewUpdate().
		Model(order).
		ExcludeColumn("created_at").
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		order.Version = expectedVersion
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		order.Version = expectedVersion
		return err
	}
	if affected == 0 {
		order.Version = expectedVersion
		span.SetStatus(codes.Error, "version conflict")
		return ErrVersionConflict
	}
	return nil
}

// List returns one page of orders, newest first, with the total match count.
func (r *Repository) List(ctx context.Context, filter Filter) ([]entity.Order, int, error) {
	filter = filter.Normalize()
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List", trace.WithAttributes(
		attribute.String("filter.status", filter.Status),
		attribute.Int("filter.page", filter.Page),
	))
	defer span.End()

	var orders []entity.Order
	q := r.reader.NewSelect().Model(&orders)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Target != "" {
		q = q.Where("target = ?", filter.Target)
	}
	total, err := q.
		Order("created_at DESC", "id").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		ScanAndCount(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, 0, err
	}
	return orders, total, nil
}

func isDuplicate(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
