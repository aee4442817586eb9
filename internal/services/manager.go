// Package services exposes the ledger to its callers: the chat agent, the
// dashboard, the scheduler and the bootstrap command.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-ledger/internal/config"
	"github.com/diewo77/go-ledger/internal/db"
	"github.com/diewo77/go-ledger/internal/metrics"
	"github.com/diewo77/go-ledger/internal/models"
	"github.com/diewo77/go-ledger/internal/repository"
	"github.com/diewo77/go-ledger/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager owns the connection and one instance of every repository. The
// repositories are exported for callers that need finer-grained access.
type Manager struct {
	conn *db.Conn
	log  *zap.Logger
	rec  metrics.Recorder

	Staff          *repository.StaffRepository
	Customers      *repository.CustomerRepository
	ServiceTypes   *repository.ServiceTypeRepository
	Products       *repository.ProductRepository
	Channels       *repository.ChannelRepository
	ServiceRecords *repository.ServiceRecordRepository
	ProductSales   *repository.ProductSaleRepository
	Memberships    *repository.MembershipRepository
	Messages       *repository.MessageRepository
	Summaries      *repository.SummaryRepository
	Plugins        *repository.PluginRepository
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.rec = r
		}
	}
}

// NewManager wires the repositories over an open connection.
func NewManager(conn *db.Conn, opts ...Option) *Manager {
	m := &Manager{conn: conn, log: zap.NewNop(), rec: metrics.Nop{}}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("ledger")

	m.Staff = repository.NewStaffRepository(conn)
	m.Customers = repository.NewCustomerRepository(conn)
	m.ServiceTypes = repository.NewServiceTypeRepository(conn)
	m.Products = repository.NewProductRepository(conn)
	m.Channels = repository.NewChannelRepository(conn)
	m.ServiceRecords = repository.NewServiceRecordRepository(conn, m.Customers, m.ServiceTypes, m.Staff, m.Channels)
	m.ProductSales = repository.NewProductSaleRepository(conn, m.Products, m.Customers, m.Staff)
	m.Memberships = repository.NewMembershipRepository(conn, m.Customers)
	m.Messages = repository.NewMessageRepository(conn)
	m.Summaries = repository.NewSummaryRepository(conn)
	m.Plugins = repository.NewPluginRepository(conn)
	return m
}

// Open connects using cfg and returns a ready Manager. The schema is not
// created; call CreateTables.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger, rec metrics.Recorder) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := db.Open(ctx, cfg.Database.URL, db.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectRetries:  5,
		RetryDelay:      2 * time.Second,
		Debug:           cfg.Database.Debug,
		SQLMigrations:   cfg.App.Migrations,
		Logger:          log,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	return NewManager(conn, WithLogger(log), WithRecorder(rec)), nil
}

// Mode reports the storage mode in use.
func (m *Manager) Mode() db.Mode { return m.conn.Mode() }

func (m *Manager) CreateTables(ctx context.Context) error {
	start := time.Now()
	err := m.conn.CreateTables(ctx)
	m.observe("create_tables", start, false, err)
	return err
}

// Seed loads the business profile's starting catalog.
func (m *Manager) Seed(ctx context.Context, profile config.BusinessProfile) error {
	start := time.Now()
	err := db.Seed(ctx, m.conn, profile)
	m.observe("seed", start, false, err, zap.String("profile", profile.Type))
	return err
}

func (m *Manager) Close() error {
	return m.conn.Close()
}

func (m *Manager) SaveRawMessage(ctx context.Context, in repository.RawMessageInput) (uint, error) {
	start := time.Now()
	id, err := m.Messages.SaveRawMessage(ctx, in)
	m.observe("save_raw_message", start, false, err, zap.Uint("id", id), zap.String("external_id", in.ExternalID))
	return id, err
}

// UpdateParseStatus reports false when the message does not exist.
func (m *Manager) UpdateParseStatus(ctx context.Context, id uint, status models.ParseStatus, result map[string]any, errMsg *string) (bool, error) {
	start := time.Now()
	ok, err := m.Messages.UpdateParseStatus(ctx, id, status, result, errMsg)
	m.observe("update_parse_status", start, !ok, err, zap.Uint("id", id), zap.String("status", string(status)))
	return ok, err
}

func (m *Manager) SaveServiceRecord(ctx context.Context, in repository.ServiceRecordInput, rawMessageID uint) (uint, error) {
	start := time.Now()
	id, err := m.ServiceRecords.Save(ctx, in, rawMessageID)
	m.observe("save_service_record", start, false, err, zap.Uint("id", id), zap.String("customer", in.CustomerName))
	return id, err
}

func (m *Manager) SaveProductSale(ctx context.Context, in repository.ProductSaleInput, rawMessageID uint) (uint, error) {
	start := time.Now()
	id, err := m.ProductSales.Save(ctx, in, rawMessageID)
	m.observe("save_product_sale", start, false, err, zap.Uint("id", id), zap.String("product", in.ProductName))
	return id, err
}

func (m *Manager) SaveMembership(ctx context.Context, in repository.MembershipInput, rawMessageID uint) (uint, error) {
	start := time.Now()
	id, err := m.Memberships.Save(ctx, in, rawMessageID)
	m.observe("save_membership", start, false, err, zap.Uint("id", id), zap.String("customer", in.CustomerName))
	return id, err
}

func (m *Manager) SaveDailySummary(ctx context.Context, day time.Time, f repository.SummaryFields) (uint, error) {
	start := time.Now()
	id, err := m.Summaries.Save(ctx, day, f)
	m.observe("save_daily_summary", start, false, err, zap.Uint("id", id), zap.Time("day", day))
	return id, err
}

// BuildDailySummary recomputes the figures for day from the ledger and stores them.
// A confirmation already given to that day is kept.
func (m *Manager) BuildDailySummary(ctx context.Context, day time.Time) (*models.DailySummary, error) {
	start := time.Now()
	s, err := m.buildDailySummary(ctx, day)
	m.observe("build_daily_summary", start, false, err, zap.Time("day", day))
	return s, err
}

func (m *Manager) buildDailySummary(ctx context.Context, day time.Time) (*models.DailySummary, error) {
	f, err := m.Summaries.Compute(ctx, day)
	if err != nil {
		return nil, err
	}
	if _, err := m.Summaries.Save(ctx, day, f); err != nil {
		return nil, err
	}
	return m.Summaries.GetByDate(ctx, day)
}

// GetDailyRecords lists the services and product sales of a YYYY-MM-DD date,
// services first.
func (m *Manager) GetDailyRecords(ctx context.Context, date string) ([]repository.DailyEntry, error) {
	day, err := repository.ParseDay(date)
	if err != nil {
		m.observe("get_daily_records", time.Now(), false, err, zap.String("date", date))
		return nil, err
	}
	return m.GetDailyRecordsOn(ctx, day)
}

func (m *Manager) GetDailyRecordsOn(ctx context.Context, day time.Time) ([]repository.DailyEntry, error) {
	start := time.Now()
	var services, sales []repository.DailyEntry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		services, err = m.ServiceRecords.ByDate(gctx, day)
		return err
	})
	g.Go(func() error {
		var err error
		sales, err = m.ProductSales.ByDate(gctx, day)
		return err
	})
	err := g.Wait()
	m.observe("get_daily_records", start, false, err, zap.Time("day", day), zap.Int("entries", len(services)+len(sales)))
	if err != nil {
		return nil, err
	}
	return append(services, sales...), nil
}

func (m *Manager) GetStaffList(ctx context.Context, activeOnly bool) ([]StaffInfo, error) {
	start := time.Now()
	staff, err := m.Staff.List(ctx, activeOnly)
	m.observe("get_staff_list", start, false, err)
	if err != nil {
		return nil, err
	}
	out := make([]StaffInfo, 0, len(staff))
	for _, s := range staff {
		out = append(out, staffInfo(s))
	}
	return out, nil
}

// GetCustomerInfo looks a customer up by name, preferring an exact match over
// a partial one, and returns it with its active cards. It returns nil when no
// customer matches.
func (m *Manager) GetCustomerInfo(ctx context.Context, name string) (*CustomerInfo, error) {
	start := time.Now()
	info, err := m.customerInfo(ctx, name)
	m.observe("get_customer_info", start, info == nil, err, zap.String("name", name))
	return info, err
}

func (m *Manager) customerInfo(ctx context.Context, name string) (*CustomerInfo, error) {
	found, err := m.Customers.Search(ctx, name)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	c := found[0]
	for _, candidate := range found {
		if strings.EqualFold(candidate.Name, name) {
			c = candidate
			break
		}
	}
	cards, err := m.Memberships.ActiveByCustomer(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	info := &CustomerInfo{ID: c.ID, Name: c.Name, Phone: c.Phone, Notes: c.Notes, Memberships: make([]MembershipInfo, 0, len(cards))}
	today := time.Now().UTC()
	for _, card := range cards {
		info.Memberships = append(info.Memberships, membershipInfo(card, today))
	}
	return info, nil
}

// GetChannelList lists active referral channels, of one type when channelType is set.
func (m *Manager) GetChannelList(ctx context.Context, channelType models.ChannelType) ([]ChannelInfo, error) {
	start := time.Now()
	channels, err := m.Channels.List(ctx, repository.ChannelFilter{Type: channelType, ActiveOnly: true})
	m.observe("get_channel_list", start, false, err, zap.String("type", string(channelType)))
	if err != nil {
		return nil, err
	}
	out := make([]ChannelInfo, 0, len(channels))
	for _, c := range channels {
		out = append(out, channelInfo(c))
	}
	return out, nil
}

// ExecuteRawSQL runs an administrative statement. Business operations must go
// through the repositories.
func (m *Manager) ExecuteRawSQL(ctx context.Context, stmt string, params ...any) (db.RawResult, error) {
	start := time.Now()
	res, err := m.conn.RawExec(ctx, stmt, params...)
	m.observe("execute_raw_sql", start, false, err, zap.Int64("rows_affected", res.RowsAffected))
	return res, err
}

func (m *Manager) observe(op string, start time.Time, declined bool, err error, fields ...zap.Field) {
	elapsed := time.Since(start)
	var verr *validation.Error
	outcome := metrics.OutcomeOK
	switch {
	case errors.As(err, &verr):
		outcome = metrics.OutcomeInvalid
	case err != nil:
		outcome = metrics.OutcomeError
	case declined:
		outcome = metrics.OutcomeDeclined
	}
	m.rec.Observe(op, outcome, elapsed)

	fields = append(fields, zap.String("op", op), zap.String("outcome", outcome), zap.Duration("elapsed", elapsed))
	switch outcome {
	case metrics.OutcomeError:
		m.log.Error("ledger operation failed", append(fields, zap.Error(err))...)
	case metrics.OutcomeInvalid:
		m.log.Warn("ledger input rejected", append(fields, zap.Strings("fields", verr.Fields()))...)
	default:
		m.log.Debug("ledger operation", fields...)
	}
}
