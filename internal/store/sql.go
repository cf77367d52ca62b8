package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"evcal/internal/caldate"
	appLog "evcal/internal/log"
	"evcal/internal/model"
)

// eventRecord is the events table row. Dates are stored as YYYY-MM-DD text,
// which sorts and compares the same way the dates do.
type eventRecord struct {
	ID          string       `gorm:"primaryKey;size:64"`
	Title       string       `gorm:"size:255;not null"`
	Description string       `gorm:"type:text"`
	StartDate   caldate.Date `gorm:"type:varchar(10);not null;index"`
	EndDate     caldate.Date `gorm:"type:varchar(10);not null;index"`
	Category    string       `gorm:"size:16;not null"`
	Industry    string       `gorm:"size:64;not null"`
	Country     string       `gorm:"size:64"`
	CreatedBy   string       `gorm:"size:128;not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (eventRecord) TableName() string { return "events" }

func toRecord(e model.Event) eventRecord {
	return eventRecord{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
		Category:    string(e.Category),
		Industry:    string(e.Industry),
		Country:     string(e.Country),
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (r eventRecord) toEvent() model.Event {
	return model.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Category:    model.Category(r.Category),
		Industry:    model.Industry(r.Industry),
		Country:     model.Country(r.Country),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type analyticRecord struct {
	ID        string            `gorm:"primaryKey;size:64"`
	UserID    string            `gorm:"size:128;not null;index"`
	EventID   string            `gorm:"size:64;index"`
	Action    string            `gorm:"size:32;not null"`
	Timestamp time.Time         `gorm:"not null;index"`
	Metadata  map[string]string `gorm:"serializer:json"`
}

func (analyticRecord) TableName() string { return "user_analytics" }

// SQL is a GORM-backed Store.
type SQL struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) a SQLite database at dsn. ":memory:" gives
// a private in-memory database.
func OpenSQLite(dsn string) (*SQL, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// One connection: SQLite serialises writers anyway, and every new
	// connection to ":memory:" would see an empty database.
	sqlDB.SetMaxOpenConns(1)

	s, err := NewSQL(db)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	appLog.Info("store: sqlite ready", "dsn", dsn)
	return s, nil
}

// NewSQL wraps an existing GORM handle and migrates the schema.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&eventRecord{}, &analyticRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) ordered(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Order("start_date asc, end_date asc, id asc")
}

// load converts a row and rejects values the model does not know, such as
// a category written by another tool or an older schema.
func (r eventRecord) load() (model.Event, bool) {
	e := r.toEvent()
	if err := e.Validate(); err != nil {
		appLog.Warn("store: invalid event row skipped", "id", r.ID, "err", err)
		return model.Event{}, false
	}
	return e, true
}

func collect(recs []eventRecord) []model.Event {
	out := make([]model.Event, 0, len(recs))
	for _, r := range recs {
		if e, ok := r.load(); ok {
			out = append(out, e)
		}
	}
	return out
}

func (s *SQL) List(ctx context.Context) ([]model.Event, error) {
	var recs []eventRecord
	if err := s.ordered(ctx).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collect(recs), nil
}

func (s *SQL) ListRange(ctx context.Context, from, to caldate.Date) ([]model.Event, error) {
	var recs []eventRecord
	err := s.ordered(ctx).
		Where("start_date <= ? AND end_date >= ?", to.String(), from.String()).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list events %s..%s: %w", from, to, err)
	}
	return collect(recs), nil
}

func (s *SQL) ListByMonth(ctx context.Context, year int, month time.Month) ([]model.Event, error) {
	from, to := MonthRange(year, month)
	return s.ListRange(ctx, from, to)
}

func (s *SQL) Get(ctx context.Context, id string) (model.Event, error) {
	var rec eventRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	e, ok := rec.load()
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return e, nil
}

func (s *SQL) Create(ctx context.Context, in model.EventInput, createdBy string) (model.Event, error) {
	e, err := prepare(in, uuid.NewString(), createdBy, timeNow().UTC())
	if err != nil {
		return model.Event{}, err
	}
	rec := toRecord(e)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

func (s *SQL) Update(ctx context.Context, id string, p model.EventPatch) (model.Event, error) {
	var out model.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec eventRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		updated, err := patch(rec.toEvent(), p, timeNow().UTC())
		if err != nil {
			return err
		}
		next := toRecord(updated)
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		var verr *model.ValidationError
		if errors.Is(err, ErrNotFound) || errors.As(err, &verr) {
			return model.Event{}, err
		}
		return model.Event{}, fmt.Errorf("update event %s: %w", id, err)
	}
	return out, nil
}

func (s *SQL) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&eventRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete event %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) ReplaceSource(ctx context.Context, owner string, events []model.Event) error {
	now := timeNow().UTC()
	recs := make([]eventRecord, 0, len(events))
	for _, e := range events {
		e.CreatedBy = owner
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
		recs = append(recs, toRecord(e))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("created_by = ?", owner).Delete(&eventRecord{}).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return tx.CreateInBatches(recs, 200).Error
	})
	if err != nil {
		return fmt.Errorf("replace events of %s: %w", owner, err)
	}
	return nil
}

func (s *SQL) RecordAnalytic(ctx context.Context, a model.Analytic) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = timeNow().UTC()
	}
	rec := analyticRecord{
		ID:        a.ID,
		UserID:    a.UserID,
		EventID:   a.EventID,
		Action:    string(a.Action),
		Timestamp: a.Timestamp,
		Metadata:  a.Metadata,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record analytic: %w", err)
	}
	return nil
}

func (s *SQL) ListAnalytics(ctx context.Context, limit int) ([]model.Analytic, error) {
	q := s.db.WithContext(ctx).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []analyticRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list analytics: %w", err)
	}
	out := make([]model.Analytic, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.Analytic{
			ID:        r.ID,
			UserID:    r.UserID,
			EventID:   r.EventID,
			Action:    model.Action(r.Action),
			Timestamp: r.Timestamp.UTC(),
			Metadata:  r.Metadata,
		})
	}
	return out, nil
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
