package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

const migrateLockID int64 = 41824182

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&AuditRunModel{}, &ConsentEventModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveRun stores or updates an audit run.
func (s *GormStore) SaveRun(run domain.AuditRun) error {
	model := runToModel(run)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"options", "selected_id", "status", "crisis_flag", "updated_at"}),
	}).Create(&model).Error
}

// GetRun retrieves an audit run.
func (s *GormStore) GetRun(id string) (domain.AuditRun, bool, error) {
	var model AuditRunModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.AuditRun{}, false, nil
		}
		return domain.AuditRun{}, false, err
	}
	return runFromModel(model), true, nil
}

// ListRunsBySession returns latest runs of a session.
func (s *GormStore) ListRunsBySession(sessionID string, limit int) ([]domain.AuditRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var models []AuditRunModel
	if err := s.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	runs := make([]domain.AuditRun, 0, len(models))
	for _, model := range models {
		runs = append(runs, runFromModel(model))
	}
	return runs, nil
}

// SetRunSelection marks one option as chosen and closes the run.
func (s *GormStore) SetRunSelection(id, optionID string) error {
	return s.db.Model(&AuditRunModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"selected_id": optionID,
			"status":      string(domain.RunStatusSelected),
			"updated_at":  time.Now().UTC(),
		}).Error
}

// AppendConsentEvent records a consent capture.
func (s *GormStore) AppendConsentEvent(event domain.ConsentEvent) error {
	model := consentToModel(event)
	return s.db.Create(&model).Error
}

// ListConsentEvents returns consent events for a run in capture order.
func (s *GormStore) ListConsentEvents(runID string) ([]domain.ConsentEvent, error) {
	var models []ConsentEventModel
	if err := s.db.Where("run_id = ?", runID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	events := make([]domain.ConsentEvent, 0, len(models))
	for _, model := range models {
		events = append(events, consentFromModel(model))
	}
	return events, nil
}

func runToModel(run domain.AuditRun) AuditRunModel {
	rawOptions, _ := json.Marshal(run.Options)
	return AuditRunModel{
		ID:           run.ID,
		SessionID:    run.SessionID,
		UserResponse: run.UserResponse,
		Options:      rawOptions,
		SelectedID:   run.SelectedID,
		Status:       string(run.Status),
		CrisisFlag:   run.CrisisFlag,
		CreatedAt:    run.CreatedAt,
		UpdatedAt:    run.UpdatedAt,
	}
}

func runFromModel(m AuditRunModel) domain.AuditRun {
	var options []domain.AuditOption
	if len(m.Options) > 0 {
		_ = json.Unmarshal(m.Options, &options)
	}
	status := domain.RunStatus(m.Status)
	if status == "" {
		status = domain.RunStatusOpen
	}
	return domain.AuditRun{
		ID:           m.ID,
		SessionID:    m.SessionID,
		UserResponse: m.UserResponse,
		Options:      options,
		SelectedID:   m.SelectedID,
		Status:       status,
		CrisisFlag:   m.CrisisFlag,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func consentToModel(event domain.ConsentEvent) ConsentEventModel {
	return ConsentEventModel{
		ID:                 event.ID,
		RunID:              event.RunID,
		EssentialAccepted:  event.EssentialAccepted,
		AnalyticsOptIn:     event.AnalyticsOptIn,
		CrisisAcknowledged: event.CrisisAcknowledged,
		SessionBound:       event.SessionBound,
		CreatedAt:          event.CreatedAt,
	}
}

func consentFromModel(m ConsentEventModel) domain.ConsentEvent {
	return domain.ConsentEvent{
		ID:                 m.ID,
		RunID:              m.RunID,
		EssentialAccepted:  m.EssentialAccepted,
		AnalyticsOptIn:     m.AnalyticsOptIn,
		CrisisAcknowledged: m.CrisisAcknowledged,
		SessionBound:       m.SessionBound,
		CreatedAt:          m.CreatedAt,
	}
}
