package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	notifyChannel   = "sms_messages_changes"
	messageColumns  = `id, sender_number, receiver_number, message_text, risk_level, ai_explanation, sent_at, analyzed_at`
	reportColumns   = `sender_number, report_count, reported_by, updated_at`
	activityColumns = `id, user_id, url, risk_level, "timestamp"`
)

type reportedNumberRow struct {
	SenderNumber string         `db:"sender_number"`
	ReportCount  int            `db:"report_count"`
	ReportedBy   pq.StringArray `db:"reported_by"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r reportedNumberRow) model() *models.ReportedNumber {
	return &models.ReportedNumber{
		SenderNumber: r.SenderNumber,
		ReportCount:  r.ReportCount,
		ReportedBy:   append([]string{}, r.ReportedBy...),
		UpdatedAt:    r.UpdatedAt,
	}
}

// PostgresStorage persists rows in PostgreSQL. The change feed is driven by a
// trigger that NOTIFYs every sms_messages change.
type PostgresStorage struct {
	db       *sqlx.DB
	listener *pq.Listener
	feed     *Broadcaster
	logger   *zap.Logger
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewPostgresStorage(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStorage, error) {
	logger = logger.Named("storage")

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Change feed listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		db.Close()
		return nil, fmt.Errorf("error listening on %s: %w", notifyChannel, err)
	}

	s := &PostgresStorage{
		db:       db,
		listener: listener,
		feed:     NewBroadcaster(),
		logger:   logger,
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.listen()

	logger.Info("Connected to the database")
	return s, nil
}

func migrateSchema(db *sqlx.DB) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("error reading migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "shieldbot", driver)
	if err != nil {
		return fmt.Errorf("error creating migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) listen() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				s.logger.Warn("Change feed connection re-established, requesting resync")
				s.feed.Resync()
				continue
			}
			var ev ChangeEvent
			if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
				s.logger.Error("Failed to decode change notification", zap.Error(err))
				continue
			}
			s.feed.Publish(ev)
		case <-time.After(90 * time.Second):
			go func() {
				if err := s.listener.Ping(); err != nil {
					s.logger.Warn("Change feed ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// validMessageID reports whether id can match the UUID primary key. Anything
// else cannot exist and is reported as not found rather than a query error.
func validMessageID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *PostgresStorage) InsertMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	if m.RiskLevel == "" {
		m.RiskLevel = models.RiskPending
	}

	query := `INSERT INTO sms_messages (` + messageColumns + `)
		VALUES (:id, :sender_number, :receiver_number, :message_text, :risk_level, :ai_explanation, :sent_at, :analyzed_at)`
	if _, err := s.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("error inserting message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	if !validMessageID(id) {
		return nil, ErrNotFound
	}
	var m models.Message
	err := s.db.GetContext(ctx, &m, `SELECT `+messageColumns+` FROM sms_messages WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting message: %w", err)
	}
	return &m, nil
}

func (s *PostgresStorage) ListMessages(ctx context.Context, filter MessageFilter) ([]*models.Message, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.ReceiverNumber != "" {
		args = append(args, filter.ReceiverNumber)
		conds = append(conds, fmt.Sprintf("receiver_number = $%d", len(args)))
	}
	if filter.RiskLevel != "" {
		args = append(args, filter.RiskLevel)
		conds = append(conds, fmt.Sprintf("risk_level = $%d", len(args)))
	}

	query := `SELECT ` + messageColumns + ` FROM sms_messages` + where(conds) + ` ORDER BY sent_at DESC, id DESC`

	messages := []*models.Message{}
	if err := s.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	return messages, nil
}

func (s *PostgresStorage) CommitVerdict(ctx context.Context, id string, verdict models.Verdict, analyzedAt time.Time) (*models.Message, error) {
	if !validMessageID(id) {
		return nil, ErrNotFound
	}
	query := `
		UPDATE sms_messages
		SET risk_level = $2, ai_explanation = $3, analyzed_at = $4
		WHERE id = $1 AND risk_level = 'pending'
		RETURNING ` + messageColumns

	var m models.Message
	err := s.db.GetContext(ctx, &m, query, id, verdict.RiskLevel, verdict.Explanation, analyzedAt.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		stored, getErr := s.GetMessage(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return stored, ErrAlreadyAnalyzed
	}
	if err != nil {
		return nil, fmt.Errorf("error committing verdict: %w", err)
	}
	return &m, nil
}

func (s *PostgresStorage) DeleteMessage(ctx context.Context, id string) error {
	if !validMessageID(id) {
		return ErrNotFound
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM sms_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) GetReportedNumber(ctx context.Context, sender string) (*models.ReportedNumber, error) {
	var row reportedNumberRow
	err := s.db.GetContext(ctx, &row, `SELECT `+reportColumns+` FROM reported_numbers WHERE sender_number = $1`, sender)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting reported number: %w", err)
	}
	return row.model(), nil
}

func (s *PostgresStorage) AddReport(ctx context.Context, sender, reporter string, allowDuplicate bool) (*models.ReportedNumber, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reported_numbers (sender_number) VALUES ($1) ON CONFLICT (sender_number) DO NOTHING`,
		sender); err != nil {
		return nil, fmt.Errorf("error creating reported number: %w", err)
	}

	var row reportedNumberRow
	if err := tx.GetContext(ctx, &row,
		`SELECT `+reportColumns+` FROM reported_numbers WHERE sender_number = $1 FOR UPDATE`,
		sender); err != nil {
		return nil, fmt.Errorf("error locking reported number: %w", err)
	}

	if allowDuplicate || !row.model().HasReporter(reporter) {
		if err := tx.GetContext(ctx, &row, `
			UPDATE reported_numbers
			SET reported_by = array_append(reported_by, $2),
			    report_count = report_count + 1,
			    updated_at = NOW()
			WHERE sender_number = $1
			RETURNING `+reportColumns,
			sender, reporter); err != nil {
			return nil, fmt.Errorf("error adding report: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing report: %w", err)
	}
	return row.model(), nil
}

func (s *PostgresStorage) AppendActivity(ctx context.Context, log *models.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}

	query := `INSERT INTO activity_logs (` + activityColumns + `) VALUES (:id, :user_id, :url, :risk_level, :timestamp)`
	if _, err := s.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("error appending activity: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListActivity(ctx context.Context, filter ActivityFilter) ([]*models.ActivityLog, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.RiskLevel != "" {
		args = append(args, filter.RiskLevel)
		conds = append(conds, fmt.Sprintf("risk_level = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conds = append(conds, fmt.Sprintf(`"timestamp" >= $%d`, len(args)))
	}

	query := `SELECT ` + activityColumns + ` FROM activity_logs` + where(conds) + ` ORDER BY "timestamp" DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	logs := []*models.ActivityLog{}
	if err := s.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("error querying activity: %w", err)
	}
	return logs, nil
}

func (s *PostgresStorage) Subscribe(ctx context.Context, receiver string) (*Subscription, error) {
	return s.feed.Subscribe(ctx, receiver)
}

func (s *PostgresStorage) Close() error {
	close(s.done)
	s.wg.Wait()
	s.feed.Close()
	if err := s.listener.Close(); err != nil {
		s.logger.Warn("Failed to close change feed listener", zap.Error(err))
	}
	return s.db.Close()
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
