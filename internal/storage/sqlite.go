// Package storage persists templates, campaigns, sessions and the decision
// log in SQLite. Engine packages depend only on the store interfaces; this
// is the default backend.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"comply/internal/model"
)

type Store struct {
	DB *sql.DB
}

// Open opens/initializes the SQLite database with WAL and foreign keys,
// then migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		// continue; non-fatal
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		// continue; non-fatal
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes the underlying DB.
func (s *Store) Close() error { return s.DB.Close() }

func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			text TEXT NOT NULL,
			variables TEXT,
			category TEXT,
			country TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			business_id TEXT,
			opt_in_verified INTEGER NOT NULL DEFAULT 0,
			audience TEXT,
			schedule TEXT,
			messages TEXT,
			status TEXT NOT NULL DEFAULT 'draft',
			progress INTEGER NOT NULL DEFAULT 0,
			last_updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			recipient_key TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			last_activity TIMESTAMP NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			consecutive_messages INTEGER NOT NULL DEFAULT 0,
			user_replies INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active'
		);`,
		`CREATE TABLE IF NOT EXISTS decision_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			recipient TEXT,
			type_code INTEGER,
			campaign_id TEXT,
			authorized INTEGER NOT NULL,
			errors TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_log_ts ON decision_log(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_templates_status ON templates(status);`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --- template.Store ---

func (s *Store) PutTemplate(t model.Template) error {
	vars, err := json.Marshal(t.Variables)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`INSERT INTO templates (id,name,type,text,variables,category,country,status,created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, type=excluded.type, text=excluded.text,
			variables=excluded.variables, category=excluded.category,
			country=excluded.country, status=excluded.status`,
		t.ID, t.Name, t.Type, t.Text, string(vars), t.Category, t.Country, t.Status, t.CreatedAt)
	return err
}

func (s *Store) GetTemplate(id string) (model.Template, bool, error) {
	row := s.DB.QueryRow(`SELECT id,name,type,text,variables,COALESCE(category,''),COALESCE(country,''),status,created_at
		FROM templates WHERE id=?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return model.Template{}, false, nil
	}
	if err != nil {
		return model.Template{}, false, err
	}
	return t, true, nil
}

func (s *Store) ListTemplates() ([]model.Template, error) {
	rows, err := s.DB.Query(`SELECT id,name,type,text,variables,COALESCE(category,''),COALESCE(country,''),status,created_at
		FROM templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(r rowScanner) (model.Template, error) {
	var t model.Template
	var vars sql.NullString
	if err := r.Scan(&t.ID, &t.Name, &t.Type, &t.Text, &vars, &t.Category, &t.Country, &t.Status, &t.CreatedAt); err != nil {
		return model.Template{}, err
	}
	if vars.Valid && vars.String != "" {
		if err := json.Unmarshal([]byte(vars.String), &t.Variables); err != nil {
			return model.Template{}, fmt.Errorf("decode template variables: %w", err)
		}
	}
	return t, nil
}

// --- session.Store ---

func (s *Store) Get(key string) (model.Session, bool, error) {
	var sess model.Session
	err := s.DB.QueryRow(`SELECT id,recipient_key,start_time,last_activity,message_count,consecutive_messages,user_replies,status
		FROM sessions WHERE recipient_key=?`, key).
		Scan(&sess.ID, &sess.RecipientKey, &sess.StartTime, &sess.LastActivity,
			&sess.MessageCount, &sess.ConsecutiveMessages, &sess.UserReplies, &sess.Status)
	if err == sql.ErrNoRows {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, err
	}
	return sess, true, nil
}

func (s *Store) Put(key string, sess model.Session) error {
	_, err := s.DB.Exec(`INSERT INTO sessions (recipient_key,id,start_time,last_activity,message_count,consecutive_messages,user_replies,status)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(recipient_key) DO UPDATE SET
			id=excluded.id, start_time=excluded.start_time,
			last_activity=excluded.last_activity, message_count=excluded.message_count,
			consecutive_messages=excluded.consecutive_messages,
			user_replies=excluded.user_replies, status=excluded.status`,
		key, sess.ID, sess.StartTime, sess.LastActivity,
		sess.MessageCount, sess.ConsecutiveMessages, sess.UserReplies, sess.Status)
	return err
}

func (s *Store) Delete(key string) error {
	_, err := s.DB.Exec(`DELETE FROM sessions WHERE recipient_key=?`, key)
	return err
}

// --- campaigns ---

func (s *Store) CreateCampaign(c model.Campaign) error {
	audience, err := json.Marshal(c.Audience)
	if err != nil {
		return err
	}
	messages, err := json.Marshal(c.Messages)
	if err != nil {
		return err
	}
	var schedule any
	if c.Schedule != nil {
		raw, err := json.Marshal(c.Schedule)
		if err != nil {
			return err
		}
		schedule = string(raw)
	}
	_, err = s.DB.Exec(`INSERT INTO campaigns (id,name,type,business_id,opt_in_verified,audience,schedule,messages,status,progress,last_updated,created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, c.Type, c.BusinessID, btoi(c.OptInVerified), string(audience), schedule, string(messages),
		c.Status, c.Progress, c.LastUpdated, c.CreatedAt)
	return err
}

func (s *Store) GetCampaign(id string) (model.Campaign, bool, error) {
	row := s.DB.QueryRow(campaignSelect+` WHERE id=?`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return model.Campaign{}, false, nil
	}
	if err != nil {
		return model.Campaign{}, false, err
	}
	return c, true, nil
}

// ListCampaigns returns campaigns, optionally filtered by status.
func (s *Store) ListCampaigns(status string) ([]model.Campaign, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.DB.Query(campaignSelect+` WHERE status=? ORDER BY created_at DESC`, status)
	} else {
		rows, err = s.DB.Query(campaignSelect + ` ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (s *Store) UpdateCampaignStatus(id, status string, at time.Time) error {
	_, err := s.DB.Exec(`UPDATE campaigns SET status=?, last_updated=? WHERE id=?`, status, at, id)
	return err
}

func (s *Store) UpdateCampaignProgress(id string, progress int, at time.Time) error {
	_, err := s.DB.Exec(`UPDATE campaigns SET progress=?, last_updated=? WHERE id=?`, progress, at, id)
	return err
}

const campaignSelect = `SELECT id,name,type,COALESCE(business_id,''),opt_in_verified,audience,schedule,messages,status,progress,last_updated,created_at FROM campaigns`

func scanCampaign(r rowScanner) (model.Campaign, error) {
	var c model.Campaign
	var optIn int
	var audience, schedule, messages sql.NullString
	if err := r.Scan(&c.ID, &c.Name, &c.Type, &c.BusinessID, &optIn, &audience, &schedule, &messages,
		&c.Status, &c.Progress, &c.LastUpdated, &c.CreatedAt); err != nil {
		return model.Campaign{}, err
	}
	c.OptInVerified = optIn == 1
	if audience.Valid && audience.String != "" {
		if err := json.Unmarshal([]byte(audience.String), &c.Audience); err != nil {
			return model.Campaign{}, fmt.Errorf("decode audience: %w", err)
		}
	}
	if schedule.Valid && schedule.String != "" {
		c.Schedule = &model.Schedule{}
		if err := json.Unmarshal([]byte(schedule.String), c.Schedule); err != nil {
			return model.Campaign{}, fmt.Errorf("decode schedule: %w", err)
		}
	}
	if messages.Valid && messages.String != "" {
		if err := json.Unmarshal([]byte(messages.String), &c.Messages); err != nil {
			return model.Campaign{}, fmt.Errorf("decode messages: %w", err)
		}
	}
	return c, nil
}

// --- decision log ---

// LogDecision records one pipeline verdict for auditing and daily stats.
func (s *Store) LogDecision(recipient string, typeCode int, campaignID string, authorized bool, errs []string) error {
	_, err := s.DB.Exec(`INSERT INTO decision_log (recipient,type_code,campaign_id,authorized,errors)
		VALUES (?,?,?,?,?)`,
		recipient, typeCode, nullIfEmpty(campaignID), btoi(authorized), strings.Join(errs, "; "))
	return err
}

// StatsToday returns today's decision counts.
func (s *Store) StatsToday() (total, authorized, rejected int64, err error) {
	row := s.DB.QueryRow(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN authorized=1 THEN 1 ELSE 0 END), 0) AS authorized,
			COALESCE(SUM(CASE WHEN authorized=0 THEN 1 ELSE 0 END), 0) AS rejected
		FROM decision_log
		WHERE ts >= datetime('now','start of day') AND ts < datetime('now','start of day','+1 day')`)
	if err := row.Scan(&total, &authorized, &rejected); err != nil {
		return 0, 0, 0, err
	}
	return total, authorized, rejected, nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
