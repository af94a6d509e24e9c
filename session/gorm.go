package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/citysense-ai/citysense/core"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sessionRecord is the persisted session row. Scratch state is stored as a
// JSON blob; events live in their own append-only table.
type sessionRecord struct {
	App     string `gorm:"primaryKey;size:128"`
	User    string `gorm:"primaryKey;size:128"`
	ID      string `gorm:"primaryKey;size:128"`
	State   []byte
	Created time.Time
	Updated time.Time
}

func (sessionRecord) TableName() string { return "sessions" }

// eventRecord is one persisted event. Seq preserves emission order.
type eventRecord struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	App       string `gorm:"index:idx_event_session;size:128"`
	User      string `gorm:"index:idx_event_session;size:128"`
	SessionID string `gorm:"index:idx_event_session;size:128"`
	Payload   []byte
	Timestamp time.Time
}

func (eventRecord) TableName() string { return "session_events" }

// GormStore is a SessionStore backed by a GORM database handle. Sessions and
// their event history survive process restarts.
type GormStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at path and migrates
// the session schema.
func NewSQLiteStore(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing database handle and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&sessionRecord{}, &eventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Create allocates a fresh session for the key, discarding any previous
// session stored under it.
func (s *GormStore) Create(key core.SessionKey) (*core.Session, error) {
	sess := core.NewSession(key)

	rec, err := toSessionRecord(sess)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("app = ? AND user = ? AND session_id = ?", key.App, key.User, key.ID).
			Delete(&eventRecord{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session %s: %w", key, err)
	}

	return sess, nil
}

// Get loads a session and its full event history, or ErrSessionNotFound.
func (s *GormStore) Get(key core.SessionKey) (*core.Session, error) {
	var rec sessionRecord
	err := s.db.Where("app = ? AND user = ? AND id = ?", key.App, key.User, key.ID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}

	sess := core.NewSession(key)
	sess.Created = rec.Created
	sess.Updated = rec.Updated
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, &sess.State); err != nil {
			return nil, fmt.Errorf("failed to decode session state %s: %w", key, err)
		}
	}

	var eventRecs []eventRecord
	if err := s.db.Where("app = ? AND user = ? AND session_id = ?", key.App, key.User, key.ID).
		Order("seq asc").Find(&eventRecs).Error; err != nil {
		return nil, fmt.Errorf("failed to load session events %s: %w", key, err)
	}
	for _, er := range eventRecs {
		var ev core.Event
		if err := json.Unmarshal(er.Payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event for session %s: %w", key, err)
		}
		sess.Events = append(sess.Events, ev)
	}

	return sess, nil
}

// Update persists the session's scratch state and timestamps. Event history
// is append-only and maintained via AppendEvent.
func (s *GormStore) Update(sess *core.Session) error {
	rec, err := toSessionRecord(sess)
	if err != nil {
		return err
	}

	res := s.db.Model(&sessionRecord{}).
		Where("app = ? AND user = ? AND id = ?", rec.App, rec.User, rec.ID).
		Updates(map[string]any{"state": rec.State, "updated": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update session %s: %w", sess.Key, res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

// AppendEvent adds an event to the session's history.
func (s *GormStore) AppendEvent(key core.SessionKey, ev core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&sessionRecord{}).
			Where("app = ? AND user = ? AND id = ?", key.App, key.User, key.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return core.ErrSessionNotFound
		}

		if err := tx.Create(&eventRecord{
			App:       key.App,
			User:      key.User,
			SessionID: key.ID,
			Payload:   payload,
			Timestamp: ev.Timestamp,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&sessionRecord{}).
			Where("app = ? AND user = ? AND id = ?", key.App, key.User, key.ID).
			Update("updated", time.Now()).Error
	})
}

// ApplyDelta merges a key/value delta into the persisted session state.
func (s *GormStore) ApplyDelta(key core.SessionKey, delta map[string]interface{}) error {
	if len(delta) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var rec sessionRecord
		err := tx.Where("app = ? AND user = ? AND id = ?", key.App, key.User, key.ID).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		state := map[string]any{}
		if len(rec.State) > 0 {
			if err := json.Unmarshal(rec.State, &state); err != nil {
				return fmt.Errorf("failed to decode session state %s: %w", key, err)
			}
		}
		for k, v := range delta {
			state[k] = v
		}

		encoded, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to encode session state: %w", err)
		}

		return tx.Model(&sessionRecord{}).
			Where("app = ? AND user = ? AND id = ?", key.App, key.User, key.ID).
			Updates(map[string]any{"state": encoded, "updated": time.Now()}).Error
	})
}

func toSessionRecord(sess *core.Session) (sessionRecord, error) {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return sessionRecord{}, fmt.Errorf("failed to encode session state: %w", err)
	}
	return sessionRecord{
		App:     sess.Key.App,
		User:    sess.Key.User,
		ID:      sess.Key.ID,
		State:   state,
		Created: sess.Created,
		Updated: sess.Updated,
	}, nil
}
