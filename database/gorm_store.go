package database

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"wordroom/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// internalErr keeps domain errors and context errors as they are and wraps
// everything else as an internal storage failure.
func internalErr(err error, what string) error {
	var de *models.Error
	if errors.As(err, &de) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return models.Internal(err, what)
}

// GormRoomStore stores each room as one JSONB document in the rooms table.
// Update holds a row lock (SELECT ... FOR UPDATE) for the whole read-modify-write.
type GormRoomStore struct {
	db *gorm.DB
}

func NewGormRoomStore(db *gorm.DB) *GormRoomStore {
	return &GormRoomStore{db: db}
}

func toRecord(room *models.Room) (models.RoomRecord, error) {
	doc, err := json.Marshal(room)
	if err != nil {
		return models.RoomRecord{}, models.Internal(err, "encode room")
	}
	return models.RoomRecord{
		ID:          room.ID,
		Name:        room.Name,
		IsPrivate:   room.IsPrivate,
		MemberCount: len(room.Members),
		WordCount:   len(room.Words),
		Version:     room.Version,
		CreatedAt:   room.CreatedAt,
		Document:    doc,
	}, nil
}

func (s *GormRoomStore) Create(ctx context.Context, room *models.Room) error {
	if room.Version == 0 {
		room.Version = 1
	}
	rec, err := toRecord(room)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return models.Conflict("room %s already exists", room.ID)
		}
		return internalErr(err, "create room")
	}
	return nil
}

func (s *GormRoomStore) Get(ctx context.Context, id string) (*models.Room, error) {
	var rec models.RoomRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, roomNotFound(id)
		}
		return nil, internalErr(err, "load room")
	}
	return decodeRoom(rec.Document)
}

func (s *GormRoomStore) Update(ctx context.Context, id string, mutate Mutation) (*models.Room, error) {
	var result *models.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.RoomRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return roomNotFound(id)
			}
			return internalErr(err, "lock room")
		}

		room, err := decodeRoom(rec.Document)
		if err != nil {
			return err
		}
		action, err := mutate(room)
		if err != nil {
			return err
		}

		switch action {
		case Skip:
			result, err = decodeRoom(rec.Document)
			return err
		case Delete:
			if err := tx.Where("id = ?", id).Delete(&models.RoomRecord{}).Error; err != nil {
				return internalErr(err, "delete room")
			}
			result = nil
			return nil
		}

		room.Version++
		next, err := toRecord(room)
		if err != nil {
			return err
		}
		err = tx.Model(&models.RoomRecord{}).Where("id = ?", id).Updates(map[string]any{
			"name":         next.Name,
			"is_private":   next.IsPrivate,
			"member_count": next.MemberCount,
			"word_count":   next.WordCount,
			"version":      next.Version,
			"document":     next.Document,
		}).Error
		if err != nil {
			return internalErr(err, "save room")
		}
		result = room
		return nil
	})
	if err != nil {
		return nil, internalErr(err, "update room")
	}
	return result, nil
}

func (s *GormRoomStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.RoomRecord{})
	if res.Error != nil {
		return internalErr(res.Error, "delete room")
	}
	if res.RowsAffected == 0 {
		return roomNotFound(id)
	}
	return nil
}

var sortColumns = map[models.SortField]string{
	models.SortByCreatedAt:   "created_at",
	models.SortByName:        "name",
	models.SortByMemberCount: "member_count",
	models.SortByWordCount:   "word_count",
}

func (s *GormRoomStore) List(ctx context.Context, q RoomQuery) ([]models.Room, error) {
	query := s.db.WithContext(ctx).Model(&models.RoomRecord{})
	switch q.Visibility {
	case models.VisibilityPublic:
		query = query.Where("is_private = ?", false)
	case models.VisibilityPrivate:
		query = query.Where("is_private = ?", true)
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: q.Descending}).
		Order("created_at").Order("id")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var recs []models.RoomRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, internalErr(err, "list rooms")
	}
	rooms := make([]models.Room, 0, len(recs))
	for _, rec := range recs {
		room, err := decodeRoom(rec.Document)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *GormRoomStore) DeleteWhere(ctx context.Context, f RoomFilter) (int64, error) {
	query := s.db.WithContext(ctx)
	if f.NamePrefix != "" {
		query = query.Where("LOWER(name) LIKE ?", likeEscaper.Replace(strings.ToLower(f.NamePrefix))+"%")
	}
	if !f.CreatedBefore.IsZero() {
		query = query.Where("created_at < ?", f.CreatedBefore)
	}
	if f.NamePrefix == "" && f.CreatedBefore.IsZero() {
		// 条件なしの全削除はgormが拒否するので明示する
		query = query.Where("1 = 1")
	}
	res := query.Delete(&models.RoomRecord{})
	if res.Error != nil {
		return 0, internalErr(res.Error, "delete rooms")
	}
	return res.RowsAffected, nil
}
