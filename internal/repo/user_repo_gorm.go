package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"go-user-service/internal/domain"
	"go-user-service/internal/feature/user"
)

// UserRepo is the gorm-backed domain.UserStore. The database is the
// sole arbiter of concurrent writes: uniqueness of username/email is
// enforced by the unique indexes, not by pre-checks here.
type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) ByID(ctx context.Context, id string) (*user.Model, error) {
	var u user.Model
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ByUsername(ctx context.Context, username string) (*user.Model, error) {
	var u user.Model
	err := r.db.WithContext(ctx).First(&u, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) ([]user.Model, error) {
	var us []user.Model
	err := r.db.WithContext(ctx).Where("email = ?", email).Find(&us).Error
	return us, err
}

func (r *UserRepo) ByVerificationToken(ctx context.Context, token string) (*user.Model, error) {
	var u user.Model
	err := r.db.WithContext(ctx).First(&u, "verification_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ByResetToken(ctx context.Context, token string) ([]user.Model, error) {
	var us []user.Model
	err := r.db.WithContext(ctx).Where("reset_token = ?", token).Find(&us).Error
	return us, err
}

func (r *UserRepo) ByIDs(ctx context.Context, ids []string) ([]user.Model, error) {
	var us []user.Model
	err := r.db.WithContext(ctx).
		Select(user.PublicColumns).
		Where("id IN ?", ids).
		Find(&us).Error
	return us, err
}

func (r *UserRepo) Search(ctx context.Context, q string, offset, limit int) ([]user.Model, error) {
	tx := r.db.WithContext(ctx).Model(&user.Model{})
	if s := strings.TrimSpace(q); s != "" {
		tx = tx.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	var us []user.Model
	err := tx.Order("username asc").Offset(offset).Limit(limit).Find(&us).Error
	return us, err
}

func (r *UserRepo) Create(ctx context.Context, m *user.Model) error {
	return translate(r.db.WithContext(ctx).Create(m).Error)
}

func (r *UserRepo) Save(ctx context.Context, m *user.Model) error {
	return translate(r.db.WithContext(ctx).Save(m).Error)
}

func (r *UserRepo) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	return translate(r.db.WithContext(ctx).
		Model(&user.Model{}).
		Where("id = ?", id).
		Updates(stampUpdatedAt(fields)).Error)
}

// stampUpdatedAt adds the update timestamp on a copy; the caller
// keeps ownership of fields.
func stampUpdatedAt(fields map[string]any) map[string]any {
	up := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		up[k] = v
	}
	if _, ok := up["updated_at"]; !ok {
		up["updated_at"] = time.Now()
	}
	return up
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&user.Model{}).Error
}

func (r *UserRepo) FlushSubroles(ctx context.Context, role string, subroles user.StringSet) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&user.Model{}).
		Where("role = ?", role).
		Updates(map[string]any{"subroles": subroles, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// RemoveSubrole walks the table in batches; a JSON-array membership
// test is not portable across the supported drivers, so the filter
// runs here.
func (r *UserRepo) RemoveSubrole(ctx context.Context, label string) (int64, error) {
	var touched int64
	var batch []user.Model
	err := r.db.WithContext(ctx).FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			u := &batch[i]
			if !u.Subroles.Contains(label) {
				continue
			}
			res := tx.Model(&user.Model{}).
				Where("id = ?", u.ID).
				Updates(map[string]any{"subroles": u.Subroles.Without(label), "updated_at": time.Now()})
			if res.Error != nil {
				return res.Error
			}
			touched += res.RowsAffected
		}
		return nil
	}).Error
	return touched, err
}

// translate maps driver failures onto domain errors. Duplicate-key
// detection keys off the error text so it works for both mysql and
// postgres without importing either driver here. The offending unique
// index is identified by name (uq_users_username / uq_users_email);
// mysql embeds the conflicting value in the message, so the bare
// column words are only a fallback when no index name is present.
func translate(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	dup := strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation") ||
		errors.Is(err, gorm.ErrDuplicatedKey)
	if dup {
		switch {
		case strings.Contains(msg, "uq_users_username"):
			return domain.ErrDuplicateUsername
		case strings.Contains(msg, "uq_users_email"):
			return domain.ErrDuplicateEmail
		case strings.Contains(msg, "username"):
			return domain.ErrDuplicateUsername
		case strings.Contains(msg, "email"):
			return domain.ErrDuplicateEmail
		default:
			return domain.ErrValidation
		}
	}
	if strings.Contains(msg, "cannot be null") ||
		strings.Contains(msg, "not-null constraint") ||
		strings.Contains(msg, "check constraint") {
		return domain.ErrValidation
	}
	return err
}
