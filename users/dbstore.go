package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DBStore persists users with gorm. It is the backend of record; wrap it in a
// CachedStore for serving reads.
type DBStore struct {
	db *gorm.DB
}

var _ Store = (*DBStore)(nil)

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) InitSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("migrating users table: %w", err)
	}
	return nil
}

func (s *DBStore) ListAll(ctx context.Context) ([]User, error) {
	all := []User{}
	if err := s.db.WithContext(ctx).Order("name").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return all, nil
}

func (s *DBStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	return &u, nil
}

func (s *DBStore) Create(ctx context.Context, params CreateUserParams) (*User, error) {
	u := User{
		ID:    uuid.New(),
		Name:  params.Name,
		Email: params.Email,
		Age:   params.Age,
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &u, nil
}

func (s *DBStore) Update(ctx context.Context, id uuid.UUID, params UpdateUserParams) (*User, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	updates := map[string]interface{}{}
	if params.Name != nil && *params.Name != "" {
		updates["name"] = *params.Name
	}
	if params.Email != nil && *params.Email != "" {
		updates["email"] = *params.Email
	}
	if params.Age != nil {
		updates["age"] = *params.Age
	}
	if len(updates) == 0 {
		return existing, nil
	}

	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("updating user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		// row was deleted between the read and the update
		return nil, nil
	}

	updated := *existing
	if v, ok := updates["name"]; ok {
		updated.Name = v.(string)
	}
	if v, ok := updates["email"]; ok {
		updated.Email = v.(string)
	}
	if params.Age != nil {
		updated.Age = params.Age
	}
	return &updated, nil
}

func (s *DBStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&User{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("deleting user %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SeedSampleData inserts a single example user, but only when the store is
// completely empty. Useful for demos and local development.
func (s *DBStore) SeedSampleData(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil
	}
	age := int16(30)
	_, err := s.Create(ctx, CreateUserParams{
		Name:  "John Doe",
		Email: "john@example.com",
		Age:   &age,
	})
	return err
}
