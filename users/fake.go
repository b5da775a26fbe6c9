package users

import (
	"context"
	"errors"

	"github.com/brianvoe/gofakeit/v6"
)

// SeedFakeUsers inserts count randomly generated users into a store.
// Intended for development and benchmarking. Reports how many rows were
// actually inserted; generated email collisions are skipped, not fatal.
func SeedFakeUsers(ctx context.Context, s Store, count int) (int, error) {
	inserted := 0
	for i := 0; i < count; i++ {
		var age *int16
		if gofakeit.Bool() {
			a := int16(gofakeit.Number(18, 99))
			age = &a
		}
		_, err := s.Create(ctx, CreateUserParams{
			Name:  gofakeit.Name(),
			Email: gofakeit.Email(),
			Age:   age,
		})
		if errors.Is(err, ErrEmailTaken) {
			continue
		} else if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
