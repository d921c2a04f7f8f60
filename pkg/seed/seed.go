// Package seed generates mock users for demos and load tests.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/NicolasHaas/portalmod/pkg/model"
	"github.com/NicolasHaas/portalmod/pkg/store"
)

// Generator creates reproducible mock users.
type Generator struct {
	faker *gofakeit.Faker
	seed  int64
}

// NewGenerator creates a generator. The same seed yields the same users;
// a zero seed uses the current time.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{faker: gofakeit.New(uint64(seed)), seed: seed}
}

// Seed returns the seed in use.
func (g *Generator) Seed() int64 { return g.seed }

// Users returns count users. Roughly one in twenty is an admin, two staff
// and three moderators; the rest are students.
func (g *Generator) Users(count int) []model.UserRecord {
	users := make([]model.UserRecord, 0, count)
	for i := 0; i < count; i++ {
		first, last := g.faker.FirstName(), g.faker.LastName()
		name := first + " " + last
		if len([]rune(name)) > model.MaxNameLength {
			name = string([]rune(name)[:model.MaxNameLength])
		}
		local := strings.ToLower(emailSafe(first) + "." + emailSafe(last))
		users = append(users, model.UserRecord{
			Name:  name,
			Email: fmt.Sprintf("%s.%d@%s", local, i, g.faker.DomainName()),
			Role:  g.role(),
		})
	}
	return users
}

func (g *Generator) role() model.Role {
	switch n := g.faker.Number(1, 20); {
	case n == 1:
		return model.RoleAdmin
	case n <= 3:
		return model.RoleStaff
	case n <= 6:
		return model.RoleModerator
	default:
		return model.RoleStudent
	}
}

// Populate creates count generated users in st and returns how many were
// stored. Collisions with existing users are skipped.
func (g *Generator) Populate(ctx context.Context, st store.UserStore, count int) (int, error) {
	created := 0
	for _, u := range g.Users(count) {
		_, err := st.CreateUser(ctx, u)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed: %w", err)
		}
		created++
	}
	return created, nil
}

func emailSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
