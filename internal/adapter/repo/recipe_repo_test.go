package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealplan/internal/domain"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return errors.New("no row")
	}
	return r.scan(dest...)
}

type stubDB struct {
	mu     sync.Mutex
	byKey  map[string]string
	bodies map[string][]byte
	execs  []string
	err    error
}

func newStubDB() *stubDB {
	return &stubDB{byKey: make(map[string]string), bodies: make(map[string][]byte)}
}

func (s *stubDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, query)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (s *stubDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unsupported query: %s", query)
}

func (s *stubDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.err != nil:
		err := s.err
		return stubRow{scan: func(dest ...any) error { return err }}
	case strings.Contains(query, "insert into recipes"):
		key := args[1].(string)
		id, ok := s.byKey[key]
		if !ok {
			id = args[0].(string)
			s.byKey[key] = id
		}
		s.bodies[id] = append([]byte(nil), args[6].([]byte)...)
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*string) = id
			return nil
		}}
	case strings.Contains(query, "where id = $1"):
		body, ok := s.bodies[args[0].(string)]
		if !ok {
			return stubRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
		}
		id := args[0].(string)
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*string) = id
			*dest[1].(*[]byte) = body
			return nil
		}}
	}
	return stubRow{scan: func(dest ...any) error {
		return fmt.Errorf("unsupported query: %s", query)
	}}
}

func TestRecipeRepositoryUpsertIsIdempotent(t *testing.T) {
	db := newStubDB()
	repo := NewRecipeRepository(db)
	ctx := context.Background()

	recipe := &domain.RecipeArtifact{TaskID: "b1-0001", BatchID: "b1", Title: "Green Curry"}
	first, err := repo.Upsert(ctx, recipe, recipe.TaskID)
	require.NoError(t, err)

	recipe.Title = "Green Curry v2"
	second, err := repo.Upsert(ctx, recipe, recipe.TaskID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, db.bodies, 1)

	got, err := repo.GetByID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Green Curry v2", got.Title)
	assert.Equal(t, first, got.RecordID)

	var stored domain.RecipeArtifact
	require.NoError(t, json.Unmarshal(db.bodies[first], &stored))
	assert.Equal(t, "b1", stored.BatchID)
}

func TestRecipeRepositoryGetByIDNotFound(t *testing.T) {
	repo := NewRecipeRepository(newStubDB())
	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecipeRepositoryRequiresKey(t *testing.T) {
	repo := NewRecipeRepository(newStubDB())
	_, err := repo.Upsert(context.Background(), &domain.RecipeArtifact{Title: "x"}, "")
	require.Error(t, err)
}

func TestRecipeRepositoryPropagatesErrors(t *testing.T) {
	db := newStubDB()
	db.err = errors.New("constraint violated")
	repo := NewRecipeRepository(db)
	_, err := repo.Upsert(context.Background(), &domain.RecipeArtifact{Title: "x"}, "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrTransient))
}

func TestRecipeRepositoryEnsureSchema(t *testing.T) {
	db := newStubDB()
	require.NoError(t, NewRecipeRepository(db).EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], "create table if not exists recipes")
}
