package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/BradenHooton/scholar/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestMapPostgresError(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"invalid uuid", &pgconn.PgError{Code: "22P02"}, models.ErrNotFound},
		{"check violation", &pgconn.PgError{Code: "23514"}, models.ErrBadRequest},
		{"passthrough", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapPostgresError(tt.err))
		})
	}
}

func TestMapMongoError(t *testing.T) {
	assert.NoError(t, MapMongoError(nil))
	assert.Equal(t, models.ErrNotFound, MapMongoError(mongo.ErrNoDocuments))

	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.Equal(t, models.ErrConflict, MapMongoError(dup))

	other := errors.New("server selection timeout")
	assert.Equal(t, other, MapMongoError(other))
}
