package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationsAreOrdered(t *testing.T) {
	seen := map[int]bool{}
	for i, m := range Migrations {
		assert.Equal(t, i+1, m.Version, "migration %s", m.Name)
		assert.False(t, seen[m.Version])
		seen[m.Version] = true
		assert.NotEmpty(t, m.SQL)
	}
}

func TestPending(t *testing.T) {
	assert.Len(t, Pending(0), len(Migrations))
	pending := Pending(1)
	if assert.Len(t, pending, len(Migrations)-1) {
		assert.Equal(t, 2, pending[0].Version)
	}
	assert.Empty(t, Pending(len(Migrations)))
}
