package utils

import (
	"testing"

	"addr-hierarchy/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	c := config.Database{Host: "db", Port: 5433, User: "cbdb", Password: "p@ss/w", Name: "latest", SSLMode: "require"}
	assert.Equal(t, "postgres://cbdb:p%40ss%2Fw@db:5433/latest?sslmode=require", BuildPostgresDSN(c))

	c.Password = ""
	assert.Equal(t, "postgres://cbdb@db:5433/latest?sslmode=require", BuildPostgresDSN(c))
}

func TestOpen_SQLiteMemory(t *testing.T) {
	db, err := Open(config.Database{Driver: config.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.Get(&n, "SELECT 1"))
	assert.Equal(t, 1, n)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.Database{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpenRedis_DisabledWithoutAddr(t *testing.T) {
	assert.Nil(t, OpenRedis(config.Redis{}))
	rc := OpenRedis(config.Redis{Addr: "127.0.0.1:6379", DB: 2})
	require.NotNil(t, rc)
	assert.Equal(t, 2, rc.Options().DB)
	_ = rc.Close()
}
