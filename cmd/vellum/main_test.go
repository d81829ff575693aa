package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetActorPrecedence(t *testing.T) {
	t.Setenv("VELLUM_ACTOR", "env-actor")

	actorFlag = "flag-actor"
	defer func() { actorFlag = "" }()
	assert.Equal(t, "flag-actor", getActor())

	actorFlag = ""
	assert.Equal(t, "env-actor", getActor())
}

func TestResolveDBPathFlagWins(t *testing.T) {
	dbPath = "/tmp/override.db"
	defer func() { dbPath = "" }()
	assert.Equal(t, "/tmp/override.db", resolveDBPath())
}

func TestResolveDBPathEnv(t *testing.T) {
	t.Setenv("VELLUM_DB", "/tmp/env.db")
	dbPath = ""
	assert.Equal(t, "/tmp/env.db", resolveDBPath())
}

func TestIsNoDbCommand(t *testing.T) {
	assert.True(t, isNoDbCommand(versionCmd))
	assert.False(t, isNoDbCommand(listCmd))
	assert.False(t, isNoDbCommand(reviewBeginCmd))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "-", formatDate(nil))
	d := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-09-15", formatDate(&d))
}
