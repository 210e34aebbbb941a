package enforcement

import (
	"context"
	"log/slog"
)

//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_enforcement

// Combat is the game's combat engine. It runs the encounter and later calls
// back ResolveEncounter with the outcome.
type Combat interface {
	SpawnEncounter(ctx context.Context, encounterID, characterID string, units int) error
	AwardXP(ctx context.Context, characterID string, xp int) error
}

// World answers where characters are and moves them.
type World interface {
	InProtectedZone(ctx context.Context, characterID string) (bool, error)
	Relocate(ctx context.Context, characterID, location string) error
}

// LoggingCombat records encounters in the log until the game server's combat
// engine is connected.
type LoggingCombat struct {
	Logger *slog.Logger
}

func (c LoggingCombat) SpawnEncounter(ctx context.Context, encounterID, characterID string, units int) error {
	c.Logger.InfoContext(ctx, "encounter requested", "encounter_id", encounterID, "character_id", characterID, "units", units)
	return nil
}

func (c LoggingCombat) AwardXP(ctx context.Context, characterID string, xp int) error {
	c.Logger.InfoContext(ctx, "xp awarded", "character_id", characterID, "xp", xp)
	return nil
}

// OpenWorld has no protected zones and logs relocations.
type OpenWorld struct {
	Logger *slog.Logger
}

func (w OpenWorld) InProtectedZone(context.Context, string) (bool, error) {
	return false, nil
}

func (w OpenWorld) Relocate(ctx context.Context, characterID, location string) error {
	w.Logger.InfoContext(ctx, "character relocated", "character_id", characterID, "location", location)
	return nil
}
