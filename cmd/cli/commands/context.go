package commands

import (
	"context"

	"go.uber.org/zap"

	"github.com/jakechorley/spin-wheel/internal/config"
	"github.com/jakechorley/spin-wheel/pkg/core/engine"
	"github.com/jakechorley/spin-wheel/pkg/db"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg    *config.Config
	Store  db.Store
	Engine *engine.Engine
	Logger *zap.Logger
	Ctx    context.Context
}
