package database

import (
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/uniframe-io/uniframe-backend/internal/config"
)

func New(conf *config.UFConfig) (*sqlx.DB, error) {
	return sqlx.Connect("pgx", conf.GetDatabaseURL())
}
