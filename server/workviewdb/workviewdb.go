// Package workviewdb is the annotation service's store: datasets, items with
// their media slots, annotation payloads and user preference variables.
package workviewdb

import (
	"fmt"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

type WorkviewDB struct {
	Log logs.Log
	DB  *gorm.DB
}

func NewWorkviewDB(log logs.Log, config dbh.DBConfig) (*WorkviewDB, error) {
	db, err := dbh.OpenDB(log, config, Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("open workview database (%v): %w", config.LogSafeDescription(), err)
	}
	return &WorkviewDB{
		Log: log,
		DB:  db,
	}, nil
}
