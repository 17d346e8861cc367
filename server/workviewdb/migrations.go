package workviewdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE dataset(
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			created_at INT NOT NULL
		);

		CREATE TABLE item(
			id TEXT PRIMARY KEY,
			dataset_id INT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INT NOT NULL
		);
		CREATE INDEX idx_item_dataset_id ON item(dataset_id);

		CREATE TABLE slot(
			id INTEGER PRIMARY KEY,
			item_id TEXT NOT NULL,
			slot_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			total_frames INT NOT NULL,
			fps REAL
		);
		CREATE INDEX idx_slot_item_id ON slot(item_id);

		CREATE TABLE annotation(
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			class_id INT NOT NULL,
			type TEXT NOT NULL,
			z_index INT,
			data TEXT NOT NULL,
			created_at INT NOT NULL,
			updated_at INT NOT NULL
		);
		CREATE INDEX idx_annotation_item_id ON annotation(item_id);

		CREATE TABLE variable(
			key TEXT PRIMARY KEY,
			value TEXT
		);

	`))

	return migs
}
