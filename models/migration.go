package models

import (
	"log"

	"github.com/AnimaI/SMD-Manager/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Part{}, &Device{}, &BomEntry{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
