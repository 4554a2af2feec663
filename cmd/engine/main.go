// Package main — точка входа движка взаимодействий.
// Разбирает команду (serve, audit, migrate, operator-key) и запускает её.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		log.WithError(err).Error("Команда завершилась с ошибкой")
		os.Exit(1)
	}
}
