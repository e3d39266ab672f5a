// Package main применяет миграции схемы и загружает демонстрационные данные
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Ultrahd-dev/helpdesk/internal/config"
	"github.com/Ultrahd-dev/helpdesk/internal/database"
	"github.com/Ultrahd-dev/helpdesk/internal/logger"
	"github.com/Ultrahd-dev/helpdesk/internal/reports"
	"github.com/Ultrahd-dev/helpdesk/internal/seed"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/Ultrahd-dev/helpdesk/migrations"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "./configs/config.yaml", "путь к файлу конфигурации")
	pflag.Usage = usage
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(2)
	}
	command := args[0]

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.New("helpdesk-migrator", "info").WithError(err).Fatal("Ошибка загрузки конфигурации")
	}
	log := logger.New("helpdesk-migrator", cfg.Log.Level)

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Ошибка подключения к базе данных")
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(log)
	if err := goose.SetDialect("postgres"); err != nil {
		log.WithError(err).Fatal("Ошибка настройки goose")
	}

	switch command {
	case "up":
		if err := goose.UpContext(ctx, db, "."); err != nil {
			log.WithError(err).Fatal("Ошибка применения миграций")
		}
		log.Info("Миграции успешно применены")
	case "down":
		if err := goose.DownContext(ctx, db, "."); err != nil {
			log.WithError(err).Fatal("Ошибка отката миграций")
		}
		log.Info("Миграция успешно откачена")
	case "status":
		if err := goose.StatusContext(ctx, db, "."); err != nil {
			log.WithError(err).Fatal("Ошибка получения статуса миграций")
		}
	case "seed":
		if len(args) < 2 {
			log.Fatal("Необходимо указать путь к seed файлу")
		}
		file, err := seed.Load(args[1])
		if err != nil {
			log.WithError(err).Fatal("Ошибка чтения seed файла")
		}

		userRepo := users.NewRepository(db)
		seeder := seed.NewSeeder(users.NewService(userRepo, log), userRepo, reports.NewRepository(db), log)
		sum, err := seeder.Apply(ctx, file)
		if err != nil {
			log.WithError(err).Fatal("Ошибка загрузки данных")
		}
		log.WithFields(logrus.Fields{
			"users_created":   sum.UsersCreated,
			"users_skipped":   sum.UsersSkipped,
			"reports_created": sum.ReportsCreated,
			"comments":        sum.Comments,
		}).Info("Демонстрационные данные загружены")
	default:
		fmt.Printf("Неизвестная команда: %s\n", command)
		pflag.Usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("Использование: migrator [--config FILE] [команда]")
	fmt.Println("Доступные команды:")
	fmt.Println("  up         - Применить все непримененные миграции")
	fmt.Println("  down       - Откатить последнюю миграцию")
	fmt.Println("  status     - Показать статус миграций")
	fmt.Println("  seed FILE  - Загрузить пользователей и заявки из YAML файла")
	fmt.Println("")
	fmt.Println("Примеры:")
	fmt.Println("  migrator up")
	fmt.Println("  migrator --config configs/config.yaml status")
	fmt.Println("  migrator seed configs/seed.yaml")
}
