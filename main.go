package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"comply/internal/campaign"
	"comply/internal/config"
	httpapi "comply/internal/http"
	"comply/internal/msgtype"
	"comply/internal/pipeline"
	"comply/internal/scheduler"
	"comply/internal/session"
	"comply/internal/status"
	"comply/internal/storage"
	"comply/internal/template"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	store, err := storage.Open(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	types := msgtype.NewRegistry()
	if cfg.TypeCatalogPath != "" {
		if err := types.LoadOverrides(cfg.TypeCatalogPath); err != nil {
			log.Fatal(err)
		}
		log.Println("Type catalog overrides loaded from " + cfg.TypeCatalogPath)
	}

	templates := template.NewEngine(store)
	sessions := session.NewTracker(store)
	statuses := status.NewTracker()
	campaigns := campaign.NewValidator()
	pipe := pipeline.New(types, templates)

	ctx := context.Background()
	if cfg.SchedulerEnabled {
		sched := scheduler.New(store, pipe, sessions, statuses, campaigns, nil,
			scheduler.WithDispatchRate(cfg.DispatchRate),
			scheduler.WithBatchSize(cfg.BatchSize))
		sched.Start(ctx)
		log.Println("Campaign scheduler started")
	}

	router := httpapi.NewRouter(store, pipe, sessions, templates, campaigns, statuses, types)

	log.Println("HTTP listening on :" + cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal(err)
	}
}
