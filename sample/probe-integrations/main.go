package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadflow/internal/config"
	"github.com/xavierca1/leadflow/internal/infra/integration/monday"
	"github.com/xavierca1/leadflow/internal/infra/integration/whatsapp"
	"github.com/xavierca1/leadflow/internal/infra/phone"
)

// Reads one board item and sends a plain text message to PROBE_PHONE, to
// check credentials before pointing the board webhook at the service.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateGateways(); err != nil {
		log.Fatal(err)
	}

	itemID := os.Getenv("PROBE_ITEM_ID")
	to := os.Getenv("PROBE_PHONE")
	if itemID == "" && to == "" {
		log.Fatal("set PROBE_ITEM_ID and/or PROBE_PHONE")
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if itemID != "" {
		crm := monday.NewClient(monday.Config{
			APIToken:       cfg.Monday.APIKey,
			BaseURL:        cfg.Monday.APIURL,
			BoardID:        cfg.Monday.BoardID,
			PhoneColumnID:  cfg.Monday.PhoneColumnID,
			StatusColumnID: cfg.Monday.StatusColumnID,
		}, cfg.Monday.Timeout, logger)

		fmt.Printf("Fetching item %s from board %s...\n", itemID, cfg.Monday.BoardID)
		item, err := crm.FetchItem(ctx, itemID)
		if err != nil {
			log.Fatalf("fetch item: %v", err)
		}
		fmt.Printf("   Name:   %s\n", item.Name)
		fmt.Printf("   Phone:  %s (E.164 %s)\n", item.Phone, phone.NormalizeE164(item.Phone, cfg.Lifecycle.PhoneRegion))
		fmt.Printf("   Status: %s\n\n", item.Status)
	}

	if to != "" {
		messenger := whatsapp.NewClient(whatsapp.Config{
			AccessToken:     cfg.Meta.APIToken,
			PhoneNumberID:   cfg.Meta.PhoneID,
			BaseURL:         cfg.Meta.APIURL,
			DefaultLanguage: cfg.Lifecycle.TemplateLanguage,
		}, cfg.Meta.Timeout, logger)

		fmt.Printf("Sending probe message to %s...\n", to)
		id, err := messenger.SendText(ctx, phone.NormalizeE164(to, cfg.Lifecycle.PhoneRegion), "leadflow connectivity check")
		if err != nil {
			log.Fatalf("send text: %v", err)
		}
		fmt.Printf("   Message id: %s\n", id)
	}
}
