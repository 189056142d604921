// Command notifier consumes notification messages from RabbitMQ and sends
// them as email through MailerSend.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/Shivanand-hulikatti/cofeast/internal/config"
	"github.com/Shivanand-hulikatti/cofeast/internal/notify"
)

func main() {
	cfg := config.Load()
	if cfg.MailerSendAPIKey == "" || cfg.MailerSendEmail == "" {
		log.Fatal("MAILERSEND_API_KEY and MAILERSEND_EMAIL are required")
	}

	consumer, err := notify.NewConsumer(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.RabbitMQQueue)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer consumer.Close()

	mailer := notify.NewMailer(cfg.MailerSendAPIKey, cfg.MailerSendEmail, cfg.MailerSendName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("✓ Waiting for notifications on queue %q", cfg.RabbitMQQueue)
	if err := consumer.Run(ctx, mailer); err != nil {
		log.Printf("consumer stopped: %v", err)
		return
	}
	log.Println("notifier stopped")
}
