// Package delivery hands finished archives and report texts to an external sink.
package delivery

import (
	"context"
	"fmt"
	"os"

	"github.com/kadirbelkuyu/docsnap/internal/config"
	"github.com/kadirbelkuyu/docsnap/pkg/logger"
)

// Sink accepts either a finished file or a report text.
type Sink interface {
	DeliverFile(ctx context.Context, path, caption string) error
	DeliverText(ctx context.Context, text string) error
}

// New builds the sink selected by cfg.Kind.
func New(ctx context.Context, cfg config.DeliveryConfig, log *logger.Logger) (Sink, error) {
	switch cfg.Kind {
	case "", "local":
		return NewLocal(cfg.Dir, os.Stdout, cfg.MaxMessageLength, log)
	case "telegram":
		return NewTelegram(cfg, log)
	case "s3":
		return NewS3(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unsupported delivery kind: %s", cfg.Kind)
	}
}
