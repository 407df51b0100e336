package factory

import (
	"fmt"
	"os"

	"github.com/mikey/llm-reply-drafter/internal/adapters/filter"
	"github.com/mikey/llm-reply-drafter/internal/config"
	"github.com/mikey/llm-reply-drafter/internal/ports"
	"go.uber.org/zap"
)

// FilterFactory creates intake filters based on configuration
type FilterFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	pipeline ports.DraftPipeline
	accounts filter.AccountResolver
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, pipeline ports.DraftPipeline, accounts filter.AccountResolver) *FilterFactory {
	return &FilterFactory{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		accounts: accounts,
	}
}

// CreateEmailFilter creates an intake filter based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	sc := f.cfg.GetServer()

	switch sc.FilterType {
	case "smtp", "postfix":
		return filter.NewSMTPFilter(f.pipeline, f.accounts, filter.SMTPOptions{
			ListenAddress:  sc.ListenAddress,
			Domain:         sc.Domain,
			Reinject:       sc.Reinject,
			ReinjectAddr:   sc.ReinjectAddr,
			ReinjectPort:   sc.ReinjectPort,
			ProcessTimeout: sc.ProcessTimeout,
		}, f.logger), nil
	case "cli":
		return filter.NewCliFilter(f.pipeline, os.Stdout, f.logger, f.cfg.GetBool("cli.verbose")), nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", sc.FilterType)
	}
}
