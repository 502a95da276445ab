package notification

import (
	"context"
	"io"
	"log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/privacy"
)

// ShoutrrrProvider sends to every configured shoutrrr URL through one
// router.
type ShoutrrrProvider struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrrProvider validates urls and builds the sender.
func NewShoutrrrProvider(urls []string, timeout time.Duration) (*ShoutrrrProvider, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Category(errors.CategoryConfiguration).
			Component("notification").
			Build()
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// URLs may carry tokens
		return nil, errors.New(privacy.WrapError(err)).
			Category(errors.CategoryConfiguration).
			Component("notification").
			Context("provider", "shoutrrr").
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrProvider{urls: slices.Clone(urls), sender: sender}, nil
}

// Name implements Provider.
func (s *ShoutrrrProvider) Name() string { return "shoutrrr" }

// Send implements Provider. The router applies its own timeout.
func (s *ShoutrrrProvider) Send(_ context.Context, n *Notification) error {
	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	var errs []error
	for _, err := range s.sender.Send(n.Message, &params) {
		if err != nil {
			errs = append(errs, privacy.WrapError(err))
		}
	}
	return errors.Join(errs...)
}
