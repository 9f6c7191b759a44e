package service

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/erc4337"
	"github.com/tipvault/relayer/src/domain"
)

// SponsorshipClient obtains paymaster sponsorship for an operation.
type SponsorshipClient struct {
	sponsor    erc4337.Sponsor
	entryPoint common.Address
}

func NewSponsorshipClient(sponsor erc4337.Sponsor, entryPoint common.Address) *SponsorshipClient {
	return &SponsorshipClient{sponsor: sponsor, entryPoint: entryPoint}
}

// logger wraps the execution context with component info
func (c *SponsorshipClient) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "sponsorship").Logger()
	return &l
}

// Sponsor returns the paymaster fields for op without modifying it.
func (c *SponsorshipClient) Sponsor(ctx context.Context, op *erc4337.Operation) (*erc4337.Sponsorship, error) {
	sponsorship, err := c.sponsor.SponsorUserOperation(ctx, op, c.entryPoint)
	if err != nil {
		c.logger(ctx).Warn().Err(err).
			Str("sender", op.Sender.Hex()).
			Msg("sponsorship request failed")
		return nil, classifySponsorError(err)
	}

	c.logger(ctx).Debug().
		Str("sender", op.Sender.Hex()).
		Str("paymaster", sponsorship.Paymaster.Hex()).
		Msg("operation sponsored")
	return sponsorship, nil
}

func classifySponsorError(err error) *domain.RelayError {
	if rpcErr, ok := erc4337.AsRPCError(err); ok {
		return domain.NewRelayError(domain.ErrorKindSponsorshipDenied, rpcErr.Message, err)
	}
	var malformed *erc4337.MalformedResponseError
	if errors.As(err, &malformed) {
		return domain.NewRelayError(domain.ErrorKindSponsorshipUnavailable, malformed.Error(), err)
	}
	return domain.NewRelayError(domain.ErrorKindSponsorshipUnavailable, err.Error(), err)
}
