package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/erc4337"
	"github.com/tipvault/relayer/src/service"
)

// RelayPipeline is the relay coordinator with its chain connections. The
// server and the CLI both build one.
type RelayPipeline struct {
	chain   *ethclient.Client
	bundler *erc4337.BundlerClient

	Coordinator *service.RelayCoordinator
	Submission  *service.SubmissionClient
}

// NewRelayPipeline dials the node and the bundler, checks both serve the
// configured chain and wires the relay stages.
func NewRelayPipeline(ctx context.Context, config *AppConfig) (*RelayPipeline, error) {
	p := &RelayPipeline{}
	if err := p.connect(ctx, config); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.build(ctx, config); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *RelayPipeline) connect(ctx context.Context, config *AppConfig) error {
	logger := zerolog.Ctx(ctx).With().Str("function", "RelayPipeline.connect").Logger()
	want := big.NewInt(config.ChainID)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	chain, err := ethclient.DialContext(dialCtx, config.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to dial chain node: %w", err)
	}
	p.chain = chain

	nodeChainID, err := chain.ChainID(dialCtx)
	if err != nil {
		return fmt.Errorf("failed to read chain id from node: %w", err)
	}
	if nodeChainID.Cmp(want) != 0 {
		return fmt.Errorf("chain node serves chain %s, configured %s", nodeChainID, want)
	}

	bundler, err := erc4337.DialBundler(dialCtx, config.BundlerURL)
	if err != nil {
		return fmt.Errorf("failed to dial bundler: %w", err)
	}
	p.bundler = bundler

	bundlerChainID, err := bundler.ChainId(dialCtx)
	if err != nil {
		return fmt.Errorf("failed to read chain id from bundler: %w", err)
	}
	if bundlerChainID.Cmp(want) != 0 {
		return fmt.Errorf("bundler serves chain %s, configured %s", bundlerChainID, want)
	}

	logger.Info().
		Int64("chain_id", config.ChainID).
		Str("entry_point", config.EntryPoint.Hex()).
		Msg("Chain connections established")
	return nil
}

func (p *RelayPipeline) build(ctx context.Context, config *AppConfig) error {
	logger := zerolog.Ctx(ctx).With().Str("function", "RelayPipeline.build").Logger()
	chainID := big.NewInt(config.ChainID)

	encoder, err := service.NewIntentEncoder(service.VaultABI)
	if err != nil {
		return err
	}
	estimator, err := service.NewResourceEstimator(p.chain, config.EntryPoint, config.NonceSource)
	if err != nil {
		return err
	}

	sponsorOpts := []erc4337.SponsorClientOption{erc4337.WithHTTPTimeout(config.CallTimeout)}
	if config.PaymasterAPIKey != "" {
		sponsorOpts = append(sponsorOpts, erc4337.WithAPIKey(config.PaymasterAPIKey))
	}
	if config.SponsorshipPolicyID != "" {
		sponsorOpts = append(sponsorOpts, erc4337.WithSponsorshipPolicy(config.SponsorshipPolicyID))
	}
	sponsorship := service.NewSponsorshipClient(erc4337.NewSponsorClient(config.PaymasterURL, sponsorOpts...), config.EntryPoint)
	p.Submission = service.NewSubmissionClient(p.bundler, config.EntryPoint, chainID)

	stages := service.RelayStages{
		Encoder:   encoder,
		Estimator: estimator,
		Sponsor:   sponsorship,
		Submitter: p.Submission,
		Poller: service.NewReceiptPoller(p.Submission, service.PollerConfig{
			Interval:    config.ReceiptPollInterval,
			MaxAttempts: config.ReceiptPollAttempts,
			CallTimeout: config.CallTimeout,
		}),
	}
	if config.PrivateKey != "" {
		signer, err := service.NewECDSASigner(config.PrivateKey)
		if err != nil {
			return err
		}
		stages.Signer = signer
		logger.Info().Str("signer", signer.Address().Hex()).Msg("Operation signer enabled")
	}

	p.Coordinator = service.NewRelayCoordinator(stages, service.CoordinatorConfig{
		EntryPoint:       config.EntryPoint,
		ChainID:          chainID,
		Policy:           config.GasPolicy(),
		CallTimeout:      config.CallTimeout,
		TransportRetries: config.TransportRetries,
	})
	return nil
}

func (p *RelayPipeline) Close() {
	if p.bundler != nil {
		p.bundler.Close()
	}
	if p.chain != nil {
		p.chain.Close()
	}
}
