package handler

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/src/domain"
)

// RelayService is what the relay endpoints need from the service layer.
type RelayService interface {
	Relay(ctx context.Context, req domain.RelayRequest) (*domain.Relay, error)
	GetRelay(ctx context.Context, id uuid.UUID) (*domain.Relay, error)
}

type RelayHandler struct {
	relayService  RelayService
	defaultTarget common.Address
}

// NewRelayHandler creates the relay endpoints. defaultTarget is used when a
// request names no target contract and may be the zero address.
func NewRelayHandler(relayService RelayService, defaultTarget common.Address) *RelayHandler {
	return &RelayHandler{
		relayService:  relayService,
		defaultTarget: defaultTarget,
	}
}

func (h *RelayHandler) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("handler", "relay").Logger()
	return &l
}

// RelayRequest represents the request payload for a relay
type RelayRequest struct {
	Caller    string        `json:"caller" binding:"required,eth_addr"`
	Target    string        `json:"target" binding:"omitempty,eth_addr"`
	Function  string        `json:"function" binding:"required,abi_sig"`
	Args      []interface{} `json:"args"`
	Signature string        `json:"signature" binding:"omitempty,hexadecimal"`
}

// CreateRelay godoc
// @Summary Relay a contract call
// @Description Encodes the call, has it sponsored and submitted, and waits for inclusion
// @Tags relays
// @Accept json
// @Produce json
// @Param request body RelayRequest true "Call to relay"
// @Success 200 {object} StandardResponse{data=domain.Relay}
// @Success 202 {object} StandardResponse{data=domain.Relay}
// @Failure 400 {object} StandardResponse
// @Failure 403 {object} StandardResponse
// @Failure 409 {object} StandardResponse
// @Failure 422 {object} StandardResponse
// @Failure 502 {object} StandardResponse
// @Failure 503 {object} StandardResponse
// @Router /relays [post]
func (h *RelayHandler) CreateRelay(c *gin.Context) {
	ctx := c.Request.Context()
	logger := h.logger(ctx).With().Str("func", "CreateRelay").Logger()

	var req RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Debug().Err(err).Msg("invalid request payload")
		respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("Invalid request payload")))
		return
	}

	relayReq, err := h.toRelayRequest(req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	relay, err := h.relayService.Relay(ctx, relayReq)
	if err == nil {
		respondWithSuccess(c, relay)
		return
	}

	var relayErr *domain.RelayError
	if !errors.As(err, &relayErr) || relay == nil {
		respondWithError(c, err)
		return
	}

	detail := map[string]interface{}{
		"relay_id":   relay.ID.String(),
		"error_kind": string(relayErr.Kind),
	}
	if relayErr.Handle != "" {
		detail["user_op_hash"] = string(relayErr.Handle)
	}
	domainErr := domain.NewError(relayErr.Kind.ErrorCode(), relayErr,
		domain.WithMsg(relayErr.Message),
		domain.WithDetail(detail))

	switch relayErr.Kind {
	case domain.ErrorKindTimedOut, domain.ErrorKindCancelled:
		respondWithUnsettled(c, domainErr, relay)
	default:
		respondWithError(c, domainErr)
	}
}

func (h *RelayHandler) toRelayRequest(req RelayRequest) (domain.RelayRequest, error) {
	target := h.defaultTarget
	if req.Target != "" {
		target = common.HexToAddress(req.Target)
	}
	if target == (common.Address{}) {
		return domain.RelayRequest{}, domain.NewError(domain.ErrorCodeParameterInvalid,
			errors.New("no target contract"), domain.WithMsg("target is required"))
	}

	var signature []byte
	if req.Signature != "" {
		decoded, err := hexutil.Decode(req.Signature)
		if err != nil {
			return domain.RelayRequest{}, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("signature must be 0x-prefixed hex"))
		}
		signature = decoded
	}

	args := req.Args
	if args == nil {
		args = []interface{}{}
	}

	return domain.RelayRequest{
		Caller: common.HexToAddress(req.Caller),
		Intent: domain.CallIntent{
			Target:    target,
			Signature: req.Function,
			Args:      args,
		},
		Signature: signature,
	}, nil
}

// GetRelay godoc
// @Summary Get a relay
// @Description Returns the stored record of a relay, including runs settled later by the reconciler
// @Tags relays
// @Produce json
// @Param id path string true "Relay ID"
// @Success 200 {object} StandardResponse{data=domain.Relay}
// @Failure 400 {object} StandardResponse
// @Failure 404 {object} StandardResponse
// @Router /relays/{id} [get]
func (h *RelayHandler) GetRelay(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("Invalid relay id")))
		return
	}

	relay, err := h.relayService.GetRelay(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, relay)
}
